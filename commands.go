package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"codemother/internal/events"
	"codemother/internal/models"
	"codemother/internal/services"
	"codemother/internal/stream"
)

func parseAppID(arg string) (uint, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid app id %q", arg)
	}
	return uint(id), nil
}

func appCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "app", Short: "Create, list and delete apps"}

	var prompt string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an app from an initial prompt",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *App) error {
				app, err := a.services.Apps.Create(cmd.Context(), userID, prompt)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "created app %d %q (%s)\n", app.ID, app.Name, app.CodeGenType.Text())
				return nil
			})
		},
	}
	create.Flags().StringVarP(&prompt, "prompt", "p", "", "what the app should be")
	_ = create.MarkFlagRequired("prompt")

	var limit, offset int
	list := &cobra.Command{
		Use:   "list",
		Short: "List your apps",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, false, func(a *App) error {
				apps, err := a.services.Apps.List(cmd.Context(), userID, limit, offset)
				if err != nil {
					return err
				}
				for _, app := range apps {
					fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\tv%d\n", app.ID, app.CodeGenType, app.Name, app.Version)
				}
				return nil
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "page size")
	list.Flags().IntVar(&offset, "offset", 0, "apps to skip")

	del := &cobra.Command{
		Use:   "delete <app-id>",
		Short: "Delete an app with its history, sources and deployments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAppID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *App) error {
				return a.services.Apps.Delete(cmd.Context(), id, userID)
			})
		},
	}

	cmd.AddCommand(create, list, del)
	return cmd
}

func chatCommand() *cobra.Command {
	var message string
	cmd := &cobra.Command{
		Use:   "chat <app-id>",
		Short: "Send a message and stream the generated reply",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAppID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, true, func(a *App) error {
				sr, err := a.services.Apps.ChatToGenCode(cmd.Context(), id, userID, message)
				if err != nil {
					return err
				}
				defer sr.Close()
				out := stream.WriterSink{W: cmd.OutOrStdout()}
				for {
					c, err := sr.Recv()
					if errors.Is(err, io.EOF) {
						fmt.Fprintln(cmd.OutOrStdout())
						return nil
					}
					if err != nil {
						return err
					}
					out.Send(c)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "message to send")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func historyCommand() *cobra.Command {
	var before int64
	var limit int
	cmd := &cobra.Command{
		Use:   "history <app-id>",
		Short: "Show the conversation of an app, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAppID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *App) error {
				turns, err := a.services.Apps.ListHistory(cmd.Context(), id, userID, before, limit)
				if err != nil {
					return err
				}
				for _, t := range turns {
					who := "ai"
					if t.Kind == models.TurnUser {
						who = "you"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "#%d %s %s\n%s\n\n", t.Sequence, t.CreatedAt.Format("2006-01-02 15:04"), who, strings.TrimSpace(t.Payload))
				}
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&before, "before", 0, "only show turns older than this sequence")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of turns")
	return cmd
}

func deployCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deploy <app-id>",
		Short: "Publish the current sources of an app as a new version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAppID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *App) error {
				url, err := a.services.Apps.Deploy(cmd.Context(), id, userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), url)
				return nil
			})
		},
	}
}

func exportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export <app-id>",
		Short: "Write the latest generated code of an app as markdown",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseAppID(args[0])
			if err != nil {
				return err
			}
			return withApp(cmd, false, func(a *App) error {
				path, err := a.services.Apps.ExportCode(cmd.Context(), id, userID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return nil
			})
		},
	}
}

func workflowCommand() *cobra.Command {
	var prompt string
	var appID uint
	var quiet bool
	cmd := &cobra.Command{
		Use:   "workflow",
		Short: "Run the full generation workflow for a prompt",
		Long: `Collects images, enhances the prompt, picks the generation type, generates the
code, checks its quality (regenerating when it fails) and builds Vue projects.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, true, func(a *App) error {
				var sink stream.Sink = stream.WriterSink{W: cmd.OutOrStdout()}
				if quiet {
					sink = stream.Discard
				}
				errOut := cmd.ErrOrStderr()
				events.SetCustomEmitter(events.Tee(func(_ context.Context, name string, evt events.Event) {
					if name == events.WorkflowStep {
						fmt.Fprintf(errOut, "==> %s\n", evt.Message)
					}
				}))
				wf, err := a.Workflow(cmd.Context(), sink)
				if err != nil {
					return err
				}
				wc, err := wf.Execute(cmd.Context(), appID, prompt)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "\ntype:     %s\nattempts: %d\nsources:  %s\n", wc.GenerationType, wc.Attempts, wc.GeneratedCodeDir)
				if wc.BuildResultDir != "" {
					fmt.Fprintf(out, "output:   %s\n", wc.BuildResultDir)
				}
				if wc.Failed {
					return fmt.Errorf("workflow gave up: %s", wc.Error)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&prompt, "prompt", "p", "", "what to build")
	cmd.Flags().UintVar(&appID, "app-id", uint(time.Now().Unix()%1_000_000), "id used for the output directory")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "do not print the generated reply")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}

func keysCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "keys",
		Short:             "Manage provider API keys in the OS keyring",
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
	}
	keys := services.NewKeyringService()
	cmd.AddCommand(
		&cobra.Command{
			Use:   "set <provider> <api-key>",
			Short: "Store an API key",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				return keys.StoreAPIKey(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "get <provider>",
			Short: "Print a stored API key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				key, err := keys.GetAPIKey(args[0])
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), key)
				return nil
			},
		},
		&cobra.Command{
			Use:   "delete <provider>",
			Short: "Remove a stored API key",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return keys.DeleteAPIKey(args[0])
			},
		},
		&cobra.Command{
			Use:   "list",
			Short: "List providers with a stored key",
			RunE: func(cmd *cobra.Command, args []string) error {
				providers, err := keys.ListProviders()
				if err != nil {
					return err
				}
				for _, p := range providers {
					fmt.Fprintln(cmd.OutOrStdout(), p)
				}
				return nil
			},
		},
	)
	return cmd
}
