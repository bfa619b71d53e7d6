package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codemother/internal/config"
	"codemother/internal/logging"
	"codemother/internal/utils"
)

var (
	version = "0.1.0"
	cfgFile string
	userID  uint
	cfg     *config.Config
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "codemother",
		Short: "Generate web apps from a prompt",
		Long: `codemother turns a description into a runnable web app: a single HTML page,
an HTML/CSS/JS site or a Vue project. Conversations are kept per app so later
messages refine what was generated.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := utils.LoadEnv(); err != nil {
				return fmt.Errorf("load .env: %w", err)
			}
			var err error
			cfg, err = config.Load(cfgFile)
			if err != nil {
				return err
			}
			logging.Setup(logging.Config{Level: cfg.Log.Level, Format: cfg.Log.Format})
			return ensureRoots(cfg)
		},
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or $HOME/.codemother/config.yaml)")
	rootCmd.PersistentFlags().UintVar(&userID, "user", 1, "id of the user acting on apps")

	rootCmd.AddCommand(
		appCommand(),
		chatCommand(),
		historyCommand(),
		deployCommand(),
		exportCommand(),
		workflowCommand(),
		keysCommand(),
		&cobra.Command{
			Use:               "version",
			Short:             "Print the version number",
			PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("codemother version %s\n", version)
			},
		},
	)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// withApp opens the application for one command and closes it afterwards.
func withApp(cmd *cobra.Command, withModel bool, run func(*App) error) error {
	app, err := NewApp(cmd.Context(), cfg, withModel)
	if err != nil {
		return err
	}
	defer app.Close()
	return run(app)
}
