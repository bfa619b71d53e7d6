package builder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"codemother/internal/logging"

	"github.com/rs/zerolog"
)

const (
	DefaultInstallTimeout = 5 * time.Minute
	DefaultBuildTimeout   = 3 * time.Minute
	DistDir               = "dist"
)

var ErrNotAProject = errors.New("not an npm project")

// Runner executes one command in dir and returns its combined output.
type Runner interface {
	Run(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if ctx.Err() != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), ctx.Err())
	}
	return out.Bytes(), err
}

// Builder installs dependencies and builds generated npm projects.
type Builder struct {
	runner         Runner
	npm            string
	installTimeout time.Duration
	buildTimeout   time.Duration
	log            zerolog.Logger
	wg             sync.WaitGroup
}

type Option func(*Builder)

func WithRunner(r Runner) Option {
	return func(b *Builder) { b.runner = r }
}

func WithTimeouts(install, build time.Duration) Option {
	return func(b *Builder) {
		if install > 0 {
			b.installTimeout = install
		}
		if build > 0 {
			b.buildTimeout = build
		}
	}
}

func New(opts ...Option) *Builder {
	b := &Builder{
		runner:         execRunner{},
		npm:            npmCommand(),
		installTimeout: DefaultInstallTimeout,
		buildTimeout:   DefaultBuildTimeout,
		log:            logging.Component("builder"),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func npmCommand() string {
	if runtime.GOOS == "windows" {
		return "npm.cmd"
	}
	return "npm"
}

// Build runs npm install and npm run build in dir and checks that dist/ was produced.
func (b *Builder) Build(ctx context.Context, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		return fmt.Errorf("%w: %s has no package.json", ErrNotAProject, dir)
	}
	start := time.Now()
	log := b.log.With().Str("dir", dir).Logger()

	if err := b.step(ctx, dir, b.installTimeout, "install"); err != nil {
		return err
	}
	if err := b.step(ctx, dir, b.buildTimeout, "run", "build"); err != nil {
		return err
	}
	info, err := os.Stat(filepath.Join(dir, DistDir))
	if err != nil || !info.IsDir() {
		return fmt.Errorf("build finished without a %s directory in %s", DistDir, dir)
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("project built")
	return nil
}

func (b *Builder) step(ctx context.Context, dir string, timeout time.Duration, args ...string) error {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	out, err := b.runner.Run(stepCtx, dir, b.npm, args...)
	if err != nil {
		b.log.Error().Err(err).Str("dir", dir).Str("output", tail(out, 2000)).Msgf("npm %s failed", strings.Join(args, " "))
		return fmt.Errorf("npm %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

// BuildAsync builds dir in the background. Failures are logged only.
func (b *Builder) BuildAsync(dir string) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		if err := b.Build(context.Background(), dir); err != nil {
			b.log.Error().Err(err).Str("dir", dir).Msg("background build failed")
		}
	}()
}

// Wait blocks until every BuildAsync call has finished.
func (b *Builder) Wait() {
	b.wg.Wait()
}

func tail(out []byte, n int) string {
	if len(out) > n {
		out = out[len(out)-n:]
	}
	return string(out)
}
