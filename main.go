package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ttotp/internal/clipboard"
	"ttotp/internal/config"
	"ttotp/internal/registry"
	"ttotp/internal/scheduler"
	"ttotp/internal/secrets"
	"ttotp/internal/tui"

	"golang.org/x/sync/errgroup"
)

// usageError wraps startup failures the user can fix themselves. It
// triggers the configuration guidance text and exit status 2.
type usageError struct {
	path string
	err  error
}

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func run(ctx context.Context) error {
	configPath := flag.String("config", config.DefaultPath(), "Configuration file to use")
	profile := flag.String("profile", "", "Profile to use within the configuration file")
	printOnce := flag.Bool("print", false, "Print current codes once and exit")
	logPath := flag.String("log", "", "Append logs to this file (default: logging disabled)")
	flag.Parse()

	if err := setupLogging(*logPath, *printOnce); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath, *profile)
	if err != nil {
		return usageError{path: *configPath, err: err}
	}

	// Secret acquisition happens exactly once, before any entry exists.
	lines, err := secrets.Fetch(ctx, cfg)
	if err != nil {
		return usageError{path: *configPath, err: err}
	}
	specs, err := secrets.Load(lines)
	if err != nil {
		return usageError{path: *configPath, err: err}
	}

	reg := registry.New(specs)

	if *printOnce {
		printCodes(reg)
		return nil
	}

	ui := tui.New(os.Stdin, os.Stdout)
	sched := scheduler.New(scheduler.Config{
		Registry:  reg,
		Clipboard: clipboard.System{},
		Renderer:  ui,
		Notifier:  ui,
		AutoExit:  cfg.AutoExit,
	})
	ui.Bind(sched)

	g, gCtx := errgroup.WithContext(ctx)
	runCtx, cancel := context.WithCancel(gCtx)
	defer cancel()

	g.Go(func() error {
		defer cancel()
		return ignoreCanceled(sched.Run(runCtx))
	})
	g.Go(func() error {
		defer cancel()
		return ignoreCanceled(ui.Run(runCtx))
	})

	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func printCodes(reg *registry.Registry) {
	now := time.Now()
	for _, e := range reg.All() {
		spec := e.Spec
		fmt.Printf("%-10s %3.0fs  %s\n", spec.Code(now), spec.Remaining(now), e.DisplayName())
	}
}

func setupLogging(path string, toStderr bool) error {
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("opening log file: %w", err)
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(f, nil)))
		return nil
	}
	if toStderr {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return nil
	}
	// The UI owns the terminal; without a log file, logs go nowhere.
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprint(os.Stderr, config.Hint(usage.path, usage.err))
			os.Exit(2)
		}
		log.Fatalf("Application error: %v", err)
	}
}
