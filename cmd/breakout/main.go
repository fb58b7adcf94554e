// Command breakout runs the classroom session broker: a TCP chat server with breakout
// rooms, plus an optional HTTP status API and WebSocket gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"breakout/internal/app"
	"breakout/internal/config"
	"breakout/pkg/logging"
)

const shutdownTimeout = 30 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "breakout: %v\n", err)
		os.Exit(1)
	}
}

// run loads configuration, starts the broker and blocks until ctx is cancelled or a
// listener fails.
func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("breakout", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv(config.EnvPrefix+"_CONFIG_FILE"), "path to a YAML, JSON or TOML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	bootstrap := logging.New("info", "text", stderr)
	cfg, err := config.Load(bootstrap, *configPath)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log.Level, cfg.Log.Format, stderr)

	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		_ = application.Stop(context.Background())
		return fmt.Errorf("failed to start application: %w", err)
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown requested")
	case runErr = <-application.Err():
		logger.Error("Application error", slog.String("error", runErr.Error()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		logger.Warn("Shutdown incomplete", slog.String("error", err.Error()))
	}
	return runErr
}
