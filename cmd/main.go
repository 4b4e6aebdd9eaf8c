package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/desertthunder/ytup/internal/auth"
	"github.com/desertthunder/ytup/internal/shared"
)

func main() {
	logger := shared.NewLogger(nil)

	if err := shared.LoadEnv(".env"); err != nil {
		logger.Warn("could not load .env", "error", err)
	}

	runner := NewRunner(RunnerOpts{Logger: logger})
	app := runner.app()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.Run(ctx, os.Args); err != nil {
		var stageErr *auth.StageError
		switch {
		case errors.Is(err, context.Canceled):
			logger.Warn("interrupted")
			os.Exit(130)
		case errors.As(err, &stageErr):
			logger.Fatal("authentication failed", "stage", stageErr.Stage, "user", stageErr.User, "error", stageErr.Err)
		default:
			logger.Fatalf("application error: %v", err)
		}
	}
}
