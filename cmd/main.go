package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/angeloszaimis/cv-ai-agent/config"
	"github.com/angeloszaimis/cv-ai-agent/internal/app"
	"github.com/angeloszaimis/cv-ai-agent/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.Any("err", err))
		os.Exit(1)
	}

	log, errLog, err := setupLogger(cfg, os.Stderr)
	if err != nil {
		slog.Error("failed to open error log", slog.Any("err", err))
		os.Exit(1)
	}
	defer errLog.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("Server stopped with error", slog.Any("err", err))
		errLog.Close()
		os.Exit(1)
	}
}

// setupLogger builds the main logger on the configured error log
// destination, falling back to stderr for "-".
func setupLogger(cfg *config.Config, fallback io.Writer) (*slog.Logger, io.Closer, error) {
	w, err := logger.Open(cfg.Server.ErrorLog, fallback)
	if err != nil {
		return nil, nil, err
	}

	return logger.New(cfg.LogLevel, cfg.Debug, cfg.Env, cfg.Server.ProcName, w), w, nil
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	a, err := app.New(cfg, log)
	if err != nil {
		return err
	}

	return a.Run(ctx)
}
