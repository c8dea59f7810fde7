package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/angeloszaimis/cv-ai-agent/config"
	"github.com/angeloszaimis/cv-ai-agent/internal/handler"
	"github.com/angeloszaimis/cv-ai-agent/internal/httpserver"
	"github.com/angeloszaimis/cv-ai-agent/internal/metrics"
	"github.com/angeloszaimis/cv-ai-agent/internal/readiness"
	"github.com/angeloszaimis/cv-ai-agent/pkg/logger"
)

// writeGrace gives the handler timeout response room to be written before
// the connection write deadline fires.
const writeGrace = 5 * time.Second

type App struct {
	config  *config.Config
	logger  *slog.Logger
	handler http.Handler
	server  *httpserver.Server
	closers []io.Closer
}

func New(cfg *config.Config, log *slog.Logger) (*App, error) {
	timeouts, err := parseTimeouts(cfg)
	if err != nil {
		return nil, err
	}

	a := &App{config: cfg, logger: log}

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.New(handler.Paths...)
	}

	checker, err := a.buildReadiness(m, timeouts)
	if err != nil {
		a.Close()
		return nil, err
	}

	access, err := a.buildAccessLogger()
	if err != nil {
		a.Close()
		return nil, err
	}

	rootPath, err := os.Getwd()
	if err != nil {
		rootPath = "."
	}

	opts := []handler.Option{
		handler.WithReadiness(checker),
		handler.WithAccessLogger(access),
		handler.WithRootPath(rootPath),
	}
	if m != nil {
		opts = append(opts, handler.WithMetrics(m))
	}
	a.handler = handler.New(cfg, log, opts...).Routes()

	a.server, err = httpserver.New(cfg.Addr(), a.handler, httpserver.Options{
		ReadTimeout:     timeouts.request,
		WriteTimeout:    timeouts.request + writeGrace,
		IdleTimeout:     timeouts.keepAlive,
		ShutdownTimeout: timeouts.graceful,
		MaxConns:        cfg.Server.Workers * cfg.Server.Threads,
		Logger:          log,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create server: %w", err)
	}

	return a, nil
}

type timeouts struct {
	request      time.Duration
	graceful     time.Duration
	keepAlive    time.Duration
	probe        time.Duration
	readinessTTL time.Duration
}

func parseTimeouts(cfg *config.Config) (timeouts, error) {
	var t timeouts
	fields := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"server.timeout", cfg.Server.Timeout, &t.request},
		{"server.graceful_timeout", cfg.Server.GracefulTimeout, &t.graceful},
		{"server.keepalive", cfg.Server.KeepAlive, &t.keepAlive},
		{"readiness.timeout", cfg.Readiness.Timeout, &t.probe},
		{"readiness.cache_ttl", cfg.Readiness.CacheTTL, &t.readinessTTL},
	}

	for _, f := range fields {
		d, err := config.ParseDuration(f.value)
		if err != nil {
			return t, fmt.Errorf("parse %s: %w", f.name, err)
		}
		*f.dst = d
	}

	return t, nil
}

func (a *App) buildReadiness(m *metrics.Metrics, t timeouts) (*readiness.Checker, error) {
	opts := []readiness.Option{
		readiness.WithTimeout(t.probe),
		readiness.WithCacheTTL(t.readinessTTL),
	}
	if m != nil {
		opts = append(opts, readiness.WithFailureHook(m.RecordProbeFailure))
	}

	checker := readiness.NewChecker(a.logger, opts...)

	if !a.config.Readiness.CheckDatabase {
		return checker, nil
	}

	if !readiness.IsPostgresURL(a.config.DatabaseURL) {
		a.logger.Warn("Database readiness probe skipped, unsupported database URL scheme")
		return checker, nil
	}

	db, err := readiness.OpenPostgres(a.config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, db)
	checker.Register(readiness.NewDatabaseProbe(db))

	return checker, nil
}

// buildAccessLogger honours Server.AccessLog: empty disables request lines,
// "-" writes them to stdout, anything else is a file path.
func (a *App) buildAccessLogger() (*slog.Logger, error) {
	dest := a.config.Server.AccessLog
	if dest == "" {
		return slog.New(slog.DiscardHandler), nil
	}

	w, err := logger.Open(dest, os.Stdout)
	if err != nil {
		return nil, fmt.Errorf("open access log: %w", err)
	}
	a.closers = append(a.closers, w)

	return logger.New(a.config.Server.LogLevel, false, a.config.Env, a.config.Server.ProcName, w), nil
}

// Handler exposes the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	return a.handler
}

// Addr is the bound address once Run has started listening.
func (a *App) Addr() string {
	return a.server.Addr()
}

// Run serves until ctx is cancelled, then drains connections and releases
// every resource opened by New.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	if err := a.server.Listen(); err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	a.logger.Info("Starting server",
		slog.String("addr", a.server.Addr()),
		slog.String("environment", a.config.Env),
		slog.Int("workers", a.config.Server.Workers),
		slog.Int("threads", a.config.Server.Threads))

	srvErrCh := make(chan error, 1)

	go func() {
		srvErrCh <- a.server.Start()
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("Shutting down gracefully...")
		if err := a.server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return <-srvErrCh
	case err := <-srvErrCh:
		return err
	}
}

// Close releases database pools and log files. It is safe to call twice.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil

	return errors.Join(errs...)
}
