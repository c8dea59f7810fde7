// Command deploycheck polls a freshly deployed instance and exits 0 only
// when every endpoint answered 200.
//
//	deploycheck --host http://localhost:8000 --retries 5 --delay 3
package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/angeloszaimis/cv-ai-agent/internal/healthcheck"
	"github.com/angeloszaimis/cv-ai-agent/pkg/logger"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	cancel()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := pflag.NewFlagSet("deploycheck", pflag.ContinueOnError)
	fs.SetOutput(stderr)

	host := fs.String("host", healthcheck.DefaultBaseURL, "Base URL of the deployed application")
	retries := fs.Int("retries", healthcheck.DefaultRetries, "Number of attempts per endpoint")
	delay := fs.Int("delay", int(healthcheck.DefaultDelay/time.Second), "Delay between attempts in seconds")
	timeout := fs.Int("timeout", int(healthcheck.DefaultTimeout/time.Second), "Per-request timeout in seconds")
	endpoints := fs.StringArray("endpoint", healthcheck.DefaultEndpoints, "Endpoint path to check, repeatable")

	if err := fs.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return exitOK
		}
		return exitUsage
	}

	log := logger.New("info", false, "", "deploycheck", stdout)

	checker, err := healthcheck.New(healthcheck.Options{
		BaseURL:   *host,
		Endpoints: *endpoints,
		Retries:   *retries,
		Delay:     time.Duration(*delay) * time.Second,
		Timeout:   time.Duration(*timeout) * time.Second,
	}, log)
	if err != nil {
		log.Error("Invalid flags", "err", err)
		return exitUsage
	}

	if !checker.Run(ctx).OK() {
		return exitFailure
	}
	return exitOK
}
