package healthcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
)

const (
	DefaultBaseURL = "http://localhost:8000"
	DefaultRetries = 3
	DefaultDelay   = 2 * time.Second
	DefaultTimeout = 5 * time.Second
)

// DefaultEndpoints are checked in order when Options.Endpoints is empty.
var DefaultEndpoints = []string{"/health", "/ready"}

type Options struct {
	BaseURL   string
	Endpoints []string
	Retries   int
	Delay     time.Duration
	Timeout   time.Duration
}

// DefaultOptions returns the settings used by the deploy pipeline.
func DefaultOptions() Options {
	return Options{
		BaseURL:   DefaultBaseURL,
		Endpoints: append([]string(nil), DefaultEndpoints...),
		Retries:   DefaultRetries,
		Delay:     DefaultDelay,
		Timeout:   DefaultTimeout,
	}
}

func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.BaseURL, validation.Required, is.URL, validation.By(httpScheme)),
		validation.Field(&o.Endpoints, validation.Each(validation.Required, validation.By(leadingSlash))),
		validation.Field(&o.Retries, validation.Required, validation.Min(1)),
		validation.Field(&o.Delay, validation.Min(time.Duration(0))),
		validation.Field(&o.Timeout, validation.Min(time.Duration(0))),
	)
}

func httpScheme(value interface{}) error {
	s, _ := value.(string)
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "http://") && !strings.HasPrefix(lower, "https://") {
		return validation.NewError("validation_invalid_scheme", "must use http or https")
	}
	return nil
}

func leadingSlash(value interface{}) error {
	s, _ := value.(string)
	if !strings.HasPrefix(s, "/") {
		return validation.NewError("validation_invalid_endpoint", "must start with /")
	}
	return nil
}

// Report holds the endpoints that never answered 200.
type Report struct {
	Checked []string
	Failed  []string
}

func (r Report) OK() bool {
	return len(r.Failed) == 0
}

type Checker struct {
	opts   Options
	client *http.Client
	logger *slog.Logger
}

// New validates opts and fills unset endpoints and timeout with defaults.
func New(opts Options, logger *slog.Logger) (*Checker, error) {
	if len(opts.Endpoints) == 0 {
		opts.Endpoints = append([]string(nil), DefaultEndpoints...)
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid options: %w", err)
	}

	return &Checker{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		logger: logger,
	}, nil
}

var errNotOK = errors.New("unexpected status")

// CheckEndpoint polls url until it answers 200, sleeping Delay between
// attempts but not after the last one.
func (c *Checker) CheckEndpoint(ctx context.Context, url string) bool {
	// retry-go reads zero attempts as unlimited.
	attempts := c.opts.Retries
	if attempts < 1 {
		attempts = 1
	}
	attempt := 0

	err := retry.Do(
		func() error {
			attempt++
			return c.probe(ctx, url, attempt)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.Delay(c.opts.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
	)

	return err == nil
}

func (c *Checker) probe(ctx context.Context, url string, attempt int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		c.logger.Error(fmt.Sprintf("[ERROR] Attempt %d: Could not reach %s: %v", attempt, url, err),
			slog.Int("attempt", attempt))
		return retry.Unrecoverable(err)
	}

	res, err := c.client.Do(req)
	if err != nil {
		c.logger.Error(fmt.Sprintf("[ERROR] Attempt %d: Could not reach %s: %v", attempt, url, err),
			slog.Int("attempt", attempt))
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, res.Body)

	if res.StatusCode != http.StatusOK {
		c.logger.Warn(fmt.Sprintf("[WARN] %s responded with status %d", url, res.StatusCode),
			slog.Int("attempt", attempt))
		return fmt.Errorf("%w: %d", errNotOK, res.StatusCode)
	}

	c.logger.Info(fmt.Sprintf("[OK] %s responded with 200", url))
	return nil
}

// Run checks every endpoint in order and logs a final verdict.
func (c *Checker) Run(ctx context.Context) Report {
	base := strings.TrimRight(c.opts.BaseURL, "/")
	report := Report{}

	for _, ep := range c.opts.Endpoints {
		report.Checked = append(report.Checked, ep)

		if !c.CheckEndpoint(ctx, base+ep) {
			c.logger.Error(fmt.Sprintf("[FAIL] %s did not respond with 200 after %d attempts", ep, c.opts.Retries))
			report.Failed = append(report.Failed, ep)
		}
	}

	if report.OK() {
		c.logger.Info("[SUCCESS] All endpoints healthy and ready.")
	} else {
		c.logger.Error("[FAILURE] One or more endpoints failed health check.")
	}

	return report
}
