package readiness

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// Probe checks a single dependency.
type Probe interface {
	Name() string
	Check(ctx context.Context) error
}

type probeFunc struct {
	name  string
	check func(ctx context.Context) error
}

func (p probeFunc) Name() string                    { return p.name }
func (p probeFunc) Check(ctx context.Context) error { return p.check(ctx) }

// ProbeFunc adapts a plain function into a Probe.
func ProbeFunc(name string, check func(ctx context.Context) error) Probe {
	return probeFunc{name: name, check: check}
}

// Report is the outcome of one readiness evaluation. Failures maps probe
// names to their error text and is empty when Ready is true.
type Report struct {
	Ready    bool
	Failures map[string]string
}

type Option func(*Checker)

// WithTimeout bounds each probe run.
func WithTimeout(d time.Duration) Option {
	return func(c *Checker) {
		c.timeout = d
	}
}

// WithCacheTTL keeps probe results for d. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(c *Checker) {
		c.cacheTTL = d
	}
}

// WithFailureHook is called with the probe name on every failed run.
func WithFailureHook(fn func(probe string)) Option {
	return func(c *Checker) {
		c.onFailure = fn
	}
}

type Checker struct {
	logger    *slog.Logger
	probes    []Probe
	timeout   time.Duration
	cacheTTL  time.Duration
	cache     *ttlcache.Cache[string, error]
	onFailure func(probe string)
}

func NewChecker(logger *slog.Logger, opts ...Option) *Checker {
	c := &Checker{
		logger:  logger,
		timeout: 2 * time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cacheTTL > 0 {
		c.cache = ttlcache.New[string, error](
			ttlcache.WithTTL[string, error](c.cacheTTL),
			ttlcache.WithDisableTouchOnHit[string, error](),
		)
	}

	return c
}

// Register adds a probe. Probes must be registered before the checker
// starts serving requests.
func (c *Checker) Register(p Probe) {
	c.probes = append(c.probes, p)
}

// Probes returns the registered probe names in registration order.
func (c *Checker) Probes() []string {
	names := make([]string, 0, len(c.probes))
	for _, p := range c.probes {
		names = append(names, p.Name())
	}
	return names
}

// Check runs every probe, serving cached results while they are fresh.
func (c *Checker) Check(ctx context.Context) Report {
	report := Report{Ready: true, Failures: map[string]string{}}

	for _, p := range c.probes {
		if err := c.run(ctx, p); err != nil {
			report.Ready = false
			report.Failures[p.Name()] = err.Error()
		}
	}

	return report
}

func (c *Checker) run(ctx context.Context, p Probe) error {
	if c.cache != nil {
		if item := c.cache.Get(p.Name()); item != nil {
			return item.Value()
		}
	}

	probeCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.safeCheck(probeCtx, p)
	if err != nil {
		c.logger.Warn("Readiness probe failed",
			slog.String("probe", p.Name()),
			slog.String("error", err.Error()))
		if c.onFailure != nil {
			c.onFailure(p.Name())
		}
	} else {
		c.logger.Debug("Readiness probe passed", slog.String("probe", p.Name()))
	}

	if c.cache != nil {
		c.cache.Set(p.Name(), err, ttlcache.DefaultTTL)
	}

	return err
}

func (c *Checker) safeCheck(ctx context.Context, p Probe) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("probe panicked: %v", r)
		}
	}()

	return p.Check(ctx)
}
