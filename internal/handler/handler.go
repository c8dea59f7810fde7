package handler

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/angeloszaimis/cv-ai-agent/config"
	"github.com/angeloszaimis/cv-ai-agent/internal/metrics"
	"github.com/angeloszaimis/cv-ai-agent/internal/readiness"
)

const (
	ServiceName   = "CV AI Agent"
	ServiceHeader = "CV-AI-Agent"
	Version       = "1.0.0"
	Greeting      = "Hello! I am your baby AI agent 🤖"
)

// Paths lists every registered route, used as the metrics route label set.
var Paths = []string{"/", "/health", "/ready", "/info", "/metrics"}

type Handler struct {
	config    *config.Config
	logger    *slog.Logger
	access    *slog.Logger
	readiness *readiness.Checker
	metrics   *metrics.Metrics
	rootPath  string
	timeout   time.Duration

	mu        sync.Mutex
	clients   map[string]*client
	lastSweep time.Time
}

type Option func(*Handler)

// WithReadiness serves /ready from checker. Without it /ready is always ready.
func WithReadiness(checker *readiness.Checker) Option {
	return func(h *Handler) {
		h.readiness = checker
	}
}

// WithMetrics instruments requests and serves /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

// WithAccessLogger sends one line per request to l instead of the main logger.
func WithAccessLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		h.access = l
	}
}

// WithRootPath sets the root_path reported by /info.
func WithRootPath(path string) Option {
	return func(h *Handler) {
		h.rootPath = path
	}
}

func New(cfg *config.Config, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		config:   cfg,
		logger:   logger,
		access:   logger,
		rootPath: ".",
		clients:  make(map[string]*client),
	}

	if d, err := config.ParseDuration(cfg.Server.Timeout); err == nil {
		h.timeout = d
	}

	for _, opt := range opts {
		opt(h)
	}

	return h
}

// extractClientIP prefers X-Forwarded-For. The header is client supplied,
// so it is only fit for logging.
func extractClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}

	return remoteIP(r)
}

// remoteIP is the address of the peer that opened the connection.
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
