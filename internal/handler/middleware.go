package handler

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	headerRequestID = "X-Request-ID"
	maxRequestIDLen = 128
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RequestID returns the id assigned to the request by the middleware chain.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestID reuses a sane incoming X-Request-ID or generates a new one.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" || len(id) > maxRequestIDLen {
			id = uuid.NewString()
		}

		w.Header().Set(headerRequestID, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) serviceHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Service", ServiceHeader)
		w.Header().Set("X-Version", Version)
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)

		level := slog.LevelInfo
		switch {
		case m.Code >= http.StatusInternalServerError:
			level = slog.LevelError
		case m.Code >= http.StatusBadRequest:
			level = slog.LevelWarn
		}

		h.access.LogAttrs(r.Context(), level, "Request handled",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", m.Code),
			slog.Int64("bytes", m.Written),
			slog.Duration("duration", m.Duration),
			slog.String("remote", extractClientIP(r)),
			slog.String("user_agent", r.UserAgent()),
			slog.String("request_id", RequestID(r.Context())))
	})
}

func (h *Handler) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				if err == http.ErrAbortHandler {
					panic(err)
				}
				w.Header().Set("Connection", "close")
				h.serverErrorResponse(w, r, fmt.Errorf("%v", err))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimit keeps one token bucket per peer address. Idle clients are
// swept at most once a minute.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)
		now := time.Now()

		h.mu.Lock()
		if now.Sub(h.lastSweep) > time.Minute {
			for addr, c := range h.clients {
				if now.Sub(c.lastSeen) > 3*time.Minute {
					delete(h.clients, addr)
				}
			}
			h.lastSweep = now
		}

		c, found := h.clients[ip]
		if !found {
			c = &client{
				limiter: rate.NewLimiter(rate.Limit(h.config.Limiter.RPS), h.config.Limiter.Burst),
			}
			h.clients[ip] = c
		}
		c.lastSeen = now

		if !c.limiter.Allow() {
			h.mu.Unlock()
			h.rateLimitExceededResponse(w, r)
			return
		}
		h.mu.Unlock()

		next.ServeHTTP(w, r)
	})
}

// limitBody rejects declared oversize bodies and caps undeclared ones.
func (h *Handler) limitBody(next http.Handler) http.Handler {
	limit := h.config.MaxContentLength
	if limit <= 0 {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.ContentLength > limit {
			h.payloadTooLargeResponse(w, r)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, limit)
		next.ServeHTTP(w, r)
	})
}

type innerStatusKey struct{}

// timeoutHandler bounds handler run time by the server timeout and answers
// 503 with the JSON envelope when it fires.
func (h *Handler) timeoutHandler(next http.Handler) http.Handler {
	if h.timeout <= 0 {
		return next
	}

	body, err := h.marshal(errorBody{
		Error:   http.StatusText(http.StatusServiceUnavailable),
		Message: msgUnavailable,
		Code:    http.StatusServiceUnavailable,
	})
	if err != nil {
		body = []byte(msgUnavailable)
	}

	th := http.TimeoutHandler(recordInnerStatus(next), h.timeout, string(body))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		inner := new(atomic.Int32)
		ctx := context.WithValue(r.Context(), innerStatusKey{}, inner)
		m := httpsnoop.CaptureMetrics(th, w, r.WithContext(ctx))

		// A 503 the wrapped handler did not write is the timeout body.
		if m.Code == http.StatusServiceUnavailable && inner.Load() != http.StatusServiceUnavailable {
			h.logger.Error("Request timed out",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("timeout", h.timeout),
				slog.String("request_id", RequestID(r.Context())))
		}
	})
}

// recordInnerStatus stores the first status next writes into the counter
// placed on the request context by timeoutHandler.
func recordInnerStatus(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		inner, ok := r.Context().Value(innerStatusKey{}).(*atomic.Int32)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		wrapped := httpsnoop.Wrap(w, httpsnoop.Hooks{
			WriteHeader: func(nw httpsnoop.WriteHeaderFunc) httpsnoop.WriteHeaderFunc {
				return func(code int) {
					inner.CompareAndSwap(0, int32(code))
					nw(code)
				}
			},
			Write: func(nw httpsnoop.WriteFunc) httpsnoop.WriteFunc {
				return func(b []byte) (int, error) {
					inner.CompareAndSwap(0, http.StatusOK)
					return nw(b)
				}
			},
		})
		next.ServeHTTP(wrapped, r)
	})
}
