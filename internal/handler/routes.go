package handler

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// Routes returns the router wrapped in the full middleware chain.
func (h *Handler) Routes() http.Handler {
	router := httprouter.New()

	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.NotFound = http.HandlerFunc(h.notFoundResponse)
	router.MethodNotAllowed = http.HandlerFunc(h.methodNotAllowedResponse)

	h.get(router, "/", h.indexHandler)
	h.get(router, "/health", h.healthHandler)
	h.get(router, "/ready", h.readyHandler)
	h.get(router, "/info", h.infoHandler)

	if h.metrics != nil {
		h.get(router, "/metrics", h.metrics.Handler().ServeHTTP)
	}

	return h.Middleware(router)
}

func (h *Handler) get(router *httprouter.Router, path string, fn http.HandlerFunc) {
	router.HandlerFunc(http.MethodGet, path, fn)
	router.HandlerFunc(http.MethodHead, path, fn)
}

// Middleware wraps next in the chain applied to every route, outermost first.
func (h *Handler) Middleware(next http.Handler) http.Handler {
	inner := h.limitBody(h.timeoutHandler(next))
	if h.config.Limiter.Enabled {
		inner = h.rateLimit(inner)
	}
	inner = h.recoverPanic(inner)
	if h.metrics != nil {
		inner = h.metrics.Instrument(inner)
	}

	return h.requestID(h.serviceHeaders(h.logRequests(inner)))
}
