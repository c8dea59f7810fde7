package handler

import (
	"log/slog"
	"net/http"
)

const (
	msgNotFound         = "The requested resource does not exist"
	msgInternal         = "An unexpected error occurred"
	msgMethodNotAllowed = "The method is not allowed for the requested URL."
	msgTooLarge         = "The data value transmitted exceeds the capacity limit."
	msgTooManyRequests  = "This user has exceeded an allotted request count. Try again later."
	msgUnavailable      = "The server is temporarily unable to service your request due to maintenance downtime or capacity problems. Please try again later."
)

type notFoundBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Path    string `json:"path"`
}

type serverErrorBody struct {
	Error       string `json:"error"`
	Message     string `json:"message"`
	ReferenceID string `json:"reference_id"`
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}

func (h *Handler) notFoundResponse(w http.ResponseWriter, r *http.Request) {
	h.logger.Warn("Resource not found",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestID(r.Context())))

	body := notFoundBody{
		Error:   http.StatusText(http.StatusNotFound),
		Message: msgNotFound,
		Path:    r.URL.Path,
	}
	if err := h.encodeJSON(w, http.StatusNotFound, body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// serverErrorResponse logs err with the request id and hides it from the client.
func (h *Handler) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ref := RequestID(r.Context())

	h.logger.Error("Internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("reference_id", ref),
		slog.String("error", err.Error()))

	body := serverErrorBody{
		Error:       http.StatusText(http.StatusInternalServerError),
		Message:     msgInternal,
		ReferenceID: ref,
	}
	if err := h.encodeJSON(w, http.StatusInternalServerError, body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

// errorResponse writes the generic {error, message, code} envelope.
func (h *Handler) errorResponse(w http.ResponseWriter, r *http.Request, status int, message string) {
	attrs := []any{
		slog.Int("status", status),
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.String("request_id", RequestID(r.Context())),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", attrs...)
	} else {
		h.logger.Warn("Request rejected", attrs...)
	}

	body := errorBody{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	}
	if err := h.encodeJSON(w, status, body); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (h *Handler) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	h.errorResponse(w, r, http.StatusMethodNotAllowed, msgMethodNotAllowed)
}

func (h *Handler) payloadTooLargeResponse(w http.ResponseWriter, r *http.Request) {
	h.errorResponse(w, r, http.StatusRequestEntityTooLarge, msgTooLarge)
}

func (h *Handler) rateLimitExceededResponse(w http.ResponseWriter, r *http.Request) {
	h.errorResponse(w, r, http.StatusTooManyRequests, msgTooManyRequests)
}
