package handler

import (
	"net/http"
)

type indexResponse struct {
	Service string `json:"service"`
	Version string `json:"version"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type readyResponse struct {
	Ready  bool              `json:"ready"`
	Checks map[string]string `json:"checks,omitempty"`
}

type infoResponse struct {
	Debug       bool   `json:"debug"`
	Environment string `json:"environment"`
	RootPath    string `json:"root_path"`
	AppName     string `json:"app_name"`
	Version     string `json:"version"`
}

func (h *Handler) indexHandler(w http.ResponseWriter, r *http.Request) {
	resp := indexResponse{
		Service: ServiceName,
		Version: Version,
		Status:  "operational",
		Message: Greeting,
	}
	if err := h.encodeJSON(w, http.StatusOK, resp); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) healthHandler(w http.ResponseWriter, r *http.Request) {
	timestamp := h.config.DeployTimestamp
	if timestamp == "" {
		timestamp = "local-dev"
	}

	resp := healthResponse{Status: "healthy", Timestamp: timestamp}
	if err := h.encodeJSON(w, http.StatusOK, resp); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) readyHandler(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := readyResponse{Ready: true}

	if h.readiness != nil {
		report := h.readiness.Check(r.Context())
		if !report.Ready {
			status = http.StatusServiceUnavailable
			resp = readyResponse{Ready: false, Checks: report.Failures}
		}
	}

	if err := h.encodeJSON(w, status, resp); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}

func (h *Handler) infoHandler(w http.ResponseWriter, r *http.Request) {
	resp := infoResponse{
		Debug:       h.config.Debug,
		Environment: h.config.Env,
		RootPath:    h.rootPath,
		AppName:     h.config.AppName,
		Version:     Version,
	}
	if err := h.encodeJSON(w, http.StatusOK, resp); err != nil {
		h.serverErrorResponse(w, r, err)
	}
}
