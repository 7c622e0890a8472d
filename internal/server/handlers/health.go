package handlers

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger reports backend storage liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	version string
	pinger  Pinger
}

// NewHealthHandler creates a health check handler. Pinger может быть
// nil: файловый бэкенд не имеет соединения, которое стоит проверять.
func NewHealthHandler(logger *slog.Logger, version string, pinger Pinger) *HealthHandler {
	if version == "" {
		version = "dev"
	}
	return &HealthHandler{
		logger:  logger,
		version: version,
		pinger:  pinger,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Storage string `json:"storage,omitempty"`
}

// Health обрабатывает GET /api/v1/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}

	if h.pinger != nil {
		if err := h.pinger.Ping(r.Context()); err != nil {
			h.logger.ErrorContext(r.Context(), "storage ping failed", slog.Any("error", err))
			resp.Status = "degraded"
			resp.Storage = "unavailable"
			sendJSON(h.logger, w, resp, http.StatusServiceUnavailable)
			return
		}
		resp.Storage = "ok"
	}

	sendJSON(h.logger, w, resp, http.StatusOK)
}
