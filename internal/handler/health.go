package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/conversations-api/pkg/logger"
)

const readyTimeout = 2 * time.Second

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventBus reports the state of the lifecycle event transport.
type EventBus interface {
	IsConnected() bool
	RecordStats(ctx context.Context) error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	store  Pinger
	events EventBus
	logger *logger.Logger
}

// NewHealthHandler creates a new health handler. events may be nil when
// lifecycle events are disabled.
func NewHealthHandler(store Pinger, events EventBus, log *logger.Logger) *HealthHandler {
	return &HealthHandler{
		store:  store,
		events: events,
		logger: log,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	checks := map[string]string{"store": "ok", "events": "disabled"}
	ready := true

	if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("store not reachable", zap.Error(err))
		checks["store"] = "unreachable"
		ready = false
	}

	if h.events != nil {
		if h.events.IsConnected() {
			checks["events"] = "ok"
			if err := h.events.RecordStats(ctx); err != nil {
				h.logger.Debug("failed to record stream stats", zap.Error(err))
			}
		} else {
			checks["events"] = "disconnected"
			ready = false
		}
	}

	status, code := "ready", http.StatusOK
	if !ready {
		status, code = "not ready", http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status": status,
		"checks": checks,
	})
}
