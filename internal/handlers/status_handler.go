package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/koios/eplayer/internal/playlist"
)

const serviceName = "eplayer"

// StatusHandler serves the local status API
type StatusHandler struct {
	controller *Controller
	geometry   string
	version    string
	logger     *zap.Logger
}

// NewStatusHandler creates a new status handler. geometry is reported as-is.
func NewStatusHandler(controller *Controller, geometry, version string, logger *zap.Logger) *StatusHandler {
	return &StatusHandler{
		controller: controller,
		geometry:   geometry,
		version:    version,
		logger:     logger,
	}
}

// RegisterRoutes registers the status routes
func (h *StatusHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withRequestID(h.handleHealth))
	mux.HandleFunc("/status", h.withRequestID(h.handleStatus))
	mux.HandleFunc("/refresh", h.withRequestID(h.handleRefresh))
}

func (h *StatusHandler) withRequestID(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next(w, r)
	}
}

// handleHealth handles GET /health
func (h *StatusHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": serviceName,
		"version": h.version,
	})
}

// handleStatus handles GET /status
func (h *StatusHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"geometry": h.geometry,
		"agent":    h.controller.Status(),
	})
}

// handleRefresh handles POST /refresh - re-enqueues the stored playlist of the local device
func (h *StatusHandler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	device := h.controller.display.DeviceID()
	h.logger.Info("Refresh requested",
		zap.String("device", device),
		zap.String("request_id", w.Header().Get("X-Request-ID")))

	if err := h.controller.Refresh(device); err != nil {
		if errors.Is(err, playlist.ErrNotFound) {
			http.Error(w, "No playlist stored", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to refresh playlist", zap.Error(err))
		http.Error(w, "Failed to refresh playlist", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "success",
		"device": device,
	})
}

func (h *StatusHandler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}
