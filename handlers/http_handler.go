package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/girjesh-suryawanshi/secureshare-sub000/health"
	logger "github.com/girjesh-suryawanshi/secureshare-sub000/logging"
	"github.com/girjesh-suryawanshi/secureshare-sub000/services"
	"github.com/gorilla/mux"
)

type HealthResponse struct {
	Status           string    `json:"status"`
	ActiveFiles      int       `json:"activeFiles"`
	ConnectedClients int       `json:"connectedClients"`
	Instance         string    `json:"instance"`
	Timestamp        time.Time `json:"timestamp"`
}

type HealthHandler struct {
	transfers services.TransferService
	sessions  services.SessionService
	checks    []health.ReadinessCheck
	instance  string
	logger    logger.Logger
}

func NewHealthHandler(
	transfers services.TransferService,
	sessions services.SessionService,
	checks []health.ReadinessCheck,
	instance string,
	l logger.Logger,
) *HealthHandler {
	return &HealthHandler{
		transfers: transfers,
		sessions:  sessions,
		checks:    checks,
		instance:  instance,
		logger:    l,
	}
}

func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:           "ok",
		ActiveFiles:      h.transfers.ActiveTransfers(),
		ConnectedClients: h.sessions.ConnectedClients(),
		Instance:         h.instance,
		Timestamp:        time.Now().UTC(),
	}

	status := http.StatusOK
	for _, c := range h.checks {
		ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
		err := c.IsReady(ctx)
		cancel()
		if err != nil {
			h.logger.Warn("readiness check failed", "check", c.Name(), "error", err)
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Debug("health response write failed", "error", err)
	}
}

// NewHTTPRouter mounts the health endpoint and the websocket upgrade.
func NewHTTPRouter(healthHandler http.Handler, wsHandler http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/api/health", healthHandler).Methods(http.MethodGet)
	r.Handle("/ws", wsHandler).Methods(http.MethodGet)
	return r
}
