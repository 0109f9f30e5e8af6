package http

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"homesafe-cloud/internal/auth"
	"homesafe-cloud/internal/bus"
	"homesafe-cloud/internal/commands"
	devices "homesafe-cloud/internal/devices/domain"
)

// Handler exposes command dispatch over HTTP.
type Handler struct {
	dispatcher *commands.Dispatcher
	logger     *log.Logger
}

// NewHandler constructs a command handler.
func NewHandler(dispatcher *commands.Dispatcher, logger *log.Logger) (*Handler, error) {
	if dispatcher == nil {
		return nil, errors.New("commands handler: nil dispatcher")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{dispatcher: dispatcher, logger: logger}, nil
}

type dispatchRequest struct {
	DeviceID string         `json:"deviceId"`
	Command  map[string]any `json:"command"`
}

// ServeHTTP handles POST /api/v1/commands.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body error", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	var req dispatchRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if req.DeviceID == "" || len(req.Command) == 0 {
		http.Error(w, "deviceId and command required", http.StatusBadRequest)
		return
	}

	// Non-admin callers may only command devices of their own home.
	scopeHome := ""
	if role := auth.RoleFromContext(r.Context()); role != "" && role != auth.RoleAdmin {
		scopeHome = auth.HomeIDFromContext(r.Context())
	}

	cmd, err := h.dispatcher.Dispatch(r.Context(), req.DeviceID, req.Command, scopeHome)
	if err != nil {
		switch {
		case errors.Is(err, devices.ErrNotFound):
			http.Error(w, "device not found", http.StatusNotFound)
		case errors.Is(err, bus.ErrPublish):
			h.logger.Printf("commands handler: publish: %v", err)
			http.Error(w, "publish error", http.StatusBadGateway)
		default:
			h.logger.Printf("commands handler: dispatch: %v", err)
			http.Error(w, "dispatch error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(cmd)
}
