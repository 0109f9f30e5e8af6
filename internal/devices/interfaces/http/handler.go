package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"homesafe-cloud/internal/auth"
	devices "homesafe-cloud/internal/devices/domain"
)

// Handler serves the device registry over HTTP.
type Handler struct {
	registry devices.Registry
}

// NewHandler constructs a device handler.
func NewHandler(registry devices.Registry) (*Handler, error) {
	if registry == nil {
		return nil, errors.New("devices handler: nil registry")
	}
	return &Handler{registry: registry}, nil
}

// ServeHTTP handles:
//
//	GET /api/v1/devices?home=<homeId>
//	GET /api/v1/devices/<deviceId>
//	PUT /api/v1/devices/<deviceId>
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	deviceID := strings.TrimPrefix(r.URL.Path, "/api/v1/devices")
	deviceID = strings.Trim(deviceID, "/")

	switch {
	case r.Method == http.MethodGet && deviceID == "":
		h.list(w, r)
	case r.Method == http.MethodGet:
		h.get(w, r, deviceID)
	case r.Method == http.MethodPut && deviceID != "":
		h.upsert(w, r, deviceID)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	homeID := r.URL.Query().Get("home")
	// Non-admin callers only ever list their own home.
	if role := auth.RoleFromContext(r.Context()); role != "" && role != auth.RoleAdmin {
		tokenHome := auth.HomeIDFromContext(r.Context())
		switch {
		case homeID == "":
			homeID = tokenHome
		case homeID != tokenHome:
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	if homeID == "" {
		http.Error(w, "home query parameter required", http.StatusBadRequest)
		return
	}
	result, err := h.registry.ListByHome(r.Context(), homeID)
	if err != nil {
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if result == nil {
		result = []devices.Device{}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"devices": result})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request, deviceID string) {
	device, err := h.registry.FindByDeviceID(r.Context(), deviceID)
	if err != nil {
		if errors.Is(err, devices.ErrNotFound) {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	// A foreign home's device is indistinguishable from a missing one.
	if role := auth.RoleFromContext(r.Context()); role != "" && role != auth.RoleAdmin {
		if device.HomeID != auth.HomeIDFromContext(r.Context()) {
			http.Error(w, "device not found", http.StatusNotFound)
			return
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(device)
}

type upsertRequest struct {
	HomeID     string `json:"homeId"`
	DeviceType string `json:"deviceType"`
}

func (h *Handler) upsert(w http.ResponseWriter, r *http.Request, deviceID string) {
	var req upsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()
	if req.HomeID == "" || req.DeviceType == "" {
		http.Error(w, "homeId and deviceType required", http.StatusBadRequest)
		return
	}

	device, err := h.registry.Upsert(r.Context(), deviceID, req.HomeID, strings.ToUpper(req.DeviceType))
	if err != nil {
		http.Error(w, "upsert error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(device)
}
