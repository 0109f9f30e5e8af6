package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"homesafe-cloud/internal/auth"
	devices "homesafe-cloud/internal/devices/domain"
	telemetry "homesafe-cloud/internal/telemetry/domain"
)

// DeviceFinder resolves a device to its home for scope checks.
type DeviceFinder interface {
	FindByDeviceID(ctx context.Context, deviceID string) (*devices.Device, error)
}

// HistoryHandler serves persisted readings.
type HistoryHandler struct {
	query  telemetry.Query
	finder DeviceFinder
}

// NewHistoryHandler constructs a history handler.
func NewHistoryHandler(query telemetry.Query, finder DeviceFinder) (*HistoryHandler, error) {
	if query == nil {
		return nil, errors.New("telemetry history: nil query")
	}
	if finder == nil {
		return nil, errors.New("telemetry history: nil device finder")
	}
	return &HistoryHandler{query: query, finder: finder}, nil
}

// ServeHTTP handles GET /api/v1/readings?home=|device=&from=&to=&limit=.
func (h *HistoryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	homeID := params.Get("home")
	deviceID := params.Get("device")

	// Non-admin callers are pinned to the home their token names. An
	// absent identity (local development, unwrapped handler) leaves the
	// query parameters authoritative.
	if role := auth.RoleFromContext(r.Context()); role != "" && role != auth.RoleAdmin {
		tokenHome := auth.HomeIDFromContext(r.Context())
		switch {
		case deviceID != "":
			device, err := h.finder.FindByDeviceID(r.Context(), deviceID)
			if errors.Is(err, devices.ErrNotFound) || (err == nil && device.HomeID != tokenHome) {
				http.Error(w, "device not found", http.StatusNotFound)
				return
			}
			if err != nil {
				http.Error(w, "query error", http.StatusInternalServerError)
				return
			}
		case homeID == "":
			homeID = tokenHome
		case homeID != tokenHome:
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	if homeID == "" && deviceID == "" {
		http.Error(w, "home or device query parameter required", http.StatusBadRequest)
		return
	}

	from, to, err := parseRange(params.Get("from"), params.Get("to"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(params.Get("limit"))

	var readings []telemetry.Reading
	if deviceID != "" {
		readings, err = h.query.ListByDevice(r.Context(), deviceID, from, to, limit)
	} else {
		readings, err = h.query.ListByHome(r.Context(), homeID, from, to, limit)
	}
	if err != nil {
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []telemetry.Reading{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"readings": readings})
}

func parseRange(fromRaw, toRaw string) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.Add(-24 * time.Hour)
	if fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid from timestamp")
		}
		from = parsed
	}
	if toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			return time.Time{}, time.Time{}, errors.New("invalid to timestamp")
		}
		to = parsed
	}
	if !to.After(from) {
		return time.Time{}, time.Time{}, errors.New("to must be after from")
	}
	return from, to, nil
}
