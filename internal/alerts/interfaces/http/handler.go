package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	alerts "homesafe-cloud/internal/alerts/domain"
	alertrepo "homesafe-cloud/internal/alerts/infrastructure/postgres"
	"homesafe-cloud/internal/auth"
)

// Lister loads persisted alert items.
type Lister interface {
	List(ctx context.Context, filter alertrepo.ListFilter) ([]alertrepo.AlertEvent, error)
}

// Handler serves alert history.
type Handler struct {
	repo Lister
}

// NewHandler constructs an alert history handler.
func NewHandler(repo Lister) (*Handler, error) {
	if repo == nil {
		return nil, errors.New("alerts handler: nil repo")
	}
	return &Handler{repo: repo}, nil
}

// ServeHTTP handles GET /api/v1/alerts?home=&device=&level=&from=&to=&limit=.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	params := r.URL.Query()
	filter := alertrepo.ListFilter{
		HomeID:   params.Get("home"),
		DeviceID: params.Get("device"),
	}
	// Non-admin callers only ever see their own home's history; a
	// foreign device filter then matches nothing.
	if role := auth.RoleFromContext(r.Context()); role != "" && role != auth.RoleAdmin {
		tokenHome := auth.HomeIDFromContext(r.Context())
		switch {
		case filter.HomeID == "":
			filter.HomeID = tokenHome
		case filter.HomeID != tokenHome:
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
	}
	if level := params.Get("level"); level != "" {
		switch alerts.Level(level) {
		case alerts.LevelWarn, alerts.LevelDanger:
			filter.Level = alerts.Level(level)
		default:
			http.Error(w, "invalid level", http.StatusBadRequest)
			return
		}
	}
	if fromRaw := params.Get("from"); fromRaw != "" {
		parsed, err := time.Parse(time.RFC3339, fromRaw)
		if err != nil {
			http.Error(w, "invalid from timestamp", http.StatusBadRequest)
			return
		}
		filter.From = parsed
	}
	if toRaw := params.Get("to"); toRaw != "" {
		parsed, err := time.Parse(time.RFC3339, toRaw)
		if err != nil {
			http.Error(w, "invalid to timestamp", http.StatusBadRequest)
			return
		}
		filter.To = parsed
	}
	filter.Limit, _ = strconv.Atoi(params.Get("limit"))

	events, err := h.repo.List(r.Context(), filter)
	if err != nil {
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}
	if events == nil {
		events = []alertrepo.AlertEvent{}
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"alerts": events})
}
