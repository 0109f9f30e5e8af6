package reports

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	alertrepo "homesafe-cloud/internal/alerts/infrastructure/postgres"
	telemetry "homesafe-cloud/internal/telemetry/domain"
)

// AlertLister loads persisted alert items for reports.
type AlertLister interface {
	List(ctx context.Context, filter alertrepo.ListFilter) ([]alertrepo.AlertEvent, error)
}

// Handler serves admin report downloads.
type Handler struct {
	readings telemetry.Query
	alerts   AlertLister
}

// NewHandler constructs a reports handler.
func NewHandler(readings telemetry.Query, alerts AlertLister) (*Handler, error) {
	if readings == nil {
		return nil, errors.New("reports: nil readings query")
	}
	if alerts == nil {
		return nil, errors.New("reports: nil alert lister")
	}
	return &Handler{readings: readings, alerts: alerts}, nil
}

// ServeHTTP handles:
//
//	GET /api/v1/reports/readings.xlsx?home=&day=
//	GET /api/v1/reports/daily.pdf?home=&day=
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	homeID := r.URL.Query().Get("home")
	if homeID == "" {
		http.Error(w, "home query parameter required", http.StatusBadRequest)
		return
	}
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if dayRaw := r.URL.Query().Get("day"); dayRaw != "" {
		parsed, err := time.Parse("2006-01-02", dayRaw)
		if err != nil {
			http.Error(w, "invalid day", http.StatusBadRequest)
			return
		}
		day = parsed
	}
	from := day
	to := day.Add(24 * time.Hour)

	readings, err := h.readings.ListByHome(r.Context(), homeID, from, to, 10000)
	if err != nil {
		http.Error(w, "query error", http.StatusInternalServerError)
		return
	}

	switch r.URL.Path {
	case "/api/v1/reports/readings.xlsx":
		data, err := BuildReadingsXLSX(homeID, readings)
		if err != nil {
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="readings-%s-%s.xlsx"`, homeID, day.Format("2006-01-02")))
		_, _ = w.Write(data)
	case "/api/v1/reports/daily.pdf":
		events, err := h.alerts.List(r.Context(), alertrepo.ListFilter{HomeID: homeID, From: from, To: to, Limit: 10000})
		if err != nil {
			http.Error(w, "query error", http.StatusInternalServerError)
			return
		}
		data, err := BuildDailySafetyPDF(homeID, day, readings, events)
		if err != nil {
			http.Error(w, "export error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="safety-%s-%s.pdf"`, homeID, day.Format("2006-01-02")))
		_, _ = w.Write(data)
	default:
		http.NotFound(w, r)
	}
}
