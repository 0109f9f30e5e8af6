package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	alerts "homesafe-cloud/internal/alerts/domain"
)

const defaultAlertsTable = "alert_events"

// AlertEvent is one persisted alert item.
type AlertEvent struct {
	HomeID    string        `json:"homeId"`
	DeviceID  string        `json:"deviceId"`
	Stream    string        `json:"stream"`
	Timestamp time.Time     `json:"ts"`
	Type      alerts.Metric `json:"type"`
	Level     alerts.Level  `json:"level"`
	Value     float64       `json:"value"`
	Limit     float64       `json:"limit"`
}

// ListFilter restricts alert history queries.
type ListFilter struct {
	HomeID   string
	DeviceID string
	Level    alerts.Level
	From     time.Time
	To       time.Time
	Limit    int
}

// AlertRepository persists alert history, one row per alert item.
type AlertRepository struct {
	db    *sql.DB
	table string
}

// AlertOption configures the repository.
type AlertOption func(*AlertRepository)

// WithAlertsTable overrides the default table name.
func WithAlertsTable(table string) AlertOption {
	return func(repo *AlertRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewAlertRepository constructs a repository.
func NewAlertRepository(db *sql.DB, opts ...AlertOption) *AlertRepository {
	repo := &AlertRepository{db: db, table: defaultAlertsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Insert stores every item of one alert record.
func (r *AlertRepository) Insert(ctx context.Context, record alerts.Record) error {
	if r == nil || r.db == nil {
		return errors.New("alert repo: nil db")
	}
	if len(record.Items) == 0 {
		return nil
	}
	if record.HomeID == "" || record.DeviceID == "" {
		return errors.New("alert repo: missing home/device id")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	home_id,
	device_id,
	stream,
	ts,
	metric,
	level,
	value,
	limit_value
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)`, r.table)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, item := range record.Items {
		if _, err := stmt.ExecContext(
			ctx,
			record.HomeID,
			record.DeviceID,
			string(record.Stream),
			record.Timestamp,
			string(item.Type),
			string(item.Level),
			item.Value,
			item.Limit,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// List loads alert history matching the filter, newest first.
func (r *AlertRepository) List(ctx context.Context, filter ListFilter) ([]AlertEvent, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("alert repo: nil db")
	}
	limit := filter.Limit
	if limit <= 0 || limit > 10000 {
		limit = 500
	}

	query := fmt.Sprintf(`
SELECT home_id, device_id, stream, ts, metric, level, value, limit_value
FROM %s
WHERE ($1 = '' OR home_id = $1)
	AND ($2 = '' OR device_id = $2)
	AND ($3 = '' OR level = $3)
	AND ($4::timestamptz IS NULL OR ts >= $4)
	AND ($5::timestamptz IS NULL OR ts < $5)
ORDER BY ts DESC
LIMIT $6`, r.table)

	rows, err := r.db.QueryContext(
		ctx,
		query,
		filter.HomeID,
		filter.DeviceID,
		string(filter.Level),
		nullTime(filter.From),
		nullTime(filter.To),
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []AlertEvent
	for rows.Next() {
		var (
			event                 AlertEvent
			stream, metric, level string
		)
		if err := rows.Scan(
			&event.HomeID,
			&event.DeviceID,
			&stream,
			&event.Timestamp,
			&metric,
			&level,
			&event.Value,
			&event.Limit,
		); err != nil {
			return nil, err
		}
		event.Stream = stream
		event.Type = alerts.Metric(metric)
		event.Level = alerts.Level(level)
		event.Timestamp = event.Timestamp.UTC()
		result = append(result, event)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
