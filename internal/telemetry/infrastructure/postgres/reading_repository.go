package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	telemetry "homesafe-cloud/internal/telemetry/domain"
)

const defaultReadingsTable = "readings"

// ReadingRepository is a Postgres implementation of the telemetry
// store. Rows are append-only; out-of-order timestamps are accepted.
type ReadingRepository struct {
	db    *sql.DB
	table string
}

// RepositoryOption configures the repository.
type RepositoryOption func(*ReadingRepository)

// WithTable overrides the default table name.
func WithTable(table string) RepositoryOption {
	return func(repo *ReadingRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewReadingRepository constructs a repository.
func NewReadingRepository(db *sql.DB, opts ...RepositoryOption) *ReadingRepository {
	repo := &ReadingRepository{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Append persists one canonical reading.
func (r *ReadingRepository) Append(ctx context.Context, reading telemetry.Reading) error {
	if r == nil || r.db == nil {
		return errors.New("reading repo: nil db")
	}
	if !reading.Resolved() {
		return errors.New("reading repo: unresolved reading")
	}
	if reading.Timestamp.IsZero() {
		return errors.New("reading repo: zero timestamp")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	home_id,
	device_id,
	stream,
	ts,
	co2,
	co,
	pm25,
	pm10,
	temperature_c,
	humidity_pct,
	stove_temp_c,
	fan_on,
	buzzer_on,
	window_open,
	profile
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15
)`, r.table)

	m := reading.Measurements
	_, err := r.db.ExecContext(
		ctx,
		query,
		reading.HomeID,
		reading.DeviceID,
		string(reading.Stream),
		reading.Timestamp,
		nullFloat(m.CO2),
		nullFloat(m.CO),
		nullFloat(m.PM25),
		nullFloat(m.PM10),
		nullFloat(m.TemperatureC),
		nullFloat(m.HumidityPct),
		nullFloat(m.StoveTempC),
		nullBool(m.FanOn),
		nullBool(m.BuzzerOn),
		nullBool(m.WindowOpen),
		nullString(m.Profile),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", telemetry.ErrAppend, err)
	}
	return nil
}

// ListByHome loads readings for a home within [from, to).
func (r *ReadingRepository) ListByHome(ctx context.Context, homeID string, from, to time.Time, limit int) ([]telemetry.Reading, error) {
	if homeID == "" {
		return nil, errors.New("reading repo: empty home id")
	}
	return r.list(ctx, "home_id", homeID, from, to, limit)
}

// ListByDevice loads readings for a device within [from, to).
func (r *ReadingRepository) ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]telemetry.Reading, error) {
	if deviceID == "" {
		return nil, errors.New("reading repo: empty device id")
	}
	return r.list(ctx, "device_id", deviceID, from, to, limit)
}

func (r *ReadingRepository) list(ctx context.Context, column, value string, from, to time.Time, limit int) ([]telemetry.Reading, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("reading repo: nil db")
	}
	if limit <= 0 || limit > 10000 {
		limit = 1000
	}

	query := fmt.Sprintf(`
SELECT home_id, device_id, stream, ts,
	co2, co, pm25, pm10, temperature_c, humidity_pct, stove_temp_c,
	fan_on, buzzer_on, window_open, profile
FROM %s
WHERE %s = $1 AND ts >= $2 AND ts < $3
ORDER BY ts DESC
LIMIT $4`, r.table, column)

	rows, err := r.db.QueryContext(ctx, query, value, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []telemetry.Reading
	for rows.Next() {
		var (
			reading telemetry.Reading
			stream  string
			co2, co, pm25, pm10, temperatureC, humidityPct, stoveTempC sql.NullFloat64
			fanOn, buzzerOn, windowOpen                                sql.NullBool
			profile                                                    sql.NullString
		)
		if err := rows.Scan(
			&reading.HomeID,
			&reading.DeviceID,
			&stream,
			&reading.Timestamp,
			&co2, &co, &pm25, &pm10, &temperatureC, &humidityPct, &stoveTempC,
			&fanOn, &buzzerOn, &windowOpen,
			&profile,
		); err != nil {
			return nil, err
		}
		reading.Stream = telemetry.Stream(stream)
		reading.Timestamp = reading.Timestamp.UTC()
		reading.Measurements = telemetry.Measurements{
			CO2:          floatPtr(co2),
			CO:           floatPtr(co),
			PM25:         floatPtr(pm25),
			PM10:         floatPtr(pm10),
			TemperatureC: floatPtr(temperatureC),
			HumidityPct:  floatPtr(humidityPct),
			StoveTempC:   floatPtr(stoveTempC),
			FanOn:        boolPtr(fanOn),
			BuzzerOn:     boolPtr(buzzerOn),
			WindowOpen:   boolPtr(windowOpen),
			Profile:      stringPtr(profile),
		}
		result = append(result, reading)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}

func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	return &v.Float64
}

func boolPtr(v sql.NullBool) *bool {
	if !v.Valid {
		return nil
	}
	return &v.Bool
}

func stringPtr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	return &v.String
}
