package alerts

import (
	"time"

	telemetry "homesafe-cloud/internal/telemetry/domain"
)

// Metric identifies one alertable measurement.
type Metric string

const (
	MetricCO2       Metric = "CO2"
	MetricCO        Metric = "CO"
	MetricPM25      Metric = "PM2_5"
	MetricStoveTemp Metric = "STOVE_TEMP"
)

// Level is the severity of one breach.
type Level string

const (
	LevelWarn   Level = "warn"
	LevelDanger Level = "danger"
)

// Item is one threshold breach of one metric at one severity level.
type Item struct {
	Type  Metric  `json:"type"`
	Level Level   `json:"level"`
	Value float64 `json:"value"`
	Limit float64 `json:"limit"`
}

// Record is the derived evaluation result for one reading. A record is
// only ever built with at least one item; an empty evaluation emits
// nothing at all. Origin names the publisher so a consumer that also
// publishes can recognize its own records echoed back by the broker.
type Record struct {
	HomeID    string           `json:"homeId"`
	DeviceID  string           `json:"deviceId"`
	Stream    telemetry.Stream `json:"stream"`
	Timestamp time.Time        `json:"ts"`
	Origin    string           `json:"origin,omitempty"`
	Items     []Item           `json:"items"`
}

// NewRecord builds an alert record for a reading. Returns nil when
// items is empty.
func NewRecord(reading telemetry.Reading, items []Item) *Record {
	if len(items) == 0 {
		return nil
	}
	return &Record{
		HomeID:    reading.HomeID,
		DeviceID:  reading.DeviceID,
		Stream:    reading.Stream,
		Timestamp: reading.Timestamp,
		Items:     items,
	}
}
