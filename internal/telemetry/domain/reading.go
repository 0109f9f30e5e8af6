package telemetry

import (
	"context"
	"errors"
	"time"
)

// Stream classifies a reading as air-quality or stove-state telemetry.
type Stream string

const (
	StreamAir     Stream = "AIR"
	StreamStove   Stream = "STOVE"
	StreamUnknown Stream = "UNKNOWN"
)

// DeviceType maps a stream to the registry device type.
func (s Stream) DeviceType() string {
	switch s {
	case StreamAir:
		return "AIRNODE"
	case StreamStove:
		return "STOVENODE"
	default:
		return ""
	}
}

// Measurements holds the canonical measurement fields. Absent fields
// stay nil; zero is a real value for every metric here.
type Measurements struct {
	CO2          *float64 `json:"co2,omitempty"`
	CO           *float64 `json:"co,omitempty"`
	PM25         *float64 `json:"pm25,omitempty"`
	PM10         *float64 `json:"pm10,omitempty"`
	TemperatureC *float64 `json:"temperatureC,omitempty"`
	HumidityPct  *float64 `json:"humidityPct,omitempty"`
	StoveTempC   *float64 `json:"stoveTempC,omitempty"`
	FanOn        *bool    `json:"fanOn,omitempty"`
	BuzzerOn     *bool    `json:"buzzerOn,omitempty"`
	WindowOpen   *bool    `json:"windowOpen,omitempty"`
	Profile      *string  `json:"profile,omitempty"`
}

// Reading is the canonical form of one inbound message. Constructed
// once by the normalizer and immutable afterwards.
type Reading struct {
	Timestamp    time.Time    `json:"ts"`
	HomeID       string       `json:"homeId"`
	DeviceID     string       `json:"deviceId"`
	Stream       Stream       `json:"stream"`
	Measurements Measurements `json:"measurements"`
}

// Resolved reports whether the reading carries everything required for
// persistence. Rejecting unresolved readings is the router's job.
func (r Reading) Resolved() bool {
	return r.HomeID != "" && r.DeviceID != "" && r.Stream != StreamUnknown
}

// ErrAppend indicates the store rejected a reading.
var ErrAppend = errors.New("telemetry: append failed")

// Repository is the durable append-only telemetry store. Append must be
// safe under concurrent calls and tolerate out-of-order timestamps.
type Repository interface {
	Append(ctx context.Context, reading Reading) error
}

// Query loads persisted readings for the history API and reports.
type Query interface {
	ListByHome(ctx context.Context, homeID string, from, to time.Time, limit int) ([]Reading, error)
	ListByDevice(ctx context.Context, deviceID string, from, to time.Time, limit int) ([]Reading, error)
}
