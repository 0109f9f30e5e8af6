package normalize

import (
	"math"
	"regexp"
	"strings"
	"time"

	telemetry "homesafe-cloud/internal/telemetry/domain"
)

// Field aliases accumulated across device generations. Kept as data so
// a new firmware alias is a one-line change.
var (
	timestampAliases = []string{"ts", "timestamp", "time"}
	homeIDAliases    = []string{"homeId", "home_id", "home", "h"}
	deviceIDAliases  = []string{"deviceId", "device_id", "device", "d", "id"}

	numberAliases = []struct {
		set     func(*telemetry.Measurements, float64)
		aliases []string
	}{
		{func(m *telemetry.Measurements, v float64) { m.CO2 = &v }, []string{"co2", "co2_ppm", "eco2"}},
		{func(m *telemetry.Measurements, v float64) { m.CO = &v }, []string{"co", "co_ppm"}},
		{func(m *telemetry.Measurements, v float64) { m.PM25 = &v }, []string{"pm25", "pm25_ugm3", "pm2_5", "pm2_5_ugm3"}},
		{func(m *telemetry.Measurements, v float64) { m.PM10 = &v }, []string{"pm10", "pm10_ugm3"}},
		{func(m *telemetry.Measurements, v float64) { m.TemperatureC = &v }, []string{"temperatureC", "temperature_c", "temperature", "temp_c", "tempC"}},
		{func(m *telemetry.Measurements, v float64) { m.HumidityPct = &v }, []string{"humidityPct", "humidity_pct", "humidity", "rh"}},
		{func(m *telemetry.Measurements, v float64) { m.StoveTempC = &v }, []string{"stoveTempC", "stove_temp_c", "stoveTemp", "stove_temp", "surface_temp_c"}},
	}

	boolAliases = []struct {
		set     func(*telemetry.Measurements, bool)
		aliases []string
	}{
		{func(m *telemetry.Measurements, v bool) { m.FanOn = &v }, []string{"fanOn", "fan_on", "fan"}},
		{func(m *telemetry.Measurements, v bool) { m.BuzzerOn = &v }, []string{"buzzerOn", "buzzer_on", "buzzer"}},
		{func(m *telemetry.Measurements, v bool) { m.WindowOpen = &v }, []string{"windowOpen", "window_open", "window"}},
	}

	profileAliases = []string{"profile", "cooking_profile", "cookingProfile"}
)

// legacyHomePattern matches the home code older devices embed in their
// device identifier, e.g. STOVE_HOME_07.
var legacyHomePattern = regexp.MustCompile(`HOME_\d{2}`)

// HomeIDResolver infers a home id from a device id when the payload
// carries none. Returns false when it cannot resolve.
type HomeIDResolver func(deviceID string) (string, bool)

// LegacyDeviceIDResolver extracts a HOME_<2-digit> code embedded in the
// device id. It is one resolver in a chain, not a baked-in convention;
// newer devices carry an explicit home id and never reach it.
func LegacyDeviceIDResolver(deviceID string) (string, bool) {
	match := legacyHomePattern.FindString(deviceID)
	if match == "" {
		return "", false
	}
	return match, true
}

// Normalizer converts a topic plus loosely structured payload into one
// canonical reading. Pure transformation, no I/O.
type Normalizer struct {
	resolvers []HomeIDResolver
}

// Option configures the normalizer.
type Option func(*Normalizer)

// WithHomeIDResolvers replaces the resolver chain.
func WithHomeIDResolvers(resolvers ...HomeIDResolver) Option {
	return func(n *Normalizer) {
		n.resolvers = resolvers
	}
}

// NewNormalizer constructs a normalizer with the legacy device-id
// resolver as the default chain.
func NewNormalizer(opts ...Option) *Normalizer {
	n := &Normalizer{resolvers: []HomeIDResolver{LegacyDeviceIDResolver}}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Normalize builds a canonical reading from topic and decoded payload.
// It never fails: unresolvable identity or stream is surfaced through
// the returned fields and rejected by the caller, not here. receivedAt
// substitutes for a missing or unparseable timestamp.
func (n *Normalizer) Normalize(topic string, raw map[string]any, receivedAt time.Time) telemetry.Reading {
	reading := telemetry.Reading{Timestamp: receivedAt.UTC()}
	if raw == nil {
		reading.Stream = telemetry.StreamUnknown
		return reading
	}

	// Accept both a nested payload object and a flat top level.
	fields := raw
	if nested, ok := raw["payload"].(map[string]any); ok {
		merged := make(map[string]any, len(raw)+len(nested))
		for k, v := range raw {
			merged[k] = v
		}
		for k, v := range nested {
			merged[k] = v
		}
		fields = merged
	}

	if ts, ok := firstTime(fields, timestampAliases); ok {
		reading.Timestamp = ts.UTC()
	}
	reading.DeviceID, _ = firstString(fields, deviceIDAliases)
	reading.HomeID, _ = firstString(fields, homeIDAliases)
	if reading.HomeID == "" && reading.DeviceID != "" {
		for _, resolve := range n.resolvers {
			if homeID, ok := resolve(reading.DeviceID); ok {
				reading.HomeID = homeID
				break
			}
		}
	}

	for _, field := range numberAliases {
		if v, ok := firstNumber(fields, field.aliases); ok {
			field.set(&reading.Measurements, v)
		}
	}
	for _, field := range boolAliases {
		if v, ok := firstBool(fields, field.aliases); ok {
			field.set(&reading.Measurements, v)
		}
	}
	if profile, ok := firstString(fields, profileAliases); ok {
		reading.Measurements.Profile = &profile
	}

	reading.Stream = resolveStream(topic, fields, reading.Measurements)
	return reading
}

// resolveStream applies the documented inference order: explicit field,
// topic hint, presence heuristic, UNKNOWN.
func resolveStream(topic string, fields map[string]any, m telemetry.Measurements) telemetry.Stream {
	if explicit, ok := firstString(fields, []string{"stream"}); ok {
		switch strings.ToUpper(explicit) {
		case string(telemetry.StreamAir):
			return telemetry.StreamAir
		case string(telemetry.StreamStove):
			return telemetry.StreamStove
		}
	}

	lowered := strings.ToLower(topic)
	if strings.Contains(lowered, "airnode") {
		return telemetry.StreamAir
	}
	if strings.Contains(lowered, "stovenode") {
		return telemetry.StreamStove
	}

	if m.StoveTempC != nil {
		return telemetry.StreamStove
	}
	if m.CO2 != nil || m.CO != nil || m.PM25 != nil || m.PM10 != nil {
		return telemetry.StreamAir
	}
	return telemetry.StreamUnknown
}

func firstString(fields map[string]any, aliases []string) (string, bool) {
	for _, alias := range aliases {
		value, ok := fields[alias]
		if !ok {
			continue
		}
		if s, ok := value.(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// firstNumber takes the first alias present that parses as a finite
// number. JSON numbers decode as float64; integer-typed values from
// non-JSON callers are accepted too.
func firstNumber(fields map[string]any, aliases []string) (float64, bool) {
	for _, alias := range aliases {
		value, ok := fields[alias]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case float64:
			if !math.IsNaN(v) && !math.IsInf(v, 0) {
				return v, true
			}
		case float32:
			return float64(v), true
		case int:
			return float64(v), true
		case int64:
			return float64(v), true
		}
	}
	return 0, false
}

// firstBool applies a strict boolean type check, no truthiness
// coercion: "1" or 1 never count as on.
func firstBool(fields map[string]any, aliases []string) (bool, bool) {
	for _, alias := range aliases {
		value, ok := fields[alias]
		if !ok {
			continue
		}
		if b, ok := value.(bool); ok {
			return b, true
		}
	}
	return false, false
}

func firstTime(fields map[string]any, aliases []string) (time.Time, bool) {
	for _, alias := range aliases {
		value, ok := fields[alias]
		if !ok {
			continue
		}
		switch v := value.(type) {
		case string:
			for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05"} {
				if ts, err := time.Parse(layout, v); err == nil {
					return ts, true
				}
			}
		case float64:
			if ts, ok := epochTime(int64(v)); ok {
				return ts, true
			}
		case int64:
			if ts, ok := epochTime(v); ok {
				return ts, true
			}
		}
	}
	return time.Time{}, false
}

// epochTime accepts milliseconds or seconds.
func epochTime(value int64) (time.Time, bool) {
	if value <= 0 {
		return time.Time{}, false
	}
	if value > 1_000_000_000_000 {
		return time.UnixMilli(value).UTC(), true
	}
	return time.Unix(value, 0).UTC(), true
}
