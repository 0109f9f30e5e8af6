package alerts

import (
	telemetry "homesafe-cloud/internal/telemetry/domain"
)

// Limit holds the warn and danger thresholds for one metric. WarnTier
// controls whether the warn threshold participates in alerting; CO and
// stove temperature default to danger-only since a breach there is
// already serious.
type Limit struct {
	Warn     float64 `yaml:"warn"`
	Danger   float64 `yaml:"danger"`
	WarnTier bool    `yaml:"warn_tier"`
}

// Thresholds is the full alerting configuration.
type Thresholds struct {
	CO2       Limit `yaml:"co2"`
	CO        Limit `yaml:"co"`
	PM25      Limit `yaml:"pm25"`
	StoveTemp Limit `yaml:"stove_temp"`
}

// DefaultThresholds returns the stock safety limits.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CO2:       Limit{Warn: 1000, Danger: 1500, WarnTier: true},
		CO:        Limit{Warn: 15, Danger: 35},
		PM25:      Limit{Warn: 35, Danger: 100, WarnTier: true},
		StoveTemp: Limit{Warn: 180, Danger: 250},
	}
}

// Evaluator derives alert items from a canonical reading.
type Evaluator struct {
	thresholds Thresholds
}

// NewEvaluator constructs an evaluator.
func NewEvaluator(thresholds Thresholds) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate returns zero or more alert items in fixed metric order:
// CO2, CO, PM2.5, stove temperature. At most one item per metric;
// danger takes precedence over warn. Missing values never alert.
func (e *Evaluator) Evaluate(reading telemetry.Reading) []Item {
	var items []Item
	m := reading.Measurements
	items = appendBreach(items, MetricCO2, m.CO2, e.thresholds.CO2)
	items = appendBreach(items, MetricCO, m.CO, e.thresholds.CO)
	items = appendBreach(items, MetricPM25, m.PM25, e.thresholds.PM25)
	items = appendBreach(items, MetricStoveTemp, m.StoveTempC, e.thresholds.StoveTemp)
	return items
}

func appendBreach(items []Item, metric Metric, value *float64, limit Limit) []Item {
	if value == nil {
		return items
	}
	if limit.Danger > 0 && *value >= limit.Danger {
		return append(items, Item{Type: metric, Level: LevelDanger, Value: *value, Limit: limit.Warn})
	}
	if limit.WarnTier && limit.Warn > 0 && *value >= limit.Warn {
		return append(items, Item{Type: metric, Level: LevelWarn, Value: *value, Limit: limit.Warn})
	}
	return items
}
