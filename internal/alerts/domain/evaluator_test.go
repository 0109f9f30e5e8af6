package alerts

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	telemetry "homesafe-cloud/internal/telemetry/domain"
)

func f(v float64) *float64 { return &v }

func airReading(m telemetry.Measurements) telemetry.Reading {
	return telemetry.Reading{
		HomeID:       "HOME_01",
		DeviceID:     "AIR_HOME_01",
		Stream:       telemetry.StreamAir,
		Timestamp:    time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC),
		Measurements: m,
	}
}

func TestEvaluate_DangerShortCircuitsWarn(t *testing.T) {
	evaluator := NewEvaluator(DefaultThresholds())
	items := evaluator.Evaluate(airReading(telemetry.Measurements{CO2: f(1600)}))

	if len(items) != 1 {
		t.Fatalf("expected exactly one item, got %d", len(items))
	}
	item := items[0]
	if item.Type != MetricCO2 || item.Level != LevelDanger {
		t.Fatalf("expected CO2 danger, got %s %s", item.Type, item.Level)
	}
	if item.Value != 1600 {
		t.Fatalf("expected value 1600, got %v", item.Value)
	}
	if item.Limit != 1000 {
		t.Fatalf("expected limit 1000 on danger item, got %v", item.Limit)
	}
}

func TestEvaluate_WarnTier(t *testing.T) {
	evaluator := NewEvaluator(DefaultThresholds())

	items := evaluator.Evaluate(airReading(telemetry.Measurements{CO2: f(1200)}))
	if len(items) != 1 || items[0].Level != LevelWarn {
		t.Fatalf("expected CO2 warn, got %+v", items)
	}

	// CO and stove temperature alert at danger only by default.
	items = evaluator.Evaluate(airReading(telemetry.Measurements{CO: f(20)}))
	if len(items) != 0 {
		t.Fatalf("expected no CO warn item, got %+v", items)
	}
	items = evaluator.Evaluate(telemetry.Reading{Measurements: telemetry.Measurements{StoveTempC: f(200)}})
	if len(items) != 0 {
		t.Fatalf("expected no stove warn item, got %+v", items)
	}
	items = evaluator.Evaluate(airReading(telemetry.Measurements{CO: f(40)}))
	if len(items) != 1 || items[0].Level != LevelDanger {
		t.Fatalf("expected CO danger, got %+v", items)
	}
}

func TestEvaluate_BoundaryIsInclusive(t *testing.T) {
	evaluator := NewEvaluator(DefaultThresholds())

	items := evaluator.Evaluate(airReading(telemetry.Measurements{CO2: f(1000)}))
	if len(items) != 1 || items[0].Level != LevelWarn {
		t.Fatalf("expected warn at exact threshold, got %+v", items)
	}
	items = evaluator.Evaluate(airReading(telemetry.Measurements{CO2: f(1500)}))
	if len(items) != 1 || items[0].Level != LevelDanger {
		t.Fatalf("expected danger at exact threshold, got %+v", items)
	}
	items = evaluator.Evaluate(airReading(telemetry.Measurements{CO2: f(999.9)}))
	if len(items) != 0 {
		t.Fatalf("expected no items below warn, got %+v", items)
	}
}

func TestEvaluate_FixedMetricOrder(t *testing.T) {
	evaluator := NewEvaluator(DefaultThresholds())
	items := evaluator.Evaluate(airReading(telemetry.Measurements{
		CO2:  f(1700),
		CO:   f(50),
		PM25: f(40),
	}))

	if len(items) != 3 {
		t.Fatalf("expected three items, got %d", len(items))
	}
	wantOrder := []Metric{MetricCO2, MetricCO, MetricPM25}
	for i, metric := range wantOrder {
		if items[i].Type != metric {
			t.Fatalf("expected %s at position %d, got %s", metric, i, items[i].Type)
		}
	}
	if items[2].Level != LevelWarn || items[2].Limit != 35 {
		t.Fatalf("expected PM2.5 warn with limit 35, got %+v", items[2])
	}
}

func TestEvaluate_MissingValuesNeverAlert(t *testing.T) {
	evaluator := NewEvaluator(DefaultThresholds())
	items := evaluator.Evaluate(airReading(telemetry.Measurements{TemperatureC: f(22)}))
	if len(items) != 0 {
		t.Fatalf("expected no items, got %+v", items)
	}
}

func TestNewRecord_EmptyItemsEmitNothing(t *testing.T) {
	if record := NewRecord(airReading(telemetry.Measurements{}), nil); record != nil {
		t.Fatalf("expected nil record, got %+v", record)
	}
	record := NewRecord(airReading(telemetry.Measurements{}), []Item{{Type: MetricCO2, Level: LevelWarn, Value: 1100, Limit: 1000}})
	if record == nil {
		t.Fatal("expected record")
	}
	if record.HomeID != "HOME_01" || record.DeviceID != "AIR_HOME_01" || record.Stream != telemetry.StreamAir {
		t.Fatalf("record identity mismatch: %+v", record)
	}
}

func TestLoadThresholds_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "thresholds.yaml")
	content := []byte("co2:\n  warn: 800\n  danger: 1200\n  warn_tier: true\nstove_temp:\n  warn: 160\n  danger: 240\n  warn_tier: true\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	thresholds, err := LoadThresholds(path)
	if err != nil {
		t.Fatalf("load thresholds: %v", err)
	}
	if thresholds.CO2.Warn != 800 || thresholds.CO2.Danger != 1200 {
		t.Fatalf("expected co2 overlay, got %+v", thresholds.CO2)
	}
	if !thresholds.StoveTemp.WarnTier {
		t.Fatalf("expected stove warn tier enabled, got %+v", thresholds.StoveTemp)
	}
	// Untouched metrics keep their defaults.
	if thresholds.CO != DefaultThresholds().CO {
		t.Fatalf("expected default CO limits, got %+v", thresholds.CO)
	}
}

func TestLoadThresholds_EmptyPathReturnsDefaults(t *testing.T) {
	thresholds, err := LoadThresholds("")
	if err != nil {
		t.Fatalf("load thresholds: %v", err)
	}
	if thresholds != DefaultThresholds() {
		t.Fatalf("expected defaults, got %+v", thresholds)
	}
}

func TestLoadThresholds_MissingFile(t *testing.T) {
	if _, err := LoadThresholds(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
