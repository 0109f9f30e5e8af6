package integration_test

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	alerts "homesafe-cloud/internal/alerts/domain"
	alertspostgres "homesafe-cloud/internal/alerts/infrastructure/postgres"
	telemetry "homesafe-cloud/internal/telemetry/domain"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestAlertRepository_InsertAndList(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "alert_events") {
		t.Skip("alert_events missing; run migrations")
	}

	ctx := context.Background()
	homeID := "HOME_IT"
	ts := time.Now().UTC().Truncate(time.Second)
	_, _ = db.ExecContext(ctx, `DELETE FROM alert_events WHERE home_id = $1`, homeID)

	repo := alertspostgres.NewAlertRepository(db)

	record := alerts.Record{
		HomeID:    homeID,
		DeviceID:  "AIR_HOME_IT",
		Stream:    telemetry.StreamAir,
		Timestamp: ts,
		Items: []alerts.Item{
			{Type: alerts.MetricCO2, Level: alerts.LevelDanger, Value: 1700, Limit: 1000},
			{Type: alerts.MetricPM25, Level: alerts.LevelWarn, Value: 40, Limit: 35},
		},
	}
	if err := repo.Insert(ctx, record); err != nil {
		t.Fatalf("insert: %v", err)
	}

	all, err := repo.List(ctx, alertspostgres.ListFilter{HomeID: homeID})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected one row per item, got %d", len(all))
	}

	dangers, err := repo.List(ctx, alertspostgres.ListFilter{HomeID: homeID, Level: alerts.LevelDanger})
	if err != nil {
		t.Fatalf("list dangers: %v", err)
	}
	if len(dangers) != 1 || dangers[0].Type != alerts.MetricCO2 {
		t.Fatalf("unexpected danger rows: %+v", dangers)
	}
	if dangers[0].Value != 1700 || dangers[0].Limit != 1000 {
		t.Fatalf("unexpected danger values: %+v", dangers[0])
	}

	outside, err := repo.List(ctx, alertspostgres.ListFilter{HomeID: homeID, From: ts.Add(time.Hour)})
	if err != nil {
		t.Fatalf("list outside window: %v", err)
	}
	if len(outside) != 0 {
		t.Fatalf("expected no rows after window, got %d", len(outside))
	}
}

func TestAlertRepository_RejectsIncompleteRecord(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	repo := alertspostgres.NewAlertRepository(db)
	err = repo.Insert(context.Background(), alerts.Record{
		DeviceID:  "AIR_HOME_IT",
		Timestamp: time.Now().UTC(),
		Items:     []alerts.Item{{Type: alerts.MetricCO2, Level: alerts.LevelWarn, Value: 1100, Limit: 1000}},
	})
	if err == nil {
		t.Fatal("expected error for record without home id")
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
