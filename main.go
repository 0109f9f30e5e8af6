package main

import (
	"bufio"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	alerts "homesafe-cloud/internal/alerts/domain"
	alertrepo "homesafe-cloud/internal/alerts/infrastructure/postgres"
	alertinterfaces "homesafe-cloud/internal/alerts/interfaces"
	alerthttp "homesafe-cloud/internal/alerts/interfaces/http"
	"homesafe-cloud/internal/auth"
	"homesafe-cloud/internal/bus"
	"homesafe-cloud/internal/commands"
	commandshttp "homesafe-cloud/internal/commands/interfaces/http"
	devicesrepo "homesafe-cloud/internal/devices/infrastructure/postgres"
	deviceshttp "homesafe-cloud/internal/devices/interfaces/http"
	"homesafe-cloud/internal/fanout"
	"homesafe-cloud/internal/ingest"
	"homesafe-cloud/internal/observability/metrics"
	"homesafe-cloud/internal/reports"
	telemetryrepo "homesafe-cloud/internal/telemetry/infrastructure/postgres"
	telemetryhttp "homesafe-cloud/internal/telemetry/interfaces/http"
	"homesafe-cloud/internal/telemetry/normalize"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg := loadConfig()
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()

	thresholds, err := alerts.LoadThresholds(cfg.ThresholdsPath)
	if err != nil {
		logger.Fatalf("thresholds config error: %v", err)
	}

	readingRepo := telemetryrepo.NewReadingRepository(db)
	deviceRepo := devicesrepo.NewDeviceRepository(db)
	alertRepo := alertrepo.NewAlertRepository(db)

	hub := fanout.NewHub(logger)

	manager, err := bus.NewManager(cfg.BrokerURL, cfg.ClientID, logger)
	if err != nil {
		logger.Fatalf("bus manager error: %v", err)
	}
	if err := manager.Connect(); err != nil {
		logger.Fatalf("bus connect error: %v", err)
	}
	defer manager.Disconnect()

	router, err := ingest.NewRouter(
		normalize.NewNormalizer(),
		alerts.NewEvaluator(thresholds),
		deviceRepo,
		readingRepo,
		hub,
		manager,
		logger,
		ingest.WithOrigin(cfg.ClientID),
	)
	if err != nil {
		logger.Fatalf("ingest router error: %v", err)
	}
	if err := router.Subscribe(manager); err != nil {
		logger.Fatalf("ingest subscribe error: %v", err)
	}

	// Alert history runs as an independent alerts-topic consumer on its
	// own connection, exactly like any external alert-consuming system.
	historyManager, err := bus.NewManager(cfg.BrokerURL, cfg.ClientID+"-alerts", logger)
	if err != nil {
		logger.Fatalf("history bus manager error: %v", err)
	}
	if err := historyManager.Connect(); err != nil {
		logger.Fatalf("history bus connect error: %v", err)
	}
	defer historyManager.Disconnect()

	historyConsumer, err := alertinterfaces.NewHistoryConsumer(alertRepo, logger)
	if err != nil {
		logger.Fatalf("alert history error: %v", err)
	}
	if err := historyConsumer.Subscribe(historyManager); err != nil {
		logger.Fatalf("alert history subscribe error: %v", err)
	}

	dispatcher, err := commands.NewDispatcher(deviceRepo, manager, logger, commands.WithFanout(hub))
	if err != nil {
		logger.Fatalf("command dispatcher error: %v", err)
	}
	commandHandler, err := commandshttp.NewHandler(dispatcher, logger)
	if err != nil {
		logger.Fatalf("command handler error: %v", err)
	}
	deviceHandler, err := deviceshttp.NewHandler(deviceRepo)
	if err != nil {
		logger.Fatalf("device handler error: %v", err)
	}
	historyHandler, err := telemetryhttp.NewHistoryHandler(readingRepo, deviceRepo)
	if err != nil {
		logger.Fatalf("telemetry history handler error: %v", err)
	}
	alertHandler, err := alerthttp.NewHandler(alertRepo)
	if err != nil {
		logger.Fatalf("alert handler error: %v", err)
	}
	reportHandler, err := reports.NewHandler(readingRepo, alertRepo)
	if err != nil {
		logger.Fatalf("report handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/commands", commandHandler)
	mux.Handle("/api/v1/devices", deviceHandler)
	mux.Handle("/api/v1/devices/", deviceHandler)
	mux.Handle("/api/v1/readings", historyHandler)
	mux.Handle("/api/v1/alerts", alertHandler)
	mux.Handle("/api/v1/reports/readings.xlsx", reportHandler)
	mux.Handle("/api/v1/reports/daily.pdf", reportHandler)
	mux.Handle("/ws", fanout.NewHandler(hub))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	go func() {
		logger.Printf("http listening on %s", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	logger.Printf("shutting down")
	_ = server.Close()
}

type config struct {
	DatabaseURL    string
	BrokerURL      string
	ClientID       string
	HTTPAddr       string
	JWTSecret      string
	ThresholdsPath string
}

func loadConfig() config {
	cfg := config{
		DatabaseURL:    getenvDefault("DATABASE_URL", getenvDefault("PG_DSN", "")),
		BrokerURL:      getenvDefault("MQTT_BROKER_URL", "tcp://localhost:1883"),
		ClientID:       getenvDefault("MQTT_CLIENT_ID", "homesafe-backend"),
		HTTPAddr:       getenvDefault("HTTP_ADDR", ":8080"),
		JWTSecret:      getenvDefault("AUTH_JWT_SECRET", getenvDefault("JWT_SECRET", "")),
		ThresholdsPath: getenvDefault("ALERT_THRESHOLDS_CONFIG", ""),
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	if cfg.JWTSecret == "" {
		log.Fatal("AUTH_JWT_SECRET is required")
	}
	return cfg
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// Hijack passes the underlying connection through so the websocket
// upgrade keeps working behind the logging middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return hijacker.Hijack()
}
