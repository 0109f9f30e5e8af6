package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "homesafe_"

	ResultOK      = "ok"
	ResultError   = "error"
	ResultDropped = "dropped"
	ResultRelayed = "relayed"
)

var (
	registerOnce sync.Once

	ingestMessages *prometheus.CounterVec
	ingestDropped  *prometheus.CounterVec
	ingestLatency  *prometheus.HistogramVec

	alertsEmitted *prometheus.CounterVec
	alertsRelayed prometheus.Counter

	commandsDispatched *prometheus.CounterVec

	fanoutClients  prometheus.Gauge
	fanoutMessages *prometheus.CounterVec
)

// Init registers observability metrics. Safe to call more than once.
func Init() {
	registerOnce.Do(func() {
		ingestMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_messages_total",
				Help: "Total inbound bus messages by result",
			},
			[]string{"result"},
		)
		ingestDropped = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "ingest_dropped_total",
				Help: "Total dropped messages by reason",
			},
			[]string{"reason"},
		)
		ingestLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "ingest_latency_seconds",
				Help:    "Per-message ingestion latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		alertsEmitted = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_emitted_total",
				Help: "Total alert items emitted by level",
			},
			[]string{"level"},
		)
		alertsRelayed = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "alerts_relayed_total",
				Help: "Total pre-formed alerts relayed from the bus",
			},
		)

		commandsDispatched = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "commands_dispatched_total",
				Help: "Total control commands dispatched by result",
			},
			[]string{"result"},
		)

		fanoutClients = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "fanout_clients",
				Help: "Connected live fan-out clients",
			},
		)
		fanoutMessages = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "fanout_messages_total",
				Help: "Total fan-out messages by event type",
			},
			[]string{"event"},
		)

		prometheus.MustRegister(
			ingestMessages,
			ingestDropped,
			ingestLatency,
			alertsEmitted,
			alertsRelayed,
			commandsDispatched,
			fanoutClients,
			fanoutMessages,
		)
	})
}

// ObserveIngest records one processed message.
func ObserveIngest(result string, seconds float64) {
	if ingestMessages == nil {
		return
	}
	ingestMessages.WithLabelValues(result).Inc()
	ingestLatency.WithLabelValues(result).Observe(seconds)
}

// IncIngestDropped records one dropped message.
func IncIngestDropped(reason string) {
	if ingestDropped == nil {
		return
	}
	ingestDropped.WithLabelValues(reason).Inc()
}

// IncAlertEmitted records one emitted alert item.
func IncAlertEmitted(level string) {
	if alertsEmitted == nil {
		return
	}
	alertsEmitted.WithLabelValues(level).Inc()
}

// IncAlertRelayed records one relayed pre-formed alert.
func IncAlertRelayed() {
	if alertsRelayed == nil {
		return
	}
	alertsRelayed.Inc()
}

// IncCommandDispatched records one dispatch attempt.
func IncCommandDispatched(result string) {
	if commandsDispatched == nil {
		return
	}
	commandsDispatched.WithLabelValues(result).Inc()
}

// SetFanoutClients updates the connected client gauge.
func SetFanoutClients(n int) {
	if fanoutClients == nil {
		return
	}
	fanoutClients.Set(float64(n))
}

// IncFanoutMessage records one fan-out push.
func IncFanoutMessage(event string) {
	if fanoutMessages == nil {
		return
	}
	fanoutMessages.WithLabelValues(event).Inc()
}
