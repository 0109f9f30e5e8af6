package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	alerts "homesafe-cloud/internal/alerts/domain"
	"homesafe-cloud/internal/bus"
	devices "homesafe-cloud/internal/devices/domain"
	"homesafe-cloud/internal/observability/metrics"
	telemetry "homesafe-cloud/internal/telemetry/domain"
	"homesafe-cloud/internal/telemetry/normalize"
)

// Drop reasons reported on the ingest metrics.
const (
	dropMalformed   = "malformed"
	dropUnresolved  = "unresolved_identity"
	dropRegistry    = "registry"
	dropPersistence = "persistence"
)

// Fanout is the live push sink consumed by the router.
type Fanout interface {
	PushTelemetry(reading telemetry.Reading)
	PushAlert(record alerts.Record)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Router is the single entry point for inbound bus messages. It
// normalizes, persists, evaluates and fans out each message, isolating
// every failure to that one message.
type Router struct {
	normalizer *normalize.Normalizer
	evaluator  *alerts.Evaluator
	registry   devices.Registry
	store      telemetry.Repository
	fanout     Fanout
	publisher  bus.Publisher
	logger     *log.Logger
	clock      Clock
	origin     string
}

// RouterOption customizes the router.
type RouterOption func(*Router)

// WithClock assigns a clock.
func WithClock(clock Clock) RouterOption {
	return func(r *Router) {
		r.clock = clock
	}
}

// WithOrigin stamps derived alert records with an instance identifier
// so the router skips its own records when the broker echoes them back
// on the alerts topic. Without it every derived alert is fanned out a
// second time through the relay path.
func WithOrigin(origin string) RouterOption {
	return func(r *Router) {
		r.origin = origin
	}
}

// NewRouter constructs an ingestion router.
func NewRouter(
	normalizer *normalize.Normalizer,
	evaluator *alerts.Evaluator,
	registry devices.Registry,
	store telemetry.Repository,
	fanout Fanout,
	publisher bus.Publisher,
	logger *log.Logger,
	opts ...RouterOption,
) (*Router, error) {
	if normalizer == nil {
		return nil, errors.New("ingest: nil normalizer")
	}
	if evaluator == nil {
		return nil, errors.New("ingest: nil evaluator")
	}
	if registry == nil {
		return nil, errors.New("ingest: nil registry")
	}
	if store == nil {
		return nil, errors.New("ingest: nil store")
	}
	if fanout == nil {
		return nil, errors.New("ingest: nil fanout")
	}
	if publisher == nil {
		return nil, errors.New("ingest: nil publisher")
	}
	if logger == nil {
		logger = log.Default()
	}
	router := &Router{
		normalizer: normalizer,
		evaluator:  evaluator,
		registry:   registry,
		store:      store,
		fanout:     fanout,
		publisher:  publisher,
		logger:     logger,
		clock:      systemClock{},
	}
	for _, opt := range opts {
		opt(router)
	}
	return router, nil
}

// Subscribe attaches the router to its bus topics.
func (r *Router) Subscribe(manager *bus.Manager) error {
	for _, topic := range []string{bus.TopicTelemetryAir, bus.TopicTelemetryStove, bus.TopicAlerts} {
		if err := manager.Subscribe(topic, r.busHandler()); err != nil {
			return err
		}
	}
	return nil
}

func (r *Router) busHandler() bus.MessageHandler {
	return func(topic string, payload []byte) {
		r.OnMessage(context.Background(), topic, payload)
	}
}

// OnMessage processes one inbound bus message. Every error is terminal
// for that message only: logged, counted and dropped, never surfaced to
// the subscription.
func (r *Router) OnMessage(ctx context.Context, topic string, payload []byte) {
	start := r.clock.Now()

	// The alerts channel carries pre-formed alert records from external
	// producers; relay them without normalization or persistence.
	if topic == bus.TopicAlerts {
		r.relayAlert(payload, start)
		return
	}

	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		r.logger.Printf("ingest: malformed payload on %s: %v", topic, err)
		r.drop(dropMalformed, start)
		return
	}

	reading := r.normalizer.Normalize(topic, raw, start)
	if !reading.Resolved() {
		r.logger.Printf("ingest: unresolved reading on %s: home=%q device=%q stream=%s",
			topic, reading.HomeID, reading.DeviceID, reading.Stream)
		r.drop(dropUnresolved, start)
		return
	}

	if _, err := r.registry.Upsert(ctx, reading.DeviceID, reading.HomeID, reading.Stream.DeviceType()); err != nil {
		r.logger.Printf("ingest: registry upsert %s: %v", reading.DeviceID, err)
		r.drop(dropRegistry, start)
		return
	}

	if err := r.store.Append(ctx, reading); err != nil {
		r.logger.Printf("ingest: append %s: %v", reading.DeviceID, err)
		r.drop(dropPersistence, start)
		return
	}

	r.fanout.PushTelemetry(reading)

	if items := r.evaluator.Evaluate(reading); len(items) > 0 {
		r.emitAlert(reading, items)
	}
	metrics.ObserveIngest(metrics.ResultOK, r.clock.Now().Sub(start).Seconds())
}

func (r *Router) relayAlert(payload []byte, start time.Time) {
	var record alerts.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		r.logger.Printf("ingest: malformed alert relay: %v", err)
		r.drop(dropMalformed, start)
		return
	}
	if len(record.Items) == 0 {
		return
	}
	// Our own publication echoed back by the broker: already pushed at
	// emit time.
	if r.origin != "" && record.Origin == r.origin {
		return
	}
	r.fanout.PushAlert(record)
	metrics.IncAlertRelayed()
	metrics.ObserveIngest(metrics.ResultRelayed, r.clock.Now().Sub(start).Seconds())
}

// emitAlert publishes the derived record back onto the bus so that
// independent alert consumers can subscribe without coupling to the
// fan-out channel, then pushes it to connected clients.
func (r *Router) emitAlert(reading telemetry.Reading, items []alerts.Item) {
	record := alerts.NewRecord(reading, items)
	if record == nil {
		return
	}
	record.Origin = r.origin
	data, err := json.Marshal(record)
	if err != nil {
		r.logger.Printf("ingest: marshal alert %s: %v", reading.DeviceID, err)
		return
	}
	if err := r.publisher.Publish(bus.TopicAlerts, data); err != nil {
		r.logger.Printf("ingest: publish alert %s: %v", reading.DeviceID, err)
	}
	r.fanout.PushAlert(*record)
	for _, item := range items {
		metrics.IncAlertEmitted(string(item.Level))
	}
}

func (r *Router) drop(reason string, start time.Time) {
	metrics.IncIngestDropped(reason)
	metrics.ObserveIngest(metrics.ResultDropped, r.clock.Now().Sub(start).Seconds())
}
