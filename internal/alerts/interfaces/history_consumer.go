package interfaces

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	alerts "homesafe-cloud/internal/alerts/domain"
	"homesafe-cloud/internal/bus"
)

// Store persists alert records for the history API.
type Store interface {
	Insert(ctx context.Context, record alerts.Record) error
}

// HistoryConsumer subscribes to the alerts topic and persists every
// record it sees. It runs outside the ingestion router: the router
// never stores alerts itself, it only publishes them.
type HistoryConsumer struct {
	store  Store
	logger *log.Logger
}

// NewHistoryConsumer constructs a consumer.
func NewHistoryConsumer(store Store, logger *log.Logger) (*HistoryConsumer, error) {
	if store == nil {
		return nil, errors.New("alert history: nil store")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &HistoryConsumer{store: store, logger: logger}, nil
}

// Subscribe attaches the consumer to the alerts topic.
func (c *HistoryConsumer) Subscribe(manager *bus.Manager) error {
	return manager.Subscribe(bus.TopicAlerts, func(topic string, payload []byte) {
		c.OnMessage(context.Background(), payload)
	})
}

// OnMessage persists one alert record. Failures are logged and the
// record is dropped; alert history is best effort.
func (c *HistoryConsumer) OnMessage(ctx context.Context, payload []byte) {
	var record alerts.Record
	if err := json.Unmarshal(payload, &record); err != nil {
		c.logger.Printf("alert history: malformed record: %v", err)
		return
	}
	if len(record.Items) == 0 {
		return
	}
	if err := c.store.Insert(ctx, record); err != nil {
		c.logger.Printf("alert history: insert %s: %v", record.DeviceID, err)
	}
}
