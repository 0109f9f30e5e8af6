package fanout

import (
	"encoding/json"
	"log"
	"sync"

	alerts "homesafe-cloud/internal/alerts/domain"
	"homesafe-cloud/internal/observability/metrics"
	telemetry "homesafe-cloud/internal/telemetry/domain"
)

// Event types pushed to connected clients.
const (
	EventTelemetry = "telemetry"
	EventAlert     = "alert"
	EventCommand   = "command"
)

// ScopeAdmin receives every record regardless of home.
const ScopeAdmin = "admin"

// HomeScope returns the scope name for one home.
func HomeScope(homeID string) string {
	return "home:" + homeID
}

type envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

// Hub fans records out to connected clients by scope. Slow clients are
// dropped rather than blocking the pipeline.
type Hub struct {
	logger *log.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub constructs a hub.
func NewHub(logger *log.Logger) *Hub {
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{logger: logger, clients: make(map[*Client]struct{})}
}

// PushTelemetry pushes a persisted reading to its home and admins.
func (h *Hub) PushTelemetry(reading telemetry.Reading) {
	h.push(EventTelemetry, reading.HomeID, reading)
}

// PushAlert pushes an alert record to its home and admins.
func (h *Hub) PushAlert(record alerts.Record) {
	h.push(EventAlert, record.HomeID, record)
}

// PushCommand pushes a dispatched command to its home and admins.
func (h *Hub) PushCommand(homeID string, command any) {
	h.push(EventCommand, homeID, command)
}

func (h *Hub) push(event, homeID string, payload any) {
	if h == nil {
		return
	}
	data, err := json.Marshal(envelope{Type: event, Payload: payload})
	if err != nil {
		h.logger.Printf("fanout: marshal %s: %v", event, err)
		return
	}
	scope := HomeScope(homeID)

	h.mu.Lock()
	targets := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.inScope(scope) || client.inScope(ScopeAdmin) {
			targets = append(targets, client)
		}
	}
	h.mu.Unlock()

	for _, client := range targets {
		select {
		case client.send <- data:
		default:
			// Send buffer full: the client is too slow to keep up.
			h.logger.Printf("fanout: dropping slow client %s", client.remote)
			h.remove(client)
		}
	}
	metrics.IncFanoutMessage(event)
}

func (h *Hub) add(client *Client) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()
	metrics.SetFanoutClients(count)
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	count := len(h.clients)
	h.mu.Unlock()
	if ok {
		close(client.done)
	}
	metrics.SetFanoutClients(count)
}

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}
