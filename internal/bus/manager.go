package bus

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ErrPublish indicates the transport rejected a publish. Delivery is
// never guaranteed; a nil error only means the broker accepted the
// message.
var ErrPublish = errors.New("bus: publish failed")

// MessageHandler processes one inbound message.
type MessageHandler func(topic string, payload []byte)

// Publisher is the outbound half of the bus.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// Manager owns a single MQTT connection with explicit lifecycle. It is
// safe for concurrent use; paho serializes handler invocations per
// subscription while publishes may happen from any goroutine.
type Manager struct {
	opts    *mqtt.ClientOptions
	client  mqtt.Client
	timeout time.Duration
	qos     byte
	logger  *log.Logger

	mu   sync.Mutex
	subs map[string]MessageHandler
}

// ManagerOption configures the manager.
type ManagerOption func(*Manager)

// WithTimeout overrides the default token wait timeout.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithQoS overrides the default QoS level.
func WithQoS(qos byte) ManagerOption {
	return func(m *Manager) {
		if qos <= 2 {
			m.qos = qos
		}
	}
}

// NewManager constructs a bus manager for the given broker URL.
func NewManager(brokerURL, clientID string, logger *log.Logger, opts ...ManagerOption) (*Manager, error) {
	if brokerURL == "" {
		return nil, errors.New("bus: empty broker url")
	}
	if clientID == "" {
		return nil, errors.New("bus: empty client id")
	}
	if logger == nil {
		logger = log.Default()
	}

	manager := &Manager{
		timeout: 10 * time.Second,
		qos:     1,
		logger:  logger,
		subs:    make(map[string]MessageHandler),
	}
	for _, opt := range opts {
		opt(manager)
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetOrderMatters(false)
	clientOpts.OnConnect = func(client mqtt.Client) {
		logger.Printf("bus: connected to %s", brokerURL)
		manager.resubscribe(client)
	}
	clientOpts.OnConnectionLost = func(_ mqtt.Client, err error) {
		logger.Printf("bus: connection lost: %v", err)
	}
	manager.opts = clientOpts
	return manager, nil
}

// Connect establishes the broker connection and blocks until it is up
// or the timeout elapses.
func (m *Manager) Connect() error {
	if m == nil {
		return errors.New("bus: nil manager")
	}
	m.client = mqtt.NewClient(m.opts)
	token := m.client.Connect()
	if !token.WaitTimeout(m.timeout) {
		return errors.New("bus: connect timeout")
	}
	return token.Error()
}

// Disconnect closes the connection, allowing in-flight work to finish.
func (m *Manager) Disconnect() {
	if m == nil || m.client == nil {
		return
	}
	m.client.Disconnect(250)
}

// Publish hands a message to the transport. Best effort: a nil return
// means accepted by the broker, never delivered.
func (m *Manager) Publish(topic string, payload []byte) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("%w: not connected", ErrPublish)
	}
	if topic == "" {
		return fmt.Errorf("%w: empty topic", ErrPublish)
	}
	token := m.client.Publish(topic, m.qos, false, payload)
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("%w: timeout on %s", ErrPublish, topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %v", ErrPublish, err)
	}
	return nil
}

// Subscribe registers a handler for a topic filter. Subscriptions are
// replayed after reconnect.
func (m *Manager) Subscribe(filter string, handler MessageHandler) error {
	if m == nil || m.client == nil {
		return errors.New("bus: not connected")
	}
	if filter == "" {
		return errors.New("bus: empty topic filter")
	}
	if handler == nil {
		return errors.New("bus: nil handler")
	}

	m.mu.Lock()
	m.subs[filter] = handler
	m.mu.Unlock()

	token := m.client.Subscribe(filter, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(m.timeout) {
		return fmt.Errorf("bus: subscribe timeout on %s", filter)
	}
	return token.Error()
}

func (m *Manager) resubscribe(client mqtt.Client) {
	m.mu.Lock()
	subs := make(map[string]MessageHandler, len(m.subs))
	for filter, handler := range m.subs {
		subs[filter] = handler
	}
	m.mu.Unlock()

	for filter, handler := range subs {
		h := handler
		token := client.Subscribe(filter, m.qos, func(_ mqtt.Client, msg mqtt.Message) {
			h(msg.Topic(), msg.Payload())
		})
		if token.WaitTimeout(m.timeout) && token.Error() != nil {
			m.logger.Printf("bus: resubscribe %s: %v", filter, token.Error())
		}
	}
}
