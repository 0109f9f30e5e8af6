package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"homesafe-cloud/internal/bus"
	devices "homesafe-cloud/internal/devices/domain"
	"homesafe-cloud/internal/observability/metrics"
)

// ControlCommand is an operator-issued device directive. Commands are
// addressed by topic, fire and forget: the only observable effect is
// the next reading reflecting the new state, if the device applies it.
type ControlCommand struct {
	DeviceID string         `json:"deviceId"`
	HomeID   string         `json:"homeId"`
	Command  map[string]any `json:"command"`
	IssuedAt time.Time      `json:"issuedAt"`
}

// Fanout is the live push sink consumed by the dispatcher.
type Fanout interface {
	PushCommand(homeID string, command any)
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Dispatcher publishes operator commands to the control topic of the
// target device's type.
type Dispatcher struct {
	registry  devices.Registry
	publisher bus.Publisher
	fanout    Fanout
	logger    *log.Logger
	clock     Clock
}

// DispatcherOption customizes the dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock assigns a clock.
func WithClock(clock Clock) DispatcherOption {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

// WithFanout assigns a live push sink for dispatched commands.
func WithFanout(fanout Fanout) DispatcherOption {
	return func(d *Dispatcher) {
		d.fanout = fanout
	}
}

// NewDispatcher constructs a command dispatcher.
func NewDispatcher(registry devices.Registry, publisher bus.Publisher, logger *log.Logger, opts ...DispatcherOption) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("commands: nil registry")
	}
	if publisher == nil {
		return nil, errors.New("commands: nil publisher")
	}
	if logger == nil {
		logger = log.Default()
	}
	dispatcher := &Dispatcher{
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		clock:     systemClock{},
	}
	for _, opt := range opts {
		opt(dispatcher)
	}
	return dispatcher, nil
}

// Dispatch resolves the device, publishes the command once to the
// device type's control topic and returns the published command. A
// non-empty scopeHome restricts dispatch to devices of that home; a
// device outside it is indistinguishable from a missing one. An
// unresolved device id fails with devices.ErrNotFound; a transport
// rejection fails with bus.ErrPublish. No delivery acknowledgment is
// awaited or modeled.
func (d *Dispatcher) Dispatch(ctx context.Context, deviceID string, command map[string]any, scopeHome string) (*ControlCommand, error) {
	if deviceID == "" {
		return nil, errors.New("commands: empty device id")
	}
	if len(command) == 0 {
		return nil, errors.New("commands: empty command")
	}

	device, err := d.registry.FindByDeviceID(ctx, deviceID)
	if err != nil {
		if !errors.Is(err, devices.ErrNotFound) {
			metrics.IncCommandDispatched(metrics.ResultError)
		}
		return nil, err
	}
	if scopeHome != "" && device.HomeID != scopeHome {
		return nil, fmt.Errorf("dispatch %s: %w", deviceID, devices.ErrNotFound)
	}

	cmd := &ControlCommand{
		DeviceID: device.DeviceID,
		HomeID:   device.HomeID,
		Command:  command,
		IssuedAt: d.clock.Now(),
	}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return nil, fmt.Errorf("commands: marshal: %w", err)
	}

	topic := bus.ControlTopic(device.DeviceType)
	if err := d.publisher.Publish(topic, payload); err != nil {
		metrics.IncCommandDispatched(metrics.ResultError)
		return nil, err
	}
	d.logger.Printf("commands: dispatched to %s device=%s", topic, device.DeviceID)
	metrics.IncCommandDispatched(metrics.ResultOK)

	if d.fanout != nil {
		d.fanout.PushCommand(device.HomeID, cmd)
	}
	return cmd, nil
}
