package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"testing"
	"time"

	"homesafe-cloud/internal/bus"
	devices "homesafe-cloud/internal/devices/domain"
)

type stubRegistry struct {
	devices map[string]devices.Device
}

func (s *stubRegistry) Upsert(_ context.Context, deviceID, homeID, deviceType string) (*devices.Device, error) {
	return nil, errors.New("unexpected upsert")
}

func (s *stubRegistry) FindByDeviceID(_ context.Context, deviceID string) (*devices.Device, error) {
	device, ok := s.devices[deviceID]
	if !ok {
		return nil, fmt.Errorf("find %s: %w", deviceID, devices.ErrNotFound)
	}
	return &device, nil
}

func (s *stubRegistry) ListByHome(context.Context, string) ([]devices.Device, error) {
	return nil, nil
}

type stubPublisher struct {
	topic   string
	payload []byte
	err     error
}

func (s *stubPublisher) Publish(topic string, payload []byte) error {
	if s.err != nil {
		return s.err
	}
	s.topic = topic
	s.payload = payload
	return nil
}

type stubFanout struct {
	homeID  string
	command any
	calls   int
}

func (s *stubFanout) PushCommand(homeID string, command any) {
	s.homeID = homeID
	s.command = command
	s.calls++
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

var issuedAt = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newDispatcher(t *testing.T, registry *stubRegistry, publisher *stubPublisher, opts ...DispatcherOption) *Dispatcher {
	t.Helper()
	opts = append(opts, WithClock(fixedClock{now: issuedAt}))
	dispatcher, err := NewDispatcher(registry, publisher, log.New(io.Discard, "", 0), opts...)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	return dispatcher
}

func TestDispatch_PublishesToDeviceTypeTopic(t *testing.T) {
	registry := &stubRegistry{devices: map[string]devices.Device{
		"STOVE_HOME_02": {DeviceID: "STOVE_HOME_02", HomeID: "HOME_02", DeviceType: "STOVENODE"},
	}}
	publisher := &stubPublisher{}
	fanout := &stubFanout{}
	dispatcher := newDispatcher(t, registry, publisher, WithFanout(fanout))

	cmd, err := dispatcher.Dispatch(context.Background(), "STOVE_HOME_02", map[string]any{"buzzerOn": true}, "")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if publisher.topic != "control/stovenode" {
		t.Fatalf("expected control/stovenode, got %q", publisher.topic)
	}
	var published ControlCommand
	if err := json.Unmarshal(publisher.payload, &published); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if published.DeviceID != "STOVE_HOME_02" || published.HomeID != "HOME_02" {
		t.Fatalf("unexpected published command: %+v", published)
	}
	if v, ok := published.Command["buzzerOn"].(bool); !ok || !v {
		t.Fatalf("expected buzzerOn true, got %v", published.Command)
	}
	if !published.IssuedAt.Equal(issuedAt) {
		t.Fatalf("expected issuedAt %s, got %s", issuedAt, published.IssuedAt)
	}

	if !cmd.IssuedAt.Equal(issuedAt) || cmd.HomeID != "HOME_02" {
		t.Fatalf("unexpected returned command: %+v", cmd)
	}
	if fanout.calls != 1 || fanout.homeID != "HOME_02" {
		t.Fatalf("expected one fan-out push for HOME_02, got %d for %q", fanout.calls, fanout.homeID)
	}
}

func TestDispatch_UnknownDevice(t *testing.T) {
	dispatcher := newDispatcher(t, &stubRegistry{}, &stubPublisher{})

	_, err := dispatcher.Dispatch(context.Background(), "GHOST", map[string]any{"fanOn": true}, "")
	if !errors.Is(err, devices.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDispatch_PublishFailure(t *testing.T) {
	registry := &stubRegistry{devices: map[string]devices.Device{
		"AIR_HOME_01": {DeviceID: "AIR_HOME_01", HomeID: "HOME_01", DeviceType: "AIRNODE"},
	}}
	publisher := &stubPublisher{err: fmt.Errorf("publish control/airnode: %w", bus.ErrPublish)}
	fanout := &stubFanout{}
	dispatcher := newDispatcher(t, registry, publisher, WithFanout(fanout))

	_, err := dispatcher.Dispatch(context.Background(), "AIR_HOME_01", map[string]any{"fanOn": true}, "")
	if !errors.Is(err, bus.ErrPublish) {
		t.Fatalf("expected ErrPublish, got %v", err)
	}
	if fanout.calls != 0 {
		t.Fatalf("failed dispatch must not fan out")
	}
}

func TestDispatch_ScopedToHome(t *testing.T) {
	registry := &stubRegistry{devices: map[string]devices.Device{
		"AIR_HOME_01": {DeviceID: "AIR_HOME_01", HomeID: "HOME_01", DeviceType: "AIRNODE"},
	}}
	publisher := &stubPublisher{}
	dispatcher := newDispatcher(t, registry, publisher)

	_, err := dispatcher.Dispatch(context.Background(), "AIR_HOME_01", map[string]any{"fanOn": true}, "HOME_02")
	if !errors.Is(err, devices.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for out-of-scope device, got %v", err)
	}
	if publisher.topic != "" {
		t.Fatalf("out-of-scope dispatch must not publish, got %q", publisher.topic)
	}

	if _, err := dispatcher.Dispatch(context.Background(), "AIR_HOME_01", map[string]any{"fanOn": true}, "HOME_01"); err != nil {
		t.Fatalf("in-scope dispatch: %v", err)
	}
	if publisher.topic != "control/airnode" {
		t.Fatalf("expected control/airnode, got %q", publisher.topic)
	}
}

func TestDispatch_ValidatesInput(t *testing.T) {
	dispatcher := newDispatcher(t, &stubRegistry{}, &stubPublisher{})

	if _, err := dispatcher.Dispatch(context.Background(), "", map[string]any{"fanOn": true}, ""); err == nil {
		t.Fatal("expected error for empty device id")
	}
	if _, err := dispatcher.Dispatch(context.Background(), "AIR_HOME_01", nil, ""); err == nil {
		t.Fatal("expected error for empty command")
	}
}
