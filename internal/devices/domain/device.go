package devices

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a missing device record.
var ErrNotFound = errors.New("devices: not found")

// Device is the registry entry for one sensor node.
type Device struct {
	DeviceID   string    `json:"deviceId"`
	HomeID     string    `json:"homeId"`
	DeviceType string    `json:"deviceType"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Validate checks device invariants.
func (d Device) Validate() error {
	if d.DeviceID == "" {
		return errors.New("devices: empty device id")
	}
	if d.HomeID == "" {
		return errors.New("devices: empty home id")
	}
	if d.DeviceType == "" {
		return errors.New("devices: empty device type")
	}
	return nil
}

// Registry tracks device identity and home association. Upsert must be
// idempotent and safe under concurrent calls for the same device id.
type Registry interface {
	Upsert(ctx context.Context, deviceID, homeID, deviceType string) (*Device, error)
	FindByDeviceID(ctx context.Context, deviceID string) (*Device, error)
	ListByHome(ctx context.Context, homeID string) ([]Device, error)
}
