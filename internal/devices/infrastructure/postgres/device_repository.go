package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	devices "homesafe-cloud/internal/devices/domain"
)

const defaultDevicesTable = "devices"

// DeviceRepository is a Postgres implementation of the device registry.
type DeviceRepository struct {
	db    *sql.DB
	table string
}

// DeviceOption configures the repository.
type DeviceOption func(*DeviceRepository)

// WithDeviceTable overrides the default table name.
func WithDeviceTable(table string) DeviceOption {
	return func(repo *DeviceRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// NewDeviceRepository constructs a repository.
func NewDeviceRepository(db *sql.DB, opts ...DeviceOption) *DeviceRepository {
	repo := &DeviceRepository{db: db, table: defaultDevicesTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Upsert creates or refreshes a registry entry. Idempotent and safe
// under concurrent calls for the same device id.
func (r *DeviceRepository) Upsert(ctx context.Context, deviceID, homeID, deviceType string) (*devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	device := devices.Device{DeviceID: deviceID, HomeID: homeID, DeviceType: deviceType}
	if err := device.Validate(); err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	device_id,
	home_id,
	device_type,
	last_seen_at
) VALUES (
	$1, $2, $3, NOW()
)
ON CONFLICT (device_id)
DO UPDATE SET
	home_id = EXCLUDED.home_id,
	device_type = EXCLUDED.device_type,
	last_seen_at = NOW(),
	updated_at = NOW()
RETURNING last_seen_at, created_at, updated_at`, r.table)

	if err := r.db.QueryRowContext(ctx, query, deviceID, homeID, deviceType).Scan(
		&device.LastSeenAt,
		&device.CreatedAt,
		&device.UpdatedAt,
	); err != nil {
		return nil, err
	}
	device.LastSeenAt = device.LastSeenAt.UTC()
	device.CreatedAt = device.CreatedAt.UTC()
	device.UpdatedAt = device.UpdatedAt.UTC()
	return &device, nil
}

// FindByDeviceID loads a device, or devices.ErrNotFound.
func (r *DeviceRepository) FindByDeviceID(ctx context.Context, deviceID string) (*devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if deviceID == "" {
		return nil, errors.New("device repo: empty device id")
	}

	query := fmt.Sprintf(`
SELECT device_id, home_id, device_type, last_seen_at, created_at, updated_at
FROM %s
WHERE device_id = $1
LIMIT 1`, r.table)

	var device devices.Device
	if err := r.db.QueryRowContext(ctx, query, deviceID).Scan(
		&device.DeviceID,
		&device.HomeID,
		&device.DeviceType,
		&device.LastSeenAt,
		&device.CreatedAt,
		&device.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, devices.ErrNotFound
		}
		return nil, err
	}
	normalizeTimes(&device)
	return &device, nil
}

// ListByHome loads the devices registered for a home.
func (r *DeviceRepository) ListByHome(ctx context.Context, homeID string) ([]devices.Device, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("device repo: nil db")
	}
	if homeID == "" {
		return nil, errors.New("device repo: empty home id")
	}

	query := fmt.Sprintf(`
SELECT device_id, home_id, device_type, last_seen_at, created_at, updated_at
FROM %s
WHERE home_id = $1
ORDER BY device_id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, homeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []devices.Device
	for rows.Next() {
		var device devices.Device
		if err := rows.Scan(
			&device.DeviceID,
			&device.HomeID,
			&device.DeviceType,
			&device.LastSeenAt,
			&device.CreatedAt,
			&device.UpdatedAt,
		); err != nil {
			return nil, err
		}
		normalizeTimes(&device)
		result = append(result, device)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func normalizeTimes(device *devices.Device) {
	device.LastSeenAt = device.LastSeenAt.UTC()
	device.CreatedAt = device.CreatedAt.UTC()
	device.UpdatedAt = device.UpdatedAt.UTC()
}
