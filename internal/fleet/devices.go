package fleet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/perquyk/snutz/pkg/models"
)

// DeviceStore provides CRUD access to registered devices.
type DeviceStore interface {
	// Upsert creates the device, or overwrites name, status, and both
	// timestamps if the id already exists. Last writer wins.
	Upsert(ctx context.Context, d *models.Device) error

	// Touch updates last_seen and status for an existing device.
	// Returns ErrNotFound if the device was never registered.
	Touch(ctx context.Context, id string, seen time.Time, status models.DeviceStatus) error

	// Get returns a single device by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Device, error)

	// List returns all devices ordered by registration time, then id.
	List(ctx context.Context) ([]models.Device, error)

	// Exists reports whether a device with the given id is registered.
	Exists(ctx context.Context, id string) (bool, error)
}

// Compile-time interface guard.
var _ DeviceStore = (*SQLiteDeviceStore)(nil)

// SQLiteDeviceStore implements DeviceStore against the fleet_devices table.
type SQLiteDeviceStore struct {
	db *sql.DB
}

// NewSQLiteDeviceStore creates a DeviceStore. The fleet tables must already
// exist (created by the fleet module's migrations).
func NewSQLiteDeviceStore(db *sql.DB) *SQLiteDeviceStore {
	return &SQLiteDeviceStore{db: db}
}

const deviceColumns = `device_id, name, status, last_seen, registered_at`

func (s *SQLiteDeviceStore) Upsert(ctx context.Context, d *models.Device) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fleet_devices (device_id, name, status, last_seen, registered_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			name          = excluded.name,
			status        = excluded.status,
			last_seen     = excluded.last_seen,
			registered_at = excluded.registered_at`,
		d.ID, d.Name, string(d.Status), d.LastSeen, d.RegisteredAt,
	)
	if err != nil {
		return fmt.Errorf("upsert device %q: %w", d.ID, err)
	}
	return nil
}

func (s *SQLiteDeviceStore) Touch(ctx context.Context, id string, seen time.Time, status models.DeviceStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fleet_devices SET last_seen = ?, status = ? WHERE device_id = ?`,
		seen, string(status), id,
	)
	if err != nil {
		return fmt.Errorf("touch device %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteDeviceStore) Get(ctx context.Context, id string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+deviceColumns+` FROM fleet_devices WHERE device_id = ?`, id)
	d, err := scanDevice(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get device %q: %w", id, err)
	}
	return d, nil
}

func (s *SQLiteDeviceStore) List(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+deviceColumns+` FROM fleet_devices ORDER BY registered_at, device_id`)
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	defer rows.Close()

	devices := []models.Device{}
	for rows.Next() {
		var d models.Device
		var status string
		if err := rows.Scan(&d.ID, &d.Name, &status, &d.LastSeen, &d.RegisteredAt); err != nil {
			return nil, fmt.Errorf("scan device: %w", err)
		}
		d.Status = models.DeviceStatus(status)
		devices = append(devices, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate devices: %w", err)
	}
	return devices, nil
}

func (s *SQLiteDeviceStore) Exists(ctx context.Context, id string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM fleet_devices WHERE device_id = ?`, id,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check device %q: %w", id, err)
	}
	return count > 0, nil
}

func scanDevice(row *sql.Row) (*models.Device, error) {
	var d models.Device
	var status string
	if err := row.Scan(&d.ID, &d.Name, &status, &d.LastSeen, &d.RegisteredAt); err != nil {
		return nil, err
	}
	d.Status = models.DeviceStatus(status)
	return &d, nil
}
