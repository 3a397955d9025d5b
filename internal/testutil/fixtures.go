package testutil

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/perquyk/snutz/pkg/models"
)

// NewDevice returns a Device with sensible defaults, suitable for test fixtures.
// Override individual fields after creation as needed.
func NewDevice(opts ...func(*models.Device)) models.Device {
	now := time.Now().UTC()
	d := models.Device{
		ID:           uuid.New().String(),
		Name:         "test-device",
		Status:       models.DeviceStatusOnline,
		LastSeen:     now,
		RegisteredAt: now,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithID sets the device id.
func WithID(id string) func(*models.Device) {
	return func(d *models.Device) { d.ID = id }
}

// WithName sets the device display name.
func WithName(name string) func(*models.Device) {
	return func(d *models.Device) { d.Name = name }
}

// WithStatus sets the device status.
func WithStatus(s models.DeviceStatus) func(*models.Device) {
	return func(d *models.Device) { d.Status = s }
}

// WithLastSeen sets the device's last_seen timestamp.
func WithLastSeen(t time.Time) func(*models.Device) {
	return func(d *models.Device) { d.LastSeen = t }
}

// PingParams returns an opaque ping parameter payload for tests.
func PingParams(target string, count int) json.RawMessage {
	raw, _ := json.Marshal(map[string]any{"target": target, "count": count})
	return raw
}
