package models

import "time"

// DeviceStatus represents the liveness state of an agent device.
type DeviceStatus string

const (
	DeviceStatusOnline  DeviceStatus = "online"
	DeviceStatusOffline DeviceStatus = "offline"
)

// Device represents a registered diagnostic agent.
//
// The ID is caller-supplied and globally unique; re-registering with the same
// ID overwrites the record (upsert semantics). Status is advisory: it is set
// to online on every successful registration or heartbeat, and may be derived
// from last_seen recency at read time when an offline threshold is configured.
type Device struct {
	ID           string       `json:"device_id"`
	Name         string       `json:"name"`
	Status       DeviceStatus `json:"status"`
	LastSeen     time.Time    `json:"last_seen"`
	RegisteredAt time.Time    `json:"registered_at"`
}
