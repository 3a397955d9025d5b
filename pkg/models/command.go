package models

import (
	"encoding/json"
	"time"
)

// CommandStatus tracks a command through its lifecycle.
// A command leaves pending at most once; completed and failed are terminal.
type CommandStatus string

const (
	CommandStatusPending   CommandStatus = "pending"
	CommandStatusCompleted CommandStatus = "completed"
	CommandStatusFailed    CommandStatus = "failed"
)

// Terminal reports whether the status permits no further transitions.
func (s CommandStatus) Terminal() bool {
	return s == CommandStatusCompleted || s == CommandStatusFailed
}

// Command is a unit of ad-hoc work dispatched to a device. Parameters are an
// opaque payload produced by the caller and interpreted only by the agent.
type Command struct {
	ID          string          `json:"id"`
	DeviceID    string          `json:"device_id"`
	CommandType string          `json:"command_type"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
	Status      CommandStatus   `json:"status"`
	ResultID    *int64          `json:"result_id,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
}
