package models

import (
	"encoding/json"
	"time"
)

// Schedule is a recurring diagnostic test definition. A schedule with a nil
// LastRun has never run and is immediately due; thereafter it is due once per
// elapsed interval, checked on each agent poll. IntervalSeconds is immutable
// after creation.
type Schedule struct {
	ID              string          `json:"id"`
	DeviceID        string          `json:"device_id"`
	TestType        TestType        `json:"test_type"`
	Target          string          `json:"target,omitempty"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	IntervalSeconds int             `json:"interval_seconds"`
	Enabled         bool            `json:"enabled"`
	LastRun         *time.Time      `json:"last_run,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

// Due reports whether the schedule should be dispatched at the given instant.
func (s *Schedule) Due(now time.Time) bool {
	if !s.Enabled {
		return false
	}
	if s.LastRun == nil {
		return true
	}
	return now.Sub(*s.LastRun) >= time.Duration(s.IntervalSeconds)*time.Second
}
