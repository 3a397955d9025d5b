package models

import (
	"encoding/json"
	"time"
)

// TestType identifies a diagnostic test kind.
type TestType string

const (
	TestTypePing       TestType = "ping"
	TestTypeTraceroute TestType = "traceroute"
	TestTypeSpeedtest  TestType = "speedtest"
)

// Valid reports whether t is a known test type.
func (t TestType) Valid() bool {
	switch t {
	case TestTypePing, TestTypeTraceroute, TestTypeSpeedtest:
		return true
	}
	return false
}

// TriggerOrigin classifies what caused a test result to be produced.
type TriggerOrigin string

const (
	TriggerManual   TriggerOrigin = "manual"
	TriggerCommand  TriggerOrigin = "command"
	TriggerSchedule TriggerOrigin = "schedule"
)

// Valid reports whether o is a known trigger origin.
func (o TriggerOrigin) Valid() bool {
	switch o {
	case TriggerManual, TriggerCommand, TriggerSchedule:
		return true
	}
	return false
}

// TestResult is one immutable diagnostic test outcome. The Data payload is an
// opaque serialized blob produced by the probe runner; the server stores and
// returns it without interpreting its contents. Target is empty for tests
// that have no per-run target (speedtest).
type TestResult struct {
	ID          int64           `json:"id"`
	DeviceID    string          `json:"device_id"`
	TestType    TestType        `json:"test_type"`
	Target      string          `json:"target,omitempty"`
	Data        json.RawMessage `json:"result_data"`
	TriggeredBy TriggerOrigin   `json:"triggered_by"`
	CreatedAt   time.Time       `json:"created_at"`
}
