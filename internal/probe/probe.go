// Package probe implements the diagnostic test runners executed by the agent:
// ping, traceroute, and speedtest. A probe failure (unreachable target,
// timeout, missing privileges) is reported as an unsuccessful Report, never
// as an error: the network test failing is a result, not a fault.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/models"
)

// Report is the structured outcome of a single probe run. It is serialized
// to JSON by the agent and stored server-side as an opaque payload.
type Report struct {
	TestType   models.TestType `json:"test_type"`
	Target     string          `json:"target,omitempty"`
	Success    bool            `json:"success"`
	Error      string          `json:"error,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMs float64         `json:"duration_ms"`
	// Metrics holds runner-specific measurements (latency, hops, throughput).
	Metrics json.RawMessage `json:"metrics,omitempty"`
}

// Runner executes one kind of diagnostic test. Parameters are the opaque
// payload attached to a command or schedule; each runner decodes the fields
// it understands and ignores the rest.
type Runner interface {
	Type() models.TestType
	Run(ctx context.Context, target string, params json.RawMessage) *Report
}

// Set maps test types to their runners.
type Set map[models.TestType]Runner

// NewSet builds the default runner set with bounded per-test timeouts.
func NewSet(logger *zap.Logger) Set {
	runners := []Runner{
		NewPingRunner(30*time.Second, 4),
		NewTracerouteRunner(60*time.Second, logger),
		NewSpeedtestRunner(60 * time.Second),
	}
	set := make(Set, len(runners))
	for _, r := range runners {
		set[r.Type()] = r
	}
	return set
}

// Run dispatches to the runner for the given test type. An unknown type is
// itself a failed report, so callers always get something to submit.
func (s Set) Run(ctx context.Context, testType models.TestType, target string, params json.RawMessage) *Report {
	r, ok := s[testType]
	if !ok {
		return &Report{
			TestType:  testType,
			Target:    target,
			Success:   false,
			Error:     fmt.Sprintf("unknown test type %q", testType),
			StartedAt: time.Now().UTC(),
		}
	}
	return r.Run(ctx, target, params)
}

// failed builds a Report for a probe that could not produce measurements.
func failed(testType models.TestType, target string, start time.Time, err error) *Report {
	return &Report{
		TestType:   testType,
		Target:     target,
		Success:    false,
		Error:      err.Error(),
		StartedAt:  start,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

// marshalMetrics serializes runner-specific measurements, tolerating failure.
func marshalMetrics(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}
