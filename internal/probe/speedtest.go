package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/perquyk/snutz/pkg/models"
)

// DefaultSpeedtestURL is downloaded when no target is configured on the
// command or schedule.
const DefaultSpeedtestURL = "https://speed.cloudflare.com/__down?bytes=10000000"

// SpeedtestMetrics are the measurements of a download speed test.
type SpeedtestMetrics struct {
	BytesReceived int64   `json:"bytes_received"`
	ElapsedMs     float64 `json:"elapsed_ms"`
	Mbps          float64 `json:"mbps"`
}

// speedtestParams are the parameter fields the speedtest runner understands.
type speedtestParams struct {
	MaxBytes int64 `json:"max_bytes"`
}

// SpeedtestRunner measures download throughput by timing an HTTP transfer.
type SpeedtestRunner struct {
	timeout time.Duration
	client  *http.Client
}

// NewSpeedtestRunner creates a speedtest runner with the given per-run timeout.
func NewSpeedtestRunner(timeout time.Duration) *SpeedtestRunner {
	return &SpeedtestRunner{
		timeout: timeout,
		client:  &http.Client{},
	}
}

// Type implements Runner.
func (s *SpeedtestRunner) Type() models.TestType { return models.TestTypeSpeedtest }

// Run downloads from the target URL (or the default measurement endpoint)
// and reports achieved throughput.
func (s *SpeedtestRunner) Run(ctx context.Context, target string, params json.RawMessage) *Report {
	start := time.Now().UTC()

	url := target
	if url == "" {
		url = DefaultSpeedtestURL
	}
	var maxBytes int64 = 100 << 20
	if params != nil {
		var sp speedtestParams
		if err := json.Unmarshal(params, &sp); err == nil && sp.MaxBytes > 0 {
			maxBytes = sp.MaxBytes
		}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return failed(models.TestTypeSpeedtest, target, start, err)
	}

	transferStart := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return failed(models.TestTypeSpeedtest, target, start, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return failed(models.TestTypeSpeedtest, target, start,
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url))
	}

	received, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxBytes))
	elapsed := time.Since(transferStart)
	if err != nil && received == 0 {
		return failed(models.TestTypeSpeedtest, target, start, err)
	}

	elapsedMs := float64(elapsed.Microseconds()) / 1000.0
	mbps := 0.0
	if elapsed > 0 {
		mbps = float64(received) * 8 / elapsed.Seconds() / 1e6
	}

	return &Report{
		TestType:   models.TestTypeSpeedtest,
		Target:     target,
		Success:    received > 0,
		StartedAt:  start,
		DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		Metrics: marshalMetrics(SpeedtestMetrics{
			BytesReceived: received,
			ElapsedMs:     elapsedMs,
			Mbps:          mbps,
		}),
	}
}
