package probe

import (
	"context"
	"encoding/json"
	"runtime"
	"time"

	probing "github.com/prometheus-community/pro-bing"

	"github.com/perquyk/snutz/pkg/models"
)

// PingMetrics are the measurements of a ping run.
type PingMetrics struct {
	PacketsSent int     `json:"packets_sent"`
	PacketsRecv int     `json:"packets_recv"`
	PacketLoss  float64 `json:"packet_loss"`
	MinRttMs    float64 `json:"min_rtt_ms"`
	AvgRttMs    float64 `json:"avg_rtt_ms"`
	MaxRttMs    float64 `json:"max_rtt_ms"`
}

// pingParams are the parameter fields the ping runner understands.
type pingParams struct {
	Count int `json:"count"`
}

// PingRunner pings targets using ICMP via pro-bing.
type PingRunner struct {
	timeout time.Duration
	count   int
}

// NewPingRunner creates a ping runner with the given per-run timeout and
// default packet count.
func NewPingRunner(timeout time.Duration, count int) *PingRunner {
	return &PingRunner{timeout: timeout, count: count}
}

// Type implements Runner.
func (p *PingRunner) Type() models.TestType { return models.TestTypePing }

// Run pings the target and reports packet loss and round-trip statistics.
func (p *PingRunner) Run(ctx context.Context, target string, params json.RawMessage) *Report {
	start := time.Now().UTC()

	count := p.count
	if params != nil {
		var pp pingParams
		if err := json.Unmarshal(params, &pp); err == nil && pp.Count > 0 {
			pp.Count = min(pp.Count, 100)
			count = pp.Count
		}
	}

	pinger, err := probing.NewPinger(target)
	if err != nil {
		return failed(models.TestTypePing, target, start, err)
	}
	pinger.Count = count
	pinger.Timeout = p.timeout
	pinger.SetPrivileged(runtime.GOOS == "windows")

	// Run pinger in a goroutine for context cancellation.
	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case runErr := <-done:
		stats := pinger.Statistics()
		report := &Report{
			TestType:   models.TestTypePing,
			Target:     target,
			StartedAt:  start,
			DurationMs: float64(time.Since(start).Microseconds()) / 1000.0,
		}
		if runErr != nil {
			report.Error = runErr.Error()
			return report
		}

		report.Success = stats.PacketsRecv > 0
		if !report.Success {
			report.Error = "all packets lost"
		}
		report.Metrics = marshalMetrics(PingMetrics{
			PacketsSent: stats.PacketsSent,
			PacketsRecv: stats.PacketsRecv,
			PacketLoss:  stats.PacketLoss / 100.0, // pro-bing returns 0-100
			MinRttMs:    float64(stats.MinRtt) / float64(time.Millisecond),
			AvgRttMs:    float64(stats.AvgRtt) / float64(time.Millisecond),
			MaxRttMs:    float64(stats.MaxRtt) / float64(time.Millisecond),
		})
		return report

	case <-ctx.Done():
		pinger.Stop()
		return failed(models.TestTypePing, target, start, ctx.Err())
	}
}
