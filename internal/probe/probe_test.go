package probe

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/models"
)

func TestNewSetCoversAllTestTypes(t *testing.T) {
	set := NewSet(zap.NewNop())

	for _, tt := range []models.TestType{models.TestTypePing, models.TestTypeTraceroute, models.TestTypeSpeedtest} {
		r, ok := set[tt]
		if !ok {
			t.Errorf("no runner for %q", tt)
			continue
		}
		if r.Type() != tt {
			t.Errorf("runner for %q reports type %q", tt, r.Type())
		}
	}
}

func TestSetRun_UnknownType(t *testing.T) {
	set := NewSet(zap.NewNop())

	report := set.Run(context.Background(), "portscan", "10.0.0.1", nil)
	if report == nil {
		t.Fatal("Run returned nil for unknown type")
	}
	if report.Success {
		t.Error("Success = true for unknown type")
	}
	if report.Error == "" {
		t.Error("Error is empty, want a message naming the unknown type")
	}
	if report.Target != "10.0.0.1" {
		t.Errorf("Target = %q, want passed through", report.Target)
	}
}

func TestPingRunner_InvalidTarget(t *testing.T) {
	r := NewPingRunner(time.Second, 1)

	report := r.Run(context.Background(), "host.invalid", nil)
	if report.Success {
		t.Error("Success = true for unresolvable target")
	}
	if report.Error == "" {
		t.Error("Error is empty for unresolvable target")
	}
	if report.TestType != models.TestTypePing {
		t.Errorf("TestType = %q, want ping", report.TestType)
	}
}

func TestTracerouteRunner_InvalidTarget(t *testing.T) {
	r := NewTracerouteRunner(2*time.Second, zap.NewNop())

	report := r.Run(context.Background(), "host.invalid", nil)
	if report.Success {
		t.Error("Success = true for unresolvable target")
	}
	if report.Error == "" {
		t.Error("Error is empty for unresolvable target")
	}
}

func TestFailedReportShape(t *testing.T) {
	start := time.Now().UTC().Add(-time.Millisecond)
	report := failed(models.TestTypePing, "10.0.0.1", start, context.DeadlineExceeded)

	if report.Success {
		t.Error("Success = true, want false")
	}
	if report.Error != context.DeadlineExceeded.Error() {
		t.Errorf("Error = %q, want %q", report.Error, context.DeadlineExceeded.Error())
	}
	if report.DurationMs <= 0 {
		t.Errorf("DurationMs = %v, want positive", report.DurationMs)
	}
}
