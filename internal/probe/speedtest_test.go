package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestSpeedtestRunner_DownloadsAndMeasures(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 256*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	r := NewSpeedtestRunner(10 * time.Second)
	report := r.Run(context.Background(), srv.URL, nil)

	if !report.Success {
		t.Fatalf("Success = false: %s", report.Error)
	}
	var metrics SpeedtestMetrics
	if err := json.Unmarshal(report.Metrics, &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.BytesReceived != int64(len(payload)) {
		t.Errorf("BytesReceived = %d, want %d", metrics.BytesReceived, len(payload))
	}
	if metrics.Mbps <= 0 {
		t.Errorf("Mbps = %v, want positive", metrics.Mbps)
	}
}

func TestSpeedtestRunner_MaxBytesCapsTransfer(t *testing.T) {
	payload := bytes.Repeat([]byte("x"), 1024*1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	r := NewSpeedtestRunner(10 * time.Second)
	report := r.Run(context.Background(), srv.URL, []byte(`{"max_bytes":4096}`))

	if !report.Success {
		t.Fatalf("Success = false: %s", report.Error)
	}
	var metrics SpeedtestMetrics
	if err := json.Unmarshal(report.Metrics, &metrics); err != nil {
		t.Fatalf("decode metrics: %v", err)
	}
	if metrics.BytesReceived != 4096 {
		t.Errorf("BytesReceived = %d, want 4096", metrics.BytesReceived)
	}
}

func TestSpeedtestRunner_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r := NewSpeedtestRunner(10 * time.Second)
	report := r.Run(context.Background(), srv.URL, nil)

	if report.Success {
		t.Error("Success = true on 503, want false")
	}
	if report.Error == "" {
		t.Error("Error is empty on 503")
	}
}
