package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/perquyk/snutz/internal/probe"
	"github.com/perquyk/snutz/pkg/models"
)

// stubRunner reports success or failure without touching the network.
type stubRunner struct {
	testType models.TestType
	success  bool

	mu   sync.Mutex
	runs []string
}

func (s *stubRunner) Type() models.TestType { return s.testType }

func (s *stubRunner) Run(_ context.Context, target string, _ json.RawMessage) *probe.Report {
	s.mu.Lock()
	s.runs = append(s.runs, target)
	s.mu.Unlock()
	return &probe.Report{TestType: s.testType, Target: target, Success: s.success}
}

// coordinatorStub is a minimal in-memory stand-in for the server API.
type coordinatorStub struct {
	mu        sync.Mutex
	pending   []models.Command
	due       []models.Schedule
	completed map[string]string
	ran       []string
	results   []SubmitResultRequest
	nextID    int64
}

func newCoordinatorStub() *coordinatorStub {
	return &coordinatorStub{completed: make(map[string]string)}
}

func (c *coordinatorStub) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/devices/register", func(w http.ResponseWriter, r *http.Request) {
		writeResp(w, http.StatusCreated, models.Device{ID: "dev-1", Status: models.DeviceStatusOnline})
	})
	mux.HandleFunc("GET /api/v1/commands/pending/{device_id}", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		writeResp(w, http.StatusOK, c.pending)
	})
	mux.HandleFunc("GET /api/v1/schedules/due/{device_id}", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		defer c.mu.Unlock()
		writeResp(w, http.StatusOK, c.due)
	})
	mux.HandleFunc("POST /api/v1/commands/{id}/complete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Status string `json:"status"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		c.mu.Lock()
		c.completed[r.PathValue("id")] = body.Status
		c.pending = nil
		c.mu.Unlock()
		writeResp(w, http.StatusOK, models.Command{ID: r.PathValue("id")})
	})
	mux.HandleFunc("POST /api/v1/schedules/{id}/ran", func(w http.ResponseWriter, r *http.Request) {
		c.mu.Lock()
		c.ran = append(c.ran, r.PathValue("id"))
		c.due = nil
		c.mu.Unlock()
		writeResp(w, http.StatusOK, models.Schedule{ID: r.PathValue("id")})
	})
	mux.HandleFunc("POST /api/v1/tests/results", func(w http.ResponseWriter, r *http.Request) {
		var req SubmitResultRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		c.mu.Lock()
		c.results = append(c.results, req)
		c.nextID++
		id := c.nextID
		c.mu.Unlock()
		writeResp(w, http.StatusCreated, models.TestResult{ID: id, DeviceID: req.DeviceID, TestType: req.TestType})
	})
	return mux
}

func writeResp(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newTestAgent(t *testing.T, stub *coordinatorStub, runners probe.Set) *Agent {
	t.Helper()
	srv := httptest.NewServer(stub.handler(t))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.ServerURL = srv.URL
	cfg.DeviceID = "dev-1"
	return New(cfg, NewClient(srv.URL), runners, zap.NewNop())
}

func TestPollCycle_CommandExecuted(t *testing.T) {
	stub := newCoordinatorStub()
	stub.pending = []models.Command{{
		ID:          "cmd-1",
		DeviceID:    "dev-1",
		CommandType: "ping",
		Parameters:  json.RawMessage(`{"target":"10.0.0.1","count":2}`),
		Status:      models.CommandStatusPending,
	}}
	runner := &stubRunner{testType: models.TestTypePing, success: true}
	a := newTestAgent(t, stub, probe.Set{models.TestTypePing: runner})

	a.pollCycle(context.Background())

	assert.Equal(t, []string{"10.0.0.1"}, runner.runs)
	require.Len(t, stub.results, 1)
	assert.Equal(t, "command", stub.results[0].TriggeredBy)
	assert.Equal(t, "10.0.0.1", stub.results[0].Target)
	assert.Equal(t, "completed", stub.completed["cmd-1"])
}

func TestPollCycle_FailedProbeMarksCommandFailed(t *testing.T) {
	stub := newCoordinatorStub()
	stub.pending = []models.Command{{
		ID:          "cmd-1",
		DeviceID:    "dev-1",
		CommandType: "ping",
		Parameters:  json.RawMessage(`{"target":"10.0.0.1"}`),
		Status:      models.CommandStatusPending,
	}}
	runner := &stubRunner{testType: models.TestTypePing, success: false}
	a := newTestAgent(t, stub, probe.Set{models.TestTypePing: runner})

	a.pollCycle(context.Background())

	// The result is still submitted; only the command status reflects failure.
	require.Len(t, stub.results, 1)
	assert.Equal(t, "failed", stub.completed["cmd-1"])
}

func TestPollCycle_ScheduleMarkedBeforeRun(t *testing.T) {
	stub := newCoordinatorStub()
	stub.due = []models.Schedule{{
		ID:              "sch-1",
		DeviceID:        "dev-1",
		TestType:        models.TestTypePing,
		Target:          "8.8.8.8",
		IntervalSeconds: 300,
		Enabled:         true,
	}}
	runner := &stubRunner{testType: models.TestTypePing, success: true}
	a := newTestAgent(t, stub, probe.Set{models.TestTypePing: runner})

	a.pollCycle(context.Background())

	assert.Equal(t, []string{"sch-1"}, stub.ran)
	assert.Equal(t, []string{"8.8.8.8"}, runner.runs)
	require.Len(t, stub.results, 1)
	assert.Equal(t, "schedule", stub.results[0].TriggeredBy)
}

func TestPollCycle_ScheduleTargetFromParameters(t *testing.T) {
	stub := newCoordinatorStub()
	stub.due = []models.Schedule{{
		ID:         "sch-1",
		DeviceID:   "dev-1",
		TestType:   models.TestTypePing,
		Parameters: json.RawMessage(`{"target":"192.168.1.1"}`),
		Enabled:    true,
	}}
	runner := &stubRunner{testType: models.TestTypePing, success: true}
	a := newTestAgent(t, stub, probe.Set{models.TestTypePing: runner})

	a.pollCycle(context.Background())

	assert.Equal(t, []string{"192.168.1.1"}, runner.runs)
}

func TestRegister_RetriesThenFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	cfg := DefaultConfig()
	cfg.ServerURL = srv.URL
	cfg.DeviceID = "dev-1"
	cfg.RegisterRetries = 1
	a := New(cfg, NewClient(srv.URL), probe.Set{}, zap.NewNop())

	err := a.register(context.Background())
	require.Error(t, err)
}

func TestExtractTarget(t *testing.T) {
	assert.Equal(t, "10.0.0.1", extractTarget(json.RawMessage(`{"target":"10.0.0.1","count":3}`)))
	assert.Equal(t, "", extractTarget(nil))
	assert.Equal(t, "", extractTarget(json.RawMessage(`not json`)))
	assert.Equal(t, "", extractTarget(json.RawMessage(`{"count":3}`)))
}
