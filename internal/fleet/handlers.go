package fleet

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/internal/server"
	"github.com/perquyk/snutz/pkg/models"
	"github.com/perquyk/snutz/pkg/plugin"
)

// registerDeviceRequest is the JSON body for POST /devices/register.
type registerDeviceRequest struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

// createCommandRequest is the JSON body for POST /commands/create.
type createCommandRequest struct {
	DeviceID    string          `json:"device_id"`
	CommandType string          `json:"command_type"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// completeCommandRequest is the JSON body for POST /commands/{id}/complete.
type completeCommandRequest struct {
	Status   string `json:"status"`
	ResultID *int64 `json:"result_id,omitempty"`
}

// createScheduleRequest is the JSON body for POST /schedules/create.
type createScheduleRequest struct {
	DeviceID        string          `json:"device_id"`
	TestType        string          `json:"test_type"`
	IntervalSeconds int             `json:"interval_seconds"`
	Target          string          `json:"target,omitempty"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
}

// toggleScheduleRequest is the JSON body for POST /schedules/{id}/toggle.
type toggleScheduleRequest struct {
	Enabled bool `json:"enabled"`
}

// submitResultRequest is the JSON body for POST /tests/results.
type submitResultRequest struct {
	DeviceID    string          `json:"device_id"`
	TestType    string          `json:"test_type"`
	Target      string          `json:"target,omitempty"`
	ResultData  json.RawMessage `json:"result_data"`
	TriggeredBy string          `json:"triggered_by"`
}

// Routes implements plugin.HTTPProvider.
func (m *Module) Routes() []plugin.Route {
	return []plugin.Route{
		{Method: "POST", Path: "/devices/register", Handler: m.handleRegisterDevice},
		{Method: "GET", Path: "/devices", Handler: m.handleListDevices},
		{Method: "GET", Path: "/devices/{id}", Handler: m.handleGetDevice},
		{Method: "POST", Path: "/devices/{id}/heartbeat", Handler: m.handleHeartbeat},
		{Method: "POST", Path: "/tests/results", Handler: m.handleSubmitResult},
		{Method: "GET", Path: "/tests/results", Handler: m.handleListResults},
		{Method: "POST", Path: "/commands/create", Handler: m.handleCreateCommand},
		{Method: "POST", Path: "/commands/{id}/complete", Handler: m.handleCompleteCommand},
		{Method: "GET", Path: "/commands/pending/{device_id}", Handler: m.handlePendingCommands},
		{Method: "GET", Path: "/commands", Handler: m.handleListCommands},
		{Method: "POST", Path: "/schedules/create", Handler: m.handleCreateSchedule},
		{Method: "GET", Path: "/schedules", Handler: m.handleListSchedules},
		{Method: "GET", Path: "/schedules/due/{device_id}", Handler: m.handleDueSchedules},
		{Method: "POST", Path: "/schedules/{id}/toggle", Handler: m.handleToggleSchedule},
		{Method: "POST", Path: "/schedules/{id}/ran", Handler: m.handleScheduleRan},
		{Method: "DELETE", Path: "/schedules/{id}", Handler: m.handleDeleteSchedule},
	}
}

// handleRegisterDevice upserts a device registration.
func (m *Module) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	var req registerDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	d, err := m.coord.Register(r.Context(), req.DeviceID, req.Name)
	if err != nil {
		m.logger.Warn("failed to register device", zap.String("device_id", req.DeviceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// handleListDevices returns all registered devices.
func (m *Module) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := m.coord.ListDevices(r.Context())
	if err != nil {
		m.logger.Warn("failed to list devices", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

// handleGetDevice returns a single device.
func (m *Module) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := m.coord.GetDevice(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not found")
			return
		}
		m.logger.Warn("failed to get device", zap.String("device_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to get device")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleHeartbeat updates a device's liveness.
func (m *Module) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	d, err := m.coord.Heartbeat(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "device not registered")
			return
		}
		m.logger.Warn("failed to process heartbeat", zap.String("device_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to process heartbeat")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": d.ID,
		"status":    d.Status,
		"last_seen": d.LastSeen,
	})
}

// handleSubmitResult appends a diagnostic test result.
func (m *Module) handleSubmitResult(w http.ResponseWriter, r *http.Request) {
	var req submitResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	testType := models.TestType(req.TestType)
	if !testType.Valid() {
		writeError(w, http.StatusBadRequest, "test_type must be ping, traceroute, or speedtest")
		return
	}
	triggeredBy := models.TriggerOrigin(req.TriggeredBy)
	if req.TriggeredBy == "" {
		triggeredBy = models.TriggerManual
	} else if !triggeredBy.Valid() {
		writeError(w, http.StatusBadRequest, "triggered_by must be manual, command, or schedule")
		return
	}

	result, err := m.coord.RecordResult(r.Context(), req.DeviceID, testType, req.Target, req.ResultData, triggeredBy)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "device not registered")
			return
		}
		m.logger.Warn("failed to record result", zap.String("device_id", req.DeviceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to record result")
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

// handleListResults returns recorded results, newest first.
func (m *Module) handleListResults(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	results, err := m.coord.ListResults(r.Context(), deviceID, parseLimit(r, 50))
	if err != nil {
		m.logger.Warn("failed to list results", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	writeJSON(w, http.StatusOK, results)
}

// handleCreateCommand enqueues a command for a device.
func (m *Module) handleCreateCommand(w http.ResponseWriter, r *http.Request) {
	var req createCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	if req.CommandType == "" {
		writeError(w, http.StatusBadRequest, "command_type is required")
		return
	}

	cmd, err := m.coord.Enqueue(r.Context(), req.DeviceID, req.CommandType, req.Parameters)
	if err != nil {
		if errors.Is(err, ErrDeviceNotFound) {
			writeError(w, http.StatusNotFound, "device not registered")
			return
		}
		m.logger.Warn("failed to enqueue command", zap.String("device_id", req.DeviceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue command")
		return
	}
	writeJSON(w, http.StatusCreated, cmd)
}

// handleCompleteCommand records a command's terminal transition.
func (m *Module) handleCompleteCommand(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req completeCommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cmd, err := m.coord.CompleteCommand(r.Context(), id, models.CommandStatus(req.Status), req.ResultID)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidStatus):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrNotFound):
			writeError(w, http.StatusNotFound, "command not found")
		default:
			m.logger.Warn("failed to complete command", zap.String("command_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to complete command")
		}
		return
	}
	writeJSON(w, http.StatusOK, cmd)
}

// handlePendingCommands is the agent's command poll target.
func (m *Module) handlePendingCommands(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	commands, err := m.coord.PendingCommands(r.Context(), deviceID)
	if err != nil {
		m.logger.Warn("failed to list pending commands", zap.String("device_id", deviceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list pending commands")
		return
	}
	writeJSON(w, http.StatusOK, commands)
}

// handleListCommands returns commands for observability, newest first.
func (m *Module) handleListCommands(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	commands, err := m.coord.ListCommands(r.Context(), deviceID, parseLimit(r, 50))
	if err != nil {
		m.logger.Warn("failed to list commands", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, commands)
}

// handleCreateSchedule defines a recurring test.
func (m *Module) handleCreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req createScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	testType := models.TestType(req.TestType)
	if !testType.Valid() {
		writeError(w, http.StatusBadRequest, "test_type must be ping, traceroute, or speedtest")
		return
	}

	sch, err := m.coord.CreateSchedule(r.Context(), req.DeviceID, testType, req.IntervalSeconds, req.Target, req.Parameters)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidInterval):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, ErrDeviceNotFound):
			writeError(w, http.StatusNotFound, "device not registered")
		default:
			m.logger.Warn("failed to create schedule", zap.String("device_id", req.DeviceID), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to create schedule")
		}
		return
	}
	writeJSON(w, http.StatusCreated, sch)
}

// handleListSchedules returns schedules with optional filters.
func (m *Module) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	enabledOnly := r.URL.Query().Get("enabled_only") == "true"

	schedules, err := m.coord.ListSchedules(r.Context(), deviceID, enabledOnly)
	if err != nil {
		m.logger.Warn("failed to list schedules", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list schedules")
		return
	}
	writeJSON(w, http.StatusOK, schedules)
}

// handleDueSchedules is the agent's schedule poll target.
func (m *Module) handleDueSchedules(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("device_id")
	due, err := m.coord.DueSchedules(r.Context(), deviceID)
	if err != nil {
		m.logger.Warn("failed to compute due schedules", zap.String("device_id", deviceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to compute due schedules")
		return
	}
	writeJSON(w, http.StatusOK, due)
}

// handleToggleSchedule enables or disables a schedule.
func (m *Module) handleToggleSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req toggleScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sch, err := m.coord.ToggleSchedule(r.Context(), id, req.Enabled)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		m.logger.Warn("failed to toggle schedule", zap.String("schedule_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to toggle schedule")
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// handleScheduleRan records a schedule dispatch.
func (m *Module) handleScheduleRan(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	sch, err := m.coord.MarkScheduleRan(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		m.logger.Warn("failed to mark schedule ran", zap.String("schedule_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to mark schedule ran")
		return
	}
	writeJSON(w, http.StatusOK, sch)
}

// handleDeleteSchedule removes a schedule.
func (m *Module) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.coord.DeleteSchedule(r.Context(), id); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "schedule not found")
			return
		}
		m.logger.Warn("failed to delete schedule", zap.String("schedule_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete schedule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// -- helpers --

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	server.WriteProblem(w, server.NewProblem(status, detail))
}

func parseLimit(r *http.Request, defaultLimit int) int {
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 && n <= 1000 {
			return n
		}
	}
	return defaultLimit
}
