package fleet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/models"
	"github.com/perquyk/snutz/pkg/plugin"
)

// Event topics published by the coordinator.
const (
	TopicDeviceRegistered = "fleet.device.registered"
	TopicResultRecorded   = "fleet.result.recorded"
)

// DeviceEvent is the payload for TopicDeviceRegistered.
type DeviceEvent struct {
	Device *models.Device
	// First is true when the device id was not previously registered.
	First bool
}

// ResultEvent is the payload for TopicResultRecorded.
type ResultEvent struct {
	Result *models.TestResult
}

// CoordinatorConfig wires a Coordinator's collaborators. Devices, Commands,
// Schedules, and Results are required; the rest default to sensible no-ops.
type CoordinatorConfig struct {
	Devices   DeviceStore
	Commands  CommandStore
	Schedules ScheduleStore
	Results   ResultStore
	Bus       plugin.Bus
	Logger    *zap.Logger
	Metrics   *Metrics

	// Now overrides the time source; tests inject a fake clock here.
	Now func() time.Time

	// OfflineAfter derives a device's effective status at read time: a
	// device silent for at least this long reads as offline. Zero disables
	// derivation and the stored status is returned as-is.
	OfflineAfter time.Duration
}

// Coordinator composes the device registry, command queue, schedule engine,
// and result log behind a request/response boundary. Each operation maps 1:1
// to an HTTP endpoint. There is no cross-request locking: concurrent
// operations on the same row rely on the store's per-statement atomicity,
// and the dispatch protocol is at-least-once by design — agents retry by
// polling, and Complete/MarkScheduleRan are idempotent to absorb duplicates.
type Coordinator struct {
	devices      DeviceStore
	commands     CommandStore
	schedules    ScheduleStore
	results      ResultStore
	bus          plugin.Bus
	logger       *zap.Logger
	metrics      *Metrics
	now          func() time.Time
	offlineAfter time.Duration
}

// NewCoordinator creates a Coordinator from the given configuration.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Coordinator{
		devices:      cfg.Devices,
		commands:     cfg.Commands,
		schedules:    cfg.Schedules,
		results:      cfg.Results,
		bus:          cfg.Bus,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
		offlineAfter: cfg.OfflineAfter,
	}
}

// -- device registry --

// Register upserts a device. An existing id gets its name overwritten and
// both timestamps reset to now; registration is idempotent and last-writer-
// wins under concurrent duplicates.
func (c *Coordinator) Register(ctx context.Context, deviceID, name string) (*models.Device, error) {
	now := c.now().UTC()

	existed, err := c.devices.Exists(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	d := &models.Device{
		ID:           deviceID,
		Name:         name,
		Status:       models.DeviceStatusOnline,
		LastSeen:     now,
		RegisteredAt: now,
	}
	if err := c.devices.Upsert(ctx, d); err != nil {
		return nil, err
	}

	c.logger.Info("device registered",
		zap.String("device_id", deviceID),
		zap.String("name", name),
		zap.Bool("first", !existed),
	)
	if c.bus != nil {
		_ = c.bus.Publish(ctx, plugin.Event{
			Topic:     TopicDeviceRegistered,
			Source:    "fleet",
			Timestamp: now,
			Payload:   &DeviceEvent{Device: d, First: !existed},
		})
	}
	return d, nil
}

// Heartbeat updates a device's last-seen time and marks it online.
// Returns ErrNotFound for a device that was never registered.
func (c *Coordinator) Heartbeat(ctx context.Context, deviceID string) (*models.Device, error) {
	now := c.now().UTC()
	if err := c.devices.Touch(ctx, deviceID, now, models.DeviceStatusOnline); err != nil {
		return nil, err
	}
	if c.metrics != nil {
		c.metrics.Heartbeats.Inc()
	}
	return c.devices.Get(ctx, deviceID)
}

// GetDevice returns a device with its effective (recency-derived) status.
func (c *Coordinator) GetDevice(ctx context.Context, deviceID string) (*models.Device, error) {
	d, err := c.devices.Get(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	c.deriveStatus(d)
	return d, nil
}

// ListDevices returns all devices with effective statuses, in stable order.
func (c *Coordinator) ListDevices(ctx context.Context) ([]models.Device, error) {
	devices, err := c.devices.List(ctx)
	if err != nil {
		return nil, err
	}
	for i := range devices {
		c.deriveStatus(&devices[i])
	}
	return devices, nil
}

// deriveStatus demotes a stored online status when the device has been
// silent past the configured threshold. Read-time computation only; the
// stored row is never mutated by a sweep.
func (c *Coordinator) deriveStatus(d *models.Device) {
	if c.offlineAfter <= 0 {
		return
	}
	if d.Status == models.DeviceStatusOnline && c.now().UTC().Sub(d.LastSeen) >= c.offlineAfter {
		d.Status = models.DeviceStatusOffline
	}
}

// -- command queue --

// Enqueue appends a pending command to a registered device's queue.
func (c *Coordinator) Enqueue(ctx context.Context, deviceID, commandType string, params []byte) (*models.Command, error) {
	ok, err := c.devices.Exists(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeviceNotFound
	}

	cmd := &models.Command{
		ID:          uuid.New().String(),
		DeviceID:    deviceID,
		CommandType: commandType,
		Parameters:  params,
		Status:      models.CommandStatusPending,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.commands.Insert(ctx, cmd); err != nil {
		return nil, err
	}

	c.logger.Info("command enqueued",
		zap.String("command_id", cmd.ID),
		zap.String("device_id", deviceID),
		zap.String("command_type", commandType),
	)
	if c.metrics != nil {
		c.metrics.CommandsEnqueued.Inc()
	}
	return cmd, nil
}

// PendingCommands returns a device's not-yet-completed commands oldest-first.
// Reading does not reserve the commands: a slow agent polling twice before
// completing will see the same commands again (at-least-once dispatch).
func (c *Coordinator) PendingCommands(ctx context.Context, deviceID string) ([]models.Command, error) {
	return c.commands.ListPending(ctx, deviceID)
}

// CompleteCommand transitions a pending command to completed or failed,
// optionally linking the test result it produced. The transition happens at
// most once; completing an already-terminal command is a no-op that returns
// the stored command unchanged, so agent retries are harmless.
func (c *Coordinator) CompleteCommand(ctx context.Context, commandID string, status models.CommandStatus, resultID *int64) (*models.Command, error) {
	if !status.Terminal() {
		return nil, ErrInvalidStatus
	}

	done, err := c.commands.Finish(ctx, commandID, status, resultID, c.now().UTC())
	if err != nil {
		return nil, err
	}
	if !done {
		// Either unknown id or already terminal; Get distinguishes.
		cmd, err := c.commands.Get(ctx, commandID)
		if err != nil {
			return nil, err
		}
		c.logger.Debug("complete on terminal command ignored",
			zap.String("command_id", commandID),
			zap.String("status", string(cmd.Status)),
		)
		return cmd, nil
	}

	if c.metrics != nil {
		c.metrics.CommandsCompleted.WithLabelValues(string(status)).Inc()
	}
	return c.commands.Get(ctx, commandID)
}

// ListCommands returns commands newest-first for observability.
func (c *Coordinator) ListCommands(ctx context.Context, deviceID string, limit int) ([]models.Command, error) {
	return c.commands.ListAll(ctx, deviceID, normalizeLimit(limit))
}

// -- schedule engine --

// CreateSchedule defines a recurring test for a registered device.
// The interval is immutable after creation.
func (c *Coordinator) CreateSchedule(ctx context.Context, deviceID string, testType models.TestType, intervalSeconds int, target string, params []byte) (*models.Schedule, error) {
	if intervalSeconds <= 0 {
		return nil, ErrInvalidInterval
	}
	ok, err := c.devices.Exists(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeviceNotFound
	}

	sch := &models.Schedule{
		ID:              uuid.New().String(),
		DeviceID:        deviceID,
		TestType:        testType,
		Target:          target,
		Parameters:      params,
		IntervalSeconds: intervalSeconds,
		Enabled:         true,
		CreatedAt:       c.now().UTC(),
	}
	if err := c.schedules.Insert(ctx, sch); err != nil {
		return nil, err
	}

	c.logger.Info("schedule created",
		zap.String("schedule_id", sch.ID),
		zap.String("device_id", deviceID),
		zap.String("test_type", string(testType)),
		zap.Int("interval_seconds", intervalSeconds),
	)
	return sch, nil
}

// DueSchedules returns the schedules due for a device at this instant: every
// enabled schedule that has never run, or whose interval has fully elapsed
// since its last run. The read does not reserve anything; the agent must call
// MarkScheduleRan promptly after dispatch or it will see the schedule again.
func (c *Coordinator) DueSchedules(ctx context.Context, deviceID string) ([]models.Schedule, error) {
	schedules, err := c.schedules.List(ctx, deviceID, true)
	if err != nil {
		return nil, err
	}
	now := c.now().UTC()

	due := []models.Schedule{}
	for _, sch := range schedules {
		if sch.Due(now) {
			due = append(due, sch)
		}
	}
	if c.metrics != nil && len(due) > 0 {
		c.metrics.SchedulesDispatched.Add(float64(len(due)))
	}
	return due, nil
}

// MarkScheduleRan records that a due schedule was dispatched. Idempotent:
// repeated calls just move last_run forward.
func (c *Coordinator) MarkScheduleRan(ctx context.Context, scheduleID string) (*models.Schedule, error) {
	if err := c.schedules.SetLastRun(ctx, scheduleID, c.now().UTC()); err != nil {
		return nil, err
	}
	return c.schedules.Get(ctx, scheduleID)
}

// ToggleSchedule enables or disables a schedule without resetting last_run.
func (c *Coordinator) ToggleSchedule(ctx context.Context, scheduleID string, enabled bool) (*models.Schedule, error) {
	if err := c.schedules.SetEnabled(ctx, scheduleID, enabled); err != nil {
		return nil, err
	}
	return c.schedules.Get(ctx, scheduleID)
}

// DeleteSchedule removes a schedule permanently.
func (c *Coordinator) DeleteSchedule(ctx context.Context, scheduleID string) error {
	return c.schedules.Delete(ctx, scheduleID)
}

// ListSchedules returns schedules, optionally filtered by device and
// enabled state.
func (c *Coordinator) ListSchedules(ctx context.Context, deviceID string, enabledOnly bool) ([]models.Schedule, error) {
	return c.schedules.List(ctx, deviceID, enabledOnly)
}

// -- result log --

// RecordResult appends a diagnostic test outcome for a registered device.
// The payload is stored verbatim; the coordinator never looks inside it.
func (c *Coordinator) RecordResult(ctx context.Context, deviceID string, testType models.TestType, target string, data []byte, triggeredBy models.TriggerOrigin) (*models.TestResult, error) {
	ok, err := c.devices.Exists(ctx, deviceID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDeviceNotFound
	}

	r := &models.TestResult{
		DeviceID:    deviceID,
		TestType:    testType,
		Target:      target,
		Data:        data,
		TriggeredBy: triggeredBy,
		CreatedAt:   c.now().UTC(),
	}
	if err := c.results.Insert(ctx, r); err != nil {
		return nil, err
	}

	if c.metrics != nil {
		c.metrics.ResultsRecorded.WithLabelValues(string(testType), string(triggeredBy)).Inc()
	}
	if c.bus != nil {
		_ = c.bus.Publish(ctx, plugin.Event{
			Topic:     TopicResultRecorded,
			Source:    "fleet",
			Timestamp: r.CreatedAt,
			Payload:   &ResultEvent{Result: r},
		})
	}
	return r, nil
}

// ListResults returns results newest-first, optionally filtered by device.
func (c *Coordinator) ListResults(ctx context.Context, deviceID string, limit int) ([]models.TestResult, error) {
	return c.results.List(ctx, deviceID, normalizeLimit(limit))
}

// normalizeLimit applies the default and cap used by all list queries.
func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}
