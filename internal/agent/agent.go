// Package agent implements the SNUTZ polling agent: a single-threaded loop
// that registers with the coordinator, heartbeats on one cadence, and on an
// independent cadence polls for pending commands and due schedules, executing
// each diagnostic test inline and reporting the outcome back.
package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/internal/probe"
	"github.com/perquyk/snutz/pkg/models"
)

// Agent is the SNUTZ diagnostic agent.
type Agent struct {
	config  *Config
	client  *Client
	runners probe.Set
	logger  *zap.Logger
	cancel  context.CancelFunc
}

// New creates an agent instance.
func New(config *Config, client *Client, runners probe.Set, logger *zap.Logger) *Agent {
	return &Agent{
		config:  config,
		client:  client,
		runners: runners,
		logger:  logger,
	}
}

// targetParams is the one parameter field the agent itself reads from a
// command payload; everything else passes through opaquely to the runner.
type targetParams struct {
	Target string `json:"target"`
}

// Run registers the device and blocks in the polling loop until the context
// is cancelled. Heartbeat and poll cadences are independent tickers; all
// work, including blocking test execution, happens on this goroutine.
func (a *Agent) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	defer cancel()

	a.logger.Info("agent starting",
		zap.String("server", a.config.ServerURL),
		zap.String("device_id", a.config.DeviceID),
		zap.String("platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
		zap.Int("heartbeat_interval_seconds", a.config.HeartbeatInterval),
		zap.Int("poll_interval_seconds", a.config.PollInterval),
	)

	if err := a.register(ctx); err != nil {
		return err
	}

	heartbeat := time.NewTicker(time.Duration(a.config.HeartbeatInterval) * time.Second)
	defer heartbeat.Stop()
	poll := time.NewTicker(time.Duration(a.config.PollInterval) * time.Second)
	defer poll.Stop()

	// First poll immediately so a fresh agent picks up backlog without
	// waiting a full interval.
	a.pollCycle(ctx)

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("agent shutting down")
			return nil
		case <-heartbeat.C:
			a.heartbeat(ctx)
		case <-poll.C:
			a.pollCycle(ctx)
		}
	}
}

// Stop signals the agent to shut down. An in-flight test is not interrupted.
func (a *Agent) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
}

// register upserts this device with bounded retries.
func (a *Agent) register(ctx context.Context) error {
	var lastErr error
	for attempt := 0; attempt <= a.config.RegisterRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}

		d, err := a.client.Register(ctx, a.config.DeviceID, a.config.DeviceName)
		if err == nil {
			a.logger.Info("registered with coordinator",
				zap.String("device_id", d.ID),
				zap.Time("registered_at", d.RegisteredAt),
			)
			return nil
		}
		lastErr = err
		a.logger.Warn("registration failed, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
	}
	return fmt.Errorf("registration failed after %d attempts: %w", a.config.RegisterRetries+1, lastErr)
}

// heartbeat reports liveness; failures are logged, never fatal.
func (a *Agent) heartbeat(ctx context.Context) {
	if err := a.client.Heartbeat(ctx, a.config.DeviceID); err != nil {
		a.logger.Warn("heartbeat failed", zap.Error(err))
		return
	}
	a.logger.Debug("heartbeat sent")
}

// pollCycle drains pending commands, then due schedules, serially. Every
// test blocks the loop for its duration; a cycle with several due items runs
// them back to back before the agent sleeps again.
func (a *Agent) pollCycle(ctx context.Context) {
	a.runPendingCommands(ctx)
	a.runDueSchedules(ctx)
}

func (a *Agent) runPendingCommands(ctx context.Context) {
	commands, err := a.client.PendingCommands(ctx, a.config.DeviceID)
	if err != nil {
		a.logger.Warn("failed to poll commands", zap.Error(err))
		return
	}

	for _, cmd := range commands {
		if ctx.Err() != nil {
			return
		}
		a.runCommand(ctx, cmd)
	}
}

// runCommand executes one command and reports result plus completion. The
// two server calls are separate round trips: if completion fails the command
// stays pending and is retried on the next poll, so test execution must
// tolerate re-runs (at-least-once dispatch).
func (a *Agent) runCommand(ctx context.Context, cmd models.Command) {
	testType := models.TestType(cmd.CommandType)
	target := extractTarget(cmd.Parameters)

	a.logger.Info("executing command",
		zap.String("command_id", cmd.ID),
		zap.String("command_type", cmd.CommandType),
		zap.String("target", target),
	)

	report := a.runners.Run(ctx, testType, target, cmd.Parameters)
	payload, err := json.Marshal(report)
	if err != nil {
		a.logger.Error("failed to serialize report", zap.String("command_id", cmd.ID), zap.Error(err))
		return
	}

	result, err := a.client.SubmitResult(ctx, SubmitResultRequest{
		DeviceID:    a.config.DeviceID,
		TestType:    testType,
		Target:      target,
		ResultData:  payload,
		TriggeredBy: string(models.TriggerCommand),
	})
	if err != nil {
		a.logger.Warn("failed to submit command result",
			zap.String("command_id", cmd.ID), zap.Error(err))
		return
	}

	status := models.CommandStatusCompleted
	if !report.Success {
		status = models.CommandStatusFailed
	}
	if err := a.client.CompleteCommand(ctx, cmd.ID, status, &result.ID); err != nil {
		a.logger.Warn("failed to complete command",
			zap.String("command_id", cmd.ID), zap.Error(err))
		return
	}

	a.logger.Info("command finished",
		zap.String("command_id", cmd.ID),
		zap.String("status", string(status)),
		zap.Int64("result_id", result.ID),
	)
}

func (a *Agent) runDueSchedules(ctx context.Context) {
	schedules, err := a.client.DueSchedules(ctx, a.config.DeviceID)
	if err != nil {
		a.logger.Warn("failed to poll schedules", zap.Error(err))
		return
	}

	for _, sch := range schedules {
		if ctx.Err() != nil {
			return
		}
		a.runSchedule(ctx, sch)
	}
}

// runSchedule marks the schedule as dispatched before executing, so a test
// that takes longer than the poll interval is not re-dispatched next cycle.
func (a *Agent) runSchedule(ctx context.Context, sch models.Schedule) {
	if err := a.client.MarkScheduleRan(ctx, sch.ID); err != nil {
		a.logger.Warn("failed to mark schedule ran; skipping to avoid duplicate run",
			zap.String("schedule_id", sch.ID), zap.Error(err))
		return
	}

	target := sch.Target
	if target == "" {
		target = extractTarget(sch.Parameters)
	}

	a.logger.Info("executing scheduled test",
		zap.String("schedule_id", sch.ID),
		zap.String("test_type", string(sch.TestType)),
		zap.String("target", target),
	)

	report := a.runners.Run(ctx, sch.TestType, target, sch.Parameters)
	payload, err := json.Marshal(report)
	if err != nil {
		a.logger.Error("failed to serialize report", zap.String("schedule_id", sch.ID), zap.Error(err))
		return
	}

	if _, err := a.client.SubmitResult(ctx, SubmitResultRequest{
		DeviceID:    a.config.DeviceID,
		TestType:    sch.TestType,
		Target:      target,
		ResultData:  payload,
		TriggeredBy: string(models.TriggerSchedule),
	}); err != nil {
		a.logger.Warn("failed to submit scheduled result",
			zap.String("schedule_id", sch.ID), zap.Error(err))
	}
}

// extractTarget pulls the target field out of an opaque parameter payload.
func extractTarget(params json.RawMessage) string {
	if params == nil {
		return ""
	}
	var tp targetParams
	if err := json.Unmarshal(params, &tp); err != nil {
		return ""
	}
	return tp.Target
}
