package fleet

import (
	"context"
	"testing"
	"time"

	"github.com/perquyk/snutz/pkg/models"
	"github.com/perquyk/snutz/pkg/plugin"
)

func registeredEvent(d *models.Device, first bool) plugin.Event {
	return plugin.Event{
		Topic:     TopicDeviceRegistered,
		Source:    "fleet",
		Timestamp: time.Now().UTC(),
		Payload:   &DeviceEvent{Device: d, First: first},
	}
}

func TestAutoPingSchedule_CreatedOnFirstRegistration(t *testing.T) {
	m, _, _ := newTestModule(t)
	ctx := context.Background()

	d, err := m.coord.Register(ctx, "dev-1", "lab-router")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.handleDeviceRegistered(ctx, registeredEvent(d, true))

	schedules, err := m.coord.ListSchedules(ctx, "dev-1", false)
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("len(schedules) = %d, want 1 auto-created", len(schedules))
	}
	sch := schedules[0]
	if sch.TestType != models.TestTypePing {
		t.Errorf("TestType = %q, want ping", sch.TestType)
	}
	if sch.Target != m.autoPingTarget {
		t.Errorf("Target = %q, want %q", sch.Target, m.autoPingTarget)
	}
	if sch.IntervalSeconds != m.autoPingInterval {
		t.Errorf("IntervalSeconds = %d, want %d", sch.IntervalSeconds, m.autoPingInterval)
	}
	if !sch.Enabled {
		t.Error("Enabled = false, want auto schedule enabled")
	}
}

func TestAutoPingSchedule_SkippedOnReRegistration(t *testing.T) {
	m, _, _ := newTestModule(t)
	ctx := context.Background()

	d, err := m.coord.Register(ctx, "dev-1", "lab-router")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	m.handleDeviceRegistered(ctx, registeredEvent(d, false))

	schedules, err := m.coord.ListSchedules(ctx, "dev-1", false)
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(schedules) != 0 {
		t.Fatalf("len(schedules) = %d, want 0 on re-registration", len(schedules))
	}
}

func TestAutoPingSchedule_SkippedWhenPingScheduleExists(t *testing.T) {
	m, _, _ := newTestModule(t)
	ctx := context.Background()

	d, err := m.coord.Register(ctx, "dev-1", "lab-router")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := m.coord.CreateSchedule(ctx, "dev-1", models.TestTypePing, 120, "1.1.1.1", nil); err != nil {
		t.Fatalf("CreateSchedule: %v", err)
	}

	m.handleDeviceRegistered(ctx, registeredEvent(d, true))

	schedules, err := m.coord.ListSchedules(ctx, "dev-1", false)
	if err != nil {
		t.Fatalf("ListSchedules: %v", err)
	}
	if len(schedules) != 1 {
		t.Fatalf("len(schedules) = %d, want just the existing one", len(schedules))
	}
}
