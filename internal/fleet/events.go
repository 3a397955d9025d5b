package fleet

import (
	"context"

	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/models"
	"github.com/perquyk/snutz/pkg/plugin"
)

// handleDeviceRegistered auto-creates a default ping schedule when a device
// registers for the first time, so every fleet member gets baseline
// reachability monitoring without operator action.
func (m *Module) handleDeviceRegistered(ctx context.Context, event plugin.Event) {
	de, ok := event.Payload.(*DeviceEvent)
	if !ok {
		m.logger.Warn("unexpected payload type for device registered event")
		return
	}
	if de.Device == nil || !de.First {
		return
	}

	// Re-registration of a known id also reports First=false, but a device
	// wiped and re-registered may already carry schedules; check anyway.
	existing, err := m.coord.ListSchedules(ctx, de.Device.ID, false)
	if err != nil {
		m.logger.Warn("failed to check existing schedules",
			zap.String("device_id", de.Device.ID),
			zap.Error(err),
		)
		return
	}
	for _, sch := range existing {
		if sch.TestType == models.TestTypePing {
			return // Already monitored.
		}
	}

	sch, err := m.coord.CreateSchedule(ctx, de.Device.ID, models.TestTypePing,
		m.autoPingInterval, m.autoPingTarget, nil)
	if err != nil {
		m.logger.Warn("failed to auto-create ping schedule",
			zap.String("device_id", de.Device.ID),
			zap.Error(err),
		)
		return
	}

	m.logger.Info("auto-created ping schedule for new device",
		zap.String("schedule_id", sch.ID),
		zap.String("device_id", de.Device.ID),
		zap.String("target", m.autoPingTarget),
	)
}
