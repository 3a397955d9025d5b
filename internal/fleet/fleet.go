// Package fleet implements the coordination core of SNUTZ: the device
// registry, the per-device command queue, the recurring schedule engine, and
// the append-only test result log, composed by a coordinator and exposed over
// HTTP to polling agents.
package fleet

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/perquyk/snutz/pkg/plugin"
)

// Compile-time interface guards.
var (
	_ plugin.Module        = (*Module)(nil)
	_ plugin.StoreConsumer = (*Module)(nil)
	_ plugin.BusConsumer   = (*Module)(nil)
)

// Module wires the fleet coordinator into the server's module lifecycle.
type Module struct {
	logger  *zap.Logger
	config  *viper.Viper
	store   plugin.Store
	bus     plugin.Bus
	coord   *Coordinator
	metrics *Metrics
	promReg prometheus.Registerer

	autoPing         bool
	autoPingTarget   string
	autoPingInterval int

	unsubscribe func()
}

// New creates a fleet module registering its metrics with the default
// Prometheus registry.
func New() *Module {
	return &Module{promReg: prometheus.DefaultRegisterer}
}

// NewWithRegistry creates a fleet module with an explicit metrics registerer.
// Tests use this to avoid duplicate registration across module instances.
func NewWithRegistry(reg prometheus.Registerer) *Module {
	return &Module{promReg: reg}
}

func (m *Module) Name() string    { return "fleet" }
func (m *Module) Version() string { return "0.1.0" }

// SetStore implements plugin.StoreConsumer.
func (m *Module) SetStore(s plugin.Store) { m.store = s }

// SetBus implements plugin.BusConsumer.
func (m *Module) SetBus(b plugin.Bus) { m.bus = b }

// Init applies migrations and builds the coordinator from configuration.
func (m *Module) Init(config *viper.Viper, logger *zap.Logger) error {
	m.config = config
	m.logger = logger

	if m.store == nil {
		return fmt.Errorf("fleet module requires a store")
	}

	if err := m.store.Migrate(context.Background(), m.Name(), Migrations); err != nil {
		return fmt.Errorf("fleet migrations: %w", err)
	}

	m.metrics = NewMetrics(m.promReg)

	db := m.store.DB()
	m.coord = NewCoordinator(CoordinatorConfig{
		Devices:      NewSQLiteDeviceStore(db),
		Commands:     NewSQLiteCommandStore(db),
		Schedules:    NewSQLiteScheduleStore(db),
		Results:      NewSQLiteResultStore(db),
		Bus:          m.bus,
		Logger:       logger,
		Metrics:      m.metrics,
		OfflineAfter: config.GetDuration("offline_after"),
	})

	m.autoPing = config.GetBool("auto_ping_schedule")
	m.autoPingTarget = config.GetString("auto_ping_target")
	m.autoPingInterval = config.GetInt("auto_ping_interval_seconds")
	if m.autoPingInterval <= 0 {
		m.autoPingInterval = 300
	}

	m.logger.Info("fleet module initialized",
		zap.Duration("offline_after", config.GetDuration("offline_after")),
		zap.Bool("auto_ping_schedule", m.autoPing),
	)
	return nil
}

// Start subscribes the auto-schedule handler when enabled.
func (m *Module) Start(ctx context.Context) error {
	if m.autoPing && m.bus != nil {
		m.unsubscribe = m.bus.Subscribe(TopicDeviceRegistered, m.handleDeviceRegistered)
	}
	m.logger.Info("fleet module started")
	return nil
}

// Stop unsubscribes from the event bus.
func (m *Module) Stop() error {
	if m.unsubscribe != nil {
		m.unsubscribe()
		m.unsubscribe = nil
	}
	m.logger.Info("fleet module stopped")
	return nil
}

// Coordinator exposes the coordinator for other modules and tests.
func (m *Module) Coordinator() *Coordinator {
	return m.coord
}
