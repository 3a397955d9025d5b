// Package plugin defines the contracts between the SNUTZ server core and its
// modules: lifecycle, HTTP routes, persistent storage, and events.
package plugin

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Route represents an HTTP route exposed by a module. Path uses Go 1.22
// ServeMux patterns and is mounted under /api/v1 by the server.
type Route struct {
	Method  string
	Path    string
	Handler http.HandlerFunc
}

// Module defines the interface that all SNUTZ server modules must implement.
type Module interface {
	// Name returns the module's unique identifier (e.g., "fleet").
	Name() string

	// Version returns the module's semantic version.
	Version() string

	// Init initializes the module with its configuration and logger.
	Init(config *viper.Viper, logger *zap.Logger) error

	// Start begins the module's background operations.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the module.
	Stop() error

	// Routes returns the HTTP routes this module exposes.
	Routes() []Route
}

// Migration is a single versioned schema change owned by a module.
// Migrations must be provided in ascending Version order.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// Store is the persistence contract modules receive from the core.
type Store interface {
	// DB returns the underlying database handle for direct queries.
	DB() *sql.DB

	// Tx executes fn within a transaction, committing on nil error.
	Tx(ctx context.Context, fn func(tx *sql.Tx) error) error

	// Migrate applies the module's pending migrations.
	Migrate(ctx context.Context, module string, migrations []Migration) error
}

// Event is a message published on the in-process event bus.
type Event struct {
	Topic     string
	Source    string
	Timestamp time.Time
	Payload   any
}

// EventHandler processes a published event. Handlers run synchronously on the
// publisher's goroutine and must not block.
type EventHandler func(ctx context.Context, e Event)

// Bus is the publish/subscribe contract between modules.
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Subscribe(topic string, h EventHandler) (unsubscribe func())
}
