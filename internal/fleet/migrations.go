package fleet

import (
	"database/sql"

	"github.com/perquyk/snutz/pkg/plugin"
)

// Migrations defines the fleet module's schema. Commands and schedules
// reference devices; a command optionally references the test result it
// produced. Results are append-only with a sequential id.
var Migrations = []plugin.Migration{
	{
		Version:     1,
		Description: "create fleet tables",
		Up: func(tx *sql.Tx) error {
			stmts := []string{
				`CREATE TABLE fleet_devices (
					device_id     TEXT PRIMARY KEY,
					name          TEXT NOT NULL,
					status        TEXT NOT NULL DEFAULT 'offline',
					last_seen     DATETIME NOT NULL,
					registered_at DATETIME NOT NULL
				)`,
				`CREATE TABLE fleet_test_results (
					id           INTEGER PRIMARY KEY AUTOINCREMENT,
					device_id    TEXT NOT NULL REFERENCES fleet_devices(device_id),
					test_type    TEXT NOT NULL,
					target       TEXT NOT NULL DEFAULT '',
					result_data  TEXT NOT NULL DEFAULT '{}',
					triggered_by TEXT NOT NULL DEFAULT 'manual',
					created_at   DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_fleet_results_device ON fleet_test_results(device_id, created_at)`,
				`CREATE TABLE fleet_commands (
					id           TEXT PRIMARY KEY,
					device_id    TEXT NOT NULL REFERENCES fleet_devices(device_id),
					command_type TEXT NOT NULL,
					parameters   TEXT,
					status       TEXT NOT NULL DEFAULT 'pending',
					result_id    INTEGER REFERENCES fleet_test_results(id),
					created_at   DATETIME NOT NULL,
					completed_at DATETIME
				)`,
				`CREATE INDEX idx_fleet_commands_pending ON fleet_commands(device_id, status, created_at)`,
				`CREATE TABLE fleet_schedules (
					id               TEXT PRIMARY KEY,
					device_id        TEXT NOT NULL REFERENCES fleet_devices(device_id),
					test_type        TEXT NOT NULL,
					target           TEXT NOT NULL DEFAULT '',
					parameters       TEXT,
					interval_seconds INTEGER NOT NULL,
					enabled          INTEGER NOT NULL DEFAULT 1,
					last_run         DATETIME,
					created_at       DATETIME NOT NULL
				)`,
				`CREATE INDEX idx_fleet_schedules_device ON fleet_schedules(device_id, enabled)`,
			}
			for _, stmt := range stmts {
				if _, err := tx.Exec(stmt); err != nil {
					return err
				}
			}
			return nil
		},
	},
}
