package fleet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/perquyk/snutz/pkg/models"
)

// CommandStore provides access to the per-device command queue.
type CommandStore interface {
	// Insert appends a new pending command.
	Insert(ctx context.Context, c *models.Command) error

	// Get returns a command by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Command, error)

	// ListPending returns a device's pending commands oldest-first, so
	// long-queued work is not starved by newer requests.
	ListPending(ctx context.Context, deviceID string) ([]models.Command, error)

	// ListAll returns commands newest-first, optionally filtered by device.
	ListAll(ctx context.Context, deviceID string, limit int) ([]models.Command, error)

	// Finish transitions a pending command to the given terminal status.
	// The transition is guarded on status='pending' so it happens at most
	// once regardless of concurrent callers. Returns false if the command
	// was not pending (already terminal, or missing).
	Finish(ctx context.Context, id string, status models.CommandStatus, resultID *int64, at time.Time) (bool, error)
}

// Compile-time interface guard.
var _ CommandStore = (*SQLiteCommandStore)(nil)

// SQLiteCommandStore implements CommandStore against the fleet_commands table.
type SQLiteCommandStore struct {
	db *sql.DB
}

// NewSQLiteCommandStore creates a CommandStore.
func NewSQLiteCommandStore(db *sql.DB) *SQLiteCommandStore {
	return &SQLiteCommandStore{db: db}
}

const commandColumns = `id, device_id, command_type, parameters, status, result_id, created_at, completed_at`

func (s *SQLiteCommandStore) Insert(ctx context.Context, c *models.Command) error {
	var params any
	if c.Parameters != nil {
		params = string(c.Parameters)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fleet_commands (id, device_id, command_type, parameters, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		c.ID, c.DeviceID, c.CommandType, params, string(c.Status), c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert command: %w", err)
	}
	return nil
}

func (s *SQLiteCommandStore) Get(ctx context.Context, id string) (*models.Command, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+commandColumns+` FROM fleet_commands WHERE id = ?`, id)
	c, err := scanCommand(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get command %q: %w", id, err)
	}
	return c, nil
}

func (s *SQLiteCommandStore) ListPending(ctx context.Context, deviceID string) ([]models.Command, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commandColumns+` FROM fleet_commands
		 WHERE device_id = ? AND status = ?
		 ORDER BY created_at, id`,
		deviceID, string(models.CommandStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("list pending commands: %w", err)
	}
	return collectCommands(rows)
}

func (s *SQLiteCommandStore) ListAll(ctx context.Context, deviceID string, limit int) ([]models.Command, error) {
	query := `SELECT ` + commandColumns + ` FROM fleet_commands`
	var args []any
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list commands: %w", err)
	}
	return collectCommands(rows)
}

func (s *SQLiteCommandStore) Finish(ctx context.Context, id string, status models.CommandStatus, resultID *int64, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fleet_commands
		SET status = ?, result_id = ?, completed_at = ?
		WHERE id = ? AND status = ?`,
		string(status), resultID, at, id, string(models.CommandStatusPending),
	)
	if err != nil {
		return false, fmt.Errorf("finish command %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func collectCommands(rows *sql.Rows) ([]models.Command, error) {
	defer rows.Close()

	commands := []models.Command{}
	for rows.Next() {
		c, err := scanCommand(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan command: %w", err)
		}
		commands = append(commands, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate commands: %w", err)
	}
	return commands, nil
}

func scanCommand(scan func(dest ...any) error) (*models.Command, error) {
	var c models.Command
	var status string
	var params sql.NullString
	var resultID sql.NullInt64
	var completedAt sql.NullTime
	err := scan(&c.ID, &c.DeviceID, &c.CommandType, &params, &status, &resultID, &c.CreatedAt, &completedAt)
	if err != nil {
		return nil, err
	}
	c.Status = models.CommandStatus(status)
	if params.Valid {
		c.Parameters = []byte(params.String)
	}
	if resultID.Valid {
		c.ResultID = &resultID.Int64
	}
	if completedAt.Valid {
		t := completedAt.Time
		c.CompletedAt = &t
	}
	return &c, nil
}
