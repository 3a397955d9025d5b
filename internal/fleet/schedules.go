package fleet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/perquyk/snutz/pkg/models"
)

// ScheduleStore provides access to recurring test definitions.
//
// Due computation lives on models.Schedule and in the coordinator, not here:
// the store only filters by device and enabled flag, so the scheduling
// algorithm stays independent of the backend.
type ScheduleStore interface {
	// Insert creates a new schedule.
	Insert(ctx context.Context, s *models.Schedule) error

	// Get returns a schedule by id, or ErrNotFound.
	Get(ctx context.Context, id string) (*models.Schedule, error)

	// List returns schedules ordered by creation time. Empty deviceID means
	// all devices; enabledOnly restricts to enabled schedules.
	List(ctx context.Context, deviceID string, enabledOnly bool) ([]models.Schedule, error)

	// SetLastRun records the most recent dispatch time.
	// Returns ErrNotFound for an unknown id.
	SetLastRun(ctx context.Context, id string, at time.Time) error

	// SetEnabled flips the enabled flag. last_run is never reset.
	// Returns ErrNotFound for an unknown id.
	SetEnabled(ctx context.Context, id string, enabled bool) error

	// Delete removes a schedule. Returns ErrNotFound for an unknown id.
	Delete(ctx context.Context, id string) error
}

// Compile-time interface guard.
var _ ScheduleStore = (*SQLiteScheduleStore)(nil)

// SQLiteScheduleStore implements ScheduleStore against the fleet_schedules table.
type SQLiteScheduleStore struct {
	db *sql.DB
}

// NewSQLiteScheduleStore creates a ScheduleStore.
func NewSQLiteScheduleStore(db *sql.DB) *SQLiteScheduleStore {
	return &SQLiteScheduleStore{db: db}
}

const scheduleColumns = `id, device_id, test_type, target, parameters, interval_seconds, enabled, last_run, created_at`

func (s *SQLiteScheduleStore) Insert(ctx context.Context, sch *models.Schedule) error {
	var params any
	if sch.Parameters != nil {
		params = string(sch.Parameters)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fleet_schedules (id, device_id, test_type, target, parameters, interval_seconds, enabled, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sch.ID, sch.DeviceID, string(sch.TestType), sch.Target, params,
		sch.IntervalSeconds, sch.Enabled, sch.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert schedule: %w", err)
	}
	return nil
}

func (s *SQLiteScheduleStore) Get(ctx context.Context, id string) (*models.Schedule, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+scheduleColumns+` FROM fleet_schedules WHERE id = ?`, id)
	sch, err := scanSchedule(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get schedule %q: %w", id, err)
	}
	return sch, nil
}

func (s *SQLiteScheduleStore) List(ctx context.Context, deviceID string, enabledOnly bool) ([]models.Schedule, error) {
	query := `SELECT ` + scheduleColumns + ` FROM fleet_schedules WHERE 1=1`
	var args []any
	if deviceID != "" {
		query += ` AND device_id = ?`
		args = append(args, deviceID)
	}
	if enabledOnly {
		query += ` AND enabled = 1`
	}
	query += ` ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	defer rows.Close()

	schedules := []models.Schedule{}
	for rows.Next() {
		sch, err := scanSchedule(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		schedules = append(schedules, *sch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schedules: %w", err)
	}
	return schedules, nil
}

func (s *SQLiteScheduleStore) SetLastRun(ctx context.Context, id string, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fleet_schedules SET last_run = ? WHERE id = ?`, at, id)
	if err != nil {
		return fmt.Errorf("set last_run %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteScheduleStore) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE fleet_schedules SET enabled = ? WHERE id = ?`, enabled, id)
	if err != nil {
		return fmt.Errorf("set enabled %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteScheduleStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM fleet_schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete schedule %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanSchedule(scan func(dest ...any) error) (*models.Schedule, error) {
	var sch models.Schedule
	var testType string
	var params sql.NullString
	var lastRun sql.NullTime
	err := scan(&sch.ID, &sch.DeviceID, &testType, &sch.Target, &params,
		&sch.IntervalSeconds, &sch.Enabled, &lastRun, &sch.CreatedAt)
	if err != nil {
		return nil, err
	}
	sch.TestType = models.TestType(testType)
	if params.Valid {
		sch.Parameters = []byte(params.String)
	}
	if lastRun.Valid {
		t := lastRun.Time
		sch.LastRun = &t
	}
	return &sch, nil
}
