package fleet

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/perquyk/snutz/pkg/models"
)

// ResultStore is the append-only log of diagnostic test outcomes.
// Results are immutable once written; there is no update or delete.
type ResultStore interface {
	// Insert appends a result and assigns its sequential id.
	Insert(ctx context.Context, r *models.TestResult) error

	// Get returns a result by id, or ErrNotFound.
	Get(ctx context.Context, id int64) (*models.TestResult, error)

	// List returns results newest-first, optionally filtered by device.
	List(ctx context.Context, deviceID string, limit int) ([]models.TestResult, error)
}

// Compile-time interface guard.
var _ ResultStore = (*SQLiteResultStore)(nil)

// SQLiteResultStore implements ResultStore against the fleet_test_results table.
type SQLiteResultStore struct {
	db *sql.DB
}

// NewSQLiteResultStore creates a ResultStore.
func NewSQLiteResultStore(db *sql.DB) *SQLiteResultStore {
	return &SQLiteResultStore{db: db}
}

const resultColumns = `id, device_id, test_type, target, result_data, triggered_by, created_at`

func (s *SQLiteResultStore) Insert(ctx context.Context, r *models.TestResult) error {
	data := "{}"
	if r.Data != nil {
		data = string(r.Data)
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO fleet_test_results (device_id, test_type, target, result_data, triggered_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.DeviceID, string(r.TestType), r.Target, data, string(r.TriggeredBy), r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert result: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("result id: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteResultStore) Get(ctx context.Context, id int64) (*models.TestResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+resultColumns+` FROM fleet_test_results WHERE id = ?`, id)
	r, err := scanResult(row.Scan)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get result %d: %w", id, err)
	}
	return r, nil
}

func (s *SQLiteResultStore) List(ctx context.Context, deviceID string, limit int) ([]models.TestResult, error) {
	query := `SELECT ` + resultColumns + ` FROM fleet_test_results`
	var args []any
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	results := []models.TestResult{}
	for rows.Next() {
		r, err := scanResult(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		results = append(results, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate results: %w", err)
	}
	return results, nil
}

func scanResult(scan func(dest ...any) error) (*models.TestResult, error) {
	var r models.TestResult
	var testType, triggeredBy, data string
	err := scan(&r.ID, &r.DeviceID, &testType, &r.Target, &data, &triggeredBy, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	r.TestType = models.TestType(testType)
	r.TriggeredBy = models.TriggerOrigin(triggeredBy)
	r.Data = []byte(data)
	return &r, nil
}
