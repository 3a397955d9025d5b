package testutil

import (
	"testing"

	"github.com/perquyk/snutz/internal/store"
)

// NewStore returns an in-memory SQLite store that is closed when the test
// finishes. Callers run their own migrations.
func NewStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.New(":memory:")
	if err != nil {
		t.Fatalf("testutil.NewStore: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}
