package cache

import (
	"database/sql"
	"log/slog"
	"testing"

	"github.com/mknutsen/chorequest/internal/notify"
)

func openTestDB(t *testing.T) (*sql.DB, *notify.Hub) {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, notify.NewHub(slog.Default())
}
