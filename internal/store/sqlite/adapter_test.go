package sqlite

import (
	"context"
	"testing"

	"github.com/chandrahoro/reading-service/internal/store"
	"github.com/chandrahoro/reading-service/internal/store/storetest"
)

func TestSqliteStoreCompliance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		db, err := OpenMemory()
		if err != nil {
			t.Fatalf("OpenMemory: %v", err)
		}
		t.Cleanup(func() { _ = db.Close() })
		if err := EnsureSchema(context.Background(), db); err != nil {
			t.Fatalf("EnsureSchema: %v", err)
		}
		return NewWithDB(db)
	})
}
