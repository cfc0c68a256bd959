package recordstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testRecord struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := New(db, zap.NewNop())
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM record_collections`)
	})
	return store
}

func TestReadMissingCollectionIsEmpty(t *testing.T) {
	store := setupStore(t)

	records, err := Read[testRecord](context.Background(), store, "missing")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected empty collection, got %d records", len(records))
	}
}

func TestWriteReplacesWholeCollection(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first := []testRecord{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}
	if err := Write(ctx, store, "replace_test", first); err != nil {
		t.Fatalf("write: %v", err)
	}

	second := []testRecord{{ID: 3, Name: "c"}}
	if err := Write(ctx, store, "replace_test", second); err != nil {
		t.Fatalf("rewrite: %v", err)
	}

	records, err := Read[testRecord](ctx, store, "replace_test")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(records) != 1 || records[0].ID != 3 {
		t.Fatalf("expected the second write to replace the collection, got %+v", records)
	}
}

func TestWriteNilBecomesEmptyArray(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := Write[testRecord](ctx, store, "nil_test", nil); err != nil {
		t.Fatalf("write nil: %v", err)
	}
	raw, err := store.ReadRaw(ctx, "nil_test")
	if err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if string(raw) != "[]" {
		t.Fatalf("expected empty array document, got %q", raw)
	}
}

func TestReadMalformedPayloadIsStorageError(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.db.Exec(
		`INSERT INTO record_collections (name, payload, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`,
		"corrupt", `{"not":"an array"`,
	).Error; err != nil {
		t.Fatalf("seed corrupt row: %v", err)
	}

	_, err := Read[testRecord](ctx, store, "corrupt")
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("expected storage error, got %v", err)
	}
}

func TestAcquireSerializesSameCollection(t *testing.T) {
	store := setupStore(t)

	release := store.Acquire("ledger")
	acquired := make(chan struct{})
	go func() {
		r := store.Acquire("ledger")
		close(acquired)
		r()
	}()

	time.Sleep(20 * time.Millisecond)
	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while the first was held")
	default:
	}

	// A different collection must not block.
	releaseOther := store.Acquire("optouts")
	releaseOther()

	release()
	<-acquired
}
