// Package recordstore persists named record collections as whole JSON
// documents. A collection is read and replaced in its entirety; a reader
// never observes a partially written collection. There is no transaction
// spanning two collections — callers that maintain derived collections
// reconcile them after the fact.
package recordstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrStorage marks a collection that could not be read or written. Callers
// must treat the whole operation as failed; partial success is never
// reported.
var ErrStorage = errors.New("storage_error")

// Collection is one whole-document record collection. Payload holds the
// full JSON array of records.
type Collection struct {
	Name      string         `gorm:"primaryKey;type:text"`
	Payload   datatypes.JSON `gorm:"type:json;not null"`
	UpdatedAt time.Time      `gorm:"not null"`
}

// TableName sets the database table name.
func (Collection) TableName() string { return "record_collections" }

// Store provides whole-collection reads and atomic whole-collection
// replacement over a single table.
type Store struct {
	db  *gorm.DB
	log *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(db *gorm.DB, log *zap.Logger) *Store {
	return &Store{
		db:    db,
		log:   log.Named("recordstore"),
		locks: make(map[string]*sync.Mutex),
	}
}

// Migrate creates the backing table.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Collection{}); err != nil {
		return fmt.Errorf("migrate record_collections: %w", errors.Join(ErrStorage, err))
	}
	return nil
}

// Acquire locks the named collection for a read-modify-write sequence and
// returns the release func. This serializes writers to one collection
// within the process; it deliberately does not span collections.
func (s *Store) Acquire(name string) func() {
	s.mu.Lock()
	lock, ok := s.locks[name]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[name] = lock
	}
	s.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}

// ReadRaw returns the raw JSON document for a collection, or nil when the
// collection does not exist yet.
func (s *Store) ReadRaw(ctx context.Context, name string) (json.RawMessage, error) {
	var row Collection
	err := s.db.WithContext(ctx).
		Where("name = ?", name).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read collection %q: %w", name, errors.Join(ErrStorage, err))
	}
	return json.RawMessage(row.Payload), nil
}

// WriteRaw replaces the whole collection document in a single row upsert.
func (s *Store) WriteRaw(ctx context.Context, name string, payload json.RawMessage) error {
	if !json.Valid(payload) {
		return fmt.Errorf("write collection %q: invalid payload: %w", name, ErrStorage)
	}
	now := time.Now().UTC()
	err := s.db.WithContext(ctx).Exec(
		`INSERT INTO record_collections (name, payload, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT (name) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
		name,
		datatypes.JSON(payload),
		now,
	).Error
	if err != nil {
		return fmt.Errorf("write collection %q: %w", name, errors.Join(ErrStorage, err))
	}
	return nil
}

// Read decodes the named collection into a slice of T. A missing
// collection decodes to an empty slice.
func Read[T any](ctx context.Context, s *Store, name string) ([]T, error) {
	raw, err := s.ReadRaw(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return []T{}, nil
	}
	var records []T
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("decode collection %q: %w", name, errors.Join(ErrStorage, err))
	}
	if records == nil {
		records = []T{}
	}
	return records, nil
}

// Write replaces the named collection with the given records.
func Write[T any](ctx context.Context, s *Store, name string, records []T) error {
	if records == nil {
		records = []T{}
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode collection %q: %w", name, errors.Join(ErrStorage, err))
	}
	return s.WriteRaw(ctx, name, payload)
}
