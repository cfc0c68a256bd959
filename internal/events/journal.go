package events

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
)

// JournalEntry is one processed inbound event. The unique dedupe key lets
// the webhook handler suppress platform redeliveries of the same event.
type JournalEntry struct {
	ID        snowflake.ID      `gorm:"primaryKey"`
	EventType string            `gorm:"size:64;not null"`
	DedupeKey string            `gorm:"size:255;uniqueIndex"`
	Payload   datatypes.JSONMap `gorm:"type:jsonb"`
	CreatedAt int64             `gorm:"not null"`
}

func (JournalEntry) TableName() string { return "event_journal" }

// Journal records inbound events for duplicate suppression and audit.
type Journal struct {
	db    *gorm.DB
	genID *snowflake.Node
	clock clock.Clock
}

func NewJournal(db *gorm.DB, genID *snowflake.Node, clk clock.Clock) *Journal {
	return &Journal{db: db, genID: genID, clock: clk}
}

func (j *Journal) Migrate() error {
	return j.db.AutoMigrate(&JournalEntry{})
}

// Seen reports whether an event with the same dedupe key was already
// journaled. Events without a platform id are never considered seen.
func (j *Journal) Seen(ctx context.Context, env Envelope) (bool, error) {
	if j == nil || j.db == nil {
		return false, errors.New("journal_unavailable")
	}
	key := strings.TrimSpace(env.DedupeKey())
	if key == "" {
		return false, nil
	}
	var count int64
	err := j.db.WithContext(ctx).
		Model(&JournalEntry{}).
		Where("dedupe_key = ?", key).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Record stores the event and reports whether it was seen for the first
// time. Callers journal an event only after its effects are applied, so
// a redelivery of a failed event is retried rather than suppressed.
func (j *Journal) Record(ctx context.Context, env Envelope) (bool, error) {
	if j == nil || j.db == nil || j.genID == nil {
		return false, errors.New("journal_unavailable")
	}
	id := j.genID.Generate()
	key := strings.TrimSpace(env.DedupeKey())
	if key == "" {
		// No platform event id: journal the event but never dedupe it.
		key = "local|" + id.String()
	}

	payload := datatypes.JSONMap{
		"operatorId": env.OperatorID,
		"action":     env.Action,
		"mealType":   env.MealType,
		"date":       env.Date,
	}

	entry := JournalEntry{
		ID:        id,
		EventType: env.Type,
		DedupeKey: key,
		Payload:   payload,
		CreatedAt: j.clock.Now().Unix(),
	}
	result := j.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "dedupe_key"}},
			DoNothing: true,
		}).
		Create(&entry)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
