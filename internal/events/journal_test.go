package events

import (
	"context"
	"testing"

	"github.com/bwmarrin/snowflake"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
)

func newJournalTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrator().DropTable(&JournalEntry{}); err != nil {
		t.Fatalf("drop table: %v", err)
	}
	if err := db.AutoMigrate(&JournalEntry{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func TestJournalRecordSuppressesRedelivery(t *testing.T) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	journal := NewJournal(newJournalTestDB(t), node, clock.SystemClock{})

	env := Envelope{
		EventID:    "ev-100",
		Type:       TypeCardAction,
		OperatorID: "u1",
		Action:     ActionRegisterNoEat,
		MealType:   "lunch",
		Date:       "2025-09-17",
	}

	first, err := journal.Record(context.Background(), env)
	if err != nil {
		t.Fatalf("first record: %v", err)
	}
	if !first {
		t.Fatal("expected first delivery to be recorded as new")
	}

	second, err := journal.Record(context.Background(), env)
	if err != nil {
		t.Fatalf("second record: %v", err)
	}
	if second {
		t.Fatal("expected redelivery to be suppressed")
	}
}

func TestJournalRecordWithoutEventID(t *testing.T) {
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	journal := NewJournal(newJournalTestDB(t), node, clock.SystemClock{})

	env := Envelope{
		Type:       TypeCardAction,
		OperatorID: "u1",
		Action:     ActionRegisterNoEat,
		MealType:   "lunch",
		Date:       "2025-09-17",
	}

	// Without a platform event id the same action must never be deduped.
	for i := 0; i < 2; i++ {
		fresh, err := journal.Record(context.Background(), env)
		if err != nil {
			t.Fatalf("record %d: %v", i, err)
		}
		if !fresh {
			t.Fatalf("record %d unexpectedly deduped", i)
		}
	}
}

func TestJournalSeenOnlyAfterRecord(t *testing.T) {
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	journal := NewJournal(newJournalTestDB(t), node, clock.SystemClock{})

	env := Envelope{
		EventID:    "ev-200",
		Type:       TypeCardAction,
		OperatorID: "u1",
		Action:     ActionRegisterNoEat,
		MealType:   "lunch",
		Date:       "2025-09-17",
	}

	// An event whose handling failed was never recorded, so a redelivery
	// must not look like a duplicate.
	seen, err := journal.Seen(context.Background(), env)
	if err != nil {
		t.Fatalf("seen before record: %v", err)
	}
	if seen {
		t.Fatal("unrecorded event must not be seen")
	}

	if _, err := journal.Record(context.Background(), env); err != nil {
		t.Fatalf("record: %v", err)
	}

	seen, err = journal.Seen(context.Background(), env)
	if err != nil {
		t.Fatalf("seen after record: %v", err)
	}
	if !seen {
		t.Fatal("recorded event must be seen")
	}

	// No platform event id, no dedupe key: never seen.
	anonymous := Envelope{Type: TypeCardAction, OperatorID: "u1", Action: ActionRegisterNoEat}
	if _, err := journal.Record(context.Background(), anonymous); err != nil {
		t.Fatalf("record anonymous: %v", err)
	}
	seen, err = journal.Seen(context.Background(), anonymous)
	if err != nil {
		t.Fatalf("seen anonymous: %v", err)
	}
	if seen {
		t.Fatal("event without a platform id must never be seen")
	}
}
