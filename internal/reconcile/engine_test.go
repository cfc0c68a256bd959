package reconcile

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/config"
	orderdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	ordersvc "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/service"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	optoutdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
	regdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/domain"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

func setupEngine(t *testing.T) (*Engine, *recordstore.Store, orderdomain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	store := recordstore.New(db, zap.NewNop())
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DELETE FROM record_collections`)
	})

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake node: %v", err)
	}
	clk := fixedClock{now: time.Date(2025, 9, 17, 8, 0, 0, 0, time.UTC)}

	orders := ordersvc.NewService(ordersvc.ServiceParam{
		Store:  store,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Config: config.Config{Orders: config.OrderConfig{DefaultHeadcount: 30}},
	})

	engine := NewEngine(EngineParam{
		Store:  store,
		Log:    zap.NewNop(),
		GenID:  node,
		Clock:  clk,
		Orders: orders,
	})
	return engine, store, orders, db
}

func writeLedger(t *testing.T, store *recordstore.Store, records []regdomain.RegistrationRecord) {
	t.Helper()
	if err := recordstore.Write(context.Background(), store, regdomain.CollectionLedger, records); err != nil {
		t.Fatalf("write ledger: %v", err)
	}
}

func noEatRecord(userID, date string, mealType meal.Type) regdomain.RegistrationRecord {
	return regdomain.RegistrationRecord{
		UserID:    userID,
		Date:      date,
		MealType:  mealType,
		DishName:  regdomain.DishNameNoEat,
		CreatedAt: time.Date(2025, 9, 16, 20, 0, 0, 0, time.UTC),
	}
}

func TestReconcileMergesMissingOptOut(t *testing.T) {
	engine, store, orders, _ := setupEngine(t)
	ctx := context.Background()

	writeLedger(t, store, []regdomain.RegistrationRecord{
		noEatRecord("u1", "2025-09-17", meal.Lunch),
	})

	report, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Added != 1 || report.Checked != 1 || report.AlreadyConsistent {
		t.Fatalf("unexpected report: %+v", report)
	}

	index, err := recordstore.Read[optoutdomain.OptOutRecord](ctx, store, optoutdomain.CollectionOptOuts)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if len(index) != 1 || index[0].Key() != (meal.Key{UserID: "u1", Date: "2025-09-17", Meal: meal.Lunch}) {
		t.Fatalf("unexpected index: %+v", index)
	}

	order, err := orders.Get(ctx, "2025-09-17", meal.Lunch)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if order.NoEatCount != 1 || order.OrderCount != 29 {
		t.Fatalf("expected recomputed counts, got noEat=%d order=%d", order.NoEatCount, order.OrderCount)
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	writeLedger(t, store, []regdomain.RegistrationRecord{
		noEatRecord("u1", "2025-09-17", meal.Lunch),
		noEatRecord("u2", "2025-09-17", meal.Dinner),
	})

	first, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if first.Added != 2 {
		t.Fatalf("expected 2 merged, got %+v", first)
	}

	second, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("second reconcile: %v", err)
	}
	if second.Added != 0 || !second.AlreadyConsistent {
		t.Fatalf("second run must merge nothing, got %+v", second)
	}
	if second.IndexBefore != 2 || second.IndexAfter != 2 {
		t.Fatalf("index size must be unchanged, got %+v", second)
	}
}

func TestReconcileMergesSupersededDuplicatesOnce(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	// Two ledger records for the same key: the earlier one was superseded
	// but left in place.
	writeLedger(t, store, []regdomain.RegistrationRecord{
		noEatRecord("u1", "2025-09-17", meal.Lunch),
		noEatRecord("u1", "2025-09-17", meal.Lunch),
	})

	report, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Added != 1 {
		t.Fatalf("expected one merged entry per key, got %+v", report)
	}
}

func TestReconcileIgnoresDishRegistrations(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	writeLedger(t, store, []regdomain.RegistrationRecord{
		{UserID: "u1", Date: "2025-09-17", MealType: meal.Lunch, DishName: "noodles"},
	})

	report, err := engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Checked != 0 || report.Added != 0 {
		t.Fatalf("dish registrations must not be merged, got %+v", report)
	}
}

func TestSyncRatio(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	ratio, err := engine.SyncRatio(ctx)
	if err != nil {
		t.Fatalf("ratio on empty ledger: %v", err)
	}
	if ratio != 1 {
		t.Fatalf("empty no-eat set must be fully synced, got %v", ratio)
	}

	writeLedger(t, store, []regdomain.RegistrationRecord{
		noEatRecord("u1", "2025-09-17", meal.Lunch),
	})
	ratio, err = engine.SyncRatio(ctx)
	if err != nil {
		t.Fatalf("ratio before merge: %v", err)
	}
	if ratio != 0 {
		t.Fatalf("unmirrored entry must give ratio 0, got %v", ratio)
	}

	if _, err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	ratio, err = engine.SyncRatio(ctx)
	if err != nil {
		t.Fatalf("ratio after merge: %v", err)
	}
	if ratio != 1 {
		t.Fatalf("expected full sync after merge, got %v", ratio)
	}
}

func TestStatusRates(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	writeLedger(t, store, []regdomain.RegistrationRecord{
		noEatRecord("u1", "2025-09-17", meal.Lunch),
	})

	if _, err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("first reconcile: %v", err)
	}
	if _, err := engine.Reconcile(ctx); err != nil {
		t.Fatalf("second reconcile: %v", err)
	}

	status := engine.Status()
	if status.TotalChecks != 2 || status.TotalFixes != 1 || status.ErrorCount != 0 {
		t.Fatalf("unexpected counters: %+v", status)
	}
	if status.SuccessRate != 100 || status.FixRate != 50 {
		t.Fatalf("unexpected rates: %+v", status)
	}
	if status.LastFixTime.IsZero() || status.LastSyncTime.IsZero() {
		t.Fatalf("timestamps not recorded: %+v", status)
	}
}

func TestReconcileFailedIndexWriteIsRetried(t *testing.T) {
	engine, store, _, db := setupEngine(t)
	ctx := context.Background()

	writeLedger(t, store, []regdomain.RegistrationRecord{
		noEatRecord("u1", "2025-09-17", meal.Lunch),
	})

	// Block index writes at the database level so the pass fails after
	// the diff is computed.
	trigger := fmt.Sprintf(
		`CREATE TRIGGER block_index_writes BEFORE INSERT ON record_collections
		 WHEN NEW.name = '%s' BEGIN SELECT RAISE(ABORT, 'write blocked'); END`,
		optoutdomain.CollectionOptOuts,
	)
	if err := db.Exec(trigger).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}
	t.Cleanup(func() {
		db.Exec(`DROP TRIGGER IF EXISTS block_index_writes`)
	})

	report, err := engine.Reconcile(ctx)
	if err == nil {
		t.Fatal("expected the blocked index write to fail the pass")
	}
	if report.Added != 0 {
		t.Fatalf("a failed write must not be reported as applied, got %+v", report)
	}

	index, err := recordstore.Read[optoutdomain.OptOutRecord](ctx, store, optoutdomain.CollectionOptOuts)
	if err != nil {
		t.Fatalf("read index: %v", err)
	}
	if len(index) != 0 {
		t.Fatalf("failed pass must leave the index untouched, got %+v", index)
	}

	status := engine.Status()
	if status.ErrorCount != 1 || status.TotalChecks != 1 || status.TotalFixes != 0 {
		t.Fatalf("unexpected counters after failed pass: %+v", status)
	}

	if err := db.Exec(`DROP TRIGGER block_index_writes`).Error; err != nil {
		t.Fatalf("drop trigger: %v", err)
	}

	report, err = engine.Reconcile(ctx)
	if err != nil {
		t.Fatalf("retry pass: %v", err)
	}
	if report.Added != 1 {
		t.Fatalf("next pass must merge the pending entry, got %+v", report)
	}

	status = engine.Status()
	if status.ErrorCount != 1 || status.TotalChecks != 2 || status.TotalFixes != 1 {
		t.Fatalf("unexpected counters after retry: %+v", status)
	}
}

func TestMirrorBackFillsLedgerFromIndex(t *testing.T) {
	engine, store, _, _ := setupEngine(t)
	ctx := context.Background()

	registeredAt := time.Date(2025, 9, 16, 9, 0, 0, 0, time.UTC)
	err := recordstore.Write(ctx, store, optoutdomain.CollectionOptOuts, []optoutdomain.OptOutRecord{
		{UserID: "u9", Date: "2025-09-17", MealType: meal.Lunch, RegisteredAt: registeredAt},
	})
	if err != nil {
		t.Fatalf("write index: %v", err)
	}

	added, err := engine.MirrorBack(ctx)
	if err != nil {
		t.Fatalf("mirror back: %v", err)
	}
	if added != 1 {
		t.Fatalf("expected one backfilled record, got %d", added)
	}

	ledger, err := recordstore.Read[regdomain.RegistrationRecord](ctx, store, regdomain.CollectionLedger)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	if len(ledger) != 1 {
		t.Fatalf("unexpected ledger: %+v", ledger)
	}
	record := ledger[0]
	if !record.IsNoEat() || record.Note != regdomain.NoteBackfilled || !record.CreatedAt.Equal(registeredAt) {
		t.Fatalf("unexpected backfilled record: %+v", record)
	}

	again, err := engine.MirrorBack(ctx)
	if err != nil {
		t.Fatalf("second mirror back: %v", err)
	}
	if again != 0 {
		t.Fatalf("backfill must be idempotent, added %d", again)
	}
}
