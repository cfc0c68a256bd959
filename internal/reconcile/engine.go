// Package reconcile converges the opt-out index toward the registration
// ledger. The two collections are written by independent code paths with
// no shared transaction, so they drift; the engine computes the one-way
// diff (ledger no-eat entries missing from the index) and merges it in.
package reconcile

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
	orderdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/metrics"
	optoutdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/optout/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
	regdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/domain"
)

// Report summarizes one reconciliation pass.
type Report struct {
	AlreadyConsistent bool `json:"alreadyConsistent"`
	Checked           int  `json:"checked"`     // ledger no-eat records considered
	IndexBefore       int  `json:"indexBefore"` // index size before the merge
	Added             int  `json:"added"`       // entries merged in
	IndexAfter        int  `json:"indexAfter"`  // index size after the merge
}

// Status is the operational health surface of the engine.
type Status struct {
	IsRunning    bool      `json:"isRunning"`
	TotalChecks  int64     `json:"totalChecks"`
	TotalFixes   int64     `json:"totalFixes"`
	ErrorCount   int64     `json:"errorCount"`
	LastSyncTime time.Time `json:"lastSyncTime"`
	LastFixTime  time.Time `json:"lastFixTime"`
	SuccessRate  float64   `json:"successRate"` // % of passes without error
	FixRate      float64   `json:"fixRate"`     // % of passes that merged entries
}

type EngineParam struct {
	fx.In

	Store   *recordstore.Store
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Orders  orderdomain.Service
	Metrics *metrics.SyncMetrics
}

type Engine struct {
	store   *recordstore.Store
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	orders  orderdomain.Service
	metrics *metrics.SyncMetrics

	mu           sync.Mutex
	running      bool
	totalChecks  int64
	totalFixes   int64
	fixPasses    int64
	errorCount   int64
	lastSyncTime time.Time
	lastFixTime  time.Time
}

func NewEngine(p EngineParam) *Engine {
	return &Engine{
		store:   p.Store,
		log:     p.Log.Named("reconcile"),
		genID:   p.GenID,
		clock:   p.Clock,
		orders:  p.Orders,
		metrics: p.Metrics,
	}
}

// Reconcile runs one ledger-to-index pass. It is idempotent: a second run
// with no intervening ledger writes merges nothing. It is safe to run
// concurrently with ordinary writers — a write that lands between the read
// and the merge is picked up by the next pass.
func (e *Engine) Reconcile(ctx context.Context) (Report, error) {
	report, err := e.reconcileOnce(ctx)
	e.recordOutcome(report, err)
	return report, err
}

func (e *Engine) reconcileOnce(ctx context.Context) (Report, error) {
	ledger, err := recordstore.Read[regdomain.RegistrationRecord](ctx, e.store, regdomain.CollectionLedger)
	if err != nil {
		return Report{}, err
	}

	noEat := make([]regdomain.RegistrationRecord, 0)
	for _, r := range ledger {
		if r.IsNoEat() && r.UserID != "" {
			noEat = append(noEat, r)
		}
	}

	release := e.store.Acquire(optoutdomain.CollectionOptOuts)
	defer release()

	index, err := recordstore.Read[optoutdomain.OptOutRecord](ctx, e.store, optoutdomain.CollectionOptOuts)
	if err != nil {
		return Report{}, err
	}

	existing := make(map[meal.Key]struct{}, len(index))
	for _, r := range index {
		existing[r.Key()] = struct{}{}
	}

	report := Report{
		Checked:     len(noEat),
		IndexBefore: len(index),
	}

	var missing []optoutdomain.OptOutRecord
	touched := make(map[orderdomain.SlotKey]struct{})
	for _, r := range noEat {
		key := r.Key()
		if _, ok := existing[key]; ok {
			continue
		}
		// The ledger may hold superseded duplicates for a key; merge
		// each key once.
		existing[key] = struct{}{}
		missing = append(missing, optoutdomain.OptOutRecord{
			UserID:       r.UserID,
			Date:         r.Date,
			MealType:     r.MealType,
			RegisteredAt: r.CreatedAt,
		})
		touched[orderdomain.SlotKey{Date: r.Date, Meal: r.MealType}] = struct{}{}
	}

	if len(missing) == 0 {
		report.AlreadyConsistent = true
		report.IndexAfter = len(index)
		return report, nil
	}

	merged := append(index, missing...)
	if err := recordstore.Write(ctx, e.store, optoutdomain.CollectionOptOuts, merged); err != nil {
		// The diff was correct but unapplied; the next pass recomputes
		// it from scratch.
		return report, err
	}

	report.Added = len(missing)
	report.IndexAfter = len(merged)

	for slot := range touched {
		if err := e.orders.Recompute(ctx, slot.Date, slot.Meal); err != nil {
			e.log.Warn("order recompute after merge failed",
				zap.String("date", slot.Date),
				zap.String("meal", string(slot.Meal)),
				zap.Error(err),
			)
		}
	}

	e.log.Info("reconciliation merged missing opt-outs",
		zap.Int("checked", report.Checked),
		zap.Int("index_before", report.IndexBefore),
		zap.Int("added", report.Added),
		zap.Int("index_after", report.IndexAfter),
	)
	return report, nil
}

// MirrorBack copies index entries that never got a ledger write into the
// ledger as synthetic no-eat records. Off by default; enabled by
// configuration.
func (e *Engine) MirrorBack(ctx context.Context) (int, error) {
	index, err := recordstore.Read[optoutdomain.OptOutRecord](ctx, e.store, optoutdomain.CollectionOptOuts)
	if err != nil {
		return 0, err
	}

	release := e.store.Acquire(regdomain.CollectionLedger)
	defer release()

	ledger, err := recordstore.Read[regdomain.RegistrationRecord](ctx, e.store, regdomain.CollectionLedger)
	if err != nil {
		return 0, err
	}

	inLedger := make(map[meal.Key]struct{}, len(ledger))
	for _, r := range ledger {
		inLedger[r.Key()] = struct{}{}
	}

	added := 0
	for _, r := range index {
		if _, ok := inLedger[r.Key()]; ok {
			continue
		}
		ledger = append(ledger, regdomain.RegistrationRecord{
			ID:        e.genID.Generate(),
			UserID:    r.UserID,
			Date:      r.Date,
			MealType:  r.MealType,
			DishName:  regdomain.DishNameNoEat,
			Note:      regdomain.NoteBackfilled,
			CreatedAt: r.RegisteredAt,
			UpdatedAt: e.clock.Now(),
		})
		added++
	}
	if added == 0 {
		return 0, nil
	}
	if err := recordstore.Write(ctx, e.store, regdomain.CollectionLedger, ledger); err != nil {
		return 0, err
	}
	e.log.Info("ledger backfilled from opt-out index", zap.Int("added", added))
	return added, nil
}

// SyncRatio reports how much of the ledger's no-eat set is mirrored in
// the index: |S ∩ index| / |S|, defined as 1.0 when S is empty.
func (e *Engine) SyncRatio(ctx context.Context) (float64, error) {
	ledger, err := recordstore.Read[regdomain.RegistrationRecord](ctx, e.store, regdomain.CollectionLedger)
	if err != nil {
		return 0, err
	}
	index, err := recordstore.Read[optoutdomain.OptOutRecord](ctx, e.store, optoutdomain.CollectionOptOuts)
	if err != nil {
		return 0, err
	}

	indexed := make(map[meal.Key]struct{}, len(index))
	for _, r := range index {
		indexed[r.Key()] = struct{}{}
	}

	total := 0
	mirrored := 0
	seen := make(map[meal.Key]struct{})
	for _, r := range ledger {
		if !r.IsNoEat() || r.UserID == "" {
			continue
		}
		key := r.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		total++
		if _, ok := indexed[key]; ok {
			mirrored++
		}
	}
	if total == 0 {
		e.metrics.SetRatio(1)
		return 1, nil
	}
	ratio := float64(mirrored) / float64(total)
	e.metrics.SetRatio(ratio)
	return ratio, nil
}

func (e *Engine) recordOutcome(report Report, err error) {
	now := e.clock.Now()

	e.mu.Lock()
	e.totalChecks++
	e.lastSyncTime = now
	switch {
	case err != nil:
		e.errorCount++
	case report.Added > 0:
		e.totalFixes += int64(report.Added)
		e.fixPasses++
		e.lastFixTime = now
	}
	e.mu.Unlock()

	e.metrics.SetLastRunUnix(now.Unix())
	switch {
	case err != nil:
		e.metrics.IncRun("failed")
	case report.Added > 0:
		e.metrics.IncRun("fixed")
		e.metrics.AddFixed(report.Added)
	default:
		e.metrics.IncRun("consistent")
	}
}

func (e *Engine) setRunning(running bool) {
	e.mu.Lock()
	e.running = running
	e.mu.Unlock()
}

// Status reports engine health for the operational status endpoint.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		IsRunning:    e.running,
		TotalChecks:  e.totalChecks,
		TotalFixes:   e.totalFixes,
		ErrorCount:   e.errorCount,
		LastSyncTime: e.lastSyncTime,
		LastFixTime:  e.lastFixTime,
	}
	if e.totalChecks > 0 {
		status.SuccessRate = 100 * float64(e.totalChecks-e.errorCount) / float64(e.totalChecks)
		status.FixRate = 100 * float64(e.fixPasses) / float64(e.totalChecks)
	}
	return status
}
