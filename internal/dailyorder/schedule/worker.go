package schedule

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/clock"
	domain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

type Params struct {
	fx.In

	Orders domain.Service
	Log    *zap.Logger
	Clock  clock.Clock
	Config Config `optional:"true"`
}

// Worker opens and closes the day's registration windows on a wall-clock
// schedule. It runs on its own ticker and never blocks other periodic
// tasks.
type Worker struct {
	orders domain.Service
	log    *zap.Logger
	clock  clock.Clock
	cfg    Config
	loc    *time.Location

	lastOpenDate  string
	lastCloseDate string
}

func NewWorker(p Params) *Worker {
	cfg := p.Config.withDefaults()
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		p.Log.Warn("invalid schedule timezone, using UTC", zap.String("timezone", cfg.Timezone))
		loc = time.UTC
	}
	return &Worker{
		orders: p.Orders,
		log:    p.Log.Named("dailyorder.schedule"),
		clock:  p.Clock,
		cfg:    cfg,
		loc:    loc,
	}
}

func (w *Worker) RunForever(ctx context.Context) {
	if w.cfg.OpenAt == "" && w.cfg.CloseAt == "" {
		w.log.Info("no open/close schedule configured, opener/closer disabled")
		return
	}
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce fires the opener and closer at most once per day each, the
// first tick at or after the configured wall-clock time.
func (w *Worker) RunOnce(ctx context.Context) {
	now := w.clock.Now().In(w.loc)
	today := now.Format(meal.DateLayout)

	if w.cfg.OpenAt != "" && w.lastOpenDate != today && reached(now, w.cfg.OpenAt) {
		if w.applyAll(ctx, today, w.orders.Open) {
			w.lastOpenDate = today
		}
	}
	if w.cfg.CloseAt != "" && w.lastCloseDate != today && reached(now, w.cfg.CloseAt) {
		if w.applyAll(ctx, today, w.orders.Close) {
			w.lastCloseDate = today
		}
	}
}

func (w *Worker) applyAll(
	ctx context.Context,
	date string,
	op func(context.Context, string, meal.Type) (*domain.DailyOrder, error),
) bool {
	ok := true
	for _, mealType := range meal.Types() {
		if _, err := op(ctx, date, mealType); err != nil {
			// Leave the date marker unset so the next tick retries.
			w.log.Warn("scheduled order transition failed",
				zap.String("date", date),
				zap.String("meal", string(mealType)),
				zap.Error(err),
			)
			ok = false
		}
	}
	return ok
}

// reached reports whether now's wall-clock time is at or past an "HH:MM"
// mark. Malformed marks never fire.
func reached(now time.Time, mark string) bool {
	t, err := time.Parse("15:04", mark)
	if err != nil {
		return false
	}
	nowMinutes := now.Hour()*60 + now.Minute()
	markMinutes := t.Hour()*60 + t.Minute()
	return nowMinutes >= markMinutes
}
