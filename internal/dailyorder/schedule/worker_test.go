package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	domain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

type adjustableClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *adjustableClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *adjustableClock) set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

type fakeOrders struct {
	mu     sync.Mutex
	opens  []string
	closes []string
	fail   bool
}

func (f *fakeOrders) Get(_ context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	return &domain.DailyOrder{Date: date, MealType: mealType}, nil
}

func (f *fakeOrders) Open(_ context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return nil, context.DeadlineExceeded
	}
	f.opens = append(f.opens, date+"/"+string(mealType))
	return &domain.DailyOrder{Date: date, MealType: mealType, Status: domain.StatusOpen}, nil
}

func (f *fakeOrders) Close(_ context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, date+"/"+string(mealType))
	return &domain.DailyOrder{Date: date, MealType: mealType, Status: domain.StatusClosed}, nil
}

func (f *fakeOrders) Toggle(_ context.Context, date string, mealType meal.Type) (*domain.DailyOrder, error) {
	return &domain.DailyOrder{Date: date, MealType: mealType}, nil
}

func (f *fakeOrders) SetTotalPeople(_ context.Context, date string, mealType meal.Type, _ int) (*domain.DailyOrder, error) {
	return &domain.DailyOrder{Date: date, MealType: mealType}, nil
}

func (f *fakeOrders) Recompute(context.Context, string, meal.Type) error {
	return nil
}

func (f *fakeOrders) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.opens)
}

func (f *fakeOrders) closeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.closes)
}

func (f *fakeOrders) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func newTestWorker(orders domain.Service, clk *adjustableClock, cfg Config) *Worker {
	return NewWorker(Params{
		Orders: orders,
		Log:    zap.NewNop(),
		Clock:  clk,
		Config: cfg,
	})
}

func TestRunOnceFiresAtConfiguredTimes(t *testing.T) {
	orders := &fakeOrders{}
	clk := &adjustableClock{now: time.Date(2025, 9, 17, 7, 0, 0, 0, time.UTC)}
	worker := newTestWorker(orders, clk, Config{OpenAt: "08:00", CloseAt: "10:00"})
	ctx := context.Background()

	worker.RunOnce(ctx)
	if orders.openCount() != 0 {
		t.Fatal("opener must not fire before the mark")
	}

	clk.set(time.Date(2025, 9, 17, 8, 0, 0, 0, time.UTC))
	worker.RunOnce(ctx)
	if orders.openCount() != len(meal.Types()) {
		t.Fatalf("opener must fire for each meal, got %d", orders.openCount())
	}
	if orders.closeCount() != 0 {
		t.Fatal("closer must not fire before its mark")
	}

	clk.set(time.Date(2025, 9, 17, 10, 30, 0, 0, time.UTC))
	worker.RunOnce(ctx)
	if orders.closeCount() != len(meal.Types()) {
		t.Fatalf("closer must fire for each meal, got %d", orders.closeCount())
	}
}

func TestRunOnceFiresOncePerDay(t *testing.T) {
	orders := &fakeOrders{}
	clk := &adjustableClock{now: time.Date(2025, 9, 17, 9, 0, 0, 0, time.UTC)}
	worker := newTestWorker(orders, clk, Config{OpenAt: "08:00"})
	ctx := context.Background()

	worker.RunOnce(ctx)
	worker.RunOnce(ctx)
	if orders.openCount() != len(meal.Types()) {
		t.Fatalf("opener must fire once per day, got %d", orders.openCount())
	}

	clk.set(time.Date(2025, 9, 18, 9, 0, 0, 0, time.UTC))
	worker.RunOnce(ctx)
	if orders.openCount() != 2*len(meal.Types()) {
		t.Fatalf("opener must fire again the next day, got %d", orders.openCount())
	}
}

func TestRunOnceRetriesAfterFailure(t *testing.T) {
	orders := &fakeOrders{}
	clk := &adjustableClock{now: time.Date(2025, 9, 17, 9, 0, 0, 0, time.UTC)}
	worker := newTestWorker(orders, clk, Config{OpenAt: "08:00"})
	ctx := context.Background()

	orders.setFail(true)
	worker.RunOnce(ctx)
	if orders.openCount() != 0 {
		t.Fatal("failed transition must not record opens")
	}

	orders.setFail(false)
	worker.RunOnce(ctx)
	if orders.openCount() != len(meal.Types()) {
		t.Fatalf("next tick must retry the failed day, got %d", orders.openCount())
	}
}
