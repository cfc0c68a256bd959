package domain

import (
	"context"
	"errors"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

// Service drives the open/closed lifecycle and the derived counts of the
// daily order aggregates. Aggregates are created lazily: first touch of an
// unknown (date, meal) slot creates it closed with the configured default
// headcount.
type Service interface {
	// Get returns the aggregate for a slot, creating it if absent.
	Get(ctx context.Context, date string, mealType meal.Type) (*DailyOrder, error)

	// Open sets the slot status to open.
	Open(ctx context.Context, date string, mealType meal.Type) (*DailyOrder, error)

	// Close sets the slot status to closed.
	Close(ctx context.Context, date string, mealType meal.Type) (*DailyOrder, error)

	// Toggle flips the slot status.
	Toggle(ctx context.Context, date string, mealType meal.Type) (*DailyOrder, error)

	// SetTotalPeople updates the operator headcount baseline and
	// recomputes the derived counts. Recompute never touches it.
	SetTotalPeople(ctx context.Context, date string, mealType meal.Type, total int) (*DailyOrder, error)

	// Recompute recounts opt-outs for the slot and derives
	// OrderCount = max(0, TotalPeople - NoEatCount).
	Recompute(ctx context.Context, date string, mealType meal.Type) error
}

var ErrInvalidHeadcount = errors.New("invalid_headcount")
