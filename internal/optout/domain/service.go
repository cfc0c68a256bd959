package domain

import (
	"context"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

// Service maintains the opt-out index.
type Service interface {
	// Add inserts an opt-out for the key if absent. Idempotent: a
	// duplicate add leaves the index unchanged and reports added=false.
	Add(ctx context.Context, key meal.Key) (added bool, err error)

	// Remove deletes the opt-out for the key if present.
	Remove(ctx context.Context, key meal.Key) (removed bool, err error)

	// Exists answers "did this user opt out of this meal" from a cached
	// lookup in front of the collection.
	Exists(ctx context.Context, key meal.Key) (bool, error)

	// ListByDateMeal returns opt-outs for one (date, meal) slot.
	ListByDateMeal(ctx context.Context, date string, mealType meal.Type) ([]OptOutRecord, error)

	// List returns the whole index.
	List(ctx context.Context) ([]OptOutRecord, error)
}

// CountObserver is notified after any index mutation for a key so the
// per-(date, meal) aggregate can recount. Implemented by the daily order
// state machine.
type CountObserver interface {
	Recompute(ctx context.Context, date string, mealType meal.Type) error
}
