package domain

import (
	"context"
	"errors"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

// CreateRegistrationRequest carries one decision to record.
type CreateRegistrationRequest struct {
	UserID         string
	Date           string
	MealType       string
	DishID         string
	DishName       string
	RestaurantName string
	Price          int64
	Note           string
}

// Service writes and reads the registration ledger.
type Service interface {
	// Register upserts the logically current record for the request's
	// key. Superseded duplicates already present are left in place.
	Register(ctx context.Context, req CreateRegistrationRequest) (*RegistrationRecord, error)

	// RegisterNoEat records an explicit "not eating" decision.
	RegisterNoEat(ctx context.Context, userID, date string, mealType meal.Type) (*RegistrationRecord, error)

	// CancelNoEat removes the user's no-eat records for the key so the
	// decision does not reappear on the next reconciliation pass. Returns
	// false when there was nothing to cancel.
	CancelNoEat(ctx context.Context, userID, date string, mealType meal.Type) (bool, error)

	// Find returns the logically current record for a key, or nil.
	Find(ctx context.Context, key meal.Key) (*RegistrationRecord, error)

	// ListByDateMeal returns current records for a (date, meal) slot.
	ListByDateMeal(ctx context.Context, date string, mealType meal.Type) ([]RegistrationRecord, error)

	// List returns the whole ledger.
	List(ctx context.Context) ([]RegistrationRecord, error)
}

var (
	ErrInvalidDish = errors.New("invalid_dish")
	ErrNotFound    = errors.New("registration_not_found")
)
