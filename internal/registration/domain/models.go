// Package domain contains the canonical meal-registration ledger records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

// CollectionLedger is the record-store collection holding every
// registration decision.
const CollectionLedger = "meal_registrations"

// DishNameNoEat is the sentinel dish recording an explicit "not eating"
// decision in the ledger.
const DishNameNoEat = "__no_eat__"

// NoteBackfilled marks ledger records synthesized from opt-out index
// entries that never got a ledger write of their own.
const NoteBackfilled = "backfilled from opt-out index"

// RegistrationRecord is one user meal decision. The ledger is the source
// of truth; the opt-out index is derived from records whose DishName is
// the no-eat sentinel.
type RegistrationRecord struct {
	ID             snowflake.ID `json:"id"`
	UserID         string       `json:"userId"`
	Date           string       `json:"date"`
	MealType       meal.Type    `json:"mealType"`
	DishID         string       `json:"dishId,omitempty"`
	DishName       string       `json:"dishName"`
	RestaurantName string       `json:"restaurantName,omitempty"`
	Price          int64        `json:"price,omitempty"`
	Note           string       `json:"note,omitempty"`
	CreatedAt      time.Time    `json:"createdAt"`
	UpdatedAt      time.Time    `json:"updatedAt"`
}

// Key returns the record's identity key.
func (r RegistrationRecord) Key() meal.Key {
	return meal.Key{UserID: r.UserID, Date: r.Date, Meal: r.MealType}
}

// IsNoEat reports whether the record is an explicit no-eat decision.
func (r RegistrationRecord) IsNoEat() bool {
	return r.DishName == DishNameNoEat
}
