// Package domain contains the derived opt-out index: the fast-lookup
// collection of "not eating" decisions.
package domain

import (
	"time"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

// CollectionOptOuts is the record-store collection holding the index.
const CollectionOptOuts = "no_eat_records"

// OptOutRecord is one "not eating" decision, unique per key. It may
// originate from the ledger (via reconciliation) or directly from a chat
// action before the ledger write lands.
type OptOutRecord struct {
	UserID       string    `json:"userId"`
	Date         string    `json:"date"`
	MealType     meal.Type `json:"mealType"`
	RegisteredAt time.Time `json:"registeredAt"`
}

// Key returns the record's identity key.
func (r OptOutRecord) Key() meal.Key {
	return meal.Key{UserID: r.UserID, Date: r.Date, Meal: r.MealType}
}
