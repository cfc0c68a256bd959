// Package domain contains the per-(date, meal) daily order aggregate.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
)

// CollectionOrders is the record-store collection holding the aggregates.
const CollectionOrders = "daily_orders"

// Status is the registration window state for one (date, meal) slot.
type Status string

const (
	StatusOpen   Status = "open"
	StatusClosed Status = "closed"
)

// DailyOrder rolls up one (date, meal) slot: the operator-set headcount
// baseline, the derived opt-out count, and the order count placed with the
// restaurant.
type DailyOrder struct {
	ID          snowflake.ID `json:"id"`
	Date        string       `json:"date"`
	MealType    meal.Type    `json:"mealType"`
	TotalPeople int          `json:"totalPeople"`
	NoEatCount  int          `json:"noEatCount"`
	OrderCount  int          `json:"orderCount"`
	Status      Status       `json:"status"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// SlotKey identifies the aggregate.
type SlotKey struct {
	Date string
	Meal meal.Type
}

func (o DailyOrder) SlotKey() SlotKey {
	return SlotKey{Date: o.Date, Meal: o.MealType}
}
