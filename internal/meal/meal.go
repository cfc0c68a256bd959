// Package meal defines the composite key every record collection shares:
// a user, an ISO calendar date, and a meal type.
package meal

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Type is the meal slot a decision applies to.
type Type string

const (
	Lunch  Type = "lunch"
	Dinner Type = "dinner"
)

// DateLayout is the ISO calendar date format used across all collections.
const DateLayout = "2006-01-02"

var (
	ErrInvalidType = errors.New("invalid_meal_type")
	ErrInvalidDate = errors.New("invalid_date")
	ErrInvalidUser = errors.New("invalid_user")
)

// Types lists every valid meal type in schedule order.
func Types() []Type { return []Type{Lunch, Dinner} }

// ParseType normalizes and validates a meal type string.
func ParseType(s string) (Type, error) {
	switch Type(strings.ToLower(strings.TrimSpace(s))) {
	case Lunch:
		return Lunch, nil
	case Dinner:
		return Dinner, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
}

// ParseDate validates an ISO calendar date and returns it normalized.
func ParseDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return t.Format(DateLayout), nil
}

// Key identifies one decision slot. At most one logically current record
// exists per key in any collection.
type Key struct {
	UserID string
	Date   string
	Meal   Type
}

// NewKey validates the parts and assembles a Key.
func NewKey(userID, date string, mealType Type) (Key, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Key{}, ErrInvalidUser
	}
	normalized, err := ParseDate(date)
	if err != nil {
		return Key{}, err
	}
	parsed, err := ParseType(string(mealType))
	if err != nil {
		return Key{}, err
	}
	return Key{UserID: userID, Date: normalized, Meal: parsed}, nil
}

func (k Key) String() string {
	return k.UserID + "/" + k.Date + "/" + string(k.Meal)
}
