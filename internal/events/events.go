// Package events defines the inbound platform event contract: type
// discriminators, the normalized envelope, and acceptance of both payload
// shapes the platform sends.
package events

import (
	"encoding/json"
	"errors"
	"strings"
)

// Event type discriminators.
const (
	TypeMessage    = "message"     // plain chat message
	TypeCardAction = "card_action" // interactive-card button press
)

// Card actions the robot understands.
const (
	ActionRegisterNoEat = "register_no_eat"
	ActionCancelNoEat   = "cancel_no_eat"
)

var (
	ErrMissingOperator = errors.New("missing_operator")
	ErrUnknownType     = errors.New("unknown_event_type")
)

// Envelope is the normalized inbound event handed to the webhook handler.
type Envelope struct {
	EventID      string `json:"eventId,omitempty"`
	Type         string `json:"type"`
	OperatorID   string `json:"operatorId"`
	OperatorName string `json:"operatorName,omitempty"`
	Action       string `json:"action,omitempty"`
	MealType     string `json:"mealType,omitempty"`
	Date         string `json:"date,omitempty"`
	Text         string `json:"text,omitempty"`
}

// DedupeKey identifies an event for duplicate suppression across platform
// redeliveries. The platform's own event id is authoritative; without one
// there is no safe way to tell a redelivery from a repeated user action,
// so the key is empty and the caller skips dedupe.
func (e Envelope) DedupeKey() string {
	if e.EventID == "" {
		return ""
	}
	return e.Type + "|" + e.EventID
}

// flat is the older single-level payload shape.
type flat struct {
	EventID      string `json:"eventId"`
	Type         string `json:"type"`
	EventType    string `json:"eventType"`
	OperatorID   string `json:"operatorId"`
	OperatorName string `json:"operatorName"`
	Action       string `json:"action"`
	MealType     string `json:"mealType"`
	Date         string `json:"date"`
	Text         string `json:"text"`
}

// nested is the v2 platform shape: {header, event}.
type nested struct {
	Header struct {
		EventID   string `json:"event_id"`
		EventType string `json:"event_type"`
	} `json:"header"`
	Event struct {
		Operator struct {
			OperatorID string `json:"operator_id"`
			OpenID     string `json:"open_id"`
			Name       string `json:"operator_name"`
		} `json:"operator"`
		Action struct {
			Value struct {
				Action   string `json:"action"`
				MealType string `json:"mealType"`
				Date     string `json:"date"`
			} `json:"value"`
		} `json:"action"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"event"`
}

// Normalize accepts both payload shapes and produces one Envelope. An
// event without an operator identity is rejected — there is nobody to
// attribute the decision to.
func Normalize(raw []byte) (Envelope, error) {
	var n nested
	if err := json.Unmarshal(raw, &n); err == nil && n.Header.EventType != "" {
		env := Envelope{
			EventID:      n.Header.EventID,
			Type:         canonicalType(n.Header.EventType),
			OperatorID:   firstNonEmpty(n.Event.Operator.OperatorID, n.Event.Operator.OpenID),
			OperatorName: n.Event.Operator.Name,
			Action:       n.Event.Action.Value.Action,
			MealType:     n.Event.Action.Value.MealType,
			Date:         n.Event.Action.Value.Date,
			Text:         n.Event.Message.Content,
		}
		return validate(env)
	}

	var f flat
	if err := json.Unmarshal(raw, &f); err != nil {
		return Envelope{}, errors.Join(ErrUnknownType, err)
	}
	env := Envelope{
		EventID:      f.EventID,
		Type:         canonicalType(firstNonEmpty(f.Type, f.EventType)),
		OperatorID:   strings.TrimSpace(f.OperatorID),
		OperatorName: f.OperatorName,
		Action:       f.Action,
		MealType:     f.MealType,
		Date:         f.Date,
		Text:         f.Text,
	}
	return validate(env)
}

func validate(env Envelope) (Envelope, error) {
	if env.Type == "" {
		return Envelope{}, ErrUnknownType
	}
	if env.OperatorID == "" {
		return Envelope{}, ErrMissingOperator
	}
	return env, nil
}

func canonicalType(eventType string) string {
	switch strings.ToLower(strings.TrimSpace(eventType)) {
	case TypeMessage, "im.message.receive_v1", "message_received":
		return TypeMessage
	case TypeCardAction, "card.action.trigger", "interactive_action":
		return TypeCardAction
	default:
		return ""
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
