package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	obscontext "github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/context"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/logger"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/observability/tracing"
)

// WebhookEvent ingests platform events, from the event channel forwarder
// or from the platform directly. Both payload shapes are accepted.
// Validation failures are 400 and must not be retried; redeliveries of an
// already-handled event are acknowledged without acting twice.
func (s *Server) WebhookEvent(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	env, err := events.Normalize(body)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if ce := logFromContext(c).Check(zap.DebugLevel, "webhook payload received"); ce != nil {
		var payload map[string]any
		if json.Unmarshal(body, &payload) == nil {
			ce.Write(zap.Any("payload", logger.MaskJSON(payload)))
		}
	}

	// The channel forwarder injects trace headers through its wrapped
	// client; pick them up so the hop stays linked.
	ctx := tracing.ExtractContext(c.Request.Context(), propagation.HeaderCarrier(c.Request.Header))
	ctx = obscontext.WithOperatorID(ctx, env.OperatorID)
	c.Request = c.Request.WithContext(ctx)

	// A seen event was journaled after its effects were applied. An event
	// whose handler failed was never journaled, so a redelivery retries it
	// instead of being swallowed as a duplicate.
	seen, err := s.journal.Seen(ctx, env)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if seen {
		logFromContext(c).Info("duplicate event acknowledged",
			zap.String("event_id", env.EventID),
			zap.String("type", env.Type),
		)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"handled": false, "duplicate": true}})
		return
	}

	switch env.Type {
	case events.TypeCardAction:
		s.handleCardAction(c, env)
	case events.TypeMessage:
		if _, err := s.journal.Record(ctx, env); err != nil {
			AbortWithError(c, err)
			return
		}
		logFromContext(c).Info("message event received",
			zap.String("operator_id", env.OperatorID),
		)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"handled": false}})
	default:
		AbortWithError(c, events.ErrUnknownType)
	}
}

// recordHandled journals an event whose effects are fully applied. A
// journal failure is logged, not surfaced: the writes are idempotent, so
// the worst case of a lost entry is a redelivered event repeating them.
func (s *Server) recordHandled(c *gin.Context, env events.Envelope) {
	if _, err := s.journal.Record(c.Request.Context(), env); err != nil {
		logFromContext(c).Warn("event journal write failed",
			zap.String("event_id", env.EventID),
			zap.Error(err),
		)
	}
}

func (s *Server) handleCardAction(c *gin.Context, env events.Envelope) {
	mealType, err := meal.ParseType(env.MealType)
	if err != nil {
		AbortWithError(c, newValidationError("mealType", "invalid_meal_type", "card action carries no valid meal type"))
		return
	}
	date := env.Date
	if date == "" {
		date = s.clock.Now().Format(meal.DateLayout)
	}

	ctx := c.Request.Context()
	switch env.Action {
	case events.ActionRegisterNoEat:
		record, err := s.regSvc.RegisterNoEat(ctx, env.OperatorID, date, mealType)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if _, err := s.optSvc.Add(ctx, record.Key()); err != nil {
			AbortWithError(c, err)
			return
		}
		s.recordHandled(c, env)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"handled": true, "action": env.Action}})

	case events.ActionCancelNoEat:
		key, err := meal.NewKey(env.OperatorID, date, mealType)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		if _, err := s.regSvc.CancelNoEat(ctx, key.UserID, key.Date, key.Meal); err != nil {
			AbortWithError(c, err)
			return
		}
		if _, err := s.optSvc.Remove(ctx, key); err != nil {
			AbortWithError(c, err)
			return
		}
		s.recordHandled(c, env)
		c.JSON(http.StatusOK, gin.H{"data": gin.H{"handled": true, "action": env.Action}})

	default:
		AbortWithError(c, newValidationError("action", "unknown_action", "unsupported card action"))
	}
}
