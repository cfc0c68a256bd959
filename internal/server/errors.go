package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/zhangsherry780-arch/order-robot-sub000/internal/channel"
	orderdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/dailyorder/domain"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/events"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/meal"
	"github.com/zhangsherry780-arch/order-robot-sub000/internal/recordstore"
	regdomain "github.com/zhangsherry780-arch/order-robot-sub000/internal/registration/domain"
)

var (
	ErrNotFound        = errors.New("not_found")
	ErrTooManyRequests = errors.New("too_many_requests")
)

// ValidationError is a client error tied to one request field.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return e.Code
}

func newValidationError(field, code, message string) error {
	return &ValidationError{Field: field, Code: code, Message: message}
}

func invalidRequestError() error {
	return newValidationError("", "invalid_request", "invalid request body")
}

// AbortWithError maps an error onto a status code and a JSON error body.
// Storage failures are logged with detail but surfaced generically.
func AbortWithError(c *gin.Context, err error) {
	var validation *ValidationError
	if errors.As(err, &validation) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": validation})
		return
	}

	switch {
	case isDomainValidation(err):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": err.Error(), "message": "invalid request"},
		})
	case errors.Is(err, ErrNotFound), errors.Is(err, regdomain.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": "not_found", "message": "resource not found"},
		})
	case errors.Is(err, ErrTooManyRequests):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error": gin.H{"code": "too_many_requests", "message": "rate limit exceeded"},
		})
	case errors.Is(err, channel.ErrChannelNotInitialized), errors.Is(err, channel.ErrStaleHandle):
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"error": gin.H{"code": err.Error(), "message": "channel unavailable"},
		})
	case errors.Is(err, recordstore.ErrStorage):
		logFromContext(c).Error("storage failure", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "storage_error", "message": "storage operation failed"},
		})
	default:
		logFromContext(c).Error("unhandled error", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "internal_error", "message": "internal error"},
		})
	}
}

func isDomainValidation(err error) bool {
	for _, candidate := range []error{
		meal.ErrInvalidType,
		meal.ErrInvalidDate,
		meal.ErrInvalidUser,
		regdomain.ErrInvalidDish,
		orderdomain.ErrInvalidHeadcount,
		events.ErrMissingOperator,
		events.ErrUnknownType,
	} {
		if errors.Is(err, candidate) {
			return true
		}
	}
	return false
}
