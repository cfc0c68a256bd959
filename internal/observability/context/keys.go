package context

import "context"

type contextKey string

const (
	requestIDKey  contextKey = "observability_request_id"
	operatorIDKey contextKey = "observability_operator_id"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	if ctx == nil || requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey).(string)
	return value
}

// WithOperatorID attaches the platform user an inbound event or API call
// is acting for, so downstream log lines can carry it.
func WithOperatorID(ctx context.Context, operatorID string) context.Context {
	if ctx == nil || operatorID == "" {
		return ctx
	}
	return context.WithValue(ctx, operatorIDKey, operatorID)
}

func OperatorIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(operatorIDKey).(string)
	return value
}
