package logger

import (
	"context"

	"github.com/sirupsen/logrus"
)

type correlationKey struct{}

// WithCorrelationID attaches a request correlation id to ctx
func WithCorrelationID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, correlationKey{}, id)
}

// CorrelationID returns the id attached by WithCorrelationID, if any
func CorrelationID(ctx context.Context) string {
	id, _ := ctx.Value(correlationKey{}).(string)
	return id
}

// FromContext adds the correlation id of ctx to base
func FromContext(ctx context.Context, base logrus.FieldLogger) logrus.FieldLogger {
	if id := CorrelationID(ctx); id != "" {
		return base.WithField("correlation_id", id)
	}
	return base
}
