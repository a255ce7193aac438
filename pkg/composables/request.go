package composables

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrNoTenant = errors.New("tenant not found in context")

func WithTenantID(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantKey, tenantID)
}

func UseTenantID(ctx context.Context) (uuid.UUID, error) {
	id, ok := ctx.Value(tenantKey).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, ErrNoTenant
	}
	return id, nil
}

func WithLogger(ctx context.Context, logger *logrus.Entry) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// UseLogger returns the request scoped logger, or an entry on the standard
// logger outside of a request.
func UseLogger(ctx context.Context) *logrus.Entry {
	if logger, ok := ctx.Value(loggerKey).(*logrus.Entry); ok && logger != nil {
		return logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func UseRequestID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(requestIDKey).(string)
	return v, ok && v != ""
}
