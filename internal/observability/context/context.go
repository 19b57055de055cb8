// Package context carries request correlation values used by logs, traces and metrics.
package context

import (
	"context"
	"strings"
)

type requestIDKey struct{}

type userKey struct{}

type userValue struct {
	id   string
	role string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	value, _ := ctx.Value(requestIDKey{}).(string)
	return value
}

// WithUser records the caller identity resolved by the gateway headers.
func WithUser(ctx context.Context, userID, role string) context.Context {
	return context.WithValue(ctx, userKey{}, userValue{
		id:   strings.TrimSpace(userID),
		role: strings.TrimSpace(role),
	})
}

func UserFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	value, ok := ctx.Value(userKey{}).(userValue)
	if !ok {
		return "", ""
	}
	return value.id, value.role
}
