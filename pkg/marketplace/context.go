package marketplace

import (
	"context"
	"strings"
)

type bearerKey struct{}

// WithBearer stores the caller's access token so backend calls act on the caller's behalf.
func WithBearer(ctx context.Context, token string) context.Context {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, bearerKey{}, token)
}

// BearerFromContext returns the caller token stored by WithBearer.
func BearerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	token, _ := ctx.Value(bearerKey{}).(string)
	return token
}
