package middleware

import "context"

type contextKey uint8

const (
	ctxUserID contextKey = iota + 1
	ctxRole
	ctxGuestToken
)

func ctxString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(key).(string)
	return v
}

func withCtxString(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func UserIDFromContext(ctx context.Context) string { return ctxString(ctx, ctxUserID) }

func RoleFromContext(ctx context.Context) string { return ctxString(ctx, ctxRole) }

// GuestTokenFromContext returns the guest cart token resolved by GuestToken.
func GuestTokenFromContext(ctx context.Context) string { return ctxString(ctx, ctxGuestToken) }

func WithUserID(ctx context.Context, userID string) context.Context {
	return withCtxString(ctx, ctxUserID, userID)
}

func WithRole(ctx context.Context, role string) context.Context {
	return withCtxString(ctx, ctxRole, role)
}

func WithGuestToken(ctx context.Context, token string) context.Context {
	return withCtxString(ctx, ctxGuestToken, token)
}
