package middleware

import "context"

type contextKey string

const (
	ctxIdentityID contextKey = "identity_id"
	ctxSessionID  contextKey = "session_id"
	ctxUserID     contextKey = "user_id"
	ctxRole       contextKey = "actor_role"
)

func IdentityIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxIdentityID)
}

func SessionIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxSessionID)
}

// UserIDFromContext is empty for an authenticated identity that has no backend
// user yet.
func UserIDFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxUserID)
}

func RoleFromContext(ctx context.Context) string {
	return stringValue(ctx, ctxRole)
}

func WithIdentityID(ctx context.Context, identityID string) context.Context {
	return withValue(ctx, ctxIdentityID, identityID)
}

func WithUser(ctx context.Context, userID, role string) context.Context {
	return withValue(withValue(ctx, ctxUserID, userID), ctxRole, role)
}

func stringValue(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

func withValue(ctx context.Context, key contextKey, value string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}
