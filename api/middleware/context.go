package middleware

import (
	"context"

	"github.com/angelmondragon/shopfeed-backend/pkg/enums"
)

type contextKey string

const (
	ctxUserID   contextKey = "user_id"
	ctxUserType contextKey = "user_type"
)

// UserIDFromContext returns the authenticated user id, or false for anonymous requests.
func UserIDFromContext(ctx context.Context) (int64, bool) {
	if ctx == nil {
		return 0, false
	}
	v, ok := ctx.Value(ctxUserID).(int64)
	return v, ok && v > 0
}

func UserTypeFromContext(ctx context.Context) enums.UserType {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxUserType).(enums.UserType); ok {
		return v
	}
	return ""
}

// WithUser injects the caller identity into the context.
func WithUser(ctx context.Context, userID int64, userType enums.UserType) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxUserID, userID)
	return context.WithValue(ctx, ctxUserType, userType)
}
