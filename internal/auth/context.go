package auth

import (
	"context"
	"errors"

	"callflex/internal/tenants"
)

type ctxKey struct{}

type identityKey struct{}

var ErrNoUser = errors.New("auth: no user in context")

func WithUser(ctx context.Context, u tenants.User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

func User(ctx context.Context) (tenants.User, error) {
	if u, ok := ctx.Value(ctxKey{}).(tenants.User); ok && u.ID != "" {
		return u, nil
	}
	return tenants.User{}, ErrNoUser
}

// UserID is User(ctx).ID, or "" when unauthenticated.
func UserID(ctx context.Context) string {
	u, _ := User(ctx)
	return u.ID
}

// WithIdentity carries verified token claims for routes that run before a
// users row exists.
func WithIdentity(ctx context.Context, c Claims) context.Context {
	return context.WithValue(ctx, identityKey{}, c)
}

func Identity(ctx context.Context) (Claims, bool) {
	c, ok := ctx.Value(identityKey{}).(Claims)
	return c, ok && c.Subject != ""
}
