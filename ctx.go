package authstate

import (
	"context"
)

var userCtxKey = &contextKey{"user"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// HasRole reports whether the context carries a user with the given role.
func HasRole(ctx context.Context, role Role) bool {
	user, ok := FromContext(ctx)
	if !ok || user == nil {
		return false
	}
	return user.Role.Allows(role)
}
