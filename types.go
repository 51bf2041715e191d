package authstate

import (
	"context"
	"fmt"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// SessionStore is the durable slot holding the current session identity.
// Implementations must be fail-safe: a corrupt slot is cleared and reported
// as absent, and an unavailable backend degrades rather than errors out.
type SessionStore interface {
	// Save persists the serializable projection of the session, overwriting
	// any previous value.
	Save(session *Session) error
	// Load returns the last saved session, or nil when the slot is empty.
	// Corrupt data clears the slot and returns nil.
	Load() (*Session, error)
	// Clear removes the persisted session. Idempotent.
	Clear() error
	// OnExternalChange registers a callback invoked when another process
	// (browser tab analogue) rewrites the slot. Delivery is best-effort and
	// eventually consistent. The returned function cancels the registration.
	OnExternalChange(fn func(*Session)) (cancel func())
}

// RemoteSession is what the identity provider hands back for an
// authenticated principal. AccessToken is opaque to the core.
type RemoteSession struct {
	UserID      string
	Email       string
	AccessToken string
}

// Profile is the provider-side profile record backing a remote session.
type Profile struct {
	UserID      string
	DisplayName string
	Email       string
	Role        Role
}

// IdentityProvider is the remote auth service collaborator. The core only
// consumes these operations; wire format and token handling live behind the
// implementation.
type IdentityProvider interface {
	// CurrentSession returns the provider's view of the active session, or
	// nil when signed out. Called once during startup.
	CurrentSession(ctx context.Context) (*RemoteSession, error)
	// Subscribe registers a callback for session change events (sign-in,
	// sign-out, token refresh, expiry). The returned function unsubscribes.
	Subscribe(onChange func(*RemoteSession)) (unsubscribe func())
	// FetchProfile resolves a remote user id to its profile attributes.
	FetchProfile(ctx context.Context, remoteUserID string) (*Profile, error)
	SignInWithPassword(ctx context.Context, email, password string) (*RemoteSession, error)
	SignOut(ctx context.Context) error
	SignUp(ctx context.Context, email, password, displayName string) error
}

// Config holds the knobs the auth core and the guard middleware read.
type Config interface {
	GetStorageKey() string
	GetLoginPath() string
	GetUnauthorizedPath() string
	GetDefaultPath() string
	GetRejectedRouteKey() string
}

// DefaultStorageKey is the fixed per-deployment slot name for the persisted
// session.
const DefaultStorageKey = "safeguard70e_user"

// SimpleConfig is the struct-backed Config used when no custom source is
// wired in. Zero values fall back to the deployment defaults.
type SimpleConfig struct {
	StorageKey       string
	LoginPath        string
	UnauthorizedPath string
	DefaultPath      string
	RejectedRouteKey string
}

func (c SimpleConfig) GetStorageKey() string {
	if c.StorageKey == "" {
		return DefaultStorageKey
	}
	return c.StorageKey
}

func (c SimpleConfig) GetLoginPath() string {
	if c.LoginPath == "" {
		return "/login"
	}
	return c.LoginPath
}

func (c SimpleConfig) GetUnauthorizedPath() string {
	if c.UnauthorizedPath == "" {
		return "/unauthorized"
	}
	return c.UnauthorizedPath
}

func (c SimpleConfig) GetDefaultPath() string {
	if c.DefaultPath == "" {
		return "/dashboard"
	}
	return c.DefaultPath
}

func (c SimpleConfig) GetRejectedRouteKey() string {
	if c.RejectedRouteKey == "" {
		return "rejected_route"
	}
	return c.RejectedRouteKey
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] AUTH "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] AUTH "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] AUTH "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] AUTH "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
