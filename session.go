package authstate

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// SessionOrigin tags where a session came from. The tag, not the email,
// decides which logout/refresh path applies.
type SessionOrigin string

const (
	// OriginLocalTesting marks a session fabricated from a built-in demo
	// identity. It has no backing remote record and is authoritative from
	// its persisted copy alone.
	OriginLocalTesting SessionOrigin = "local-testing"
	// OriginRemoteProvider marks a session issued by the identity provider.
	// A persisted copy must be re-validated at process start.
	OriginRemoteProvider SessionOrigin = "remote-identity-provider"
)

func (o SessionOrigin) IsValid() bool {
	switch o {
	case OriginLocalTesting, OriginRemoteProvider:
		return true
	default:
		return false
	}
}

// Session is the persisted record of the currently logged-in principal.
// It carries no secret or credential material.
type Session struct {
	UserID      string        `json:"user_id"`
	DisplayName string        `json:"display_name"`
	Email       string        `json:"email"`
	Role        Role          `json:"role"`
	Origin      SessionOrigin `json:"origin"`
}

// Validate enforces the fixed shape a session must have before it is
// persisted or adopted from storage.
func (s Session) Validate() error {
	return validation.ValidateStruct(&s,
		validation.Field(&s.UserID, validation.Required),
		validation.Field(&s.Email, validation.Required, is.Email),
		validation.Field(&s.Role, validation.Required, validation.By(roleRule)),
		validation.Field(&s.Origin, validation.Required, validation.By(originRule)),
	)
}

func roleRule(value any) error {
	role, _ := value.(Role)
	if !role.IsValid() {
		return fmt.Errorf("unknown role: %q", role)
	}
	return nil
}

func originRule(value any) error {
	origin, _ := value.(SessionOrigin)
	if !origin.IsValid() {
		return fmt.Errorf("unknown session origin: %q", origin)
	}
	return nil
}

// IsLocal reports whether the session was fabricated from a built-in
// identity.
func (s *Session) IsLocal() bool {
	return s != nil && s.Origin == OriginLocalTesting
}

// User returns the public-safe projection exposed to consumers.
func (s *Session) User() *User {
	if s == nil {
		return nil
	}
	return &User{
		ID:    s.UserID,
		Name:  s.DisplayName,
		Email: s.Email,
		Role:  s.Role,
	}
}

func (s Session) String() string {
	return fmt.Sprintf("user=%s email=%s role=%s origin=%s", s.UserID, s.Email, s.Role, s.Origin)
}

// User is the fixed-shape record consumers see. No password hash, no tokens.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}
