package authstate

import (
	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidCredentials = "INVALID_CREDENTIALS"
	textCodeNetworkUnavailable = "NETWORK_UNAVAILABLE"
	textCodeRateLimited        = "RATE_LIMITED"
	textCodeServerTimeout      = "SERVER_TIMEOUT"
	textCodeProfileNotFound    = "PROFILE_NOT_FOUND"
	textCodeStorageUnavailable = "STORAGE_UNAVAILABLE"
	textCodeCorruptSession     = "CORRUPT_SESSION_DATA"
	textCodeDuplicateAccount   = "DUPLICATE_ACCOUNT"
)

// ErrInvalidCredentials is returned when the identifier/password pair does
// not match any identity, local or remote.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(textCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrNetworkUnavailable covers connection failures and offline conditions
// while talking to the identity provider.
var ErrNetworkUnavailable = goerrors.New("identity provider unreachable", goerrors.CategoryOperation).
	WithTextCode(textCodeNetworkUnavailable)

// ErrRateLimited is returned when the identity provider throttles us.
var ErrRateLimited = goerrors.New("too many requests", goerrors.CategoryRateLimit).
	WithTextCode(textCodeRateLimited)

// ErrServerTimeout is returned when the identity provider accepted the
// request but did not answer in time.
var ErrServerTimeout = goerrors.New("identity provider timed out", goerrors.CategoryOperation).
	WithTextCode(textCodeServerTimeout)

// ErrProfileNotFound is returned when a remote session resolves to no
// profile row.
var ErrProfileNotFound = goerrors.New("profile not found for session", goerrors.CategoryNotFound).
	WithTextCode(textCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrStorageUnavailable signals that the session store backend cannot be
// used; callers degrade to in-memory persistence instead of failing.
var ErrStorageUnavailable = goerrors.New("session storage unavailable", goerrors.CategoryInternal).
	WithTextCode(textCodeStorageUnavailable)

// ErrCorruptSession signals unparseable persisted session data. The store
// clears the slot and reports the session as absent.
var ErrCorruptSession = goerrors.New("persisted session data is corrupt", goerrors.CategoryValidation).
	WithTextCode(textCodeCorruptSession).
	WithCode(goerrors.CodeBadRequest)

// ErrDuplicateAccount is returned by sign-up when the email is already
// registered. Never retried.
var ErrDuplicateAccount = goerrors.New("account already exists", goerrors.CategoryConflict).
	WithTextCode(textCodeDuplicateAccount).
	WithCode(goerrors.CodeConflict)

// IsTransient reports whether err is a failure that a retry with backoff may
// resolve. Only network faults and server timeouts qualify; credential,
// conflict, and rate-limit failures fail fast.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}

	switch richErr.TextCode {
	case textCodeNetworkUnavailable, textCodeServerTimeout:
		return true
	default:
		return false
	}
}

// IsAuthFailure reports whether err represents rejected credentials rather
// than an infrastructure problem.
func IsAuthFailure(err error) bool {
	if err == nil {
		return false
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.TextCode == textCodeInvalidCredentials
}
