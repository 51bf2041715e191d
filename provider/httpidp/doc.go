// Package httpidp implements authstate.IdentityProvider against a
// GoTrue-compatible HTTP identity service: password grant sign-in, sign-up,
// sign-out, and profile lookup, with optional JWKS-backed access token
// validation.
//
// The provider holds the live remote session in memory and broadcasts
// session change events to subscribers; durable persistence is the session
// store's job, not this package's.
package httpidp
