// Package authstate provides the client-facing authentication core for the
// SafeGuard 70E compliance dashboard: a single long-lived state machine that
// reconciles the persisted session, the remote identity provider, and the
// built-in demo identities into one authoritative snapshot, plus the route
// guard that turns that snapshot into render-or-redirect decisions.
//
// Session resolution:
//   - Sessions carry an Origin tag. Local-testing sessions are fabricated from
//     the built-in demo identities and never touch the network; remote sessions
//     are re-validated against the identity provider at every startup.
//   - Manager owns the Uninitialized → Resolving → {Authenticated,
//     Unauthenticated} lifecycle. Both terminal states are re-entrant: any
//     later sign-in/sign-out event goes back through Resolving.
//
// Route guarding:
//   - RouteGuard computes decisions from the auth snapshot and the declared
//     role requirement only. The current navigation path is captured as a
//     plain string at decision time and is deliberately excluded from the
//     guard's re-evaluation key, so a guard-issued redirect can never
//     re-trigger the guard.
//
// Storage:
//   - SessionStore abstracts the durable slot holding the current session.
//     Faulty or corrupt storage degrades to an in-memory slot with a logged
//     warning; it never propagates to callers.
package authstate
