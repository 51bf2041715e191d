package authstate

import (
	"sync"
)

// DecisionKind discriminates the guard's verdicts.
type DecisionKind int

const (
	// DecisionLoading renders a loading placeholder: session resolution is
	// still in flight and redirecting on incomplete information is the
	// defect class this guard exists to prevent.
	DecisionLoading DecisionKind = iota
	// DecisionRender shows the protected content.
	DecisionRender
	// DecisionRedirect sends the navigation elsewhere, replacing history so
	// back-navigation cannot return to the blocked page.
	DecisionRedirect
)

func (k DecisionKind) String() string {
	switch k {
	case DecisionLoading:
		return "loading"
	case DecisionRender:
		return "render"
	case DecisionRedirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Decision is the ephemeral, per-navigation authorization verdict. Reason
// carries the originally requested path on login redirects so the login flow
// can return the user there afterwards.
type Decision struct {
	Kind   DecisionKind
	Path   string
	Reason string
}

// guardKey is the full set of inputs a decision depends on. The current
// navigation path is deliberately absent: a guard-issued redirect changes
// the path, and keying on it would re-trigger the guard in a loop.
type guardKey struct {
	loading       bool
	authenticated bool
	role          Role
	requiredRole  Role
}

// RouteGuard computes render-or-redirect decisions for one protected route
// mapping. Decisions are recomputed only when the authentication state
// identity changes; repeated evaluation under an unchanged state returns the
// prior decision verbatim.
type RouteGuard struct {
	cfg          Config
	requiredRole Role

	mu       sync.Mutex
	haveLast bool
	lastKey  guardKey
	lastDec  Decision
}

// NewRouteGuard builds a guard for a route mapping. requiredRole may be
// empty, in which case any authenticated principal passes.
func NewRouteGuard(cfg Config, requiredRole Role) *RouteGuard {
	if cfg == nil {
		cfg = SimpleConfig{}
	}
	return &RouteGuard{cfg: cfg, requiredRole: requiredRole}
}

// Evaluate maps the snapshot to a decision. currentPath is captured as a
// plain string at decision time, never as a live reference to navigation
// state.
func (g *RouteGuard) Evaluate(snapshot Snapshot, currentPath string) Decision {
	key := guardKey{
		loading:       snapshot.IsLoading,
		authenticated: snapshot.IsAuthenticated,
		requiredRole:  g.requiredRole,
	}
	if snapshot.User != nil {
		key.role = snapshot.User.Role
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.haveLast && g.lastKey == key {
		return g.lastDec
	}

	g.lastKey = key
	g.haveLast = true
	g.lastDec = g.computeLocked(snapshot, currentPath)
	return g.lastDec
}

func (g *RouteGuard) computeLocked(snapshot Snapshot, currentPath string) Decision {
	if snapshot.IsLoading {
		return Decision{Kind: DecisionLoading}
	}

	if !snapshot.IsAuthenticated {
		return Decision{
			Kind:   DecisionRedirect,
			Path:   g.cfg.GetLoginPath(),
			Reason: currentPath,
		}
	}

	if g.requiredRole != "" {
		role := Role("")
		if snapshot.User != nil {
			role = snapshot.User.Role
		}
		if !role.Allows(g.requiredRole) {
			return Decision{
				Kind: DecisionRedirect,
				Path: g.cfg.GetUnauthorizedPath(),
			}
		}
	}

	return Decision{Kind: DecisionRender}
}

// PublicOnlyGuard is the login-page counterpart: it renders public content
// for signed-out visitors and bounces authenticated ones to the captured
// destination. Same snapshot-once discipline, inverse rule.
type PublicOnlyGuard struct {
	cfg Config

	mu       sync.Mutex
	haveLast bool
	lastKey  guardKey
	lastDec  Decision
}

func NewPublicOnlyGuard(cfg Config) *PublicOnlyGuard {
	if cfg == nil {
		cfg = SimpleConfig{}
	}
	return &PublicOnlyGuard{cfg: cfg}
}

// Evaluate decides for a public-only route. destination is the previously
// captured original path; when empty the configured default applies.
func (g *PublicOnlyGuard) Evaluate(snapshot Snapshot, destination string) Decision {
	key := guardKey{
		loading:       snapshot.IsLoading,
		authenticated: snapshot.IsAuthenticated,
	}
	if snapshot.User != nil {
		key.role = snapshot.User.Role
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.haveLast && g.lastKey == key {
		return g.lastDec
	}

	decision := Decision{Kind: DecisionRender}
	if snapshot.IsLoading {
		decision = Decision{Kind: DecisionLoading}
	} else if snapshot.IsAuthenticated {
		target := destination
		if target == "" {
			target = g.cfg.GetDefaultPath()
		}
		decision = Decision{Kind: DecisionRedirect, Path: target}
	}

	g.lastKey = key
	g.haveLast = true
	g.lastDec = decision
	return decision
}

// RootPath picks the landing path for the bare "/" route: the dashboard for
// authenticated principals, the login page otherwise.
func RootPath(snapshot Snapshot, cfg Config) string {
	if cfg == nil {
		cfg = SimpleConfig{}
	}
	if snapshot.IsAuthenticated {
		return cfg.GetDefaultPath()
	}
	return cfg.GetLoginPath()
}
