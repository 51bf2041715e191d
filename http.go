package authstate

import (
	"net/http"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
)

// GuardHandler binds the pure guard decisions to go-router navigation. One
// handler serves the whole route table; each Protected/PublicOnly call
// creates the per-mapping guard the decision cache lives in.
//
// The process hosts a single principal (this is the client runtime of the
// dashboard, not a multi-tenant server), so guard decision caches are keyed
// on auth state alone.
type GuardHandler struct {
	manager *Manager
	cfg     Config
	Logger  Logger

	// LoadingHandler renders the placeholder shown while session resolution
	// is in flight. Replace it to integrate with the host view engine.
	LoadingHandler func(c router.Context) error
	// ErrorHandler renders unexpected guard failures.
	ErrorHandler func(c router.Context, err error) error
}

// NewGuardHandler wires guard middleware against the auth manager.
func NewGuardHandler(manager *Manager, cfg Config) *GuardHandler {
	if cfg == nil {
		cfg = SimpleConfig{}
	}

	h := &GuardHandler{
		manager: manager,
		cfg:     cfg,
		Logger:  defLogger{},
	}
	h.LoadingHandler = h.defaultLoadingHandler
	h.ErrorHandler = h.defaultErrHandler
	return h
}

func (h *GuardHandler) WithLogger(logger Logger) *GuardHandler {
	if logger != nil {
		h.Logger = logger
	}
	return h
}

// Protected guards a route mapping, optionally pinning it to a role.
func (h *GuardHandler) Protected(requiredRole Role) router.MiddlewareFunc {
	guard := NewRouteGuard(h.cfg, requiredRole)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			decision := guard.Evaluate(h.manager.Snapshot(), c.Path())

			switch decision.Kind {
			case DecisionLoading:
				return h.LoadingHandler(c)
			case DecisionRedirect:
				if decision.Reason != "" {
					h.setRedirect(c, decision.Reason)
				}
				h.Logger.Info("guard redirect",
					"to", decision.Path,
					"from", decision.Reason,
					"required_role", string(requiredRole),
				)
				// 303 gives replace semantics: the blocked page never lands
				// in history.
				return c.Redirect(decision.Path, http.StatusSeeOther)
			case DecisionRender:
				return next(c)
			default:
				return h.ErrorHandler(c, goerrors.New("unknown guard decision", goerrors.CategoryInternal))
			}
		}
	}
}

// PublicOnly guards routes that only make sense signed out (the login
// page). Authenticated visitors bounce to the captured destination.
func (h *GuardHandler) PublicOnly() router.MiddlewareFunc {
	guard := NewPublicOnlyGuard(h.cfg)

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			snapshot := h.manager.Snapshot()
			destination := ""
			if snapshot.IsAuthenticated {
				destination = h.GetRedirect(c, h.cfg.GetDefaultPath())
			}

			decision := guard.Evaluate(snapshot, destination)

			switch decision.Kind {
			case DecisionLoading:
				return h.LoadingHandler(c)
			case DecisionRedirect:
				return c.Redirect(decision.Path, http.StatusSeeOther)
			default:
				return next(c)
			}
		}
	}
}

// SetRedirect is exposed for handlers that reject navigation outside the
// guard (e.g. form posts) and want the same capture behavior.
func (h *GuardHandler) SetRedirect(c router.Context) {
	h.setRedirect(c, c.OriginalURL())
}

func (h *GuardHandler) setRedirect(c router.Context, path string) {
	c.Cookie(&router.Cookie{
		Name:     h.cfg.GetRejectedRouteKey(),
		Value:    path,
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

// GetRedirect returns the captured original destination, consuming it, or
// the provided default.
func (h *GuardHandler) GetRedirect(c router.Context, def string) string {
	key := h.cfg.GetRejectedRouteKey()
	r := c.Cookies(key)
	if r == "" {
		return def
	}
	h.cookieDel(c, key)
	return r
}

func (h *GuardHandler) cookieDel(c router.Context, name string) {
	c.Cookie(&router.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (h *GuardHandler) defaultLoadingHandler(c router.Context) error {
	return c.Status(http.StatusOK).SendString("Loading...")
}

func (h *GuardHandler) defaultErrHandler(c router.Context, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected guard error occurred").
			WithCode(goerrors.CodeInternal)
	}

	h.Logger.Error(
		"guard error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	return c.Status(richErr.Code).SendString(richErr.Message)
}
