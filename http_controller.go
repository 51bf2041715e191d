package authstate

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
	"github.com/goliatone/go-router/flash"
)

// RegisterAuthRoutes mounts the sign-in, sign-out, sign-up, and unauthorized
// pages on the given router.
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	controller := NewAuthController(opts...)

	app.
		Get(controller.Routes.Login,
			controller.LoginShow,
			controller.Guard.PublicOnly(),
		).
		SetName("sign-in.get")

	app.
		Post(controller.Routes.Login, controller.LoginPost).
		SetName("sign-in.post")

	app.Get(controller.Routes.Logout, controller.LogOut).SetName("sign-out.get")

	app.Get(controller.Routes.SignUp, controller.SignUpShow).
		SetName("sign-up.get")
	app.Post(controller.Routes.SignUp, controller.SignUpCreate).
		SetName("sign-up.post")

	app.Get(controller.Routes.Unauthorized, controller.UnauthorizedShow).
		SetName("unauthorized.get")
}

type AuthControllerRoutes struct {
	Login        string
	Logout       string
	SignUp       string
	Unauthorized string
}

type AuthControllerViews struct {
	Login        string
	SignUp       string
	Unauthorized string
}

type AuthController struct {
	Debug        bool
	Logger       Logger
	Manager      *Manager
	Guard        *GuardHandler
	Routes       *AuthControllerRoutes
	Views        *AuthControllerViews
	ErrorHandler router.ErrorHandler
}

type AuthControllerOption func(*AuthController) *AuthController

func WithControllerManager(m *Manager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Manager = m
		return c
	}
}

func WithControllerGuard(g *GuardHandler) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Guard = g
		return c
	}
}

func WithControllerLogger(l Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if l != nil {
			c.Logger = l
		}
		return c
	}
}

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Login:        "/login",
			Logout:       "/logout",
			SignUp:       "/signup",
			Unauthorized: "/unauthorized",
		},
		Views: &AuthControllerViews{
			Login:        "login",
			SignUp:       "signup",
			Unauthorized: "unauthorized",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Manager == nil {
		panic("Missing auth manager in auth controller...")
	}

	if c.Guard == nil {
		panic("Missing guard handler in auth controller...")
	}

	if c.ErrorHandler == nil {
		c.ErrorHandler = c.Guard.defaultErrHandler
	}

	return c
}

func (a *AuthController) LoginShow(ctx router.Context) error {
	return ctx.Render(a.Views.Login, router.ViewContext{
		"errors": nil,
		"record": nil,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) LoginPost(ctx router.Context) error {
	payload := new(LoginRequest)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return a.ErrorHandler(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return ctx.Render(a.Views.Login, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Manager.Login(ctx.Context(), payload.Email, payload.Password); err != nil {
		msg := "Authentication Error"
		if IsAuthFailure(err) {
			msg = "Invalid email or password"
		}
		a.Logger.Warn("login rejected", "email", payload.Email, "error", err)

		return ctx.Render(a.Views.Login, router.ViewContext{
			"errors": map[string]string{"authentication": msg},
			"record": payload,
		})
	}

	redirect := a.Guard.GetRedirect(ctx, a.Guard.cfg.GetDefaultPath())
	return ctx.Redirect(redirect, router.StatusSeeOther)
}

func (a *AuthController) LogOut(ctx router.Context) error {
	if err := a.Manager.Logout(ctx.Context()); err != nil {
		// Local state is already cleared, the failure is provider-side.
		a.Logger.Warn("logout completed with provider error", "error", err)
	}
	return ctx.Redirect(a.Routes.Login, router.StatusSeeOther)
}

func (a *AuthController) SignUpShow(ctx router.Context) error {
	return ctx.Render(a.Views.SignUp, router.ViewContext{
		"errors": map[string]string{},
		"record": SignUpPayload{},
	})
}

// SignUpPayload is the registration form payload.
type SignUpPayload struct {
	DisplayName     string `form:"display_name" json:"display_name"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will validate the payload
func (r SignUpPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DisplayName, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Email, validation.Required, validation.Length(6, 100), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 100)),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.Password)),
		),
	)
}

func (a *AuthController) SignUpCreate(ctx router.Context) error {
	payload := new(SignUpPayload)

	if err := ctx.Bind(payload); err != nil {
		a.Logger.Error("sign-up parse payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error parsing body",
		}).Status(router.StatusBadRequest).Render(a.Views.SignUp, router.ViewContext{
			"errors": map[string]string{"form": "Failed to parse form"},
			"record": payload,
		})
	}

	if err := payload.Validate(); err != nil {
		a.Logger.Warn("sign-up validate payload", "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Error validating payload",
		}).Render(a.Views.SignUp, router.ViewContext{
			"record":     payload,
			"validation": FormatValidationErrorToMap(err),
		})
	}

	if err := a.Manager.SignUp(ctx.Context(), payload.Email, payload.Password, payload.DisplayName); err != nil {
		a.Logger.Error("sign-up failed", "email", payload.Email, "error", err)
		return flash.WithError(ctx, router.ViewContext{
			"error_message":  err.Error(),
			"system_message": "Registration failed",
		}).Render(a.Views.SignUp, router.ViewContext{
			"record": payload,
			"errors": map[string]string{"registration": err.Error()},
		})
	}

	return flash.WithSuccess(ctx, router.ViewContext{
		"system_message": "Account created, you can sign in now",
	}).Redirect(a.Routes.Login, router.StatusSeeOther)
}

func (a *AuthController) UnauthorizedShow(ctx router.Context) error {
	return ctx.Status(router.StatusForbidden).Render(a.Views.Unauthorized, router.ViewContext{
		"user": a.Manager.Snapshot().User,
	})
}

// ValidateStringEquals builds an ozzo rule asserting equality with str.
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values do not match")
		}
		return nil
	}
}

// FormatValidationErrorToMap flattens ozzo validation errors into a
// field-to-message map for template rendering.
func FormatValidationErrorToMap(err error) map[string]string {
	out := map[string]string{}
	if err == nil {
		return out
	}

	var verrs validation.Errors
	if errors.As(err, &verrs) {
		for field, ferr := range verrs {
			if ferr != nil {
				out[field] = ferr.Error()
			}
		}
		return out
	}

	out["form"] = err.Error()
	return out
}
