package httpidp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	authstate "github.com/safeguard70e/go-authstate"
)

const (
	tokenPath   = "/token"
	logoutPath  = "/logout"
	signupPath  = "/signup"
	profilePath = "/profiles"
)

// ProfileSource resolves a remote user id to profile attributes. The default
// source is the identity service's own profile endpoint; deployments that
// keep profiles in their own database swap in a repository-backed source.
type ProfileSource interface {
	FetchProfile(ctx context.Context, remoteUserID string) (*authstate.Profile, error)
}

// Config configures the HTTP identity provider.
type Config struct {
	// BaseURL is the identity service root, e.g. https://auth.example.com.
	BaseURL string

	// APIKey is sent on every request as the apikey header.
	APIKey string

	// JWKSURL enables local access token validation. Empty disables it and
	// tokens are treated as opaque.
	JWKSURL string

	// InitialAccessToken seeds the provider with a token from a previous
	// process, so CurrentSession can report an active session at startup.
	InitialAccessToken string

	// ProfileSource overrides the default HTTP profile lookup.
	ProfileSource ProfileSource

	HTTPClient *http.Client
	Logger     authstate.Logger
}

// Provider talks to a GoTrue-compatible identity service.
type Provider struct {
	config    Config
	client    *http.Client
	logger    authstate.Logger
	validator *tokenValidator
	profiles  ProfileSource

	mu        sync.Mutex
	current   *authstate.RemoteSession
	listeners map[int]func(*authstate.RemoteSession)
	nextID    int
}

var _ authstate.IdentityProvider = (*Provider)(nil)

// New creates a provider. BaseURL is required.
func New(cfg Config) (*Provider, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, goerrors.New("identity service base URL is required", goerrors.CategoryBadInput).
			WithTextCode("MISSING_BASE_URL").
			WithCode(goerrors.CodeBadRequest)
	}
	cfg.BaseURL = base

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	p := &Provider{
		config:    cfg,
		client:    client,
		logger:    logger,
		listeners: map[int]func(*authstate.RemoteSession){},
	}

	if cfg.JWKSURL != "" {
		validator, err := newTokenValidator(cfg.JWKSURL)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to initialize token validation")
		}
		p.validator = validator
	}

	if cfg.ProfileSource != nil {
		p.profiles = cfg.ProfileSource
	} else {
		p.profiles = httpProfileSource{p}
	}

	if cfg.InitialAccessToken != "" {
		if session := p.sessionFromToken(cfg.InitialAccessToken); session != nil {
			p.current = session
		}
	}

	return p, nil
}

// CurrentSession reports the provider's in-memory view of the signed-in
// principal. A seeded token that no longer validates reads as signed out.
func (p *Provider) CurrentSession(ctx context.Context) (*authstate.RemoteSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil {
		return nil, nil
	}

	if p.validator != nil {
		if _, err := p.validator.Validate(p.current.AccessToken); err != nil {
			p.logger.Debug("held access token no longer valid", "error", err)
			p.current = nil
			return nil, nil
		}
	}

	session := *p.current
	return &session, nil
}

// Subscribe registers a session change listener. Sign-in and sign-out both
// emit; the callback receives nil on sign-out.
func (p *Provider) Subscribe(onChange func(*authstate.RemoteSession)) (unsubscribe func()) {
	if onChange == nil {
		return func() {}
	}

	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = onChange
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// SignInWithPassword performs the password grant. On success the new session
// is broadcast to subscribers before the call returns.
func (p *Provider) SignInWithPassword(ctx context.Context, email, password string) (*authstate.RemoteSession, error) {
	payload := map[string]string{"email": email, "password": password}

	var out tokenResponse
	status, err := p.post(ctx, tokenPath+"?grant_type=password", "", payload, &out)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, p.mapStatus("sign_in", status, out.errorMessage())
	}
	if out.AccessToken == "" || out.User.ID == "" {
		return nil, goerrors.New("identity service returned an incomplete session", goerrors.CategoryOperation).
			WithTextCode("MALFORMED_TOKEN_RESPONSE")
	}

	session := &authstate.RemoteSession{
		UserID:      out.User.ID,
		Email:       out.User.Email,
		AccessToken: out.AccessToken,
	}

	p.setCurrent(session)
	return session, nil
}

// SignOut revokes the session with the identity service. The local session
// is dropped and a nil change event is broadcast even when revocation fails;
// the caller decides whether the failure matters.
func (p *Provider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	token := ""
	if p.current != nil {
		token = p.current.AccessToken
	}
	p.mu.Unlock()

	var revokeErr error
	if token != "" {
		status, err := p.post(ctx, logoutPath, token, nil, nil)
		if err != nil {
			revokeErr = err
		} else if status != http.StatusOK && status != http.StatusNoContent {
			revokeErr = p.mapStatus("sign_out", status, "")
		}
	}

	p.setCurrent(nil)
	return revokeErr
}

// SignUp registers a new account. It does not sign the account in.
func (p *Provider) SignUp(ctx context.Context, email, password, displayName string) error {
	payload := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"display_name": displayName},
	}

	var out apiError
	status, err := p.post(ctx, signupPath, "", payload, &out)
	if err != nil {
		return err
	}
	if status == http.StatusOK || status == http.StatusCreated {
		return nil
	}

	msg := out.message()
	if status == http.StatusUnprocessableEntity || strings.Contains(strings.ToLower(msg), "already registered") {
		return cloneWith(authstate.ErrDuplicateAccount, "sign_up", status, msg)
	}
	return p.mapStatus("sign_up", status, msg)
}

// FetchProfile resolves profile attributes through the configured source.
func (p *Provider) FetchProfile(ctx context.Context, remoteUserID string) (*authstate.Profile, error) {
	return p.profiles.FetchProfile(ctx, remoteUserID)
}

func (p *Provider) setCurrent(session *authstate.RemoteSession) {
	p.mu.Lock()
	p.current = session
	fns := make([]func(*authstate.RemoteSession), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.mu.Unlock()

	for _, fn := range fns {
		var copied *authstate.RemoteSession
		if session != nil {
			c := *session
			copied = &c
		}
		fn(copied)
	}
}

func (p *Provider) sessionFromToken(token string) *authstate.RemoteSession {
	if p.validator == nil {
		// Opaque token, identity unknown until the first profile fetch.
		return &authstate.RemoteSession{AccessToken: token}
	}

	claims, err := p.validator.Validate(token)
	if err != nil {
		p.logger.Warn("discarding seeded access token", "error", err)
		return nil
	}

	return &authstate.RemoteSession{
		UserID:      claims.Subject,
		Email:       claims.Email,
		AccessToken: token,
	}
}

func (p *Provider) post(ctx context.Context, path, bearer string, payload any, out any) (int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+path, body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	p.setAuthHeaders(req, bearer)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, transportError("request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, transportError("read_response", err)
	}

	if out != nil && len(raw) > 0 {
		// Error payloads share the response type, decode failures are not
		// fatal here; the status code drives the outcome.
		if err := json.Unmarshal(raw, out); err != nil && resp.StatusCode == http.StatusOK {
			return 0, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode identity service response").
				WithTextCode("MALFORMED_RESPONSE")
		}
	}

	return resp.StatusCode, nil
}

func (p *Provider) get(ctx context.Context, path, bearer string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.config.BaseURL+path, nil)
	if err != nil {
		return 0, err
	}
	p.setAuthHeaders(req, bearer)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, transportError("request", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, transportError("read_response", err)
	}

	if out != nil && resp.StatusCode == http.StatusOK {
		if err := json.Unmarshal(raw, out); err != nil {
			return 0, goerrors.Wrap(err, goerrors.CategoryOperation, "failed to decode identity service response").
				WithTextCode("MALFORMED_RESPONSE")
		}
	}

	return resp.StatusCode, nil
}

func (p *Provider) setAuthHeaders(req *http.Request, bearer string) {
	if p.config.APIKey != "" {
		req.Header.Set("apikey", p.config.APIKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
}

func (p *Provider) mapStatus(operation string, status int, message string) error {
	switch {
	case status == http.StatusBadRequest || status == http.StatusUnauthorized:
		return cloneWith(authstate.ErrInvalidCredentials, operation, status, message)
	case status == http.StatusTooManyRequests:
		return cloneWith(authstate.ErrRateLimited, operation, status, message)
	case status == http.StatusGatewayTimeout:
		return cloneWith(authstate.ErrServerTimeout, operation, status, message)
	case status >= http.StatusInternalServerError:
		return cloneWith(authstate.ErrNetworkUnavailable, operation, status, message)
	default:
		if message == "" {
			message = fmt.Sprintf("identity service returned status %d", status)
		}
		return goerrors.New(message, goerrors.CategoryOperation).
			WithTextCode("IDENTITY_SERVICE_ERROR").
			WithMetadata(map[string]any{
				"operation": operation,
				"status":    status,
			})
	}
}

func cloneWith(base *goerrors.Error, operation string, status int, message string) error {
	clone := base.Clone()
	meta := map[string]any{"operation": operation}
	if status != 0 {
		meta["status"] = status
	}
	if message != "" {
		meta["detail"] = message
	}
	return clone.WithMetadata(meta)
}

func transportError(operation string, err error) error {
	base := authstate.ErrNetworkUnavailable
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		base = authstate.ErrServerTimeout
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		base = authstate.ErrServerTimeout
	}

	clone := base.Clone()
	clone.Source = err
	return clone.WithMetadata(map[string]any{
		"operation": operation,
		"cause":     err.Error(),
	})
}

// httpProfileSource fetches profiles from the identity service itself.
type httpProfileSource struct {
	p *Provider
}

func (s httpProfileSource) FetchProfile(ctx context.Context, remoteUserID string) (*authstate.Profile, error) {
	s.p.mu.Lock()
	bearer := ""
	if s.p.current != nil {
		bearer = s.p.current.AccessToken
	}
	s.p.mu.Unlock()

	var out profileResponse
	status, err := s.p.get(ctx, profilePath+"/"+url.PathEscape(remoteUserID), bearer, &out)
	if err != nil {
		return nil, err
	}

	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, cloneWith(authstate.ErrProfileNotFound, "fetch_profile", status, remoteUserID)
	default:
		return nil, s.p.mapStatus("fetch_profile", status, "")
	}

	role, _ := authstate.ParseRole(out.Role)
	return &authstate.Profile{
		UserID:      out.ID,
		DisplayName: out.DisplayName,
		Email:       out.Email,
		Role:        role,
	}, nil
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	User        struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	Error     string `json:"error"`
	ErrorDesc string `json:"error_description"`
	Message   string `json:"msg"`
}

func (r tokenResponse) errorMessage() string {
	if r.ErrorDesc != "" {
		return r.ErrorDesc
	}
	if r.Error != "" {
		return r.Error
	}
	return r.Message
}

type apiError struct {
	Message string `json:"msg"`
	Error   string `json:"error"`
	Desc    string `json:"error_description"`
}

func (e apiError) message() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Desc != "" {
		return e.Desc
	}
	return e.Error
}

type profileResponse struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
