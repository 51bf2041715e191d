package httpidp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
	authstate "github.com/safeguard70e/go-authstate"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textCode(t *testing.T, err error) string {
	t.Helper()
	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr), "expected a categorized error, got %v", err)
	return richErr.TextCode
}

func newTestProvider(t *testing.T, handler http.Handler) (*Provider, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	provider, err := New(Config{
		BaseURL: server.URL,
		APIKey:  "test-key",
	})
	require.NoError(t, err)
	return provider, server
}

func TestNewRequiresBaseURL(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Equal(t, "MISSING_BASE_URL", textCode(t, err))
}

func TestSignInWithPassword(t *testing.T) {
	var sawAPIKey string
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/token", r.URL.Path)
		require.Equal(t, "password", r.URL.Query().Get("grant_type"))
		sawAPIKey = r.Header.Get("apikey")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "jwt-abc",
			"token_type": "bearer",
			"user": {"id": "user-9", "email": "admin@example.com"}
		}`))
	}))

	var notified *authstate.RemoteSession
	unsubscribe := provider.Subscribe(func(s *authstate.RemoteSession) {
		notified = s
	})
	defer unsubscribe()

	session, err := provider.SignInWithPassword(context.Background(), "admin@example.com", "password123")
	require.NoError(t, err)
	require.NotNil(t, session)

	assert.Equal(t, "user-9", session.UserID)
	assert.Equal(t, "jwt-abc", session.AccessToken)
	assert.Equal(t, "test-key", sawAPIKey)

	require.NotNil(t, notified, "subscribers learn about sign-in")
	assert.Equal(t, "user-9", notified.UserID)

	current, err := provider.CurrentSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "user-9", current.UserID)
}

func TestSignInRejectedCredentials(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant", "error_description": "Invalid login credentials"}`))
	}))

	_, err := provider.SignInWithPassword(context.Background(), "admin@example.com", "wrong")
	require.Error(t, err)
	assert.Equal(t, "INVALID_CREDENTIALS", textCode(t, err))
	assert.True(t, authstate.IsAuthFailure(err))
	assert.False(t, authstate.IsTransient(err))
}

func TestSignInRateLimited(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))

	_, err := provider.SignInWithPassword(context.Background(), "admin@example.com", "password123")
	require.Error(t, err)
	assert.Equal(t, "RATE_LIMITED", textCode(t, err))
	assert.False(t, authstate.IsTransient(err), "rate limiting must not be retried")
}

func TestSignInNetworkDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	provider, err := New(Config{BaseURL: server.URL})
	require.NoError(t, err)
	server.Close()

	_, err = provider.SignInWithPassword(context.Background(), "admin@example.com", "password123")
	require.Error(t, err)
	assert.Equal(t, "NETWORK_UNAVAILABLE", textCode(t, err))
	assert.True(t, authstate.IsTransient(err))
}

func TestSignInTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	t.Cleanup(server.Close)

	provider, err := New(Config{
		BaseURL:    server.URL,
		HTTPClient: &http.Client{Timeout: 30 * time.Millisecond},
	})
	require.NoError(t, err)

	_, err = provider.SignInWithPassword(context.Background(), "admin@example.com", "password123")
	require.Error(t, err)
	assert.Equal(t, "SERVER_TIMEOUT", textCode(t, err))
	assert.True(t, authstate.IsTransient(err))
}

func TestSignOutClearsAndNotifies(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			w.Write([]byte(`{"access_token": "jwt-abc", "user": {"id": "user-9"}}`))
		case "/logout":
			require.Equal(t, "Bearer jwt-abc", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	_, err := provider.SignInWithPassword(context.Background(), "admin@example.com", "password123")
	require.NoError(t, err)

	events := []*authstate.RemoteSession{}
	unsubscribe := provider.Subscribe(func(s *authstate.RemoteSession) {
		events = append(events, s)
	})
	defer unsubscribe()

	require.NoError(t, provider.SignOut(context.Background()))

	require.Len(t, events, 1)
	assert.Nil(t, events[0], "sign-out broadcasts a nil session")

	current, err := provider.CurrentSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, current)
}

func TestSignUpDuplicateAccount(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/signup", r.URL.Path)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"msg": "User already registered"}`))
	}))

	err := provider.SignUp(context.Background(), "admin@example.com", "password123", "Admin User")
	require.Error(t, err)
	assert.Equal(t, "DUPLICATE_ACCOUNT", textCode(t, err))
}

func TestSignUpSucceeds(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id": "new-user"}`))
	}))

	err := provider.SignUp(context.Background(), "new@example.com", "password123", "New User")
	assert.NoError(t, err)
}

func TestFetchProfile(t *testing.T) {
	provider, _ := newTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/profiles/user-9":
			w.Write([]byte(`{
				"id": "user-9",
				"display_name": "Admin User",
				"email": "admin@example.com",
				"role": "admin"
			}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	profile, err := provider.FetchProfile(context.Background(), "user-9")
	require.NoError(t, err)
	assert.Equal(t, "Admin User", profile.DisplayName)
	assert.Equal(t, authstate.RoleAdmin, profile.Role)

	_, err = provider.FetchProfile(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, "PROFILE_NOT_FOUND", textCode(t, err))
}

func TestProfileSourceOverride(t *testing.T) {
	called := false
	provider, err := New(Config{
		BaseURL: "http://identity.local",
		ProfileSource: profileSourceFunc(func(ctx context.Context, id string) (*authstate.Profile, error) {
			called = true
			return &authstate.Profile{UserID: id, Role: authstate.RoleTechnician}, nil
		}),
	})
	require.NoError(t, err)

	profile, err := provider.FetchProfile(context.Background(), "user-1")
	require.NoError(t, err)
	assert.True(t, called)
	assert.Equal(t, authstate.RoleTechnician, profile.Role)
}

type profileSourceFunc func(ctx context.Context, id string) (*authstate.Profile, error)

func (f profileSourceFunc) FetchProfile(ctx context.Context, id string) (*authstate.Profile, error) {
	return f(ctx, id)
}
