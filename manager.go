package authstate

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// SignUpMaxRetries is the number of additional attempts made for transient
// sign-up failures.
var SignUpMaxRetries = 2

// SignUpBackoff is the fixed delay between sign-up attempts.
var SignUpBackoff = 500 * time.Millisecond

// Manager is the process-wide auth state machine. Construct one instance at
// application start, call Start once, and inject it into consumers; never
// reach for ambient globals.
//
// All transitions are serialized behind the manager's mutex. Asynchronous
// continuations (the startup one-shot, profile fetches, provider events)
// carry the generation they were issued under and are discarded when a newer
// transition or Close superseded them.
type Manager struct {
	store    SessionStore
	provider IdentityProvider
	logger   Logger

	// sleep is swappable for tests exercising the sign-up backoff.
	sleep func(time.Duration)

	mu           sync.Mutex
	started      bool
	closed       bool
	generation   uint64
	session      *Session
	snapshot     Snapshot
	listeners    map[int]func(Snapshot)
	nextListener int

	unsubProvider func()
	unsubStore    func()
}

// NewManager wires the auth core against its two collaborators.
func NewManager(store SessionStore, provider IdentityProvider) *Manager {
	return &Manager{
		store:    store,
		provider: provider,
		logger:   defLogger{},
		sleep:    time.Sleep,
		snapshot: Snapshot{State: StateUninitialized, IsLoading: true},
		listeners: map[int]func(Snapshot){},
	}
}

func (m *Manager) WithLogger(logger Logger) *Manager {
	if logger != nil {
		m.logger = logger
	}
	return m
}

// WithSleep overrides the delay function used by the sign-up retry loop.
func (m *Manager) WithSleep(sleep func(time.Duration)) *Manager {
	if sleep != nil {
		m.sleep = sleep
	}
	return m
}

// Snapshot returns the current consumer-facing auth state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// CurrentSession returns a copy of the active session, or nil.
func (m *Manager) CurrentSession() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	copied := *m.session
	return &copied
}

// OnChange registers a snapshot listener. Listeners run after the transition
// is committed, outside the manager's lock, in transition order for
// serialized callers. The returned function cancels the registration.
func (m *Manager) OnChange(fn func(Snapshot)) (cancel func()) {
	if fn == nil {
		return func() {}
	}

	m.mu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = fn
	m.mu.Unlock()

	return func() {
		m.mu.Lock()
		delete(m.listeners, id)
		m.mu.Unlock()
	}
}

// Start runs the startup resolution protocol once per manager lifetime.
// Calling it again while resolving or after completion is a no-op.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started || m.closed {
		m.mu.Unlock()
		return nil
	}
	m.started = true
	m.snapshot = initialSnapshot()
	gen := m.generation

	// A persisted local-testing session is self-contained: adopt it without
	// any remote calls.
	adopted := false
	stored, err := m.store.Load()
	if err != nil {
		m.logger.Warn("session store load failed, continuing unauthenticated", "error", err)
	}
	if stored != nil && stored.IsLocal() {
		if verr := stored.Validate(); verr == nil {
			m.session = stored
			m.snapshot = authenticatedSnapshot(stored.User())
			adopted = true
		} else {
			m.logger.Warn("discarding malformed persisted session")
			if cerr := m.store.Clear(); cerr != nil {
				m.logger.Warn("session store clear failed", "error", cerr)
			}
		}
	}

	m.watchStoreLocked()
	var snap Snapshot
	var fns []func(Snapshot)
	if adopted {
		snap, fns = m.publishArgsLocked()
	}
	m.mu.Unlock()

	if adopted {
		publish(snap, fns)
	}

	// The change subscription is registered unconditionally, before the
	// one-shot check so an event firing mid-request is not dropped. Even
	// when a local session was adopted a later remote login lands here, so
	// the machine must already be listening.
	unsub := m.provider.Subscribe(m.handleProviderChange)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		unsub()
		return nil
	}
	m.unsubProvider = unsub
	m.mu.Unlock()

	if adopted {
		return nil
	}

	remote, rerr := m.provider.CurrentSession(ctx)
	if rerr != nil {
		m.logger.Warn("initial session check failed, resolving unauthenticated", "error", rerr)
		m.commitResolution(gen, nil)
		return nil
	}

	m.resolveRemote(ctx, gen, remote)
	return nil
}

// Close tears the manager down: provider and store subscriptions are
// released and any in-flight resolution result is discarded.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.generation++
	unsubProvider := m.unsubProvider
	unsubStore := m.unsubStore
	m.unsubProvider = nil
	m.unsubStore = nil
	m.mu.Unlock()

	if unsubProvider != nil {
		unsubProvider()
	}
	if unsubStore != nil {
		unsubStore()
	}
}

// Login authenticates the credential pair. Built-in identities resolve
// locally with no network traffic; everything else is delegated to the
// identity provider, whose change event applies the resulting session.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	if err := validateCredentials(email, password); err != nil {
		return err
	}

	local, known, err := VerifyLocalIdentity(email, password)
	if known {
		if err != nil {
			return err
		}
		m.adoptSession(local)
		return nil
	}

	if _, err := m.provider.SignInWithPassword(ctx, email, password); err != nil {
		// State is untouched; the caller renders the typed failure.
		return err
	}

	// Success is applied through the subscription callback, the single
	// code path that sets authenticated state for remote sessions.
	return nil
}

// Logout signs the current principal out. Local-testing sessions are torn
// down synchronously; remote sessions go through the provider, whose change
// event drives the transition. Provider failures still clear the persisted
// session defensively.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	session := m.session
	if session == nil {
		m.mu.Unlock()
		return nil
	}

	if session.IsLocal() {
		m.generation++
		m.session = nil
		m.clearStoreLocked()
		m.snapshot = unauthenticatedSnapshot()
		snap, fns := m.publishArgsLocked()
		m.mu.Unlock()
		publish(snap, fns)
		return nil
	}
	m.mu.Unlock()

	if err := m.provider.SignOut(ctx); err != nil {
		m.logger.Error("provider sign-out failed, clearing local session anyway", "error", err)

		m.mu.Lock()
		m.generation++
		m.session = nil
		m.clearStoreLocked()
		m.snapshot = unauthenticatedSnapshot()
		snap, fns := m.publishArgsLocked()
		m.mu.Unlock()
		publish(snap, fns)

		return goerrors.Wrap(err, goerrors.CategoryOperation, "sign out failed")
	}

	return nil
}

// SignUp registers a new account with the identity provider. It never
// mutates auth state; new accounts sign in separately. Transient failures
// are retried with fixed backoff, anything else fails immediately.
func (m *Manager) SignUp(ctx context.Context, email, password, displayName string) error {
	if err := validateSignUp(email, password, displayName); err != nil {
		return err
	}

	var lastErr error
	for attempt := 0; attempt <= SignUpMaxRetries; attempt++ {
		if attempt > 0 {
			m.sleep(SignUpBackoff)
		}

		lastErr = m.provider.SignUp(ctx, email, password, displayName)
		if lastErr == nil {
			return nil
		}
		if !IsTransient(lastErr) {
			return lastErr
		}

		m.logger.Warn("sign-up attempt failed, retrying", "attempt", attempt+1, "error", lastErr)
	}

	return lastErr
}

// handleProviderChange is the subscription callback: the only path that
// changes state after startup besides explicit login/logout.
func (m *Manager) handleProviderChange(remote *RemoteSession) {
	m.mu.Lock()
	if m.closed || !m.started {
		m.mu.Unlock()
		return
	}
	// A local-testing session has no backing remote record; remote events
	// cannot displace it.
	if m.session.IsLocal() {
		m.mu.Unlock()
		return
	}

	m.generation++
	gen := m.generation
	m.snapshot = initialSnapshot()
	snap, fns := m.publishArgsLocked()
	m.mu.Unlock()
	publish(snap, fns)

	m.resolveRemote(context.Background(), gen, remote)
}

// resolveRemote turns a remote session into a terminal state: profile
// resolution failure or absence lands on Unauthenticated, never on a stuck
// Resolving.
func (m *Manager) resolveRemote(ctx context.Context, gen uint64, remote *RemoteSession) {
	if remote == nil {
		m.commitResolution(gen, nil)
		return
	}

	profile, err := m.provider.FetchProfile(ctx, remote.UserID)
	if err != nil || profile == nil {
		m.logger.Warn("profile resolution failed, resolving unauthenticated", "user_id", remote.UserID, "error", err)
		m.commitResolution(gen, nil)
		return
	}

	session := &Session{
		UserID:      profile.UserID,
		DisplayName: profile.DisplayName,
		Email:       profile.Email,
		Role:        profile.Role,
		Origin:      OriginRemoteProvider,
	}
	if session.Email == "" {
		session.Email = remote.Email
	}
	if session.UserID == "" {
		session.UserID = remote.UserID
	}

	if err := session.Validate(); err != nil {
		m.logger.Warn("resolved profile is malformed, resolving unauthenticated", "error", err)
		m.commitResolution(gen, nil)
		return
	}

	m.commitResolution(gen, session)
}

// commitResolution applies a finished resolution unless it has been
// superseded. This is the liveness check: results that arrive after Close
// or after a newer event are dropped, not applied.
func (m *Manager) commitResolution(gen uint64, session *Session) {
	m.mu.Lock()
	if m.closed || gen != m.generation {
		m.mu.Unlock()
		return
	}

	if session == nil {
		m.session = nil
		m.clearStoreLocked()
		m.snapshot = unauthenticatedSnapshot()
	} else {
		m.session = session
		m.saveStoreLocked(session)
		m.snapshot = authenticatedSnapshot(session.User())
	}

	snap, fns := m.publishArgsLocked()
	m.mu.Unlock()
	publish(snap, fns)
}

// adoptSession installs a locally-verified session synchronously.
func (m *Manager) adoptSession(session *Session) {
	m.mu.Lock()
	m.generation++
	m.session = session
	m.saveStoreLocked(session)
	m.snapshot = authenticatedSnapshot(session.User())
	snap, fns := m.publishArgsLocked()
	m.mu.Unlock()
	publish(snap, fns)
}

// handleStoreChange applies session changes made by sibling processes so
// every tab agrees on login state within one notification cycle.
func (m *Manager) handleStoreChange(stored *Session) {
	m.mu.Lock()
	if m.closed || !m.started {
		m.mu.Unlock()
		return
	}

	if stored == nil {
		if m.session == nil {
			m.mu.Unlock()
			return
		}
		m.generation++
		m.session = nil
		m.snapshot = unauthenticatedSnapshot()
		snap, fns := m.publishArgsLocked()
		m.mu.Unlock()
		publish(snap, fns)
		return
	}

	if err := stored.Validate(); err != nil {
		m.logger.Warn("ignoring malformed external session change", "error", err)
		m.mu.Unlock()
		return
	}
	if m.session != nil && *m.session == *stored {
		m.mu.Unlock()
		return
	}

	m.generation++
	m.session = stored
	m.snapshot = authenticatedSnapshot(stored.User())
	snap, fns := m.publishArgsLocked()
	m.mu.Unlock()
	publish(snap, fns)
}

func (m *Manager) watchStoreLocked() {
	if m.unsubStore != nil {
		return
	}
	m.unsubStore = m.store.OnExternalChange(m.handleStoreChange)
}

func (m *Manager) saveStoreLocked(session *Session) {
	if err := m.store.Save(session); err != nil {
		m.logger.Warn("failed to persist session, continuing in-memory", "error", err)
	}
}

func (m *Manager) clearStoreLocked() {
	if err := m.store.Clear(); err != nil {
		m.logger.Warn("failed to clear persisted session", "error", err)
	}
}

func (m *Manager) publishArgsLocked() (Snapshot, []func(Snapshot)) {
	fns := make([]func(Snapshot), 0, len(m.listeners))
	for _, fn := range m.listeners {
		fns = append(fns, fn)
	}
	return m.snapshot, fns
}

func publish(snapshot Snapshot, fns []func(Snapshot)) {
	for _, fn := range fns {
		fn(snapshot)
	}
}

func validateCredentials(email, password string) error {
	err := validation.Errors{
		"email":    validation.Validate(email, validation.Required, is.Email),
		"password": validation.Validate(password, validation.Required),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid login payload").
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}

func validateSignUp(email, password, displayName string) error {
	err := validation.Errors{
		"email":        validation.Validate(email, validation.Required, is.Email),
		"password":     validation.Validate(password, validation.Required, validation.Length(6, 0)),
		"display_name": validation.Validate(displayName, validation.Required),
	}.Filter()
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid sign-up payload").
			WithCode(goerrors.CodeBadRequest)
	}
	return nil
}
