package authstate

import (
	"context"
	"io"
	"mime/multipart"
	"sync"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/mock"
)

// fakeStore is an in-memory SessionStore with fault injection and external
// change emission.
type fakeStore struct {
	mu        sync.Mutex
	session   *Session
	loadErr   error
	saveErr   error
	clearErr  error
	saves     int
	clears    int
	callbacks []func(*Session)
}

func (s *fakeStore) Save(session *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.saveErr != nil {
		return s.saveErr
	}
	s.session = session
	return nil
}

func (s *fakeStore) Load() (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return s.session, nil
}

func (s *fakeStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clears++
	if s.clearErr != nil {
		return s.clearErr
	}
	s.session = nil
	return nil
}

func (s *fakeStore) OnExternalChange(fn func(*Session)) (cancel func()) {
	s.mu.Lock()
	s.callbacks = append(s.callbacks, fn)
	s.mu.Unlock()
	return func() {}
}

func (s *fakeStore) emitExternal(session *Session) {
	s.mu.Lock()
	s.session = session
	fns := append([]func(*Session){}, s.callbacks...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn(session)
	}
}

func (s *fakeStore) watcherCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.callbacks)
}

// fakeProvider is a scriptable IdentityProvider that emits change events
// synchronously, the way the HTTP implementation does.
type fakeProvider struct {
	mu         sync.Mutex
	current    *RemoteSession
	currentErr error
	profile    *Profile
	profileErr error
	signInFn   func(email, password string) (*RemoteSession, error)
	signUpFn   func() error
	signOutErr error
	calls      map[string]int
	listeners  []func(*RemoteSession)
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{calls: map[string]int{}}
}

func (p *fakeProvider) count(name string) {
	p.mu.Lock()
	p.calls[name]++
	p.mu.Unlock()
}

func (p *fakeProvider) callCount(name string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[name]
}

func (p *fakeProvider) CurrentSession(ctx context.Context) (*RemoteSession, error) {
	p.count("CurrentSession")
	return p.current, p.currentErr
}

func (p *fakeProvider) Subscribe(onChange func(*RemoteSession)) (unsubscribe func()) {
	p.count("Subscribe")
	p.mu.Lock()
	p.listeners = append(p.listeners, onChange)
	p.mu.Unlock()
	return func() {}
}

func (p *fakeProvider) FetchProfile(ctx context.Context, remoteUserID string) (*Profile, error) {
	p.count("FetchProfile")
	return p.profile, p.profileErr
}

func (p *fakeProvider) SignInWithPassword(ctx context.Context, email, password string) (*RemoteSession, error) {
	p.count("SignInWithPassword")
	if p.signInFn == nil {
		return nil, ErrInvalidCredentials
	}

	remote, err := p.signInFn(email, password)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.current = remote
	p.mu.Unlock()
	p.emit(remote)
	return remote, nil
}

func (p *fakeProvider) SignOut(ctx context.Context) error {
	p.count("SignOut")
	if p.signOutErr != nil {
		return p.signOutErr
	}

	p.mu.Lock()
	p.current = nil
	p.mu.Unlock()
	p.emit(nil)
	return nil
}

func (p *fakeProvider) SignUp(ctx context.Context, email, password, displayName string) error {
	p.count("SignUp")
	if p.signUpFn != nil {
		return p.signUpFn()
	}
	return nil
}

func (p *fakeProvider) emit(remote *RemoteSession) {
	p.mu.Lock()
	fns := append([]func(*RemoteSession){}, p.listeners...)
	p.mu.Unlock()
	for _, fn := range fns {
		fn(remote)
	}
}

// snapshotRecorder captures every published snapshot in order.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *snapshotRecorder) record(snap Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *snapshotRecorder) states() []AuthState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]AuthState, 0, len(r.snaps))
	for _, snap := range r.snaps {
		out = append(out, snap.State)
	}
	return out
}

func (r *snapshotRecorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

// MockContext mocks router.Context for guard and controller tests.
type MockContext struct {
	mock.Mock
	NextCalled bool
}

func (m *MockContext) Next() error {
	m.NextCalled = true
	return nil
}

func (m *MockContext) Context() context.Context {
	args := m.Called()
	c, ok := args.Get(0).(context.Context)
	if !ok {
		panic("arg needs to be context.Context")
	}
	return c
}

func (m *MockContext) SetContext(ctx context.Context) {
	m.Called(ctx)
}

func (m *MockContext) Path() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Method() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) Body() []byte {
	args := m.Called()
	return args.Get(0).([]byte)
}

func (m *MockContext) Status(code int) router.Context {
	m.Called(code)
	return m
}

func (m *MockContext) SendString(s string) error {
	args := m.Called(s)
	return args.Error(0)
}

func (m *MockContext) Send(b []byte) error {
	args := m.Called(b)
	return args.Error(0)
}

func (m *MockContext) JSON(code int, val any) error {
	args := m.Called(code, val)
	return args.Error(0)
}

func (m *MockContext) NoContent(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) Render(name string, bind any, layout ...string) error {
	if len(layout) > 0 {
		args := m.Called(name, bind, layout[0])
		return args.Error(0)
	}
	args := m.Called(name, bind)
	return args.Error(0)
}

func (m *MockContext) Redirect(path string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(path, status)
		return args.Error(0)
	}
	args := m.Called(path)
	return args.Error(0)
}

func (m *MockContext) RedirectToRoute(name string, data router.ViewContext, status ...int) error {
	if len(status) > 0 {
		args := m.Called(name, data, status[0])
		return args.Error(0)
	}
	args := m.Called(name, data)
	return args.Error(0)
}

func (m *MockContext) RedirectBack(fallback string, status ...int) error {
	if len(status) > 0 {
		args := m.Called(fallback, status)
		return args.Error(0)
	}
	args := m.Called(fallback)
	return args.Error(0)
}

func (m *MockContext) SetHeader(key, val string) router.Context {
	m.Called(key, val)
	return m
}

func (m *MockContext) Header(key string) string {
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Get(key string, defaultValue any) any {
	args := m.Called(key, defaultValue)
	return args.Get(0)
}

func (m *MockContext) GetBool(key string, defaultValue bool) bool {
	args := m.Called(key, defaultValue)
	return args.Bool(0)
}

func (m *MockContext) GetInt(key string, def int) int {
	args := m.Called(key, def)
	return args.Int(0)
}

func (m *MockContext) Set(key string, val any) {
	m.Called(key, val)
}

func (m *MockContext) Bind(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindJSON(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindXML(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) BindQuery(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) CookieParser(i any) error {
	args := m.Called(i)
	return args.Error(0)
}

func (m *MockContext) Cookie(cookie *router.Cookie) {
	m.Called(cookie)
}

func (m *MockContext) Cookies(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) Param(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) ParamsInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Query(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) QueryInt(key string, defaultValue int) int {
	args := m.Called(key, defaultValue)
	return args.Int(0)
}

func (m *MockContext) Queries() map[string]string {
	args := m.Called()
	return args.Get(0).(map[string]string)
}

func (m *MockContext) GetString(key string, defaultValue string) string {
	args := m.Called(key, defaultValue)
	return args.String(0)
}

func (m *MockContext) Locals(key any, value ...any) any {
	if len(value) > 0 {
		m.Called(key, value[0])
		return nil
	}
	args := m.Called(key)
	return args.Get(0)
}

func (m *MockContext) OriginalURL() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) OnNext(callback func() error) {
	m.Called(callback)
}

func (m *MockContext) Referer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) FormFile(key string) (*multipart.FileHeader, error) {
	args := m.Called(key)
	header, _ := args.Get(0).(*multipart.FileHeader)
	return header, args.Error(1)
}

func (m *MockContext) FormValue(key string, defaultValue ...string) string {
	if len(defaultValue) > 0 {
		args := m.Called(key, defaultValue[0])
		return args.String(0)
	}
	args := m.Called(key)
	return args.String(0)
}

func (m *MockContext) IP() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) LocalsMerge(key any, value map[string]any) map[string]any {
	args := m.Called(key, value)
	merged, _ := args.Get(0).(map[string]any)
	return merged
}

func (m *MockContext) QueryValues(key string) []string {
	args := m.Called(key)
	values, _ := args.Get(0).([]string)
	return values
}

func (m *MockContext) RouteName() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockContext) RouteParams() map[string]string {
	args := m.Called()
	params, _ := args.Get(0).(map[string]string)
	return params
}

func (m *MockContext) SendStatus(code int) error {
	args := m.Called(code)
	return args.Error(0)
}

func (m *MockContext) SendStream(r io.Reader) error {
	args := m.Called(r)
	return args.Error(0)
}

func localTestSession(email string, role Role) *Session {
	return &Session{
		UserID:      localIdentityID(email),
		DisplayName: "Seeded User",
		Email:       email,
		Role:        role,
		Origin:      OriginLocalTesting,
	}
}

func remoteTestSession() *Session {
	return &Session{
		UserID:      "8f14e45f-ceea-4f3a-9a5a-000000000001",
		DisplayName: "Remote User",
		Email:       "remote@example.com",
		Role:        RoleTechnician,
		Origin:      OriginRemoteProvider,
	}
}
