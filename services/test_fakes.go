package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lborres/folio/core"
)

// FakeAuthority is a test-only fake implementing core.AuthAuthority.
// Accounts live in a map; error fields and gates inject behavior. It never
// emits events on its own; tests call Emit.
type FakeAuthority struct {
	mu       sync.Mutex
	accounts map[string]*fakeAccount // by email
	current  *core.Session
	subs     map[int]chan core.AuthEvent
	nextSub  int
	nextID   int

	getSessionErr  error
	getSessionGate chan struct{}
	signUpErr      error
	signInErr      error
	signInGate     chan struct{}
	signOutErr     error
	updateUserErr  error
	resetErr       error
	withholdSignUp bool // sign up returns no session

	SignOutCalls int
	ResetEmails  []string
}

type fakeAccount struct {
	user     *core.AuthUser
	password string
}

func NewFakeAuthority() *FakeAuthority {
	return &FakeAuthority{
		accounts: make(map[string]*fakeAccount),
		subs:     make(map[int]chan core.AuthEvent),
	}
}

// AddUser registers an account and returns the session a sign-in would issue.
func (f *FakeAuthority) AddUser(email, password, username string) *core.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addUserLocked(email, password, username)
}

func (f *FakeAuthority) addUserLocked(email, password, username string) *core.Session {
	f.nextID++
	user := &core.AuthUser{
		ID:        fmt.Sprintf("user-%d", f.nextID),
		Email:     email,
		Metadata:  core.ProfileMetadata{Username: username},
		CreatedAt: time.Now(),
	}
	f.accounts[email] = &fakeAccount{user: user, password: password}
	return f.sessionFor(user)
}

func (f *FakeAuthority) sessionFor(user *core.AuthUser) *core.Session {
	return &core.Session{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  "access-" + user.ID,
		RefreshToken: "refresh-" + user.ID,
		ExpiresAt:    time.Now().Add(time.Hour),
		Profile:      user.Metadata,
	}
}

// SetCurrent sets what GetCurrentSession returns.
func (f *FakeAuthority) SetCurrent(s *core.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s.Clone()
}

func (f *FakeAuthority) SetGetSessionError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getSessionErr = err
}

// GateGetSession makes GetCurrentSession block until the returned func is called.
func (f *FakeAuthority) GateGetSession() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.getSessionGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// GateSignIn makes SignIn block until the returned func is called.
func (f *FakeAuthority) GateSignIn() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.signInGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *FakeAuthority) SetSignUpError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUpErr = err
}

func (f *FakeAuthority) SetSignInError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signInErr = err
}

func (f *FakeAuthority) SetSignOutError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutErr = err
}

func (f *FakeAuthority) SetUpdateUserError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateUserErr = err
}

func (f *FakeAuthority) SetResetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetErr = err
}

// RequireConfirmation makes SignUp return a user without a session.
func (f *FakeAuthority) RequireConfirmation() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withholdSignUp = true
}

// Emit delivers ev to every subscriber.
func (f *FakeAuthority) Emit(ev core.AuthEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.subs {
		ch <- ev
	}
}

// Subscribers returns the number of live subscriptions.
func (f *FakeAuthority) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

func (f *FakeAuthority) Password(email string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.accounts[email]; ok {
		return a.password
	}
	return ""
}

func (f *FakeAuthority) GetCurrentSession(ctx context.Context) (*core.Session, error) {
	f.mu.Lock()
	gate := f.getSessionGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getSessionErr != nil {
		return nil, f.getSessionErr
	}
	return f.current.Clone(), nil
}

func (f *FakeAuthority) Subscribe() (<-chan core.AuthEvent, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextSub
	f.nextSub++
	ch := make(chan core.AuthEvent, 16)
	f.subs[id] = ch

	return ch, func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
}

func (f *FakeAuthority) SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.signUpErr != nil {
		return nil, f.signUpErr
	}
	if _, exists := f.accounts[input.Email]; exists {
		return nil, core.ErrUserExists
	}
	session := f.addUserLocked(input.Email, input.Password, input.Username)
	resp := &core.SignUpResponse{User: f.accounts[input.Email].user}
	if !f.withholdSignUp {
		resp.Session = session
	}
	return resp, nil
}

func (f *FakeAuthority) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	f.mu.Lock()
	gate := f.signInGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	account, ok := f.accounts[email]
	if !ok || account.password != password {
		return nil, core.ErrInvalidCredentials
	}
	f.current = f.sessionFor(account.user)
	return f.current.Clone(), nil
}

func (f *FakeAuthority) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.SignOutCalls++
	if f.signOutErr != nil {
		return f.signOutErr
	}
	f.current = nil
	return nil
}

func (f *FakeAuthority) UpdateUser(ctx context.Context, accessToken string, attrs core.UserAttributes) (*core.AuthUser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateUserErr != nil {
		return nil, f.updateUserErr
	}
	for _, account := range f.accounts {
		if "access-"+account.user.ID != accessToken {
			continue
		}
		if attrs.Password != nil {
			account.password = *attrs.Password
		}
		if attrs.Metadata != nil {
			account.user.Metadata = *attrs.Metadata
		}
		return account.user, nil
	}
	return nil, core.ErrInvalidToken
}

func (f *FakeAuthority) ResetPasswordForEmail(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resetErr != nil {
		return f.resetErr
	}
	f.ResetEmails = append(f.ResetEmails, email)
	return nil
}

// FakeFavoriteStore is a test-only fake implementing core.FavoriteStore.
// Writes are counted; FailWrite makes the n-th write fail and GateWrites
// holds every write until released.
type FakeFavoriteStore struct {
	mu      sync.Mutex
	records map[string]map[string]*core.FavoriteRecord // user -> book -> record

	writeCalls int
	readCalls  int
	failWrites map[int]error
	writeGate  chan struct{}
	readGate   chan struct{}
	readErr    error
	listErr    error
}

func NewFakeFavoriteStore() *FakeFavoriteStore {
	return &FakeFavoriteStore{
		records:    make(map[string]map[string]*core.FavoriteRecord),
		failWrites: make(map[int]error),
	}
}

// FailWrite makes the n-th write (1-based, adds and removes together) return err.
func (f *FakeFavoriteStore) FailWrite(n int, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites[n] = err
}

// GateWrites blocks every write until the returned func is called.
func (f *FakeFavoriteStore) GateWrites() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.writeGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// GateReads blocks every IsFavorite until the returned func is called.
func (f *FakeFavoriteStore) GateReads() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.readGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *FakeFavoriteStore) SetReadError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readErr = err
}

func (f *FakeFavoriteStore) SetListError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

// Seed stores r as is, bypassing write accounting.
func (f *FakeFavoriteStore) Seed(r *core.FavoriteRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(r)
}

func (f *FakeFavoriteStore) putLocked(r *core.FavoriteRecord) {
	byBook, ok := f.records[r.UserID]
	if !ok {
		byBook = make(map[string]*core.FavoriteRecord)
		f.records[r.UserID] = byBook
	}
	if _, exists := byBook[r.BookID]; exists {
		return
	}
	byBook[r.BookID] = r
}

// Count returns the number of records for (userID, bookID).
func (f *FakeFavoriteStore) Count(userID, bookID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.records[userID][bookID]; ok {
		return 1
	}
	return 0
}

func (f *FakeFavoriteStore) WriteCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writeCalls
}

func (f *FakeFavoriteStore) ReadCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls
}

func (f *FakeFavoriteStore) beginWrite(ctx context.Context) error {
	f.mu.Lock()
	f.writeCalls++
	n := f.writeCalls
	gate := f.writeGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failWrites[n]
}

func (f *FakeFavoriteStore) IsFavorite(ctx context.Context, userID, bookID string) (bool, error) {
	f.mu.Lock()
	f.readCalls++
	gate := f.readGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return false, f.readErr
	}
	_, ok := f.records[userID][bookID]
	return ok, nil
}

func (f *FakeFavoriteStore) AddFavorite(ctx context.Context, r *core.FavoriteRecord) error {
	if err := f.beginWrite(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putLocked(r)
	return nil
}

func (f *FakeFavoriteStore) RemoveFavorite(ctx context.Context, userID, bookID string) error {
	if err := f.beginWrite(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records[userID], bookID)
	return nil
}

func (f *FakeFavoriteStore) ListFavorites(ctx context.Context, userID string) ([]*core.FavoriteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []*core.FavoriteRecord
	for _, r := range f.records[userID] {
		out = append(out, r)
	}
	return out, nil
}

// FakeProfileStore is a test-only fake implementing core.ProfileStore.
type FakeProfileStore struct {
	mu        sync.Mutex
	profiles  map[string]*core.Profile
	createErr error
	updateErr error
	getErr    error
}

func NewFakeProfileStore() *FakeProfileStore {
	return &FakeProfileStore{profiles: make(map[string]*core.Profile)}
}

func (f *FakeProfileStore) SetCreateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

func (f *FakeProfileStore) SetUpdateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updateErr = err
}

func (f *FakeProfileStore) SetGetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

// Put stores p as is.
func (f *FakeProfileStore) Put(p *core.Profile) {
	f.mu.Lock()
	defer f.mu.Unlock()
	dup := *p
	f.profiles[p.UserID] = &dup
}

func (f *FakeProfileStore) CreateProfile(ctx context.Context, p *core.Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	if _, exists := f.profiles[p.UserID]; exists {
		return core.ErrUserExists
	}
	dup := *p
	f.profiles[p.UserID] = &dup
	return nil
}

func (f *FakeProfileStore) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return nil, core.ErrProfileNotFound
	}
	dup := *p
	return &dup, nil
}

func (f *FakeProfileStore) UpdateProfile(ctx context.Context, userID string, update core.ProfileUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	p, ok := f.profiles[userID]
	if !ok {
		return core.ErrProfileNotFound
	}
	update.Apply(p)
	p.UpdatedAt = time.Now()
	return nil
}

// FakeCache is a test-only fake implementing core.DurableCache.
// GateGet holds Get until released; the value is read after the gate opens.
type FakeCache struct {
	mu        sync.Mutex
	values    map[string]string
	getGate   chan struct{}
	getCalled chan struct{}
	getErr    error
	setErr    error
	deleteErr error
	SetCalls  int
}

func NewFakeCache() *FakeCache {
	return &FakeCache{
		values:    make(map[string]string),
		getCalled: make(chan struct{}),
	}
}

// GateGet blocks Get until the returned func is called.
func (f *FakeCache) GateGet() func() {
	gate := make(chan struct{})
	f.mu.Lock()
	f.getGate = gate
	f.mu.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

// GetCalled is closed by the first Get.
func (f *FakeCache) GetCalled() <-chan struct{} {
	return f.getCalled
}

func (f *FakeCache) SetGetError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getErr = err
}

func (f *FakeCache) SetDeleteError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteErr = err
}

// Has reports whether key is present.
func (f *FakeCache) Has(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.values[key]
	return ok
}

// Raw returns the stored value of key.
func (f *FakeCache) Raw(key string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key]
}

// Put stores value without counting it as a Set.
func (f *FakeCache) Put(key, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

func (f *FakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	gate := f.getGate
	select {
	case <-f.getCalled:
	default:
		close(f.getCalled)
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return "", f.getErr
	}
	v, ok := f.values[key]
	if !ok {
		return "", core.ErrCacheNotFound
	}
	return v, nil
}

func (f *FakeCache) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.SetCalls++
	f.values[key] = value
	return nil
}

func (f *FakeCache) Delete(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.values, key)
	return nil
}

// StaticSession is a core.SessionReader with a settable user.
type StaticSession struct {
	mu     sync.Mutex
	userID string
}

func (s *StaticSession) SignIn(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.userID = userID
}

func (s *StaticSession) SignOut() {
	s.SignIn("")
}

func (s *StaticSession) CurrentUserID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID, s.userID != ""
}
