package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lborres/folio/core"
)

// SessionManager owns the current session. It reconciles the cached
// snapshot, the authority's initial answer and the authority's change
// events, and it is the only writer of the snapshot.
type SessionManager struct {
	config    core.SessionConfig
	authority core.AuthAuthority
	profiles  core.ProfileStore
	cache     core.DurableCache
	logger    *slog.Logger
	now       func() time.Time

	mu          sync.Mutex
	session     *core.Session
	state       core.SessionState
	provisional bool
	mutations   int
	generation  uint64 // bumped on every write to session
	confirmed   uint64 // bumped on writes from events and operations
	lastErr     error
	updatedAt   time.Time
	signedOut   string // access token revoked by the last Logout
	unsubscribe func()
	loopDone    chan struct{}

	// serializes snapshot writes
	persistMu sync.Mutex

	events    *Broadcaster[core.SessionEvent] // published under mu
	startOnce sync.Once
	closeOnce sync.Once
}

var _ core.SessionReader = (*SessionManager)(nil)

func NewSessionManager(config core.SessionConfig, authority core.AuthAuthority, profiles core.ProfileStore, cache core.DurableCache, logger *slog.Logger) *SessionManager {
	if config.CacheKey == "" {
		config.CacheKey = core.SessionCacheKey
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		config:    config,
		authority: authority,
		profiles:  profiles,
		cache:     cache,
		logger:    logger,
		now:       time.Now,
		state:     core.StateInitializing,
		events:    NewBroadcaster[core.SessionEvent](),
	}
}

// Start subscribes to the authority and resolves the initial state from the
// cached snapshot and the authority's current session. Only the first call
// does anything.
//
// The returned error is a RemoteReadError when the authority could not be
// asked; the manager is still resolved (from the snapshot, or signed out).
func (m *SessionManager) Start(ctx context.Context) error {
	first := false
	m.startOnce.Do(func() { first = true })
	if !first {
		return nil
	}

	// Subscribe before asking so no transition falls between the two.
	events, unsubscribe := m.authority.Subscribe()
	done := make(chan struct{})

	m.mu.Lock()
	m.unsubscribe = unsubscribe
	m.loopDone = done
	startGen, startConfirmed := m.generation, m.confirmed
	m.mu.Unlock()

	go m.run(events, done)

	var g errgroup.Group
	g.Go(func() error {
		m.restoreSnapshot(ctx, startGen)
		return nil
	})
	g.Go(func() error {
		return m.loadCurrent(ctx, startConfirmed)
	})
	err := g.Wait()

	m.mu.Lock()
	if m.state != core.StateInitializing {
		m.mu.Unlock()
		return err
	}
	m.state = core.StateSignedOut
	m.lastErr = err
	m.updatedAt = m.now()
	ev := m.eventLocked(core.SourceInitial)
	m.events.Publish(ev)
	m.mu.Unlock()

	return err
}

// restoreSnapshot applies the cached snapshot provisionally, unless anything
// has written the session since Start began.
func (m *SessionManager) restoreSnapshot(ctx context.Context, startGen uint64) {
	raw, err := m.cache.Get(ctx, m.config.CacheKey)
	if err != nil {
		if !errors.Is(err, core.ErrCacheNotFound) {
			m.logger.Warn("reading session snapshot failed", "error", err)
		}
		return
	}

	snap, err := core.DecodeSnapshot(raw)
	if err != nil {
		m.logger.Warn("discarding corrupt session snapshot", "error", err)
		m.discardSnapshot(ctx, startGen)
		return
	}

	m.mu.Lock()
	if m.generation != startGen {
		m.mu.Unlock()
		m.logger.Debug("session snapshot superseded", "user_id", snap.UserID)
		return
	}
	_, ev := m.setLocked(snap, core.SourceCache)
	m.events.Publish(ev)
	m.mu.Unlock()

	m.logger.Debug("session restored from snapshot", "user_id", snap.UserID)
}

func (m *SessionManager) discardSnapshot(ctx context.Context, startGen uint64) {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	stale := m.generation != startGen
	m.mu.Unlock()
	if stale {
		return
	}
	if err := m.cache.Delete(context.WithoutCancel(ctx), m.config.CacheKey); err != nil {
		m.logger.Warn("deleting corrupt session snapshot failed", "error", err)
	}
}

// loadCurrent applies the authority's current session unless an event or
// operation has already spoken. A nil answer changes nothing here; Start
// settles on SignedOut if nothing else resolved the state.
func (m *SessionManager) loadCurrent(ctx context.Context, startConfirmed uint64) error {
	sess, err := m.authority.GetCurrentSession(ctx)
	if err != nil {
		m.logger.Warn("initial session query failed", "error", err)
		return core.NewOpError("start", core.ErrRemoteRead, err)
	}
	if sess == nil {
		return nil
	}

	m.mu.Lock()
	if m.confirmed != startConfirmed {
		m.mu.Unlock()
		return nil
	}
	gen, ev := m.setLocked(sess, core.SourceInitial)
	m.events.Publish(ev)
	m.mu.Unlock()

	if err := m.persist(ctx, gen); err != nil {
		m.logger.Warn("persisting session snapshot failed", "error", err)
	}
	return nil
}

func (m *SessionManager) run(events <-chan core.AuthEvent, done chan<- struct{}) {
	defer close(done)
	for ev := range events {
		m.applyEvent(ev)
	}
}

func (m *SessionManager) applyEvent(ev core.AuthEvent) {
	m.mu.Lock()
	if ev.Session != nil && ev.Session.AccessToken != "" && ev.Session.AccessToken == m.signedOut {
		m.mu.Unlock()
		m.logger.Debug("auth event for a signed out token ignored", "kind", ev.Kind)
		return
	}
	gen, out := m.setLocked(ev.Session, core.SourceEvent)
	m.events.Publish(out)
	m.mu.Unlock()

	m.logger.Debug("auth event applied", "kind", ev.Kind, "signed_in", ev.Session != nil, "generation", gen)

	if err := m.persist(context.Background(), gen); err != nil {
		m.logger.Warn("persisting session snapshot failed", "error", err)
	}
}

// setLocked makes next the current session (nil signs out) and returns the
// new generation. A session for the same user is updated in place.
func (m *SessionManager) setLocked(next *core.Session, source core.SessionSource) (uint64, core.SessionEvent) {
	switch {
	case next == nil:
		m.session = nil
		m.state = core.StateSignedOut
	case m.session.SameUser(next):
		m.session.UpdateFrom(next)
		m.state = core.StateSignedIn
	default:
		m.session = next.Clone()
		m.state = core.StateSignedIn
	}

	if source == core.SourceOperation && next != nil {
		m.signedOut = ""
	}
	m.provisional = source == core.SourceCache && next != nil
	m.generation++
	if source != core.SourceCache {
		m.confirmed++
	}
	m.updatedAt = m.now()
	return m.generation, m.eventLocked(source)
}

// persist writes the snapshot of generation gen to the cache. A generation
// that has been superseded is skipped; its successor writes after it.
func (m *SessionManager) persist(ctx context.Context, gen uint64) error {
	m.persistMu.Lock()
	defer m.persistMu.Unlock()

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return nil
	}
	snap := m.session.Clone()
	m.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	if snap == nil {
		return m.cache.Delete(ctx, m.config.CacheKey)
	}

	raw, err := core.EncodeSnapshot(snap)
	if err != nil {
		return err
	}
	return m.cache.Set(ctx, m.config.CacheKey, raw)
}

func (m *SessionManager) install(ctx context.Context, sess *core.Session) *core.Session {
	m.mu.Lock()
	gen, ev := m.setLocked(sess, core.SourceOperation)
	current := m.session.Clone()
	m.events.Publish(ev)
	m.mu.Unlock()

	if err := m.persist(ctx, gen); err != nil {
		m.logger.Warn("persisting session snapshot failed", "error", err)
	}
	return current
}

func (m *SessionManager) beginMutation() {
	m.mu.Lock()
	m.mutations++
	ev := m.eventLocked(core.SourceOperation)
	m.events.Publish(ev)
	m.mu.Unlock()
}

func (m *SessionManager) endMutation(err error) {
	m.mu.Lock()
	m.mutations--
	m.lastErr = err
	m.updatedAt = m.now()
	ev := m.eventLocked(core.SourceOperation)
	m.events.Publish(ev)
	m.mu.Unlock()
}

func (m *SessionManager) statusLocked() core.SessionStatus {
	status := core.SessionStatus{
		State:       m.state,
		Underlying:  m.state,
		Provisional: m.provisional,
		Generation:  m.generation,
		LastError:   m.lastErr,
		UpdatedAt:   m.updatedAt,
	}
	if m.mutations > 0 && m.state != core.StateInitializing {
		status.State = core.StateMutating
	}
	return status
}

func (m *SessionManager) eventLocked(source core.SessionSource) core.SessionEvent {
	return core.SessionEvent{
		Status:  m.statusLocked(),
		Session: m.session.Clone(),
		Source:  source,
	}
}

// SignUp registers a user. A duplicate email or username is a
// ValidationError; other rejections are AuthErrors. When the profile row
// cannot be created the result carries a ProfileWarning and the
// registration still stands.
func (m *SessionManager) SignUp(ctx context.Context, input core.SignUpInput) (_ *core.SignUpResult, err error) {
	const op = "sign up"

	input.Email = strings.TrimSpace(input.Email)
	input.Username = strings.TrimSpace(input.Username)
	if err := validateSignUp(input); err != nil {
		return nil, core.NewOpError(op, core.ErrValidation, err)
	}

	m.beginMutation()
	defer func() { m.endMutation(err) }()

	resp, err := m.authority.SignUp(ctx, input)
	if err != nil {
		m.logger.Info("sign up rejected", "email", input.Email, "error", err)
		return nil, core.NewOpError(op, authorityKind(err), err)
	}

	result := &core.SignUpResult{}
	if resp == nil {
		return result, nil
	}
	result.User = resp.User
	if resp.User != nil {
		result.ProfileWarning = m.createProfile(ctx, resp.User, input.Username)
	}
	// No session means the authority wants the address confirmed first.
	if resp.Session != nil {
		result.Session = m.install(ctx, resp.Session)
	}
	return result, nil
}

func (m *SessionManager) createProfile(ctx context.Context, user *core.AuthUser, username string) error {
	now := m.now()
	profile := &core.Profile{
		UserID:    user.ID,
		Email:     user.Email,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.profiles.CreateProfile(context.WithoutCancel(ctx), profile); err != nil {
		m.logger.Warn("creating profile row failed", "user_id", user.ID, "error", err)
		return core.NewOpError("create profile", core.ErrRemoteWrite, err)
	}
	return nil
}

// Login signs in with email and password and returns the new session.
func (m *SessionManager) Login(ctx context.Context, email, password string) (_ *core.Session, err error) {
	const op = "login"

	email = strings.TrimSpace(email)
	if err := validateCredentials(email, password); err != nil {
		return nil, core.NewOpError(op, core.ErrValidation, err)
	}

	m.beginMutation()
	defer func() { m.endMutation(err) }()

	sess, err := m.authority.SignIn(ctx, email, password)
	if err != nil {
		m.logger.Info("sign in rejected", "email", email, "error", err)
		return nil, core.NewOpError(op, authorityKind(err), err)
	}
	if sess == nil {
		return nil, core.NewOpError(op, core.ErrAuth, core.ErrSessionNotFound)
	}
	return m.install(ctx, sess), nil
}

// Logout signs out locally whatever the authority says. A failed remote
// sign-out is logged; only failing to delete the snapshot is returned.
// Authority events still carrying the revoked token are ignored afterwards.
func (m *SessionManager) Logout(ctx context.Context) (err error) {
	m.beginMutation()
	defer func() { m.endMutation(err) }()

	m.mu.Lock()
	var token string
	if m.session != nil {
		token = m.session.AccessToken
	}
	m.mu.Unlock()

	if token != "" {
		if err := m.authority.SignOut(ctx, token); err != nil {
			m.logger.Warn("remote sign out failed, signing out locally", "error", err)
		}
	}

	m.mu.Lock()
	if token != "" {
		m.signedOut = token
	}
	gen, ev := m.setLocked(nil, core.SourceOperation)
	m.events.Publish(ev)
	m.mu.Unlock()

	if err := m.persist(ctx, gen); err != nil {
		return core.NewOpError("logout", core.ErrRemoteWrite, err)
	}
	return nil
}

// UpdateProfile writes update to the profile row, re-reads the row and
// copies it into the session's profile.
func (m *SessionManager) UpdateProfile(ctx context.Context, update core.ProfileUpdate) (_ *core.Profile, err error) {
	const op = "update profile"

	if update.Empty() {
		return nil, core.NewOpError(op, core.ErrValidation, core.ErrEmptyUpdate)
	}
	if update.Username != nil && strings.TrimSpace(*update.Username) == "" {
		return nil, core.NewOpError(op, core.ErrValidation, core.ErrUsernameRequired)
	}
	userID, ok := m.CurrentUserID()
	if !ok {
		return nil, core.NewOpError(op, core.ErrNotAuthenticated, nil)
	}

	m.beginMutation()
	defer func() { m.endMutation(err) }()

	if err := m.profiles.UpdateProfile(context.WithoutCancel(ctx), userID, update); err != nil {
		return nil, core.NewOpError(op, core.ErrRemoteWrite, err)
	}
	profile, err := m.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, core.NewOpError(op, core.ErrRemoteRead, err)
	}

	m.mu.Lock()
	if m.session == nil || m.session.UserID != userID {
		m.mu.Unlock()
		return profile, nil
	}
	m.session.Profile = profile.Metadata()
	m.generation++
	m.confirmed++
	m.updatedAt = m.now()
	gen := m.generation
	ev := m.eventLocked(core.SourceOperation)
	m.events.Publish(ev)
	m.mu.Unlock()

	if err := m.persist(ctx, gen); err != nil {
		m.logger.Warn("persisting session snapshot failed", "error", err)
	}
	return profile, nil
}

// Profile reads the current user's profile row.
func (m *SessionManager) Profile(ctx context.Context) (*core.Profile, error) {
	const op = "profile"

	userID, ok := m.CurrentUserID()
	if !ok {
		return nil, core.NewOpError(op, core.ErrNotAuthenticated, nil)
	}
	profile, err := m.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, core.NewOpError(op, core.ErrRemoteRead, err)
	}
	return profile, nil
}

// ChangePassword sets a new password for the signed-in user.
func (m *SessionManager) ChangePassword(ctx context.Context, newPassword string) error {
	const op = "change password"

	if newPassword == "" {
		return core.NewOpError(op, core.ErrValidation, core.ErrPasswordRequired)
	}

	m.mu.Lock()
	var token string
	if m.session != nil {
		token = m.session.AccessToken
	}
	m.mu.Unlock()
	if token == "" {
		return core.NewOpError(op, core.ErrNotAuthenticated, nil)
	}

	if _, err := m.authority.UpdateUser(ctx, token, core.UserAttributes{Password: &newPassword}); err != nil {
		return core.NewOpError(op, authorityKind(err), err)
	}
	return nil
}

// RequestPasswordReset asks the authority to mail a reset link to email.
func (m *SessionManager) RequestPasswordReset(ctx context.Context, email string) error {
	const op = "reset password"

	email = strings.TrimSpace(email)
	if email == "" {
		return core.NewOpError(op, core.ErrValidation, core.ErrEmailRequired)
	}
	if err := m.authority.ResetPasswordForEmail(ctx, email); err != nil {
		return core.NewOpError(op, authorityKind(err), err)
	}
	return nil
}

// Session returns a copy of the current session, or nil when signed out.
func (m *SessionManager) Session() *core.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.Clone()
}

func (m *SessionManager) Status() core.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *SessionManager) CurrentUserID() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return "", false
	}
	return m.session.UserID, true
}

// Subscribe returns a channel carrying the latest SessionEvent and a func
// that ends the subscription.
func (m *SessionManager) Subscribe() (<-chan core.SessionEvent, func()) {
	return m.events.Subscribe()
}

// Close stops listening to the authority and closes every subscription.
func (m *SessionManager) Close() {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		unsubscribe, done := m.unsubscribe, m.loopDone
		m.mu.Unlock()

		if unsubscribe != nil {
			unsubscribe()
		}
		if done != nil {
			<-done
		}
		m.events.Close()
	})
}

func validateCredentials(email, password string) error {
	if email == "" {
		return core.ErrEmailRequired
	}
	if password == "" {
		return core.ErrPasswordRequired
	}
	return nil
}

func validateSignUp(input core.SignUpInput) error {
	if err := validateCredentials(input.Email, input.Password); err != nil {
		return err
	}
	if input.Username == "" {
		return core.ErrUsernameRequired
	}
	return nil
}

// authorityKind classifies an error returned by the authority.
func authorityKind(err error) error {
	if kind := core.KindOf(err); kind != nil {
		return kind
	}
	switch {
	case errors.Is(err, core.ErrUserExists),
		errors.Is(err, core.ErrUsernameTaken),
		errors.Is(err, core.ErrInvalidEmail),
		errors.Is(err, core.ErrPasswordTooShort),
		errors.Is(err, core.ErrEmailRequired),
		errors.Is(err, core.ErrPasswordRequired):
		return core.ErrValidation
	}
	return core.ErrAuth
}
