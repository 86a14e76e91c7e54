// Package memauth is an in-process auth authority. Accounts, token digests
// and the current session live in a core.DurableCache, so a file or Redis
// cache keeps them across restarts.
package memauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lborres/folio/core"
	"github.com/lborres/folio/pkg/crypto"
)

const (
	DefaultTokenTTL      = time.Hour
	DefaultMinPassword   = 6
	defaultEventCapacity = 16

	keyPrefix = "memauth:"
)

type Options struct {
	TokenTTL    time.Duration
	MinPassword int

	// RequireConfirmation makes SignUp return no session.
	RequireConfirmation bool

	// OnRecovery receives the one-time token issued by ResetPasswordForEmail.
	// Without it the token is only logged at debug level.
	OnRecovery func(email, token string)

	Hasher crypto.PasswordHasher
	Logger *slog.Logger
}

type Authority struct {
	cache  core.DurableCache
	hasher crypto.PasswordHasher
	opts   Options
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	subs    map[int]chan core.AuthEvent
	nextSub int
}

var _ core.AuthAuthority = (*Authority)(nil)

// account is the stored form of a user.
type account struct {
	User         core.AuthUser `json:"user"`
	PasswordHash string        `json:"passwordHash"`
	RecoveryHash string        `json:"recoveryHash,omitempty"`
}

// grant is the stored form of an issued access token.
type grant struct {
	UserID      string    `json:"userId"`
	RefreshHash string    `json:"refreshHash"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func New(cache core.DurableCache, opts Options) *Authority {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.MinPassword <= 0 {
		opts.MinPassword = DefaultMinPassword
	}
	hasher := opts.Hasher
	if hasher == nil {
		hasher = crypto.NewArgon2()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{
		cache:  cache,
		hasher: hasher,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		subs:   make(map[int]chan core.AuthEvent),
	}
}

func accountKey(email string) string { return keyPrefix + "account:" + strings.ToLower(email) }
func userKey(id string) string       { return keyPrefix + "user:" + id }
func grantKey(hash string) string    { return keyPrefix + "grant:" + hash }

const currentKey = keyPrefix + "current"

// ============================================
// CHANGE STREAM
// ============================================

func (a *Authority) Subscribe() (<-chan core.AuthEvent, func()) {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.nextSub
	a.nextSub++
	ch := make(chan core.AuthEvent, defaultEventCapacity)
	a.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.mu.Lock()
			defer a.mu.Unlock()
			delete(a.subs, id)
			close(ch)
		})
	}
}

// emit never blocks. A full subscriber loses its oldest queued event, so the
// newest one, which carries the current state, is always delivered.
func (a *Authority) emit(kind core.AuthEventKind, s *core.Session) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, ch := range a.subs {
		ev := core.AuthEvent{Kind: kind, Session: s.Clone()}
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case old := <-ch:
			a.logger.Warn("auth event dropped for slow subscriber", "kind", old.Kind)
		default:
		}
		ch <- ev
	}
}

// ============================================
// SESSIONS
// ============================================

// GetCurrentSession returns the session last issued by this authority, or
// nil. An expired access token is refreshed and TOKEN_REFRESHED is emitted.
func (a *Authority) GetCurrentSession(ctx context.Context) (*core.Session, error) {
	raw, err := a.cache.Get(ctx, currentKey)
	if errors.Is(err, core.ErrCacheNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read current session: %w", err)
	}
	current, err := core.DecodeSnapshot(raw)
	if err != nil {
		a.logger.Warn("current session unreadable, dropping it", "error", err)
		return nil, a.cache.Delete(ctx, currentKey)
	}

	g, err := a.lookupGrant(ctx, current.AccessToken)
	if errors.Is(err, core.ErrInvalidToken) {
		// Revoked elsewhere.
		return nil, a.cache.Delete(ctx, currentKey)
	}
	if err != nil {
		return nil, err
	}
	if !current.Expired(a.now()) {
		return current, nil
	}

	if ok, _ := crypto.VerifyToken(current.RefreshToken, g.RefreshHash); !ok {
		return nil, a.cache.Delete(ctx, currentKey)
	}
	acct, err := a.accountByID(ctx, g.UserID)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Delete(ctx, grantKey(crypto.HashToken(current.AccessToken))); err != nil {
		return nil, err
	}
	refreshed, err := a.issue(ctx, &acct.User)
	if err != nil {
		return nil, err
	}
	a.emit(core.AuthEventTokenRefreshed, refreshed)
	return refreshed, nil
}

// issue creates a token pair for user and makes it the current session.
func (a *Authority) issue(ctx context.Context, user *core.AuthUser) (*core.Session, error) {
	access, err := crypto.NewTokenPair(crypto.DefaultTokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	refresh, err := crypto.NewTokenPair(crypto.DefaultTokenLength)
	if err != nil {
		return nil, fmt.Errorf("generate refresh token: %w", err)
	}

	s := &core.Session{
		UserID:       user.ID,
		Email:        user.Email,
		AccessToken:  access.Token,
		RefreshToken: refresh.Token,
		ExpiresAt:    a.now().Add(a.opts.TokenTTL),
		Profile:      user.Metadata,
	}
	if err := a.putJSON(ctx, grantKey(access.Hash), grant{
		UserID:      user.ID,
		RefreshHash: refresh.Hash,
		ExpiresAt:   s.ExpiresAt,
	}); err != nil {
		return nil, err
	}
	raw, err := core.EncodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	if err := a.cache.Set(ctx, currentKey, raw); err != nil {
		return nil, fmt.Errorf("store current session: %w", err)
	}
	return s, nil
}

func (a *Authority) lookupGrant(ctx context.Context, accessToken string) (*grant, error) {
	if accessToken == "" {
		return nil, core.ErrInvalidToken
	}
	var g grant
	if err := a.getJSON(ctx, grantKey(crypto.HashToken(accessToken)), &g); err != nil {
		if errors.Is(err, core.ErrCacheNotFound) {
			return nil, core.ErrInvalidToken
		}
		return nil, err
	}
	return &g, nil
}

// authorize resolves a live access token to its account.
func (a *Authority) authorize(ctx context.Context, accessToken string) (*account, error) {
	g, err := a.lookupGrant(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	if a.now().After(g.ExpiresAt) {
		return nil, core.ErrSessionExpired
	}
	return a.accountByID(ctx, g.UserID)
}

// ============================================
// ACCOUNTS
// ============================================

// SignUp registers a new user with email and password
func (a *Authority) SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResponse, error) {
	email := strings.TrimSpace(input.Email)
	if err := a.checkEmail(email); err != nil {
		return nil, err
	}
	if err := a.checkPassword(input.Password); err != nil {
		return nil, err
	}

	// Step 1: Check if user already exists
	if _, err := a.accountByEmail(ctx, email); err == nil {
		return nil, core.ErrUserExists
	} else if !errors.Is(err, core.ErrUserNotFound) {
		return nil, fmt.Errorf("check existing user: %w", err)
	}

	// Step 2: Hash the password
	hash, err := a.hasher.Hash(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	// Step 3: Create the user
	acct := &account{
		User: core.AuthUser{
			ID:        uuid.NewString(),
			Email:     email,
			Metadata:  core.ProfileMetadata{Username: strings.TrimSpace(input.Username)},
			CreatedAt: a.now(),
		},
		PasswordHash: hash,
	}
	if err := a.saveAccount(ctx, acct); err != nil {
		return nil, err
	}
	a.logger.Info("user registered", "user_id", acct.User.ID)

	resp := &core.SignUpResponse{User: &acct.User}
	if a.opts.RequireConfirmation {
		return resp, nil
	}

	// Step 4: Create a session for the new user
	s, err := a.issue(ctx, &acct.User)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	resp.Session = s
	a.emit(core.AuthEventSignedIn, s)
	return resp, nil
}

// SignIn authenticates a user with email and password
func (a *Authority) SignIn(ctx context.Context, email, password string) (*core.Session, error) {
	acct, err := a.accountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	ok, err := a.hasher.Verify(password, acct.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		return nil, core.ErrInvalidCredentials
	}

	s, err := a.issue(ctx, &acct.User)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	a.emit(core.AuthEventSignedIn, s)
	return s, nil
}

// SignOut revokes accessToken. Signing out an unknown token still clears the
// current session.
func (a *Authority) SignOut(ctx context.Context, accessToken string) error {
	if accessToken != "" {
		if err := a.cache.Delete(ctx, grantKey(crypto.HashToken(accessToken))); err != nil {
			return fmt.Errorf("revoke token: %w", err)
		}
	}
	if err := a.cache.Delete(ctx, currentKey); err != nil {
		return fmt.Errorf("clear current session: %w", err)
	}
	a.emit(core.AuthEventSignedOut, nil)
	return nil
}

func (a *Authority) UpdateUser(ctx context.Context, accessToken string, attrs core.UserAttributes) (*core.AuthUser, error) {
	acct, err := a.authorize(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	oldEmail := acct.User.Email

	if attrs.Email != nil {
		email := strings.TrimSpace(*attrs.Email)
		if err := a.checkEmail(email); err != nil {
			return nil, err
		}
		if !strings.EqualFold(email, oldEmail) {
			if _, err := a.accountByEmail(ctx, email); err == nil {
				return nil, core.ErrUserExists
			}
		}
		acct.User.Email = email
	}
	if attrs.Password != nil {
		if err := a.checkPassword(*attrs.Password); err != nil {
			return nil, err
		}
		hash, err := a.hasher.Hash(*attrs.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		acct.PasswordHash = hash
		acct.RecoveryHash = ""
	}
	if attrs.Metadata != nil {
		acct.User.Metadata = *attrs.Metadata
	}

	if err := a.saveAccount(ctx, acct); err != nil {
		return nil, err
	}
	if !strings.EqualFold(oldEmail, acct.User.Email) {
		if err := a.cache.Delete(ctx, accountKey(oldEmail)); err != nil {
			return nil, err
		}
	}

	s, err := a.sessionWithUser(ctx, accessToken, &acct.User)
	if err != nil {
		return nil, err
	}
	if s != nil {
		a.emit(core.AuthEventUserUpdated, s)
	}
	user := acct.User
	return &user, nil
}

// sessionWithUser rewrites the current session with user's identity when
// accessToken is the current one.
func (a *Authority) sessionWithUser(ctx context.Context, accessToken string, user *core.AuthUser) (*core.Session, error) {
	raw, err := a.cache.Get(ctx, currentKey)
	if errors.Is(err, core.ErrCacheNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s, err := core.DecodeSnapshot(raw)
	if err != nil || s.AccessToken != accessToken {
		return nil, nil
	}
	s.Email = user.Email
	s.Profile = user.Metadata
	raw, err = core.EncodeSnapshot(s)
	if err != nil {
		return nil, err
	}
	return s, a.cache.Set(ctx, currentKey, raw)
}

// ResetPasswordForEmail issues a one-time recovery token. An unknown email is
// not an error.
func (a *Authority) ResetPasswordForEmail(ctx context.Context, email string) error {
	acct, err := a.accountByEmail(ctx, strings.TrimSpace(email))
	if errors.Is(err, core.ErrUserNotFound) {
		a.logger.Debug("password reset for unknown email ignored")
		return nil
	}
	if err != nil {
		return err
	}

	pair, err := crypto.NewTokenPair(crypto.DefaultTokenLength)
	if err != nil {
		return fmt.Errorf("generate recovery token: %w", err)
	}
	acct.RecoveryHash = pair.Hash
	if err := a.saveAccount(ctx, acct); err != nil {
		return err
	}

	if a.opts.OnRecovery != nil {
		a.opts.OnRecovery(acct.User.Email, pair.Token)
	} else {
		a.logger.Debug("recovery token issued", "user_id", acct.User.ID, "token", pair.Token)
	}
	return nil
}

// Recover exchanges a recovery token for a session and emits
// PASSWORD_RECOVERY. The token is single use.
func (a *Authority) Recover(ctx context.Context, email, token string) (*core.Session, error) {
	acct, err := a.accountByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			return nil, core.ErrInvalidToken
		}
		return nil, err
	}
	if ok, _ := crypto.VerifyToken(token, acct.RecoveryHash); !ok {
		return nil, core.ErrInvalidToken
	}
	acct.RecoveryHash = ""
	if err := a.saveAccount(ctx, acct); err != nil {
		return nil, err
	}

	s, err := a.issue(ctx, &acct.User)
	if err != nil {
		return nil, err
	}
	a.emit(core.AuthEventPasswordRecovery, s)
	return s, nil
}

func (a *Authority) checkEmail(email string) error {
	if email == "" {
		return core.ErrEmailRequired
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return core.ErrInvalidEmail
	}
	return nil
}

func (a *Authority) checkPassword(password string) error {
	if password == "" {
		return core.ErrPasswordRequired
	}
	if len(password) < a.opts.MinPassword {
		return core.ErrPasswordTooShort
	}
	return nil
}

// ============================================
// STORAGE
// ============================================

func (a *Authority) accountByEmail(ctx context.Context, email string) (*account, error) {
	var acct account
	if err := a.getJSON(ctx, accountKey(email), &acct); err != nil {
		if errors.Is(err, core.ErrCacheNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return &acct, nil
}

func (a *Authority) accountByID(ctx context.Context, id string) (*account, error) {
	email, err := a.cache.Get(ctx, userKey(id))
	if err != nil {
		if errors.Is(err, core.ErrCacheNotFound) {
			return nil, core.ErrUserNotFound
		}
		return nil, err
	}
	return a.accountByEmail(ctx, email)
}

func (a *Authority) saveAccount(ctx context.Context, acct *account) error {
	if err := a.putJSON(ctx, accountKey(acct.User.Email), acct); err != nil {
		return err
	}
	if err := a.cache.Set(ctx, userKey(acct.User.ID), acct.User.Email); err != nil {
		return fmt.Errorf("store user index: %w", err)
	}
	return nil
}

func (a *Authority) getJSON(ctx context.Context, key string, v any) error {
	raw, err := a.cache.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("decode %s: %v: %w", key, err, core.ErrCorruptData)
	}
	return nil
}

func (a *Authority) putJSON(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := a.cache.Set(ctx, key, string(b)); err != nil {
		return fmt.Errorf("store %s: %w", key, err)
	}
	return nil
}
