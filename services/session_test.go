package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/lborres/folio/core"
)

// Helper function to create a SessionManager wired to fakes for tests
func newTestSessionManager(t *testing.T) (*SessionManager, *FakeAuthority, *FakeProfileStore, *FakeCache) {
	t.Helper()
	authority := NewFakeAuthority()
	profiles := NewFakeProfileStore()
	cache := NewFakeCache()
	manager := NewSessionManager(core.DefaultSessionConfig(), authority, profiles, cache, slog.New(slog.DiscardHandler))
	t.Cleanup(manager.Close)
	return manager, authority, profiles, cache
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func mustSnapshot(t *testing.T, s *core.Session) string {
	t.Helper()
	raw, err := core.EncodeSnapshot(s)
	if err != nil {
		t.Fatalf("EncodeSnapshot() error = %v", err)
	}
	return raw
}

func cachedUserID(t *testing.T, cache *FakeCache) string {
	t.Helper()
	snap, err := core.DecodeSnapshot(cache.Raw(core.SessionCacheKey))
	if err != nil {
		t.Fatalf("cached snapshot does not decode: %v", err)
	}
	return snap.UserID
}

// Requirement: Start resolves the initial state from the snapshot and the authority.
func TestSessionManager_Start(t *testing.T) {
	alice := &core.Session{UserID: "user-alice", Email: "alice@example.com", AccessToken: "a"}
	bob := &core.Session{UserID: "user-bob", Email: "bob@example.com", AccessToken: "b"}
	remoteDown := errors.New("connection refused")

	tests := []struct {
		name            string
		setup           func(*FakeAuthority, *FakeCache)
		wantState       core.SessionState
		wantUserID      string
		wantProvisional bool
		wantErr         error
		wantCached      string // user id of the cached snapshot, "" for none
	}{
		{
			name:      "signs out with no remote session and no snapshot",
			wantState: core.StateSignedOut,
		},
		{
			name: "signs in from the remote session and caches it",
			setup: func(a *FakeAuthority, c *FakeCache) {
				a.SetCurrent(alice)
			},
			wantState:  core.StateSignedIn,
			wantUserID: alice.UserID,
			wantCached: alice.UserID,
		},
		{
			name: "signs in provisionally from the snapshot alone",
			setup: func(a *FakeAuthority, c *FakeCache) {
				c.Put(core.SessionCacheKey, mustSnapshot(t, alice))
			},
			wantState:       core.StateSignedIn,
			wantUserID:      alice.UserID,
			wantProvisional: true,
			wantCached:      alice.UserID,
		},
		{
			name: "remote session supersedes a snapshot of another user",
			setup: func(a *FakeAuthority, c *FakeCache) {
				a.SetCurrent(bob)
				c.Put(core.SessionCacheKey, mustSnapshot(t, alice))
			},
			wantState:  core.StateSignedIn,
			wantUserID: bob.UserID,
			wantCached: bob.UserID,
		},
		{
			name: "discards a corrupt snapshot",
			setup: func(a *FakeAuthority, c *FakeCache) {
				c.Put(core.SessionCacheKey, "{not json")
			},
			wantState: core.StateSignedOut,
		},
		{
			name: "falls back to the snapshot when the authority is unreachable",
			setup: func(a *FakeAuthority, c *FakeCache) {
				a.SetGetSessionError(remoteDown)
				c.Put(core.SessionCacheKey, mustSnapshot(t, alice))
			},
			wantState:       core.StateSignedIn,
			wantUserID:      alice.UserID,
			wantProvisional: true,
			wantErr:         core.ErrRemoteRead,
			wantCached:      alice.UserID,
		},
		{
			name: "signs out when the authority is unreachable and nothing is cached",
			setup: func(a *FakeAuthority, c *FakeCache) {
				a.SetGetSessionError(remoteDown)
			},
			wantState: core.StateSignedOut,
			wantErr:   core.ErrRemoteRead,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			manager, authority, _, cache := newTestSessionManager(t)
			if test.setup != nil {
				test.setup(authority, cache)
			}

			// Act
			err := manager.Start(context.Background())

			// Assert
			if !errors.Is(err, test.wantErr) {
				t.Fatalf("Start() error = %v, want %v", err, test.wantErr)
			}
			status := manager.Status()
			if status.State != test.wantState {
				t.Errorf("State = %v, want %v", status.State, test.wantState)
			}
			if status.Provisional != test.wantProvisional {
				t.Errorf("Provisional = %v, want %v", status.Provisional, test.wantProvisional)
			}
			userID, _ := manager.CurrentUserID()
			if userID != test.wantUserID {
				t.Errorf("CurrentUserID() = %q, want %q", userID, test.wantUserID)
			}
			if test.wantCached == "" {
				if cache.Has(core.SessionCacheKey) {
					t.Errorf("snapshot should be absent, got %q", cache.Raw(core.SessionCacheKey))
				}
			} else if got := cachedUserID(t, cache); got != test.wantCached {
				t.Errorf("cached snapshot user = %q, want %q", got, test.wantCached)
			}
		})
	}
}

// Requirement: a SignedOut event wins over a cached snapshot whichever resolves first.
func TestSessionManager_SignedOutEventBeatsSnapshot(t *testing.T) {
	alice := &core.Session{UserID: "user-alice", Email: "alice@example.com", AccessToken: "a"}

	tests := []struct {
		name       string
		eventFirst bool
	}{
		{name: "event arrives before the cache read resolves", eventFirst: true},
		{name: "cache read resolves before the event arrives", eventFirst: false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			manager, authority, _, cache := newTestSessionManager(t)
			cache.Put(core.SessionCacheKey, mustSnapshot(t, alice))
			signedOut := core.AuthEvent{Kind: core.AuthEventSignedOut}

			// Act
			if test.eventFirst {
				release := cache.GateGet()
				done := make(chan error, 1)
				go func() { done <- manager.Start(context.Background()) }()

				<-cache.GetCalled()
				authority.Emit(signedOut)
				waitFor(t, "signed out", func() bool { return manager.Status().State == core.StateSignedOut })
				release()
				if err := <-done; err != nil {
					t.Fatalf("Start() error = %v", err)
				}
			} else {
				if err := manager.Start(context.Background()); err != nil {
					t.Fatalf("Start() error = %v", err)
				}
				if !manager.Status().Provisional {
					t.Fatal("expected a provisional session from the snapshot")
				}
				authority.Emit(signedOut)
			}

			// Assert
			waitFor(t, "snapshot deleted", func() bool {
				return manager.Status().State == core.StateSignedOut && !cache.Has(core.SessionCacheKey)
			})
			if s := manager.Session(); s != nil {
				t.Errorf("Session() = %+v, want nil", s)
			}
		})
	}
}

// Requirement: the subscription exists before the initial query, so an event
// delivered while the query is in flight is not lost and is not overwritten.
func TestSessionManager_Start_SubscribesBeforeQuery(t *testing.T) {
	// Arrange
	manager, authority, _, _ := newTestSessionManager(t)
	authority.SetCurrent(&core.Session{UserID: "user-stale", AccessToken: "old"})
	release := authority.GateGetSession()
	fresh := &core.Session{UserID: "user-fresh", AccessToken: "new"}

	// Act
	done := make(chan error, 1)
	go func() { done <- manager.Start(context.Background()) }()
	waitFor(t, "subscription", func() bool { return authority.Subscribers() == 1 })
	authority.Emit(core.AuthEvent{Kind: core.AuthEventSignedIn, Session: fresh})
	waitFor(t, "event applied", func() bool {
		id, _ := manager.CurrentUserID()
		return id == fresh.UserID
	})
	release()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Assert
	if id, _ := manager.CurrentUserID(); id != fresh.UserID {
		t.Errorf("CurrentUserID() = %q, want %q", id, fresh.UserID)
	}
	if manager.Status().Provisional {
		t.Error("session from an event should not be provisional")
	}
}

// Requirement: a change event for the same user updates the session in place.
func TestSessionManager_TokenRefreshUpdatesInPlace(t *testing.T) {
	// Arrange
	manager, authority, _, cache := newTestSessionManager(t)
	authority.AddUser("alice@example.com", "secret", "alice")
	manager.Start(context.Background())
	if _, err := manager.Login(context.Background(), "alice@example.com", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	manager.mu.Lock()
	before := manager.session
	refreshed := before.Clone()
	manager.mu.Unlock()
	refreshed.AccessToken = "rotated"

	// Act
	authority.Emit(core.AuthEvent{Kind: core.AuthEventTokenRefreshed, Session: refreshed})

	// Assert
	waitFor(t, "token rotated", func() bool { return manager.Session().AccessToken == "rotated" })
	manager.mu.Lock()
	after := manager.session
	manager.mu.Unlock()
	if before != after {
		t.Error("session should be updated in place, not replaced")
	}
	waitFor(t, "snapshot rotated", func() bool {
		snap, err := core.DecodeSnapshot(cache.Raw(core.SessionCacheKey))
		return err == nil && snap.AccessToken == "rotated"
	})
}

// Requirement: Login sets the session and persists the snapshot; failures are classified.
func TestSessionManager_Login(t *testing.T) {
	tests := []struct {
		name     string
		email    string
		password string
		setup    func(*FakeAuthority)
		wantKind error
		wantErr  error
	}{
		{name: "signs in with valid credentials", email: "alice@example.com", password: "secret"},
		{name: "trims the email", email: "  alice@example.com ", password: "secret"},
		{name: "wrong password", email: "alice@example.com", password: "nope", wantKind: core.ErrAuth, wantErr: core.ErrInvalidCredentials},
		{name: "unknown email", email: "carol@example.com", password: "secret", wantKind: core.ErrAuth, wantErr: core.ErrInvalidCredentials},
		{name: "empty email", email: "", password: "secret", wantKind: core.ErrValidation, wantErr: core.ErrEmailRequired},
		{name: "empty password", email: "alice@example.com", password: "", wantKind: core.ErrValidation, wantErr: core.ErrPasswordRequired},
		{
			name:     "authority failure",
			email:    "alice@example.com",
			password: "secret",
			setup:    func(a *FakeAuthority) { a.SetSignInError(errors.New("503 service unavailable")) },
			wantKind: core.ErrAuth,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			manager, authority, _, cache := newTestSessionManager(t)
			authority.AddUser("alice@example.com", "secret", "alice")
			if test.setup != nil {
				test.setup(authority)
			}
			manager.Start(context.Background())

			// Act
			session, err := manager.Login(context.Background(), test.email, test.password)

			// Assert
			if test.wantKind != nil {
				if !errors.Is(err, test.wantKind) {
					t.Fatalf("Login() error = %v, want kind %v", err, test.wantKind)
				}
				if test.wantErr != nil && !errors.Is(err, test.wantErr) {
					t.Errorf("Login() error = %v, want %v", err, test.wantErr)
				}
				if manager.Session() != nil {
					t.Error("failed login should leave the session empty")
				}
				// validation fails before the authority is involved
				if test.wantKind == core.ErrAuth && !errors.Is(manager.Status().LastError, test.wantKind) {
					t.Errorf("LastError = %v, want %v", manager.Status().LastError, test.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			if session == nil || session.Email != "alice@example.com" {
				t.Fatalf("Login() session = %+v", session)
			}
			if manager.Status().State != core.StateSignedIn {
				t.Errorf("State = %v, want signed_in", manager.Status().State)
			}
			if got := cachedUserID(t, cache); got != session.UserID {
				t.Errorf("cached user = %q, want %q", got, session.UserID)
			}
		})
	}
}

// Requirement: Mutating is reported while a sign-in is in flight.
func TestSessionManager_Login_ReportsMutating(t *testing.T) {
	// Arrange
	manager, authority, _, _ := newTestSessionManager(t)
	authority.AddUser("alice@example.com", "secret", "alice")
	manager.Start(context.Background())
	release := authority.GateSignIn()

	// Act
	done := make(chan error, 1)
	go func() {
		_, err := manager.Login(context.Background(), "alice@example.com", "secret")
		done <- err
	}()

	// Assert
	waitFor(t, "mutating", func() bool { return manager.Status().State == core.StateMutating })
	if status := manager.Status(); status.Underlying != core.StateSignedOut || status.SignedIn() {
		t.Errorf("Status() = %+v, want mutating over signed_out", status)
	}
	release()
	if err := <-done; err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if state := manager.Status().State; state != core.StateSignedIn {
		t.Errorf("State = %v, want signed_in", state)
	}
}

// Requirement: Logout always ends signed out with no snapshot, even when the remote call fails.
func TestSessionManager_Logout(t *testing.T) {
	tests := []struct {
		name       string
		signOutErr error
	}{
		{name: "remote sign out succeeds"},
		{name: "remote sign out fails", signOutErr: errors.New("network unreachable")},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			manager, authority, _, cache := newTestSessionManager(t)
			authority.AddUser("alice@example.com", "secret", "alice")
			manager.Start(context.Background())
			if _, err := manager.Login(context.Background(), "alice@example.com", "secret"); err != nil {
				t.Fatalf("Login() error = %v", err)
			}
			authority.SetSignOutError(test.signOutErr)

			// Act
			err := manager.Logout(context.Background())

			// Assert
			if err != nil {
				t.Fatalf("Logout() error = %v", err)
			}
			if authority.SignOutCalls != 1 {
				t.Errorf("SignOut calls = %d, want 1", authority.SignOutCalls)
			}
			if manager.Session() != nil {
				t.Error("Session() should be nil after logout")
			}
			if manager.Status().State != core.StateSignedOut {
				t.Errorf("State = %v, want signed_out", manager.Status().State)
			}
			if cache.Has(core.SessionCacheKey) {
				t.Error("snapshot should be deleted after logout")
			}
		})
	}
}

// Requirement: an event queued before Logout cannot sign the revoked session back in.
func TestSessionManager_Logout_IgnoresStaleEvents(t *testing.T) {
	// Arrange
	manager, authority, _, _ := newTestSessionManager(t)
	authority.AddUser("alice@example.com", "secret", "alice")
	manager.Start(context.Background())
	stale, err := manager.Login(context.Background(), "alice@example.com", "secret")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := manager.Logout(context.Background()); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	manager.mu.Lock()
	before := manager.generation
	manager.mu.Unlock()

	// Act
	authority.Emit(core.AuthEvent{Kind: core.AuthEventSignedIn, Session: stale})
	authority.Emit(core.AuthEvent{Kind: core.AuthEventSignedIn, Session: &core.Session{UserID: "user-bob", AccessToken: "bob-token"}})

	// Assert
	waitFor(t, "fresh event applied", func() bool {
		id, _ := manager.CurrentUserID()
		return id == "user-bob"
	})
	manager.mu.Lock()
	after := manager.generation
	manager.mu.Unlock()
	if after != before+1 {
		t.Errorf("generation advanced by %d, want 1: the stale event should be ignored", after-before)
	}
}

func TestSessionManager_Logout_CacheFailure(t *testing.T) {
	// Arrange
	manager, authority, _, cache := newTestSessionManager(t)
	authority.AddUser("alice@example.com", "secret", "alice")
	manager.Start(context.Background())
	manager.Login(context.Background(), "alice@example.com", "secret")
	cache.SetDeleteError(errors.New("disk full"))

	// Act
	err := manager.Logout(context.Background())

	// Assert
	if !errors.Is(err, core.ErrRemoteWrite) {
		t.Errorf("Logout() error = %v, want ErrRemoteWrite", err)
	}
	if manager.Session() != nil {
		t.Error("Session() should be nil even when the snapshot could not be deleted")
	}
}

// Requirement: SignUp authenticates, creates the profile row best-effort, and classifies rejections.
func TestSessionManager_SignUp(t *testing.T) {
	tests := []struct {
		name        string
		input       core.SignUpInput
		setup       func(*FakeAuthority, *FakeProfileStore)
		wantKind    error
		wantErr     error
		wantSession bool
		wantWarning bool
		wantProfile bool
	}{
		{
			name:        "creates user, session and profile row",
			input:       core.SignUpInput{Email: "alice@example.com", Password: "secret", Username: "alice"},
			wantSession: true,
			wantProfile: true,
		},
		{
			name:  "profile row failure is a warning",
			input: core.SignUpInput{Email: "alice@example.com", Password: "secret", Username: "alice"},
			setup: func(a *FakeAuthority, p *FakeProfileStore) {
				p.SetCreateError(errors.New("duplicate key value violates unique constraint"))
			},
			wantSession: true,
			wantWarning: true,
		},
		{
			name:  "confirmation pending leaves the session alone",
			input: core.SignUpInput{Email: "alice@example.com", Password: "secret", Username: "alice"},
			setup: func(a *FakeAuthority, p *FakeProfileStore) {
				a.RequireConfirmation()
			},
			wantProfile: true,
		},
		{
			name:  "duplicate email is a validation error",
			input: core.SignUpInput{Email: "alice@example.com", Password: "secret", Username: "alice"},
			setup: func(a *FakeAuthority, p *FakeProfileStore) {
				a.AddUser("alice@example.com", "other", "alice")
			},
			wantKind: core.ErrValidation,
			wantErr:  core.ErrUserExists,
		},
		{
			name:  "taken username is a validation error",
			input: core.SignUpInput{Email: "alice@example.com", Password: "secret", Username: "alice"},
			setup: func(a *FakeAuthority, p *FakeProfileStore) {
				a.SetSignUpError(core.ErrUsernameTaken)
			},
			wantKind: core.ErrValidation,
			wantErr:  core.ErrUsernameTaken,
		},
		{
			name:  "other rejection is an auth error",
			input: core.SignUpInput{Email: "alice@example.com", Password: "secret", Username: "alice"},
			setup: func(a *FakeAuthority, p *FakeProfileStore) {
				a.SetSignUpError(errors.New("signups disabled"))
			},
			wantKind: core.ErrAuth,
		},
		{
			name:     "missing username",
			input:    core.SignUpInput{Email: "alice@example.com", Password: "secret", Username: "  "},
			wantKind: core.ErrValidation,
			wantErr:  core.ErrUsernameRequired,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			manager, authority, profiles, _ := newTestSessionManager(t)
			if test.setup != nil {
				test.setup(authority, profiles)
			}
			manager.Start(context.Background())

			// Act
			result, err := manager.SignUp(context.Background(), test.input)

			// Assert
			if test.wantKind != nil {
				if !errors.Is(err, test.wantKind) {
					t.Fatalf("SignUp() error = %v, want kind %v", err, test.wantKind)
				}
				if test.wantErr != nil && !errors.Is(err, test.wantErr) {
					t.Errorf("SignUp() error = %v, want %v", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SignUp() error = %v", err)
			}
			if result.User == nil {
				t.Fatal("SignUp() should return the user")
			}
			if (result.Session != nil) != test.wantSession {
				t.Errorf("Session = %v, want present %v", result.Session, test.wantSession)
			}
			if manager.Status().SignedIn() != test.wantSession {
				t.Errorf("SignedIn() = %v, want %v", manager.Status().SignedIn(), test.wantSession)
			}
			if test.wantWarning != (result.ProfileWarning != nil) {
				t.Errorf("ProfileWarning = %v, want present %v", result.ProfileWarning, test.wantWarning)
			}
			if test.wantWarning && !errors.Is(result.ProfileWarning, core.ErrRemoteWrite) {
				t.Errorf("ProfileWarning = %v, want ErrRemoteWrite", result.ProfileWarning)
			}
			profile, err := profiles.GetProfile(context.Background(), result.User.ID)
			if test.wantProfile {
				if err != nil {
					t.Fatalf("profile row missing: %v", err)
				}
				if profile.Username != "alice" || profile.Email != "alice@example.com" {
					t.Errorf("profile row = %+v", profile)
				}
			}
		})
	}
}

// Requirement: UpdateProfile writes, re-reads the row, and updates the session in place.
func TestSessionManager_UpdateProfile(t *testing.T) {
	newName := "alice2"
	blank := ""

	tests := []struct {
		name     string
		update   core.ProfileUpdate
		signedIn bool
		setup    func(*FakeProfileStore)
		wantKind error
	}{
		{name: "re-reads the merged row", update: core.ProfileUpdate{Username: &newName}, signedIn: true},
		{name: "requires a session", update: core.ProfileUpdate{Username: &newName}, wantKind: core.ErrNotAuthenticated},
		{name: "rejects an empty update", update: core.ProfileUpdate{}, signedIn: true, wantKind: core.ErrValidation},
		{name: "rejects a blank username", update: core.ProfileUpdate{Username: &blank}, signedIn: true, wantKind: core.ErrValidation},
		{
			name:     "write failure",
			update:   core.ProfileUpdate{Username: &newName},
			signedIn: true,
			setup:    func(p *FakeProfileStore) { p.SetUpdateError(errors.New("timeout")) },
			wantKind: core.ErrRemoteWrite,
		},
		{
			name:     "read-back failure",
			update:   core.ProfileUpdate{Username: &newName},
			signedIn: true,
			setup:    func(p *FakeProfileStore) { p.SetGetError(errors.New("timeout")) },
			wantKind: core.ErrRemoteRead,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			manager, authority, profiles, cache := newTestSessionManager(t)
			session := authority.AddUser("alice@example.com", "secret", "alice")
			profiles.Put(&core.Profile{UserID: session.UserID, Email: session.Email, Username: "alice", Location: "Lima"})
			manager.Start(context.Background())
			if test.signedIn {
				if _, err := manager.Login(context.Background(), "alice@example.com", "secret"); err != nil {
					t.Fatalf("Login() error = %v", err)
				}
			}
			if test.setup != nil {
				test.setup(profiles)
			}
			manager.mu.Lock()
			before := manager.session
			manager.mu.Unlock()

			// Act
			profile, err := manager.UpdateProfile(context.Background(), test.update)

			// Assert
			if test.wantKind != nil {
				if !errors.Is(err, test.wantKind) {
					t.Fatalf("UpdateProfile() error = %v, want %v", err, test.wantKind)
				}
				if s := manager.Session(); s != nil && s.Profile.Username != "alice" {
					t.Errorf("failed update changed the session profile to %+v", s.Profile)
				}
				return
			}
			if err != nil {
				t.Fatalf("UpdateProfile() error = %v", err)
			}
			if profile.Username != newName || profile.Location != "Lima" {
				t.Errorf("UpdateProfile() = %+v, want merged row", profile)
			}
			current := manager.Session()
			if current.Profile.Username != newName || current.Profile.Location != "Lima" {
				t.Errorf("session profile = %+v, want merged row", current.Profile)
			}
			manager.mu.Lock()
			after := manager.session
			manager.mu.Unlock()
			if before != after {
				t.Error("session should be updated in place")
			}
			snap, _ := core.DecodeSnapshot(cache.Raw(core.SessionCacheKey))
			if snap == nil || snap.Profile.Username != newName {
				t.Errorf("cached snapshot = %+v, want updated username", snap)
			}
		})
	}
}

func TestSessionManager_Profile(t *testing.T) {
	// Arrange
	manager, authority, profiles, _ := newTestSessionManager(t)
	session := authority.AddUser("alice@example.com", "secret", "alice")
	profiles.Put(&core.Profile{UserID: session.UserID, Username: "alice", Description: "reads a lot"})
	manager.Start(context.Background())

	// Act + Assert
	if _, err := manager.Profile(context.Background()); !errors.Is(err, core.ErrNotAuthenticated) {
		t.Errorf("Profile() signed out error = %v, want ErrNotAuthenticated", err)
	}

	manager.Login(context.Background(), "alice@example.com", "secret")
	profile, err := manager.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.Description != "reads a lot" {
		t.Errorf("Profile() = %+v", profile)
	}
}

func TestSessionManager_ChangePassword(t *testing.T) {
	tests := []struct {
		name      string
		password  string
		signedIn  bool
		updateErr error
		wantKind  error
	}{
		{name: "changes the password", password: "n3w-secret", signedIn: true},
		{name: "requires a session", password: "n3w-secret", wantKind: core.ErrNotAuthenticated},
		{name: "requires a password", password: "", signedIn: true, wantKind: core.ErrValidation},
		{name: "authority rejects", password: "n3w-secret", signedIn: true, updateErr: core.ErrPasswordTooShort, wantKind: core.ErrValidation},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			// Arrange
			manager, authority, _, _ := newTestSessionManager(t)
			authority.AddUser("alice@example.com", "secret", "alice")
			manager.Start(context.Background())
			if test.signedIn {
				manager.Login(context.Background(), "alice@example.com", "secret")
			}
			authority.SetUpdateUserError(test.updateErr)

			// Act
			err := manager.ChangePassword(context.Background(), test.password)

			// Assert
			if test.wantKind != nil {
				if !errors.Is(err, test.wantKind) {
					t.Errorf("ChangePassword() error = %v, want %v", err, test.wantKind)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChangePassword() error = %v", err)
			}
			if got := authority.Password("alice@example.com"); got != test.password {
				t.Errorf("password = %q, want %q", got, test.password)
			}
		})
	}
}

func TestSessionManager_RequestPasswordReset(t *testing.T) {
	// Arrange
	manager, authority, _, _ := newTestSessionManager(t)

	// Act + Assert
	if err := manager.RequestPasswordReset(context.Background(), " "); !errors.Is(err, core.ErrValidation) {
		t.Errorf("RequestPasswordReset() blank error = %v, want ErrValidation", err)
	}
	if err := manager.RequestPasswordReset(context.Background(), "alice@example.com"); err != nil {
		t.Fatalf("RequestPasswordReset() error = %v", err)
	}
	if len(authority.ResetEmails) != 1 || authority.ResetEmails[0] != "alice@example.com" {
		t.Errorf("reset emails = %v", authority.ResetEmails)
	}
}

// Requirement: subscribers observe the latest state.
func TestSessionManager_Subscribe(t *testing.T) {
	// Arrange
	manager, authority, _, _ := newTestSessionManager(t)
	authority.AddUser("alice@example.com", "secret", "alice")
	manager.Start(context.Background())
	events, stop := manager.Subscribe()
	defer stop()

	// Act
	if _, err := manager.Login(context.Background(), "alice@example.com", "secret"); err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	// Assert
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-events:
			if ev.Status.State == core.StateSignedIn && ev.Session != nil && ev.Session.Email == "alice@example.com" {
				return
			}
		case <-timeout:
			t.Fatal("no signed-in event observed")
		}
	}
}

// Requirement: once the manager settles, the last event a subscriber holds
// describes the current status, even when events and operations race.
func TestSessionManager_Subscribe_LatestEventMatchesStatus(t *testing.T) {
	// Arrange
	manager, authority, _, _ := newTestSessionManager(t)
	authority.AddUser("alice@example.com", "secret", "alice")
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	events, stop := manager.Subscribe()
	defer stop()
	bob := &core.Session{UserID: "user-bob", Email: "bob@example.com", AccessToken: "b"}

	// Act
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			manager.Login(context.Background(), "alice@example.com", "secret")
		}()
		go func() {
			defer wg.Done()
			if i%2 == 0 {
				authority.Emit(core.AuthEvent{Kind: core.AuthEventSignedOut})
			} else {
				authority.Emit(core.AuthEvent{Kind: core.AuthEventSignedIn, Session: bob})
			}
		}()
	}
	wg.Wait()

	// Assert
	var latest core.SessionEvent
	waitFor(t, "latest event to match status", func() bool {
		for drained := false; !drained; {
			select {
			case ev := <-events:
				latest = ev
			default:
				drained = true
			}
		}
		status := manager.Status()
		return latest.Status.Generation == status.Generation && latest.Status.State == status.State
	})
	if got, want := latest.Session != nil, manager.Session() != nil; got != want {
		t.Errorf("latest event signed in = %v, manager signed in = %v", got, want)
	}
}

func TestSessionManager_Close(t *testing.T) {
	// Arrange
	manager, authority, _, _ := newTestSessionManager(t)
	manager.Start(context.Background())
	events, _ := manager.Subscribe()

	// Act
	manager.Close()
	manager.Close()

	// Assert
	if authority.Subscribers() != 0 {
		t.Errorf("authority subscribers = %d, want 0", authority.Subscribers())
	}
	for range events {
	}
	authority.Emit(core.AuthEvent{Kind: core.AuthEventSignedIn, Session: &core.Session{UserID: "late"}})
	if manager.Session() != nil {
		t.Error("events after Close should be ignored")
	}
}
