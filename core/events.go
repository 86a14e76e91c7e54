package core

import "time"

// AuthEventKind names a session transition reported by the authority.
type AuthEventKind string

const (
	AuthEventSignedIn         AuthEventKind = "SIGNED_IN"
	AuthEventSignedOut        AuthEventKind = "SIGNED_OUT"
	AuthEventTokenRefreshed   AuthEventKind = "TOKEN_REFRESHED"
	AuthEventUserUpdated      AuthEventKind = "USER_UPDATED"
	AuthEventPasswordRecovery AuthEventKind = "PASSWORD_RECOVERY"
)

// AuthEvent is one notification from the authority's change stream.
// A nil Session means signed out.
type AuthEvent struct {
	Kind    AuthEventKind
	Session *Session
}

// SessionState is the session manager's state.
type SessionState int

const (
	StateInitializing SessionState = iota
	StateSignedOut
	StateSignedIn
	StateMutating
)

func (s SessionState) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateSignedOut:
		return "signed_out"
	case StateSignedIn:
		return "signed_in"
	case StateMutating:
		return "mutating"
	default:
		return "unknown"
	}
}

// SessionStatus describes the session manager at one instant.
type SessionStatus struct {
	State SessionState `json:"state"`

	// Underlying is SignedIn or SignedOut while State is Mutating.
	Underlying SessionState `json:"underlying"`

	// Provisional is true while the session comes from the cached snapshot
	// and the authority has not confirmed it.
	Provisional bool `json:"provisional"`

	Generation uint64    `json:"generation"`
	LastError  error     `json:"-"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// SignedIn reports whether a session is current, mutating or not.
func (s SessionStatus) SignedIn() bool {
	if s.State == StateMutating {
		return s.Underlying == StateSignedIn
	}
	return s.State == StateSignedIn
}

// SessionSource names what produced a session change.
type SessionSource string

const (
	SourceCache     SessionSource = "cache"
	SourceInitial   SessionSource = "initial"
	SourceEvent     SessionSource = "event"
	SourceOperation SessionSource = "operation"
)

// SessionEvent is delivered to session observers.
type SessionEvent struct {
	Status  SessionStatus
	Session *Session
	Source  SessionSource
}

// FavoriteEvent is delivered to favorite observers.
type FavoriteEvent struct {
	UserID string
	Status FavoriteStatus
}
