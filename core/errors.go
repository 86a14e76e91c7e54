package core

import (
	"errors"
	"fmt"
)

// Error kinds. Every error returned by the session manager and the favorite
// reconciler, other than a caller's own context error, matches exactly one
// of these with errors.Is.
var (
	ErrValidation       = errors.New("invalid input")         // fix locally, do not retry
	ErrAuth             = errors.New("authentication failed") // show to the user
	ErrNotAuthenticated = errors.New("not signed in")         // caller should have gated on session
	ErrRemoteWrite      = errors.New("remote write failed")   // retryable, optimistic state rolled back
	ErrRemoteRead       = errors.New("remote read failed")    // retryable
	ErrCorruptData      = errors.New("corrupt data")          // isolated to one record
)

// Authentication Related Errors
var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUsernameTaken      = errors.New("username already taken")
)

// Session errors
var (
	ErrInvalidToken    = errors.New("invalid session token")
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExpired  = errors.New("session expired")
	ErrCacheNotFound   = errors.New("key not found in cache")
)

// Store errors
var (
	ErrProfileNotFound = errors.New("profile not found")
)

// Validation errors (client input)
var (
	ErrEmailRequired    = errors.New("email is required")
	ErrPasswordRequired = errors.New("password is required")
	ErrUsernameRequired = errors.New("username is required")
	ErrBookIDRequired   = errors.New("book id is required")
	ErrEmptyUpdate      = errors.New("no profile fields to update")
	ErrPasswordTooShort = errors.New("password is too short")
	ErrInvalidEmail     = errors.New("invalid email format")
)

// Config errors
var (
	ErrAuthorityRequired = errors.New("auth authority is required")
	ErrFavoritesRequired = errors.New("favorite store is required")
	ErrProfilesRequired  = errors.New("profile store is required")
	ErrCacheRequired     = errors.New("durable cache is required")
)

var (
	ErrNotImplemented = errors.New("not implemented")
)

// OpError records a failed operation, its kind and its cause.
type OpError struct {
	Op   string
	Kind error
	Err  error
}

func (e *OpError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewOpError builds an OpError. A nil kind is treated as ErrValidation.
func NewOpError(op string, kind, err error) *OpError {
	if kind == nil {
		kind = ErrValidation
	}
	return &OpError{Op: op, Kind: kind, Err: err}
}

// KindOf returns the error kind err belongs to, or nil when it has none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrAuth,
		ErrNotAuthenticated,
		ErrRemoteWrite,
		ErrRemoteRead,
		ErrCorruptData,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
