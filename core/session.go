package core

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// SessionCacheKey is the durable cache key holding the session snapshot.
const SessionCacheKey = "session"

// Clone returns a deep copy of s. Clone of nil is nil.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	dup := *s
	if s.Profile.BirthDate != nil {
		d := *s.Profile.BirthDate
		dup.Profile.BirthDate = &d
	}
	return &dup
}

// Expired reports whether the access token has expired at now.
// A zero ExpiresAt never expires.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// SameUser reports whether s and other belong to the same user.
func (s *Session) SameUser(other *Session) bool {
	return s != nil && other != nil && s.UserID == other.UserID
}

// UpdateFrom copies the credentials and identity of next into s in place.
// The profile is taken from next only when next carries one.
func (s *Session) UpdateFrom(next *Session) {
	s.Email = next.Email
	s.AccessToken = next.AccessToken
	s.RefreshToken = next.RefreshToken
	s.ExpiresAt = next.ExpiresAt
	if next.Profile != (ProfileMetadata{}) {
		s.Profile = next.Clone().Profile
	}
}

// EncodeSnapshot serializes a session for the durable cache.
func EncodeSnapshot(s *Session) (string, error) {
	if s == nil {
		return "", fmt.Errorf("encode snapshot: %w", ErrSessionNotFound)
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}
	return string(b), nil
}

// DecodeSnapshot parses a cached snapshot. Anything that does not decode to
// a session with a user id is ErrCorruptData.
func DecodeSnapshot(raw string) (*Session, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("decode snapshot: empty value: %w", ErrCorruptData)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, fmt.Errorf("decode snapshot: %v: %w", err, ErrCorruptData)
	}
	if s.UserID == "" {
		return nil, fmt.Errorf("decode snapshot: missing user id: %w", ErrCorruptData)
	}
	return &s, nil
}
