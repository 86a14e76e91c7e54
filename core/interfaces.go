package core

import (
	"context"
	"time"
)

// Ports define interfaces for external dependencies

// ============================================
// AUTH PORT (remote auth authority)
// ============================================

// AuthAuthority issues sessions and reports every session transition.
type AuthAuthority interface {
	// GetCurrentSession returns the live session, or nil when there is none.
	GetCurrentSession(ctx context.Context) (*Session, error)

	// Subscribe returns a channel of session transitions and a func that
	// stops delivery and closes the channel.
	Subscribe() (<-chan AuthEvent, func())

	SignUp(ctx context.Context, input SignUpInput) (*SignUpResponse, error)
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignOut(ctx context.Context, accessToken string) error
	UpdateUser(ctx context.Context, accessToken string, attrs UserAttributes) (*AuthUser, error)
	ResetPasswordForEmail(ctx context.Context, email string) error
}

// ============================================
// STORAGE PORTS (remote relational store)
// ============================================

// FavoriteStore holds favorites rows keyed by (user id, book id).
type FavoriteStore interface {
	IsFavorite(ctx context.Context, userID, bookID string) (bool, error)

	// AddFavorite inserts the record. An existing row for the same
	// (user, book) pair is left in place, never duplicated.
	AddFavorite(ctx context.Context, record *FavoriteRecord) error

	// RemoveFavorite deletes the row if present.
	RemoveFavorite(ctx context.Context, userID, bookID string) error

	ListFavorites(ctx context.Context, userID string) ([]*FavoriteRecord, error)
}

// ProfileStore holds profile rows keyed by user id.
type ProfileStore interface {
	CreateProfile(ctx context.Context, p *Profile) error
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpdateProfile(ctx context.Context, userID string, update ProfileUpdate) error
}

// ============================================
// CACHE PORT (durable device storage)
// ============================================

// DurableCache is an opaque key/value store that survives restarts.
// Get returns ErrCacheNotFound for a missing key; Delete of a missing key is not an error.
type DurableCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// CacheWithStats extends DurableCache with statistics tracking
type CacheWithStats interface {
	DurableCache
	Stats() CacheStats
}

// CacheConfig configures cache behavior
type CacheConfig struct {
	TTL     time.Duration // zero keeps entries until deleted
	MaxSize int
}

// CacheStats tracks cache performance metrics
type CacheStats struct {
	Hits      int64         `json:"hits"`
	Misses    int64         `json:"misses"`
	Sets      int64         `json:"sets"`
	Deletes   int64         `json:"deletes"`
	Evictions int64         `json:"evictions"`
	Size      int           `json:"size"`
	TTL       time.Duration `json:"ttl"`
}

// ============================================
// CATALOG PORT
// ============================================

// BookSearcher queries the external catalog.
type BookSearcher interface {
	Search(ctx context.Context, query SearchQuery) ([]Book, error)
}

// ============================================
// SESSION READ PORT (for components that follow the session)
// ============================================

// SessionReader is the read-only handle to the current session.
type SessionReader interface {
	CurrentUserID() (string, bool)
}
