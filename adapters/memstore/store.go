// Package memstore keeps favorites and profiles in process memory. It backs
// the CLI when no database is configured and serves as a reference for the
// store contracts.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lborres/folio/core"
)

type Store struct {
	mu        sync.RWMutex
	favorites map[string]map[string]*core.FavoriteRecord // user id -> book id -> record
	profiles  map[string]*core.Profile
}

var (
	_ core.FavoriteStore = (*Store)(nil)
	_ core.ProfileStore  = (*Store)(nil)
)

func New() *Store {
	return &Store{
		favorites: make(map[string]map[string]*core.FavoriteRecord),
		profiles:  make(map[string]*core.Profile),
	}
}

// ============================================
// FAVORITES
// ============================================

func (s *Store) IsFavorite(ctx context.Context, userID, bookID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.favorites[userID][bookID]
	return ok, nil
}

// AddFavorite stores a copy of r. An existing (user, book) row is kept.
func (s *Store) AddFavorite(ctx context.Context, r *core.FavoriteRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if r.UserID == "" || r.BookID == "" {
		return core.ErrBookIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	byBook, ok := s.favorites[r.UserID]
	if !ok {
		byBook = make(map[string]*core.FavoriteRecord)
		s.favorites[r.UserID] = byBook
	}
	if _, exists := byBook[r.BookID]; exists {
		return nil
	}
	dup := *r
	dup.BookData = append([]byte(nil), r.BookData...)
	if dup.CreatedAt.IsZero() {
		dup.CreatedAt = time.Now()
	}
	byBook[r.BookID] = &dup
	return nil
}

func (s *Store) RemoveFavorite(ctx context.Context, userID, bookID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.favorites[userID], bookID)
	return nil
}

// ListFavorites returns the user's favorites, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]*core.FavoriteRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.FavoriteRecord, 0, len(s.favorites[userID]))
	for _, r := range s.favorites[userID] {
		dup := *r
		out = append(out, &dup)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].BookID < out[j].BookID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// ============================================
// PROFILES
// ============================================

// CreateProfile inserts p. A second row for the same user is ErrUserExists;
// a username already used by another row is ErrUsernameTaken.
func (s *Store) CreateProfile(ctx context.Context, p *core.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.UserID]; exists {
		return core.ErrUserExists
	}
	if s.usernameTakenLocked(p.Username, p.UserID) {
		return core.ErrUsernameTaken
	}
	dup := *p
	now := time.Now()
	if dup.CreatedAt.IsZero() {
		dup.CreatedAt = now
	}
	dup.UpdatedAt = now
	s.profiles[p.UserID] = &dup
	return nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*core.Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, core.ErrProfileNotFound
	}
	dup := *p
	return &dup, nil
}

func (s *Store) UpdateProfile(ctx context.Context, userID string, update core.ProfileUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return core.ErrProfileNotFound
	}
	if update.Username != nil && s.usernameTakenLocked(*update.Username, userID) {
		return core.ErrUsernameTaken
	}
	update.Apply(p)
	p.UpdatedAt = time.Now()
	return nil
}

func (s *Store) usernameTakenLocked(username, exceptUserID string) bool {
	if username == "" {
		return false
	}
	for id, p := range s.profiles {
		if id != exceptUserID && strings.EqualFold(p.Username, username) {
			return true
		}
	}
	return false
}
