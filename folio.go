package folio

import (
	"context"
	"log/slog"

	"github.com/lborres/folio/core"
	"github.com/lborres/folio/pkg/cache"
	"github.com/lborres/folio/services"
)

// interfaces
type (
	AuthAuthority = core.AuthAuthority
	FavoriteStore = core.FavoriteStore
	ProfileStore  = core.ProfileStore
	DurableCache  = core.DurableCache
	BookSearcher  = core.BookSearcher
)

// structs
type (
	Config        = core.Config
	SessionConfig = core.SessionConfig
	CacheConfig   = core.CacheConfig

	SessionManager     = services.SessionManager
	FavoriteReconciler = services.FavoriteReconciler
)

type (
	Session        = core.Session
	SessionStatus  = core.SessionStatus
	SessionEvent   = core.SessionEvent
	Profile        = core.Profile
	ProfileUpdate  = core.ProfileUpdate
	SignUpInput    = core.SignUpInput
	SignUpResult   = core.SignUpResult
	Book           = core.Book
	SearchQuery    = core.SearchQuery
	FavoriteEntry  = core.FavoriteEntry
	FavoriteStatus = core.FavoriteStatus
	FavoriteEvent  = core.FavoriteEvent
)

// Constructors & helpers (convenience re-exports)
var (
	NewInMemoryCache     = cache.NewInMemoryCache
	NewFileCache         = cache.NewFileCache
	DefaultSessionConfig = core.DefaultSessionConfig
)

// error kinds
var (
	ErrValidation       = core.ErrValidation
	ErrAuth             = core.ErrAuth
	ErrNotAuthenticated = core.ErrNotAuthenticated
	ErrRemoteWrite      = core.ErrRemoteWrite
	ErrRemoteRead       = core.ErrRemoteRead
	ErrCorruptData      = core.ErrCorruptData
)

var (
	ErrUserExists         = core.ErrUserExists
	ErrInvalidCredentials = core.ErrInvalidCredentials
	ErrUsernameTaken      = core.ErrUsernameTaken
	ErrCacheNotFound      = core.ErrCacheNotFound
	ErrProfileNotFound    = core.ErrProfileNotFound
)

var (
	ErrAuthorityRequired = core.ErrAuthorityRequired
	ErrFavoritesRequired = core.ErrFavoritesRequired
	ErrProfilesRequired  = core.ErrProfilesRequired
	ErrCacheRequired     = core.ErrCacheRequired
)

var (
	ErrNotImplemented = core.ErrNotImplemented
)

// Folio wires the session manager and the favorite reconciler to the
// configured ports.
type Folio struct {
	Sessions  *services.SessionManager
	Favorites *services.FavoriteReconciler

	books  core.BookSearcher
	logger *slog.Logger
}

func New(config Config) (*Folio, error) {
	if config.Authority == nil {
		return nil, ErrAuthorityRequired
	}
	if config.Favorites == nil {
		return nil, ErrFavoritesRequired
	}
	if config.Profiles == nil {
		return nil, ErrProfilesRequired
	}
	if config.Cache == nil {
		return nil, ErrCacheRequired
	}

	// Set Defaults

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// Defaults go on a copy; the caller's config is left as given.
	sessionConfig := DefaultSessionConfig()
	if config.SessionConfig != nil {
		sessionConfig = *config.SessionConfig
	}
	if sessionConfig.CacheKey == "" {
		sessionConfig.CacheKey = core.SessionCacheKey
	}

	sessions := services.NewSessionManager(
		sessionConfig,
		config.Authority,
		config.Profiles,
		config.Cache,
		logger.With("component", "session"),
	)
	favorites := services.NewFavoriteReconciler(
		config.Favorites,
		sessions,
		logger.With("component", "favorites"),
	)

	return &Folio{
		Sessions:  sessions,
		Favorites: favorites,
		books:     config.Books,
		logger:    logger,
	}, nil
}

// Start resolves the initial session. See SessionManager.Start.
func (f *Folio) Start(ctx context.Context) error {
	return f.Sessions.Start(ctx)
}

// Search queries the book catalog.
func (f *Folio) Search(ctx context.Context, query SearchQuery) ([]Book, error) {
	const op = "search books"

	if f.books == nil {
		return nil, core.NewOpError(op, ErrRemoteRead, ErrNotImplemented)
	}
	books, err := f.books.Search(ctx, query)
	if err != nil {
		return nil, core.NewOpError(op, ErrRemoteRead, err)
	}
	return books, nil
}

// Books returns the configured catalog, or nil.
func (f *Folio) Books() BookSearcher {
	return f.books
}

func (f *Folio) Close() {
	f.Favorites.Close()
	f.Sessions.Close()
}
