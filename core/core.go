package core

import "log/slog"

type Config struct {
	Authority AuthAuthority
	Favorites FavoriteStore
	Profiles  ProfileStore
	Cache     DurableCache

	// Optional config
	Books         BookSearcher
	Logger        *slog.Logger
	SessionConfig *SessionConfig
}

type SessionConfig struct {
	// CacheKey is the durable cache key of the session snapshot.
	CacheKey string
}

func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		CacheKey: SessionCacheKey,
	}
}
