package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lborres/folio"
	"github.com/lborres/folio/adapters/booksapi"
	"github.com/lborres/folio/adapters/memauth"
	"github.com/lborres/folio/adapters/memstore"
	pgxstore "github.com/lborres/folio/adapters/pgx"
	rediscache "github.com/lborres/folio/adapters/redis"
	"github.com/lborres/folio/core"
	"github.com/lborres/folio/internal/config"
	"github.com/lborres/folio/pkg/cache"
)

// store is what folio needs from the remote relational store.
type store interface {
	core.FavoriteStore
	core.ProfileStore
}

// app is one wired folio instance for the duration of a command.
type app struct {
	cfg       config.Config
	folio     *folio.Folio
	authority *memauth.Authority
	books     *booksapi.Client
	logger    *slog.Logger

	closers []func()
}

// openApp builds the cache, authority, store and catalog named by cfg and
// resolves the initial session. A failed remote read during start is logged;
// the app still opens on the cached snapshot.
func openApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &app{cfg: cfg, logger: logger}

	durable, err := a.openCache()
	if err != nil {
		a.Close()
		return nil, err
	}

	st, err := a.openStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.authority = memauth.New(durable, memauth.Options{
		TokenTTL:            cfg.Auth.TokenTTL,
		MinPassword:         cfg.Auth.MinPassword,
		RequireConfirmation: cfg.Auth.RequireConfirmation,
		OnRecovery: func(email, token string) {
			logger.Info("password recovery token issued", "email", email, "token", token)
		},
		Logger: logger.With("component", "authority"),
	})

	a.books, err = booksapi.NewClient(booksapi.Options{
		BaseURL: cfg.Books.BaseURL,
		APIKey:  cfg.Books.APIKey,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("books client: %w", err)
	}

	a.folio, err = folio.New(folio.Config{
		Authority: a.authority,
		Favorites: st,
		Profiles:  st,
		Cache:     durable,
		Books:     a.books,
		Logger:    logger,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, a.folio.Close)

	if err := a.folio.Start(ctx); err != nil {
		logger.Warn("session start", "error", err)
	}
	return a, nil
}

func (a *app) openCache() (core.DurableCache, error) {
	switch a.cfg.Cache.Driver {
	case config.CacheRedis:
		client, err := rediscache.Connect(a.cfg.Cache.RedisAddr, a.cfg.Cache.RedisPassword, a.cfg.Cache.RedisDB)
		if err != nil {
			return nil, err
		}
		c := rediscache.New(client, a.cfg.Cache.Prefix)
		a.closers = append(a.closers, func() { _ = c.Close() })
		return c, nil
	case config.CacheMemory:
		return cache.NewInMemoryCache(core.CacheConfig{}), nil
	default:
		c, err := cache.NewFileCache(a.cfg.Cache.Path)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (a *app) openStore(ctx context.Context) (store, error) {
	if a.cfg.Store.Driver != config.StorePostgres {
		return memstore.New(), nil
	}

	pool, err := pgxstore.Connect(ctx, a.cfg.Store.DatabaseURL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, pool.Close)

	if a.cfg.Store.Migrate {
		if err := pgxstore.Migrate(ctx, pool); err != nil {
			return nil, err
		}
	}
	return pgxstore.New(pool), nil
}

// Close releases everything openApp acquired, newest first.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// maxResults is the configured page size unless n overrides it.
func (a *app) maxResults(n int) int {
	if n > 0 {
		return n
	}
	return a.cfg.Books.MaxResults
}
