// Package fiber exposes the session manager and the favorite reconciler to a
// UI shell over a loopback HTTP bridge.
package fiber

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/folio/core"
	"github.com/lborres/folio/services"
)

const DefaultBasePath = "/api"

// Sessions is the part of the session manager the bridge drives.
type Sessions interface {
	SignUp(ctx context.Context, input core.SignUpInput) (*core.SignUpResult, error)
	Login(ctx context.Context, email, password string) (*core.Session, error)
	Logout(ctx context.Context) error
	UpdateProfile(ctx context.Context, update core.ProfileUpdate) (*core.Profile, error)
	Profile(ctx context.Context) (*core.Profile, error)
	Session() *core.Session
	Status() core.SessionStatus
}

// Favorites is the part of the favorite reconciler the bridge drives.
type Favorites interface {
	IsFavorite(ctx context.Context, bookID string) (bool, error)
	ToggleFavorite(ctx context.Context, book core.Book) (bool, error)
	ListFavorites(ctx context.Context) ([]core.FavoriteEntry, error)
	Status(bookID string) core.FavoriteStatus
}

type Options struct {
	BasePath  string
	Sessions  Sessions
	Favorites Favorites
	Books     core.BookSearcher // optional; search answers 501 without it
	Registry  *services.EndpointRegistry
	Logger    *slog.Logger
}

type Adapter struct {
	app       *fiber.App
	basePath  string
	sessions  Sessions
	favorites Favorites
	books     core.BookSearcher
	registry  *services.EndpointRegistry
	logger    *slog.Logger
}

func New(app *fiber.App, opts Options) *Adapter {
	if opts.BasePath == "" {
		opts.BasePath = DefaultBasePath
	}
	if opts.Registry == nil {
		opts.Registry = services.NewEndpointRegistry()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Adapter{
		app:       app,
		basePath:  opts.BasePath,
		sessions:  opts.Sessions,
		favorites: opts.Favorites,
		books:     opts.Books,
		registry:  opts.Registry,
		logger:    opts.Logger,
	}
}

func (a *Adapter) handlers() map[string]fiber.Handler {
	return map[string]fiber.Handler{
		services.OpSignUp:         a.signup,
		services.OpSignIn:         a.signin,
		services.OpSignOut:        a.signout,
		services.OpGetSession:     a.session,
		services.OpGetProfile:     a.profile,
		services.OpUpdateProfile:  a.updateProfile,
		services.OpSearchBooks:    a.searchBooks,
		services.OpListFavorites:  a.listFavorites,
		services.OpGetFavorite:    a.favorite,
		services.OpToggleFavorite: a.toggleFavorite,
	}
}

// RegisterRoutes mounts every registered endpoint under the base path. An
// endpoint without a handler is an error.
func (a *Adapter) RegisterRoutes() error {
	if a.sessions == nil {
		return core.ErrAuthorityRequired
	}
	if a.favorites == nil {
		return core.ErrFavoritesRequired
	}

	api := a.app.Group(a.basePath)
	handlers := a.handlers()

	for _, ep := range a.registry.Endpoints() {
		handler, ok := handlers[ep.Metadata.OperationID]
		if !ok {
			return fmt.Errorf("no handler for %s %s (%s)", ep.Method, ep.Path, ep.Metadata.OperationID)
		}
		if ep.Metadata.RequiresSession {
			handler = a.requireSession(handler)
		}
		api.Add([]string{ep.Method}, ep.Path, handler)
		a.logger.Debug("bridge route registered", "method", ep.Method, "path", a.basePath+ep.Path)
	}
	return nil
}
