package services

import (
	"fmt"
	"sort"

	"github.com/lborres/folio/core"
)

// Operation IDs of the bridge routes.
const (
	OpSignUp         = "signUpWithEmailAndPassword"
	OpSignIn         = "signInWithEmailAndPassword"
	OpSignOut        = "signOut"
	OpGetSession     = "getSession"
	OpGetProfile     = "getProfile"
	OpUpdateProfile  = "updateProfile"
	OpSearchBooks    = "searchBooks"
	OpListFavorites  = "listFavorites"
	OpGetFavorite    = "getFavorite"
	OpToggleFavorite = "toggleFavorite"
)

// BaseEndpoints returns the routes through which a UI shell drives the
// session manager and the favorite reconciler.
//
// Each endpoint is a template: adapters supply the handler.
func BaseEndpoints() []core.Endpoint {
	return []core.Endpoint{
		{
			Path:   "/auth/sign-up",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignUp,
				Description: "Register a user with email, password and username",
			},
		},
		{
			Path:   "/auth/sign-in",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignIn,
				Description: "Sign in with email and password",
			},
		},
		{
			Path:   "/auth/sign-out",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID: OpSignOut,
				Description: "Sign out and clear the local session",
			},
		},
		{
			Path:   "/auth/session",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpGetSession,
				Description: "Get the session state and the current session",
			},
		},
		{
			Path:   "/profile",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID:     OpGetProfile,
				Description:     "Get the signed-in user's profile",
				RequiresSession: true,
			},
		},
		{
			Path:   "/profile",
			Method: "PATCH",
			Metadata: core.EndpointMetadata{
				OperationID:     OpUpdateProfile,
				Description:     "Update fields of the signed-in user's profile",
				RequiresSession: true,
			},
		},
		{
			Path:   "/books/search",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpSearchBooks,
				Description: "Search the book catalog",
			},
		},
		{
			Path:   "/favorites",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID:     OpListFavorites,
				Description:     "List the signed-in user's favorites",
				RequiresSession: true,
			},
		},
		{
			Path:   "/favorites/:id",
			Method: "GET",
			Metadata: core.EndpointMetadata{
				OperationID: OpGetFavorite,
				Description: "Report whether a book is a favorite",
			},
		},
		{
			Path:   "/favorites/:id/toggle",
			Method: "POST",
			Metadata: core.EndpointMetadata{
				OperationID:     OpToggleFavorite,
				Description:     "Flip the favorite status of a book",
				RequiresSession: true,
			},
		},
	}
}

// EndpointRegistry holds the bridge routes keyed by "METHOD:PATH" and
// rejects duplicates.
type EndpointRegistry struct {
	endpoints map[string]*core.Endpoint
}

// NewEndpointRegistry creates a registry with BaseEndpoints registered.
func NewEndpointRegistry() *EndpointRegistry {
	reg := &EndpointRegistry{
		endpoints: make(map[string]*core.Endpoint),
	}
	for _, ep := range BaseEndpoints() {
		ep := ep
		reg.endpoints[endpointKey(&ep)] = &ep
	}
	return reg
}

func endpointKey(ep *core.Endpoint) string {
	return fmt.Sprintf("%s:%s", ep.Method, ep.Path)
}

// RegisterPlugin registers additional endpoints. If any of them conflicts
// with a registered endpoint or with another in the same batch, none is
// registered.
func (r *EndpointRegistry) RegisterPlugin(endpoints []core.Endpoint) error {
	seen := make(map[string]bool)
	for i := range endpoints {
		ep := &endpoints[i]
		key := endpointKey(ep)

		if _, exists := r.endpoints[key]; exists {
			return fmt.Errorf("plugin endpoint conflict: %s %s already registered", ep.Method, ep.Path)
		}
		if seen[key] {
			return fmt.Errorf("plugin contains duplicate endpoint: %s %s", ep.Method, ep.Path)
		}
		seen[key] = true
	}

	for i := range endpoints {
		ep := endpoints[i]
		r.endpoints[endpointKey(&ep)] = &ep
	}
	return nil
}

// Endpoints returns every registered endpoint ordered by path, then method.
func (r *EndpointRegistry) Endpoints() []*core.Endpoint {
	result := make([]*core.Endpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		result = append(result, ep)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Path != result[j].Path {
			return result[i].Path < result[j].Path
		}
		return result[i].Method < result[j].Method
	})
	return result
}
