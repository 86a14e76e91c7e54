package fiber

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/lborres/folio/core"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type signUpResponse struct {
	User           *core.AuthUser `json:"user"`
	Session        *core.Session  `json:"session,omitempty"`
	ProfileWarning string         `json:"profileWarning,omitempty"`
}

type sessionResponse struct {
	State       string        `json:"state"`
	SignedIn    bool          `json:"signedIn"`
	Provisional bool          `json:"provisional"`
	Generation  uint64        `json:"generation"`
	Session     *core.Session `json:"session,omitempty"`
}

func (a *Adapter) signup(c fiber.Ctx) error {
	var input core.SignUpInput
	if err := c.Bind().Body(&input); err != nil {
		return badBody(c)
	}

	result, err := a.sessions.SignUp(c.Context(), input)
	if err != nil {
		return a.handleError(c, err)
	}

	resp := signUpResponse{User: result.User, Session: result.Session}
	if result.ProfileWarning != nil {
		resp.ProfileWarning = result.ProfileWarning.Error()
	}
	return c.Status(http.StatusCreated).JSON(resp)
}

func (a *Adapter) signin(c fiber.Ctx) error {
	var input credentials
	if err := c.Bind().Body(&input); err != nil {
		return badBody(c)
	}

	session, err := a.sessions.Login(c.Context(), input.Email, input.Password)
	if err != nil {
		return a.handleError(c, err)
	}
	return c.Status(http.StatusOK).JSON(session)
}

func (a *Adapter) signout(c fiber.Ctx) error {
	if err := a.sessions.Logout(c.Context()); err != nil {
		return a.handleError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"message": "signed out",
	})
}

func (a *Adapter) session(c fiber.Ctx) error {
	status := a.sessions.Status()
	return c.Status(http.StatusOK).JSON(sessionResponse{
		State:       status.State.String(),
		SignedIn:    status.SignedIn(),
		Provisional: status.Provisional,
		Generation:  status.Generation,
		Session:     a.sessions.Session(),
	})
}

func (a *Adapter) profile(c fiber.Ctx) error {
	p, err := a.sessions.Profile(c.Context())
	if err != nil {
		return a.handleError(c, err)
	}
	return c.Status(http.StatusOK).JSON(p)
}

func (a *Adapter) updateProfile(c fiber.Ctx) error {
	var update core.ProfileUpdate
	if err := c.Bind().Body(&update); err != nil {
		return badBody(c)
	}

	p, err := a.sessions.UpdateProfile(c.Context(), update)
	if err != nil {
		return a.handleError(c, err)
	}
	return c.Status(http.StatusOK).JSON(p)
}

func (a *Adapter) searchBooks(c fiber.Ctx) error {
	if a.books == nil {
		return c.Status(http.StatusNotImplemented).JSON(core.ErrorResponse{
			Error: "book search is not configured",
		})
	}

	query := core.SearchQuery{
		Query:    strings.TrimSpace(c.Query("q")),
		Author:   strings.TrimSpace(c.Query("author")),
		Language: strings.TrimSpace(c.Query("lang")),
	}
	if query.Query == "" && query.Author == "" {
		return a.handleError(c, core.NewOpError("search books", core.ErrValidation, errors.New("q or author is required")))
	}
	if limit := c.Query("max"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			return a.handleError(c, core.NewOpError("search books", core.ErrValidation, errors.New("max must be a positive number")))
		}
		query.MaxResults = n
	}

	books, err := a.books.Search(c.Context(), query)
	if err != nil {
		return a.handleError(c, core.NewOpError("search books", core.ErrRemoteRead, err))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"books": books,
	})
}

func (a *Adapter) listFavorites(c fiber.Ctx) error {
	entries, err := a.favorites.ListFavorites(c.Context())
	if err != nil {
		return a.handleError(c, err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"favorites": entries,
	})
}

func (a *Adapter) favorite(c fiber.Ctx) error {
	bookID := c.Params("id")
	if _, err := a.favorites.IsFavorite(c.Context(), bookID); err != nil {
		return a.handleError(c, err)
	}
	return c.Status(http.StatusOK).JSON(a.favorites.Status(bookID))
}

// toggleFavorite takes the book to snapshot from the body; the path id wins
// over any id in it.
func (a *Adapter) toggleFavorite(c fiber.Ctx) error {
	var book core.Book
	if len(c.Body()) > 0 {
		if err := c.Bind().Body(&book); err != nil {
			return badBody(c)
		}
	}
	book.ID = c.Params("id")

	if _, err := a.favorites.ToggleFavorite(c.Context(), book); err != nil {
		return a.handleError(c, err)
	}
	return c.Status(http.StatusOK).JSON(a.favorites.Status(book.ID))
}

func badBody(c fiber.Ctx) error {
	return c.Status(http.StatusBadRequest).JSON(core.ErrorResponse{
		Error: "invalid request body",
		Kind:  kindName(core.ErrValidation),
	})
}

// handleError maps folio error kinds to HTTP responses
func (a *Adapter) handleError(c fiber.Ctx, err error) error {
	status := mapErrorToStatus(err)
	if status >= http.StatusInternalServerError {
		a.logger.Warn("bridge request failed", "method", c.Method(), "path", c.Path(), "status", status, "error", err)
	}
	return c.Status(status).JSON(core.ErrorResponse{
		Error: err.Error(),
		Kind:  kindName(core.KindOf(err)),
	})
}

func mapErrorToStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}

	switch {
	case errors.Is(err, core.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, core.ErrAuth),
		errors.Is(err, core.ErrNotAuthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, core.ErrRemoteWrite),
		errors.Is(err, core.ErrRemoteRead):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func kindName(kind error) string {
	switch kind {
	case core.ErrValidation:
		return "validation"
	case core.ErrAuth:
		return "auth"
	case core.ErrNotAuthenticated:
		return "not_authenticated"
	case core.ErrRemoteWrite:
		return "remote_write"
	case core.ErrRemoteRead:
		return "remote_read"
	case core.ErrCorruptData:
		return "corrupt_data"
	default:
		return ""
	}
}
