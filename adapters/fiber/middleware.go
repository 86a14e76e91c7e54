package fiber

import (
	"github.com/gofiber/fiber/v3"

	"github.com/lborres/folio/core"
)

// requireSession answers 401 unless the session manager has a user.
func (a *Adapter) requireSession(next fiber.Handler) fiber.Handler {
	return func(c fiber.Ctx) error {
		if !a.sessions.Status().SignedIn() {
			return c.Status(fiber.StatusUnauthorized).JSON(core.ErrorResponse{
				Error: core.ErrNotAuthenticated.Error(),
				Kind:  kindName(core.ErrNotAuthenticated),
			})
		}
		return next(c)
	}
}
