package admin

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
)

// Register wires up the moderation routes. Every route requires a session
// whose GitHub login is listed in auth.admin_logins.
func Register(app *fiber.App, container *app.Container) {
	protected := app.Group("/admin", httputil.RequireSession(container), requireAdmin())
	registerSubmissionRoutes(protected, container)
}

func requireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		rc, ok := httputil.Identity(c)
		if !ok || !rc.Admin {
			return httputil.WriteError(c, fiber.StatusForbidden, "admin access required")
		}
		return c.Next()
	}
}
