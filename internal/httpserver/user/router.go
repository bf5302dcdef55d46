package user

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
)

// Register wires up routes that act on behalf of a signed-in GitHub user.
func Register(app *fiber.App, container *app.Container) {
	h := &claimHandler{container: container}
	app.Post("/api/submissions/:id/claim", httputil.RequireSession(container), h.claim)
}
