package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
)

// Register wires up the unauthenticated leaderboard API.
func Register(app *fiber.App, container *app.Container) {
	api := app.Group("/api")
	submit := &submitHandler{container: container}
	api.Post("/submit", submit.submit)

	reads := &readHandler{container: container}
	limited := readLimit(container)
	api.Get("/leaderboard", limited, reads.leaderboard)
	api.Get("/stats", limited, reads.stats)
	api.Get("/profiles/:username", limited, reads.profile)
	api.Get("/submissions/:id", limited, reads.submission)
}
