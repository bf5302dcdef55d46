package user

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
)

type claimHandler struct {
	container *app.Container
}

type claimResponse struct {
	Success    bool        `json:"success"`
	Submission interface{} `json:"submission"`
}

// claim verifies a cli submission for the signed-in GitHub user.
func (h *claimHandler) claim(c *fiber.Ctx) error {
	rc, ok := httputil.Identity(c)
	if !ok {
		return httputil.WriteError(c, fiber.StatusUnauthorized, "authentication required")
	}
	ctx := httputil.UserContext(c)
	sub, err := h.container.Submissions.Claim(ctx, c.Params("id"), rc.GitHub)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.container.InvalidateReads(ctx)
	return c.JSON(claimResponse{Success: true, Submission: sub})
}
