package admin

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
)

const defaultFlaggedLimit = 100

type submissionsHandler struct {
	container *app.Container
}

type reviewRequest struct {
	Approve *bool `json:"approve"`
}

func registerSubmissionRoutes(router fiber.Router, container *app.Container) {
	h := &submissionsHandler{container: container}
	router.Get("/submissions/flagged", h.listFlagged)
	router.Post("/submissions/:id/review", h.review)
	router.Delete("/submissions", h.purge)
}

func (h *submissionsHandler) listFlagged(c *fiber.Ctx) error {
	limit := httputil.QueryInt(c, "limit", defaultFlaggedLimit)
	subs, err := h.container.Submissions.ListFlagged(httputil.UserContext(c), limit)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	return c.JSON(fiber.Map{"submissions": subs})
}

func (h *submissionsHandler) review(c *fiber.Ctx) error {
	var req reviewRequest
	if err := c.BodyParser(&req); err != nil || req.Approve == nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "body must be {\"approve\": true|false}")
	}
	ctx := httputil.UserContext(c)
	id := c.Params("id")
	if err := h.container.Submissions.Review(ctx, id, *req.Approve); err != nil {
		return httputil.WriteServiceError(c, err)
	}
	h.container.InvalidateReads(ctx)

	rc, _ := httputil.Identity(c)
	slog.InfoContext(ctx, "submission reviewed",
		slog.String("submission_id", id),
		slog.Bool("approved", *req.Approve),
		slog.String("reviewer", rc.Username))
	return c.JSON(fiber.Map{"success": true, "approved": *req.Approve})
}

func (h *submissionsHandler) purge(c *fiber.Ctx) error {
	pattern := strings.TrimSpace(c.Query("pattern"))
	if pattern == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "pattern query parameter required")
	}
	dryRun, _ := strconv.ParseBool(c.Query("dryRun", "false"))

	ctx := httputil.UserContext(c)
	result, err := h.container.Submissions.Purge(ctx, pattern, dryRun)
	if err != nil {
		return httputil.WriteServiceError(c, err)
	}
	if !dryRun {
		h.container.InvalidateReads(ctx)
	}
	return c.JSON(result)
}
