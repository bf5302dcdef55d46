package public

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
	"github.com/ncecere/viberank/internal/limits"
	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/observability"
	"github.com/ncecere/viberank/internal/submissions"
	"github.com/ncecere/viberank/internal/validation"
)

const (
	headerGitHubUser     = "X-GitHub-User"
	headerIdempotencyKey = "Idempotency-Key"
)

type submitHandler struct {
	container *app.Container
}

type submitResponse struct {
	Success      bool     `json:"success"`
	SubmissionID string   `json:"submissionId"`
	Merged       bool     `json:"merged"`
	Flagged      bool     `json:"flagged"`
	FlagReasons  []string `json:"flagReasons"`
	Message      string   `json:"message"`
}

func (h *submitHandler) submit(c *fiber.Ctx) error {
	ctx := httputil.UserContext(c)
	cfg := h.container.Config

	rc, err := h.container.ResolveSubmitter(
		httputil.SessionToken(c, cfg.Auth.Session.CookieName),
		c.Get(headerGitHubUser),
	)
	switch {
	case errors.Is(err, app.ErrUnauthenticated):
		return httputil.WriteError(c, fiber.StatusUnauthorized, err.Error())
	case errors.Is(err, app.ErrInvalidUsername):
		return httputil.WriteError(c, fiber.StatusBadRequest, err.Error())
	case err != nil:
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to resolve identity")
	}
	httputil.Attach(c, rc)
	ctx = httputil.UserContext(c)

	decision, err := h.container.AllowSubmit(ctx, c.IP(), rc.Username)
	if errors.Is(err, limits.ErrLimitExceeded) {
		return httputil.WriteRateLimited(c, decision)
	}
	if err != nil {
		slog.WarnContext(ctx, "submit rate limit check failed", slog.String("error", err.Error()))
	}

	idemKey := strings.TrimSpace(c.Get(headerIdempotencyKey))
	if idemKey != "" {
		if cached, ok := h.container.Idempotency.Get(ctx, strings.ToLower(rc.Username), idemKey); ok {
			c.Set("Idempotent-Replay", "true")
			c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
			return c.Status(fiber.StatusOK).Send(cached)
		}
	}

	raw := c.Body()
	var report models.Report
	if err := json.Unmarshal(raw, &report); err != nil {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid JSON body")
	}

	// fasthttp reuses the body buffer after the handler returns.
	body := append([]byte(nil), raw...)
	result, err := h.container.Submissions.Submit(ctx, submissions.Input{
		Username: rc.Username,
		GitHub:   rc.GitHub,
		Source:   rc.Source,
		Verified: rc.Verified,
		Report:   report,
		Raw:      body,
	})
	if err != nil {
		if _, ok := validation.AsError(err); ok {
			h.container.Observability.RecordSubmission(string(rc.Source), observability.OutcomeRejected)
		}
		return httputil.WriteServiceError(c, err)
	}

	outcome := observability.OutcomeCreated
	if result.Merged {
		outcome = observability.OutcomeMerged
	}
	h.container.Observability.RecordSubmission(string(rc.Source), outcome)
	if result.Flagged {
		h.container.Observability.RecordSubmission(string(rc.Source), observability.OutcomeFlagged)
	}
	h.container.InvalidateReads(ctx)

	resp := submitResponse{
		Success:      true,
		SubmissionID: result.SubmissionID,
		Merged:       result.Merged,
		Flagged:      result.Flagged,
		FlagReasons:  result.FlagReasons,
		Message:      submitMessage(result),
	}
	if resp.FlagReasons == nil {
		resp.FlagReasons = []string{}
	}
	payload, err := json.Marshal(resp)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to encode response")
	}
	if idemKey != "" {
		h.container.Idempotency.Set(ctx, strings.ToLower(rc.Username), idemKey, payload)
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	return c.Status(fiber.StatusOK).Send(payload)
}

func submitMessage(result submissions.Result) string {
	msg := "Submission created"
	if result.Merged {
		msg = "Existing submission updated with new data"
	}
	if result.Flagged {
		msg += "; it has been flagged for manual review"
	}
	return msg
}
