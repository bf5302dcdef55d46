package public

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
	"github.com/ncecere/viberank/internal/limits"
)

// readLimit applies the per-IP read budget. Limiter failures let the request
// through.
func readLimit(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := httputil.UserContext(c)
		decision, err := container.AllowRead(ctx, c.IP())
		if errors.Is(err, limits.ErrLimitExceeded) {
			return httputil.WriteRateLimited(c, decision)
		}
		if err != nil {
			slog.WarnContext(ctx, "read rate limit check failed", slog.String("error", err.Error()))
		}
		return c.Next()
	}
}
