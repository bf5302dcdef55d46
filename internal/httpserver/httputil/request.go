package httputil

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/limits"
	"github.com/ncecere/viberank/internal/requestctx"
)

const bearerPrefix = "bearer "

// UserContext returns the request's context, never nil.
func UserContext(c *fiber.Ctx) context.Context {
	if c == nil {
		return context.Background()
	}
	if uc := c.UserContext(); uc != nil {
		return uc
	}
	return context.Background()
}

// SessionToken reads the session JWT from the Authorization header, falling
// back to the session cookie.
func SessionToken(c *fiber.Ctx, cookieName string) string {
	raw := strings.TrimSpace(c.Get(fiber.HeaderAuthorization))
	if raw != "" && strings.HasPrefix(strings.ToLower(raw), bearerPrefix) {
		if token := strings.TrimSpace(raw[len(bearerPrefix):]); token != "" {
			return token
		}
	}
	return strings.TrimSpace(c.Cookies(cookieName))
}

// RequireSession rejects requests without a valid session and stores the
// resolved identity on the request.
func RequireSession(container *app.Container) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := SessionToken(c, container.Config.Auth.Session.CookieName)
		if token == "" {
			return WriteError(c, fiber.StatusUnauthorized, "authentication required")
		}
		session, err := container.Auth.Authenticate(token)
		if err != nil {
			return WriteError(c, fiber.StatusUnauthorized, "invalid or expired session")
		}
		Attach(c, container.SessionContext(session))
		return c.Next()
	}
}

// Attach stores the identity in fiber locals and the user context.
func Attach(c *fiber.Ctx, rc *requestctx.Context) {
	c.Locals(requestctx.FiberLocalsKey(), rc)
	c.SetUserContext(requestctx.WithContext(UserContext(c), rc))
}

// Identity returns the identity stored by Attach.
func Identity(c *fiber.Ctx) (*requestctx.Context, bool) {
	rc, ok := c.Locals(requestctx.FiberLocalsKey()).(*requestctx.Context)
	return rc, ok && rc != nil
}

// WriteRateLimited answers 429 with a Retry-After derived from the window reset.
func WriteRateLimited(c *fiber.Ctx, decision limits.Decision) error {
	if !decision.ResetAt.IsZero() {
		wait := time.Until(decision.ResetAt)
		if wait < time.Second {
			wait = time.Second
		}
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(wait.Seconds())))
	}
	return WriteError(c, fiber.StatusTooManyRequests, "rate limit exceeded, please try again later")
}

// QueryInt parses a positive integer query parameter, returning def when the
// value is missing or malformed.
func QueryInt(c *fiber.Ctx, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return def
	}
	return v
}
