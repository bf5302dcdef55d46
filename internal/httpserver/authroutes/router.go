// Package authroutes serves the GitHub login flow and session endpoints.
package authroutes

import (
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/auth"
	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/httpserver/httputil"
)

const (
	stateCookieName = "viberank_oauth_state"
	stateTTL        = 10 * time.Minute
)

type handler struct {
	container *app.Container
	cfg       config.AuthConfig
}

// Register wires up /auth routes.
func Register(app *fiber.App, container *app.Container) {
	h := &handler{container: container, cfg: container.Config.Auth}
	group := app.Group("/auth")
	group.Get("/github/login", h.login)
	group.Get("/github/callback", h.callback)
	group.Get("/session", h.session)
	group.Post("/logout", h.logout)
}

func (h *handler) login(c *fiber.Ctx) error {
	state, err := auth.GenerateState(32)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to start login")
	}
	authURL, err := h.container.Auth.StartLogin(state)
	if errors.Is(err, auth.ErrGitHubDisabled) {
		return httputil.WriteError(c, fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		return httputil.WriteError(c, fiber.StatusInternalServerError, "failed to start login")
	}
	h.setCookie(c, stateCookieName, state, time.Now().Add(stateTTL))
	return c.Redirect(authURL, fiber.StatusFound)
}

func (h *handler) callback(c *fiber.Ctx) error {
	state := c.Query("state")
	code := c.Query("code")
	if state == "" || code == "" {
		return httputil.WriteError(c, fiber.StatusBadRequest, "state and code required")
	}
	expected := c.Cookies(stateCookieName)
	h.clearCookie(c, stateCookieName)
	if expected == "" || expected != state {
		return httputil.WriteError(c, fiber.StatusBadRequest, "invalid or expired state")
	}

	ctx := httputil.UserContext(c)
	token, session, err := h.container.Auth.CompleteLogin(ctx, code)
	if errors.Is(err, auth.ErrGitHubDisabled) {
		return httputil.WriteError(c, fiber.StatusNotFound, err.Error())
	}
	if err != nil {
		slog.WarnContext(ctx, "github login failed", slog.String("error", err.Error()))
		return redirectWithError(c, h.cfg.PostLoginRedirect, "github login failed")
	}

	h.setCookie(c, h.cfg.Session.CookieName, token, session.ExpiresAt)
	slog.InfoContext(ctx, "github login", slog.String("login", session.Login))
	return c.Redirect(h.cfg.PostLoginRedirect, fiber.StatusFound)
}

func (h *handler) session(c *fiber.Ctx) error {
	token := httputil.SessionToken(c, h.cfg.Session.CookieName)
	if token == "" {
		return httputil.WriteError(c, fiber.StatusUnauthorized, "not signed in")
	}
	session, err := h.container.Auth.Authenticate(token)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusUnauthorized, err.Error())
	}
	return c.JSON(fiber.Map{
		"login":     session.Login,
		"name":      session.Name,
		"avatarUrl": session.AvatarURL,
		"expiresAt": session.ExpiresAt,
		"admin":     h.container.Auth.IsAdmin(session.Login),
	})
}

func (h *handler) logout(c *fiber.Ctx) error {
	h.clearCookie(c, h.cfg.Session.CookieName)
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *handler) setCookie(c *fiber.Ctx, name, value string, expires time.Time) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HTTPOnly: true,
		Secure:   h.cfg.Session.CookieSecure || strings.EqualFold(c.Protocol(), "https"),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

func (h *handler) clearCookie(c *fiber.Ctx, name string) {
	h.setCookie(c, name, "", time.Unix(0, 0))
}

func redirectWithError(c *fiber.Ctx, target, msg string) error {
	u, err := url.Parse(target)
	if err != nil {
		return httputil.WriteError(c, fiber.StatusBadGateway, msg)
	}
	q := u.Query()
	q.Set("error", msg)
	u.RawQuery = q.Encode()
	return c.Redirect(u.String(), fiber.StatusFound)
}
