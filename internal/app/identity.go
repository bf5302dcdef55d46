package app

import (
	"errors"
	"regexp"
	"strings"

	"github.com/ncecere/viberank/internal/auth"
	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/requestctx"
)

var (
	ErrUnauthenticated = errors.New("authentication required: sign in with GitHub or send the X-GitHub-User header")
	ErrInvalidUsername = errors.New("invalid GitHub username")
)

// GitHub logins: 1-39 alphanumerics or single hyphens, no leading or
// trailing hyphen.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)

func ValidUsername(name string) bool {
	return len(name) <= 39 && usernamePattern.MatchString(name)
}

// SessionContext translates a session into the request identity.
func (c *Container) SessionContext(session *auth.Session) *requestctx.Context {
	return &requestctx.Context{
		Username: session.Login,
		GitHub: models.GitHubIdentity{
			Username: session.Login,
			Name:     session.Name,
			Avatar:   session.AvatarURL,
		},
		Source:   models.SourceOAuth,
		Verified: true,
		Admin:    c.Auth.IsAdmin(session.Login),
	}
}

// ResolveSubmitter picks the identity for a submission. A valid session wins;
// otherwise the X-GitHub-User header value is used as an unverified cli
// identity.
func (c *Container) ResolveSubmitter(sessionToken, headerUser string) (*requestctx.Context, error) {
	if sessionToken != "" {
		if session, err := c.Auth.Authenticate(sessionToken); err == nil {
			return c.SessionContext(session), nil
		}
	}
	headerUser = strings.TrimSpace(headerUser)
	if headerUser == "" {
		return nil, ErrUnauthenticated
	}
	if !ValidUsername(headerUser) {
		return nil, ErrInvalidUsername
	}
	return &requestctx.Context{
		Username: headerUser,
		Source:   models.SourceCLI,
	}, nil
}
