package requestctx

import (
	"context"

	"github.com/ncecere/viberank/internal/models"
)

type contextKey string

const fiberLocalsKey = "requestctx"

// Key is the typed context key used for storing the submitter Context.
var Key contextKey = "viberank/requestctx"

// Context captures the submitter identity resolved from a session or the
// X-GitHub-User header.
type Context struct {
	Username string
	GitHub   models.GitHubIdentity
	Source   models.Source
	Verified bool
	Admin    bool
}

// Authenticated reports whether the identity came from a signed session.
func (c *Context) Authenticated() bool {
	return c != nil && c.Source == models.SourceOAuth && c.Verified
}

// WithContext embeds the request context into the parent context.
func WithContext(parent context.Context, rc *Context) context.Context {
	if parent == nil {
		parent = context.Background()
	}
	return context.WithValue(parent, Key, rc)
}

// FromContext retrieves the request context if present.
func FromContext(ctx context.Context) (*Context, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(Key).(*Context)
	return rc, ok
}

// FiberLocalsKey returns the key used in fiber.Locals for request context storage.
func FiberLocalsKey() string {
	return fiberLocalsKey
}
