package requestctx

import (
	"context"
	"testing"

	"github.com/ncecere/viberank/internal/models"
)

func TestRoundTrip(t *testing.T) {
	rc := &Context{Username: "octocat", Source: models.SourceOAuth, Verified: true}
	ctx := WithContext(context.Background(), rc)

	got, ok := FromContext(ctx)
	if !ok || got != rc {
		t.Fatalf("expected stored context, got %+v ok=%v", got, ok)
	}
	if !got.Authenticated() {
		t.Fatalf("expected session identity to be authenticated")
	}

	if _, ok := FromContext(context.Background()); ok {
		t.Fatalf("expected no context")
	}
	cli := &Context{Username: "octocat", Source: models.SourceCLI}
	if cli.Authenticated() {
		t.Fatalf("header identity must not count as authenticated")
	}
}
