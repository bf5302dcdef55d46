package blob

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ncecere/viberank/internal/config"
)

func newTestLocal(t *testing.T) Store {
	t.Helper()
	st, err := New(context.Background(), config.ArchiveConfig{
		Storage: "local",
		Local:   config.ArchiveLocalConfig{Directory: filepath.Join(t.TempDir(), "archive")},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st
}

func TestLocalPutGetDelete(t *testing.T) {
	st := newTestLocal(t)
	ctx := context.Background()

	info, err := st.Put(ctx, "reports/alice/1.json", strings.NewReader(`{"totals":{}}`), PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len(`{"totals":{}}`)) {
		t.Fatalf("unexpected size %d", info.Size)
	}

	rc, got, err := st.Get(ctx, "reports/alice/1.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	rc.Close()
	if string(body) != `{"totals":{}}` || got.ContentType != "application/json" {
		t.Fatalf("unexpected object %q %+v", body, got)
	}

	if err := st.Delete(ctx, "reports/alice/1.json"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, _, err := st.Get(ctx, "reports/alice/1.json"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLocalRejectsEscapingKeys(t *testing.T) {
	st := newTestLocal(t)
	if _, err := st.Put(context.Background(), "../outside.json", strings.NewReader("x"), PutOptions{}); err == nil {
		t.Fatalf("expected invalid key error")
	}
}

func TestReportArchiver(t *testing.T) {
	st := newTestLocal(t)
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	archiver := NewReportArchiver(st, "/reports/")
	archiver.now = func() time.Time { return at }

	if err := archiver.Archive(context.Background(), "Alice", "sub-1", []byte(`{"daily":[]}`)); err != nil {
		t.Fatalf("archive: %v", err)
	}

	key := archiver.Key("Alice", "sub-1", at)
	if key != "reports/alice/sub-1/1717243200000000000.json" {
		t.Fatalf("unexpected key %s", key)
	}
	rc, info, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get archived: %v", err)
	}
	defer rc.Close()
	if info.Metadata["submission-id"] != "sub-1" {
		t.Fatalf("unexpected metadata %+v", info.Metadata)
	}

	if err := archiver.Archive(context.Background(), "alice", "sub-2", nil); err != nil {
		t.Fatalf("empty body should be skipped: %v", err)
	}
}
