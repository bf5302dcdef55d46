package blob

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"
)

// ReportArchiver keeps the raw body of every accepted usage report.
type ReportArchiver struct {
	store  Store
	prefix string
	now    func() time.Time
}

func NewReportArchiver(store Store, prefix string) *ReportArchiver {
	return &ReportArchiver{store: store, prefix: strings.Trim(prefix, "/"), now: time.Now}
}

// Key returns <prefix>/<username>/<submissionID>/<unix-nanos>.json. Usernames
// are lowercased so case variants of one user share a directory.
func (a *ReportArchiver) Key(username, submissionID string, at time.Time) string {
	name := fmt.Sprintf("%d.json", at.UnixNano())
	return path.Join(a.prefix, strings.ToLower(username), submissionID, name)
}

func (a *ReportArchiver) Archive(ctx context.Context, username, submissionID string, raw []byte) error {
	if a == nil || a.store == nil || len(raw) == 0 {
		return nil
	}
	key := a.Key(username, submissionID, a.now().UTC())
	_, err := a.store.Put(ctx, key, bytes.NewReader(raw), PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"username":      username,
			"submission-id": submissionID,
		},
	})
	if err != nil {
		return fmt.Errorf("archive report: %w", err)
	}
	return nil
}
