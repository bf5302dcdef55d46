package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/store"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(context.Background(), filepath.Join(t.TempDir(), "viberank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func submission(id, username string, cost float64, tokens int64) models.Submission {
	return models.Submission{
		ID:       id,
		Username: username,
		Totals: models.Totals{
			InputTokens: tokens,
			TotalTokens: tokens,
			TotalCost:   cost,
		},
		DateRange:  models.DateRange{Start: "2024-01-01", End: "2024-01-01"},
		ModelsUsed: []string{"claude-opus-4"},
		DailyBreakdown: []models.DailyBreakdown{{
			Date: "2024-01-01", InputTokens: tokens, TotalTokens: tokens, TotalCost: cost,
			ModelsUsed: []string{"claude-opus-4"},
		}},
		SubmittedAt: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Source:      models.SourceCLI,
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "viberank.db")
	s, err := New(context.Background(), path)
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, path, s.Path())
	_, err = os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, s.Ping(context.Background()))
}

func TestSubmissionRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sub := submission("a1", "Alice", 12.5, 1000)
	sub.GitHub = models.GitHubIdentity{Username: "alice", Avatar: "https://example.com/a.png"}
	sub.FlaggedForReview = true
	sub.FlagReasons = []string{"daily cost $6000.00 on 2024-01-01 exceeds $5000"}
	require.NoError(t, s.InsertSubmission(ctx, sub))

	got, err := s.GetSubmission(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, sub, got)

	_, err = s.GetSubmission(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestMissingSourceReadsAsOAuth(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sub := submission("legacy", "bob", 1, 10)
	sub.Source = ""
	require.NoError(t, s.InsertSubmission(ctx, sub))

	got, err := s.GetSubmission(ctx, "legacy")
	require.NoError(t, err)
	require.Equal(t, models.SourceOAuth, got.Source)
}

func TestUpdateSubmission(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sub := submission("a1", "alice", 1, 10)
	require.NoError(t, s.InsertSubmission(ctx, sub))

	sub.Totals.TotalCost = 5
	sub.Verified = true
	sub.FlagReasons = nil
	require.NoError(t, s.UpdateSubmission(ctx, sub))

	got, err := s.GetSubmission(ctx, "a1")
	require.NoError(t, err)
	require.Equal(t, 5.0, got.Totals.TotalCost)
	require.True(t, got.Verified)
	require.Empty(t, got.FlagReasons)

	require.ErrorIs(t, s.UpdateSubmission(ctx, submission("nope", "x", 1, 1)), store.ErrNotFound)
}

func TestListByUsernameIsCaseInsensitiveAndOrdered(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertSubmission(ctx, submission("first", "Alice", 1, 10)))
	require.NoError(t, s.InsertSubmission(ctx, submission("other", "bob", 1, 10)))
	require.NoError(t, s.InsertSubmission(ctx, submission("second", "alice", 1, 10)))

	subs, err := s.ListSubmissionsByUsername(ctx, "ALICE")
	require.NoError(t, err)
	require.Len(t, subs, 2)
	require.Equal(t, "first", subs[0].ID)
	require.Equal(t, "second", subs[1].ID)
}

func TestTopSubmissions(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertSubmission(ctx, submission("cheap", "a", 1, 5000)))
	require.NoError(t, s.InsertSubmission(ctx, submission("tie1", "b", 10, 100)))
	require.NoError(t, s.InsertSubmission(ctx, submission("tie2", "c", 10, 200)))
	require.NoError(t, s.InsertSubmission(ctx, submission("top", "d", 50, 10)))

	byCost, err := s.TopSubmissions(ctx, store.SortByCost, 3)
	require.NoError(t, err)
	require.Equal(t, []string{"top", "tie1", "tie2"}, ids(byCost))

	byTokens, err := s.TopSubmissions(ctx, store.SortByTokens, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"cheap", "tie2", "tie1", "top"}, ids(byTokens))
}

func TestListFlaggedNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	older := submission("older", "a", 1, 10)
	older.FlaggedForReview = true
	newer := submission("newer", "b", 1, 10)
	newer.FlaggedForReview = true
	newer.SubmittedAt = older.SubmittedAt.Add(time.Hour)
	clean := submission("clean", "c", 1, 10)

	for _, sub := range []models.Submission{older, newer, clean} {
		require.NoError(t, s.InsertSubmission(ctx, sub))
	}

	flagged, err := s.ListFlaggedSubmissions(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"newer", "older"}, ids(flagged))
}

func TestDeleteByUsernamePattern(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.InsertSubmission(ctx, submission("t1", "test_user", 1, 10)))
	require.NoError(t, s.InsertSubmission(ctx, submission("t2", "TestBot", 1, 10)))
	require.NoError(t, s.InsertSubmission(ctx, submission("t3", "testXuser", 1, 10)))
	require.NoError(t, s.InsertSubmission(ctx, submission("keep", "alice", 1, 10)))

	removed, err := s.DeleteSubmissionsByUsernamePattern(ctx, "test*")
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"t1", "t2", "t3"}, removed)

	// underscore is literal, not a single-character wildcard
	require.NoError(t, s.InsertSubmission(ctx, submission("u1", "a_b", 1, 10)))
	require.NoError(t, s.InsertSubmission(ctx, submission("u2", "axb", 1, 10)))
	removed, err = s.DeleteSubmissionsByUsernamePattern(ctx, "a_b")
	require.NoError(t, err)
	require.Equal(t, []string{"u1"}, removed)

	remaining, err := s.ListSubmissions(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"keep", "u2"}, ids(remaining))
}

func TestProfiles(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	created := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	profile := models.Profile{Username: "Alice", TotalSubmissions: 1, BestSubmissionID: "a1", CreatedAt: created}
	require.NoError(t, s.InsertProfile(ctx, profile))

	got, err := s.GetProfile(ctx, "alice")
	require.NoError(t, err)
	require.Equal(t, profile, got)

	got.TotalSubmissions = 2
	got.BestSubmissionID = "a2"
	got.GitHub.Name = "Alice A."
	require.NoError(t, s.UpdateProfile(ctx, got))

	got, err = s.GetProfile(ctx, "ALICE")
	require.NoError(t, err)
	require.Equal(t, 2, got.TotalSubmissions)
	require.Equal(t, "a2", got.BestSubmissionID)
	require.Equal(t, "Alice A.", got.GitHub.Name)

	n, err := s.DeleteProfilesByBestSubmission(ctx, []string{"a1", "a2"})
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = s.GetProfile(ctx, "alice")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func ids(subs []models.Submission) []string {
	out := make([]string, len(subs))
	for i, sub := range subs {
		out[i] = sub.ID
	}
	return out
}
