package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ncecere/viberank/internal/submitclient"
)

const report = `{"totals":{"inputTokens":1000,"outputTokens":500,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":1500,"totalCost":1.5},
"daily":[{"date":"2024-01-10","inputTokens":1000,"outputTokens":500,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":1500,"totalCost":1.5,"modelsUsed":["claude-sonnet-4"]}]}`

func noGit(context.Context, string, ...string) ([]byte, error) {
	return nil, errors.New("git unavailable")
}

func writeReport(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "usage.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestRunSubmitDryRun(t *testing.T) {
	var out bytes.Buffer
	err := runSubmit(context.Background(), submitOptions{
		input:      writeReport(t, report),
		githubUser: "octocat",
		dryRun:     true,
		run:        noGit,
	}, &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "octocat")
	require.Contains(t, out.String(), "1.5K")
	require.Contains(t, out.String(), "dry run")
}

func TestRunSubmitPosts(t *testing.T) {
	var gotUser string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = r.Header.Get("X-GitHub-User")
		require.NotEmpty(t, r.Header.Get("Idempotency-Key"))
		_ = json.NewEncoder(w).Encode(submitclient.Result{Success: true, SubmissionID: "s1", Message: "Submission created"})
	}))
	defer srv.Close()

	var out bytes.Buffer
	err := runSubmit(context.Background(), submitOptions{
		input: writeReport(t, report),
		url:   srv.URL,
		run: func(_ context.Context, name string, args ...string) ([]byte, error) {
			return []byte("octocat\n"), nil
		},
	}, &out)
	require.NoError(t, err)
	require.Equal(t, "octocat", gotUser)
	require.Contains(t, out.String(), "Submission created")
	require.Contains(t, out.String(), srv.URL+"/profile/octocat")
}

func TestRunSubmitRejectsLocally(t *testing.T) {
	bad := `{"totals":{"inputTokens":1,"outputTokens":1,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":99,"totalCost":1},
"daily":[{"date":"2024-01-10","inputTokens":1,"outputTokens":1,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":2,"totalCost":1,"modelsUsed":[]}]}`
	err := runSubmit(context.Background(), submitOptions{
		input:      writeReport(t, bad),
		githubUser: "octocat",
		url:        "http://127.0.0.1:1",
		run:        noGit,
	}, &bytes.Buffer{})
	require.ErrorContains(t, err, "token totals mismatch")
}

func TestRunSubmitNeedsUser(t *testing.T) {
	err := runSubmit(context.Background(), submitOptions{input: writeReport(t, report), run: noGit}, &bytes.Buffer{})
	require.ErrorIs(t, err, submitclient.ErrNoGitHubUser)

	err = runSubmit(context.Background(), submitOptions{input: writeReport(t, report), githubUser: "not a user", run: noGit}, &bytes.Buffer{})
	require.ErrorContains(t, err, "not a valid GitHub username")
}

func TestFormatTokens(t *testing.T) {
	require.Equal(t, "999", formatTokens(999))
	require.Equal(t, "1.5K", formatTokens(1500))
	require.Equal(t, "2.50M", formatTokens(2_500_000))
	require.Equal(t, "1.00B", formatTokens(1_000_000_000))
}
