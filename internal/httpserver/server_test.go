package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/ncecere/viberank/internal/app"
	"github.com/ncecere/viberank/internal/auth"
	"github.com/ncecere/viberank/internal/config"
	"github.com/ncecere/viberank/internal/store/sqlite"
)

type testEnv struct {
	server    *Server
	container *app.Container
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "viberank.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	cfg := &config.Config{
		Server:    config.ServerConfig{BodyLimitMB: 1},
		Reporting: config.ReportingConfig{Timezone: "UTC"},
		RateLimits: config.RateLimitConfig{
			SubmitPerIP:   config.WindowLimit{Requests: 100, Window: time.Minute},
			SubmitPerUser: config.WindowLimit{Requests: 100, Window: time.Minute},
			ReadPerIP:     config.WindowLimit{Requests: 100, Window: time.Minute},
		},
		Validation: config.ValidationConfig{
			MaxDailyCost:    5000,
			MaxDailyTokens:  250_000_000,
			MinCostPerToken: 0.0000001,
			MaxCostPerToken: 0.1,
		},
		Leaderboard: config.LeaderboardConfig{DefaultLimit: 50, MaxLimit: 200, ScanCap: 1000, CacheTTL: time.Minute},
		Auth: config.AuthConfig{
			Session:           config.SessionConfig{JWTSecret: "test-secret", TTL: time.Hour, CookieName: "viberank_session"},
			PostLoginRedirect: "/",
			AdminLogins:       []string{"root-admin"},
		},
		Observability: config.ObservabilityConfig{EnableMetrics: true},
	}

	container, err := app.NewContainer(ctx, cfg, st, client)
	require.NoError(t, err)
	server, err := New(container)
	require.NoError(t, err)
	return &testEnv{server: server, container: container}
}

func (e *testEnv) session(t *testing.T, login string) string {
	t.Helper()
	token, _, err := e.container.Auth.IssueSession(auth.GitHubUser{Login: login, Name: login + " name"})
	require.NoError(t, err)
	return token
}

func (e *testEnv) do(t *testing.T, req *http.Request) (int, map[string]any) {
	t.Helper()
	resp, err := e.server.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func reportBody(date string, input, output int64, cost float64) string {
	total := input + output
	return fmt.Sprintf(`{
  "totals": {"inputTokens": %[2]d, "outputTokens": %[3]d, "cacheCreationTokens": 0, "cacheReadTokens": 0, "totalTokens": %[4]d, "totalCost": %[5]g},
  "daily": [{"date": %[1]q, "inputTokens": %[2]d, "outputTokens": %[3]d, "cacheCreationTokens": 0, "cacheReadTokens": 0, "totalTokens": %[4]d, "totalCost": %[5]g, "modelsUsed": ["claude-sonnet-4"]}]
}`, date, input, output, total, cost)
}

func submitRequest(body, githubUser, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/submit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if githubUser != "" {
		req.Header.Set("X-GitHub-User", githubUser)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestSubmitRequiresIdentity(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "", ""))
	require.Equal(t, http.StatusUnauthorized, status)
	require.Contains(t, body["error"], "authentication required")

	status, _ = env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "-bad-", ""))
	require.Equal(t, http.StatusBadRequest, status)
}

func TestSubmitCreatesThenMerges(t *testing.T) {
	env := newTestEnv(t)

	status, first := env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "alice", ""))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, first["success"])
	require.Equal(t, false, first["merged"])
	id := first["submissionId"].(string)
	require.NotEmpty(t, id)

	status, second := env.do(t, submitRequest(reportBody("2024-01-10", 200, 100, 3), "alice", ""))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, second["merged"])
	require.Equal(t, id, second["submissionId"])

	status, profile := env.do(t, httptest.NewRequest(http.MethodGet, "/api/profiles/alice", nil))
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 1, profile["profile"].(map[string]any)["totalSubmissions"])
	subs := profile["submissions"].([]any)
	require.Len(t, subs, 1)
	totals := subs[0].(map[string]any)["totals"].(map[string]any)
	require.EqualValues(t, 300, totals["totalTokens"])
	require.EqualValues(t, "cli", subs[0].(map[string]any)["source"])
}

func TestSubmitRejectsInvalidReports(t *testing.T) {
	env := newTestEnv(t)

	mismatch := `{"totals":{"inputTokens":100,"outputTokens":40,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":150,"totalCost":1.5},
	  "daily":[{"date":"2024-01-10","inputTokens":100,"outputTokens":50,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":150,"totalCost":1.5,"modelsUsed":[]}]}`
	status, body := env.do(t, submitRequest(mismatch, "alice", ""))
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["error"], "token totals mismatch")

	tomorrow := time.Now().UTC().Add(48 * time.Hour).Format("2006-01-02")
	status, body = env.do(t, submitRequest(reportBody(tomorrow, 100, 50, 1.5), "alice", ""))
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["error"], "future date detected")

	status, body = env.do(t, submitRequest("{not json", "alice", ""))
	require.Equal(t, http.StatusBadRequest, status)
	require.Equal(t, "invalid JSON body", body["error"])

	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/profiles/alice", nil))
	require.Equal(t, http.StatusNotFound, status, "rejected reports must not write")
}

func TestSubmitRejectsWrappedTokenCounts(t *testing.T) {
	env := newTestEnv(t)
	body := `{"totals":{"inputTokens":9223372036854775807,"outputTokens":9223372036854775807,"cacheCreationTokens":2,"cacheReadTokens":0,"totalTokens":0,"totalCost":0},
	  "daily":[{"date":"2024-01-10","inputTokens":100,"outputTokens":50,"cacheCreationTokens":0,"cacheReadTokens":0,"totalTokens":150,"totalCost":1.5,"modelsUsed":[]}]}`
	status, resp := env.do(t, submitRequest(body, "alice", ""))
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, resp["error"], "exceeds realistic limits")

	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/profiles/alice", nil))
	require.Equal(t, http.StatusNotFound, status)
}

func TestSubmitBodyLimit(t *testing.T) {
	env := newTestEnv(t)
	huge := bytes.Repeat([]byte("x"), 2*1024*1024)
	status, body := env.do(t, submitRequest(string(huge), "alice", ""))
	require.Equal(t, http.StatusRequestEntityTooLarge, status)
	require.Equal(t, "request body too large", body["error"])
}

func TestSubmitIdempotencyReplay(t *testing.T) {
	env := newTestEnv(t)
	req := submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "alice", "")
	req.Header.Set("Idempotency-Key", "abc")
	_, first := env.do(t, req)

	replay := submitRequest(reportBody("2024-01-11", 100, 50, 1.5), "alice", "")
	replay.Header.Set("Idempotency-Key", "abc")
	resp, err := env.server.App().Test(replay, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "true", resp.Header.Get("Idempotent-Replay"))
	var second map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&second))
	require.Equal(t, first["submissionId"], second["submissionId"])
}

func TestSubmitRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.container.Config.RateLimits.SubmitPerUser = config.WindowLimit{Requests: 1, Window: time.Hour}

	status, _ := env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "alice", ""))
	require.Equal(t, http.StatusOK, status)
	resp, err := env.server.App().Test(submitRequest(reportBody("2024-01-11", 100, 50, 1.5), "alice", ""), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))
}

func TestSessionSubmissionIsVerified(t *testing.T) {
	env := newTestEnv(t)
	token := env.session(t, "octocat")

	status, body := env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "ignored-header", token))
	require.Equal(t, http.StatusOK, status)

	status, sub := env.do(t, httptest.NewRequest(http.MethodGet, "/api/submissions/"+body["submissionId"].(string), nil))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "octocat", sub["username"])
	require.Equal(t, "oauth", sub["source"])
	require.Equal(t, true, sub["verified"])
}

func TestLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	for i, user := range []string{"alice", "bob", "carol"} {
		status, _ := env.do(t, submitRequest(reportBody(fmt.Sprintf("2024-01-1%d", i), 100, 50, float64(i+1)), user, ""))
		require.Equal(t, http.StatusOK, status)
	}
	// flagged: one day above the daily cost ceiling
	status, flagged := env.do(t, submitRequest(reportBody("2024-01-15", 600_000, 400_000, 6000), "mallory", ""))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, flagged["flagged"])

	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard?sortBy=cost", nil))
	require.Equal(t, http.StatusOK, status)
	subs := body["submissions"].([]any)
	require.Len(t, subs, 3)
	require.Equal(t, "carol", subs[0].(map[string]any)["username"])

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard?includeFlagged=true", nil))
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["submissions"].([]any), 4)

	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard?dateFrom=2024-01-11&dateTo=2024-01-12", nil))
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["submissions"].([]any), 2)

	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard?sortBy=karma", nil))
	require.Equal(t, http.StatusBadRequest, status)
	status, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard?dateFrom=2024-02-01&dateTo=2024-01-01", nil))
	require.Equal(t, http.StatusBadRequest, status)
	require.Contains(t, body["error"], "dateFrom")
	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard?dateFrom=01/02/2024", nil))
	require.Equal(t, http.StatusBadRequest, status)
}

func TestLeaderboardCacheInvalidatedBySubmit(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "alice", ""))

	_, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	require.Len(t, body["submissions"].([]any), 1)

	resp, err := env.server.App().Test(httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil), -1)
	require.NoError(t, err)
	require.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "bob", ""))
	_, body = env.do(t, httptest.NewRequest(http.MethodGet, "/api/leaderboard", nil))
	require.Len(t, body["submissions"].([]any), 2)
}

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.25), "alice", ""))
	env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 2.5), "bob", ""))

	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/api/stats", nil))
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, body["totalSubmissions"])
	require.EqualValues(t, 3.75, body["totalCost"])
}

func TestClaim(t *testing.T) {
	env := newTestEnv(t)
	_, created := env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "alice", ""))
	id := created["submissionId"].(string)

	claim := func(token string) (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/api/submissions/"+id+"/claim", nil)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return env.do(t, req)
	}

	status, _ := claim("")
	require.Equal(t, http.StatusUnauthorized, status)

	status, body := claim(env.session(t, "bob"))
	require.Equal(t, http.StatusForbidden, status)
	require.Contains(t, body["error"], "only claim")

	status, body = claim(env.session(t, "Alice"))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, true, body["submission"].(map[string]any)["verified"])

	status, _ = claim(env.session(t, "alice"))
	require.Equal(t, http.StatusConflict, status)
}

func TestAdminRoutes(t *testing.T) {
	env := newTestEnv(t)
	_, flagged := env.do(t, submitRequest(reportBody("2024-01-15", 600_000, 400_000, 6000), "mallory", ""))
	env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "spam-bot-1", ""))
	env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "spam-bot-2", ""))

	req := httptest.NewRequest(http.MethodGet, "/admin/submissions/flagged", nil)
	req.Header.Set("Authorization", "Bearer "+env.session(t, "alice"))
	status, _ := env.do(t, req)
	require.Equal(t, http.StatusForbidden, status)

	admin := env.session(t, "Root-Admin")
	req = httptest.NewRequest(http.MethodGet, "/admin/submissions/flagged", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	status, body := env.do(t, req)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, body["submissions"].([]any), 1)

	req = httptest.NewRequest(http.MethodPost, "/admin/submissions/"+flagged["submissionId"].(string)+"/review", strings.NewReader(`{"approve":true}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+admin)
	status, _ = env.do(t, req)
	require.Equal(t, http.StatusOK, status)

	req = httptest.NewRequest(http.MethodDelete, "/admin/submissions?pattern=spam-bot-*&dryRun=true", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	status, body = env.do(t, req)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, body["submissionsDeleted"])
	require.Equal(t, true, body["dryRun"])

	req = httptest.NewRequest(http.MethodDelete, "/admin/submissions?pattern=spam-bot-*", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	status, body = env.do(t, req)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, body["submissionsDeleted"])
	require.EqualValues(t, 2, body["profilesDeleted"])

	req = httptest.NewRequest(http.MethodDelete, "/admin/submissions?pattern=***", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	status, _ = env.do(t, req)
	require.Equal(t, http.StatusBadRequest, status)
}

func TestAuthSessionAndLogout(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, httptest.NewRequest(http.MethodGet, "/auth/session", nil))
	require.Equal(t, http.StatusUnauthorized, status)

	req := httptest.NewRequest(http.MethodGet, "/auth/session", nil)
	req.AddCookie(&http.Cookie{Name: "viberank_session", Value: env.session(t, "octocat")})
	status, body := env.do(t, req)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "octocat", body["login"])
	require.Equal(t, false, body["admin"])

	status, _ = env.do(t, httptest.NewRequest(http.MethodGet, "/auth/github/login", nil))
	require.Equal(t, http.StatusNotFound, status, "github login is disabled in this config")

	resp, err := env.server.App().Test(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), -1)
	require.NoError(t, err)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	require.Contains(t, resp.Header.Get("Set-Cookie"), "viberank_session=;")
}

func TestHealthAndMetrics(t *testing.T) {
	env := newTestEnv(t)
	status, body := env.do(t, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "ok", body["status"])

	env.do(t, submitRequest(reportBody("2024-01-10", 100, 50, 1.5), "alice", ""))
	resp, err := env.server.App().Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	require.Contains(t, string(raw), `viberank_submissions_total{outcome="created",source="cli"} 1`)
}
