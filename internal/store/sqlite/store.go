// Package sqlite implements store.Store on an embedded SQLite file so a single
// binary can run without Postgres.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	// registers the "sqlite" driver
	_ "modernc.org/sqlite"

	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/store"
)

const submissionColumns = `id, username, github_username, github_name, github_avatar,
	input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, total_tokens, total_cost,
	date_start, date_end, models_used, daily_breakdown, submitted_at, verified, source,
	flagged_for_review, flag_reasons`

const profileColumns = `username, github_username, github_name, github_avatar,
	total_submissions, best_submission, created_at`

// Store wraps the SQL database connection.
type Store struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*Store)(nil)

// New opens (creating if needed) the database at path and initializes the schema.
func New(ctx context.Context, path string) (*Store, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer at a time.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	s := &Store{db: db, path: path}
	if err := s.configure(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) configure(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	query := `
	CREATE TABLE IF NOT EXISTS submissions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		username TEXT NOT NULL,
		github_username TEXT,
		github_name TEXT,
		github_avatar TEXT,
		input_tokens INTEGER NOT NULL DEFAULT 0,
		output_tokens INTEGER NOT NULL DEFAULT 0,
		cache_creation_tokens INTEGER NOT NULL DEFAULT 0,
		cache_read_tokens INTEGER NOT NULL DEFAULT 0,
		total_tokens INTEGER NOT NULL DEFAULT 0,
		total_cost REAL NOT NULL DEFAULT 0,
		date_start TEXT NOT NULL,
		date_end TEXT NOT NULL,
		models_used TEXT NOT NULL DEFAULT '[]',
		daily_breakdown TEXT NOT NULL DEFAULT '[]',
		submitted_at TEXT NOT NULL,
		verified INTEGER NOT NULL DEFAULT 0,
		source TEXT,
		flagged_for_review INTEGER NOT NULL DEFAULT 0,
		flag_reasons TEXT NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_submissions_username ON submissions(lower(username), seq);
	CREATE INDEX IF NOT EXISTS idx_submissions_cost ON submissions(total_cost DESC, seq);
	CREATE INDEX IF NOT EXISTS idx_submissions_tokens ON submissions(total_tokens DESC, seq);

	CREATE TABLE IF NOT EXISTS profiles (
		username TEXT PRIMARY KEY COLLATE NOCASE,
		github_username TEXT,
		github_name TEXT,
		github_avatar TEXT,
		total_submissions INTEGER NOT NULL DEFAULT 0,
		best_submission TEXT,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_profiles_best_submission ON profiles(best_submission);
	`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *Store) InsertSubmission(ctx context.Context, sub models.Submission) error {
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO submissions (`+submissionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, args...)
	return err
}

func (s *Store) UpdateSubmission(ctx context.Context, sub models.Submission) error {
	args, err := submissionArgs(sub)
	if err != nil {
		return err
	}
	// id moves from first to last position for the WHERE clause
	args = append(args[1:], args[0])
	res, err := s.db.ExecContext(ctx, `
		UPDATE submissions SET
			username = ?, github_username = ?, github_name = ?, github_avatar = ?,
			input_tokens = ?, output_tokens = ?, cache_creation_tokens = ?, cache_read_tokens = ?,
			total_tokens = ?, total_cost = ?, date_start = ?, date_end = ?, models_used = ?,
			daily_breakdown = ?, submitted_at = ?, verified = ?, source = ?,
			flagged_for_review = ?, flag_reasons = ?
		WHERE id = ?`, args...)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) GetSubmission(ctx context.Context, id string) (models.Submission, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id = ?`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Submission{}, store.ErrNotFound
	}
	return sub, err
}

func (s *Store) ListSubmissionsByUsername(ctx context.Context, username string) ([]models.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE lower(username) = lower(?) ORDER BY seq`, username)
}

func (s *Store) TopSubmissions(ctx context.Context, field store.SortField, limit int) ([]models.Submission, error) {
	order := "total_cost DESC"
	if field == store.SortByTokens {
		order = "total_tokens DESC"
	}
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions
		ORDER BY `+order+`, seq LIMIT ?`, limit)
}

func (s *Store) ListSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY seq LIMIT ?`, limit)
}

func (s *Store) ListFlaggedSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE flagged_for_review = 1 ORDER BY submitted_at DESC, seq DESC LIMIT ?`, limit)
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM submissions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) DeleteSubmissionsByUsernamePattern(ctx context.Context, pattern string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	like := store.LikePattern(pattern)
	rows, err := tx.QueryContext(ctx, `SELECT id FROM submissions WHERE lower(username) LIKE ? ESCAPE '\'`, like)
	if err != nil {
		return nil, err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE lower(username) LIKE ? ESCAPE '\'`, like); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

func (s *Store) GetProfile(ctx context.Context, username string) (models.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE username = ?`, username)
	profile, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Profile{}, store.ErrNotFound
	}
	return profile, err
}

func (s *Store) InsertProfile(ctx context.Context, profile models.Profile) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		profile.Username, nullString(profile.GitHub.Username), nullString(profile.GitHub.Name), nullString(profile.GitHub.Avatar),
		profile.TotalSubmissions, nullString(profile.BestSubmissionID), formatTime(profile.CreatedAt),
	)
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, profile models.Profile) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE profiles SET github_username = ?, github_name = ?, github_avatar = ?,
			total_submissions = ?, best_submission = ?
		WHERE username = ?`,
		nullString(profile.GitHub.Username), nullString(profile.GitHub.Name), nullString(profile.GitHub.Avatar),
		profile.TotalSubmissions, nullString(profile.BestSubmissionID), profile.Username,
	)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *Store) DeleteProfilesByBestSubmission(ctx context.Context, submissionIDs []string) (int64, error) {
	if len(submissionIDs) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(submissionIDs)), ",")
	args := make([]any, len(submissionIDs))
	for i, id := range submissionIDs {
		args[i] = id
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM profiles WHERE best_submission IN (`+placeholders+`)`, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) querySubmissions(ctx context.Context, query string, args ...any) ([]models.Submission, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func submissionArgs(sub models.Submission) ([]any, error) {
	modelsJSON, err := json.Marshal(nonNil(sub.ModelsUsed))
	if err != nil {
		return nil, fmt.Errorf("encode models: %w", err)
	}
	daily, err := json.Marshal(sub.DailyBreakdown)
	if err != nil {
		return nil, fmt.Errorf("encode daily breakdown: %w", err)
	}
	if sub.DailyBreakdown == nil {
		daily = []byte("[]")
	}
	reasons, err := json.Marshal(nonNil(sub.FlagReasons))
	if err != nil {
		return nil, fmt.Errorf("encode flag reasons: %w", err)
	}
	return []any{
		sub.ID, sub.Username, nullString(sub.GitHub.Username), nullString(sub.GitHub.Name), nullString(sub.GitHub.Avatar),
		sub.Totals.InputTokens, sub.Totals.OutputTokens, sub.Totals.CacheCreationTokens, sub.Totals.CacheReadTokens,
		sub.Totals.TotalTokens, sub.Totals.TotalCost,
		sub.DateRange.Start, sub.DateRange.End, string(modelsJSON), string(daily), formatTime(sub.SubmittedAt),
		sub.Verified, nullString(string(sub.Source)), sub.FlaggedForReview, string(reasons),
	}, nil
}

func scanSubmission(row scanner) (models.Submission, error) {
	var (
		sub                                  models.Submission
		ghUsername, ghName, ghAvatar, source sql.NullString
		modelsJSON, dailyJSON, reasonsJSON   string
		submittedAt                          string
	)
	err := row.Scan(
		&sub.ID, &sub.Username, &ghUsername, &ghName, &ghAvatar,
		&sub.Totals.InputTokens, &sub.Totals.OutputTokens, &sub.Totals.CacheCreationTokens, &sub.Totals.CacheReadTokens,
		&sub.Totals.TotalTokens, &sub.Totals.TotalCost,
		&sub.DateRange.Start, &sub.DateRange.End, &modelsJSON, &dailyJSON, &submittedAt, &sub.Verified, &source,
		&sub.FlaggedForReview, &reasonsJSON,
	)
	if err != nil {
		return models.Submission{}, err
	}
	if err := json.Unmarshal([]byte(modelsJSON), &sub.ModelsUsed); err != nil {
		return models.Submission{}, fmt.Errorf("decode models: %w", err)
	}
	if err := json.Unmarshal([]byte(dailyJSON), &sub.DailyBreakdown); err != nil {
		return models.Submission{}, fmt.Errorf("decode daily breakdown: %w", err)
	}
	if err := json.Unmarshal([]byte(reasonsJSON), &sub.FlagReasons); err != nil {
		return models.Submission{}, fmt.Errorf("decode flag reasons: %w", err)
	}
	if sub.SubmittedAt, err = parseTime(submittedAt); err != nil {
		return models.Submission{}, err
	}
	sub.GitHub = models.GitHubIdentity{Username: ghUsername.String, Name: ghName.String, Avatar: ghAvatar.String}
	sub.Source = models.Source(source.String).Normalize()
	return sub, nil
}

func scanProfile(row scanner) (models.Profile, error) {
	var (
		profile                            models.Profile
		ghUsername, ghName, ghAvatar, best sql.NullString
		createdAt                          string
	)
	err := row.Scan(&profile.Username, &ghUsername, &ghName, &ghAvatar, &profile.TotalSubmissions, &best, &createdAt)
	if err != nil {
		return models.Profile{}, err
	}
	if profile.CreatedAt, err = parseTime(createdAt); err != nil {
		return models.Profile{}, err
	}
	profile.GitHub = models.GitHubIdentity{Username: ghUsername.String, Name: ghName.String, Avatar: ghAvatar.String}
	profile.BestSubmissionID = best.String
	return profile, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// Timestamps are stored as fixed-width RFC 3339 text so ORDER BY matches
// chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}
