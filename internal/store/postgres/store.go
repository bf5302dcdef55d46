// Package postgres implements store.Store on top of a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/store"
)

const submissionColumns = `id::text, username, github_username, github_name, github_avatar,
	input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, total_tokens, total_cost,
	date_start, date_end, models_used, daily_breakdown, submitted_at, verified, source,
	flagged_for_review, flag_reasons`

const profileColumns = `username, github_username, github_name, github_avatar,
	total_submissions, best_submission::text, created_at`

// Store persists submissions and profiles in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Store)(nil)

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close is a no-op; the pool is owned by the caller.
func (s *Store) Close() error { return nil }

func (s *Store) InsertSubmission(ctx context.Context, sub models.Submission) error {
	daily, err := json.Marshal(nonNilDaily(sub.DailyBreakdown))
	if err != nil {
		return fmt.Errorf("encode daily breakdown: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO submissions (
			id, username, github_username, github_name, github_avatar,
			input_tokens, output_tokens, cache_creation_tokens, cache_read_tokens, total_tokens, total_cost,
			date_start, date_end, models_used, daily_breakdown, submitted_at, verified, source,
			flagged_for_review, flag_reasons
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)`,
		sub.ID, sub.Username, textOrNull(sub.GitHub.Username), textOrNull(sub.GitHub.Name), textOrNull(sub.GitHub.Avatar),
		sub.Totals.InputTokens, sub.Totals.OutputTokens, sub.Totals.CacheCreationTokens, sub.Totals.CacheReadTokens,
		sub.Totals.TotalTokens, sub.Totals.TotalCost,
		sub.DateRange.Start, sub.DateRange.End, nonNilStrings(sub.ModelsUsed), daily, sub.SubmittedAt,
		sub.Verified, string(sub.Source), sub.FlaggedForReview, nonNilStrings(sub.FlagReasons),
	)
	return err
}

func (s *Store) UpdateSubmission(ctx context.Context, sub models.Submission) error {
	daily, err := json.Marshal(nonNilDaily(sub.DailyBreakdown))
	if err != nil {
		return fmt.Errorf("encode daily breakdown: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE submissions SET
			username = $2, github_username = $3, github_name = $4, github_avatar = $5,
			input_tokens = $6, output_tokens = $7, cache_creation_tokens = $8, cache_read_tokens = $9,
			total_tokens = $10, total_cost = $11, date_start = $12, date_end = $13, models_used = $14,
			daily_breakdown = $15, submitted_at = $16, verified = $17, source = $18,
			flagged_for_review = $19, flag_reasons = $20
		WHERE id = $1::uuid`,
		sub.ID, sub.Username, textOrNull(sub.GitHub.Username), textOrNull(sub.GitHub.Name), textOrNull(sub.GitHub.Avatar),
		sub.Totals.InputTokens, sub.Totals.OutputTokens, sub.Totals.CacheCreationTokens, sub.Totals.CacheReadTokens,
		sub.Totals.TotalTokens, sub.Totals.TotalCost,
		sub.DateRange.Start, sub.DateRange.End, nonNilStrings(sub.ModelsUsed), daily, sub.SubmittedAt,
		sub.Verified, string(sub.Source), sub.FlaggedForReview, nonNilStrings(sub.FlagReasons),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (models.Submission, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+submissionColumns+` FROM submissions WHERE id::text = $1`, id)
	sub, err := scanSubmission(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Submission{}, store.ErrNotFound
	}
	return sub, err
}

func (s *Store) ListSubmissionsByUsername(ctx context.Context, username string) ([]models.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE lower(username) = lower($1) ORDER BY seq`, username)
}

func (s *Store) TopSubmissions(ctx context.Context, field store.SortField, limit int) ([]models.Submission, error) {
	order := "total_cost DESC"
	if field == store.SortByTokens {
		order = "total_tokens DESC"
	}
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions
		ORDER BY `+order+`, seq LIMIT $1`, limit)
}

func (s *Store) ListSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions ORDER BY seq LIMIT $1`, limit)
}

func (s *Store) ListFlaggedSubmissions(ctx context.Context, limit int) ([]models.Submission, error) {
	return s.querySubmissions(ctx, `SELECT `+submissionColumns+` FROM submissions
		WHERE flagged_for_review ORDER BY submitted_at DESC, seq DESC LIMIT $1`, limit)
}

func (s *Store) DeleteSubmission(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM submissions WHERE id::text = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubmissionsByUsernamePattern(ctx context.Context, pattern string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `DELETE FROM submissions
		WHERE lower(username) LIKE $1 ESCAPE '\' RETURNING id::text`, store.LikePattern(pattern))
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}

func (s *Store) GetProfile(ctx context.Context, username string) (models.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+profileColumns+` FROM profiles WHERE lower(username) = lower($1)`, username)
	profile, err := scanProfile(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Profile{}, store.ErrNotFound
	}
	return profile, err
}

func (s *Store) InsertProfile(ctx context.Context, profile models.Profile) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO profiles (username, github_username, github_name, github_avatar, total_submissions, best_submission, created_at)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, '')::uuid, $7)`,
		profile.Username, textOrNull(profile.GitHub.Username), textOrNull(profile.GitHub.Name), textOrNull(profile.GitHub.Avatar),
		profile.TotalSubmissions, profile.BestSubmissionID, profile.CreatedAt,
	)
	return err
}

func (s *Store) UpdateProfile(ctx context.Context, profile models.Profile) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles SET github_username = $2, github_name = $3, github_avatar = $4,
			total_submissions = $5, best_submission = NULLIF($6, '')::uuid
		WHERE lower(username) = lower($1)`,
		profile.Username, textOrNull(profile.GitHub.Username), textOrNull(profile.GitHub.Name), textOrNull(profile.GitHub.Avatar),
		profile.TotalSubmissions, profile.BestSubmissionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteProfilesByBestSubmission(ctx context.Context, submissionIDs []string) (int64, error) {
	if len(submissionIDs) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM profiles WHERE best_submission::text = ANY($1)`, submissionIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) querySubmissions(ctx context.Context, sql string, args ...any) ([]models.Submission, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
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

func scanSubmission(row pgx.Row) (models.Submission, error) {
	var (
		sub                                  models.Submission
		ghUsername, ghName, ghAvatar, source pgtype.Text
		daily                                []byte
		submittedAt                          time.Time
	)
	err := row.Scan(
		&sub.ID, &sub.Username, &ghUsername, &ghName, &ghAvatar,
		&sub.Totals.InputTokens, &sub.Totals.OutputTokens, &sub.Totals.CacheCreationTokens, &sub.Totals.CacheReadTokens,
		&sub.Totals.TotalTokens, &sub.Totals.TotalCost,
		&sub.DateRange.Start, &sub.DateRange.End, &sub.ModelsUsed, &daily, &submittedAt, &sub.Verified, &source,
		&sub.FlaggedForReview, &sub.FlagReasons,
	)
	if err != nil {
		return models.Submission{}, err
	}
	if err := json.Unmarshal(daily, &sub.DailyBreakdown); err != nil {
		return models.Submission{}, fmt.Errorf("decode daily breakdown: %w", err)
	}
	sub.GitHub = models.GitHubIdentity{Username: ghUsername.String, Name: ghName.String, Avatar: ghAvatar.String}
	sub.Source = models.Source(source.String).Normalize()
	sub.SubmittedAt = submittedAt.UTC()
	return sub, nil
}

func scanProfile(row pgx.Row) (models.Profile, error) {
	var (
		profile                      models.Profile
		ghUsername, ghName, ghAvatar pgtype.Text
		best                         pgtype.Text
	)
	err := row.Scan(&profile.Username, &ghUsername, &ghName, &ghAvatar, &profile.TotalSubmissions, &best, &profile.CreatedAt)
	if err != nil {
		return models.Profile{}, err
	}
	profile.GitHub = models.GitHubIdentity{Username: ghUsername.String, Name: ghName.String, Avatar: ghAvatar.String}
	profile.BestSubmissionID = best.String
	profile.CreatedAt = profile.CreatedAt.UTC()
	return profile, nil
}

func textOrNull(value string) pgtype.Text {
	return pgtype.Text{String: value, Valid: value != ""}
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func nonNilDaily(days []models.DailyBreakdown) []models.DailyBreakdown {
	if days == nil {
		return []models.DailyBreakdown{}
	}
	return days
}
