// Package submissions accepts usage reports, merges them into a user's
// existing submissions and keeps the per-user profile aggregate current.
package submissions

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/store"
	"github.com/ncecere/viberank/internal/validation"
)

const previewScanLimit = 10000

// Notifier is told about submissions that were accepted but flagged.
type Notifier interface {
	NotifyFlagged(ctx context.Context, sub models.Submission) error
}

// Archiver keeps the raw body of accepted reports.
type Archiver interface {
	Archive(ctx context.Context, username, submissionID string, raw []byte) error
}

// Input is an authenticated usage report ready for intake.
type Input struct {
	Username string
	GitHub   models.GitHubIdentity
	Source   models.Source
	Verified bool
	Report   models.Report
	// Raw is the request body as received; archived when set.
	Raw []byte
}

type Result struct {
	SubmissionID string
	Merged       bool
	Flagged      bool
	FlagReasons  []string
}

type Service struct {
	store     store.Store
	validator *validation.Validator
	notifier  Notifier
	archiver  Archiver
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(st store.Store, validator *validation.Validator, logger *slog.Logger) *Service {
	if validator == nil {
		validator = validation.New(validation.DefaultLimits())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     st,
		validator: validator,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) WithNotifier(n Notifier) *Service {
	s.notifier = n
	return s
}

func (s *Service) WithArchiver(a Archiver) *Service {
	s.archiver = a
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	if now != nil {
		s.now = now
	}
	return s
}

// Submit validates the report and upserts it. Validation failures are
// returned as *validation.Error and nothing is written.
func (s *Service) Submit(ctx context.Context, in Input) (Result, error) {
	verdict, err := s.validator.Validate(in.Report)
	if err != nil {
		return Result{}, err
	}
	res, err := s.Upsert(ctx, in, verdict)
	if err != nil {
		return Result{}, err
	}

	s.archive(ctx, in, res.SubmissionID)
	if verdict.Flagged && s.notifier != nil {
		sub, err := s.store.GetSubmission(ctx, res.SubmissionID)
		if err == nil {
			err = s.notifier.NotifyFlagged(ctx, sub)
		}
		if err != nil {
			s.logger.WarnContext(ctx, "review notification failed",
				slog.String("submission_id", res.SubmissionID),
				slog.String("error", err.Error()))
		}
	}
	return res, nil
}

// Upsert writes an already validated report. An existing submission from the
// same source with an overlapping date range is patched in place; otherwise a
// new submission is inserted. The profile is written afterwards as a separate
// operation.
func (s *Service) Upsert(ctx context.Context, in Input, verdict validation.Result) (Result, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Source = in.Source.Normalize()

	existing, err := s.store.ListSubmissionsByUsername(ctx, in.Username)
	if err != nil {
		return Result{}, storageErr("query", err)
	}

	now := s.now().UTC()
	rng := reportRange(in.Report.Daily)
	res := Result{Flagged: verdict.Flagged, FlagReasons: verdict.FlagReasons}

	if match, ok := findOverlap(existing, in.Source, rng); ok {
		merged := mergeInto(match, in, verdict.Flagged, verdict.FlagReasons)
		merged.SubmittedAt = now
		if err := s.store.UpdateSubmission(ctx, merged); err != nil {
			return Result{}, storageErr("update", err)
		}
		res.SubmissionID = merged.ID
		res.Merged = true
		res.Flagged = merged.FlaggedForReview
		res.FlagReasons = merged.FlagReasons
	} else {
		sub := models.Submission{
			ID:               uuid.NewString(),
			Username:         in.Username,
			GitHub:           in.GitHub,
			Totals:           in.Report.Totals,
			DateRange:        rng,
			ModelsUsed:       dailyModels(in.Report.Daily),
			DailyBreakdown:   mergeDaily(nil, in.Report.Daily),
			SubmittedAt:      now,
			Verified:         in.Verified,
			Source:           in.Source,
			FlaggedForReview: verdict.Flagged,
			FlagReasons:      verdict.FlagReasons,
		}
		if err := s.store.InsertSubmission(ctx, sub); err != nil {
			return Result{}, storageErr("create", err)
		}
		res.SubmissionID = sub.ID
	}

	if err := s.touchProfile(ctx, in.Username, in.GitHub, res.SubmissionID, !res.Merged); err != nil {
		return Result{}, err
	}
	return res, nil
}

// touchProfile points the profile at submissionID, creating it when absent.
// The submission count grows only for newly inserted submissions.
func (s *Service) touchProfile(ctx context.Context, username string, identity models.GitHubIdentity, submissionID string, inserted bool) error {
	profile, err := s.store.GetProfile(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		profile = models.Profile{
			Username:         username,
			GitHub:           identity,
			TotalSubmissions: 1,
			BestSubmissionID: submissionID,
			CreatedAt:        s.now().UTC(),
		}
		if err := s.store.InsertProfile(ctx, profile); err != nil {
			return storageErr("create", err)
		}
		return nil
	case err != nil:
		return storageErr("query", err)
	}

	profile.BestSubmissionID = submissionID
	profile.GitHub = mergeIdentity(profile.GitHub, identity)
	if inserted {
		profile.TotalSubmissions++
	}
	if err := s.store.UpdateProfile(ctx, profile); err != nil {
		return storageErr("update", err)
	}
	return nil
}

func (s *Service) archive(ctx context.Context, in Input, submissionID string) {
	if s.archiver == nil {
		return
	}
	raw := in.Raw
	if len(raw) == 0 {
		var err error
		if raw, err = json.Marshal(in.Report); err != nil {
			return
		}
	}
	if err := s.archiver.Archive(ctx, in.Username, submissionID, raw); err != nil {
		s.logger.WarnContext(ctx, "report archive failed",
			slog.String("submission_id", submissionID),
			slog.String("error", err.Error()))
	}
}

// Get returns a single submission.
func (s *Service) Get(ctx context.Context, id string) (models.Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Submission{}, ErrNotFound
	}
	if err != nil {
		return models.Submission{}, storageErr("query", err)
	}
	return sub, nil
}

type ProfileView struct {
	Profile     models.Profile      `json:"profile"`
	Submissions []models.Submission `json:"submissions"`
}

// Profile returns the profile and every submission under the username.
func (s *Service) Profile(ctx context.Context, username string) (ProfileView, error) {
	profile, err := s.store.GetProfile(ctx, strings.TrimSpace(username))
	if errors.Is(err, store.ErrNotFound) {
		return ProfileView{}, ErrProfileNotFound
	}
	if err != nil {
		return ProfileView{}, storageErr("query", err)
	}
	subs, err := s.store.ListSubmissionsByUsername(ctx, profile.Username)
	if err != nil {
		return ProfileView{}, storageErr("query", err)
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	return ProfileView{Profile: profile, Submissions: subs}, nil
}

// Claim attaches a GitHub identity to an unverified submission made under
// that login and marks it verified.
func (s *Service) Claim(ctx context.Context, id string, identity models.GitHubIdentity) (models.Submission, error) {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return models.Submission{}, err
	}
	if sub.Verified {
		return models.Submission{}, ErrAlreadyVerified
	}
	login := strings.TrimSpace(identity.Username)
	owns := login != "" && (strings.EqualFold(login, sub.Username) ||
		(sub.GitHub.Username != "" && strings.EqualFold(login, sub.GitHub.Username)))
	if !owns {
		return models.Submission{}, ErrForbidden
	}

	sub.GitHub = mergeIdentity(sub.GitHub, identity)
	sub.Verified = true
	if err := s.store.UpdateSubmission(ctx, sub); err != nil {
		return models.Submission{}, storageErr("update", err)
	}

	profile, err := s.store.GetProfile(ctx, sub.Username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		err = s.store.InsertProfile(ctx, models.Profile{
			Username:         sub.Username,
			GitHub:           sub.GitHub,
			TotalSubmissions: 1,
			BestSubmissionID: sub.ID,
			CreatedAt:        s.now().UTC(),
		})
		if err != nil {
			return models.Submission{}, storageErr("create", err)
		}
	case err != nil:
		return models.Submission{}, storageErr("query", err)
	default:
		profile.GitHub = mergeIdentity(profile.GitHub, sub.GitHub)
		if err := s.store.UpdateProfile(ctx, profile); err != nil {
			return models.Submission{}, storageErr("update", err)
		}
	}
	return sub, nil
}

// ListFlagged returns submissions awaiting review, newest first.
func (s *Service) ListFlagged(ctx context.Context, limit int) ([]models.Submission, error) {
	subs, err := s.store.ListFlaggedSubmissions(ctx, limit)
	if err != nil {
		return nil, storageErr("query", err)
	}
	if subs == nil {
		subs = []models.Submission{}
	}
	return subs, nil
}

// Review resolves a flagged submission. Approval clears the flag, rejection
// deletes the submission.
func (s *Service) Review(ctx context.Context, id string, approve bool) error {
	sub, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if !approve {
		if err := s.store.DeleteSubmission(ctx, id); err != nil {
			return storageErr("delete", err)
		}
		if _, err := s.store.DeleteProfilesByBestSubmission(ctx, []string{id}); err != nil {
			return storageErr("delete", err)
		}
		return nil
	}
	sub.FlaggedForReview = false
	sub.FlagReasons = nil
	if err := s.store.UpdateSubmission(ctx, sub); err != nil {
		return storageErr("update", err)
	}
	return nil
}

type PurgeResult struct {
	Usernames          []string `json:"usernames"`
	SubmissionsDeleted int      `json:"submissionsDeleted"`
	ProfilesDeleted    int64    `json:"profilesDeleted"`
	DryRun             bool     `json:"dryRun"`
}

// Purge deletes every submission whose username matches pattern (`*` is the
// only wildcard, matching is case-insensitive) along with profiles pointing
// at them. With dryRun nothing is deleted.
func (s *Service) Purge(ctx context.Context, pattern string, dryRun bool) (PurgeResult, error) {
	pattern = strings.TrimSpace(pattern)
	if strings.Trim(pattern, "*") == "" {
		return PurgeResult{}, ErrInvalidPattern
	}

	matched, err := s.matching(ctx, pattern)
	if err != nil {
		return PurgeResult{}, err
	}
	if dryRun {
		return PurgeResult{
			Usernames:          usernames(matched),
			SubmissionsDeleted: len(matched),
			DryRun:             true,
		}, nil
	}

	ids, err := s.store.DeleteSubmissionsByUsernamePattern(ctx, pattern)
	if err != nil {
		return PurgeResult{}, storageErr("delete", err)
	}
	profiles, err := s.store.DeleteProfilesByBestSubmission(ctx, ids)
	if err != nil {
		return PurgeResult{}, storageErr("delete", err)
	}
	s.logger.InfoContext(ctx, "submissions purged",
		slog.String("pattern", pattern),
		slog.Int("submissions", len(ids)),
		slog.Int64("profiles", profiles))
	return PurgeResult{
		Usernames:          usernames(matched),
		SubmissionsDeleted: len(ids),
		ProfilesDeleted:    profiles,
	}, nil
}

func (s *Service) matching(ctx context.Context, pattern string) ([]models.Submission, error) {
	all, err := s.store.ListSubmissions(ctx, previewScanLimit)
	if err != nil {
		return nil, storageErr("query", err)
	}
	return lo.Filter(all, func(sub models.Submission, _ int) bool {
		return store.MatchGlob(pattern, sub.Username)
	}), nil
}

func usernames(subs []models.Submission) []string {
	names := lo.Uniq(lo.Map(subs, func(sub models.Submission, _ int) string { return sub.Username }))
	if names == nil {
		names = []string{}
	}
	return names
}
