// Package store defines the persistence capabilities the submission and
// leaderboard services depend on. Each storage technology implements Store
// once; nothing above this package knows which one is active.
package store

import (
	"context"
	"errors"

	"github.com/ncecere/viberank/internal/models"
)

var ErrNotFound = errors.New("not found")

// SortField selects the indexed metric used for ranked reads.
type SortField string

const (
	SortByCost   SortField = "cost"
	SortByTokens SortField = "tokens"
)

func ParseSortField(value string) (SortField, bool) {
	switch SortField(value) {
	case SortByCost, "":
		return SortByCost, true
	case SortByTokens:
		return SortByTokens, true
	default:
		return "", false
	}
}

// Store is the capability set: insert, patch by id, query by username
// equality and sorted descending take-N. Each call is its own atomic unit;
// there are no cross-collection transactions.
type Store interface {
	InsertSubmission(ctx context.Context, sub models.Submission) error
	// UpdateSubmission replaces every mutable field of the submission with the same ID.
	UpdateSubmission(ctx context.Context, sub models.Submission) error
	GetSubmission(ctx context.Context, id string) (models.Submission, error)
	// ListSubmissionsByUsername returns the user's submissions in insertion order.
	// Username comparison is case-insensitive.
	ListSubmissionsByUsername(ctx context.Context, username string) ([]models.Submission, error)
	// TopSubmissions returns up to limit submissions ordered by field descending,
	// ties in insertion order.
	TopSubmissions(ctx context.Context, field SortField, limit int) ([]models.Submission, error)
	// ListSubmissions returns up to limit submissions in insertion order.
	ListSubmissions(ctx context.Context, limit int) ([]models.Submission, error)
	// ListFlaggedSubmissions returns flagged submissions, newest first.
	ListFlaggedSubmissions(ctx context.Context, limit int) ([]models.Submission, error)
	DeleteSubmission(ctx context.Context, id string) error
	// DeleteSubmissionsByUsernamePattern removes submissions whose username matches
	// the glob (`*` wildcard, case-insensitive) and returns the removed ids.
	DeleteSubmissionsByUsernamePattern(ctx context.Context, pattern string) ([]string, error)

	GetProfile(ctx context.Context, username string) (models.Profile, error)
	InsertProfile(ctx context.Context, profile models.Profile) error
	UpdateProfile(ctx context.Context, profile models.Profile) error
	DeleteProfilesByBestSubmission(ctx context.Context, submissionIDs []string) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}
