package models

import "time"

// Source identifies how a submission reached the leaderboard.
type Source string

const (
	SourceCLI   Source = "cli"
	SourceOAuth Source = "oauth"
)

// Normalize maps legacy empty values to oauth, which predates the cli path.
func (s Source) Normalize() Source {
	if s == "" {
		return SourceOAuth
	}
	return s
}

func (s Source) Valid() bool {
	return s == SourceCLI || s == SourceOAuth
}

type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Overlaps reports whether the two inclusive ranges share at least one day.
// Dates are fixed-width YYYY-MM-DD strings so lexicographic order is calendar order.
func (r DateRange) Overlaps(other DateRange) bool {
	return r.Start <= other.End && other.Start <= r.End
}

type DailyBreakdown struct {
	Date                string   `json:"date"`
	InputTokens         int64    `json:"inputTokens"`
	OutputTokens        int64    `json:"outputTokens"`
	CacheCreationTokens int64    `json:"cacheCreationTokens"`
	CacheReadTokens     int64    `json:"cacheReadTokens"`
	TotalTokens         int64    `json:"totalTokens"`
	TotalCost           float64  `json:"totalCost"`
	ModelsUsed          []string `json:"modelsUsed"`
}

// Components lists the four token categories.
func (d DailyBreakdown) Components() []int64 {
	return []int64{d.InputTokens, d.OutputTokens, d.CacheCreationTokens, d.CacheReadTokens}
}

// ComponentTokens sums the four token categories. Callers bound each
// category first; the sum is unchecked.
func (d DailyBreakdown) ComponentTokens() int64 {
	return d.InputTokens + d.OutputTokens + d.CacheCreationTokens + d.CacheReadTokens
}

type GitHubIdentity struct {
	Username string `json:"githubUsername,omitempty"`
	Name     string `json:"githubName,omitempty"`
	Avatar   string `json:"githubAvatar,omitempty"`
}

// Submission is a stored usage report for one user, one source and one date range.
type Submission struct {
	ID               string           `json:"id"`
	Username         string           `json:"username"`
	GitHub           GitHubIdentity   `json:"github"`
	Totals           Totals           `json:"totals"`
	DateRange        DateRange        `json:"dateRange"`
	ModelsUsed       []string         `json:"modelsUsed"`
	DailyBreakdown   []DailyBreakdown `json:"dailyBreakdown"`
	SubmittedAt      time.Time        `json:"submittedAt"`
	Verified         bool             `json:"verified"`
	Source           Source           `json:"source"`
	FlaggedForReview bool             `json:"flaggedForReview"`
	FlagReasons      []string         `json:"flagReasons,omitempty"`
}

// Profile is the per-user aggregate pointing at the user's most recent submission.
type Profile struct {
	Username         string         `json:"username"`
	GitHub           GitHubIdentity `json:"github"`
	TotalSubmissions int            `json:"totalSubmissions"`
	BestSubmissionID string         `json:"bestSubmission"`
	CreatedAt        time.Time      `json:"createdAt"`
}
