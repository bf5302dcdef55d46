// Package leaderboard ranks stored submissions by cost or tokens.
package leaderboard

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/samber/lo"

	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/store"
	"github.com/ncecere/viberank/internal/timeutil"
)

var ErrInvalidSort = errors.New("sortBy must be one of: cost, tokens")

const (
	DefaultLimit    = 50
	DefaultMaxLimit = 200
	DefaultScanCap  = 1000
)

type Config struct {
	DefaultLimit int
	MaxLimit     int
	// ScanCap bounds full scans used for date-filtered reads and stats.
	ScanCap int
}

func (c Config) withDefaults() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.ScanCap <= 0 {
		c.ScanCap = DefaultScanCap
	}
	return c
}

type Query struct {
	SortBy         store.SortField
	Limit          int
	Dates          timeutil.DateFilter
	IncludeFlagged bool
}

type Reader struct {
	store store.Store
	cfg   Config
}

func NewReader(st store.Store, cfg Config) *Reader {
	return &Reader{store: st, cfg: cfg.withDefaults()}
}

func (r *Reader) Config() Config { return r.cfg }

// List returns submissions ranked by the requested metric, highest first.
// With a date filter each submission's totals, models and range are
// recomputed from the days inside the filter; submissions with no such days
// are dropped. Ties keep their storage order.
func (r *Reader) List(ctx context.Context, q Query) ([]models.Submission, error) {
	field, ok := store.ParseSortField(string(q.SortBy))
	if !ok {
		return nil, ErrInvalidSort
	}
	limit := r.clampLimit(q.Limit)

	if !q.Dates.Active() {
		subs, err := r.store.TopSubmissions(ctx, field, limit*2)
		if err != nil {
			return nil, fmt.Errorf("query leaderboard: %w", err)
		}
		subs = dropFlagged(subs, q.IncludeFlagged)
		return truncate(subs, limit), nil
	}

	subs, err := r.store.ListSubmissions(ctx, r.cfg.ScanCap)
	if err != nil {
		return nil, fmt.Errorf("query leaderboard: %w", err)
	}
	subs = dropFlagged(subs, q.IncludeFlagged)

	filtered := make([]models.Submission, 0, len(subs))
	for _, sub := range subs {
		if restricted, ok := restrict(sub, q.Dates); ok {
			filtered = append(filtered, restricted)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		if field == store.SortByTokens {
			return filtered[i].Totals.TotalTokens > filtered[j].Totals.TotalTokens
		}
		return filtered[i].Totals.TotalCost > filtered[j].Totals.TotalCost
	})
	return truncate(filtered, limit), nil
}

func (r *Reader) clampLimit(limit int) int {
	if limit <= 0 {
		return r.cfg.DefaultLimit
	}
	if limit > r.cfg.MaxLimit {
		return r.cfg.MaxLimit
	}
	return limit
}

// restrict keeps only the days inside the filter and recomputes the derived
// fields from them.
func restrict(sub models.Submission, dates timeutil.DateFilter) (models.Submission, bool) {
	days := lo.Filter(sub.DailyBreakdown, func(d models.DailyBreakdown, _ int) bool {
		return dates.Contains(d.Date)
	})
	if len(days) == 0 {
		return models.Submission{}, false
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	sub.DailyBreakdown = days
	sub.Totals = models.SumDaily(days)
	sub.ModelsUsed = lo.Uniq(lo.FlatMap(days, func(d models.DailyBreakdown, _ int) []string { return d.ModelsUsed }))
	sub.DateRange = models.DateRange{Start: days[0].Date, End: days[len(days)-1].Date}
	return sub, true
}

func dropFlagged(subs []models.Submission, includeFlagged bool) []models.Submission {
	if includeFlagged {
		return subs
	}
	return lo.Filter(subs, func(sub models.Submission, _ int) bool { return !sub.FlaggedForReview })
}

func truncate(subs []models.Submission, limit int) []models.Submission {
	if subs == nil {
		return []models.Submission{}
	}
	if len(subs) > limit {
		return subs[:limit]
	}
	return subs
}
