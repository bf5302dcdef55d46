package submissions

import (
	"sort"

	"github.com/samber/lo"

	"github.com/ncecere/viberank/internal/models"
)

// reportRange returns [min, max] over the report's daily dates.
func reportRange(days []models.DailyBreakdown) models.DateRange {
	dates := lo.Map(days, func(d models.DailyBreakdown, _ int) string { return d.Date })
	sort.Strings(dates)
	if len(dates) == 0 {
		return models.DateRange{}
	}
	return models.DateRange{Start: dates[0], End: dates[len(dates)-1]}
}

// findOverlap returns the first submission, in insertion order, from the same
// source whose range overlaps rng.
func findOverlap(existing []models.Submission, source models.Source, rng models.DateRange) (models.Submission, bool) {
	source = source.Normalize()
	return lo.Find(existing, func(sub models.Submission) bool {
		return sub.Source.Normalize() == source && sub.DateRange.Overlaps(rng)
	})
}

// mergeDaily overlays incoming days on top of base, keyed by date. Incoming
// values win. The result is sorted by date.
func mergeDaily(base, incoming []models.DailyBreakdown) []models.DailyBreakdown {
	byDate := make(map[string]models.DailyBreakdown, len(base)+len(incoming))
	for _, d := range base {
		byDate[d.Date] = d
	}
	for _, d := range incoming {
		byDate[d.Date] = d
	}
	dates := lo.Keys(byDate)
	sort.Strings(dates)
	return lo.Map(dates, func(date string, _ int) models.DailyBreakdown { return byDate[date] })
}

func dailyModels(days []models.DailyBreakdown) []string {
	return lo.Uniq(lo.FlatMap(days, func(d models.DailyBreakdown, _ int) []string { return d.ModelsUsed }))
}

// mergeInto folds an incoming report into an existing submission. Flag state
// is sticky; reasons are replaced only when the incoming report is flagged.
func mergeInto(existing models.Submission, in Input, flagged bool, reasons []string) models.Submission {
	merged := existing
	merged.DailyBreakdown = mergeDaily(existing.DailyBreakdown, in.Report.Daily)
	merged.DateRange = reportRange(merged.DailyBreakdown)
	merged.Totals = models.SumDaily(merged.DailyBreakdown)
	merged.ModelsUsed = lo.Uniq(append(append([]string{}, existing.ModelsUsed...), dailyModels(in.Report.Daily)...))
	merged.FlaggedForReview = existing.FlaggedForReview || flagged
	if flagged {
		merged.FlagReasons = reasons
	}
	merged.Verified = existing.Verified || in.Verified
	merged.GitHub = mergeIdentity(existing.GitHub, in.GitHub)
	merged.Source = existing.Source.Normalize()
	return merged
}

func mergeIdentity(existing, incoming models.GitHubIdentity) models.GitHubIdentity {
	if incoming.Username != "" {
		existing.Username = incoming.Username
	}
	if incoming.Name != "" {
		existing.Name = incoming.Name
	}
	if incoming.Avatar != "" {
		existing.Avatar = incoming.Avatar
	}
	return existing
}
