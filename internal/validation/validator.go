package validation

import (
	"fmt"
	"time"

	"github.com/samber/lo"

	"github.com/ncecere/viberank/internal/models"
	"github.com/ncecere/viberank/internal/timeutil"
)

// tokenTolerance absorbs rounding in upstream token aggregation.
const tokenTolerance = 1

const daysPerYear = 365

// Limits are the realism thresholds applied to incoming reports.
type Limits struct {
	MaxDailyCost    float64
	MaxDailyTokens  int64
	MinCostPerToken float64
	MaxCostPerToken float64
}

// DefaultLimits mirrors the production thresholds.
func DefaultLimits() Limits {
	return Limits{
		MaxDailyCost:    5000,
		MaxDailyTokens:  250_000_000,
		MinCostPerToken: 0.0000001,
		MaxCostPerToken: 0.1,
	}
}

func (l Limits) MaxYearlyCost() float64 { return l.MaxDailyCost * daysPerYear }

func (l Limits) MaxYearlyTokens() int64 { return l.MaxDailyTokens * daysPerYear }

// Result is the verdict for a report that passed validation.
type Result struct {
	Flagged     bool
	FlagReasons []string
}

func (r *Result) flag(reason string) {
	r.Flagged = true
	r.FlagReasons = append(r.FlagReasons, reason)
}

// Validator checks usage reports. It never mutates the report.
type Validator struct {
	limits Limits
	now    func() time.Time
}

func New(limits Limits) *Validator {
	return &Validator{limits: limits, now: time.Now}
}

// WithClock returns a copy of the validator that uses now for future-date checks.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	clone := *v
	clone.now = now
	return &clone
}

// Validate returns a *Error when the report must be rejected. Soft threshold
// violations are reported through Result.Flagged instead.
func (v *Validator) Validate(report models.Report) (Result, error) {
	var result Result
	totals := report.Totals

	if err := v.checkComponents("", totals.Components()); err != nil {
		return Result{}, err
	}
	if !withinTolerance(totals.ComponentTokens(), totals.TotalTokens) {
		return Result{}, newError(CodeTokenMismatch, "", fmt.Sprintf(
			"token totals mismatch: components sum to %d but totalTokens is %d",
			totals.ComponentTokens(), totals.TotalTokens))
	}

	if totals.TotalCost < 0 || totals.TotalTokens < 0 {
		return Result{}, newError(CodeNegativeValues, "", "negative values not allowed")
	}

	if totals.TotalCost > v.limits.MaxYearlyCost() {
		return Result{}, newError(CodeUnrealisticTotals, "", fmt.Sprintf(
			"exceeds realistic limits: total cost $%.2f is above $%.0f", totals.TotalCost, v.limits.MaxYearlyCost()))
	}
	if totals.TotalTokens > v.limits.MaxYearlyTokens() {
		return Result{}, newError(CodeUnrealisticTotals, "", fmt.Sprintf(
			"exceeds realistic limits: %d total tokens is above %d", totals.TotalTokens, v.limits.MaxYearlyTokens()))
	}

	if totals.TotalTokens > 0 {
		ratio := totals.TotalCost / float64(totals.TotalTokens)
		if ratio < v.limits.MinCostPerToken || ratio > v.limits.MaxCostPerToken {
			return Result{}, newError(CodeUnrealisticRatio, "", fmt.Sprintf(
				"unrealistic cost per token: $%.8f", ratio))
		}
	}

	if len(report.Daily) == 0 {
		return Result{}, newError(CodeMissingDaily, "", "no daily usage data provided")
	}

	for _, day := range report.Daily {
		if !timeutil.IsDate(day.Date) {
			return Result{}, newError(CodeInvalidDate, day.Date, fmt.Sprintf(
				"invalid date format: %q (expected YYYY-MM-DD)", day.Date))
		}
		if err := v.checkComponents(day.Date, day.Components()); err != nil {
			return Result{}, err
		}
		if day.TotalTokens < 0 || day.TotalCost < 0 {
			return Result{}, newError(CodeNegativeValues, day.Date, fmt.Sprintf(
				"negative values not allowed on %s", day.Date))
		}
		if !withinTolerance(day.ComponentTokens(), day.TotalTokens) {
			return Result{}, newError(CodeTokenMismatch, day.Date, fmt.Sprintf(
				"token totals mismatch on %s: components sum to %d but totalTokens is %d",
				day.Date, day.ComponentTokens(), day.TotalTokens))
		}

		if day.TotalCost > v.limits.MaxDailyCost {
			result.flag(fmt.Sprintf("daily cost $%.2f on %s exceeds $%.0f", day.TotalCost, day.Date, v.limits.MaxDailyCost))
		}
		if day.TotalTokens > v.limits.MaxDailyTokens {
			result.flag(fmt.Sprintf("daily tokens %d on %s exceed %d", day.TotalTokens, day.Date, v.limits.MaxDailyTokens))
		}
	}

	days := lo.Uniq(lo.Map(report.Daily, func(d models.DailyBreakdown, _ int) string { return d.Date }))
	if avg := totals.TotalCost / float64(len(days)); avg > v.limits.MaxDailyCost/2 {
		result.flag(fmt.Sprintf("average daily cost $%.2f exceeds $%.0f", avg, v.limits.MaxDailyCost/2))
	}

	now := v.now()
	for _, day := range report.Daily {
		parsed, _ := timeutil.ParseDate(day.Date)
		if parsed.After(now) {
			return Result{}, newError(CodeFutureDate, day.Date, fmt.Sprintf("future date detected: %s", day.Date))
		}
	}

	return result, nil
}

// checkComponents bounds every token category by the yearly ceiling so the
// four-way sum cannot overflow.
func (v *Validator) checkComponents(date string, components []int64) error {
	ceiling := v.limits.MaxYearlyTokens()
	for _, n := range components {
		switch {
		case n < 0 && date == "":
			return newError(CodeNegativeValues, "", "negative values not allowed")
		case n < 0:
			return newError(CodeNegativeValues, date, fmt.Sprintf("negative values not allowed on %s", date))
		case n > ceiling && date == "":
			return newError(CodeUnrealisticTotals, "", fmt.Sprintf(
				"exceeds realistic limits: %d tokens in one category is above %d", n, ceiling))
		case n > ceiling:
			return newError(CodeUnrealisticTotals, date, fmt.Sprintf(
				"exceeds realistic limits on %s: %d tokens in one category is above %d", date, n, ceiling))
		}
	}
	return nil
}

// withinTolerance compares without subtracting so extreme totals cannot wrap.
// sum is bounded by checkComponents.
func withinTolerance(sum, total int64) bool {
	return total >= sum-tokenTolerance && total <= sum+tokenTolerance
}
