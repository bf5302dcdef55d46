package models

import "github.com/shopspring/decimal"

// Totals carries the aggregate counters of a report or submission.
type Totals struct {
	InputTokens         int64   `json:"inputTokens"`
	OutputTokens        int64   `json:"outputTokens"`
	CacheCreationTokens int64   `json:"cacheCreationTokens"`
	CacheReadTokens     int64   `json:"cacheReadTokens"`
	TotalTokens         int64   `json:"totalTokens"`
	TotalCost           float64 `json:"totalCost"`
}

// Components lists the four token categories.
func (t Totals) Components() []int64 {
	return []int64{t.InputTokens, t.OutputTokens, t.CacheCreationTokens, t.CacheReadTokens}
}

// ComponentTokens sums the four token categories. Callers bound each
// category first; the sum is unchecked.
func (t Totals) ComponentTokens() int64 {
	return t.InputTokens + t.OutputTokens + t.CacheCreationTokens + t.CacheReadTokens
}

// Report is the usage payload produced by the usage-report generator (ccusage --json).
type Report struct {
	Totals Totals           `json:"totals"`
	Daily  []DailyBreakdown `json:"daily"`
}

// SumDaily recomputes totals from daily records. Costs are summed as decimals
// so the result does not drift from the per-day figures.
func SumDaily(days []DailyBreakdown) Totals {
	var totals Totals
	cost := decimal.Zero
	for _, d := range days {
		totals.InputTokens += d.InputTokens
		totals.OutputTokens += d.OutputTokens
		totals.CacheCreationTokens += d.CacheCreationTokens
		totals.CacheReadTokens += d.CacheReadTokens
		totals.TotalTokens += d.TotalTokens
		cost = cost.Add(decimal.NewFromFloat(d.TotalCost))
	}
	totals.TotalCost = cost.InexactFloat64()
	return totals
}
