package leaderboard

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

const topModelCount = 10

type ModelCount struct {
	Model string `json:"model"`
	Count int    `json:"count"`
}

type Stats struct {
	TotalSubmissions int          `json:"totalSubmissions"`
	UniqueUsers      int          `json:"uniqueUsers"`
	TotalCost        float64      `json:"totalCost"`
	TotalTokens      int64        `json:"totalTokens"`
	TopModels        []ModelCount `json:"topModels"`
}

// Stats aggregates unflagged submissions, scanning at most ScanCap of them.
func (r *Reader) Stats(ctx context.Context) (Stats, error) {
	subs, err := r.store.ListSubmissions(ctx, r.cfg.ScanCap)
	if err != nil {
		return Stats{}, fmt.Errorf("query stats: %w", err)
	}
	subs = dropFlagged(subs, false)

	stats := Stats{TotalSubmissions: len(subs)}
	cost := decimal.Zero
	users := make(map[string]struct{}, len(subs))
	modelCounts := make(map[string]int)
	for _, sub := range subs {
		users[strings.ToLower(sub.Username)] = struct{}{}
		cost = cost.Add(decimal.NewFromFloat(sub.Totals.TotalCost))
		stats.TotalTokens += sub.Totals.TotalTokens
		for _, model := range lo.Uniq(sub.ModelsUsed) {
			modelCounts[model]++
		}
	}
	stats.UniqueUsers = len(users)
	stats.TotalCost = cost.Round(2).InexactFloat64()

	counts := lo.MapToSlice(modelCounts, func(model string, count int) ModelCount {
		return ModelCount{Model: model, Count: count}
	})
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Model < counts[j].Model
	})
	if len(counts) > topModelCount {
		counts = counts[:topModelCount]
	}
	stats.TopModels = counts
	return stats, nil
}
