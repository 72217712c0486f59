package scanner

import (
	"github.com/shopspring/decimal"

	"golang-dedup-service/internal/models"
)

// buildStats aggregates scan-level statistics from the pipeline outputs.
func buildStats(transactionCount, pairCount int, matches []*models.DuplicateMatch,
	groups []*models.DuplicateGroup, outcomes []*models.MergeOutcome) *models.DetectionStats {

	stats := &models.DetectionStats{
		TotalTransactions:   transactionCount,
		CandidatePairs:      pairCount,
		MatchesFound:        len(matches),
		GroupsFound:         len(groups),
		ByMatchType:         make(map[string]int),
		ByConfidenceBucket:  make(map[string]int),
		TotalAmountAffected: decimal.Zero,
	}

	for _, match := range matches {
		stats.ByMatchType[match.Type.String()]++
	}

	for _, group := range groups {
		stats.ByConfidenceBucket[confidenceBucket(group.Confidence)]++
		stats.TotalAmountAffected = stats.TotalAmountAffected.Add(group.TotalAmount.Abs())

		switch group.ReviewStatus {
		case models.ReviewAutoMerged:
			stats.AutoMergedGroups++
		case models.ReviewPending:
			stats.PendingGroups++
		}
	}

	for _, outcome := range outcomes {
		if outcome.Error != "" {
			stats.MergeFailures++
		}
	}

	return stats
}

// confidenceBucket maps a confidence to a coarse histogram bucket for
// reporting.
func confidenceBucket(confidence float64) string {
	switch {
	case confidence >= 0.95:
		return "0.95-1.00"
	case confidence >= 0.8:
		return "0.80-0.95"
	case confidence >= 0.6:
		return "0.60-0.80"
	default:
		return "below-0.60"
	}
}
