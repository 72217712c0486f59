package detector

import (
	"sort"

	"golang-dedup-service/internal/models"
)

// Pair is an unordered candidate pair of transactions. A holds the earlier
// transaction after date sorting.
type Pair struct {
	A *models.Transaction
	B *models.Transaction
}

// CandidateSelector produces the bounded set of transaction pairs worth
// scoring. Pairing is restricted to a sliding date window, which keeps the
// pair count near O(n*k) for window occupancy k instead of O(n^2).
type CandidateSelector struct {
	config *Config
}

// NewCandidateSelector creates a selector with the given configuration. A
// nil config falls back to defaults.
func NewCandidateSelector(config *Config) *CandidateSelector {
	if config == nil {
		config = DefaultConfig()
	}
	return &CandidateSelector{config: config}
}

// Select returns every pair of transactions whose dates fall within the
// configured window of each other. Transactions below the minimum absolute
// amount are excluded before pairing. The input slice is not modified.
func (cs *CandidateSelector) Select(transactions []*models.Transaction) []Pair {
	eligible := cs.filter(transactions)

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Date.Before(eligible[j].Date)
	})

	windowHours := float64(cs.config.DateWindowDays * 24)

	var pairs []Pair
	for i := 0; i < len(eligible); i++ {
		for j := i + 1; j < len(eligible); j++ {
			gap := eligible[j].Day().Sub(eligible[i].Day()).Hours()
			if gap > windowHours {
				// Sorted input: every later j is farther away still.
				break
			}
			pairs = append(pairs, Pair{A: eligible[i], B: eligible[j]})
		}
	}

	return pairs
}

// filter drops transactions below the minimum absolute amount threshold.
func (cs *CandidateSelector) filter(transactions []*models.Transaction) []*models.Transaction {
	eligible := make([]*models.Transaction, 0, len(transactions))
	for _, tx := range transactions {
		if tx == nil {
			continue
		}
		if tx.AbsAmount().LessThan(cs.config.MinAmountThreshold) {
			continue
		}
		eligible = append(eligible, tx)
	}
	return eligible
}
