// Package detector implements the duplicate detection engine: pairwise
// confidence scoring, candidate selection, and grouping of matches into
// duplicate groups.
//
// The engine uses a multi-stage approach:
//  1. Candidate selection over a sliding date window (bounds work to O(n*k))
//  2. Per-field scoring (amount, date, vendor, description)
//  3. Weighted confidence combination with match-type classification
//  4. Union-find grouping of matches into duplicate groups
//
// Example usage:
//
//	config := detector.DefaultConfig()
//	scorer := detector.NewScorer(config)
//	selector := detector.NewCandidateSelector(config)
//
//	var matches []*models.DuplicateMatch
//	for _, pair := range selector.Select(transactions) {
//		match := scorer.Score(pair.A, pair.B)
//		if match.Confidence >= config.MinConfidence {
//			matches = append(matches, match)
//		}
//	}
//
//	groups := detector.NewGrouper().Group(matches)
package detector

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// FieldWeights defines the relative importance of each field in the combined
// confidence score. The weights must sum to 1.0.
type FieldWeights struct {
	Amount      float64 `json:"amount_weight"`
	Date        float64 `json:"date_weight"`
	Vendor      float64 `json:"vendor_weight"`
	Description float64 `json:"description_weight"`
}

// Validate checks if the field weights are valid.
func (fw *FieldWeights) Validate() error {
	for name, w := range map[string]float64{
		"amount":      fw.Amount,
		"date":        fw.Date,
		"vendor":      fw.Vendor,
		"description": fw.Description,
	} {
		if w < 0.0 || w > 1.0 {
			return fmt.Errorf("%s weight must be between 0.0 and 1.0: %f", name, w)
		}
	}

	total := fw.Amount + fw.Date + fw.Vendor + fw.Description
	if total < 0.99 || total > 1.01 {
		return fmt.Errorf("field weights should sum to 1.0, got %f", total)
	}

	return nil
}

// Config holds the tunable parameters of a duplicate scan. Different
// configurations suit different postures (strict auto-merging vs exploratory
// review); use the factory functions for the common ones.
type Config struct {
	// DateWindowDays bounds candidate selection: pairs whose dates differ by
	// more than this many days are never scored.
	DateWindowDays int `json:"date_window_days"`

	// DateRangeDays is how far back from now the scan fetches transactions.
	DateRangeDays int `json:"date_range_days"`

	// MinConfidence filters scored matches before grouping.
	MinConfidence float64 `json:"min_confidence"`

	// AutoMergeThreshold is the group confidence at or above which the
	// resolver merges without review.
	AutoMergeThreshold float64 `json:"auto_merge_threshold"`

	// MinAmountThreshold excludes noise transactions below this absolute
	// amount from candidacy.
	MinAmountThreshold decimal.Decimal `json:"min_amount_threshold"`

	// MaxTransactionsPerScan is a hard ceiling; scans over it are rejected
	// with a typed error rather than silently truncated.
	MaxTransactionsPerScan int `json:"max_transactions_per_scan"`

	// MaxWorkers sizes the scoring worker pool.
	MaxWorkers int `json:"max_workers"`

	// ScanTimeout is the wall-clock budget for a whole scan.
	ScanTimeout time.Duration `json:"scan_timeout"`

	// IncludeReviewed re-considers transactions from previously reviewed
	// groups.
	IncludeReviewed bool `json:"include_reviewed"`

	// Weights for combining field scores into one confidence.
	Weights FieldWeights `json:"weights"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		DateWindowDays:         7,
		DateRangeDays:          30,
		MinConfidence:          0.5,
		AutoMergeThreshold:     0.95,
		MinAmountThreshold:     decimal.NewFromFloat(0.01),
		MaxTransactionsPerScan: 10000,
		MaxWorkers:             4,
		ScanTimeout:            2 * time.Minute,
		IncludeReviewed:        false,
		Weights: FieldWeights{
			Amount:      0.3,
			Date:        0.2,
			Vendor:      0.25,
			Description: 0.25,
		},
	}
}

// StrictConfig returns a configuration for conservative scanning: only
// very strong matches surface and nothing merges automatically below 0.99.
func StrictConfig() *Config {
	config := DefaultConfig()
	config.DateWindowDays = 3
	config.MinConfidence = 0.8
	config.AutoMergeThreshold = 0.99
	return config
}

// RelaxedConfig returns a configuration for exploratory scanning over a
// wider window with a lower confidence floor.
func RelaxedConfig() *Config {
	config := DefaultConfig()
	config.DateWindowDays = 14
	config.DateRangeDays = 90
	config.MinConfidence = 0.4
	return config
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.DateWindowDays < 0 {
		return fmt.Errorf("date window days cannot be negative: %d", c.DateWindowDays)
	}

	if c.DateRangeDays <= 0 {
		return fmt.Errorf("date range days must be positive: %d", c.DateRangeDays)
	}

	if c.MinConfidence < 0.0 || c.MinConfidence > 1.0 {
		return fmt.Errorf("minimum confidence must be between 0.0 and 1.0: %f", c.MinConfidence)
	}

	if c.AutoMergeThreshold < 0.0 || c.AutoMergeThreshold > 1.0 {
		return fmt.Errorf("auto-merge threshold must be between 0.0 and 1.0: %f", c.AutoMergeThreshold)
	}

	if c.AutoMergeThreshold < c.MinConfidence {
		return fmt.Errorf("auto-merge threshold %f cannot be below minimum confidence %f",
			c.AutoMergeThreshold, c.MinConfidence)
	}

	if c.MinAmountThreshold.IsNegative() {
		return fmt.Errorf("minimum amount threshold cannot be negative: %s", c.MinAmountThreshold.String())
	}

	if c.MaxTransactionsPerScan <= 0 {
		return fmt.Errorf("max transactions per scan must be positive: %d", c.MaxTransactionsPerScan)
	}

	if c.MaxWorkers <= 0 {
		return fmt.Errorf("max workers must be positive: %d", c.MaxWorkers)
	}

	if c.ScanTimeout <= 0 {
		return fmt.Errorf("scan timeout must be positive: %s", c.ScanTimeout)
	}

	if err := c.Weights.Validate(); err != nil {
		return fmt.Errorf("invalid weights: %w", err)
	}

	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}

	clone := *c
	return &clone
}

// String returns a human-readable description of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Window: %dd, Range: %dd, MinConfidence: %.2f, AutoMerge: %.2f, MaxScan: %d}",
		c.DateWindowDays, c.DateRangeDays, c.MinConfidence, c.AutoMergeThreshold, c.MaxTransactionsPerScan)
}
