package detector

import (
	"math"

	"github.com/shopspring/decimal"

	"golang-dedup-service/internal/models"
	"golang-dedup-service/internal/similarity"
)

// Scorer computes the pairwise duplicate confidence between two transactions.
// Scoring is pure: a Scorer holds only its configuration and can be shared
// across goroutines.
type Scorer struct {
	config *Config
}

// NewScorer creates a Scorer with the given configuration. A nil config
// falls back to defaults.
func NewScorer(config *Config) *Scorer {
	if config == nil {
		config = DefaultConfig()
	}
	return &Scorer{config: config}
}

// Score compares two transactions and returns the scored match. The caller
// applies the minimum-confidence filter; Score itself never rejects a pair.
func (s *Scorer) Score(a, b *models.Transaction) *models.DuplicateMatch {
	if s.isExactMatch(a, b) {
		return &models.DuplicateMatch{
			PrimaryID:   a.ID,
			DuplicateID: b.ID,
			Confidence:  1.0,
			Type:        models.MatchExact,
			Reasons:     []string{"Exact match on amount, date, description, and vendor"},
			Action:      models.SuggestActionForConfidence(1.0),
			Primary:     a,
			Duplicate:   b,
		}
	}

	scores := s.ScoreFields(a, b)

	confidence := s.config.Weights.Amount*scores.Amount +
		s.config.Weights.Date*scores.Date +
		s.config.Weights.Vendor*scores.Vendor +
		s.config.Weights.Description*scores.Description
	confidence = math.Max(0.0, math.Min(1.0, confidence))

	return &models.DuplicateMatch{
		PrimaryID:   a.ID,
		DuplicateID: b.ID,
		Confidence:  confidence,
		Type:        classifyMatch(scores),
		Reasons:     buildReasons(scores),
		Action:      models.SuggestActionForConfidence(confidence),
		Primary:     a,
		Duplicate:   b,
	}
}

// isExactMatch checks the shortcut condition: amount, day, description, and
// vendor all identical.
func (s *Scorer) isExactMatch(a, b *models.Transaction) bool {
	return a.Amount.Equal(b.Amount) &&
		a.SameDay(b) &&
		a.Description == b.Description &&
		a.Vendor == b.Vendor
}

// ScoreFields computes the four per-field similarity scores for a pair.
func (s *Scorer) ScoreFields(a, b *models.Transaction) *models.FieldScores {
	return &models.FieldScores{
		Amount:      scoreAmount(a.Amount, b.Amount),
		Date:        scoreDate(a, b),
		Vendor:      scoreText(a.Vendor, b.Vendor),
		Description: scoreText(a.Description, b.Description),
	}
}

// scoreAmount buckets the relative difference between two amounts. Identical
// amounts score 1.0, a difference within 1% scores 0.9, within 5% scores 0.7,
// and anything larger scores 0.0.
func scoreAmount(a, b decimal.Decimal) float64 {
	if a.Equal(b) {
		return 1.0
	}

	absA := a.Abs()
	absB := b.Abs()
	larger := absA
	if absB.GreaterThan(larger) {
		larger = absB
	}
	if larger.IsZero() {
		return 1.0
	}

	diffRatio, _ := a.Sub(b).Abs().Div(larger).Float64()
	switch {
	case diffRatio <= 0.01:
		return 0.9
	case diffRatio <= 0.05:
		return 0.7
	default:
		return 0.0
	}
}

// scoreDate scores the day-level distance between two transactions. Same day
// 1.0, adjacent days 0.8, within three days 0.6, then a linear decay reaching
// zero at seven days. Monotonically non-increasing in the day difference.
func scoreDate(a, b *models.Transaction) float64 {
	days := int(math.Abs(a.Day().Sub(b.Day()).Hours()) / 24)
	switch {
	case days == 0:
		return 1.0
	case days == 1:
		return 0.8
	case days <= 3:
		return 0.6
	default:
		return math.Max(0.0, 1.0-float64(days)/7.0)
	}
}

// scoreText compares two free-text fields after normalization. A missing
// field is treated as the empty string.
func scoreText(a, b string) float64 {
	return similarity.Score(similarity.Normalize(a), similarity.Normalize(b))
}

// classifyMatch maps field scores to a match type. The cases are checked
// strongest-evidence first; exactly one applies to any score combination.
func classifyMatch(scores *models.FieldScores) models.MatchType {
	strongAmount := scores.Amount >= 0.9
	strongDate := scores.Date >= 0.8
	strongVendor := scores.Vendor >= 0.8

	switch {
	case strongAmount && strongDate && strongVendor:
		return models.MatchNearExact
	case strongAmount && strongDate:
		return models.MatchAmountDate
	case strongVendor && strongAmount:
		return models.MatchVendorAmount
	case scores.Description >= 0.8:
		return models.MatchDescription
	default:
		return models.MatchFuzzy
	}
}

// buildReasons produces the ordered human-readable explanations for a match.
func buildReasons(scores *models.FieldScores) []string {
	var reasons []string

	switch {
	case scores.Amount >= 1.0:
		reasons = append(reasons, "Identical amounts")
	case scores.Amount >= 0.9:
		reasons = append(reasons, "Nearly identical amounts")
	case scores.Amount >= 0.7:
		reasons = append(reasons, "Similar amounts")
	}

	switch {
	case scores.Date >= 1.0:
		reasons = append(reasons, "Same date")
	case scores.Date >= 0.8:
		reasons = append(reasons, "Adjacent dates")
	case scores.Date >= 0.6:
		reasons = append(reasons, "Dates within a few days")
	}

	switch {
	case scores.Vendor >= 0.9:
		reasons = append(reasons, "Very similar vendors")
	case scores.Vendor >= 0.7:
		reasons = append(reasons, "Similar vendors")
	}

	switch {
	case scores.Description >= 0.9:
		reasons = append(reasons, "Very similar descriptions")
	case scores.Description >= 0.7:
		reasons = append(reasons, "Similar descriptions")
	}

	return reasons
}
