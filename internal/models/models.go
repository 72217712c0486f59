// Package models defines the domain types shared across the duplicate
// detection pipeline: transactions, scored matches, duplicate groups, and
// scan results.
package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MatchType classifies the evidence behind a duplicate match. The set is
// closed; classification is performed by a single exhaustive function in the
// detector package.
type MatchType int

const (
	// MatchExact means amount, date, description, and vendor are all
	// identical. These matches carry confidence 1.0.
	MatchExact MatchType = iota

	// MatchNearExact means amount, date, and vendor are all strong but at
	// least one field differs slightly.
	MatchNearExact

	// MatchAmountDate means amount and date are strong but the vendor is
	// weak or missing.
	MatchAmountDate

	// MatchVendorAmount means vendor and amount are strong but the dates
	// drift apart.
	MatchVendorAmount

	// MatchDescription means only the descriptions line up strongly.
	MatchDescription

	// MatchFuzzy is everything else that still clears the caller's minimum
	// confidence.
	MatchFuzzy
)

// String returns the string representation of MatchType.
func (mt MatchType) String() string {
	switch mt {
	case MatchExact:
		return "exact"
	case MatchNearExact:
		return "near_exact"
	case MatchAmountDate:
		return "amount_date"
	case MatchVendorAmount:
		return "vendor_amount"
	case MatchDescription:
		return "description"
	case MatchFuzzy:
		return "fuzzy"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the match type as its string form.
func (mt MatchType) MarshalJSON() ([]byte, error) {
	return json.Marshal(mt.String())
}

// SuggestedAction is the recommended disposition for a match, derived from
// its confidence score.
type SuggestedAction string

const (
	// ActionAutoMerge recommends merging without review (confidence >= 0.95).
	ActionAutoMerge SuggestedAction = "auto_merge"
	// ActionReviewForMerge recommends a quick human confirmation (>= 0.8).
	ActionReviewForMerge SuggestedAction = "review_for_merge"
	// ActionManualReview recommends careful review (>= 0.6).
	ActionManualReview SuggestedAction = "manual_review"
	// ActionFlagForAttention marks low-confidence matches for later triage.
	ActionFlagForAttention SuggestedAction = "flag_for_attention"
)

// SuggestActionForConfidence maps a confidence score to its recommended
// disposition.
func SuggestActionForConfidence(confidence float64) SuggestedAction {
	switch {
	case confidence >= 0.95:
		return ActionAutoMerge
	case confidence >= 0.8:
		return ActionReviewForMerge
	case confidence >= 0.6:
		return ActionManualReview
	default:
		return ActionFlagForAttention
	}
}

// ReviewStatus tracks where a duplicate group sits in the review/merge
// workflow.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending"
	ReviewReviewed   ReviewStatus = "reviewed"
	ReviewMerged     ReviewStatus = "merged"
	ReviewDismissed  ReviewStatus = "dismissed"
	ReviewAutoMerged ReviewStatus = "auto_merged"
)

// IsValid checks if the review status is one of the known states.
func (rs ReviewStatus) IsValid() bool {
	switch rs {
	case ReviewPending, ReviewReviewed, ReviewMerged, ReviewDismissed, ReviewAutoMerged:
		return true
	}
	return false
}

// Transaction is a user's financial transaction record. The detection core
// treats it as read-only; mutation happens only through the bulk-delete
// collaborator during merges.
type Transaction struct {
	ID              string          `json:"id"`
	UserID          string          `json:"user_id"`
	Date            time.Time       `json:"date"`
	Amount          decimal.Decimal `json:"amount"`
	Description     string          `json:"description"`
	Vendor          string          `json:"vendor,omitempty"`
	Category        string          `json:"category,omitempty"`
	Subcategory     string          `json:"subcategory,omitempty"`
	AutoCategorized bool            `json:"auto_categorized,omitempty"`

	// Reviewed marks a transaction a user has already looked at during
	// duplicate review; reviewed transactions are skipped by scans unless
	// explicitly included.
	Reviewed bool `json:"reviewed,omitempty"`
}

// NewTransaction creates a new Transaction instance.
func NewTransaction(id, userID string, date time.Time, amount decimal.Decimal, description string) *Transaction {
	return &Transaction{
		ID:          id,
		UserID:      userID,
		Date:        date,
		Amount:      amount,
		Description: description,
	}
}

// Validate performs basic validation on the Transaction.
func (t *Transaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}

	if t.Date.IsZero() {
		return fmt.Errorf("transaction date cannot be zero")
	}

	if strings.TrimSpace(t.Description) == "" && strings.TrimSpace(t.Vendor) == "" {
		return fmt.Errorf("transaction must have a description or a vendor")
	}

	return nil
}

// Day returns the transaction date truncated to day precision in UTC.
// Duplicate detection compares dates at day granularity only.
func (t *Transaction) Day() time.Time {
	year, month, day := t.Date.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// SameDay reports whether two transactions fall on the same calendar day.
func (t *Transaction) SameDay(other *Transaction) bool {
	return t.Day().Equal(other.Day())
}

// AbsAmount returns the absolute value of the transaction amount.
func (t *Transaction) AbsAmount() decimal.Decimal {
	return t.Amount.Abs()
}

// Equals compares two Transaction instances on the fields duplicate
// detection cares about.
func (t *Transaction) Equals(other *Transaction) bool {
	if other == nil {
		return false
	}

	return t.ID == other.ID &&
		t.Amount.Equal(other.Amount) &&
		t.Day().Equal(other.Day()) &&
		t.Description == other.Description &&
		t.Vendor == other.Vendor
}

// String returns a string representation of the Transaction.
func (t *Transaction) String() string {
	return fmt.Sprintf("Transaction{ID: %s, Date: %s, Amount: %s, Description: %q}",
		t.ID, t.Date.Format("2006-01-02"), t.Amount.String(), t.Description)
}

// MarshalJSON implements custom JSON marshaling for Transaction so amounts
// serialize as exact decimal strings and dates at day precision.
func (t *Transaction) MarshalJSON() ([]byte, error) {
	type Alias Transaction
	return json.Marshal(&struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Amount: t.Amount.String(),
		Date:   t.Date.Format("2006-01-02"),
		Alias:  (*Alias)(t),
	})
}

// UnmarshalJSON implements custom JSON unmarshaling for Transaction.
func (t *Transaction) UnmarshalJSON(data []byte) error {
	type Alias Transaction
	aux := &struct {
		Amount string `json:"amount"`
		Date   string `json:"date"`
		*Alias
	}{
		Alias: (*Alias)(t),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	var err error
	t.Amount, err = decimal.NewFromString(aux.Amount)
	if err != nil {
		return fmt.Errorf("invalid amount format: %w", err)
	}

	t.Date, err = ParseDateWithFormats(aux.Date)
	if err != nil {
		return fmt.Errorf("invalid date format: %w", err)
	}

	return nil
}

// FieldScores holds the per-field 0-1 similarity scores for one transaction
// pair. Ephemeral; produced once per comparison.
type FieldScores struct {
	Amount      float64 `json:"amount"`
	Date        float64 `json:"date"`
	Vendor      float64 `json:"vendor"`
	Description float64 `json:"description"`
}

// DuplicateMatch is a scored pair of transactions believed to represent the
// same real-world event. Immutable once produced.
type DuplicateMatch struct {
	PrimaryID   string          `json:"primary_id"`
	DuplicateID string          `json:"duplicate_id"`
	Confidence  float64         `json:"confidence"`
	Type        MatchType       `json:"match_type"`
	Reasons     []string        `json:"reasons"`
	Action      SuggestedAction `json:"suggested_action"`
	Primary     *Transaction    `json:"primary"`
	Duplicate   *Transaction    `json:"duplicate"`
}

// Validate checks the match invariants: distinct endpoints and a confidence
// inside [0, 1].
func (m *DuplicateMatch) Validate() error {
	if m.PrimaryID == m.DuplicateID {
		return fmt.Errorf("match endpoints must be distinct transactions: %s", m.PrimaryID)
	}

	if m.Confidence < 0.0 || m.Confidence > 1.0 {
		return fmt.Errorf("match confidence must be between 0.0 and 1.0: %f", m.Confidence)
	}

	return nil
}

// DuplicateGroup is a cluster of transactions built by transitively merging
// matches. It always contains at least two members and exactly one primary.
type DuplicateGroup struct {
	GroupID        string         `json:"group_id"`
	Transactions   []*Transaction `json:"transactions"`
	Confidence     float64        `json:"confidence"`
	PrimaryID      string         `json:"primary_id"`
	DuplicateCount int            `json:"duplicate_count"`
	TotalAmount    decimal.Decimal `json:"-"`
	EarliestDate   time.Time      `json:"-"`
	LatestDate     time.Time      `json:"-"`
	ReviewStatus   ReviewStatus   `json:"review_status"`
}

// Validate checks the group invariants.
func (g *DuplicateGroup) Validate() error {
	if len(g.Transactions) < 2 {
		return fmt.Errorf("duplicate group %s must contain at least 2 transactions, has %d",
			g.GroupID, len(g.Transactions))
	}

	if !g.ContainsTransaction(g.PrimaryID) {
		return fmt.Errorf("primary transaction %s is not a member of group %s", g.PrimaryID, g.GroupID)
	}

	if g.Confidence < 0.0 || g.Confidence > 1.0 {
		return fmt.Errorf("group confidence must be between 0.0 and 1.0: %f", g.Confidence)
	}

	if !g.ReviewStatus.IsValid() {
		return fmt.Errorf("invalid review status: %s", g.ReviewStatus)
	}

	return nil
}

// ContainsTransaction reports whether the group holds the given transaction.
func (g *DuplicateGroup) ContainsTransaction(id string) bool {
	for _, tx := range g.Transactions {
		if tx.ID == id {
			return true
		}
	}
	return false
}

// SupersededIDs returns the ids of every member except the primary, i.e. the
// transactions a merge would delete.
func (g *DuplicateGroup) SupersededIDs() []string {
	ids := make([]string, 0, len(g.Transactions)-1)
	for _, tx := range g.Transactions {
		if tx.ID != g.PrimaryID {
			ids = append(ids, tx.ID)
		}
	}
	return ids
}

// RecomputeAggregates refreshes the derived fields from the current
// membership. Must be called whenever membership changes.
func (g *DuplicateGroup) RecomputeAggregates() {
	g.DuplicateCount = len(g.Transactions)
	g.TotalAmount = decimal.Zero

	for i, tx := range g.Transactions {
		g.TotalAmount = g.TotalAmount.Add(tx.Amount)

		day := tx.Day()
		if i == 0 {
			g.EarliestDate = day
			g.LatestDate = day
			continue
		}
		if day.Before(g.EarliestDate) {
			g.EarliestDate = day
		}
		if day.After(g.LatestDate) {
			g.LatestDate = day
		}
	}
}

// MarshalJSON serializes the group with the total amount as a decimal string
// and date-range bounds at day precision.
func (g *DuplicateGroup) MarshalJSON() ([]byte, error) {
	type Alias DuplicateGroup
	return json.Marshal(&struct {
		TotalAmount  string `json:"total_amount"`
		EarliestDate string `json:"earliest_date"`
		LatestDate   string `json:"latest_date"`
		*Alias
	}{
		TotalAmount:  g.TotalAmount.String(),
		EarliestDate: g.EarliestDate.Format("2006-01-02"),
		LatestDate:   g.LatestDate.Format("2006-01-02"),
		Alias:        (*Alias)(g),
	})
}

// MergeOutcome records the result of resolving one duplicate group,
// including partial bulk-delete failures.
type MergeOutcome struct {
	GroupID    string   `json:"group_id"`
	PrimaryID  string   `json:"primary_id"`
	DeletedIDs []string `json:"deleted_ids"`
	FailedIDs  []string `json:"failed_ids,omitempty"`
	Confidence float64  `json:"confidence"`
	Error      string   `json:"error,omitempty"`
}

// Succeeded reports whether the merge completed without failures.
func (o *MergeOutcome) Succeeded() bool {
	return o.Error == "" && len(o.FailedIDs) == 0
}

// BulkDeleteResult is the per-id outcome returned by the bulk-delete
// collaborator.
type BulkDeleteResult struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// AllSucceeded reports whether every requested id was deleted.
func (r *BulkDeleteResult) AllSucceeded() bool {
	return len(r.Failed) == 0
}

// DetectionStats aggregates scan-level statistics.
type DetectionStats struct {
	TotalTransactions   int             `json:"total_transactions"`
	CandidatePairs      int             `json:"candidate_pairs"`
	MatchesFound        int             `json:"matches_found"`
	GroupsFound         int             `json:"groups_found"`
	ByMatchType         map[string]int  `json:"by_match_type"`
	ByConfidenceBucket  map[string]int  `json:"by_confidence_bucket"`
	TotalAmountAffected decimal.Decimal `json:"-"`
	AutoMergedGroups    int             `json:"auto_merged_groups"`
	PendingGroups       int             `json:"pending_groups"`
	MergeFailures       int             `json:"merge_failures"`
}

// MarshalJSON serializes the affected amount as a decimal string.
func (s *DetectionStats) MarshalJSON() ([]byte, error) {
	type Alias DetectionStats
	return json.Marshal(&struct {
		TotalAmountAffected string `json:"total_amount_affected"`
		*Alias
	}{
		TotalAmountAffected: s.TotalAmountAffected.String(),
		Alias:               (*Alias)(s),
	})
}

// DetectionResult is the value object returned from a duplicate scan. It
// always distinguishes groups merged, groups awaiting review, and errors
// encountered, so a single failed merge never fails the whole scan.
type DetectionResult struct {
	ScanID        string            `json:"scan_id"`
	UserID        string            `json:"user_id"`
	WindowStart   time.Time         `json:"window_start"`
	WindowEnd     time.Time         `json:"window_end"`
	MinConfidence float64           `json:"min_confidence"`
	Groups        []*DuplicateGroup `json:"groups"`
	MergeOutcomes []*MergeOutcome   `json:"merge_outcomes,omitempty"`
	Stats         *DetectionStats   `json:"stats"`
	Errors        []string          `json:"errors,omitempty"`
	StartedAt     time.Time         `json:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"`
	Duration      time.Duration     `json:"duration_ns"`
}

// PendingGroups returns the groups still awaiting review.
func (r *DetectionResult) PendingGroups() []*DuplicateGroup {
	var pending []*DuplicateGroup
	for _, g := range r.Groups {
		if g.ReviewStatus == ReviewPending {
			pending = append(pending, g)
		}
	}
	return pending
}

// MergedGroups returns the groups resolved during this scan.
func (r *DetectionResult) MergedGroups() []*DuplicateGroup {
	var merged []*DuplicateGroup
	for _, g := range r.Groups {
		if g.ReviewStatus == ReviewAutoMerged || g.ReviewStatus == ReviewMerged {
			merged = append(merged, g)
		}
	}
	return merged
}

// ParseDateWithFormats attempts to parse a date string using the formats
// commonly seen in exported transaction data.
func ParseDateWithFormats(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("date string cannot be empty")
	}

	formats := []string{
		"2006-01-02",
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"01/02/2006",
		"2006/01/02",
		"Jan 2, 2006",
	}

	var lastErr error
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}

	return time.Time{}, fmt.Errorf("unable to parse date '%s': %w", s, lastErr)
}

// ParseDecimalFromString parses a decimal amount, tolerating common currency
// formatting.
func ParseDecimalFromString(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("amount string cannot be empty")
	}

	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)

	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid decimal format '%s': %w", s, err)
	}

	return d, nil
}
