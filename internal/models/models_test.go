package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testTransaction(id string, amount float64, date time.Time) *Transaction {
	return &Transaction{
		ID:          id,
		UserID:      "user1",
		Date:        date,
		Amount:      decimal.NewFromFloat(amount),
		Description: "coffee",
		Vendor:      "Starbucks",
	}
}

func TestMatchTypeString(t *testing.T) {
	tests := []struct {
		matchType MatchType
		want      string
	}{
		{MatchExact, "exact"},
		{MatchNearExact, "near_exact"},
		{MatchAmountDate, "amount_date"},
		{MatchVendorAmount, "vendor_amount"},
		{MatchDescription, "description"},
		{MatchFuzzy, "fuzzy"},
		{MatchType(99), "unknown"},
	}

	for _, tt := range tests {
		if got := tt.matchType.String(); got != tt.want {
			t.Errorf("MatchType(%d).String() = %s, want %s", tt.matchType, got, tt.want)
		}
	}
}

func TestSuggestActionForConfidence(t *testing.T) {
	tests := []struct {
		confidence float64
		want       SuggestedAction
	}{
		{1.0, ActionAutoMerge},
		{0.95, ActionAutoMerge},
		{0.94, ActionReviewForMerge},
		{0.8, ActionReviewForMerge},
		{0.79, ActionManualReview},
		{0.6, ActionManualReview},
		{0.59, ActionFlagForAttention},
		{0.0, ActionFlagForAttention},
	}

	for _, tt := range tests {
		if got := SuggestActionForConfidence(tt.confidence); got != tt.want {
			t.Errorf("SuggestActionForConfidence(%v) = %s, want %s", tt.confidence, got, tt.want)
		}
	}
}

func TestTransactionValidate(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		modify      func(*Transaction)
		expectError bool
	}{
		{name: "valid", modify: func(tx *Transaction) {}},
		{name: "empty id", modify: func(tx *Transaction) { tx.ID = "" }, expectError: true},
		{name: "zero date", modify: func(tx *Transaction) { tx.Date = time.Time{} }, expectError: true},
		{
			name: "no description or vendor",
			modify: func(tx *Transaction) {
				tx.Description = ""
				tx.Vendor = ""
			},
			expectError: true,
		},
		{
			name: "vendor only",
			modify: func(tx *Transaction) {
				tx.Description = ""
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tx := testTransaction("tx1", 10.00, day)
			tt.modify(tx)

			err := tx.Validate()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestTransactionDayAndSameDay(t *testing.T) {
	morning := testTransaction("tx1", 10.00, time.Date(2024, 3, 1, 8, 15, 0, 0, time.UTC))
	evening := testTransaction("tx2", 10.00, time.Date(2024, 3, 1, 22, 45, 0, 0, time.UTC))
	nextDay := testTransaction("tx3", 10.00, time.Date(2024, 3, 2, 0, 0, 1, 0, time.UTC))

	if !morning.Day().Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Day() = %v, want midnight UTC", morning.Day())
	}
	if !morning.SameDay(evening) {
		t.Error("same calendar day should compare equal regardless of time")
	}
	if morning.SameDay(nextDay) {
		t.Error("different calendar days should not compare equal")
	}
}

func TestTransactionJSONRoundTrip(t *testing.T) {
	original := testTransaction("tx1", 42.50, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if !strings.Contains(string(data), `"amount":"42.5"`) {
		t.Errorf("amount should serialize as a decimal string: %s", data)
	}

	var decoded Transaction
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !decoded.Amount.Equal(original.Amount) {
		t.Errorf("amount = %s, want %s", decoded.Amount, original.Amount)
	}
	if !decoded.Day().Equal(original.Day()) {
		t.Errorf("date = %v, want %v", decoded.Date, original.Date)
	}
	if decoded.ID != original.ID || decoded.Vendor != original.Vendor {
		t.Error("identity fields should survive the round trip")
	}
}

func TestDuplicateMatchValidate(t *testing.T) {
	match := &DuplicateMatch{PrimaryID: "tx1", DuplicateID: "tx2", Confidence: 0.9}
	if err := match.Validate(); err != nil {
		t.Errorf("valid match should pass: %v", err)
	}

	same := &DuplicateMatch{PrimaryID: "tx1", DuplicateID: "tx1", Confidence: 0.9}
	if err := same.Validate(); err == nil {
		t.Error("self-match should fail validation")
	}

	outOfRange := &DuplicateMatch{PrimaryID: "tx1", DuplicateID: "tx2", Confidence: 1.2}
	if err := outOfRange.Validate(); err == nil {
		t.Error("confidence above 1.0 should fail validation")
	}
}

func TestDuplicateGroupValidate(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	group := &DuplicateGroup{
		GroupID: "DUP_tx1",
		Transactions: []*Transaction{
			testTransaction("tx1", 10.00, day),
			testTransaction("tx2", 10.00, day),
		},
		Confidence:   0.9,
		PrimaryID:    "tx1",
		ReviewStatus: ReviewPending,
	}

	if err := group.Validate(); err != nil {
		t.Errorf("valid group should pass: %v", err)
	}

	small := *group
	small.Transactions = group.Transactions[:1]
	if err := small.Validate(); err == nil {
		t.Error("single-member group should fail validation")
	}

	orphan := *group
	orphan.PrimaryID = "tx9"
	if err := orphan.Validate(); err == nil {
		t.Error("primary outside the group should fail validation")
	}

	badStatus := *group
	badStatus.ReviewStatus = "archived"
	if err := badStatus.Validate(); err == nil {
		t.Error("unknown review status should fail validation")
	}
}

func TestDuplicateGroupSupersededIDs(t *testing.T) {
	day := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	group := &DuplicateGroup{
		GroupID: "DUP_tx1",
		Transactions: []*Transaction{
			testTransaction("tx1", 10.00, day),
			testTransaction("tx2", 10.00, day),
			testTransaction("tx3", 10.00, day),
		},
		PrimaryID: "tx2",
	}

	ids := group.SupersededIDs()
	if len(ids) != 2 {
		t.Fatalf("expected 2 superseded ids, got %d", len(ids))
	}
	for _, id := range ids {
		if id == "tx2" {
			t.Error("primary must never be superseded")
		}
	}
}

func TestDuplicateGroupRecomputeAggregates(t *testing.T) {
	group := &DuplicateGroup{
		GroupID: "DUP_tx1",
		Transactions: []*Transaction{
			testTransaction("tx1", 10.00, time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC)),
			testTransaction("tx2", 15.50, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)),
			testTransaction("tx3", -5.00, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)),
		},
		PrimaryID: "tx1",
	}

	group.RecomputeAggregates()

	if group.DuplicateCount != 3 {
		t.Errorf("DuplicateCount = %d, want 3", group.DuplicateCount)
	}
	if !group.TotalAmount.Equal(decimal.NewFromFloat(20.50)) {
		t.Errorf("TotalAmount = %s, want 20.5", group.TotalAmount)
	}
	if !group.EarliestDate.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("EarliestDate = %v", group.EarliestDate)
	}
	if !group.LatestDate.Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("LatestDate = %v", group.LatestDate)
	}
}

func TestMergeOutcomeSucceeded(t *testing.T) {
	clean := &MergeOutcome{GroupID: "DUP_tx1", DeletedIDs: []string{"tx2"}}
	if !clean.Succeeded() {
		t.Error("outcome without failures should report success")
	}

	partial := &MergeOutcome{GroupID: "DUP_tx1", DeletedIDs: []string{"tx2"}, FailedIDs: []string{"tx3"}}
	if partial.Succeeded() {
		t.Error("outcome with failed ids should not report success")
	}

	failed := &MergeOutcome{GroupID: "DUP_tx1", Error: "delete failed"}
	if failed.Succeeded() {
		t.Error("outcome with an error should not report success")
	}
}

func TestDetectionResultGroupFilters(t *testing.T) {
	result := &DetectionResult{
		Groups: []*DuplicateGroup{
			{GroupID: "DUP_a", ReviewStatus: ReviewPending},
			{GroupID: "DUP_b", ReviewStatus: ReviewAutoMerged},
			{GroupID: "DUP_c", ReviewStatus: ReviewMerged},
			{GroupID: "DUP_d", ReviewStatus: ReviewDismissed},
		},
	}

	if got := len(result.PendingGroups()); got != 1 {
		t.Errorf("PendingGroups = %d, want 1", got)
	}
	if got := len(result.MergedGroups()); got != 2 {
		t.Errorf("MergedGroups = %d, want 2", got)
	}
}

func TestParseDateWithFormats(t *testing.T) {
	tests := []struct {
		input       string
		expectError bool
	}{
		{input: "2024-03-01"},
		{input: "2024-03-01T10:30:00Z"},
		{input: "2024-03-01 10:30:00"},
		{input: "03/01/2024"},
		{input: "Mar 1, 2024"},
		{input: "", expectError: true},
		{input: "not-a-date", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			parsed, err := ParseDateWithFormats(tt.input)

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parsed.Year() != 2024 || parsed.Month() != time.March {
				t.Errorf("parsed = %v, want March 2024", parsed)
			}
		})
	}
}

func TestParseDecimalFromString(t *testing.T) {
	tests := []struct {
		input       string
		want        string
		expectError bool
	}{
		{input: "42.50", want: "42.5"},
		{input: "$1,250.00", want: "1250"},
		{input: "-19.99", want: "-19.99"},
		{input: "  10 ", want: "10"},
		{input: "", expectError: true},
		{input: "abc", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			parsed, err := ParseDecimalFromString(tt.input)

			if tt.expectError {
				if err == nil {
					t.Error("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if parsed.String() != tt.want {
				t.Errorf("parsed = %s, want %s", parsed.String(), tt.want)
			}
		})
	}
}
