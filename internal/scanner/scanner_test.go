package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golang-dedup-service/internal/detector"
	"golang-dedup-service/internal/models"
	dedupErrors "golang-dedup-service/pkg/errors"
)

// fakeSource serves a fixed transaction slice and can simulate outages.
type fakeSource struct {
	transactions []*models.Transaction
	err          error

	mu      sync.Mutex
	fetches int
	block   chan struct{}
}

func (f *fakeSource) GetTransactions(ctx context.Context, userID string, start, end time.Time, minAmount decimal.Decimal) ([]*models.Transaction, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	var out []*models.Transaction
	for _, t := range f.transactions {
		if t.UserID == userID && !t.AbsAmount().LessThan(minAmount) {
			out = append(out, t)
		}
	}
	return out, nil
}

// fakeDeleter records delete calls and can fail specific ids or the whole
// batch.
type fakeDeleter struct {
	mu       sync.Mutex
	calls    [][]string
	backups  []bool
	failIDs  map[string]bool
	batchErr error
}

func (f *fakeDeleter) BulkDelete(ctx context.Context, ids []string, backup bool) (*models.BulkDeleteResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, ids)
	f.backups = append(f.backups, backup)

	if f.batchErr != nil {
		return nil, f.batchErr
	}

	result := &models.BulkDeleteResult{Failed: make(map[string]string)}
	for _, id := range ids {
		if f.failIDs[id] {
			result.Failed[id] = "simulated failure"
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result, nil
}

func scanTx(id string, dayOffset int, amount float64, description, vendor string) *models.Transaction {
	return &models.Transaction{
		ID:          id,
		UserID:      "user1",
		Date:        time.Now().UTC().AddDate(0, 0, -dayOffset),
		Amount:      decimal.NewFromFloat(amount),
		Description: description,
		Vendor:      vendor,
	}
}

func newService(t *testing.T, source TransactionSource, deleter BulkDeleter, config *detector.Config) *DetectionService {
	t.Helper()

	svc, err := NewDetectionService(source, deleter, config, nil)
	if err != nil {
		t.Fatalf("NewDetectionService failed: %v", err)
	}
	return svc
}

func TestScanFindsDuplicates(t *testing.T) {
	source := &fakeSource{transactions: []*models.Transaction{
		scanTx("tx1", 2, 42.50, "STARBUCKS #123", "Starbucks"),
		scanTx("tx2", 2, 42.50, "STARBUCKS #123", "Starbucks"),
		scanTx("tx3", 5, 1200.00, "rent payment", "Landlord"),
	}}

	svc := newService(t, source, &fakeDeleter{}, nil)

	result, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.Groups) != 1 {
		t.Fatalf("expected 1 duplicate group, got %d", len(result.Groups))
	}

	group := result.Groups[0]
	if group.Confidence != 1.0 {
		t.Errorf("exact duplicates should group at confidence 1.0, got %f", group.Confidence)
	}
	if group.ReviewStatus != models.ReviewPending {
		t.Errorf("advisory scan should leave groups pending, got %s", group.ReviewStatus)
	}
	if result.Stats.TotalTransactions != 3 {
		t.Errorf("stats total = %d, want 3", result.Stats.TotalTransactions)
	}
	if result.ScanID == "" {
		t.Error("scan id should be set")
	}
}

func TestScanSkipsReviewedTransactions(t *testing.T) {
	reviewed := scanTx("tx2", 2, 42.50, "STARBUCKS #123", "Starbucks")
	reviewed.Reviewed = true

	source := &fakeSource{transactions: []*models.Transaction{
		scanTx("tx1", 2, 42.50, "STARBUCKS #123", "Starbucks"),
		reviewed,
	}}
	svc := newService(t, source, &fakeDeleter{}, nil)

	result, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Groups) != 0 {
		t.Errorf("reviewed transactions should not form groups, got %d", len(result.Groups))
	}
	if result.Stats.TotalTransactions != 1 {
		t.Errorf("stats total = %d, want 1 after excluding the reviewed transaction",
			result.Stats.TotalTransactions)
	}

	result, err = svc.Scan(context.Background(), &ScanRequest{UserID: "user1", IncludeReviewed: true})
	if err != nil {
		t.Fatalf("Scan with IncludeReviewed failed: %v", err)
	}
	if len(result.Groups) != 1 {
		t.Fatalf("IncludeReviewed should restore the pair, got %d groups", len(result.Groups))
	}
	if result.Stats.TotalTransactions != 2 {
		t.Errorf("stats total = %d, want 2 with reviewed included", result.Stats.TotalTransactions)
	}
}

func TestScanConfigIncludesReviewed(t *testing.T) {
	reviewed := scanTx("tx2", 2, 42.50, "STARBUCKS #123", "Starbucks")
	reviewed.Reviewed = true

	source := &fakeSource{transactions: []*models.Transaction{
		scanTx("tx1", 2, 42.50, "STARBUCKS #123", "Starbucks"),
		reviewed,
	}}

	config := detector.DefaultConfig()
	config.IncludeReviewed = true
	svc := newService(t, source, &fakeDeleter{}, config)

	result, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}
	if len(result.Groups) != 1 {
		t.Errorf("config-level IncludeReviewed should keep reviewed transactions, got %d groups",
			len(result.Groups))
	}
}

func TestScanEmptyWindow(t *testing.T) {
	svc := newService(t, &fakeSource{}, &fakeDeleter{}, nil)

	result, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	if err != nil {
		t.Fatalf("empty window should not error: %v", err)
	}
	if len(result.Groups) != 0 {
		t.Errorf("expected no groups, got %d", len(result.Groups))
	}
	if result.Stats == nil || result.Stats.TotalTransactions != 0 {
		t.Error("expected zeroed stats for empty window")
	}
}

func TestScanRejectsOversizedSet(t *testing.T) {
	config := detector.DefaultConfig()
	config.MaxTransactionsPerScan = 5

	var txs []*models.Transaction
	for i := 0; i < 6; i++ {
		txs = append(txs, scanTx(fmt.Sprintf("tx%d", i), i%3, 10.00+float64(i), "item", "Shop"))
	}

	svc := newService(t, &fakeSource{transactions: txs}, &fakeDeleter{}, config)

	_, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	if err == nil {
		t.Fatal("expected scan ceiling error")
	}

	dedupErr, ok := dedupErrors.AsDedupError(err)
	if !ok || dedupErr.Code != dedupErrors.CodeScanTooLarge {
		t.Errorf("expected scan_too_large error, got %v", err)
	}
}

func TestScanSourceFailureAborts(t *testing.T) {
	source := &fakeSource{err: errors.New("connection refused")}
	svc := newService(t, source, &fakeDeleter{}, nil)

	_, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	if err == nil {
		t.Fatal("expected scan to abort when the source is unavailable")
	}
}

func TestScanRequestValidation(t *testing.T) {
	svc := newService(t, &fakeSource{}, &fakeDeleter{}, nil)

	tests := []struct {
		name string
		req  *ScanRequest
	}{
		{"nil request", nil},
		{"missing user", &ScanRequest{}},
		{"confidence above one", &ScanRequest{UserID: "user1", MinConfidence: 1.2}},
		{"negative range", &ScanRequest{UserID: "user1", DateRangeDays: -5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Scan(context.Background(), tt.req); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestScanAutoMerge(t *testing.T) {
	source := &fakeSource{transactions: []*models.Transaction{
		scanTx("tx1", 2, 42.50, "STARBUCKS #123", "Starbucks"),
		scanTx("tx2", 2, 42.50, "STARBUCKS #123", "Starbucks"),
	}}
	deleter := &fakeDeleter{}

	svc := newService(t, source, deleter, nil)

	result, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1", AutoMerge: true})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	if len(result.MergeOutcomes) != 1 {
		t.Fatalf("expected 1 merge outcome, got %d", len(result.MergeOutcomes))
	}
	outcome := result.MergeOutcomes[0]
	if !outcome.Succeeded() {
		t.Errorf("merge should succeed, got error %q", outcome.Error)
	}
	if len(outcome.DeletedIDs) != 1 {
		t.Errorf("expected 1 deleted id, got %v", outcome.DeletedIDs)
	}
	if result.Groups[0].ReviewStatus != models.ReviewAutoMerged {
		t.Errorf("group status = %s, want auto_merged", result.Groups[0].ReviewStatus)
	}

	// Auto-merge does not request a backup snapshot.
	if len(deleter.backups) != 1 || deleter.backups[0] {
		t.Errorf("auto-merge backups = %v, want [false]", deleter.backups)
	}
}

func TestScanPartialDeleteFailureDoesNotAbort(t *testing.T) {
	// Two auto-mergeable groups; deletion fails for one id in the first.
	// The scan must still complete and the second group must still merge.
	source := &fakeSource{transactions: []*models.Transaction{
		scanTx("tx1", 1, 42.50, "STARBUCKS #123", "Starbucks"),
		scanTx("tx2", 1, 42.50, "STARBUCKS #123", "Starbucks"),
		scanTx("tx3", 2, 19.99, "NETFLIX.COM", "Netflix"),
		scanTx("tx4", 2, 19.99, "NETFLIX.COM", "Netflix"),
	}}
	deleter := &fakeDeleter{failIDs: map[string]bool{"tx2": true}}

	svc := newService(t, source, deleter, nil)

	result, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1", AutoMerge: true})
	if err != nil {
		t.Fatalf("partial merge failure must not abort the scan: %v", err)
	}

	if len(result.MergeOutcomes) != 2 {
		t.Fatalf("expected 2 merge outcomes, got %d", len(result.MergeOutcomes))
	}

	var failed, succeeded int
	for _, outcome := range result.MergeOutcomes {
		if outcome.Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	if failed != 1 || succeeded != 1 {
		t.Errorf("expected 1 failed and 1 succeeded outcome, got %d/%d", failed, succeeded)
	}
	if len(result.Errors) != 1 {
		t.Errorf("expected 1 recorded error, got %v", result.Errors)
	}
	if result.Stats.MergeFailures != 1 {
		t.Errorf("stats merge failures = %d, want 1", result.Stats.MergeFailures)
	}
}

func TestScanBelowThresholdNotMerged(t *testing.T) {
	// Similar but not identical: confidence below 0.95 must stay pending and
	// never reach the deleter.
	source := &fakeSource{transactions: []*models.Transaction{
		scanTx("tx1", 1, 100.00, "dinner downtown", "Bistro"),
		scanTx("tx2", 2, 101.00, "dinner downtown", "Bistro"),
	}}
	deleter := &fakeDeleter{}

	svc := newService(t, source, deleter, nil)

	result, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1", AutoMerge: true})
	if err != nil {
		t.Fatalf("Scan failed: %v", err)
	}

	for _, group := range result.Groups {
		if group.Confidence >= 0.95 {
			t.Fatalf("test premise broken: group confidence %f", group.Confidence)
		}
		if group.ReviewStatus != models.ReviewPending {
			t.Errorf("below-threshold group status = %s, want pending", group.ReviewStatus)
		}
	}
	if len(deleter.calls) != 0 {
		t.Errorf("deleter should not be called below threshold, got %d calls", len(deleter.calls))
	}
}

func TestConcurrentScansSameUserRejected(t *testing.T) {
	block := make(chan struct{})
	source := &fakeSource{block: block}
	svc := newService(t, source, &fakeDeleter{}, nil)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	}()

	// Wait for the first scan to reach the source fetch.
	deadline := time.After(2 * time.Second)
	for {
		source.mu.Lock()
		started := source.fetches > 0
		source.mu.Unlock()
		if started {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first scan never started")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"})
	if err == nil {
		t.Error("expected second scan for the same user to be rejected")
	} else if dedupErr, ok := dedupErrors.AsDedupError(err); !ok || dedupErr.Code != dedupErrors.CodeScanInProgress {
		t.Errorf("expected scan_in_progress error, got %v", err)
	}

	// A different user is unaffected.
	if _, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user2"}); err != nil {
		t.Errorf("scan for another user should proceed: %v", err)
	}

	close(block)
	wg.Wait()

	// The lock is released once the first scan finishes.
	if _, err := svc.Scan(context.Background(), &ScanRequest{UserID: "user1"}); err != nil {
		t.Errorf("scan after release should proceed: %v", err)
	}
}

func TestManualMerge(t *testing.T) {
	deleter := &fakeDeleter{}
	svc := newService(t, &fakeSource{}, deleter, nil)

	a := scanTx("tx1", 0, 10.00, "coffee", "Cafe")
	b := scanTx("tx2", 0, 10.00, "coffee", "Cafe")
	group := &models.DuplicateGroup{
		GroupID:      "DUP_tx1",
		Transactions: []*models.Transaction{a, b},
		Confidence:   0.82,
		PrimaryID:    "tx1",
		ReviewStatus: models.ReviewPending,
	}
	group.RecomputeAggregates()

	outcome, err := svc.ManualMerge(context.Background(), group)
	if err != nil {
		t.Fatalf("ManualMerge failed: %v", err)
	}
	if !outcome.Succeeded() {
		t.Errorf("expected success, got %q", outcome.Error)
	}
	if group.ReviewStatus != models.ReviewMerged {
		t.Errorf("group status = %s, want merged", group.ReviewStatus)
	}

	// Manual merges request a backup snapshot.
	if len(deleter.backups) != 1 || !deleter.backups[0] {
		t.Errorf("manual merge backups = %v, want [true]", deleter.backups)
	}
}

func TestMergeGroupTooSmall(t *testing.T) {
	svc := newService(t, &fakeSource{}, &fakeDeleter{}, nil)

	group := &models.DuplicateGroup{
		GroupID:      "DUP_tx1",
		Transactions: []*models.Transaction{scanTx("tx1", 0, 10.00, "coffee", "Cafe")},
		Confidence:   0.99,
		PrimaryID:    "tx1",
		ReviewStatus: models.ReviewPending,
	}

	_, err := svc.ManualMerge(context.Background(), group)
	if err == nil {
		t.Fatal("expected precondition error for single-member group")
	}
	if dedupErr, ok := dedupErrors.AsDedupError(err); !ok || dedupErr.Code != dedupErrors.CodeGroupTooSmall {
		t.Errorf("expected group_too_small error, got %v", err)
	}
}

func TestMergeAlreadyMerged(t *testing.T) {
	svc := newService(t, &fakeSource{}, &fakeDeleter{}, nil)

	a := scanTx("tx1", 0, 10.00, "coffee", "Cafe")
	b := scanTx("tx2", 0, 10.00, "coffee", "Cafe")
	group := &models.DuplicateGroup{
		GroupID:      "DUP_tx1",
		Transactions: []*models.Transaction{a, b},
		Confidence:   0.99,
		PrimaryID:    "tx1",
		ReviewStatus: models.ReviewMerged,
	}
	group.RecomputeAggregates()

	_, err := svc.ManualMerge(context.Background(), group)
	if err == nil {
		t.Fatal("expected already_merged error")
	}
}

func TestBuildStats(t *testing.T) {
	matches := []*models.DuplicateMatch{
		{Confidence: 1.0, Type: models.MatchExact},
		{Confidence: 0.85, Type: models.MatchNearExact},
		{Confidence: 0.85, Type: models.MatchNearExact},
	}
	groups := []*models.DuplicateGroup{
		{Confidence: 1.0, TotalAmount: decimal.NewFromFloat(85.00), ReviewStatus: models.ReviewAutoMerged},
		{Confidence: 0.85, TotalAmount: decimal.NewFromFloat(40.00), ReviewStatus: models.ReviewPending},
	}

	stats := buildStats(10, 12, matches, groups, nil)

	if stats.TotalTransactions != 10 || stats.CandidatePairs != 12 {
		t.Errorf("counts = (%d, %d), want (10, 12)", stats.TotalTransactions, stats.CandidatePairs)
	}
	if stats.ByMatchType["near_exact"] != 2 {
		t.Errorf("near_exact count = %d, want 2", stats.ByMatchType["near_exact"])
	}
	if stats.ByConfidenceBucket["0.95-1.00"] != 1 || stats.ByConfidenceBucket["0.80-0.95"] != 1 {
		t.Errorf("unexpected buckets: %v", stats.ByConfidenceBucket)
	}
	if !stats.TotalAmountAffected.Equal(decimal.NewFromFloat(125.00)) {
		t.Errorf("total amount affected = %s, want 125", stats.TotalAmountAffected.String())
	}
	if stats.AutoMergedGroups != 1 || stats.PendingGroups != 1 {
		t.Errorf("group status counts = (%d, %d), want (1, 1)",
			stats.AutoMergedGroups, stats.PendingGroups)
	}
}
