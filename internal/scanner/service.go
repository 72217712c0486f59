// Package scanner wires the detection pipeline into a service: it fetches a
// user's transactions, scores candidate pairs, groups matches, optionally
// resolves merges, and assembles the scan result with statistics.
package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"golang-dedup-service/internal/detector"
	"golang-dedup-service/internal/models"
	dedupErrors "golang-dedup-service/pkg/errors"
	"golang-dedup-service/pkg/logger"
)

// TransactionSource fetches a user's transactions for scanning. The pipeline
// treats returned transactions as read-only.
type TransactionSource interface {
	GetTransactions(ctx context.Context, userID string, start, end time.Time, minAmount decimal.Decimal) ([]*models.Transaction, error)
}

// BulkDeleter removes superseded transactions during a merge. The backup
// flag requests a pre-deletion snapshot.
type BulkDeleter interface {
	BulkDelete(ctx context.Context, ids []string, backup bool) (*models.BulkDeleteResult, error)
}

// ScanRequest describes one duplicate scan.
type ScanRequest struct {
	UserID          string  `json:"user_id"`
	DateRangeDays   int     `json:"date_range_days,omitempty"`
	MinConfidence   float64 `json:"min_confidence,omitempty"`
	IncludeReviewed bool    `json:"include_reviewed,omitempty"`

	// AutoMerge enables the merge resolver for groups at or above the
	// auto-merge threshold. When false the scan is advisory only.
	AutoMerge bool `json:"auto_merge,omitempty"`
}

// DetectionService runs duplicate scans end to end.
type DetectionService struct {
	source   TransactionSource
	resolver *MergeResolver
	config   *detector.Config
	logger   logger.Logger

	scorer   *detector.Scorer
	selector *detector.CandidateSelector
	grouper  *detector.Grouper

	// Scans for the same user must not overlap: a merge mid-scan would
	// invalidate a concurrent scan's candidate set.
	mu          sync.Mutex
	activeScans map[string]bool
}

// NewDetectionService creates a DetectionService. A nil config falls back to
// defaults; deleter may be nil when merging is never requested.
func NewDetectionService(source TransactionSource, deleter BulkDeleter, config *detector.Config, log logger.Logger) (*DetectionService, error) {
	if source == nil {
		return nil, dedupErrors.New(dedupErrors.CategoryConfiguration, dedupErrors.CodeMissingConfig,
			"transaction source is required")
	}
	if config == nil {
		config = detector.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, dedupErrors.Wrap(err, dedupErrors.CategoryConfiguration, dedupErrors.CodeInvalidConfig,
			"invalid detection configuration")
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &DetectionService{
		source:      source,
		resolver:    NewMergeResolver(deleter, config, log),
		config:      config,
		logger:      log.WithComponent("scanner"),
		scorer:      detector.NewScorer(config),
		selector:    detector.NewCandidateSelector(config),
		grouper:     detector.NewGrouper(),
		activeScans: make(map[string]bool),
	}, nil
}

// Scan runs a duplicate scan for one user. Collaborator failures during
// merging are recorded in the result; only pipeline-level failures (bad
// request, source unavailable, scan ceiling, timeout) return an error.
func (s *DetectionService) Scan(ctx context.Context, req *ScanRequest) (*models.DetectionResult, error) {
	if err := s.validateRequest(req); err != nil {
		return nil, err
	}

	if !s.tryAcquire(req.UserID) {
		return nil, dedupErrors.DetectionError(dedupErrors.CodeScanInProgress,
			fmt.Sprintf("scan for user %s", req.UserID), nil)
	}
	defer s.release(req.UserID)

	ctx, cancel := context.WithTimeout(ctx, s.config.ScanTimeout)
	defer cancel()

	rangeDays := req.DateRangeDays
	if rangeDays == 0 {
		rangeDays = s.config.DateRangeDays
	}
	minConfidence := req.MinConfidence
	if minConfidence == 0 {
		minConfidence = s.config.MinConfidence
	}

	now := time.Now().UTC()
	result := &models.DetectionResult{
		ScanID:        uuid.New().String(),
		UserID:        req.UserID,
		WindowStart:   now.AddDate(0, 0, -rangeDays),
		WindowEnd:     now,
		MinConfidence: minConfidence,
		StartedAt:     now,
	}

	op := logger.NewOperationLogger("duplicate_scan", s.logger).
		WithField("scan_id", result.ScanID).
		WithField("user_id", req.UserID)

	op.Step("fetch")
	transactions, err := s.source.GetTransactions(ctx, req.UserID, result.WindowStart, result.WindowEnd, s.config.MinAmountThreshold)
	if err != nil {
		op.Error(err, "Failed to fetch transactions")
		return nil, dedupErrors.WrapIfNeeded(err, dedupErrors.CategoryStorage,
			dedupErrors.CodeStorageUnavailable, "failed to fetch transactions")
	}

	if !req.IncludeReviewed && !s.config.IncludeReviewed {
		kept := transactions[:0]
		for _, tx := range transactions {
			if !tx.Reviewed {
				kept = append(kept, tx)
			}
		}
		if skipped := len(transactions) - len(kept); skipped > 0 {
			s.logger.WithFields(logger.Fields{
				"scan_id": result.ScanID,
				"skipped": skipped,
			}).Debug("Excluded reviewed transactions from scan")
		}
		transactions = kept
	}

	if len(transactions) > s.config.MaxTransactionsPerScan {
		err := dedupErrors.DetectionError(dedupErrors.CodeScanTooLarge, "duplicate scan", nil).
			WithContext("transaction_count", len(transactions)).
			WithContext("limit", s.config.MaxTransactionsPerScan)
		op.Error(err, "Transaction set exceeds scan ceiling")
		return nil, err
	}

	// An empty window is a valid, empty result.
	if len(transactions) == 0 {
		result.Stats = buildStats(0, 0, nil, nil, nil)
		s.finish(result)
		op.Success("Scan completed with no transactions")
		return result, nil
	}

	op.Step("score")
	pairs := s.selector.Select(transactions)
	matches, err := s.scorePairs(ctx, pairs, minConfidence)
	if err != nil {
		op.Error(err, "Scoring aborted")
		return nil, err
	}

	op.Step("group")
	result.Groups = s.grouper.Group(matches)

	if req.AutoMerge {
		op.Step("merge")
		result.MergeOutcomes = s.resolver.ResolveAll(ctx, result.Groups)
		for _, outcome := range result.MergeOutcomes {
			if outcome.Error != "" {
				result.Errors = append(result.Errors,
					fmt.Sprintf("group %s: %s", outcome.GroupID, outcome.Error))
			}
		}
	}

	result.Stats = buildStats(len(transactions), len(pairs), matches, result.Groups, result.MergeOutcomes)
	s.finish(result)

	op.WithField("groups", len(result.Groups)).Success("Scan completed")
	return result, nil
}

// scorePairs scores candidate pairs across a bounded worker pool. Scoring is
// pure, so workers share nothing; grouping starts only after every match is
// collected.
func (s *DetectionService) scorePairs(ctx context.Context, pairs []detector.Pair, minConfidence float64) ([]*models.DuplicateMatch, error) {
	if len(pairs) == 0 {
		return nil, nil
	}

	workers := s.config.MaxWorkers
	if workers > len(pairs) {
		workers = len(pairs)
	}

	chunkResults := make([][]*models.DuplicateMatch, workers)
	chunkSize := (len(pairs) + workers - 1) / workers

	g, ctx := errgroup.WithContext(ctx)
	for w := 0; w < workers; w++ {
		w := w
		start := w * chunkSize
		end := start + chunkSize
		if end > len(pairs) {
			end = len(pairs)
		}
		if start >= end {
			continue
		}

		g.Go(func() error {
			var local []*models.DuplicateMatch
			for i, pair := range pairs[start:end] {
				if i%256 == 0 {
					select {
					case <-ctx.Done():
						return ctx.Err()
					default:
					}
				}

				match := s.scorer.Score(pair.A, pair.B)
				if match.Confidence >= minConfidence {
					local = append(local, match)
				}
			}
			chunkResults[w] = local
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, dedupErrors.Wrap(err, dedupErrors.CategoryDetection, dedupErrors.CodeScanTimeout,
			"scan exceeded its time budget during scoring")
	}

	var matches []*models.DuplicateMatch
	for _, chunk := range chunkResults {
		matches = append(matches, chunk...)
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Confidence > matches[j].Confidence
	})

	return matches, nil
}

// ManualMerge resolves one group on user request, taking a backup snapshot
// before deleting the superseded transactions.
func (s *DetectionService) ManualMerge(ctx context.Context, group *models.DuplicateGroup) (*models.MergeOutcome, error) {
	return s.resolver.ManualMerge(ctx, group)
}

func (s *DetectionService) validateRequest(req *ScanRequest) error {
	if req == nil {
		return dedupErrors.ValidationError(dedupErrors.CodeMissingField, "request", nil, nil)
	}
	if req.UserID == "" {
		return dedupErrors.ValidationError(dedupErrors.CodeMissingField, "user_id", req.UserID, nil)
	}
	if req.MinConfidence < 0.0 || req.MinConfidence > 1.0 {
		return dedupErrors.ValidationError(dedupErrors.CodeOutOfRange, "min_confidence", req.MinConfidence, nil)
	}
	if req.DateRangeDays < 0 {
		return dedupErrors.ValidationError(dedupErrors.CodeOutOfRange, "date_range_days", req.DateRangeDays, nil)
	}
	return nil
}

func (s *DetectionService) tryAcquire(userID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeScans[userID] {
		return false
	}
	s.activeScans[userID] = true
	return true
}

func (s *DetectionService) release(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.activeScans, userID)
}

func (s *DetectionService) finish(result *models.DetectionResult) {
	result.CompletedAt = time.Now().UTC()
	result.Duration = result.CompletedAt.Sub(result.StartedAt)
}
