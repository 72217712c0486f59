package scanner

import (
	"context"
	"fmt"

	"golang-dedup-service/internal/detector"
	"golang-dedup-service/internal/models"
	dedupErrors "golang-dedup-service/pkg/errors"
	"golang-dedup-service/pkg/logger"
)

// MergeResolver decides, per duplicate group, whether to merge or leave the
// group for review, and invokes the bulk-delete collaborator for merges.
type MergeResolver struct {
	deleter BulkDeleter
	config  *detector.Config
	logger  logger.Logger
}

// NewMergeResolver creates a MergeResolver. A nil deleter makes every merge
// attempt fail with a configuration error, which keeps advisory-only scans
// safe.
func NewMergeResolver(deleter BulkDeleter, config *detector.Config, log logger.Logger) *MergeResolver {
	if config == nil {
		config = detector.DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	return &MergeResolver{
		deleter: deleter,
		config:  config,
		logger:  log.WithComponent("resolver"),
	}
}

// ResolveAll walks the groups and auto-merges those at or above the
// auto-merge threshold. One group's failure is recorded in its outcome and
// never aborts the remaining groups. Groups below the threshold stay pending
// and produce no outcome.
func (r *MergeResolver) ResolveAll(ctx context.Context, groups []*models.DuplicateGroup) []*models.MergeOutcome {
	var outcomes []*models.MergeOutcome

	for _, group := range groups {
		if group.Confidence < r.config.AutoMergeThreshold {
			continue
		}

		outcome, err := r.merge(ctx, group, false)
		if err != nil {
			outcome = &models.MergeOutcome{
				GroupID:    group.GroupID,
				PrimaryID:  group.PrimaryID,
				Confidence: group.Confidence,
				Error:      err.Error(),
			}
		} else if outcome.Succeeded() {
			group.ReviewStatus = models.ReviewAutoMerged
		}
		outcomes = append(outcomes, outcome)
	}

	return outcomes
}

// ManualMerge merges one group on explicit user request. Unlike auto-merge
// it requests a backup snapshot before deletion and ignores the confidence
// threshold.
func (r *MergeResolver) ManualMerge(ctx context.Context, group *models.DuplicateGroup) (*models.MergeOutcome, error) {
	outcome, err := r.merge(ctx, group, true)
	if err != nil {
		return nil, err
	}

	if outcome.Succeeded() {
		group.ReviewStatus = models.ReviewMerged
	}
	return outcome, nil
}

// merge deletes a group's superseded transactions, keeping the primary. A
// group with fewer than 2 members is a precondition violation.
func (r *MergeResolver) merge(ctx context.Context, group *models.DuplicateGroup, backup bool) (*models.MergeOutcome, error) {
	if group == nil || len(group.Transactions) < 2 {
		groupID := "<nil>"
		if group != nil {
			groupID = group.GroupID
		}
		return nil, dedupErrors.MergeError(dedupErrors.CodeGroupTooSmall, groupID, nil)
	}
	if err := group.Validate(); err != nil {
		return nil, dedupErrors.Wrap(err, dedupErrors.CategoryMerge, dedupErrors.CodeGroupTooSmall,
			fmt.Sprintf("group %s failed validation", group.GroupID))
	}
	if group.ReviewStatus == models.ReviewMerged || group.ReviewStatus == models.ReviewAutoMerged {
		return nil, dedupErrors.MergeError(dedupErrors.CodeAlreadyMerged, group.GroupID, nil)
	}
	if r.deleter == nil {
		return nil, dedupErrors.New(dedupErrors.CategoryConfiguration, dedupErrors.CodeMissingConfig,
			"merge requested but no bulk-delete collaborator is configured")
	}

	superseded := group.SupersededIDs()
	result, err := r.deleter.BulkDelete(ctx, superseded, backup)
	if err != nil {
		r.logger.WithError(err).WithField("group_id", group.GroupID).Error("Bulk delete failed")
		return nil, dedupErrors.MergeError(dedupErrors.CodeDeleteFailed, group.GroupID, err)
	}

	outcome := &models.MergeOutcome{
		GroupID:    group.GroupID,
		PrimaryID:  group.PrimaryID,
		DeletedIDs: result.Deleted,
		Confidence: group.Confidence,
	}
	for id, reason := range result.Failed {
		outcome.FailedIDs = append(outcome.FailedIDs, id)
		r.logger.WithFields(logger.Fields{
			"group_id":       group.GroupID,
			"transaction_id": id,
			"reason":         reason,
		}).Warn("Superseded transaction not deleted")
	}
	if len(outcome.FailedIDs) > 0 {
		outcome.Error = fmt.Sprintf("%d of %d superseded transactions could not be deleted",
			len(outcome.FailedIDs), len(superseded))
	}

	r.logger.WithFields(logger.Fields{
		"group_id":   group.GroupID,
		"primary_id": group.PrimaryID,
		"deleted":    len(outcome.DeletedIDs),
		"backup":     backup,
	}).Info("Merged duplicate group")

	return outcome, nil
}
