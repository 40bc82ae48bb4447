package job

import (
	"time"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

// allowedTransitions lists every legal status change. Same-status updates are
// progress updates and never appear here.
var allowedTransitions = map[models.JobStatus][]models.JobStatus{
	models.JobStatusPending:    {models.JobStatusInProgress},
	models.JobStatusInProgress: {models.JobStatusPaused, models.JobStatusCompleted, models.JobStatusFailed},
	models.JobStatusPaused:     {models.JobStatusInProgress, models.JobStatusFailed},
}

// CanTransition reports whether from -> to is a legal status change
func CanTransition(from, to models.JobStatus) bool {
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// merge applies update to a copy of current and returns the candidate row.
// The returned status differs from current.Status only on a legal transition.
func merge(current *models.BatchJob, update *models.JobUpdate, failureThreshold int, now time.Time) (*models.BatchJob, error) {
	next := current.Clone()

	if update.TotalItems != nil {
		next.TotalItems = *update.TotalItems
	}
	if update.ProcessedItems != nil {
		if *update.ProcessedItems < current.ProcessedItems {
			return nil, apperrors.NewValidationError("processed_items", "must not decrease")
		}
		next.ProcessedItems = *update.ProcessedItems
	}
	if update.FailedItems != nil {
		if *update.FailedItems < current.FailedItems {
			return nil, apperrors.NewValidationError("failed_items", "must not decrease")
		}
		next.FailedItems = *update.FailedItems
	}
	if update.ErrorCount != nil {
		if *update.ErrorCount < current.ErrorCount {
			return nil, apperrors.NewValidationError("error_count", "must not decrease")
		}
		next.ErrorCount = *update.ErrorCount
	}
	if update.CurrentBatch != nil {
		next.CurrentBatch = *update.CurrentBatch
	}
	if update.LastError != nil {
		if *update.LastError == "" {
			next.LastError = nil
		} else {
			msg := *update.LastError
			next.LastError = &msg
		}
	}

	if next.TotalItems > 0 && next.ProcessedItems+next.FailedItems > next.TotalItems {
		return nil, apperrors.NewValidationError("processed_items", "processed_items + failed_items exceeds total_items")
	}

	target := current.Status
	if update.Status != nil {
		target = *update.Status
	}
	if target == current.Status && failureThreshold > 0 && next.ErrorCount >= failureThreshold &&
		(current.Status == models.JobStatusInProgress || current.Status == models.JobStatusPaused) {
		target = models.JobStatusFailed
	}

	if target == current.Status {
		return next, nil
	}
	if !CanTransition(current.Status, target) {
		return nil, apperrors.NewIllegalTransitionError(string(current.Status), string(target))
	}

	next.Status = target
	stamp := now
	switch target {
	case models.JobStatusInProgress:
		if next.StartedAt == nil {
			next.StartedAt = &stamp
		}
		next.PausedAt = nil
	case models.JobStatusPaused:
		next.PausedAt = &stamp
	case models.JobStatusCompleted, models.JobStatusFailed:
		next.CompletedAt = &stamp
	}
	return next, nil
}

func validateUpdate(update *models.JobUpdate) error {
	checks := []struct {
		field string
		value *int
	}{
		{"total_items", update.TotalItems},
		{"processed_items", update.ProcessedItems},
		{"failed_items", update.FailedItems},
		{"current_batch", update.CurrentBatch},
		{"error_count", update.ErrorCount},
	}
	for _, c := range checks {
		if c.value != nil && *c.value < 0 {
			return apperrors.NewValidationError(c.field, "must be non-negative")
		}
	}
	if update.Status != nil {
		if _, err := models.ParseJobStatus(string(*update.Status)); err != nil {
			return err
		}
	}
	return nil
}
