// Package job owns the batch job state machine: it validates requested
// transitions, stamps lifecycle timestamps and notifies the workflow runner
// when a job enters in_progress.
package job

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/property-scanner/internal/config"
	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/logging"
	"github.com/property-scanner/internal/models"
	"github.com/property-scanner/internal/retry"
)

// JobStore is durable storage for batch jobs
type JobStore interface {
	GetByID(ctx context.Context, id string) (*models.BatchJob, error)
	// CompareAndSwap persists job only if the stored version still equals
	// expectedVersion. It reports false when another writer got there first.
	CompareAndSwap(ctx context.Context, job *models.BatchJob, expectedVersion int64) (bool, error)
	Delete(ctx context.Context, id string) error
}

// WorkflowNotifier tells the external runner to start a job
type WorkflowNotifier interface {
	Notify(ctx context.Context, jobID string) (triggered bool, errMsg string)
}

// errLostRace marks a CAS write that lost to a concurrent writer
var errLostRace = errors.New("batch job version changed during update")

// UpdateResult is the outcome of ApplyUpdate
type UpdateResult struct {
	Job          *models.BatchJob
	PrevStatus   models.JobStatus
	Transitioned bool
	Triggered    bool
	// TriggerError is set when the runner was due a notification but could not be reached
	TriggerError *string
}

// Manager applies updates to batch jobs
type Manager struct {
	store            JobStore
	notifier         WorkflowNotifier
	triggerTypes     map[string]struct{}
	failureThreshold int
	retryConfig      *retry.Config
	now              func() time.Time
}

// NewManager creates a job manager.
// triggerTypes lists the job types whose entry into in_progress notifies the runner.
func NewManager(store JobStore, notifier WorkflowNotifier, cfg *config.JobsConfig, triggerTypes []string) *Manager {
	types := make(map[string]struct{}, len(triggerTypes))
	for _, t := range triggerTypes {
		types[t] = struct{}{}
	}

	retryConfig := retry.DefaultConfig()
	if cfg.MaxUpdateAttempts > 0 {
		retryConfig.MaxAttempts = cfg.MaxUpdateAttempts
	}
	retryConfig.Retryable = func(err error) bool { return errors.Is(err, errLostRace) }

	return &Manager{
		store:            store,
		notifier:         notifier,
		triggerTypes:     types,
		failureThreshold: cfg.FailureThreshold,
		retryConfig:      retryConfig,
		now:              time.Now,
	}
}

// GetJob returns a job by id
func (m *Manager) GetJob(ctx context.Context, jobID string) (*models.BatchJob, error) {
	return m.store.GetByID(ctx, jobID)
}

// DeleteJob hard-deletes a job
func (m *Manager) DeleteJob(ctx context.Context, jobID string) error {
	if err := m.store.Delete(ctx, jobID); err != nil {
		return err
	}
	logging.FromContext(ctx).WithField("jobId", jobID).Info("Batch job deleted")
	return nil
}

// ApplyUpdate merges a sparse update into the stored job.
//
// The write is a compare-and-set on the job version, re-read and re-applied on
// a lost race up to the configured attempt count. The workflow runner is
// notified only by the writer whose commit moved the job into in_progress, so
// repeated progress updates never re-trigger it. A failed notification is
// reported on the result and never undoes the status change.
func (m *Manager) ApplyUpdate(ctx context.Context, jobID string, update *models.JobUpdate) (*UpdateResult, error) {
	if update.IsEmpty() {
		return nil, apperrors.NewEmptyUpdateError()
	}
	if err := validateUpdate(update); err != nil {
		return nil, err
	}

	var result *UpdateResult
	outcome := retry.Do(ctx, m.retryConfig, func(ctx context.Context, attempt int) error {
		current, err := m.store.GetByID(ctx, jobID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		next, err := merge(current, update, m.failureThreshold, now)
		if err != nil {
			return err
		}
		next.Version = current.Version + 1
		next.UpdatedAt = now

		ok, err := m.store.CompareAndSwap(ctx, next, current.Version)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}

		result = &UpdateResult{
			Job:          next,
			PrevStatus:   current.Status,
			Transitioned: next.Status != current.Status,
		}
		return nil
	})

	if !outcome.Success {
		if errors.Is(outcome.LastError, errLostRace) {
			return nil, apperrors.NewConflictError(
				fmt.Sprintf("batch job %s was modified concurrently %d times, retry the update", jobID, outcome.Attempts))
		}
		return nil, outcome.LastError
	}

	logger := logging.FromContext(ctx).WithField("jobId", jobID)
	if result.Transitioned {
		logger.WithFields(map[string]interface{}{
			"from": string(result.PrevStatus),
			"to":   string(result.Job.Status),
		}).Info("Batch job transitioned")
	}

	// The start notification fires once per entry into in_progress, so it must
	// outlive a caller that disconnects after the commit. The notifier's own
	// timeout still bounds it.
	if result.Transitioned && result.Job.Status == models.JobStatusInProgress && m.isTriggerable(result.Job.JobType) {
		m.trigger(context.WithoutCancel(ctx), result)
	}

	return result, nil
}

func (m *Manager) isTriggerable(jobType string) bool {
	_, ok := m.triggerTypes[jobType]
	return ok
}

// trigger notifies the runner once and records the outcome on the job
func (m *Manager) trigger(ctx context.Context, result *UpdateResult) {
	jobID := result.Job.ID
	triggered, errMsg := m.notifier.Notify(ctx, jobID)
	result.Triggered = triggered
	if !triggered {
		result.TriggerError = &errMsg
		logging.FromContext(ctx).WithError(apperrors.NewExternalTriggerError(jobID, errors.New(errMsg))).
			WithField("jobId", jobID).Warn("Batch job entered in_progress but the workflow runner was not notified")
	}

	if recorded := m.recordTrigger(ctx, jobID, triggered, errMsg); recorded != nil {
		result.Job = recorded
	}
}

// recordTrigger stores triggered_at or trigger_error. Failures are logged only.
func (m *Manager) recordTrigger(ctx context.Context, jobID string, triggered bool, errMsg string) *models.BatchJob {
	var recorded *models.BatchJob
	outcome := retry.Do(ctx, m.retryConfig, func(ctx context.Context, attempt int) error {
		current, err := m.store.GetByID(ctx, jobID)
		if err != nil {
			return err
		}

		now := m.now().UTC()
		next := current.Clone()
		if triggered {
			next.TriggeredAt = &now
			next.TriggerError = nil
		} else {
			msg := errMsg
			next.TriggerError = &msg
		}
		next.Version = current.Version + 1
		next.UpdatedAt = now

		ok, err := m.store.CompareAndSwap(ctx, next, current.Version)
		if err != nil {
			return err
		}
		if !ok {
			return errLostRace
		}
		recorded = next
		return nil
	})

	if !outcome.Success {
		logging.FromContext(ctx).WithError(outcome.LastError).WithField("jobId", jobID).
			Warn("Failed to record workflow trigger outcome")
		return nil
	}
	return recorded
}
