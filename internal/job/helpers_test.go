package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/property-scanner/internal/config"
	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

// memoryJobStore is an in-memory JobStore with version-checked writes
type memoryJobStore struct {
	mu   sync.Mutex
	jobs map[string]*models.BatchJob
	// beforeSwap runs inside CompareAndSwap before the version check, without the lock held
	beforeSwap func(job *models.BatchJob)
	swaps      int
}

func newMemoryJobStore(jobs ...*models.BatchJob) *memoryJobStore {
	s := &memoryJobStore{jobs: make(map[string]*models.BatchJob)}
	for _, j := range jobs {
		s.jobs[j.ID] = j.Clone()
	}
	return s
}

func (s *memoryJobStore) GetByID(ctx context.Context, id string) (*models.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("batch job", id)
	}
	return j.Clone(), nil
}

func (s *memoryJobStore) CompareAndSwap(ctx context.Context, job *models.BatchJob, expectedVersion int64) (bool, error) {
	if hook := s.beforeSwap; hook != nil {
		hook(job)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.jobs[job.ID]
	if !ok {
		return false, apperrors.NewNotFoundError("batch job", job.ID)
	}
	if current.Version != expectedVersion {
		return false, nil
	}
	s.jobs[job.ID] = job.Clone()
	s.swaps++
	return true, nil
}

func (s *memoryJobStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return apperrors.NewNotFoundError("batch job", id)
	}
	delete(s.jobs, id)
	return nil
}

// bump simulates a concurrent writer
func (s *memoryJobStore) bump(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[id].Version++
}

func (s *memoryJobStore) get(t *testing.T, id string) *models.BatchJob {
	t.Helper()
	j, err := s.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("job %s missing: %v", id, err)
	}
	return j
}

// recordingNotifier counts Notify calls and returns a fixed outcome
type recordingNotifier struct {
	mu        sync.Mutex
	calls     []string
	triggered bool
	errMsg    string
}

func (n *recordingNotifier) Notify(ctx context.Context, jobID string) (bool, string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, jobID)
	if err := ctx.Err(); err != nil {
		return false, "workflow request failed: " + err.Error()
	}
	return n.triggered, n.errMsg
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func reachableWorker() *recordingNotifier {
	return &recordingNotifier{triggered: true}
}

func unreachableWorker(msg string) *recordingNotifier {
	return &recordingNotifier{errMsg: msg}
}

func pendingJob(id string) *models.BatchJob {
	return &models.BatchJob{
		ID:         id,
		JobType:    "regrid_scraping",
		Status:     models.JobStatusPending,
		TotalItems: 100,
		Version:    1,
		CreatedAt:  time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func newTestManager(store JobStore, notifier WorkflowNotifier, threshold int) *Manager {
	m := NewManager(store, notifier, &config.JobsConfig{MaxUpdateAttempts: 3, FailureThreshold: threshold}, []string{"regrid_scraping"})
	m.retryConfig.InitialDelay = 0
	return m
}

func statusPtr(s models.JobStatus) *models.JobStatus { return &s }

func intPtr(v int) *int { return &v }

func strPtr(s string) *string { return &s }
