package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/property-scanner/internal/errors"
)

func TestParseJobStatus(t *testing.T) {
	for _, s := range []string{"pending", "in_progress", "paused", "completed", "failed"} {
		got, err := ParseJobStatus(s)
		require.NoError(t, err)
		assert.Equal(t, JobStatus(s), got)
	}

	_, err := ParseJobStatus("running")
	assert.True(t, apperrors.IsValidation(err))
}

func TestJobStatus_IsTerminal(t *testing.T) {
	assert.True(t, JobStatusCompleted.IsTerminal())
	assert.True(t, JobStatusFailed.IsTerminal())
	assert.False(t, JobStatusPaused.IsTerminal())
}

func TestJobUpdate_IsEmpty(t *testing.T) {
	var nilUpdate *JobUpdate
	assert.True(t, nilUpdate.IsEmpty())
	assert.True(t, (&JobUpdate{}).IsEmpty())

	n := 0
	assert.False(t, (&JobUpdate{ProcessedItems: &n}).IsEmpty())

	msg := ""
	assert.False(t, (&JobUpdate{LastError: &msg}).IsEmpty())
}

func TestBatchJob_CloneDoesNotAlias(t *testing.T) {
	now := time.Now()
	msg := "boom"
	job := &BatchJob{ID: "j1", StartedAt: &now, LastError: &msg}

	c := job.Clone()
	*c.LastError = "changed"
	c.StartedAt = nil

	assert.Equal(t, "boom", *job.LastError)
	assert.NotNil(t, job.StartedAt)
}
