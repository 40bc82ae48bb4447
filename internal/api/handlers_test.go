package api

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/property-scanner/internal/alert"
	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/job"
	"github.com/property-scanner/internal/models"
)

func TestGetJob(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/batch-jobs/"+jobID, RoleViewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.BatchJob
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, jobID, got.ID)
	assert.Equal(t, models.JobStatusPending, got.Status)
}

func TestGetJob_NotFound(t *testing.T) {
	ts := setupTestServer(t)
	ts.jobs.getFunc = func(ctx context.Context, id string) (*models.BatchJob, error) {
		return nil, apperrors.NewNotFoundError("batch_job", id)
	}

	rec := ts.do(t, http.MethodGet, "/batch-jobs/"+jobID, RoleUser, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, apperrors.CodeNotFound, decodeError(t, rec).Code)
}

func TestGetJob_RejectsNonUUID(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/batch-jobs/not-a-uuid", RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	svcErr := decodeError(t, rec)
	assert.Equal(t, apperrors.CodeValidation, svcErr.Code)
	assert.Equal(t, "id", svcErr.Details["field"])
}

func TestUpdateJob_ReportsTrigger(t *testing.T) {
	ts := setupTestServer(t)
	var received *models.JobUpdate
	ts.jobs.updateFunc = func(ctx context.Context, id string, update *models.JobUpdate) (*job.UpdateResult, error) {
		received = update
		return &job.UpdateResult{
			Job:          &models.BatchJob{ID: id, Status: *update.Status, TotalItems: 10},
			PrevStatus:   models.JobStatusPending,
			Transitioned: true,
			Triggered:    true,
		}, nil
	}

	rec := ts.do(t, http.MethodPatch, "/batch-jobs/"+jobID, RoleUser, `{"status":"in_progress","total_items":10}`)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, received)
	assert.Equal(t, models.JobStatusInProgress, *received.Status)
	assert.Equal(t, 10, *received.TotalItems)
	assert.Nil(t, received.ProcessedItems)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, jobID, body["id"])
	assert.Equal(t, "in_progress", body["status"])
	assert.Equal(t, true, body["n8n_triggered"])
	assert.Nil(t, body["n8n_error"])
}

func TestUpdateJob_ReportsTriggerFailure(t *testing.T) {
	ts := setupTestServer(t)
	reason := "workflow runner unreachable"
	ts.jobs.updateFunc = func(ctx context.Context, id string, update *models.JobUpdate) (*job.UpdateResult, error) {
		return &job.UpdateResult{
			Job:          &models.BatchJob{ID: id, Status: models.JobStatusInProgress, TriggerError: &reason},
			Transitioned: true,
			TriggerError: &reason,
		}, nil
	}

	rec := ts.do(t, http.MethodPatch, "/batch-jobs/"+jobID, RoleAdmin, `{"status":"in_progress"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, false, body["n8n_triggered"])
	assert.Equal(t, reason, body["n8n_error"])
	assert.Equal(t, "in_progress", body["status"])
}

func TestUpdateJob_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "unknown field", body: `{"status":"in_progress","priority":1}`, field: "body"},
		{name: "unknown status", body: `{"status":"running"}`, field: "status"},
		{name: "negative counter", body: `{"processed_items":-1}`, field: "processed_items"},
		{name: "malformed json", body: `{"status":`, field: "body"},
		{name: "empty body", body: ``, field: "body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			ts.jobs.updateFunc = func(ctx context.Context, id string, update *models.JobUpdate) (*job.UpdateResult, error) {
				t.Fatal("service should not be called")
				return nil, nil
			}

			rec := ts.do(t, http.MethodPatch, "/batch-jobs/"+jobID, RoleAdmin, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			svcErr := decodeError(t, rec)
			assert.Equal(t, apperrors.CodeValidation, svcErr.Code)
			assert.Equal(t, tt.field, svcErr.Details["field"])
		})
	}
}

func TestUpdateJob_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{name: "empty update", err: apperrors.NewEmptyUpdateError(), status: http.StatusBadRequest, code: apperrors.CodeEmptyUpdate},
		{name: "illegal transition", err: apperrors.NewIllegalTransitionError("completed", "in_progress"), status: http.StatusConflict, code: apperrors.CodeIllegalTransition},
		{name: "conflict", err: apperrors.NewConflictError("job changed concurrently"), status: http.StatusConflict, code: apperrors.CodeConflict},
		{name: "store", err: apperrors.NewStoreError("update job", assert.AnError), status: http.StatusInternalServerError, code: apperrors.CodeStore},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			ts.jobs.updateFunc = func(ctx context.Context, id string, update *models.JobUpdate) (*job.UpdateResult, error) {
				return nil, tt.err
			}

			rec := ts.do(t, http.MethodPatch, "/batch-jobs/"+jobID, RoleUser, `{}`)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
}

func TestUpdateJob_HidesStoreDetail(t *testing.T) {
	ts := setupTestServer(t)
	ts.jobs.updateFunc = func(ctx context.Context, id string, update *models.JobUpdate) (*job.UpdateResult, error) {
		return nil, apperrors.NewStoreError("update job", assert.AnError)
	}

	rec := ts.do(t, http.MethodPatch, "/batch-jobs/"+jobID, RoleUser, `{"processed_items":1}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestUpdateJob_ViewerForbidden(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPatch, "/batch-jobs/"+jobID, RoleViewer, `{"status":"paused"}`)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, apperrors.CodeForbidden, decodeError(t, rec).Code)
}

func TestDeleteJob(t *testing.T) {
	ts := setupTestServer(t)
	deleted := ""
	ts.jobs.deleteFunc = func(ctx context.Context, id string) error {
		deleted = id
		return nil
	}

	rec := ts.do(t, http.MethodDelete, "/batch-jobs/"+jobID, RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, deleted)

	rec = ts.do(t, http.MethodDelete, "/batch-jobs/"+jobID, RoleAdmin, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, jobID, deleted)
}

func TestScan(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/property-alerts/scan", RoleAdmin, alert.ScanRequest{
		PropertyIDs: []string{jobID},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ts.scans.lastReq)
	assert.Equal(t, []string{jobID}, ts.scans.lastReq.PropertyIDs)
	assert.Empty(t, ts.scans.lastReq.RuleIDs)

	var result alert.ScanResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
	assert.Equal(t, alert.ScanResult{AlertsCreated: 1, RulesChecked: 2, PropertiesScanned: 3}, result)
}

func TestScan_EmptyBodyIsFullScan(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/property-alerts/scan", RoleAdmin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, ts.scans.lastReq)
	assert.True(t, ts.scans.lastReq.IsFull())

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Contains(t, body, "alertsCreated")
	assert.Contains(t, body, "rulesChecked")
	assert.Contains(t, body, "propertiesScanned")
}

func TestScan_RejectsBadInput(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/property-alerts/scan", RoleAdmin, `{"propertyIds":["abc"]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Nil(t, ts.scans.lastReq)

	rec = ts.do(t, http.MethodPost, "/property-alerts/scan", RoleUser, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Nil(t, ts.scans.lastReq)
}

func TestScan_LeaseHeld(t *testing.T) {
	ts := setupTestServer(t)
	ts.scans.scanFunc = func(ctx context.Context, req alert.ScanRequest) (*alert.ScanResult, error) {
		return nil, apperrors.NewConflictError("a full scan is already running")
	}

	rec := ts.do(t, http.MethodPost, "/property-alerts/scan", RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, apperrors.CodeConflict, decodeError(t, rec).Code)
}

func TestListAlerts(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/property-alerts?limit=20", RoleViewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, ts.alerts.listLimit)
	assert.JSONEq(t, `{"alerts":[]}`, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/property-alerts?limit=zero", RoleViewer, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAcknowledgeAlert(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodPost, "/property-alerts/"+jobID+"/acknowledge", RoleUser, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var got models.PropertyAlert
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.True(t, got.Acknowledged)
	assert.Equal(t, "user-user", got.UserID)

	rec = ts.do(t, http.MethodPost, "/property-alerts/"+jobID+"/acknowledge", RoleViewer, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpsertRule(t *testing.T) {
	ts := setupTestServer(t)
	var saved *models.AlertRule
	ts.alerts.upsertFunc = func(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error) {
		saved = rule
		return rule, nil
	}

	body := `{"name":"Blair cheap land","score_threshold":70,"county_ids":["blair"],"max_bid":"1500.00","min_acres":1}`
	rec := ts.do(t, http.MethodPut, "/alert-rules/"+ruleID, RoleUser, body)
	require.Equal(t, http.StatusOK, rec.Code)

	require.NotNil(t, saved)
	assert.Equal(t, ruleID, saved.ID)
	assert.Equal(t, "user-user", saved.UserID)
	assert.True(t, saved.Enabled)
	assert.Equal(t, "1500", saved.MaxBid.String())
	assert.Equal(t, []string{"blair"}, saved.CountyIDs)
}

func TestUpsertRule_Validation(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing name", body: `{"score_threshold":50}`, field: "name"},
		{name: "threshold above range", body: `{"name":"x","score_threshold":101}`, field: "score_threshold"},
		{name: "negative acres", body: `{"name":"x","min_acres":-2}`, field: "min_acres"},
		{name: "unknown frequency", body: `{"name":"x","notification_frequency":"hourly"}`, field: "notification_frequency"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := setupTestServer(t)
			rec := ts.do(t, http.MethodPut, "/alert-rules/"+ruleID, RoleAdmin, tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, tt.field, decodeError(t, rec).Details["field"])
		})
	}
}

func TestDeleteRule_AdminBypassesOwnership(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodDelete, "/alert-rules/"+ruleID, RoleUser, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, ts.alerts.deleteOwner)
	assert.Equal(t, "user-user", *ts.alerts.deleteOwner)

	rec = ts.do(t, http.MethodDelete, "/alert-rules/"+ruleID, RoleAdmin, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "", *ts.alerts.deleteOwner)
}

func TestListRules(t *testing.T) {
	ts := setupTestServer(t)

	rec := ts.do(t, http.MethodGet, "/alert-rules", RoleViewer, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"rules":[]}`, rec.Body.String())
}
