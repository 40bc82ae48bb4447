package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

// jobUpdateRequest is the PATCH body. Absent fields are left untouched.
type jobUpdateRequest struct {
	Status         *string `json:"status" validate:"omitempty,oneof=pending in_progress paused completed failed"`
	TotalItems     *int    `json:"total_items" validate:"omitempty,min=0"`
	ProcessedItems *int    `json:"processed_items" validate:"omitempty,min=0"`
	FailedItems    *int    `json:"failed_items" validate:"omitempty,min=0"`
	CurrentBatch   *int    `json:"current_batch" validate:"omitempty,min=0"`
	ErrorCount     *int    `json:"error_count" validate:"omitempty,min=0"`
	LastError      *string `json:"last_error" validate:"omitempty,max=4096"`
}

func (req *jobUpdateRequest) toUpdate() *models.JobUpdate {
	update := &models.JobUpdate{
		TotalItems:     req.TotalItems,
		ProcessedItems: req.ProcessedItems,
		FailedItems:    req.FailedItems,
		CurrentBatch:   req.CurrentBatch,
		ErrorCount:     req.ErrorCount,
		LastError:      req.LastError,
	}
	if req.Status != nil {
		status := models.JobStatus(*req.Status)
		update.Status = &status
	}
	return update
}

// jobUpdateResponse is the job merged with the workflow trigger outcome
type jobUpdateResponse struct {
	*models.BatchJob
	N8NTriggered bool    `json:"n8n_triggered"`
	N8NError     *string `json:"n8n_error"`
}

// pathID returns the {id} route variable, which must be a UUID
func pathID(r *http.Request) (string, error) {
	id := mux.Vars(r)["id"]
	if _, err := uuid.Parse(id); err != nil {
		return "", apperrors.NewValidationError("id", "must be a UUID")
	}
	return id, nil
}

// handleGetJob handles GET /batch-jobs/{id}
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	job, err := s.jobService.GetJob(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, job)
}

// handleUpdateJob handles PATCH /batch-jobs/{id}
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, RoleAdmin, RoleUser); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req jobUpdateRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, validationError(err))
		return
	}

	result, err := s.jobService.ApplyUpdate(r.Context(), id, req.toUpdate())
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, jobUpdateResponse{
		BatchJob:     result.Job,
		N8NTriggered: result.Triggered,
		N8NError:     result.TriggerError,
	})
}

// handleDeleteJob handles DELETE /batch-jobs/{id}
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, RoleAdmin); err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	if err := s.jobService.DeleteJob(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
