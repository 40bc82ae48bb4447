package api

import (
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/property-scanner/internal/alert"
	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

// scanRequest is the POST /property-alerts/scan body. Both lists are optional.
type scanRequest struct {
	PropertyIDs []string `json:"propertyIds" validate:"omitempty,dive,uuid"`
	RuleIDs     []string `json:"ruleIds" validate:"omitempty,dive,uuid"`
}

// ruleRequest is the PUT /alert-rules/{id} body
type ruleRequest struct {
	Name                  string           `json:"name" validate:"required,max=200"`
	Enabled               *bool            `json:"enabled"`
	ScoreThreshold        *float64         `json:"score_threshold" validate:"omitempty,min=0,max=100"`
	CountyIDs             []string         `json:"county_ids" validate:"omitempty,dive,required"`
	PropertyTypes         []string         `json:"property_types" validate:"omitempty,dive,required"`
	MaxBid                *decimal.Decimal `json:"max_bid"`
	MinAcres              *float64         `json:"min_acres" validate:"omitempty,min=0"`
	MaxAcres              *float64         `json:"max_acres" validate:"omitempty,min=0"`
	NotificationFrequency string           `json:"notification_frequency" validate:"omitempty,oneof=immediate daily weekly"`
}

func (req *ruleRequest) toRule(id, userID string) *models.AlertRule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &models.AlertRule{
		ID:                    id,
		UserID:                userID,
		Name:                  req.Name,
		Enabled:               enabled,
		ScoreThreshold:        req.ScoreThreshold,
		CountyIDs:             req.CountyIDs,
		PropertyTypes:         req.PropertyTypes,
		MaxBid:                req.MaxBid,
		MinAcres:              req.MinAcres,
		MaxAcres:              req.MaxAcres,
		NotificationFrequency: models.NotificationFrequency(req.NotificationFrequency),
	}
}

// handleScan handles POST /property-alerts/scan
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if _, err := requireRole(r, RoleAdmin); err != nil {
		respondError(w, r, err)
		return
	}

	var req scanRequest
	if err := parseOptionalJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, validationError(err))
		return
	}

	result, err := s.scanService.Scan(r.Context(), alert.ScanRequest{
		PropertyIDs: req.PropertyIDs,
		RuleIDs:     req.RuleIDs,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleListAlerts handles GET /property-alerts
func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, r, apperrors.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	alerts, err := s.alertService.ListOpenAlerts(r.Context(), p.UserID, limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []*models.PropertyAlert{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"alerts": alerts})
}

// handleAcknowledgeAlert handles POST /property-alerts/{id}/acknowledge
func (s *Server) handleAcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	p, err := requireRole(r, RoleAdmin, RoleUser)
	if err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	acked, err := s.alertService.AcknowledgeAlert(r.Context(), id, p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, acked)
}

// handleListRules handles GET /alert-rules
func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFromContext(r.Context())

	rules, err := s.alertService.ListRules(r.Context(), p.UserID)
	if err != nil {
		respondError(w, r, err)
		return
	}
	if rules == nil {
		rules = []*models.AlertRule{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// handleUpsertRule handles PUT /alert-rules/{id}
func (s *Server) handleUpsertRule(w http.ResponseWriter, r *http.Request) {
	p, err := requireRole(r, RoleAdmin, RoleUser)
	if err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	var req ruleRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	if err := s.validate.Struct(&req); err != nil {
		respondError(w, r, validationError(err))
		return
	}

	saved, err := s.alertService.UpsertRule(r.Context(), req.toRule(id, p.UserID))
	if err != nil {
		respondError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, saved)
}

// handleDeleteRule handles DELETE /alert-rules/{id}. Admins may delete any rule.
func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	p, err := requireRole(r, RoleAdmin, RoleUser)
	if err != nil {
		respondError(w, r, err)
		return
	}

	id, err := pathID(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	owner := p.UserID
	if p.IsAdmin() {
		owner = ""
	}
	if err := s.alertService.DeleteRule(r.Context(), id, owner); err != nil {
		respondError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
