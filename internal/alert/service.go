package alert

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/logging"
	"github.com/property-scanner/internal/models"
)

const (
	defaultAlertLimit = 50
	maxAlertLimit     = 500
)

// RuleRepository stores alert rules
type RuleRepository interface {
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	Upsert(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error)
	Delete(ctx context.Context, id string) error
	ListByUser(ctx context.Context, userID string) ([]*models.AlertRule, error)
}

// AlertRepository stores issued alerts
type AlertRepository interface {
	Acknowledge(ctx context.Context, alertID, userID string, at time.Time) (*models.PropertyAlert, error)
	ListOpen(ctx context.Context, userID string, limit int) ([]*models.PropertyAlert, error)
}

// Service manages alert rules and a user's alerts
type Service struct {
	rules  RuleRepository
	alerts AlertRepository
	now    func() time.Time
}

// NewService creates a rule and alert service
func NewService(rules RuleRepository, alerts AlertRepository) *Service {
	return &Service{rules: rules, alerts: alerts, now: time.Now}
}

// UpsertRule creates or replaces a rule. The rule keeps its owner across
// updates; updating another user's rule is forbidden.
func (s *Service) UpsertRule(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error) {
	if err := ValidateRule(rule); err != nil {
		return nil, err
	}
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	} else {
		existing, err := s.rules.GetByID(ctx, rule.ID)
		switch {
		case err == nil && existing.UserID != rule.UserID:
			return nil, apperrors.NewForbiddenError("alert rule belongs to another user")
		case err != nil && !apperrors.IsNotFound(err):
			return nil, err
		}
	}
	if rule.NotificationFrequency == "" {
		rule.NotificationFrequency = models.FrequencyDaily
	}

	saved, err := s.rules.Upsert(ctx, rule)
	if err != nil {
		return nil, err
	}
	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"ruleId": saved.ID,
		"userId": saved.UserID,
	}).Info("Alert rule saved")
	return saved, nil
}

// DeleteRule removes a rule and its alerts. An empty userID skips the ownership check.
func (s *Service) DeleteRule(ctx context.Context, ruleID, userID string) error {
	existing, err := s.rules.GetByID(ctx, ruleID)
	if err != nil {
		return err
	}
	if userID != "" && existing.UserID != userID {
		return apperrors.NewNotFoundError("alert rule", ruleID)
	}
	return s.rules.Delete(ctx, ruleID)
}

// ListRules returns every rule owned by userID
func (s *Service) ListRules(ctx context.Context, userID string) ([]*models.AlertRule, error) {
	return s.rules.ListByUser(ctx, userID)
}

// AcknowledgeAlert marks one of userID's alerts as acknowledged. Acknowledging
// frees the rule/property pair, so a later scan may alert on it again.
func (s *Service) AcknowledgeAlert(ctx context.Context, alertID, userID string) (*models.PropertyAlert, error) {
	return s.alerts.Acknowledge(ctx, alertID, userID, s.now().UTC())
}

// ListOpenAlerts returns userID's unacknowledged alerts, newest first
func (s *Service) ListOpenAlerts(ctx context.Context, userID string, limit int) ([]*models.PropertyAlert, error) {
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}
	return s.alerts.ListOpen(ctx, userID, limit)
}

// ValidateRule checks a rule's identity and thresholds
func ValidateRule(rule *models.AlertRule) error {
	if rule.UserID == "" {
		return apperrors.NewValidationError("user_id", "is required")
	}
	if rule.Name == "" {
		return apperrors.NewValidationError("name", "is required")
	}
	if t := rule.ScoreThreshold; t != nil && (math.IsNaN(*t) || *t < 0) {
		return apperrors.NewValidationError("score_threshold", "must be a non-negative number")
	}
	if rule.MaxBid != nil && rule.MaxBid.IsNegative() {
		return apperrors.NewValidationError("max_bid", "must be non-negative")
	}
	if a := rule.MinAcres; a != nil && (math.IsNaN(*a) || *a < 0) {
		return apperrors.NewValidationError("min_acres", "must be non-negative")
	}
	if a := rule.MaxAcres; a != nil && (math.IsNaN(*a) || *a < 0) {
		return apperrors.NewValidationError("max_acres", "must be non-negative")
	}
	if rule.MinAcres != nil && rule.MaxAcres != nil && *rule.MinAcres > *rule.MaxAcres {
		return apperrors.NewValidationError("min_acres", "must not exceed max_acres")
	}
	switch rule.NotificationFrequency {
	case "", models.FrequencyImmediate, models.FrequencyDaily, models.FrequencyWeekly:
	default:
		return apperrors.NewValidationError("notification_frequency", "must be immediate, daily or weekly")
	}
	return nil
}
