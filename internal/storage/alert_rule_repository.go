package storage

import (
	"context"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

const alertRuleColumns = `
	id, user_id, name, enabled, score_threshold, county_ids, property_types,
	max_bid, min_acres, max_acres, notification_frequency, created_at, updated_at`

// AlertRuleRepository handles alert rule persistence
type AlertRuleRepository struct {
	db *PostgresDB
}

// NewAlertRuleRepository creates a new alert rule repository
func NewAlertRuleRepository(db *PostgresDB) *AlertRuleRepository {
	return &AlertRuleRepository{db: db}
}

func scanAlertRule(row rowScanner) (*models.AlertRule, error) {
	var rule models.AlertRule
	err := row.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Name,
		&rule.Enabled,
		&rule.ScoreThreshold,
		&rule.CountyIDs,
		&rule.PropertyTypes,
		&rule.MaxBid,
		&rule.MinAcres,
		&rule.MaxAcres,
		&rule.NotificationFrequency,
		&rule.CreatedAt,
		&rule.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *AlertRuleRepository) queryRules(ctx context.Context, operation, query string, args ...any) ([]*models.AlertRule, error) {
	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError(operation, err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanAlertRule(rows)
		if err != nil {
			return nil, apperrors.NewStoreError(operation, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError(operation, err)
	}
	return rules, nil
}

// GetByID retrieves a rule by ID
func (r *AlertRuleRepository) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	query := `SELECT ` + alertRuleColumns + ` FROM alert_rules WHERE id = $1`

	rule, err := scanAlertRule(r.db.Pool().QueryRow(ctx, query, id))
	if err != nil {
		return nil, wrapQueryError(err, "get alert rule", "alert rule", id)
	}
	return rule, nil
}

// Upsert inserts the rule or replaces every mutable column of the existing row.
// created_at and the owner are preserved on update.
func (r *AlertRuleRepository) Upsert(ctx context.Context, rule *models.AlertRule) (*models.AlertRule, error) {
	query := `
		INSERT INTO alert_rules (
			id, user_id, name, enabled, score_threshold, county_ids, property_types,
			max_bid, min_acres, max_acres, notification_frequency
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			enabled = EXCLUDED.enabled,
			score_threshold = EXCLUDED.score_threshold,
			county_ids = EXCLUDED.county_ids,
			property_types = EXCLUDED.property_types,
			max_bid = EXCLUDED.max_bid,
			min_acres = EXCLUDED.min_acres,
			max_acres = EXCLUDED.max_acres,
			notification_frequency = EXCLUDED.notification_frequency,
			updated_at = NOW()
		RETURNING ` + alertRuleColumns

	countyIDs := rule.CountyIDs
	if countyIDs == nil {
		countyIDs = []string{}
	}
	propertyTypes := rule.PropertyTypes
	if propertyTypes == nil {
		propertyTypes = []string{}
	}

	saved, err := scanAlertRule(r.db.Pool().QueryRow(ctx, query,
		rule.ID,
		rule.UserID,
		rule.Name,
		rule.Enabled,
		rule.ScoreThreshold,
		countyIDs,
		propertyTypes,
		rule.MaxBid,
		rule.MinAcres,
		rule.MaxAcres,
		rule.NotificationFrequency,
	))
	if err != nil {
		return nil, apperrors.NewStoreError("upsert alert rule", err)
	}
	return saved, nil
}

// Delete removes a rule. Its alerts go with it through the foreign key cascade.
func (r *AlertRuleRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Pool().Exec(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return apperrors.NewStoreError("delete alert rule", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.NewNotFoundError("alert rule", id)
	}
	return nil
}

// ListByUser returns a user's rules, newest first
func (r *AlertRuleRepository) ListByUser(ctx context.Context, userID string) ([]*models.AlertRule, error) {
	query := `SELECT ` + alertRuleColumns + ` FROM alert_rules WHERE user_id = $1 ORDER BY created_at DESC`
	return r.queryRules(ctx, "list alert rules", query, userID)
}

// ListEnabledRules returns enabled rules, restricted to ids when non-empty
func (r *AlertRuleRepository) ListEnabledRules(ctx context.Context, ids []string) ([]*models.AlertRule, error) {
	if len(ids) == 0 {
		query := `SELECT ` + alertRuleColumns + ` FROM alert_rules WHERE enabled ORDER BY id`
		return r.queryRules(ctx, "list enabled alert rules", query)
	}
	query := `SELECT ` + alertRuleColumns + ` FROM alert_rules WHERE enabled AND id = ANY($1::uuid[]) ORDER BY id`
	return r.queryRules(ctx, "list enabled alert rules", query, ids)
}
