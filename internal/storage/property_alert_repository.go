package storage

import (
	"context"
	"time"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

const propertyAlertColumns = `
	id, rule_id, property_id, user_id, alert_type, severity, title, message,
	days_until_event, acknowledged, acknowledged_at, created_at`

// PropertyAlertRepository handles property alert persistence
type PropertyAlertRepository struct {
	db *PostgresDB
}

// NewPropertyAlertRepository creates a new property alert repository
func NewPropertyAlertRepository(db *PostgresDB) *PropertyAlertRepository {
	return &PropertyAlertRepository{db: db}
}

func scanPropertyAlert(row rowScanner) (*models.PropertyAlert, error) {
	var a models.PropertyAlert
	err := row.Scan(
		&a.ID,
		&a.RuleID,
		&a.PropertyID,
		&a.UserID,
		&a.AlertType,
		&a.Severity,
		&a.Title,
		&a.Message,
		&a.DaysUntilEvent,
		&a.Acknowledged,
		&a.AcknowledgedAt,
		&a.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateAlertIfAbsent inserts the alert unless an open alert exists for the
// same rule and property. The partial unique index on open alerts makes the
// check and the insert a single statement, so concurrent scans cannot both
// succeed.
func (r *PropertyAlertRepository) CreateAlertIfAbsent(ctx context.Context, alert *models.PropertyAlert) (bool, error) {
	query := `
		INSERT INTO property_alerts (
			id, rule_id, property_id, user_id, alert_type, severity, title, message,
			days_until_event, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (rule_id, property_id) WHERE NOT acknowledged DO NOTHING
	`

	tag, err := r.db.Pool().Exec(ctx, query,
		alert.ID,
		alert.RuleID,
		alert.PropertyID,
		alert.UserID,
		alert.AlertType,
		alert.Severity,
		alert.Title,
		alert.Message,
		alert.DaysUntilEvent,
		alert.CreatedAt,
	)
	if err != nil {
		return false, apperrors.NewStoreError("create property alert", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Acknowledge marks one of userID's alerts acknowledged. Acknowledging twice keeps the first timestamp.
func (r *PropertyAlertRepository) Acknowledge(ctx context.Context, alertID, userID string, at time.Time) (*models.PropertyAlert, error) {
	query := `
		UPDATE property_alerts
		SET acknowledged = TRUE, acknowledged_at = COALESCE(acknowledged_at, $3)
		WHERE id = $1 AND user_id = $2
		RETURNING ` + propertyAlertColumns

	alert, err := scanPropertyAlert(r.db.Pool().QueryRow(ctx, query, alertID, userID, at))
	if err != nil {
		return nil, wrapQueryError(err, "acknowledge property alert", "property alert", alertID)
	}
	return alert, nil
}

// ListOpen returns userID's unacknowledged alerts, newest first
func (r *PropertyAlertRepository) ListOpen(ctx context.Context, userID string, limit int) ([]*models.PropertyAlert, error) {
	query := `
		SELECT ` + propertyAlertColumns + `
		FROM property_alerts
		WHERE user_id = $1 AND NOT acknowledged
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.db.Pool().Query(ctx, query, userID, limit)
	if err != nil {
		return nil, apperrors.NewStoreError("list property alerts", err)
	}
	defer rows.Close()

	var alerts []*models.PropertyAlert
	for rows.Next() {
		alert, err := scanPropertyAlert(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("scan property alert", err)
		}
		alerts = append(alerts, alert)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("list property alerts", err)
	}
	return alerts, nil
}
