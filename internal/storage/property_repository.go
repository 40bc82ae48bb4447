package storage

import (
	"context"
	"fmt"
	"strings"

	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/models"
)

const (
	propertyColumns = `
		id, parcel_id, county_id, county_name, property_type, status,
		investability_score, amount_due, acres, sale_date, deleted_at`

	defaultPropertyPage = 500
)

// PropertyRepository reads the property corpus
type PropertyRepository struct {
	db *PostgresDB
}

// NewPropertyRepository creates a new property repository
func NewPropertyRepository(db *PostgresDB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

func scanProperty(row rowScanner) (*models.Property, error) {
	var p models.Property
	err := row.Scan(
		&p.ID,
		&p.ParcelID,
		&p.CountyID,
		&p.CountyName,
		&p.PropertyType,
		&p.Status,
		&p.InvestabilityScore,
		&p.AmountDue,
		&p.Acres,
		&p.SaleDate,
		&p.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts a property
func (r *PropertyRepository) Create(ctx context.Context, p *models.Property) error {
	query := `
		INSERT INTO properties (
			id, parcel_id, county_id, county_name, property_type, status,
			investability_score, amount_due, acres, sale_date, deleted_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.Pool().Exec(ctx, query,
		p.ID,
		p.ParcelID,
		p.CountyID,
		p.CountyName,
		p.PropertyType,
		p.Status,
		p.InvestabilityScore,
		p.AmountDue,
		p.Acres,
		p.SaleDate,
		p.DeletedAt,
	)
	if err != nil {
		return apperrors.NewStoreError("create property", err)
	}
	return nil
}

// ListActive returns one page of properties that are not soft-deleted, in id order
func (r *PropertyRepository) ListActive(ctx context.Context, filter models.PropertyFilter) ([]*models.Property, error) {
	conditions := []string{"deleted_at IS NULL"}
	var args []any
	addArg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if len(filter.IDs) > 0 {
		conditions = append(conditions, "id = ANY("+addArg(filter.IDs)+"::uuid[])")
	}
	if len(filter.CountyIDs) > 0 {
		conditions = append(conditions, "county_id = ANY("+addArg(filter.CountyIDs)+")")
	}
	if len(filter.PropertyTypes) > 0 {
		conditions = append(conditions, "property_type = ANY("+addArg(filter.PropertyTypes)+")")
	}
	if len(filter.Statuses) > 0 {
		conditions = append(conditions, "status = ANY("+addArg(filter.Statuses)+")")
	}
	if filter.AfterID != "" {
		conditions = append(conditions, "id > "+addArg(filter.AfterID)+"::uuid")
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPropertyPage
	}

	query := fmt.Sprintf(`SELECT %s FROM properties WHERE %s ORDER BY id LIMIT %s`,
		propertyColumns, strings.Join(conditions, " AND "), addArg(limit))

	rows, err := r.db.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, apperrors.NewStoreError("list properties", err)
	}
	defer rows.Close()

	var properties []*models.Property
	for rows.Next() {
		p, err := scanProperty(rows)
		if err != nil {
			return nil, apperrors.NewStoreError("scan property", err)
		}
		properties = append(properties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStoreError("list properties", err)
	}
	return properties, nil
}
