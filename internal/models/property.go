package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Property is a tax-sale parcel in the property corpus.
// Nullable attributes are pointers so a missing value is distinguishable from zero.
type Property struct {
	ID                 string           `json:"id" db:"id"`
	ParcelID           string           `json:"parcel_id" db:"parcel_id"`
	CountyID           *string          `json:"county_id" db:"county_id"`
	CountyName         *string          `json:"county_name" db:"county_name"`
	PropertyType       *string          `json:"property_type" db:"property_type"`
	Status             string           `json:"status" db:"status"`
	InvestabilityScore *float64         `json:"investability_score" db:"investability_score"`
	AmountDue          *decimal.Decimal `json:"amount_due" db:"amount_due"`
	Acres              *float64         `json:"acres" db:"acres"`
	SaleDate           *time.Time       `json:"sale_date" db:"sale_date"`
	DeletedAt          *time.Time       `json:"deleted_at,omitempty" db:"deleted_at"`
}

// IsDeleted reports whether the property has been soft-deleted
func (p *Property) IsDeleted() bool {
	return p.DeletedAt != nil
}

// PropertyFilter narrows a property listing. Empty slices mean no constraint.
type PropertyFilter struct {
	IDs           []string
	CountyIDs     []string
	PropertyTypes []string
	Statuses      []string
	// AfterID and Limit page through the corpus in id order
	AfterID string
	Limit   int
}
