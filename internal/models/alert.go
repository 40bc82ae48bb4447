package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// NotificationFrequency governs how often the scanner is expected to run for a rule
type NotificationFrequency string

const (
	FrequencyImmediate NotificationFrequency = "immediate"
	FrequencyDaily     NotificationFrequency = "daily"
	FrequencyWeekly    NotificationFrequency = "weekly"
)

// AlertRule is a user-defined predicate set used to flag properties of interest.
// A nil criterion places no constraint on that dimension.
type AlertRule struct {
	ID                    string                `json:"id" db:"id"`
	UserID                string                `json:"user_id" db:"user_id"`
	Name                  string                `json:"name" db:"name"`
	Enabled               bool                  `json:"enabled" db:"enabled"`
	ScoreThreshold        *float64              `json:"score_threshold" db:"score_threshold"`
	CountyIDs             []string              `json:"county_ids" db:"county_ids"`
	PropertyTypes         []string              `json:"property_types" db:"property_types"`
	MaxBid                *decimal.Decimal      `json:"max_bid" db:"max_bid"`
	MinAcres              *float64              `json:"min_acres" db:"min_acres"`
	MaxAcres              *float64              `json:"max_acres" db:"max_acres"`
	NotificationFrequency NotificationFrequency `json:"notification_frequency" db:"notification_frequency"`
	CreatedAt             time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt             time.Time             `json:"updated_at" db:"updated_at"`
}

// AlertSeverity grades how far a match exceeds its rule's soft thresholds
type AlertSeverity string

const (
	SeverityInfo     AlertSeverity = "info"
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

// Alert types
const (
	AlertTypeRuleMatch    = "rule_match"
	AlertTypeUpcomingSale = "upcoming_sale"
)

// PropertyAlert is a notification that a rule matched a property.
// At most one open (unacknowledged) alert exists per rule/property pair.
type PropertyAlert struct {
	ID             string        `json:"id" db:"id"`
	RuleID         string        `json:"rule_id" db:"rule_id"`
	PropertyID     string        `json:"property_id" db:"property_id"`
	UserID         string        `json:"user_id" db:"user_id"`
	AlertType      string        `json:"alert_type" db:"alert_type"`
	Severity       AlertSeverity `json:"severity" db:"severity"`
	Title          string        `json:"title" db:"title"`
	Message        string        `json:"message" db:"message"`
	DaysUntilEvent *int          `json:"days_until_event" db:"days_until_event"`
	Acknowledged   bool          `json:"acknowledged" db:"acknowledged"`
	AcknowledgedAt *time.Time    `json:"acknowledged_at,omitempty" db:"acknowledged_at"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}
