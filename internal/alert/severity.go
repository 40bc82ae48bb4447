package alert

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/property-scanner/internal/models"
)

// upcomingSaleWindow is how many days ahead a sale makes an alert an upcoming_sale
const upcomingSaleWindow = 30

// SeverityPolicy grades a match by how many soft margins it clears
type SeverityPolicy struct {
	// ScoreMargin is how many points above the rule threshold a score must be
	ScoreMargin float64
	// BidMargin is the fraction below max_bid the amount due must be, in [0, 1)
	BidMargin float64
}

// DefaultSeverityPolicy returns the default margins
func DefaultSeverityPolicy() SeverityPolicy {
	return SeverityPolicy{ScoreMargin: 10, BidMargin: 0.25}
}

// Grade returns info when no margin is exceeded, warning for one and critical for two.
// Only predicates configured on the rule can contribute.
func (sp SeverityPolicy) Grade(rule *models.AlertRule, p *models.Property) models.AlertSeverity {
	exceeded := 0

	if rule.ScoreThreshold != nil && p.InvestabilityScore != nil &&
		*p.InvestabilityScore >= *rule.ScoreThreshold+sp.ScoreMargin {
		exceeded++
	}

	if rule.MaxBid != nil && p.AmountDue != nil {
		ceiling := rule.MaxBid.Mul(decimal.NewFromFloat(1 - sp.BidMargin))
		if p.AmountDue.LessThanOrEqual(ceiling) {
			exceeded++
		}
	}

	switch exceeded {
	case 0:
		return models.SeverityInfo
	case 1:
		return models.SeverityWarning
	default:
		return models.SeverityCritical
	}
}

// daysUntil returns the whole days from now to the sale date, rounded up.
// Past sales are negative. Nil when the sale date is unknown.
func daysUntil(saleDate *time.Time, now time.Time) *int {
	if saleDate == nil {
		return nil
	}
	days := int(math.Ceil(saleDate.Sub(now).Hours() / 24))
	return &days
}

func alertType(days *int) string {
	if days != nil && *days >= 0 && *days <= upcomingSaleWindow {
		return models.AlertTypeUpcomingSale
	}
	return models.AlertTypeRuleMatch
}

// newAlert builds the alert row for a matched pair
func newAlert(rule *models.AlertRule, p *models.Property, severity models.AlertSeverity, now time.Time) *models.PropertyAlert {
	days := daysUntil(p.SaleDate, now)
	return &models.PropertyAlert{
		ID:             uuid.NewString(),
		RuleID:         rule.ID,
		PropertyID:     p.ID,
		UserID:         rule.UserID,
		AlertType:      alertType(days),
		Severity:       severity,
		Title:          fmt.Sprintf("%s: parcel %s", rule.Name, p.ParcelID),
		Message:        describe(p, days),
		DaysUntilEvent: days,
		CreatedAt:      now,
	}
}

func describe(p *models.Property, days *int) string {
	parts := make([]string, 0, 4)
	if p.CountyName != nil {
		parts = append(parts, *p.CountyName+" County")
	}
	if p.InvestabilityScore != nil {
		parts = append(parts, fmt.Sprintf("score %.1f", *p.InvestabilityScore))
	}
	if p.AmountDue != nil {
		parts = append(parts, "amount due $"+p.AmountDue.StringFixed(2))
	}
	if days != nil {
		switch {
		case *days < 0:
			parts = append(parts, fmt.Sprintf("sale was %d days ago", -*days))
		case *days == 0:
			parts = append(parts, "sale is today")
		default:
			parts = append(parts, fmt.Sprintf("sale in %d days", *days))
		}
	}
	if len(parts) == 0 {
		return "Property matches your alert rule"
	}
	return strings.Join(parts, ", ")
}
