// Package alert evaluates user alert rules against the property corpus and
// issues deduplicated property alerts.
package alert

import (
	"fmt"
	"math"

	"github.com/property-scanner/internal/models"
)

// MatchResult is the outcome of evaluating one rule against one property.
// Reason names the first predicate that rejected the property.
type MatchResult struct {
	Matched bool
	Reason  string
}

func rejected(reason string) MatchResult {
	return MatchResult{Reason: reason}
}

// Match evaluates every configured predicate of rule against p. All configured
// predicates must pass. A predicate whose property field is null does not pass.
// A rule with no configured predicate matches nothing.
//
// Match is pure: it reads nothing but its arguments.
func Match(rule *models.AlertRule, p *models.Property) MatchResult {
	if !hasCriteria(rule) {
		return rejected("rule has no criteria")
	}

	if rule.ScoreThreshold != nil {
		if p.InvestabilityScore == nil {
			return rejected("investability score unknown")
		}
		if *p.InvestabilityScore < *rule.ScoreThreshold {
			return rejected("score below threshold")
		}
	}

	if len(rule.CountyIDs) > 0 {
		if p.CountyID == nil {
			return rejected("county unknown")
		}
		if !contains(rule.CountyIDs, *p.CountyID) {
			return rejected("county not selected")
		}
	}

	if len(rule.PropertyTypes) > 0 {
		if p.PropertyType == nil {
			return rejected("property type unknown")
		}
		if !contains(rule.PropertyTypes, *p.PropertyType) {
			return rejected("property type not selected")
		}
	}

	if rule.MaxBid != nil {
		if p.AmountDue == nil {
			return rejected("amount due unknown")
		}
		if p.AmountDue.GreaterThan(*rule.MaxBid) {
			return rejected("amount due above max bid")
		}
	}

	if rule.MinAcres != nil || rule.MaxAcres != nil {
		if p.Acres == nil {
			return rejected("acreage unknown")
		}
		if rule.MinAcres != nil && *p.Acres < *rule.MinAcres {
			return rejected("acreage below minimum")
		}
		if rule.MaxAcres != nil && *p.Acres > *rule.MaxAcres {
			return rejected("acreage above maximum")
		}
	}

	return MatchResult{Matched: true}
}

func hasCriteria(rule *models.AlertRule) bool {
	return rule.ScoreThreshold != nil ||
		len(rule.CountyIDs) > 0 ||
		len(rule.PropertyTypes) > 0 ||
		rule.MaxBid != nil ||
		rule.MinAcres != nil ||
		rule.MaxAcres != nil
}

func contains(values []string, v string) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

// validateProperty rejects records that cannot be evaluated meaningfully.
// Null fields are fine here; they fail closed in Match.
func validateProperty(p *models.Property) error {
	if p.ID == "" {
		return fmt.Errorf("property has no id")
	}
	if s := p.InvestabilityScore; s != nil && (math.IsNaN(*s) || math.IsInf(*s, 0) || *s < 0) {
		return fmt.Errorf("invalid investability score %v", *s)
	}
	if a := p.Acres; a != nil && (math.IsNaN(*a) || math.IsInf(*a, 0) || *a < 0) {
		return fmt.Errorf("invalid acreage %v", *a)
	}
	if p.AmountDue != nil && p.AmountDue.IsNegative() {
		return fmt.Errorf("negative amount due %s", p.AmountDue.String())
	}
	return nil
}
