package alert

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/property-scanner/internal/config"
	apperrors "github.com/property-scanner/internal/errors"
	"github.com/property-scanner/internal/logging"
	"github.com/property-scanner/internal/models"
)

// FullScanLeaseKey guards scans over the whole corpus
const FullScanLeaseKey = "scan:full"

// RuleSource lists alert rules
type RuleSource interface {
	// ListEnabledRules returns enabled rules, restricted to ids when non-empty
	ListEnabledRules(ctx context.Context, ids []string) ([]*models.AlertRule, error)
}

// PropertySource pages through active properties in id order
type PropertySource interface {
	ListActive(ctx context.Context, filter models.PropertyFilter) ([]*models.Property, error)
}

// AlertStore persists alerts
type AlertStore interface {
	// CreateAlertIfAbsent inserts alert unless an open alert already exists for
	// its rule and property. The check and the insert are one operation.
	CreateAlertIfAbsent(ctx context.Context, alert *models.PropertyAlert) (bool, error)
}

// Lease is a distributed mutual-exclusion token with a TTL
type Lease interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (token string, acquired bool, err error)
	Release(ctx context.Context, key, token string) error
}

// ScanRequest narrows a scan. Empty slices mean everything.
type ScanRequest struct {
	PropertyIDs []string `json:"propertyIds"`
	RuleIDs     []string `json:"ruleIds"`
}

// IsFull reports whether the scan covers every rule and property
func (r *ScanRequest) IsFull() bool {
	return len(r.PropertyIDs) == 0 && len(r.RuleIDs) == 0
}

// ScanResult holds the scan counters
type ScanResult struct {
	AlertsCreated     int `json:"alertsCreated"`
	RulesChecked      int `json:"rulesChecked"`
	PropertiesScanned int `json:"propertiesScanned"`
}

// Scanner matches rules against properties and records new alerts
type Scanner struct {
	rules       RuleSource
	properties  PropertySource
	alerts      AlertStore
	lease       Lease
	policy      SeverityPolicy
	pageSize    int
	concurrency int
	leaseTTL    time.Duration
	now         func() time.Time
}

// NewScanner creates a scanner. lease may be nil, in which case full scans are not serialised.
func NewScanner(rules RuleSource, properties PropertySource, alerts AlertStore, lease Lease, cfg *config.ScannerConfig) *Scanner {
	s := &Scanner{
		rules:       rules,
		properties:  properties,
		alerts:      alerts,
		lease:       lease,
		policy:      SeverityPolicy{ScoreMargin: cfg.ScoreMargin, BidMargin: cfg.BidMargin},
		pageSize:    cfg.PageSize,
		concurrency: cfg.Concurrency,
		leaseTTL:    cfg.LeaseTTL,
		now:         time.Now,
	}
	if s.pageSize <= 0 {
		s.pageSize = 500
	}
	if s.concurrency <= 0 {
		s.concurrency = 1
	}
	if s.leaseTTL <= 0 {
		s.leaseTTL = 10 * time.Minute
	}
	return s
}

// Scan evaluates the requested rules against the requested properties.
//
// Evaluation order is unspecified. Duplicate suppression relies on the store's
// CreateAlertIfAbsent, so overlapping scans never issue two open alerts for the
// same rule and property.
func (s *Scanner) Scan(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	logger := logging.FromContext(ctx).WithFields(map[string]interface{}{
		"propertyIds": len(req.PropertyIDs),
		"ruleIds":     len(req.RuleIDs),
	})

	if req.IsFull() && s.lease != nil {
		token, acquired, err := s.lease.Acquire(ctx, FullScanLeaseKey, s.leaseTTL)
		if err != nil {
			return nil, apperrors.NewStoreError("acquire scan lease", err)
		}
		if !acquired {
			return nil, apperrors.NewConflictError("a full scan is already running")
		}
		defer func() {
			// release on a fresh context so a cancelled scan still frees the lease
			releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.lease.Release(releaseCtx, FullScanLeaseKey, token); err != nil {
				logger.WithError(err).Warn("Failed to release scan lease")
			}
		}()
	}

	start := s.now()
	rules, err := s.enabledRules(ctx, req.RuleIDs)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{RulesChecked: len(rules)}
	if len(rules) == 0 {
		logger.Info("Alert scan found no enabled rules")
		return result, nil
	}

	var created int64
	seen := make(map[string]struct{})
	filter := models.PropertyFilter{IDs: req.PropertyIDs, Limit: s.pageSize}

	for {
		page, err := s.properties.ListActive(ctx, filter)
		if err != nil {
			return nil, asStoreError("list properties", err)
		}

		candidates := make([]*models.Property, 0, len(page))
		for _, p := range page {
			if p.IsDeleted() {
				continue
			}
			if _, dup := seen[p.ID]; dup && p.ID != "" {
				continue
			}
			seen[p.ID] = struct{}{}
			result.PropertiesScanned++

			if err := validateProperty(p); err != nil {
				logger.WithError(err).WithField("propertyId", p.ID).Warn("Skipping malformed property")
				continue
			}
			candidates = append(candidates, p)
		}

		if err := s.evaluate(ctx, rules, candidates, start, &created); err != nil {
			return nil, err
		}

		if len(page) < s.pageSize {
			break
		}
		// the keyset cursor must move forward or the next page repeats this one
		last := page[len(page)-1].ID
		if last == "" || last <= filter.AfterID {
			logger.WithFields(map[string]interface{}{
				"afterId": filter.AfterID,
				"lastId":  last,
			}).Warn("Property page did not advance the cursor, stopping scan")
			break
		}
		filter.AfterID = last
	}

	result.AlertsCreated = int(atomic.LoadInt64(&created))
	logger.WithFields(map[string]interface{}{
		"alertsCreated":     result.AlertsCreated,
		"rulesChecked":      result.RulesChecked,
		"propertiesScanned": result.PropertiesScanned,
		"duration":          s.now().Sub(start).String(),
	}).Info("Alert scan completed")

	return result, nil
}

func (s *Scanner) enabledRules(ctx context.Context, ids []string) ([]*models.AlertRule, error) {
	listed, err := s.rules.ListEnabledRules(ctx, ids)
	if err != nil {
		return nil, asStoreError("list alert rules", err)
	}
	rules := make([]*models.AlertRule, 0, len(listed))
	for _, r := range listed {
		if r.Enabled {
			rules = append(rules, r)
		}
	}
	return rules, nil
}

// evaluate fans the rules out over one page of properties
func (s *Scanner) evaluate(ctx context.Context, rules []*models.AlertRule, page []*models.Property, now time.Time, created *int64) error {
	if len(page) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, rule := range rules {
		rule := rule
		g.Go(func() error {
			for _, p := range page {
				if !Match(rule, p).Matched {
					continue
				}
				alert := newAlert(rule, p, s.policy.Grade(rule, p), now)
				inserted, err := s.alerts.CreateAlertIfAbsent(gctx, alert)
				if err != nil {
					return asStoreError("create property alert", err)
				}
				if inserted {
					atomic.AddInt64(created, 1)
				}
			}
			return nil
		})
	}

	return g.Wait()
}

func asStoreError(op string, err error) error {
	var catErr *apperrors.CategorizedError
	if errors.As(err, &catErr) {
		return err
	}
	return apperrors.NewStoreError(op, err)
}
