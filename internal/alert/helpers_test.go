package alert

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/property-scanner/internal/config"
	"github.com/property-scanner/internal/models"
)

var scanTime = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

type memRuleSource struct {
	rules []*models.AlertRule
	err   error
}

// ListEnabledRules deliberately returns disabled rules too so the scanner's own filter is exercised
func (s *memRuleSource) ListEnabledRules(ctx context.Context, ids []string) ([]*models.AlertRule, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.AlertRule
	for _, r := range s.rules {
		if len(ids) == 0 || contains(ids, r.ID) {
			out = append(out, r)
		}
	}
	return out, nil
}

type memPropertySource struct {
	mu         sync.Mutex
	properties []*models.Property
	pages      int
}

func newPropertySource(props ...*models.Property) *memPropertySource {
	sorted := append([]*models.Property(nil), props...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &memPropertySource{properties: sorted}
}

func (s *memPropertySource) ListActive(ctx context.Context, filter models.PropertyFilter) ([]*models.Property, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pages++
	var out []*models.Property
	for _, p := range s.properties {
		if filter.AfterID != "" && p.ID <= filter.AfterID {
			continue
		}
		if len(filter.IDs) > 0 && !contains(filter.IDs, p.ID) {
			continue
		}
		out = append(out, p)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out, nil
}

// stuckPropertySource returns the same page on every call, ignoring the cursor
type stuckPropertySource struct {
	page  []*models.Property
	calls int
}

func (s *stuckPropertySource) ListActive(ctx context.Context, filter models.PropertyFilter) ([]*models.Property, error) {
	s.calls++
	if s.calls > 10 {
		return nil, errors.New("paging did not stop")
	}
	return s.page, nil
}

// memAlertStore enforces one open alert per rule/property pair under a single lock
type memAlertStore struct {
	mu     sync.Mutex
	alerts []*models.PropertyAlert
	err    error
}

func (s *memAlertStore) CreateAlertIfAbsent(ctx context.Context, alert *models.PropertyAlert) (bool, error) {
	if s.err != nil {
		return false, s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		if a.RuleID == alert.RuleID && a.PropertyID == alert.PropertyID && !a.Acknowledged {
			return false, nil
		}
	}
	s.alerts = append(s.alerts, alert)
	return true, nil
}

func (s *memAlertStore) open(ruleID, propertyID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.alerts {
		if a.RuleID == ruleID && a.PropertyID == propertyID && !a.Acknowledged {
			n++
		}
	}
	return n
}

func (s *memAlertStore) acknowledgeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.alerts {
		a.Acknowledged = true
	}
}

func (s *memAlertStore) snapshot() []*models.PropertyAlert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.PropertyAlert(nil), s.alerts...)
}

// checkThenInsertStore looks for an open alert and inserts in two separate steps.
// gate, when set, holds every caller between the check and the insert.
type checkThenInsertStore struct {
	memAlertStore
	gate *sync.WaitGroup
}

func (s *checkThenInsertStore) CreateAlertIfAbsent(ctx context.Context, alert *models.PropertyAlert) (bool, error) {
	exists := s.open(alert.RuleID, alert.PropertyID) > 0
	if s.gate != nil {
		s.gate.Done()
		s.gate.Wait()
	}
	if exists {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return true, nil
}

type memLease struct {
	mu       sync.Mutex
	held     map[string]string
	acquired int
	released int
	err      error
}

func newMemLease() *memLease {
	return &memLease{held: make(map[string]string)}
}

func (l *memLease) Acquire(ctx context.Context, key string, ttl time.Duration) (string, bool, error) {
	if l.err != nil {
		return "", false, l.err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return "", false, nil
	}
	l.held[key] = "token"
	l.acquired++
	return "token", true, nil
}

func (l *memLease) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released++
	}
	return nil
}

var errStoreDown = errors.New("connection reset by peer")

func newTestScanner(rules RuleSource, props PropertySource, alerts AlertStore, lease Lease, pageSize int) *Scanner {
	s := NewScanner(rules, props, alerts, lease, &config.ScannerConfig{
		PageSize:    pageSize,
		Concurrency: 4,
		ScoreMargin: 10,
		BidMargin:   0.25,
		LeaseTTL:    time.Minute,
	})
	s.now = func() time.Time { return scanTime }
	return s
}

func rule(id string) *models.AlertRule {
	return &models.AlertRule{
		ID:                    id,
		UserID:                "user-1",
		Name:                  "Rule " + id,
		Enabled:               true,
		NotificationFrequency: models.FrequencyDaily,
	}
}

func property(id string) *models.Property {
	return &models.Property{
		ID:       id,
		ParcelID: "P-" + id,
		Status:   "active",
	}
}

func f64(v float64) *float64 { return &v }

func str(s string) *string { return &s }

func money(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func at(t time.Time) *time.Time { return &t }
