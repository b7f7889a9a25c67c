package extractor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"newsflow/internal/domain/entity"
	"newsflow/internal/repository"
)

// Learning thresholds.
const (
	// selectorReuseRate is the minimum learned success rate for a selector
	// to be tried ahead of the full strategy list.
	selectorReuseRate = 0.7

	// selectorRateStep is the bump applied to a selector's rate on success.
	selectorRateStep = 0.1

	// stableSuccessThreshold marks a host as stable.
	stableSuccessThreshold = 5

	// discoveryMinAttempts is the minimum recorded attempts before
	// AI-assisted selector discovery may trigger.
	discoveryMinAttempts = 3

	// discoveryMaxSuccessRate is the success ceiling below which discovery
	// triggers.
	discoveryMaxSuccessRate = 0.3

	// discoveryCooldown spaces out repeated AI analyses per host.
	discoveryCooldown = 12 * time.Hour
)

// MemoryStore keeps per-host learned extraction state in process, with a
// persisted snapshot for restart survival. All data is advisory: load errors
// degrade to an empty memory and extraction proceeds on the full strategy
// list.
type MemoryStore struct {
	mu    sync.Mutex
	hosts map[string]*entity.DomainMemory
	repo  repository.DomainMemoryRepository
}

// NewMemoryStore creates a store backed by the optional repository.
func NewMemoryStore(repo repository.DomainMemoryRepository) *MemoryStore {
	return &MemoryStore{
		hosts: make(map[string]*entity.DomainMemory),
		repo:  repo,
	}
}

// get returns the in-process record for domain, loading the persisted
// snapshot once per process on first access.
func (s *MemoryStore) get(ctx context.Context, domain string) *entity.DomainMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.hosts[domain]; ok {
		return m
	}

	m := &entity.DomainMemory{
		Domain:        domain,
		Successes:     make(map[string]int64),
		Failures:      make(map[string]int64),
		SelectorRates: make(map[string]float64),
	}
	if s.repo != nil {
		if loaded, err := s.repo.Get(ctx, domain); err == nil {
			m = loaded
			if m.Successes == nil {
				m.Successes = make(map[string]int64)
			}
			if m.Failures == nil {
				m.Failures = make(map[string]int64)
			}
			if m.SelectorRates == nil {
				m.SelectorRates = make(map[string]float64)
			}
		} else if !errors.Is(err, entity.ErrNotFound) {
			slog.Debug("domain memory load failed, starting empty",
				slog.String("domain", domain), slog.Any("error", err))
		}
	}
	s.hosts[domain] = m
	return m
}

// BestMethod returns the previously most successful strategy for the host,
// or "" when nothing is learned.
func (s *MemoryStore) BestMethod(ctx context.Context, domain string) string {
	return s.get(ctx, domain).BestMethod
}

// TopSelectors returns learned selectors with a success rate above the reuse
// threshold, best first.
func (s *MemoryStore) TopSelectors(ctx context.Context, domain string) []string {
	m := s.get(ctx, domain)
	s.mu.Lock()
	defer s.mu.Unlock()

	type rated struct {
		selector string
		rate     float64
	}
	var candidates []rated
	for key, rate := range m.SelectorRates {
		if rate > selectorReuseRate {
			candidates = append(candidates, rated{key, rate})
		}
	}
	// Insertion-order independence: selection sort by rate, descending.
	out := make([]string, 0, len(candidates))
	for len(candidates) > 0 {
		best := 0
		for i, c := range candidates {
			if c.rate > candidates[best].rate {
				best = i
			}
		}
		out = append(out, candidates[best].selector)
		candidates = append(candidates[:best], candidates[best+1:]...)
	}
	return out
}

// RecordSuccess bumps the strategy counter and, when a selector matched,
// raises its rolling rate by one step capped at 1.0.
func (s *MemoryStore) RecordSuccess(ctx context.Context, domain, strategy, selector string) {
	m := s.get(ctx, domain)
	s.mu.Lock()
	m.Successes[strategy]++
	m.BestMethod = strategy
	m.ConsecutiveFails = 0
	if selector != "" {
		key := strategy + ":" + selector
		rate := m.SelectorRates[key]
		if rate == 0 {
			rate = selectorRateStep
		} else {
			rate += selectorRateStep
		}
		if rate > 1.0 {
			rate = 1.0
		}
		m.SelectorRates[key] = rate
	}
	var ok int64
	for _, c := range m.Successes {
		ok += c
	}
	if ok >= stableSuccessThreshold {
		m.Stable = true
	}
	s.mu.Unlock()

	s.persist(ctx, m)
}

// RecordFailure increments the failure counter only.
func (s *MemoryStore) RecordFailure(ctx context.Context, domain, strategy string) {
	m := s.get(ctx, domain)
	s.mu.Lock()
	m.Failures[strategy]++
	m.ConsecutiveFails++
	s.mu.Unlock()

	s.persist(ctx, m)
}

// ShouldDiscover reports whether the host qualifies for AI-assisted selector
// discovery: enough recorded attempts, a poor success rate, and no recent
// analysis.
func (s *MemoryStore) ShouldDiscover(ctx context.Context, domain string, now time.Time) bool {
	m := s.get(ctx, domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.TotalAttempts() < discoveryMinAttempts {
		return false
	}
	if m.SuccessRate() >= discoveryMaxSuccessRate {
		return false
	}
	if m.LastAIAnalysis != nil && now.Sub(*m.LastAIAnalysis) < discoveryCooldown {
		return false
	}
	return true
}

// MarkAIAnalysis records a discovery run and stores accepted selectors with
// an initial rate.
func (s *MemoryStore) MarkAIAnalysis(ctx context.Context, domain, strategy string, selectors []string, at time.Time) {
	m := s.get(ctx, domain)
	s.mu.Lock()
	m.LastAIAnalysis = &at
	for _, sel := range selectors {
		key := strategy + ":" + sel
		if m.SelectorRates[key] == 0 {
			m.SelectorRates[key] = selectorRateStep
		}
	}
	s.mu.Unlock()

	s.persist(ctx, m)
}

// Snapshot returns a copy of every tracked host for the stats endpoint.
func (s *MemoryStore) Snapshot() []entity.DomainMemory {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]entity.DomainMemory, 0, len(s.hosts))
	for _, m := range s.hosts {
		out = append(out, *m)
	}
	return out
}

func (s *MemoryStore) persist(ctx context.Context, m *entity.DomainMemory) {
	if s.repo == nil {
		return
	}
	s.mu.Lock()
	snapshot := *m
	s.mu.Unlock()
	if err := s.repo.Upsert(ctx, &snapshot); err != nil {
		// Advisory state: persistence failures never fail extraction.
		slog.Debug("domain memory persist failed",
			slog.String("domain", m.Domain), slog.Any("error", err))
	}
}
