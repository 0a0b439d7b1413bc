package memory

import (
	"context"
	"sync"
	"time"

	"nojsfp/internal/fingerprint"
	"nojsfp/internal/repository"
	"nojsfp/internal/signal"
)

type visit struct {
	mu          sync.Mutex
	meta        repository.VisitMeta
	createdAt   time.Time
	expiresAt   time.Time
	finalizedAt time.Time
	fingerprint string
	signals     signal.Collection
}

func (v *visit) expired(now time.Time) bool {
	return !v.expiresAt.IsZero() && !now.Before(v.expiresAt)
}

// Store keeps visits in process memory. Expired visits disappear lazily on access and in bulk on
// Sweep; nothing is scheduled per visit.
type Store struct {
	mu          sync.RWMutex
	visits      map[string]*visit
	lifetime    time.Duration
	fingerprint fingerprint.Func
	now         func() time.Time
}

// New returns a store whose visits live for lifetime. A non-positive lifetime keeps visits forever.
func New(fp fingerprint.Func, lifetime time.Duration) *Store {
	return &Store{
		visits:      map[string]*visit{},
		lifetime:    lifetime,
		fingerprint: fp,
		now:         time.Now,
	}
}

func (s *Store) CreateVisit(ctx context.Context, meta repository.VisitMeta) (string, error) {
	_ = ctx
	now := s.now()
	v := &visit{
		meta: repository.VisitMeta{
			IP:        repository.Truncate(meta.IP, repository.VisitorIPMaxLength),
			UserAgent: repository.Truncate(meta.UserAgent, repository.VisitorUserAgentMaxLength),
		},
		createdAt: now,
		signals:   signal.Collection{},
	}
	if s.lifetime > 0 {
		v.expiresAt = now.Add(s.lifetime)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		id := repository.NewVisitID()
		if existing, ok := s.visits[id]; ok && !existing.expired(now) {
			continue
		}
		s.visits[id] = v
		return id, nil
	}
}

func (s *Store) lookup(visitID string) *visit {
	s.mu.RLock()
	v, ok := s.visits[visitID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}
	if v.expired(s.now()) {
		s.mu.Lock()
		if s.visits[visitID] == v {
			delete(s.visits, visitID)
		}
		s.mu.Unlock()
		return nil
	}
	return v
}

func (s *Store) AddSignals(ctx context.Context, visitID string, signals signal.Collection) error {
	_ = ctx
	if len(signals) == 0 {
		return nil
	}
	v := s.lookup(visitID)
	if v == nil {
		return nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.finalizedAt.IsZero() {
		return nil
	}
	for key, value := range signals {
		v.signals[key] = repository.Truncate(value, repository.SignalValueMaxLength)
	}
	return nil
}

func (s *Store) FinalizeAndGetVisit(ctx context.Context, visitID string, includeSignals bool) (*repository.VisitInfo, error) {
	_ = ctx
	v := s.lookup(visitID)
	if v == nil {
		return nil, nil
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.finalizedAt.IsZero() {
		v.finalizedAt = s.now()
		v.fingerprint = s.fingerprint(v.signals.Clone())
	}
	info := &repository.VisitInfo{
		FinalizedAt: v.finalizedAt,
		Fingerprint: v.fingerprint,
		Signals:     signal.Collection{},
	}
	if includeSignals {
		info.Signals = v.signals.Clone()
	}
	return info, nil
}

// Sweep drops every visit expired at now and reports how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, v := range s.visits {
		if v.expired(now) {
			delete(s.visits, id)
			removed++
		}
	}
	return removed
}

// Len counts stored visits, including expired ones not yet swept.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.visits)
}
