package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"cardgate/internal/distribution/models"
	"cardgate/pkg/domain"
	"cardgate/pkg/platform/sentinel"
)

// InMemory is a process-local ledger. Consume is a compare-and-set under the
// write lock, so concurrent consumers of one token see exactly one success.
type InMemory struct {
	mu      sync.RWMutex
	byID    map[domain.DistributionID]*models.Distribution
	byToken map[string]domain.DistributionID
}

func NewInMemory() *InMemory {
	return &InMemory{
		byID:    make(map[domain.DistributionID]*models.Distribution),
		byToken: make(map[string]domain.DistributionID),
	}
}

func (s *InMemory) Create(_ context.Context, d *models.Distribution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[d.ID]; exists {
		return sentinel.ErrConflict
	}
	if _, exists := s.byToken[d.Token]; exists {
		return sentinel.ErrConflict
	}
	s.byID[d.ID] = clone(d)
	s.byToken[d.Token] = d.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.DistributionID) (*models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(d), nil
}

func (s *InMemory) FindByToken(_ context.Context, token string) (*models.Distribution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return clone(s.byID[id]), nil
}

func (s *InMemory) TouchFetched(_ context.Context, id domain.DistributionID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	d.LastAccessedAt = &at
	return nil
}

func (s *InMemory) Consume(_ context.Context, token string, at time.Time) (*models.Distribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	d := s.byID[id]
	if d.Status == models.StatusConsumed {
		return nil, sentinel.ErrAlreadyUsed
	}
	if d.IsExpired(at) {
		return nil, sentinel.ErrExpired
	}
	d.Status = models.StatusConsumed
	d.UsedAt = &at
	return clone(d), nil
}

func (s *InMemory) ListByIssuer(_ context.Context, issuer domain.UserID) ([]*models.Distribution, error) {
	return s.filter(func(d *models.Distribution) bool { return d.IssuerID == issuer }), nil
}

func (s *InMemory) ListByRecipient(_ context.Context, recipient domain.UserID) ([]*models.Distribution, error) {
	return s.filter(func(d *models.Distribution) bool { return d.RecipientID == recipient }), nil
}

// filter returns matches newest first.
func (s *InMemory) filter(keep func(*models.Distribution) bool) []*models.Distribution {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Distribution
	for _, d := range s.byID {
		if keep(d) {
			out = append(out, clone(d))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func clone(d *models.Distribution) *models.Distribution {
	cp := *d
	if d.LastAccessedAt != nil {
		t := *d.LastAccessedAt
		cp.LastAccessedAt = &t
	}
	if d.UsedAt != nil {
		t := *d.UsedAt
		cp.UsedAt = &t
	}
	return &cp
}
