package store

import (
	"context"
	"sort"
	"sync"

	"cardgate/internal/program/models"
	"cardgate/pkg/domain"
	"cardgate/pkg/platform/sentinel"
)

// InMemory is a process-local program store.
type InMemory struct {
	mu       sync.RWMutex
	programs map[domain.ProgramID]*models.Program
}

func NewInMemory() *InMemory {
	return &InMemory{programs: make(map[domain.ProgramID]*models.Program)}
}

func (s *InMemory) Create(_ context.Context, p *models.Program) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.programs[p.ID]; exists {
		return sentinel.ErrConflict
	}
	cp := *p
	s.programs[p.ID] = &cp
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id domain.ProgramID) (*models.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.programs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// ListByOwner returns the owner's programs oldest first.
func (s *InMemory) ListByOwner(_ context.Context, owner domain.UserID) ([]*models.Program, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Program
	for _, p := range s.programs {
		if p.OwnerID == owner {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *InMemory) SetActive(_ context.Context, id domain.ProgramID, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.programs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.Active = active
	return nil
}
