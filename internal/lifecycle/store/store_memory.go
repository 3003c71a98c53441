package store

import (
	"context"
	"sort"
	"sync"

	"greenchain/internal/lifecycle/models"
	"greenchain/pkg/domain"
)

// InMemory keeps the credit mirror in process memory. Used by tests and
// single-instance deployments without a database.
type InMemory struct {
	mu    sync.RWMutex
	units map[domain.CertificateID]*models.CreditUnit
}

func NewInMemory() *InMemory {
	return &InMemory{units: make(map[domain.CertificateID]*models.CreditUnit)}
}

func (s *InMemory) Save(_ context.Context, unit *models.CreditUnit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.units[unit.ID] = unit.Clone()
	return nil
}

func (s *InMemory) Get(_ context.Context, id domain.CertificateID) (*models.CreditUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	unit, ok := s.units[id]
	if !ok {
		return nil, ErrNotFound
	}
	return unit.Clone(), nil
}

func (s *InMemory) List(_ context.Context) ([]*models.CreditUnit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.CreditUnit, 0, len(s.units))
	for _, unit := range s.units {
		out = append(out, unit.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
