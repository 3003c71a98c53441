// Package cache holds the capability lookup cache: a short-lived record of
// whether an account holds a role, refreshed from the ledger on miss and
// dropped whenever membership changes.
package cache

import (
	"context"
	"sync"

	"greenchain/internal/roles/models"
	"greenchain/pkg/domain"
)

// Store is the capability cache contract. A miss is (false, false, nil);
// store failures are reported, not swallowed, so callers decide whether to
// fall through to the ledger.
type Store interface {
	Get(ctx context.Context, account domain.Address, kind models.Kind) (value, ok bool, err error)
	Set(ctx context.Context, account domain.Address, kind models.Kind, value bool) error
	InvalidateAccount(ctx context.Context, account domain.Address) error
}

// InMemory is a process-local Store for tests and single-instance deploys.
type InMemory struct {
	mu      sync.RWMutex
	entries map[domain.Address]map[models.Kind]bool
}

func NewInMemory() *InMemory {
	return &InMemory{entries: make(map[domain.Address]map[models.Kind]bool)}
}

func (s *InMemory) Get(ctx context.Context, account domain.Address, kind models.Kind) (bool, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds, ok := s.entries[account]
	if !ok {
		return false, false, nil
	}
	value, ok := kinds[kind]
	return value, ok, nil
}

func (s *InMemory) Set(ctx context.Context, account domain.Address, kind models.Kind, value bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.entries[account] == nil {
		s.entries[account] = make(map[models.Kind]bool)
	}
	s.entries[account][kind] = value
	return nil
}

func (s *InMemory) InvalidateAccount(ctx context.Context, account domain.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, account)
	return nil
}
