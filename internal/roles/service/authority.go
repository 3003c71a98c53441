// Package service holds the role authority: the single answer to "may this
// account perform this operation" backed by the on-ledger access-control
// contracts with a read-through cache in front.
package service

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"

	"greenchain/internal/ledger"
	"greenchain/internal/roles/cache"
	"greenchain/internal/roles/models"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// Authority resolves capability checks against the ledger contracts.
//
// Lookups read through the cache; concurrent misses for the same
// (account, role) collapse into one ledger read. The ledger is authoritative:
// when it cannot be reached the check fails with CodeUnreachable rather than
// guessing from stale data.
type Authority struct {
	certs    ledger.Certificates
	fungible ledger.Fungible
	cache    cache.Store
	logger   *slog.Logger

	group singleflight.Group

	hashMu sync.Mutex
	hashes map[models.Kind]ledger.RoleHash

	historyMu sync.Mutex
	history   []models.Grant
}

// Option configures an Authority.
type Option func(*Authority)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Authority) { a.logger = logger }
}

// WithCache overrides the default in-memory capability cache.
func WithCache(store cache.Store) Option {
	return func(a *Authority) { a.cache = store }
}

// NewAuthority constructs the role authority over the two asset contracts.
func NewAuthority(certs ledger.Certificates, fungible ledger.Fungible, opts ...Option) *Authority {
	a := &Authority{
		certs:    certs,
		fungible: fungible,
		cache:    cache.NewInMemory(),
		logger:   slog.Default(),
		hashes:   make(map[models.Kind]ledger.RoleHash),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// contractFor picks the contract owning a role's membership. Both contracts
// satisfy the same role-read surface.
func (a *Authority) contractFor(kind models.Kind) interface {
	RoleHash(ctx context.Context, name string) (ledger.RoleHash, error)
	HasRole(ctx context.Context, role ledger.RoleHash, account domain.Address) (bool, error)
} {
	if kind.Scope() == models.ScopeFungible {
		return a.fungible
	}
	return a.certs
}

// RoleHashFor resolves and memoizes the contract-side hash of a role name.
// Hashes are immutable on the contracts, so one resolution lasts the process.
func (a *Authority) RoleHashFor(ctx context.Context, kind models.Kind) (ledger.RoleHash, error) {
	a.hashMu.Lock()
	if hash, ok := a.hashes[kind]; ok {
		a.hashMu.Unlock()
		return hash, nil
	}
	a.hashMu.Unlock()

	hash, err := a.contractFor(kind).RoleHash(ctx, string(kind))
	if err != nil {
		return ledger.RoleHash{}, dErrors.Wrap(err, dErrors.CodeUnreachable, "resolve role hash")
	}

	a.hashMu.Lock()
	a.hashes[kind] = hash
	a.hashMu.Unlock()
	return hash, nil
}

// HasCapability reports whether account currently holds the role. Cache
// errors degrade to a direct ledger read; ledger errors surface as
// CodeUnreachable.
func (a *Authority) HasCapability(ctx context.Context, account domain.Address, kind models.Kind) (bool, error) {
	cached, ok, err := a.cache.Get(ctx, account, kind)
	if err != nil {
		a.logger.WarnContext(ctx, "role cache read failed, falling through to ledger",
			"account", account.Short(), "role", kind, "error", err)
	} else if ok {
		return cached, nil
	}

	key := string(account) + "|" + string(kind)
	value, err, _ := a.group.Do(key, func() (any, error) {
		hash, err := a.RoleHashFor(ctx, kind)
		if err != nil {
			return false, err
		}
		held, err := a.contractFor(kind).HasRole(ctx, hash, account)
		if err != nil {
			return false, dErrors.Wrap(err, dErrors.CodeUnreachable, "read role membership")
		}
		if err := a.cache.Set(ctx, account, kind, held); err != nil {
			a.logger.WarnContext(ctx, "role cache write failed",
				"account", account.Short(), "role", kind, "error", err)
		}
		return held, nil
	})
	if err != nil {
		return false, err
	}
	return value.(bool), nil
}

// RequireCapability is HasCapability hardened into a guard: a missing role is
// CodeUnauthorized, never a silent false.
func (a *Authority) RequireCapability(ctx context.Context, account domain.Address, kind models.Kind) error {
	held, err := a.HasCapability(ctx, account, kind)
	if err != nil {
		return err
	}
	if !held {
		return dErrors.Newf(dErrors.CodeUnauthorized, "account %s does not hold %s", account.Short(), kind)
	}
	return nil
}

// Invalidate drops every cached capability for the account. Called after a
// confirmed grant or revoke so the next check reads the ledger.
func (a *Authority) Invalidate(ctx context.Context, account domain.Address) {
	if err := a.cache.InvalidateAccount(ctx, account); err != nil {
		a.logger.WarnContext(ctx, "role cache invalidation failed",
			"account", account.Short(), "error", err)
	}
}

// RecordChange appends a confirmed membership change to the audit history and
// invalidates the holder's cached capabilities.
func (a *Authority) RecordChange(ctx context.Context, grant models.Grant) {
	a.historyMu.Lock()
	a.history = append(a.history, grant)
	a.historyMu.Unlock()
	a.Invalidate(ctx, grant.Holder)
}

// History returns the recorded membership changes for an account, oldest
// first. Empty when no change went through this coordinator.
func (a *Authority) History(ctx context.Context, account domain.Address) []models.Grant {
	a.historyMu.Lock()
	defer a.historyMu.Unlock()
	var out []models.Grant
	for _, g := range a.history {
		if g.Holder == account {
			out = append(out, g)
		}
	}
	return out
}
