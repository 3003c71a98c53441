// Package poolregistry tracks deployed swap pools. The factory's creation
// events are the source of truth; the registry folds them into a lookup table
// and serves live views (reserves, fees, LP positions) straight from the
// ledger so reported figures can never drift from what a withdrawal would pay.
package poolregistry

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"greenchain/internal/amm/accountant"
	"greenchain/internal/ledger"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// snapshotConcurrency bounds parallel ledger reads during a snapshot.
const snapshotConcurrency = 8

// View is one pool's live state.
type View struct {
	Pool             domain.Address
	CertificateToken domain.Address
	Reserve0         *uint256.Int
	Reserve1         *uint256.Int
	TotalSupply      *uint256.Int
	FeeBps           uint64
}

// Position is one account's stake in a pool. ShareWad is the ownership
// fraction scaled by 1e18.
type Position struct {
	Pool     domain.Address
	Account  domain.Address
	Shares   *uint256.Int
	ShareWad *uint256.Int
	Amount0  *uint256.Int
	Amount1  *uint256.Int
}

// Registry is the pool lookup table. Entries are append-only: a pool once
// observed is never dropped, and replaying an event is a no-op.
type Registry struct {
	factory ledger.PoolFactory
	pools   ledger.Pools
	logger  *slog.Logger

	mu      sync.RWMutex
	byToken map[domain.Address]domain.Address
	byPool  map[domain.Address]domain.Address
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// New constructs an empty registry. Call Refresh to load the event history.
func New(factory ledger.PoolFactory, pools ledger.Pools, opts ...Option) *Registry {
	r := &Registry{
		factory: factory,
		pools:   pools,
		logger:  slog.Default(),
		byToken: make(map[domain.Address]domain.Address),
		byPool:  make(map[domain.Address]domain.Address),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// Apply folds one creation event. Replays are no-ops; a second pool for a
// token already mapped is recorded by pool address but does not remap the
// token.
func (r *Registry) Apply(event ledger.PoolCreated) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.byPool[event.Pool]; seen {
		return
	}
	r.byPool[event.Pool] = event.CertificateToken
	if existing, ok := r.byToken[event.CertificateToken]; ok {
		r.logger.Warn("duplicate pool for certificate token, keeping first",
			"token", event.CertificateToken.Short(),
			"existing_pool", existing.Short(), "new_pool", event.Pool.Short())
		return
	}
	r.byToken[event.CertificateToken] = event.Pool
}

// Refresh replays the factory's full event history.
func (r *Registry) Refresh(ctx context.Context) error {
	events, err := r.factory.PoolCreations(ctx)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnreachable, "read pool creation events")
	}
	for _, event := range events {
		r.Apply(event)
	}
	return nil
}

// PoolFor resolves the pool trading a certificate token.
func (r *Registry) PoolFor(token domain.Address) (domain.Address, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pool, ok := r.byToken[token]
	if !ok {
		return "", dErrors.Newf(dErrors.CodeNotFound, "no pool for token %s", token.Short())
	}
	return pool, nil
}

// Known reports whether addr is a registered pool.
func (r *Registry) Known(addr domain.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byPool[addr]
	return ok
}

// View reads one pool's live state from the ledger.
func (r *Registry) View(ctx context.Context, addr domain.Address) (*View, error) {
	r.mu.RLock()
	token, ok := r.byPool[addr]
	r.mu.RUnlock()
	if !ok {
		return nil, dErrors.Newf(dErrors.CodeNotFound, "unknown pool %s", addr.Short())
	}

	reserve0, reserve1, err := r.pools.Reserves(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "read pool reserves")
	}
	feeBps, err := r.pools.FeeBps(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "read pool fee")
	}
	supply, err := r.pools.TotalSupply(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "read pool supply")
	}
	return &View{
		Pool:             addr,
		CertificateToken: token,
		Reserve0:         reserve0,
		Reserve1:         reserve1,
		TotalSupply:      supply,
		FeeBps:           feeBps,
	}, nil
}

// Snapshot reads every registered pool concurrently, ordered by pool address.
func (r *Registry) Snapshot(ctx context.Context) ([]*View, error) {
	r.mu.RLock()
	addrs := make([]domain.Address, 0, len(r.byPool))
	for addr := range r.byPool {
		addrs = append(addrs, addr)
	}
	r.mu.RUnlock()
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })

	views := make([]*View, len(addrs))
	group, ctx := errgroup.WithContext(ctx)
	group.SetLimit(snapshotConcurrency)
	for i, addr := range addrs {
		group.Go(func() error {
			view, err := r.View(ctx, addr)
			if err != nil {
				return err
			}
			views[i] = view
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return views, nil
}

// PositionOf reads an account's LP stake. Every figure derives from live
// ledger values through the accountant, never from locally cached deposits.
func (r *Registry) PositionOf(ctx context.Context, addr, account domain.Address) (*Position, error) {
	view, err := r.View(ctx, addr)
	if err != nil {
		return nil, err
	}
	shares, err := r.pools.LPBalanceOf(ctx, addr, account)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "read LP balance")
	}

	shareWad, err := accountant.PoolShareOf(shares, view.TotalSupply)
	if err != nil {
		return nil, err
	}
	amount0, amount1, err := accountant.ReservesOwned(shares, view.TotalSupply, view.Reserve0, view.Reserve1)
	if err != nil {
		return nil, err
	}
	return &Position{
		Pool:     addr,
		Account:  account,
		Shares:   shares,
		ShareWad: shareWad,
		Amount0:  amount0,
		Amount1:  amount1,
	}, nil
}
