// Package ledgertest provides a complete in-memory simulation of the ledger
// collaborators for tests and local development: role-gated certificate and
// fungible contracts, constant-product pools, and a confirmation backend with
// auto or manual confirmation.
//
// Submissions validate and execute with the same rules the contracts enforce,
// so reverted receipts carry realistic reasons. Reads can be forced to fail to
// exercise unreachable-ledger paths.
package ledgertest

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"greenchain/internal/ledger"
	"greenchain/pkg/domain"
	"greenchain/pkg/platform/sentinel"
)

// Role name constants mirrored from the deployed contracts.
const (
	RoleIssuer   = "ISSUER_ROLE"
	RoleApprover = "APPROVER_ROLE"
	RoleBridge   = "BRIDGE_ROLE"
	RoleAdmin    = "DEFAULT_ADMIN_ROLE"
)

// Scope selects which asset contract a seeded role applies to.
type Scope int

const (
	ScopeCertificate Scope = iota
	ScopeFungible
)

type certificate struct {
	params   ledger.MintParams
	approved bool
	retired  bool
	bridged  *uint256.Int
}

type pool struct {
	token0      domain.Address
	token1      domain.Address
	reserve0    *uint256.Int
	reserve1    *uint256.Int
	feeBps      uint64
	totalSupply *uint256.Int
	lpBalances  map[domain.Address]*uint256.Int
}

type pendingTx struct {
	execute func() *ledger.Receipt
	done    chan struct{}
	receipt *ledger.Receipt
}

// Ledger is the simulated chain. Zero value is not usable; call New.
type Ledger struct {
	mu sync.Mutex

	fungibleAddr domain.Address

	certRoles map[ledger.RoleHash]map[domain.Address]bool
	fungRoles map[ledger.RoleHash]map[domain.Address]bool

	certs             map[domain.CertificateID]*certificate
	operatorApprovals map[domain.Address]map[domain.Address]bool

	// balances is token address -> holder -> amount. Certificate balances are
	// tracked separately per certificate id.
	balances     map[domain.Address]map[domain.Address]*uint256.Int
	certBalances map[domain.CertificateID]map[domain.Address]*uint256.Int
	allowances   map[domain.Address]map[domain.Address]*uint256.Int

	pools      map[domain.Address]*pool
	poolEvents []ledger.PoolCreated

	manual  bool
	pending []*pendingTx
	byHash  map[ledger.TxHash]*pendingTx
	nextTx  uint64
	block   uint64

	readErr   error
	submitErr error
}

// New builds an empty simulated ledger with the fungible trading token
// deployed at the given address.
func New(fungibleAddr domain.Address) *Ledger {
	return &Ledger{
		fungibleAddr:      fungibleAddr,
		certRoles:         make(map[ledger.RoleHash]map[domain.Address]bool),
		fungRoles:         make(map[ledger.RoleHash]map[domain.Address]bool),
		certs:             make(map[domain.CertificateID]*certificate),
		operatorApprovals: make(map[domain.Address]map[domain.Address]bool),
		balances:          make(map[domain.Address]map[domain.Address]*uint256.Int),
		certBalances:      make(map[domain.CertificateID]map[domain.Address]*uint256.Int),
		allowances:        make(map[domain.Address]map[domain.Address]*uint256.Int),
		pools:             make(map[domain.Address]*pool),
		byHash:            make(map[ledger.TxHash]*pendingTx),
	}
}

// Clients returns collaborator handles backed by this simulation.
func (l *Ledger) Clients() ledger.Clients {
	return ledger.Clients{
		Certificates: certClient{l},
		Fungible:     fungClient{l},
		Factory:      factoryClient{l},
		Pools:        poolClient{l},
		Backend:      backendClient{l},
	}
}

// RoleHashOf maps a role name to its contract-side hash. The default admin
// role is the zero hash, like the deployed contracts.
func RoleHashOf(name string) ledger.RoleHash {
	if name == RoleAdmin {
		return ledger.RoleHash{}
	}
	return ledger.RoleHash(sha256.Sum256([]byte(name)))
}

// ---------------------------------------------------------------------------
// Test setup
// ---------------------------------------------------------------------------

// SetManual switches to manual confirmation: submissions stay pending until
// ConfirmAll or ConfirmNext runs them.
func (l *Ledger) SetManual(manual bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.manual = manual
}

// ConfirmNext executes the oldest pending submission and returns its receipt.
func (l *Ledger) ConfirmNext() *ledger.Receipt {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return nil
	}
	tx := l.pending[0]
	l.pending = l.pending[1:]
	l.block++
	receipt := tx.execute()
	tx.receipt = receipt
	l.mu.Unlock()
	close(tx.done)
	return receipt
}

// ConfirmAll executes every pending submission in order.
func (l *Ledger) ConfirmAll() {
	for l.ConfirmNext() != nil {
	}
}

// PendingCount reports how many submissions await confirmation.
func (l *Ledger) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// FailReads makes every read return err (nil restores normal reads).
func (l *Ledger) FailReads(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.readErr = err
}

// FailSubmits makes every submission return err before reaching the chain.
func (l *Ledger) FailSubmits(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.submitErr = err
}

// SeedRole activates a role directly, bypassing the admin-gated path.
func (l *Ledger) SeedRole(scope Scope, name string, account domain.Address) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setRole(scope, RoleHashOf(name), account, true)
}

// SeedCertificate installs a certificate record directly.
func (l *Ledger) SeedCertificate(params ledger.MintParams, approved, retired bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.certs[params.ID] = &certificate{
		params:   params,
		approved: approved,
		retired:  retired,
		bridged:  new(uint256.Int),
	}
	l.setCertBalance(params.ID, params.To, new(uint256.Int).Set(params.Amount))
}

// SeedBalance credits a holder's balance of an arbitrary fungible token.
func (l *Ledger) SeedBalance(token, holder domain.Address, amount *uint256.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creditToken(token, holder, amount)
}

// CreatePool deploys a pool and appends its creation event.
func (l *Ledger) CreatePool(addr, token0, token1 domain.Address, reserve0, reserve1 *uint256.Int, feeBps uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	seed := new(uint256.Int).Sqrt(new(uint256.Int).Mul(reserve0, reserve1))
	l.pools[addr] = &pool{
		token0:      token0,
		token1:      token1,
		reserve0:    new(uint256.Int).Set(reserve0),
		reserve1:    new(uint256.Int).Set(reserve1),
		feeBps:      feeBps,
		totalSupply: seed,
		lpBalances:  map[domain.Address]*uint256.Int{domain.ZeroAddress: seed},
	}
	l.poolEvents = append(l.poolEvents, ledger.PoolCreated{CertificateToken: token0, Pool: addr})
}

// TokenBalanceOf reads a holder's balance of any tracked token (test assertion helper).
func (l *Ledger) TokenBalanceOf(token, holder domain.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.tokenBalance(token, holder))
}

// FungibleBalanceOf reads a holder's trading-token balance (test assertion helper).
func (l *Ledger) FungibleBalanceOf(holder domain.Address) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.tokenBalance(l.fungibleAddr, holder))
}

// CertificateBalanceOf reads a holder's certificate balance (test assertion helper).
func (l *Ledger) CertificateBalanceOf(holder domain.Address, id domain.CertificateID) *uint256.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(uint256.Int).Set(l.certBalance(id, holder))
}

// ---------------------------------------------------------------------------
// Internal state helpers (callers hold l.mu)
// ---------------------------------------------------------------------------

func (l *Ledger) roleSet(scope Scope, role ledger.RoleHash) map[domain.Address]bool {
	roles := l.certRoles
	if scope == ScopeFungible {
		roles = l.fungRoles
	}
	if roles[role] == nil {
		roles[role] = make(map[domain.Address]bool)
	}
	return roles[role]
}

func (l *Ledger) setRole(scope Scope, role ledger.RoleHash, account domain.Address, active bool) {
	l.roleSet(scope, role)[account] = active
}

func (l *Ledger) hasRole(scope Scope, role ledger.RoleHash, account domain.Address) bool {
	return l.roleSet(scope, role)[account]
}

func (l *Ledger) tokenBalance(token, holder domain.Address) *uint256.Int {
	if l.balances[token] == nil || l.balances[token][holder] == nil {
		return new(uint256.Int)
	}
	return l.balances[token][holder]
}

func (l *Ledger) creditToken(token, holder domain.Address, amount *uint256.Int) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[domain.Address]*uint256.Int)
	}
	l.balances[token][holder] = new(uint256.Int).Add(l.tokenBalance(token, holder), amount)
}

func (l *Ledger) debitToken(token, holder domain.Address, amount *uint256.Int) bool {
	bal := l.tokenBalance(token, holder)
	if bal.Cmp(amount) < 0 {
		return false
	}
	l.balances[token][holder] = new(uint256.Int).Sub(bal, amount)
	return true
}

func (l *Ledger) certBalance(id domain.CertificateID, holder domain.Address) *uint256.Int {
	if l.certBalances[id] == nil || l.certBalances[id][holder] == nil {
		return new(uint256.Int)
	}
	return l.certBalances[id][holder]
}

func (l *Ledger) setCertBalance(id domain.CertificateID, holder domain.Address, amount *uint256.Int) {
	if l.certBalances[id] == nil {
		l.certBalances[id] = make(map[domain.Address]*uint256.Int)
	}
	l.certBalances[id][holder] = amount
}

func (l *Ledger) allowance(owner, spender domain.Address) *uint256.Int {
	if l.allowances[owner] == nil || l.allowances[owner][spender] == nil {
		return new(uint256.Int)
	}
	return l.allowances[owner][spender]
}

func (l *Ledger) setAllowance(owner, spender domain.Address, amount *uint256.Int) {
	if l.allowances[owner] == nil {
		l.allowances[owner] = make(map[domain.Address]*uint256.Int)
	}
	l.allowances[owner][spender] = new(uint256.Int).Set(amount)
}

// submit registers a state-changing operation. In auto mode it executes
// immediately; in manual mode it waits for ConfirmNext/ConfirmAll.
func (l *Ledger) submit(execute func() *ledger.Receipt) (ledger.TxHash, error) {
	l.mu.Lock()
	if l.submitErr != nil {
		err := l.submitErr
		l.mu.Unlock()
		return "", fmt.Errorf("submit: %w", err)
	}
	l.nextTx++
	hash := ledger.TxHash(fmt.Sprintf("0xtx%06d", l.nextTx))
	tx := &pendingTx{done: make(chan struct{})}
	tx.execute = func() *ledger.Receipt {
		receipt := execute()
		receipt.Tx = hash
		receipt.Block = l.block
		return receipt
	}
	l.byHash[hash] = tx

	if l.manual {
		l.pending = append(l.pending, tx)
		l.mu.Unlock()
		return hash, nil
	}

	l.block++
	tx.receipt = tx.execute()
	l.mu.Unlock()
	close(tx.done)
	return hash, nil
}

func confirmed() *ledger.Receipt {
	return &ledger.Receipt{Status: ledger.StatusConfirmed}
}

func reverted(reason string) *ledger.Receipt {
	return &ledger.Receipt{Status: ledger.StatusReverted, Reason: reason}
}

func (l *Ledger) readGuard() error {
	if l.readErr != nil {
		return fmt.Errorf("%w: %w", sentinel.ErrUnreachable, l.readErr)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Certificate contract
// ---------------------------------------------------------------------------

type certClient struct{ l *Ledger }

func (c certClient) Exists(ctx context.Context, id domain.CertificateID) (bool, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.readGuard(); err != nil {
		return false, err
	}
	_, ok := c.l.certs[id]
	return ok, nil
}

func (c certClient) IsApproved(ctx context.Context, id domain.CertificateID) (bool, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.readGuard(); err != nil {
		return false, err
	}
	cert, ok := c.l.certs[id]
	return ok && cert.approved, nil
}

func (c certClient) IsRetired(ctx context.Context, id domain.CertificateID) (bool, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.readGuard(); err != nil {
		return false, err
	}
	cert, ok := c.l.certs[id]
	return ok && cert.retired, nil
}

func (c certClient) BalanceOf(ctx context.Context, account domain.Address, id domain.CertificateID) (*uint256.Int, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.readGuard(); err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(c.l.certBalance(id, account)), nil
}

func (c certClient) IsOperatorApproved(ctx context.Context, owner, operator domain.Address) (bool, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.readGuard(); err != nil {
		return false, err
	}
	return c.l.operatorApprovals[owner][operator], nil
}

func (c certClient) RoleHash(ctx context.Context, name string) (ledger.RoleHash, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.readGuard(); err != nil {
		return ledger.RoleHash{}, err
	}
	return RoleHashOf(name), nil
}

func (c certClient) HasRole(ctx context.Context, role ledger.RoleHash, account domain.Address) (bool, error) {
	c.l.mu.Lock()
	defer c.l.mu.Unlock()
	if err := c.l.readGuard(); err != nil {
		return false, err
	}
	return c.l.hasRole(ScopeCertificate, role, account), nil
}

func (c certClient) Mint(ctx context.Context, from domain.Address, params ledger.MintParams) (ledger.TxHash, error) {
	l := c.l
	return l.submit(func() *ledger.Receipt {
		if !l.hasRole(ScopeCertificate, RoleHashOf(RoleIssuer), from) {
			return reverted("missing ISSUER_ROLE")
		}
		if _, ok := l.certs[params.ID]; ok {
			return reverted("token already exists")
		}
		l.certs[params.ID] = &certificate{params: params, bridged: new(uint256.Int)}
		l.setCertBalance(params.ID, params.To, new(uint256.Int).Set(params.Amount))
		return confirmed()
	})
}

func (c certClient) Approve(ctx context.Context, from domain.Address, id domain.CertificateID) (ledger.TxHash, error) {
	l := c.l
	return l.submit(func() *ledger.Receipt {
		if !l.hasRole(ScopeCertificate, RoleHashOf(RoleApprover), from) {
			return reverted("missing APPROVER_ROLE")
		}
		cert, ok := l.certs[id]
		if !ok {
			return reverted("token does not exist")
		}
		if cert.retired {
			return reverted("token retired")
		}
		cert.approved = true
		return confirmed()
	})
}

func (c certClient) Retire(ctx context.Context, from domain.Address, id domain.CertificateID) (ledger.TxHash, error) {
	l := c.l
	return l.submit(func() *ledger.Receipt {
		if !l.hasRole(ScopeCertificate, RoleHashOf(RoleApprover), from) &&
			!l.hasRole(ScopeCertificate, ledger.RoleHash{}, from) {
			return reverted("missing APPROVER_ROLE or admin")
		}
		cert, ok := l.certs[id]
		if !ok {
			return reverted("token does not exist")
		}
		cert.retired = true
		return confirmed()
	})
}

func (c certClient) SetOperatorApproval(ctx context.Context, from, operator domain.Address, approved bool) (ledger.TxHash, error) {
	l := c.l
	return l.submit(func() *ledger.Receipt {
		if l.operatorApprovals[from] == nil {
			l.operatorApprovals[from] = make(map[domain.Address]bool)
		}
		l.operatorApprovals[from][operator] = approved
		return confirmed()
	})
}

func (c certClient) GrantRole(ctx context.Context, from domain.Address, role ledger.RoleHash, account domain.Address) (ledger.TxHash, error) {
	return c.l.changeRole(ScopeCertificate, from, role, account, true)
}

func (c certClient) RevokeRole(ctx context.Context, from domain.Address, role ledger.RoleHash, account domain.Address) (ledger.TxHash, error) {
	return c.l.changeRole(ScopeCertificate, from, role, account, false)
}

func (l *Ledger) changeRole(scope Scope, from domain.Address, role ledger.RoleHash, account domain.Address, active bool) (ledger.TxHash, error) {
	return l.submit(func() *ledger.Receipt {
		if !l.hasRole(scope, ledger.RoleHash{}, from) {
			return reverted("caller is not admin")
		}
		l.setRole(scope, role, account, active)
		return confirmed()
	})
}

// ---------------------------------------------------------------------------
// Fungible trading token
// ---------------------------------------------------------------------------

type fungClient struct{ l *Ledger }

func (f fungClient) Address() domain.Address { return f.l.fungibleAddr }

func (f fungClient) Allowance(ctx context.Context, owner, spender domain.Address) (*uint256.Int, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if err := f.l.readGuard(); err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(f.l.allowance(owner, spender)), nil
}

func (f fungClient) RoleHash(ctx context.Context, name string) (ledger.RoleHash, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if err := f.l.readGuard(); err != nil {
		return ledger.RoleHash{}, err
	}
	return RoleHashOf(name), nil
}

func (f fungClient) HasRole(ctx context.Context, role ledger.RoleHash, account domain.Address) (bool, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if err := f.l.readGuard(); err != nil {
		return false, err
	}
	return f.l.hasRole(ScopeFungible, role, account), nil
}

func (f fungClient) Approve(ctx context.Context, from, spender domain.Address, amount *uint256.Int) (ledger.TxHash, error) {
	l := f.l
	value := new(uint256.Int).Set(amount)
	return l.submit(func() *ledger.Receipt {
		l.setAllowance(from, spender, value)
		return confirmed()
	})
}

func (f fungClient) BridgeMint(ctx context.Context, from, to domain.Address, amount *uint256.Int, id domain.CertificateID) (ledger.TxHash, error) {
	l := f.l
	value := new(uint256.Int).Set(amount)
	return l.submit(func() *ledger.Receipt {
		if !l.hasRole(ScopeFungible, RoleHashOf(RoleBridge), from) {
			return reverted("missing BRIDGE_ROLE")
		}
		cert, ok := l.certs[id]
		if !ok {
			return reverted("token does not exist")
		}
		if !cert.approved {
			return reverted("token not approved")
		}
		if !l.operatorApprovals[from][l.fungibleAddr] {
			return reverted("certificate transfer not authorized")
		}
		owned := l.certBalance(id, from)
		needed := new(uint256.Int).Add(cert.bridged, value)
		if owned.Cmp(needed) < 0 {
			return reverted("insufficient certificate balance")
		}
		cert.bridged = needed
		l.creditToken(l.fungibleAddr, to, value)
		return confirmed()
	})
}

func (f fungClient) GrantRole(ctx context.Context, from domain.Address, role ledger.RoleHash, account domain.Address) (ledger.TxHash, error) {
	return f.l.changeRole(ScopeFungible, from, role, account, true)
}

func (f fungClient) RevokeRole(ctx context.Context, from domain.Address, role ledger.RoleHash, account domain.Address) (ledger.TxHash, error) {
	return f.l.changeRole(ScopeFungible, from, role, account, false)
}

// ---------------------------------------------------------------------------
// Pool factory and pool instances
// ---------------------------------------------------------------------------

type factoryClient struct{ l *Ledger }

func (f factoryClient) PoolCreations(ctx context.Context) ([]ledger.PoolCreated, error) {
	f.l.mu.Lock()
	defer f.l.mu.Unlock()
	if err := f.l.readGuard(); err != nil {
		return nil, err
	}
	out := make([]ledger.PoolCreated, len(f.l.poolEvents))
	copy(out, f.l.poolEvents)
	return out, nil
}

type poolClient struct{ l *Ledger }

func (p poolClient) get(addr domain.Address) (*pool, error) {
	pl, ok := p.l.pools[addr]
	if !ok {
		return nil, fmt.Errorf("pool %s: %w", addr.Short(), sentinel.ErrNotFound)
	}
	return pl, nil
}

func (p poolClient) Reserves(ctx context.Context, addr domain.Address) (*uint256.Int, *uint256.Int, error) {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	if err := p.l.readGuard(); err != nil {
		return nil, nil, err
	}
	pl, err := p.get(addr)
	if err != nil {
		return nil, nil, err
	}
	return new(uint256.Int).Set(pl.reserve0), new(uint256.Int).Set(pl.reserve1), nil
}

func (p poolClient) FeeBps(ctx context.Context, addr domain.Address) (uint64, error) {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	if err := p.l.readGuard(); err != nil {
		return 0, err
	}
	pl, err := p.get(addr)
	if err != nil {
		return 0, err
	}
	return pl.feeBps, nil
}

func (p poolClient) TotalSupply(ctx context.Context, addr domain.Address) (*uint256.Int, error) {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	if err := p.l.readGuard(); err != nil {
		return nil, err
	}
	pl, err := p.get(addr)
	if err != nil {
		return nil, err
	}
	return new(uint256.Int).Set(pl.totalSupply), nil
}

func (p poolClient) LPBalanceOf(ctx context.Context, addr, account domain.Address) (*uint256.Int, error) {
	p.l.mu.Lock()
	defer p.l.mu.Unlock()
	if err := p.l.readGuard(); err != nil {
		return nil, err
	}
	pl, err := p.get(addr)
	if err != nil {
		return nil, err
	}
	if pl.lpBalances[account] == nil {
		return new(uint256.Int), nil
	}
	return new(uint256.Int).Set(pl.lpBalances[account]), nil
}

// swapOut is the contract-side quote. Must stay in lockstep with the pool
// contracts; the accountant package derives the same figures independently.
func swapOut(reserveIn, reserveOut, amountIn *uint256.Int, feeBps uint64) *uint256.Int {
	g := uint256.NewInt(10_000 - feeBps)
	inAfterFee := new(uint256.Int).Mul(amountIn, g)
	num := new(uint256.Int).Mul(inAfterFee, reserveOut)
	den := new(uint256.Int).Mul(reserveIn, uint256.NewInt(10_000))
	den.Add(den, inAfterFee)
	return num.Div(num, den)
}

func (pl *pool) reservesFor(tokenIn domain.Address) (rIn, rOut *uint256.Int, ok bool) {
	switch tokenIn {
	case pl.token0:
		return pl.reserve0, pl.reserve1, true
	case pl.token1:
		return pl.reserve1, pl.reserve0, true
	}
	return nil, nil, false
}

func (p poolClient) Swap(ctx context.Context, from, addr, tokenIn domain.Address, amountIn *uint256.Int) (ledger.TxHash, error) {
	l := p.l
	value := new(uint256.Int).Set(amountIn)
	return l.submit(func() *ledger.Receipt {
		pl, ok := l.pools[addr]
		if !ok {
			return reverted("unknown pool")
		}
		rIn, rOut, ok := pl.reservesFor(tokenIn)
		if !ok {
			return reverted("token not in pool")
		}
		// Approval only guards the fungible side, matching the token contract.
		if tokenIn == l.fungibleAddr && l.allowance(from, addr).Cmp(value) < 0 {
			return reverted("insufficient allowance")
		}
		out := swapOut(rIn, rOut, value, pl.feeBps)
		if out.IsZero() || out.Cmp(rOut) >= 0 {
			return reverted("insufficient liquidity")
		}
		if !l.debitToken(tokenIn, from, value) {
			return reverted("insufficient balance")
		}
		if tokenIn == l.fungibleAddr {
			l.setAllowance(from, addr, new(uint256.Int).Sub(l.allowance(from, addr), value))
		}
		rIn.Add(rIn, value)
		rOut.Sub(rOut, out)
		tokenOut := pl.token0
		if tokenIn == pl.token0 {
			tokenOut = pl.token1
		}
		l.creditToken(tokenOut, from, out)
		return confirmed()
	})
}

func (p poolClient) ZapIn(ctx context.Context, from, addr, token domain.Address, amount *uint256.Int) (ledger.TxHash, error) {
	l := p.l
	value := new(uint256.Int).Set(amount)
	return l.submit(func() *ledger.Receipt {
		pl, ok := l.pools[addr]
		if !ok {
			return reverted("unknown pool")
		}
		rIn, rOut, ok := pl.reservesFor(token)
		if !ok {
			return reverted("token not in pool")
		}
		if token == l.fungibleAddr && l.allowance(from, addr).Cmp(value) < 0 {
			return reverted("insufficient allowance")
		}
		if l.tokenBalance(token, from).Cmp(value) < 0 {
			return reverted("insufficient balance")
		}

		// Split, swap internally, then deposit both sides.
		g := 10_000 - pl.feeBps
		term := new(uint256.Int).Mul(rIn, uint256.NewInt(10_000+g))
		disc := new(uint256.Int).Mul(term, term)
		cross := new(uint256.Int).Mul(value, rIn)
		cross.Mul(cross, uint256.NewInt(4*g*10_000))
		disc.Add(disc, cross)
		root := new(uint256.Int).Sqrt(disc)
		if root.Cmp(term) <= 0 {
			return reverted("zap amount too small")
		}
		swapPortion := new(uint256.Int).Sub(root, term)
		swapPortion.Div(swapPortion, uint256.NewInt(2*g))
		if swapPortion.IsZero() {
			return reverted("zap amount too small")
		}
		depositIn := new(uint256.Int).Sub(value, swapPortion)

		out := swapOut(rIn, rOut, swapPortion, pl.feeBps)
		if out.IsZero() || out.Cmp(rOut) >= 0 {
			return reverted("insufficient liquidity")
		}
		rInMid := new(uint256.Int).Add(rIn, swapPortion)
		rOutMid := new(uint256.Int).Sub(rOut, out)

		// Mint shares at the post-swap ratio, minimum of both contributions.
		share0 := new(uint256.Int).Mul(depositIn, pl.totalSupply)
		share0.Div(share0, rInMid)
		share1 := new(uint256.Int).Mul(out, pl.totalSupply)
		share1.Div(share1, rOutMid)
		shares := share0
		if share1.Cmp(share0) < 0 {
			shares = share1
		}
		if shares.IsZero() {
			return reverted("deposit too small")
		}
		l.debitToken(token, from, value)
		if token == l.fungibleAddr {
			l.setAllowance(from, addr, new(uint256.Int).Sub(l.allowance(from, addr), value))
		}
		rIn.Set(rInMid.Add(rInMid, depositIn))
		rOut.Set(rOutMid.Add(rOutMid, out))
		pl.totalSupply = new(uint256.Int).Add(pl.totalSupply, shares)
		if pl.lpBalances[from] == nil {
			pl.lpBalances[from] = new(uint256.Int)
		}
		pl.lpBalances[from] = new(uint256.Int).Add(pl.lpBalances[from], shares)
		return confirmed()
	})
}

// ---------------------------------------------------------------------------
// Confirmation backend
// ---------------------------------------------------------------------------

type backendClient struct{ l *Ledger }

func (b backendClient) WaitConfirmed(ctx context.Context, tx ledger.TxHash) (*ledger.Receipt, error) {
	b.l.mu.Lock()
	pending, ok := b.l.byHash[tx]
	b.l.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("tx %s: %w", tx, sentinel.ErrNotFound)
	}
	select {
	case <-pending.done:
		return pending.receipt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
