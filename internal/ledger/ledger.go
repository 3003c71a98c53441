// Package ledger defines the boundary to the on-chain collaborators: the
// certificate asset contract, the fungible trading token, the pool factory,
// and deployed pool instances.
//
// Everything here is an interface plus shared wire types. Implementations own
// signing and broadcast; callers own sequencing and reconciliation. Read calls
// that cannot reach the ledger return sentinel.ErrUnreachable (wrapped);
// submissions that execute but fail surface through Receipt.Status, not
// through the error return.
package ledger

import (
	"context"

	"github.com/holiman/uint256"

	"greenchain/pkg/domain"
)

// TxHash identifies a submitted state-changing operation.
type TxHash string

// RoleHash is the contract-side identifier of a capability.
type RoleHash [32]byte

// ReceiptStatus is the terminal outcome of a submission.
type ReceiptStatus int

const (
	// StatusConfirmed — the ledger finalized the operation successfully.
	StatusConfirmed ReceiptStatus = iota + 1
	// StatusReverted — the ledger executed and rejected the operation.
	StatusReverted
)

// Receipt reports the confirmed outcome of a submission.
type Receipt struct {
	Tx     TxHash
	Status ReceiptStatus
	Block  uint64
	// Reason carries the revert reason when Status is StatusReverted.
	Reason string
}

// MintParams carries the certificate metadata recorded at mint time.
type MintParams struct {
	ID          domain.CertificateID
	To          domain.Address
	ProjectName string
	Standard    string
	VintageYear int
	Location    string
	TokenURI    string
	Amount      *uint256.Int
}

// PoolCreated is one pool-creation event from the factory.
type PoolCreated struct {
	CertificateToken domain.Address
	Pool             domain.Address
}

// Certificates is the semi-fungible certificate contract.
type Certificates interface {
	Exists(ctx context.Context, id domain.CertificateID) (bool, error)
	IsApproved(ctx context.Context, id domain.CertificateID) (bool, error)
	IsRetired(ctx context.Context, id domain.CertificateID) (bool, error)
	BalanceOf(ctx context.Context, account domain.Address, id domain.CertificateID) (*uint256.Int, error)
	IsOperatorApproved(ctx context.Context, owner, operator domain.Address) (bool, error)
	RoleHash(ctx context.Context, name string) (RoleHash, error)
	HasRole(ctx context.Context, role RoleHash, account domain.Address) (bool, error)

	Mint(ctx context.Context, from domain.Address, params MintParams) (TxHash, error)
	Approve(ctx context.Context, from domain.Address, id domain.CertificateID) (TxHash, error)
	Retire(ctx context.Context, from domain.Address, id domain.CertificateID) (TxHash, error)
	SetOperatorApproval(ctx context.Context, from, operator domain.Address, approved bool) (TxHash, error)
	GrantRole(ctx context.Context, from domain.Address, role RoleHash, account domain.Address) (TxHash, error)
	RevokeRole(ctx context.Context, from domain.Address, role RoleHash, account domain.Address) (TxHash, error)
}

// Fungible is the bridgeable trading token contract.
type Fungible interface {
	Address() domain.Address
	Allowance(ctx context.Context, owner, spender domain.Address) (*uint256.Int, error)
	RoleHash(ctx context.Context, name string) (RoleHash, error)
	HasRole(ctx context.Context, role RoleHash, account domain.Address) (bool, error)

	Approve(ctx context.Context, from, spender domain.Address, amount *uint256.Int) (TxHash, error)
	BridgeMint(ctx context.Context, from, to domain.Address, amount *uint256.Int, id domain.CertificateID) (TxHash, error)
	GrantRole(ctx context.Context, from domain.Address, role RoleHash, account domain.Address) (TxHash, error)
	RevokeRole(ctx context.Context, from domain.Address, role RoleHash, account domain.Address) (TxHash, error)
}

// PoolFactory exposes the pool-creation event history.
type PoolFactory interface {
	// PoolCreations returns every creation event observed so far, in the
	// order the ledger finalized them.
	PoolCreations(ctx context.Context) ([]PoolCreated, error)
}

// Pools reaches deployed pool instances by address.
type Pools interface {
	Reserves(ctx context.Context, pool domain.Address) (reserve0, reserve1 *uint256.Int, err error)
	FeeBps(ctx context.Context, pool domain.Address) (uint64, error)
	TotalSupply(ctx context.Context, pool domain.Address) (*uint256.Int, error)
	LPBalanceOf(ctx context.Context, pool, account domain.Address) (*uint256.Int, error)

	Swap(ctx context.Context, from, pool, tokenIn domain.Address, amountIn *uint256.Int) (TxHash, error)
	ZapIn(ctx context.Context, from, pool, token domain.Address, amount *uint256.Int) (TxHash, error)
}

// Backend tracks submitted operations through to confirmation.
type Backend interface {
	// WaitConfirmed blocks until the ledger reports a terminal outcome for tx
	// or ctx is cancelled. Cancellation abandons the wait only; the submission
	// itself is not retracted.
	WaitConfirmed(ctx context.Context, tx TxHash) (*Receipt, error)
}

// Clients bundles the collaborator handles the coordinator needs.
type Clients struct {
	Certificates Certificates
	Fungible     Fungible
	Factory      PoolFactory
	Pools        Pools
	Backend      Backend
}
