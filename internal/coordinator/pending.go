package coordinator

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"greenchain/internal/ledger"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// Kind names a coordinated operation.
type Kind string

const (
	KindMint       Kind = "mint"
	KindApprove    Kind = "approve"
	KindRetire     Kind = "retire"
	KindBridge     Kind = "bridge"
	KindRoleChange Kind = "role_change"
	KindSwap       Kind = "swap"
	KindZap        Kind = "zap"
)

// Pending is one submitted operation awaiting confirmation.
type Pending struct {
	ID          uuid.UUID
	Kind        Kind
	Account     domain.Address
	Subject     string
	Amount      *uint256.Int
	Tx          ledger.TxHash
	SubmittedAt time.Time
}

func pendingKey(kind Kind, account domain.Address, subject string, amount *uint256.Int) string {
	amt := "-"
	if amount != nil {
		amt = amount.Dec()
	}
	return fmt.Sprintf("%s|%s|%s|%s", kind, account, subject, amt)
}

// pendingSet deduplicates in-flight operations. An identical (kind, account,
// subject, amount) tuple may not be submitted twice while the first awaits
// confirmation.
type pendingSet struct {
	mu      sync.Mutex
	entries map[string]*Pending
}

func newPendingSet() *pendingSet {
	return &pendingSet{entries: make(map[string]*Pending)}
}

// begin registers the operation or fails with CodeAlreadyPending.
func (p *pendingSet) begin(kind Kind, account domain.Address, subject string, amount *uint256.Int, now time.Time) (*Pending, error) {
	key := pendingKey(kind, account, subject, amount)
	p.mu.Lock()
	defer p.mu.Unlock()
	if existing, ok := p.entries[key]; ok {
		return nil, dErrors.Newf(dErrors.CodeAlreadyPending,
			"%s of %s for %s is already awaiting confirmation (tx %s)",
			kind, subject, account.Short(), existing.Tx)
	}
	pending := &Pending{
		ID:          uuid.New(),
		Kind:        kind,
		Account:     account,
		Subject:     subject,
		SubmittedAt: now,
	}
	if amount != nil {
		pending.Amount = new(uint256.Int).Set(amount)
	}
	p.entries[key] = pending
	return pending, nil
}

// finish releases the operation's slot.
func (p *pendingSet) finish(pending *Pending) {
	key := pendingKey(pending.Kind, pending.Account, pending.Subject, pending.Amount)
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.entries, key)
}

// snapshot lists in-flight operations for an account, or all when account is
// the zero address.
func (p *pendingSet) snapshot(account domain.Address) []*Pending {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Pending
	for _, pending := range p.entries {
		if account == domain.ZeroAddress || pending.Account == account {
			copied := *pending
			out = append(out, &copied)
		}
	}
	return out
}
