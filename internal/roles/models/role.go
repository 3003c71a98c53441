package models

import (
	"fmt"
	"time"

	"greenchain/pkg/domain"
)

// Kind is a named capability recognized by the asset contracts.
type Kind string

const (
	// KindIssuer may mint new certificates.
	KindIssuer Kind = "ISSUER_ROLE"
	// KindApprover may approve and retire certificates.
	KindApprover Kind = "APPROVER_ROLE"
	// KindBridge may mint fungible tokens against approved certificates.
	KindBridge Kind = "BRIDGE_ROLE"
	// KindAdmin administers role membership on both contracts.
	KindAdmin Kind = "DEFAULT_ADMIN_ROLE"
)

// Scope identifies which contract holds a role's membership.
type Scope string

const (
	ScopeCertificate Scope = "certificate"
	ScopeFungible    Scope = "fungible"
)

// ParseKind validates a role name from an external caller.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindIssuer, KindApprover, KindBridge, KindAdmin:
		return Kind(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// Scope reports the contract that owns this role. The bridge capability lives
// on the fungible token; issuance, approval, and admin live on the
// certificate contract.
func (k Kind) Scope() Scope {
	if k == KindBridge {
		return ScopeFungible
	}
	return ScopeCertificate
}

// Grant is one recorded change to an account's role membership. Grants are
// append-only; revocation appends an inactive record rather than deleting.
type Grant struct {
	Holder    domain.Address
	Kind      Kind
	Active    bool
	ChangedBy domain.Address
	ChangedAt time.Time
}
