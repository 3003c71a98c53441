// Package models holds the certificate lifecycle state machine.
//
// A credit unit moves minted -> approved -> retired, forward only. Approval
// and retirement are idempotent. Bridging converts owned certificate balance
// into fungible supply and requires a prior approval; the bridged total can
// never exceed the amount issued.
package models

import (
	"time"

	"github.com/holiman/uint256"

	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// State is a credit unit's lifecycle stage.
type State string

const (
	StateMinted   State = "minted"
	StateApproved State = "approved"
	StateRetired  State = "retired"
)

// CreditUnit is the off-chain mirror of one certificate: issuance metadata,
// lifecycle stage, and the running bridged total.
type CreditUnit struct {
	ID          domain.CertificateID
	Owner       domain.Address
	ProjectName string
	Standard    string
	VintageYear int
	Location    string
	TokenURI    string
	Amount      *uint256.Int
	Bridged     *uint256.Int

	State      State
	MintedAt   time.Time
	ApprovedAt time.Time
	RetiredAt  time.Time
}

// NewCreditUnit validates issuance metadata and returns a minted unit.
func NewCreditUnit(id domain.CertificateID, owner domain.Address, projectName, standard string,
	vintageYear int, location, tokenURI string, amount *uint256.Int, now time.Time) (*CreditUnit, error) {
	if owner.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "recipient must not be the zero address")
	}
	if projectName == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "project name is required")
	}
	if standard == "" {
		return nil, dErrors.New(dErrors.CodeBadRequest, "certification standard is required")
	}
	if vintageYear < 1990 || vintageYear > now.Year()+1 {
		return nil, dErrors.Newf(dErrors.CodeBadRequest, "vintage year %d out of range", vintageYear)
	}
	if amount == nil || amount.IsZero() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "issued amount must be positive")
	}
	return &CreditUnit{
		ID:          id,
		Owner:       owner,
		ProjectName: projectName,
		Standard:    standard,
		VintageYear: vintageYear,
		Location:    location,
		TokenURI:    tokenURI,
		Amount:      new(uint256.Int).Set(amount),
		Bridged:     new(uint256.Int),
		State:       StateMinted,
		MintedAt:    now,
	}, nil
}

// WasApproved reports whether the unit ever passed approval, including units
// retired afterwards.
func (c *CreditUnit) WasApproved() bool {
	return !c.ApprovedAt.IsZero()
}

// CanApprove checks the minted -> approved transition. Approving an approved
// unit reports alreadyDone so callers skip resubmission instead of failing.
func (c *CreditUnit) CanApprove() (alreadyDone bool, err error) {
	switch c.State {
	case StateApproved:
		return true, nil
	case StateRetired:
		return false, dErrors.Newf(dErrors.CodeInvalidState, "certificate %d is retired", c.ID)
	}
	return false, nil
}

// ApplyApprove records the approval.
func (c *CreditUnit) ApplyApprove(now time.Time) {
	c.State = StateApproved
	c.ApprovedAt = now
}

// CanRetire checks the transition to retired. Retiring a retired unit
// reports alreadyDone.
func (c *CreditUnit) CanRetire() (alreadyDone bool, err error) {
	return c.State == StateRetired, nil
}

// ApplyRetire records the retirement.
func (c *CreditUnit) ApplyRetire(now time.Time) {
	c.State = StateRetired
	c.RetiredAt = now
}

// CanBridge checks whether amount more certificate balance may convert to
// fungible supply. Requires a past approval; a retired unit's remaining
// balance stays bridgeable.
func (c *CreditUnit) CanBridge(amount *uint256.Int) error {
	if amount == nil || amount.IsZero() {
		return dErrors.New(dErrors.CodeBadRequest, "bridge amount must be positive")
	}
	if !c.WasApproved() {
		return dErrors.Newf(dErrors.CodeInvalidState, "certificate %d is not approved for bridging", c.ID)
	}
	total := new(uint256.Int).Add(c.Bridged, amount)
	if total.Cmp(c.Amount) > 0 {
		return dErrors.Newf(dErrors.CodeInsufficientBalance,
			"bridge of %s exceeds remaining certificate balance %s",
			domain.FormatUnits(amount),
			domain.FormatUnits(new(uint256.Int).Sub(c.Amount, c.Bridged)))
	}
	return nil
}

// ApplyBridge adds amount to the bridged total.
func (c *CreditUnit) ApplyBridge(amount *uint256.Int) {
	c.Bridged = new(uint256.Int).Add(c.Bridged, amount)
}

// Remaining returns the certificate balance not yet converted.
func (c *CreditUnit) Remaining() *uint256.Int {
	return new(uint256.Int).Sub(c.Amount, c.Bridged)
}

// Clone returns an independent copy so stores never hand out shared pointers.
func (c *CreditUnit) Clone() *CreditUnit {
	out := *c
	out.Amount = new(uint256.Int).Set(c.Amount)
	out.Bridged = new(uint256.Int).Set(c.Bridged)
	return &out
}
