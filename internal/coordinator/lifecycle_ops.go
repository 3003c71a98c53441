package coordinator

import (
	"context"
	"fmt"

	"github.com/holiman/uint256"
	"go.opentelemetry.io/otel/attribute"

	"greenchain/internal/ledger"
	rolemodels "greenchain/internal/roles/models"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// Result reports a finished operation. AlreadyDone means the requested state
// already held and nothing was submitted.
type Result struct {
	Kind        Kind
	Tx          ledger.TxHash
	Block       uint64
	AlreadyDone bool
}

func certSubject(id domain.CertificateID) string {
	return fmt.Sprintf("certificate:%d", id)
}

// MintCertificate issues a new certificate with its project metadata.
func (c *Coordinator) MintCertificate(ctx context.Context, actor domain.Address, params ledger.MintParams) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.MintCertificate", actor)
	span.SetAttributes(attribute.Int64("certificate_id", int64(params.ID)))
	defer func() { endSpan(span, err) }()

	lock := c.lockAccount(actor)
	defer lock.release()

	pending, err := c.pending.begin(KindMint, actor, certSubject(params.ID), params.Amount, c.now())
	if err != nil {
		return nil, err
	}
	defer c.pending.finish(pending)

	unit, err := c.registry.PrepareMint(ctx, actor, params, c.now())
	if err != nil {
		return nil, err
	}

	pending.Tx, err = c.clients.Certificates.Mint(ctx, actor, params)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "submit mint")
	}

	lock.release()
	receipt, err := c.confirm(ctx, pending)
	if err != nil {
		return nil, err
	}
	if err := c.registry.RecordMinted(ctx, unit); err != nil {
		return nil, err
	}
	c.publish(ctx, c.confirmedEvent(pending))
	return &Result{Kind: KindMint, Tx: receipt.Tx, Block: receipt.Block}, nil
}

// ApproveCertificate moves a minted certificate to approved. Approving an
// approved certificate succeeds without a submission.
func (c *Coordinator) ApproveCertificate(ctx context.Context, actor domain.Address, id domain.CertificateID) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.ApproveCertificate", actor)
	span.SetAttributes(attribute.Int64("certificate_id", int64(id)))
	defer func() { endSpan(span, err) }()

	lock := c.lockAccount(actor)
	defer lock.release()

	pending, err := c.pending.begin(KindApprove, actor, certSubject(id), nil, c.now())
	if err != nil {
		return nil, err
	}
	defer c.pending.finish(pending)

	alreadyDone, err := c.registry.PrepareApprove(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if alreadyDone {
		return &Result{Kind: KindApprove, AlreadyDone: true}, nil
	}

	pending.Tx, err = c.clients.Certificates.Approve(ctx, actor, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "submit approve")
	}

	lock.release()
	receipt, err := c.confirm(ctx, pending)
	if err != nil {
		return nil, err
	}
	if err := c.registry.RecordApproved(ctx, id, c.now()); err != nil {
		return nil, err
	}
	c.publish(ctx, c.confirmedEvent(pending))
	return &Result{Kind: KindApprove, Tx: receipt.Tx, Block: receipt.Block}, nil
}

// RetireCertificate permanently ends a certificate's lifecycle. Retiring a
// retired certificate succeeds without a submission.
func (c *Coordinator) RetireCertificate(ctx context.Context, actor domain.Address, id domain.CertificateID) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.RetireCertificate", actor)
	span.SetAttributes(attribute.Int64("certificate_id", int64(id)))
	defer func() { endSpan(span, err) }()

	lock := c.lockAccount(actor)
	defer lock.release()

	pending, err := c.pending.begin(KindRetire, actor, certSubject(id), nil, c.now())
	if err != nil {
		return nil, err
	}
	defer c.pending.finish(pending)

	alreadyDone, err := c.registry.PrepareRetire(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if alreadyDone {
		return &Result{Kind: KindRetire, AlreadyDone: true}, nil
	}

	pending.Tx, err = c.clients.Certificates.Retire(ctx, actor, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "submit retire")
	}

	lock.release()
	receipt, err := c.confirm(ctx, pending)
	if err != nil {
		return nil, err
	}
	if err := c.registry.RecordRetired(ctx, id, c.now()); err != nil {
		return nil, err
	}
	c.publish(ctx, c.confirmedEvent(pending))
	return &Result{Kind: KindRetire, Tx: receipt.Tx, Block: receipt.Block}, nil
}

// BridgeMint converts approved certificate balance into fungible supply
// credited to the recipient. The certificate contract must be authorized to
// move the actor's holdings; a missing operator approval is submitted first.
func (c *Coordinator) BridgeMint(ctx context.Context, actor, to domain.Address, id domain.CertificateID, amount *uint256.Int) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.BridgeMint", actor)
	span.SetAttributes(attribute.Int64("certificate_id", int64(id)))
	defer func() { endSpan(span, err) }()

	lock := c.lockAccount(actor)
	defer lock.release()

	pending, err := c.pending.begin(KindBridge, actor, certSubject(id), amount, c.now())
	if err != nil {
		return nil, err
	}
	defer c.pending.finish(pending)

	if _, err := c.registry.PrepareBridge(ctx, actor, id, amount); err != nil {
		return nil, err
	}

	// The mirror caps the running bridged total; the live balance guards
	// against holdings transferred away outside this coordinator.
	balance, err := c.clients.Certificates.BalanceOf(ctx, actor, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "read certificate balance")
	}
	if balance.Cmp(amount) < 0 {
		return nil, dErrors.Newf(dErrors.CodeInsufficientBalance,
			"certificate balance %s is below bridge amount %s",
			domain.FormatUnits(balance), domain.FormatUnits(amount))
	}

	if err := c.ensureOperatorApproval(ctx, actor); err != nil {
		return nil, err
	}

	pending.Tx, err = c.clients.Fungible.BridgeMint(ctx, actor, to, amount, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "submit bridge mint")
	}

	lock.release()
	receipt, err := c.confirm(ctx, pending)
	if err != nil {
		return nil, err
	}
	if err := c.registry.RecordBridged(ctx, id, amount); err != nil {
		return nil, err
	}
	c.publish(ctx, c.confirmedEvent(pending))
	return &Result{Kind: KindBridge, Tx: receipt.Tx, Block: receipt.Block}, nil
}

// ensureOperatorApproval authorizes the fungible contract to move the actor's
// certificates, submitting the approval only when absent.
func (c *Coordinator) ensureOperatorApproval(ctx context.Context, actor domain.Address) error {
	operator := c.clients.Fungible.Address()
	approved, err := c.clients.Certificates.IsOperatorApproved(ctx, actor, operator)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnreachable, "read operator approval")
	}
	if approved {
		return nil
	}

	c.logger.InfoContext(ctx, "authorizing certificate transfers for bridge",
		"account", actor.Short(), "operator", operator.Short())
	tx, err := c.clients.Certificates.SetOperatorApproval(ctx, actor, operator, true)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeUnreachable, "submit operator approval")
	}
	if _, err := c.confirm(ctx, &Pending{Kind: KindBridge, Account: actor, Subject: "operator_approval", Tx: tx}); err != nil {
		return err
	}
	return nil
}

// ChangeRole grants or revokes a role. Only the contract admin may change
// membership; the capability cache is invalidated once the ledger confirms.
func (c *Coordinator) ChangeRole(ctx context.Context, actor, holder domain.Address, kind rolemodels.Kind, grant bool) (_ *Result, err error) {
	ctx, span := c.startSpan(ctx, "coordinator.ChangeRole", actor)
	span.SetAttributes(attribute.String("role", string(kind)), attribute.Bool("grant", grant))
	defer func() { endSpan(span, err) }()

	lock := c.lockAccount(actor)
	defer lock.release()

	if err := c.authority.RequireCapability(ctx, actor, rolemodels.KindAdmin); err != nil {
		return nil, err
	}

	subject := fmt.Sprintf("role:%s:%s", kind, holder)
	pending, err := c.pending.begin(KindRoleChange, actor, subject, nil, c.now())
	if err != nil {
		return nil, err
	}
	defer c.pending.finish(pending)

	hash, err := c.authority.RoleHashFor(ctx, kind)
	if err != nil {
		return nil, err
	}

	change := c.clients.Certificates.GrantRole
	if kind.Scope() == rolemodels.ScopeFungible {
		change = c.clients.Fungible.GrantRole
		if !grant {
			change = c.clients.Fungible.RevokeRole
		}
	} else if !grant {
		change = c.clients.Certificates.RevokeRole
	}

	pending.Tx, err = change(ctx, actor, hash, holder)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeUnreachable, "submit role change")
	}

	lock.release()
	receipt, err := c.confirm(ctx, pending)
	if err != nil {
		return nil, err
	}
	c.authority.RecordChange(ctx, rolemodels.Grant{
		Holder:    holder,
		Kind:      kind,
		Active:    grant,
		ChangedBy: actor,
		ChangedAt: c.now(),
	})
	c.publish(ctx, c.confirmedEvent(pending))
	return &Result{Kind: KindRoleChange, Tx: receipt.Tx, Block: receipt.Block}, nil
}
