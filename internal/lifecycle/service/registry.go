// Package service holds the lifecycle registry: validation and bookkeeping
// for the mint -> approve -> retire certificate lifecycle and the bridge to
// fungible supply.
//
// The registry owns the off-chain mirror and the transition rules; it never
// submits to the ledger itself. Callers validate through Prepare*, submit,
// and report confirmed outcomes through Record*.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/holiman/uint256"

	"greenchain/internal/ledger"
	"greenchain/internal/lifecycle/metrics"
	"greenchain/internal/lifecycle/models"
	"greenchain/internal/lifecycle/store"
	rolemodels "greenchain/internal/roles/models"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

// RoleChecker is the capability guard the registry consults before any
// state-changing validation.
type RoleChecker interface {
	RequireCapability(ctx context.Context, account domain.Address, kind rolemodels.Kind) error
	HasCapability(ctx context.Context, account domain.Address, kind rolemodels.Kind) (bool, error)
}

// Registry validates lifecycle transitions against the off-chain mirror and
// the role authority.
type Registry struct {
	store   store.Store
	roles   RoleChecker
	certs   ledger.Certificates
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) { r.logger = logger }
}

// WithMetrics attaches lifecycle metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry constructs the lifecycle registry.
func NewRegistry(st store.Store, roles RoleChecker, certs ledger.Certificates, opts ...Option) *Registry {
	r := &Registry{
		store:  st,
		roles:  roles,
		certs:  certs,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Registry) reject(operation string, err error) error {
	r.metrics.RecordRejection(operation, string(dErrors.CodeOf(err)))
	return err
}

// PrepareMint validates a mint request and returns the unit to record once
// the ledger confirms.
func (r *Registry) PrepareMint(ctx context.Context, actor domain.Address, params ledger.MintParams, now time.Time) (*models.CreditUnit, error) {
	if err := r.roles.RequireCapability(ctx, actor, rolemodels.KindIssuer); err != nil {
		return nil, r.reject("mint", err)
	}

	if _, err := r.store.Get(ctx, params.ID); err == nil {
		return nil, r.reject("mint", dErrors.Newf(dErrors.CodeAlreadyExists, "certificate %d already exists", params.ID))
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, r.reject("mint", dErrors.Wrap(err, dErrors.CodeInternal, "read credit mirror"))
	}

	// The mirror can lag a mint confirmed by another coordinator; the ledger
	// has the final word on id collisions.
	exists, err := r.certs.Exists(ctx, params.ID)
	if err != nil {
		return nil, r.reject("mint", dErrors.Wrap(err, dErrors.CodeUnreachable, "check certificate existence"))
	}
	if exists {
		return nil, r.reject("mint", dErrors.Newf(dErrors.CodeAlreadyExists, "certificate %d already exists on the ledger", params.ID))
	}

	unit, err := models.NewCreditUnit(params.ID, params.To, params.ProjectName, params.Standard,
		params.VintageYear, params.Location, params.TokenURI, params.Amount, now)
	if err != nil {
		return nil, r.reject("mint", err)
	}
	return unit, nil
}

// RecordMinted stores the mirror record for a confirmed mint.
func (r *Registry) RecordMinted(ctx context.Context, unit *models.CreditUnit) error {
	if err := r.store.Save(ctx, unit); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save credit mirror")
	}
	r.metrics.RecordTransition("mint")
	r.logger.InfoContext(ctx, "certificate minted",
		"certificate_id", uint64(unit.ID), "owner", unit.Owner.Short(),
		"amount", domain.FormatUnits(unit.Amount))
	return nil
}

// PrepareApprove validates an approval. alreadyDone means the unit is
// approved and no submission is needed.
func (r *Registry) PrepareApprove(ctx context.Context, actor domain.Address, id domain.CertificateID) (alreadyDone bool, err error) {
	if err := r.roles.RequireCapability(ctx, actor, rolemodels.KindApprover); err != nil {
		return false, r.reject("approve", err)
	}
	unit, err := r.load(ctx, id)
	if err != nil {
		return false, r.reject("approve", err)
	}
	alreadyDone, err = unit.CanApprove()
	if err != nil {
		return false, r.reject("approve", err)
	}
	return alreadyDone, nil
}

// RecordApproved advances the mirror for a confirmed approval.
func (r *Registry) RecordApproved(ctx context.Context, id domain.CertificateID, now time.Time) error {
	return r.advance(ctx, id, "approve", func(unit *models.CreditUnit) {
		unit.ApplyApprove(now)
	})
}

// PrepareRetire validates a retirement. Approvers retire in the normal flow;
// the contract admin may force-retire.
func (r *Registry) PrepareRetire(ctx context.Context, actor domain.Address, id domain.CertificateID) (alreadyDone bool, err error) {
	isApprover, err := r.roles.HasCapability(ctx, actor, rolemodels.KindApprover)
	if err != nil {
		return false, r.reject("retire", err)
	}
	if !isApprover {
		if err := r.roles.RequireCapability(ctx, actor, rolemodels.KindAdmin); err != nil {
			return false, r.reject("retire", err)
		}
	}
	unit, err := r.load(ctx, id)
	if err != nil {
		return false, r.reject("retire", err)
	}
	alreadyDone, err = unit.CanRetire()
	if err != nil {
		return false, r.reject("retire", err)
	}
	return alreadyDone, nil
}

// RecordRetired advances the mirror for a confirmed retirement.
func (r *Registry) RecordRetired(ctx context.Context, id domain.CertificateID, now time.Time) error {
	return r.advance(ctx, id, "retire", func(unit *models.CreditUnit) {
		unit.ApplyRetire(now)
	})
}

// PrepareBridge validates converting certificate balance to fungible supply:
// the actor must hold the bridge capability and the unit must have an
// approved, sufficient remainder.
func (r *Registry) PrepareBridge(ctx context.Context, actor domain.Address, id domain.CertificateID, amount *uint256.Int) (*models.CreditUnit, error) {
	if err := r.roles.RequireCapability(ctx, actor, rolemodels.KindBridge); err != nil {
		return nil, r.reject("bridge", err)
	}
	unit, err := r.load(ctx, id)
	if err != nil {
		return nil, r.reject("bridge", err)
	}
	if err := unit.CanBridge(amount); err != nil {
		return nil, r.reject("bridge", err)
	}
	return unit, nil
}

// RecordBridged adds a confirmed bridge amount to the mirror.
func (r *Registry) RecordBridged(ctx context.Context, id domain.CertificateID, amount *uint256.Int) error {
	return r.advance(ctx, id, "bridge", func(unit *models.CreditUnit) {
		unit.ApplyBridge(amount)
	})
}

// Get returns the mirror record for one certificate.
func (r *Registry) Get(ctx context.Context, id domain.CertificateID) (*models.CreditUnit, error) {
	return r.load(ctx, id)
}

// List returns every tracked certificate ordered by id.
func (r *Registry) List(ctx context.Context) ([]*models.CreditUnit, error) {
	units, err := r.store.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list credit mirror")
	}
	return units, nil
}

// StateOf reports a certificate's lifecycle stage, falling back to ledger
// flags when the mirror has no record.
func (r *Registry) StateOf(ctx context.Context, id domain.CertificateID) (models.State, error) {
	unit, err := r.load(ctx, id)
	if err == nil {
		return unit.State, nil
	}
	if !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return "", err
	}

	exists, lerr := r.certs.Exists(ctx, id)
	if lerr != nil {
		return "", dErrors.Wrap(lerr, dErrors.CodeUnreachable, "check certificate existence")
	}
	if !exists {
		return "", err
	}
	if retired, lerr := r.certs.IsRetired(ctx, id); lerr != nil {
		return "", dErrors.Wrap(lerr, dErrors.CodeUnreachable, "read certificate state")
	} else if retired {
		return models.StateRetired, nil
	}
	if approved, lerr := r.certs.IsApproved(ctx, id); lerr != nil {
		return "", dErrors.Wrap(lerr, dErrors.CodeUnreachable, "read certificate state")
	} else if approved {
		return models.StateApproved, nil
	}
	return models.StateMinted, nil
}

func (r *Registry) load(ctx context.Context, id domain.CertificateID) (*models.CreditUnit, error) {
	unit, err := r.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "certificate %d is not tracked", id)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "read credit mirror")
	}
	return unit, nil
}

func (r *Registry) advance(ctx context.Context, id domain.CertificateID, operation string, apply func(*models.CreditUnit)) error {
	unit, err := r.load(ctx, id)
	if err != nil {
		return err
	}
	apply(unit)
	if err := r.store.Save(ctx, unit); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "save credit mirror")
	}
	r.metrics.RecordTransition(operation)
	return nil
}
