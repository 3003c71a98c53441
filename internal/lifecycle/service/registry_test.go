package service

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"greenchain/internal/ledger"
	"greenchain/internal/ledger/ledgertest"
	"greenchain/internal/lifecycle/models"
	"greenchain/internal/lifecycle/store"
	rolesvc "greenchain/internal/roles/service"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

const (
	fungibleAddr = domain.Address("0x00000000000000000000000000000000000000f0")
	issuerAddr   = domain.Address("0x0000000000000000000000000000000000000001")
	approverAddr = domain.Address("0x0000000000000000000000000000000000000002")
	bridgeAddr   = domain.Address("0x0000000000000000000000000000000000000003")
	adminAddr    = domain.Address("0x0000000000000000000000000000000000000004")
	holderAddr   = domain.Address("0x0000000000000000000000000000000000000005")
)

type RegistrySuite struct {
	suite.Suite
	ctx       context.Context
	ledger    *ledgertest.Ledger
	authority *rolesvc.Authority
	registry  *Registry
	now       time.Time
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.ledger = ledgertest.New(fungibleAddr)
	s.ledger.SeedRole(ledgertest.ScopeCertificate, ledgertest.RoleIssuer, issuerAddr)
	s.ledger.SeedRole(ledgertest.ScopeCertificate, ledgertest.RoleApprover, approverAddr)
	s.ledger.SeedRole(ledgertest.ScopeFungible, ledgertest.RoleBridge, bridgeAddr)
	s.ledger.SeedRole(ledgertest.ScopeCertificate, ledgertest.RoleAdmin, adminAddr)

	clients := s.ledger.Clients()
	s.authority = rolesvc.NewAuthority(clients.Certificates, clients.Fungible)
	s.registry = NewRegistry(store.NewInMemory(), s.authority, clients.Certificates)
}

func (s *RegistrySuite) mintParams(id domain.CertificateID, amount uint64) ledger.MintParams {
	return ledger.MintParams{
		ID:          id,
		To:          holderAddr,
		ProjectName: "Mangrove Restoration",
		Standard:    "VCS",
		VintageYear: 2024,
		Location:    "Mekong Delta",
		TokenURI:    "ipfs://meta",
		Amount:      uint256.NewInt(amount),
	}
}

// track runs the full validate-and-record mint path.
func (s *RegistrySuite) track(id domain.CertificateID, amount uint64) *models.CreditUnit {
	unit, err := s.registry.PrepareMint(s.ctx, issuerAddr, s.mintParams(id, amount), s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.registry.RecordMinted(s.ctx, unit))
	return unit
}

func (s *RegistrySuite) TestMint() {
	s.Run("issuer mints", func() {
		unit := s.track(1, 100)
		s.Equal(models.StateMinted, unit.State)

		got, err := s.registry.Get(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal("Mangrove Restoration", got.ProjectName)
	})

	s.Run("non-issuer is unauthorized", func() {
		_, err := s.registry.PrepareMint(s.ctx, approverAddr, s.mintParams(2, 100), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("duplicate id already exists", func() {
		_, err := s.registry.PrepareMint(s.ctx, issuerAddr, s.mintParams(1, 100), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})

	s.Run("id taken on the ledger but absent from the mirror", func() {
		s.ledger.SeedCertificate(s.mintParams(3, 50), false, false)
		_, err := s.registry.PrepareMint(s.ctx, issuerAddr, s.mintParams(3, 100), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeAlreadyExists))
	})
}

func (s *RegistrySuite) TestApprove() {
	s.track(1, 100)

	s.Run("approver approves a minted certificate", func() {
		already, err := s.registry.PrepareApprove(s.ctx, approverAddr, 1)
		s.Require().NoError(err)
		s.False(already)
		s.Require().NoError(s.registry.RecordApproved(s.ctx, 1, s.now))

		state, err := s.registry.StateOf(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal(models.StateApproved, state)
	})

	s.Run("approving an approved certificate is a no-op", func() {
		already, err := s.registry.PrepareApprove(s.ctx, approverAddr, 1)
		s.Require().NoError(err)
		s.True(already)
	})

	s.Run("non-approver is unauthorized", func() {
		_, err := s.registry.PrepareApprove(s.ctx, issuerAddr, 1)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown certificate is not found", func() {
		_, err := s.registry.PrepareApprove(s.ctx, approverAddr, 404)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("retired certificate cannot be approved", func() {
		s.track(2, 100)
		s.Require().NoError(s.registry.RecordRetired(s.ctx, 2, s.now))
		_, err := s.registry.PrepareApprove(s.ctx, approverAddr, 2)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})
}

func (s *RegistrySuite) TestRetire() {
	s.track(1, 100)

	s.Run("admin without approver role may retire", func() {
		already, err := s.registry.PrepareRetire(s.ctx, adminAddr, 1)
		s.Require().NoError(err)
		s.False(already)
		s.Require().NoError(s.registry.RecordRetired(s.ctx, 1, s.now))
	})

	s.Run("retiring a retired certificate is a no-op", func() {
		already, err := s.registry.PrepareRetire(s.ctx, approverAddr, 1)
		s.Require().NoError(err)
		s.True(already)
	})

	s.Run("unprivileged account is unauthorized", func() {
		_, err := s.registry.PrepareRetire(s.ctx, holderAddr, 1)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *RegistrySuite) TestBridge() {
	s.track(1, 100)

	s.Run("bridging an unapproved certificate is an invalid state", func() {
		_, err := s.registry.PrepareBridge(s.ctx, bridgeAddr, 1, uint256.NewInt(10))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Require().NoError(s.registry.RecordApproved(s.ctx, 1, s.now))

	s.Run("bridge-role holder bridges within the remainder", func() {
		unit, err := s.registry.PrepareBridge(s.ctx, bridgeAddr, 1, uint256.NewInt(60))
		s.Require().NoError(err)
		s.Equal(uint64(100), unit.Remaining().Uint64())
		s.Require().NoError(s.registry.RecordBridged(s.ctx, 1, uint256.NewInt(60)))

		got, err := s.registry.Get(s.ctx, 1)
		s.Require().NoError(err)
		s.Equal(uint64(40), got.Remaining().Uint64())
	})

	s.Run("bridging past the issuance is insufficient balance", func() {
		_, err := s.registry.PrepareBridge(s.ctx, bridgeAddr, 1, uint256.NewInt(41))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientBalance))
	})

	s.Run("revoked bridge role is unauthorized", func() {
		_, err := s.registry.PrepareBridge(s.ctx, holderAddr, 1, uint256.NewInt(10))
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *RegistrySuite) TestStateOfFallsBackToLedger() {
	// Approved on the ledger, never seen by this coordinator.
	s.ledger.SeedCertificate(s.mintParams(9, 50), true, false)

	state, err := s.registry.StateOf(s.ctx, 9)
	s.Require().NoError(err)
	s.Equal(models.StateApproved, state)

	_, err = s.registry.StateOf(s.ctx, 404)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
