package poolregistry

import (
	"context"
	"errors"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"greenchain/internal/ledger"
	"greenchain/internal/ledger/ledgertest"
	"greenchain/pkg/domain"
	dErrors "greenchain/pkg/domain-errors"
)

const (
	fungibleAddr = domain.Address("0x00000000000000000000000000000000000000f0")
	tokenA       = domain.Address("0x00000000000000000000000000000000000000a1")
	tokenB       = domain.Address("0x00000000000000000000000000000000000000b1")
	poolA        = domain.Address("0x00000000000000000000000000000000000000aa")
	poolB        = domain.Address("0x00000000000000000000000000000000000000bb")
	lpAddr       = domain.Address("0x0000000000000000000000000000000000000007")
)

type RegistrySuite struct {
	suite.Suite
	ctx      context.Context
	ledger   *ledgertest.Ledger
	registry *Registry
}

func TestRegistrySuite(t *testing.T) {
	suite.Run(t, new(RegistrySuite))
}

func (s *RegistrySuite) SetupTest() {
	s.ctx = context.Background()
	s.ledger = ledgertest.New(fungibleAddr)
	clients := s.ledger.Clients()
	s.registry = New(clients.Factory, clients.Pools)
}

func (s *RegistrySuite) TestRefreshFoldsFactoryHistory() {
	s.ledger.CreatePool(poolA, tokenA, fungibleAddr, uint256.NewInt(1000), uint256.NewInt(1000), 30)
	s.ledger.CreatePool(poolB, tokenB, fungibleAddr, uint256.NewInt(400), uint256.NewInt(900), 30)

	s.Require().NoError(s.registry.Refresh(s.ctx))

	addr, err := s.registry.PoolFor(tokenA)
	s.Require().NoError(err)
	s.Equal(poolA, addr)
	s.True(s.registry.Known(poolB))

	_, err = s.registry.PoolFor(domain.Address("0x00000000000000000000000000000000000000c1"))
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *RegistrySuite) TestRefreshIsIdempotent() {
	s.ledger.CreatePool(poolA, tokenA, fungibleAddr, uint256.NewInt(1000), uint256.NewInt(1000), 30)

	s.Require().NoError(s.registry.Refresh(s.ctx))
	s.Require().NoError(s.registry.Refresh(s.ctx))

	views, err := s.registry.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Len(views, 1)
}

func (s *RegistrySuite) TestDuplicateTokenKeepsFirstPool() {
	s.registry.Apply(ledger.PoolCreated{CertificateToken: tokenA, Pool: poolA})
	s.registry.Apply(ledger.PoolCreated{CertificateToken: tokenA, Pool: poolB})

	addr, err := s.registry.PoolFor(tokenA)
	s.Require().NoError(err)
	s.Equal(poolA, addr)
	// Both pools stay addressable.
	s.True(s.registry.Known(poolA))
	s.True(s.registry.Known(poolB))
}

func (s *RegistrySuite) TestRefreshAgainstDownLedgerIsUnreachable() {
	s.ledger.FailReads(errors.New("rpc timeout"))
	err := s.registry.Refresh(s.ctx)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeUnreachable))
}

func (s *RegistrySuite) TestSnapshotReadsLiveState() {
	s.ledger.CreatePool(poolA, tokenA, fungibleAddr, uint256.NewInt(1000), uint256.NewInt(2000), 30)
	s.ledger.CreatePool(poolB, tokenB, fungibleAddr, uint256.NewInt(400), uint256.NewInt(900), 100)
	s.Require().NoError(s.registry.Refresh(s.ctx))

	views, err := s.registry.Snapshot(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(views, 2)

	byPool := map[domain.Address]*View{views[0].Pool: views[0], views[1].Pool: views[1]}
	s.Equal(uint64(30), byPool[poolA].FeeBps)
	s.Equal(tokenA, byPool[poolA].CertificateToken)
	s.True(byPool[poolB].Reserve0.Eq(uint256.NewInt(400)))
}

func (s *RegistrySuite) TestPositionOfDerivesFromLedgerReads() {
	// Seed pool at (400, 900); total supply is the geometric mean, 600.
	s.ledger.CreatePool(poolA, tokenA, fungibleAddr, uint256.NewInt(400), uint256.NewInt(900), 0)
	s.Require().NoError(s.registry.Refresh(s.ctx))

	// An account holding zero shares owns nothing.
	pos, err := s.registry.PositionOf(s.ctx, poolA, lpAddr)
	s.Require().NoError(err)
	s.True(pos.Shares.IsZero())
	s.True(pos.ShareWad.IsZero())
	s.True(pos.Amount0.IsZero())

	view, err := s.registry.View(s.ctx, poolA)
	s.Require().NoError(err)
	s.Equal(uint64(600), view.TotalSupply.Uint64())
}

func (s *RegistrySuite) TestViewUnknownPool() {
	_, err := s.registry.View(s.ctx, poolA)
	s.Require().Error(err)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}
