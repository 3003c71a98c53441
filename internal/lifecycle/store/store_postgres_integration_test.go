//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/suite"

	"greenchain/internal/lifecycle/models"
	"greenchain/internal/lifecycle/store"
	"greenchain/pkg/domain"
	"greenchain/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.Postgres
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.NewPostgresContainer(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.Require().NoError(s.store.EnsureSchema(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "credit_units"))
}

func (s *PostgresStoreSuite) newUnit(id domain.CertificateID) *models.CreditUnit {
	unit, err := models.NewCreditUnit(id,
		domain.Address("0x0000000000000000000000000000000000000011"),
		"Mangrove Restoration", "VCS", 2024, "Mekong Delta", "ipfs://meta",
		uint256.NewInt(100), time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.Require().NoError(err)
	return unit
}

func (s *PostgresStoreSuite) TestSaveAndGetRoundTrip() {
	ctx := context.Background()
	unit := s.newUnit(1)
	s.Require().NoError(s.store.Save(ctx, unit))

	got, err := s.store.Get(ctx, 1)
	s.Require().NoError(err)
	s.Equal(unit.ProjectName, got.ProjectName)
	s.Equal(unit.Owner, got.Owner)
	s.Equal(models.StateMinted, got.State)
	s.True(got.Amount.Eq(uint256.NewInt(100)))
	s.True(got.Bridged.IsZero())
	s.True(got.ApprovedAt.IsZero())
}

func (s *PostgresStoreSuite) TestUpsertAdvancesLifecycle() {
	ctx := context.Background()
	unit := s.newUnit(2)
	s.Require().NoError(s.store.Save(ctx, unit))

	unit.ApplyApprove(time.Now().UTC())
	unit.ApplyBridge(uint256.NewInt(40))
	s.Require().NoError(s.store.Save(ctx, unit))

	got, err := s.store.Get(ctx, 2)
	s.Require().NoError(err)
	s.Equal(models.StateApproved, got.State)
	s.True(got.WasApproved())
	s.Equal(uint64(40), got.Bridged.Uint64())
	s.Equal(uint64(60), got.Remaining().Uint64())
}

func (s *PostgresStoreSuite) TestWadScaleAmountsSurviveRoundTrip() {
	ctx := context.Background()
	unit := s.newUnit(3)
	unit.Amount, _ = domain.ParseUnits("1234567.890123456789012345")
	s.Require().NoError(s.store.Save(ctx, unit))

	got, err := s.store.Get(ctx, 3)
	s.Require().NoError(err)
	s.Equal("1234567.890123456789012345", domain.FormatUnits(got.Amount))
}

func (s *PostgresStoreSuite) TestGetMissingIsNotFound() {
	_, err := s.store.Get(context.Background(), 999)
	s.Require().ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestListOrdersByID() {
	ctx := context.Background()
	for _, id := range []domain.CertificateID{5, 3, 9} {
		s.Require().NoError(s.store.Save(ctx, s.newUnit(id)))
	}
	units, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Require().Len(units, 3)
	s.Equal(domain.CertificateID(3), units[0].ID)
	s.Equal(domain.CertificateID(9), units[2].ID)
}
