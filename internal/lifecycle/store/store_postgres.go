package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"

	"greenchain/internal/lifecycle/models"
	"greenchain/pkg/domain"
)

// Schema creates the credit mirror table. Amounts are stored as decimal
// strings; NUMERIC(78,0) covers the full 256-bit range.
const Schema = `
CREATE TABLE IF NOT EXISTS credit_units (
    id           BIGINT PRIMARY KEY,
    owner        TEXT NOT NULL,
    project_name TEXT NOT NULL,
    standard     TEXT NOT NULL,
    vintage_year INT NOT NULL,
    location     TEXT NOT NULL DEFAULT '',
    token_uri    TEXT NOT NULL DEFAULT '',
    amount       NUMERIC(78,0) NOT NULL,
    bridged      NUMERIC(78,0) NOT NULL DEFAULT 0,
    state        TEXT NOT NULL,
    minted_at    TIMESTAMPTZ NOT NULL,
    approved_at  TIMESTAMPTZ,
    retired_at   TIMESTAMPTZ
);
`

// Postgres persists the credit mirror in PostgreSQL.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed credit store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the backing table when it does not exist.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("ensure credit_units schema: %w", err)
	}
	return nil
}

func (s *Postgres) Save(ctx context.Context, unit *models.CreditUnit) error {
	if unit == nil {
		return fmt.Errorf("credit unit is required")
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credit_units
		    (id, owner, project_name, standard, vintage_year, location, token_uri,
		     amount, bridged, state, minted_at, approved_at, retired_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (id) DO UPDATE SET
		    bridged = EXCLUDED.bridged,
		    state = EXCLUDED.state,
		    approved_at = EXCLUDED.approved_at,
		    retired_at = EXCLUDED.retired_at`,
		int64(unit.ID), string(unit.Owner), unit.ProjectName, unit.Standard,
		unit.VintageYear, unit.Location, unit.TokenURI,
		unit.Amount.Dec(), unit.Bridged.Dec(), string(unit.State),
		unit.MintedAt, nullTime(unit.ApprovedAt), nullTime(unit.RetiredAt))
	if err != nil {
		return fmt.Errorf("save credit unit %d: %w", unit.ID, err)
	}
	return nil
}

func (s *Postgres) Get(ctx context.Context, id domain.CertificateID) (*models.CreditUnit, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, owner, project_name, standard, vintage_year, location, token_uri,
		       amount, bridged, state, minted_at, approved_at, retired_at
		FROM credit_units WHERE id = $1`, int64(id))
	unit, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get credit unit %d: %w", id, err)
	}
	return unit, nil
}

func (s *Postgres) List(ctx context.Context) ([]*models.CreditUnit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner, project_name, standard, vintage_year, location, token_uri,
		       amount, bridged, state, minted_at, approved_at, retired_at
		FROM credit_units ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list credit units: %w", err)
	}
	defer rows.Close()

	var units []*models.CreditUnit
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("list credit units: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list credit units: %w", err)
	}
	return units, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUnit(row scanner) (*models.CreditUnit, error) {
	var (
		unit       models.CreditUnit
		id         int64
		owner      string
		amount     string
		bridged    string
		state      string
		approvedAt sql.NullTime
		retiredAt  sql.NullTime
	)
	err := row.Scan(&id, &owner, &unit.ProjectName, &unit.Standard, &unit.VintageYear,
		&unit.Location, &unit.TokenURI, &amount, &bridged, &state,
		&unit.MintedAt, &approvedAt, &retiredAt)
	if err != nil {
		return nil, err
	}
	unit.ID = domain.CertificateID(id)
	unit.Owner = domain.Address(owner)
	unit.State = models.State(state)
	if unit.Amount, err = uint256.FromDecimal(amount); err != nil {
		return nil, fmt.Errorf("amount column: %w", err)
	}
	if unit.Bridged, err = uint256.FromDecimal(bridged); err != nil {
		return nil, fmt.Errorf("bridged column: %w", err)
	}
	if approvedAt.Valid {
		unit.ApprovedAt = approvedAt.Time
	}
	if retiredAt.Valid {
		unit.RetiredAt = retiredAt.Time
	}
	return &unit, nil
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
