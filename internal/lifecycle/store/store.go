// Package store persists the off-chain credit mirror.
package store

import (
	"context"
	"errors"

	"greenchain/internal/lifecycle/models"
	"greenchain/pkg/domain"
)

// ErrNotFound is returned when the requested credit unit is not recorded.
var ErrNotFound = errors.New("credit unit not found")

// Store is the credit mirror contract. Save upserts the full record; reads
// return copies the caller may mutate freely.
type Store interface {
	Save(ctx context.Context, unit *models.CreditUnit) error
	Get(ctx context.Context, id domain.CertificateID) (*models.CreditUnit, error)
	List(ctx context.Context) ([]*models.CreditUnit, error)
}
