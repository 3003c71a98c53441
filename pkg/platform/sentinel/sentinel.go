package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores and the ledger collaborator
// return these (optionally wrapped) so services can translate them into coded
// domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in the store or on the ledger
// - ErrConflict: entity already exists under that identity
// - ErrInvalidState: entity in wrong state for the requested operation
// - ErrUnreachable: the ledger collaborator could not be queried or reached
// - ErrReverted: the ledger executed the submission and reported failure
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrUnreachable  = errors.New("unreachable")
	ErrReverted     = errors.New("reverted")
)
