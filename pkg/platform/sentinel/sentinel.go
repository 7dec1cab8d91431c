package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors.
//
// These represent factual states about resources, not validation failures:
// - ErrNotFound: entity does not exist in store
// - ErrConflict: unique key already taken by a concurrent writer
// - ErrInsufficient: balance too low for the requested decrement
// - ErrStale: cached entry exists but is past its freshness window
// - ErrUnavailable: service or resource temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInsufficient = errors.New("insufficient balance")
	ErrStale        = errors.New("stale")
	ErrUnavailable  = errors.New("unavailable")
)
