// Package store persists the credit ledger, the shared lookup cache, and the
// per-user access grants. Postgres is the system of record; Redis fronts the
// shared cache as a read-through layer.
package store

import (
	"context"

	"skiptrace/internal/skiptrace"
)

// Ledger manages consumable credit balances. Decrements are conditional at
// the storage layer so a balance can never go negative, regardless of
// concurrent consumers.
type Ledger interface {
	// Balance returns the user's current entitlements. Users without a
	// ledger row have a zero balance, not an error.
	Balance(ctx context.Context, userID string) (skiptrace.CreditBalance, error)

	// Add credits free and/or paid credits to the user's balance.
	Add(ctx context.Context, userID string, free, paid int) (skiptrace.CreditBalance, error)

	// Consume decrements one credit, free before paid, and returns which
	// type was spent plus the post-decrement balance. Returns
	// sentinel.ErrInsufficient when the user has no credits left.
	Consume(ctx context.Context, userID string) (skiptrace.CreditType, skiptrace.CreditBalance, error)

	// Rollback returns a previously consumed credit of the given type.
	// Increments are unconditional; a rollback can never fail a balance
	// check.
	Rollback(ctx context.Context, userID string, creditType skiptrace.CreditType) error
}

// Cache is the shared lookup cache keyed by (address key, name key).
// Only successful lookups are stored.
type Cache interface {
	// Lookup returns the cached record for the key pair, or
	// sentinel.ErrNotFound.
	Lookup(ctx context.Context, addressKey, nameKey string) (*skiptrace.CacheRecord, error)

	// Insert stores a record. When a concurrent writer got there first the
	// existing record wins and is returned; the caller's payload is
	// discarded.
	Insert(ctx context.Context, rec *skiptrace.CacheRecord) (*skiptrace.CacheRecord, error)

	// Refresh overwrites a stale record's payload and freshness timestamp
	// in place, keeping its identity and existing grants.
	Refresh(ctx context.Context, rec *skiptrace.CacheRecord) error
}

// Grants records which users have paid for access to which cache records.
type Grants interface {
	// Has reports whether the user already holds a grant for the record.
	Has(ctx context.Context, userID string, cacheID int64) (bool, error)

	// Grant records access. Granting twice for the same (user, record)
	// pair is a no-op; the original grant keeps its cost.
	Grant(ctx context.Context, g skiptrace.AccessGrant) error
}
