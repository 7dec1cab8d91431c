package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"skiptrace/internal/skiptrace"
	"skiptrace/pkg/platform/sentinel"
)

// Memory implements Ledger, Cache, and Grants in process memory. It backs
// unit tests and local development; semantics mirror the Postgres store.
type Memory struct {
	mu       sync.RWMutex
	balances map[string]skiptrace.CreditBalance
	records  map[string]*skiptrace.CacheRecord
	grants   map[string]skiptrace.AccessGrant
	nextID   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		balances: make(map[string]skiptrace.CreditBalance),
		records:  make(map[string]*skiptrace.CacheRecord),
		grants:   make(map[string]skiptrace.AccessGrant),
	}
}

func cacheKey(addressKey, nameKey string) string {
	return addressKey + "\x00" + nameKey
}

func grantKey(userID string, cacheID int64) string {
	return userID + "\x00" + strconv.FormatInt(cacheID, 10)
}

// --- Ledger ---

func (m *Memory) Balance(_ context.Context, userID string) (skiptrace.CreditBalance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balances[userID], nil
}

func (m *Memory) Add(_ context.Context, userID string, free, paid int) (skiptrace.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.balances[userID]
	b.Free += free
	b.Paid += paid
	m.balances[userID] = b
	return b, nil
}

func (m *Memory) Consume(_ context.Context, userID string) (skiptrace.CreditType, skiptrace.CreditBalance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balances[userID]
	switch {
	case b.Free > 0:
		b.Free--
		m.balances[userID] = b
		return skiptrace.CreditFree, b, nil
	case b.Paid > 0:
		b.Paid--
		m.balances[userID] = b
		return skiptrace.CreditPaid, b, nil
	default:
		return "", skiptrace.CreditBalance{}, sentinel.ErrInsufficient
	}
}

func (m *Memory) Rollback(_ context.Context, userID string, creditType skiptrace.CreditType) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	b := m.balances[userID]
	if creditType == skiptrace.CreditFree {
		b.Free++
	} else {
		b.Paid++
	}
	m.balances[userID] = b
	return nil
}

// --- Cache ---

func (m *Memory) Lookup(_ context.Context, addressKey, nameKey string) (*skiptrace.CacheRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[cacheKey(addressKey, nameKey)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	copied := *rec
	return &copied, nil
}

func (m *Memory) Insert(_ context.Context, rec *skiptrace.CacheRecord) (*skiptrace.CacheRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := cacheKey(rec.AddressKey, rec.NameKey)
	if existing, ok := m.records[key]; ok {
		copied := *existing
		return &copied, nil
	}

	m.nextID++
	stored := *rec
	stored.ID = m.nextID
	m.records[key] = &stored

	copied := stored
	return &copied, nil
}

func (m *Memory) Refresh(_ context.Context, rec *skiptrace.CacheRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for key, existing := range m.records {
		if existing.ID == rec.ID {
			updated := *rec
			m.records[key] = &updated
			return nil
		}
	}
	return sentinel.ErrNotFound
}

// --- Grants ---

func (m *Memory) Has(_ context.Context, userID string, cacheID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.grants[grantKey(userID, cacheID)]
	return ok, nil
}

func (m *Memory) Grant(_ context.Context, g skiptrace.AccessGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := grantKey(g.UserID, g.CacheID)
	if _, ok := m.grants[key]; ok {
		return nil
	}
	if g.GrantedAt.IsZero() {
		g.GrantedAt = time.Now()
	}
	m.grants[key] = g
	return nil
}
