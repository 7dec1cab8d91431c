package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skiptrace/internal/skiptrace"
	"skiptrace/pkg/platform/sentinel"
)

func TestLedger(t *testing.T) {
	ctx := context.Background()

	t.Run("unknown user has zero balance", func(t *testing.T) {
		m := NewMemory()
		b, err := m.Balance(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, b.Total())
	})

	t.Run("free credits spend before paid", func(t *testing.T) {
		m := NewMemory()
		_, err := m.Add(ctx, "u1", 1, 2)
		require.NoError(t, err)

		used, b, err := m.Consume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, skiptrace.CreditFree, used)
		assert.Equal(t, skiptrace.CreditBalance{Free: 0, Paid: 2}, b)

		used, b, err = m.Consume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, skiptrace.CreditPaid, used)
		assert.Equal(t, skiptrace.CreditBalance{Free: 0, Paid: 1}, b)
	})

	t.Run("empty balance refuses consumption", func(t *testing.T) {
		m := NewMemory()
		_, _, err := m.Consume(ctx, "u1")
		assert.ErrorIs(t, err, sentinel.ErrInsufficient)
	})

	t.Run("concurrent consumers never overdraw", func(t *testing.T) {
		m := NewMemory()
		_, err := m.Add(ctx, "u1", 3, 2)
		require.NoError(t, err)

		var (
			wg       sync.WaitGroup
			mu       sync.Mutex
			consumed int
		)
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, _, err := m.Consume(ctx, "u1"); err == nil {
					mu.Lock()
					consumed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, 5, consumed)
		b, err := m.Balance(ctx, "u1")
		require.NoError(t, err)
		assert.Zero(t, b.Total())
	})
}

func TestCache(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	record := func() *skiptrace.CacheRecord {
		return &skiptrace.CacheRecord{
			AddressKey: "100 congress ave austin tx 78701",
			NameKey:    "john smith",
			Phones:     []skiptrace.Phone{{Number: "5125550100"}},
			Emails:     []string{"john@example.com"},
			Successful: true,
			CheckedAt:  now,
		}
	}

	t.Run("missing record", func(t *testing.T) {
		m := NewMemory()
		_, err := m.Lookup(ctx, "a", "n")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("insert then lookup", func(t *testing.T) {
		m := NewMemory()
		stored, err := m.Insert(ctx, record())
		require.NoError(t, err)
		assert.NotZero(t, stored.ID)

		got, err := m.Lookup(ctx, stored.AddressKey, stored.NameKey)
		require.NoError(t, err)
		assert.Equal(t, stored.ID, got.ID)
		assert.Equal(t, []string{"john@example.com"}, got.Emails)
	})

	t.Run("first writer wins", func(t *testing.T) {
		m := NewMemory()
		first, err := m.Insert(ctx, record())
		require.NoError(t, err)

		second := record()
		second.Emails = []string{"other@example.com"}
		got, err := m.Insert(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, []string{"john@example.com"}, got.Emails, "the loser's payload is discarded")
	})

	t.Run("refresh replaces payload in place", func(t *testing.T) {
		m := NewMemory()
		stored, err := m.Insert(ctx, record())
		require.NoError(t, err)

		stored.Emails = []string{"fresh@example.com"}
		stored.CheckedAt = now.Add(24 * time.Hour)
		require.NoError(t, m.Refresh(ctx, stored))

		got, err := m.Lookup(ctx, stored.AddressKey, stored.NameKey)
		require.NoError(t, err)
		assert.Equal(t, stored.ID, got.ID)
		assert.Equal(t, []string{"fresh@example.com"}, got.Emails)
	})

	t.Run("refresh of unknown record", func(t *testing.T) {
		m := NewMemory()
		rec := record()
		rec.ID = 42
		assert.ErrorIs(t, m.Refresh(ctx, rec), sentinel.ErrNotFound)
	})
}

func TestCacheFreshness(t *testing.T) {
	now := time.Now()
	rec := skiptrace.CacheRecord{CheckedAt: now.Add(-10 * 24 * time.Hour)}

	assert.Equal(t, 10, rec.AgeDays(now))
	assert.True(t, rec.Fresh(now, 30))
	assert.False(t, rec.Fresh(now, 10))
	assert.False(t, skiptrace.CacheRecord{}.Fresh(now, 30))
}

func TestGrants(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	has, err := m.Has(ctx, "u1", 7)
	require.NoError(t, err)
	assert.False(t, has)

	grant := skiptrace.AccessGrant{
		UserID:     "u1",
		CacheID:    7,
		LookupID:   "lk-1",
		CreditType: skiptrace.CreditPaid,
		Cost:       1,
		GrantedAt:  time.Now(),
	}
	require.NoError(t, m.Grant(ctx, grant))

	has, err = m.Has(ctx, "u1", 7)
	require.NoError(t, err)
	assert.True(t, has)

	// Granting again keeps the original; no double charge is recorded.
	dup := grant
	dup.Cost = 99
	require.NoError(t, m.Grant(ctx, dup))
	assert.Equal(t, 1, m.grants[grantKey("u1", 7)].Cost)
}
