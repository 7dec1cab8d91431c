//go:build integration

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"skiptrace/internal/skiptrace"
	"skiptrace/pkg/platform/sentinel"
	"skiptrace/pkg/testutil/containers"
)

func newPostgresStore(t *testing.T) *Postgres {
	t.Helper()
	pg := containers.NewPostgresContainer(t)
	require.NoError(t, RunMigrations(pg.DB))
	return NewPostgres(pg.DB)
}

func TestPostgresLedger(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	t.Run("zero balance for unknown user", func(t *testing.T) {
		b, err := s.Balance(ctx, "nobody")
		require.NoError(t, err)
		assert.Zero(t, b.Total())
	})

	t.Run("add and consume free before paid", func(t *testing.T) {
		_, err := s.Add(ctx, "u1", 1, 1)
		require.NoError(t, err)

		used, b, err := s.Consume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, skiptrace.CreditFree, used)
		assert.Equal(t, skiptrace.CreditBalance{Free: 0, Paid: 1}, b)

		used, b, err = s.Consume(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, skiptrace.CreditPaid, used)
		assert.Zero(t, b.Total())

		_, _, err = s.Consume(ctx, "u1")
		assert.ErrorIs(t, err, sentinel.ErrInsufficient)
	})

	t.Run("concurrent consumers never overdraw", func(t *testing.T) {
		_, err := s.Add(ctx, "u2", 2, 3)
		require.NoError(t, err)

		var g errgroup.Group
		results := make(chan error, 10)
		for i := 0; i < 10; i++ {
			g.Go(func() error {
				_, _, err := s.Consume(ctx, "u2")
				results <- err
				return nil
			})
		}
		require.NoError(t, g.Wait())
		close(results)

		consumed := 0
		for err := range results {
			if err == nil {
				consumed++
			} else {
				assert.ErrorIs(t, err, sentinel.ErrInsufficient)
			}
		}
		assert.Equal(t, 5, consumed)

		b, err := s.Balance(ctx, "u2")
		require.NoError(t, err)
		assert.Zero(t, b.Total())
	})
}

func TestPostgresCache(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := func(addressKey string) *skiptrace.CacheRecord {
		return &skiptrace.CacheRecord{
			AddressKey: addressKey,
			NameKey:    "john smith",
			Payload:    []byte(`{"results":[]}`),
			Phones:     []skiptrace.Phone{{Number: "5125550100", DNC: true}},
			Emails:     []string{"john@example.com"},
			HasDNC:     true,
			Successful: true,
			CheckedAt:  now,
		}
	}

	t.Run("lookup miss", func(t *testing.T) {
		_, err := s.Lookup(ctx, "nope", "nope")
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})

	t.Run("insert then lookup round trip", func(t *testing.T) {
		stored, err := s.Insert(ctx, record("addr-1"))
		require.NoError(t, err)
		assert.NotZero(t, stored.ID)

		got, err := s.Lookup(ctx, "addr-1", "john smith")
		require.NoError(t, err)
		assert.Equal(t, stored.ID, got.ID)
		assert.Equal(t, []string{"john@example.com"}, got.Emails)
		require.Len(t, got.Phones, 1)
		assert.True(t, got.Phones[0].DNC)
		assert.True(t, got.HasDNC)
	})

	t.Run("conflicting insert returns the first writer's record", func(t *testing.T) {
		first, err := s.Insert(ctx, record("addr-2"))
		require.NoError(t, err)

		second := record("addr-2")
		second.Emails = []string{"other@example.com"}
		got, err := s.Insert(ctx, second)
		require.NoError(t, err)
		assert.Equal(t, first.ID, got.ID)
		assert.Equal(t, []string{"john@example.com"}, got.Emails)
	})

	t.Run("refresh keeps identity", func(t *testing.T) {
		stored, err := s.Insert(ctx, record("addr-3"))
		require.NoError(t, err)

		stored.Emails = []string{"fresh@example.com"}
		stored.CheckedAt = now.Add(time.Hour)
		require.NoError(t, s.Refresh(ctx, stored))

		got, err := s.Lookup(ctx, "addr-3", "john smith")
		require.NoError(t, err)
		assert.Equal(t, stored.ID, got.ID)
		assert.Equal(t, []string{"fresh@example.com"}, got.Emails)
	})
}

func TestPostgresGrants(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)

	stored, err := s.Insert(ctx, &skiptrace.CacheRecord{
		AddressKey: "addr-g",
		NameKey:    "john smith",
		Successful: true,
		CheckedAt:  time.Now(),
	})
	require.NoError(t, err)

	has, err := s.Has(ctx, "u1", stored.ID)
	require.NoError(t, err)
	assert.False(t, has)

	grant := skiptrace.AccessGrant{
		UserID:     "u1",
		CacheID:    stored.ID,
		LookupID:   "lk-1",
		CreditType: skiptrace.CreditPaid,
		Cost:       1,
		GrantedAt:  time.Now(),
	}
	require.NoError(t, s.Grant(ctx, grant))
	require.NoError(t, s.Grant(ctx, grant), "duplicate grant is a no-op")

	has, err = s.Has(ctx, "u1", stored.ID)
	require.NoError(t, err)
	assert.True(t, has)
}
