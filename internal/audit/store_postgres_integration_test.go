//go:build integration

package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skiptrace/internal/skiptrace/store"
	txcontext "skiptrace/pkg/platform/tx"
	"skiptrace/pkg/testutil/containers"
)

func countOutboxRows(t *testing.T, pg *containers.PostgresContainer) int {
	t.Helper()
	var n int
	err := pg.DB.QueryRow(`SELECT COUNT(*) FROM audit_outbox`).Scan(&n)
	require.NoError(t, err)
	return n
}

func TestPostgresStoreAppend(t *testing.T) {
	pg := containers.NewPostgresContainer(t)
	require.NoError(t, store.RunMigrations(pg.DB))

	auditStore := NewPostgresStore(pg.DB)
	ctx := context.Background()

	t.Run("appends outside a transaction", func(t *testing.T) {
		err := auditStore.Append(ctx, Event{Type: EventLookupRequested, UserID: "user-1"})
		require.NoError(t, err)
		assert.Equal(t, 1, countOutboxRows(t, pg))
	})

	t.Run("joins the caller transaction", func(t *testing.T) {
		tx, err := pg.DB.BeginTx(ctx, nil)
		require.NoError(t, err)

		txCtx := txcontext.WithTx(ctx, tx)
		require.NoError(t, auditStore.Append(txCtx, Event{Type: EventLookupCompleted, UserID: "user-1"}))
		require.NoError(t, tx.Commit())

		assert.Equal(t, 2, countOutboxRows(t, pg))
	})

	t.Run("rolled back transaction leaves no entry", func(t *testing.T) {
		tx, err := pg.DB.BeginTx(ctx, nil)
		require.NoError(t, err)

		txCtx := txcontext.WithTx(ctx, tx)
		require.NoError(t, auditStore.Append(txCtx, Event{Type: EventLookupFailed, UserID: "user-1"}))
		require.NoError(t, tx.Rollback())

		assert.Equal(t, 2, countOutboxRows(t, pg))
	})

	t.Run("unpublished rows are visible to the relay query", func(t *testing.T) {
		var n int
		err := pg.DB.QueryRow(`SELECT COUNT(*) FROM audit_outbox WHERE published_at IS NULL`).Scan(&n)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})
}
