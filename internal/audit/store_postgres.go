package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	txcontext "skiptrace/pkg/platform/tx"
)

// PostgresStore implements Store using the transactional outbox pattern.
// Events are written to the outbox table in the caller's transaction when one
// is in flight, so an audit entry never outlives a rolled-back lookup. The
// relay publishes outbox rows to Kafka in the background.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	_, err = s.execer(ctx).ExecContext(ctx, `
		INSERT INTO audit_outbox (event_type, payload, created_at)
		VALUES ($1, $2, $3)
	`, event.Type, payload, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}
