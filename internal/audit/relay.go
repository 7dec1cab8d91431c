package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

const defaultRelayBatch = 100

// Relay drains unpublished outbox rows to Kafka. It runs as a background
// worker; rows stay in the outbox until the produce is acknowledged, so a
// crash between insert and publish loses nothing.
type Relay struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	interval time.Duration
	batch    int
	log      *slog.Logger
}

// NewRelay constructs the outbox relay.
func NewRelay(db *sql.DB, client *kgo.Client, topic string, interval time.Duration, log *slog.Logger) *Relay {
	if interval == 0 {
		interval = 5 * time.Second
	}
	return &Relay{
		db:       db,
		client:   client,
		topic:    topic,
		interval: interval,
		batch:    defaultRelayBatch,
		log:      log,
	}
}

// Run polls the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drain(ctx); err != nil {
				r.log.Error("outbox drain failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id        int64
	eventType string
	payload   []byte
}

func (r *Relay) drain(ctx context.Context) error {
	for {
		published, err := r.drainBatch(ctx)
		if err != nil {
			return err
		}
		if published < r.batch {
			return nil
		}
	}
}

func (r *Relay) drainBatch(ctx context.Context) (int, error) {
	rows, err := r.fetchUnpublished(ctx)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(rows))
	for _, row := range rows {
		record := &kgo.Record{
			Topic: r.topic,
			Key:   []byte(row.eventType),
			Value: row.payload,
		}
		if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			// Stop at the first failure; rows stay unpublished and the
			// next tick retries from the same position.
			r.log.Warn("audit publish failed", "outbox_id", row.id, "error", err)
			break
		}
		published = append(published, row.id)
	}

	if len(published) == 0 {
		return 0, nil
	}
	if err := r.markPublished(ctx, published); err != nil {
		return 0, err
	}
	return len(published), nil
}

func (r *Relay) fetchUnpublished(ctx context.Context) ([]outboxRow, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_type, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY id
		LIMIT $1
	`, r.batch)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.eventType, &row.payload); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox rows: %w", err)
	}
	return out, nil
}

func (r *Relay) markPublished(ctx context.Context, ids []int64) error {
	// Build the placeholder list by hand; batches are small.
	args := make([]any, 0, len(ids)+1)
	args = append(args, time.Now())
	placeholders := ""
	for i, id := range ids {
		if i > 0 {
			placeholders += ","
		}
		placeholders += "$" + strconv.Itoa(i+2)
		args = append(args, id)
	}

	_, err := r.db.ExecContext(ctx,
		`UPDATE audit_outbox SET published_at = $1 WHERE id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
