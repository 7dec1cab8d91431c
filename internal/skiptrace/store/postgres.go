package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"skiptrace/internal/skiptrace"
	"skiptrace/pkg/platform/sentinel"
)

// Postgres implements Ledger, Cache, and Grants over a single database.
type Postgres struct {
	db    *sql.DB
	clock func() time.Time
}

// NewPostgres constructs the Postgres-backed store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, clock: time.Now}
}

// WithClock overrides the wall clock, for tests.
func (s *Postgres) WithClock(clock func() time.Time) *Postgres {
	s.clock = clock
	return s
}

// --- Ledger ---

func (s *Postgres) Balance(ctx context.Context, userID string) (skiptrace.CreditBalance, error) {
	var b skiptrace.CreditBalance
	err := s.db.QueryRowContext(ctx,
		`SELECT free_credits, paid_credits FROM skiptrace_credits WHERE user_id = $1`,
		userID,
	).Scan(&b.Free, &b.Paid)
	if errors.Is(err, sql.ErrNoRows) {
		return skiptrace.CreditBalance{}, nil
	}
	if err != nil {
		return skiptrace.CreditBalance{}, fmt.Errorf("query credit balance: %w", err)
	}
	return b, nil
}

func (s *Postgres) Add(ctx context.Context, userID string, free, paid int) (skiptrace.CreditBalance, error) {
	var b skiptrace.CreditBalance
	query := `
		INSERT INTO skiptrace_credits (user_id, free_credits, paid_credits, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			free_credits = skiptrace_credits.free_credits + EXCLUDED.free_credits,
			paid_credits = skiptrace_credits.paid_credits + EXCLUDED.paid_credits,
			updated_at = EXCLUDED.updated_at
		RETURNING free_credits, paid_credits
	`
	err := s.db.QueryRowContext(ctx, query, userID, free, paid, s.clock()).Scan(&b.Free, &b.Paid)
	if err != nil {
		return skiptrace.CreditBalance{}, fmt.Errorf("add credits: %w", err)
	}
	return b, nil
}

// Consume spends one credit, free before paid. The decrement is a single
// conditional UPDATE, so concurrent consumers can never drive a counter
// below zero; whoever loses the race sees the already-decremented row.
func (s *Postgres) Consume(ctx context.Context, userID string) (skiptrace.CreditType, skiptrace.CreditBalance, error) {
	var (
		b    skiptrace.CreditBalance
		used string
	)
	err := s.db.QueryRowContext(ctx, `
		WITH prior AS (
			SELECT free_credits FROM skiptrace_credits WHERE user_id = $1 FOR UPDATE
		)
		UPDATE skiptrace_credits AS c SET
			free_credits = CASE WHEN c.free_credits > 0 THEN c.free_credits - 1 ELSE c.free_credits END,
			paid_credits = CASE WHEN c.free_credits > 0 THEN c.paid_credits ELSE c.paid_credits - 1 END,
			updated_at = $2
		FROM prior
		WHERE c.user_id = $1 AND (c.free_credits > 0 OR c.paid_credits > 0)
		RETURNING c.free_credits, c.paid_credits,
			CASE WHEN prior.free_credits > 0 THEN 'free' ELSE 'paid' END
	`, userID, s.clock()).Scan(&b.Free, &b.Paid, &used)
	if errors.Is(err, sql.ErrNoRows) {
		return "", skiptrace.CreditBalance{}, sentinel.ErrInsufficient
	}
	if err != nil {
		return "", skiptrace.CreditBalance{}, fmt.Errorf("consume credit: %w", err)
	}
	return skiptrace.CreditType(used), b, nil
}

func (s *Postgres) Rollback(ctx context.Context, userID string, creditType skiptrace.CreditType) error {
	column := "paid_credits"
	if creditType == skiptrace.CreditFree {
		column = "free_credits"
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE skiptrace_credits SET `+column+` = `+column+` + 1, updated_at = $2 WHERE user_id = $1`,
		userID, s.clock())
	if err != nil {
		return fmt.Errorf("rollback credit: %w", err)
	}
	return nil
}

// --- Cache ---

func (s *Postgres) Lookup(ctx context.Context, addressKey, nameKey string) (*skiptrace.CacheRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address_key, name_key, payload, phones, emails,
			has_dnc, has_litigator, successful, checked_at
		FROM skiptrace_cache
		WHERE address_key = $1 AND name_key = $2
	`, addressKey, nameKey)

	rec, err := scanCacheRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query cache record: %w", err)
	}
	return rec, nil
}

// Insert stores the record unless a concurrent writer beat us to the key
// pair; in that case the existing record is returned unchanged.
func (s *Postgres) Insert(ctx context.Context, rec *skiptrace.CacheRecord) (*skiptrace.CacheRecord, error) {
	phones, emails, err := marshalContacts(rec)
	if err != nil {
		return nil, err
	}

	var id int64
	insertErr := s.db.QueryRowContext(ctx, `
		INSERT INTO skiptrace_cache
			(address_key, name_key, payload, phones, emails, has_dnc, has_litigator, successful, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (address_key, name_key) DO NOTHING
		RETURNING id
	`, rec.AddressKey, rec.NameKey, rec.Payload, phones, emails,
		rec.HasDNC, rec.HasLitigator, rec.Successful, rec.CheckedAt).Scan(&id)

	if errors.Is(insertErr, sql.ErrNoRows) {
		// Lost the race; the first writer's record is authoritative.
		return s.Lookup(ctx, rec.AddressKey, rec.NameKey)
	}
	if insertErr != nil {
		return nil, fmt.Errorf("insert cache record: %w", insertErr)
	}

	inserted := *rec
	inserted.ID = id
	return &inserted, nil
}

func (s *Postgres) Refresh(ctx context.Context, rec *skiptrace.CacheRecord) error {
	phones, emails, err := marshalContacts(rec)
	if err != nil {
		return err
	}

	result, err := s.db.ExecContext(ctx, `
		UPDATE skiptrace_cache SET
			payload = $2, phones = $3, emails = $4,
			has_dnc = $5, has_litigator = $6, successful = $7, checked_at = $8
		WHERE id = $1
	`, rec.ID, rec.Payload, phones, emails, rec.HasDNC, rec.HasLitigator, rec.Successful, rec.CheckedAt)
	if err != nil {
		return fmt.Errorf("refresh cache record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("refresh cache record: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// --- Grants ---

func (s *Postgres) Has(ctx context.Context, userID string, cacheID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM skiptrace_access_grants WHERE user_id = $1 AND cache_id = $2
		)
	`, userID, cacheID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check access grant: %w", err)
	}
	return exists, nil
}

func (s *Postgres) Grant(ctx context.Context, g skiptrace.AccessGrant) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO skiptrace_access_grants
			(user_id, cache_id, lookup_id, credit_type, cost, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, cache_id) DO NOTHING
	`, g.UserID, g.CacheID, g.LookupID, string(g.CreditType), g.Cost, g.GrantedAt)
	if err != nil {
		return fmt.Errorf("record access grant: %w", err)
	}
	return nil
}

// --- scanning helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCacheRecord(row rowScanner) (*skiptrace.CacheRecord, error) {
	var (
		rec    skiptrace.CacheRecord
		phones []byte
		emails []byte
	)
	err := row.Scan(&rec.ID, &rec.AddressKey, &rec.NameKey, &rec.Payload,
		&phones, &emails, &rec.HasDNC, &rec.HasLitigator, &rec.Successful, &rec.CheckedAt)
	if err != nil {
		return nil, err
	}
	if len(phones) > 0 {
		if err := json.Unmarshal(phones, &rec.Phones); err != nil {
			return nil, fmt.Errorf("decode cached phones: %w", err)
		}
	}
	if len(emails) > 0 {
		if err := json.Unmarshal(emails, &rec.Emails); err != nil {
			return nil, fmt.Errorf("decode cached emails: %w", err)
		}
	}
	return &rec, nil
}

func marshalContacts(rec *skiptrace.CacheRecord) (phones, emails []byte, err error) {
	phones, err = json.Marshal(rec.Phones)
	if err != nil {
		return nil, nil, fmt.Errorf("encode cached phones: %w", err)
	}
	emails, err = json.Marshal(rec.Emails)
	if err != nil {
		return nil, nil, fmt.Errorf("encode cached emails: %w", err)
	}
	return phones, emails, nil
}
