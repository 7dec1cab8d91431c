// Package service orchestrates a skip-trace lookup end to end: credit check,
// cache consultation, provider dispatch with fallback, credit consumption,
// cache write-back, and contact delivery. Billing and delivery are bound
// together; a credit is only spent once a deliverable payload is in hand.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"skiptrace/internal/audit"
	"skiptrace/internal/skiptrace"
	"skiptrace/internal/skiptrace/match"
	"skiptrace/internal/skiptrace/metrics"
	"skiptrace/internal/skiptrace/providers"
	"skiptrace/internal/skiptrace/registry"
	"skiptrace/internal/skiptrace/store"
	dErrors "skiptrace/pkg/domain-errors"
	"skiptrace/pkg/platform/sentinel"
)

// Config carries the orchestration knobs.
type Config struct {
	// FreshnessWindowDays bounds how old a cache record may be and still be
	// served without a provider call.
	FreshnessWindowDays int

	// MaxPhones and MaxEmails cap the delivered contact lists.
	MaxPhones int
	MaxEmails int

	// RetryCount and RetryDelay govern whole-lookup retries in LookupMany.
	RetryCount int
	RetryDelay time.Duration

	// Concurrency bounds the LookupMany worker pool.
	Concurrency int
}

func (c Config) withDefaults() Config {
	if c.FreshnessWindowDays == 0 {
		c.FreshnessWindowDays = 90
	}
	if c.MaxPhones == 0 {
		c.MaxPhones = 5
	}
	if c.MaxEmails == 0 {
		c.MaxEmails = 5
	}
	if c.Concurrency == 0 {
		c.Concurrency = 4
	}
	return c
}

// Service runs the lookup state machine.
type Service struct {
	ledger  store.Ledger
	cache   store.Cache
	grants  store.Grants
	reg     *registry.Registry
	audit   *audit.Publisher
	metrics *metrics.Metrics
	log     *slog.Logger
	cfg     Config
	clock   func() time.Time
	newID   func() string
	tracer  trace.Tracer
}

// New wires the orchestration service.
func New(ledger store.Ledger, cache store.Cache, grants store.Grants, reg *registry.Registry,
	publisher *audit.Publisher, m *metrics.Metrics, cfg Config, log *slog.Logger) *Service {
	return &Service{
		ledger:  ledger,
		cache:   cache,
		grants:  grants,
		reg:     reg,
		audit:   publisher,
		metrics: m,
		log:     log,
		cfg:     cfg.withDefaults(),
		clock:   time.Now,
		newID:   uuid.NewString,
		tracer:  otel.Tracer("skiptrace/service"),
	}
}

// WithClock overrides the wall clock, for tests.
func (s *Service) WithClock(clock func() time.Time) *Service {
	s.clock = clock
	return s
}

// Lookup executes one skip-trace request end to end.
func (s *Service) Lookup(ctx context.Context, req skiptrace.LookupRequest) (*skiptrace.LookupResult, error) {
	start := s.clock()
	ctx, span := s.tracer.Start(ctx, "skiptrace.lookup")
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}

	lookupID := s.newID()
	span.SetAttributes(attribute.String("lookup.id", lookupID))

	addrKey := primaryAddress(req).Key()
	nameKey := match.NormalizeName(req.OwnerName)

	s.emit(ctx, audit.Event{
		Type:     audit.EventLookupRequested,
		UserID:   req.UserID,
		LookupID: lookupID,
		Detail:   map[string]string{"addresses": fmt.Sprint(len(req.PropertyAddresses))},
	})

	// CreditCheck. A user with no credits at all is turned away before any
	// other state is reached.
	balance, err := s.ledger.Balance(ctx, req.UserID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "credit balance unavailable")
	}
	if balance.Total() == 0 {
		s.emit(ctx, audit.Event{Type: audit.EventLookupFailed, UserID: req.UserID, LookupID: lookupID,
			Detail: map[string]string{"reason": "insufficient_credits"}})
		return nil, dErrors.New(dErrors.CodeInsufficientCredits, "insufficient credits")
	}

	now := s.clock()
	cached, err := s.freshCacheRecord(ctx, addrKey, nameKey, now)
	if err != nil {
		return nil, err
	}

	// UserCacheLookup: a prior grant means the user already paid for this
	// payload; serve it again without touching the ledger.
	if cached != nil {
		granted, err := s.grants.Has(ctx, req.UserID, cached.ID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "grant check failed")
		}
		if granted {
			s.metrics.ObserveCacheHit("user")
			s.emit(ctx, audit.Event{Type: audit.EventCacheHit, UserID: req.UserID, LookupID: lookupID,
				Detail: map[string]string{"scope": "user"}})
			s.metrics.ObserveLookup(s.clock().Sub(start))
			return deliverFromCache(lookupID, cached, skiptrace.CreditCached, balance.Total()), nil
		}
	}

	// GlobalCacheLookup: someone else paid for this payload; charge this
	// user before granting them access to it.
	if cached != nil {
		s.metrics.ObserveCacheHit("global")
		s.emit(ctx, audit.Event{Type: audit.EventCacheHit, UserID: req.UserID, LookupID: lookupID,
			Detail: map[string]string{"scope": "global"}})

		used, remaining, err := s.consume(ctx, req.UserID, lookupID)
		if err != nil {
			return nil, err
		}
		s.grant(ctx, req.UserID, lookupID, cached.ID, used)
		s.metrics.ObserveLookup(s.clock().Sub(start))
		return deliverFromCache(lookupID, cached, used, remaining.Total()), nil
	}

	s.metrics.CacheMisses.Inc()

	// ProviderAttempt.
	resp, usedFallback, err := s.attemptProviders(ctx, req, lookupID)
	if err != nil {
		s.emit(ctx, audit.Event{Type: audit.EventLookupFailed, UserID: req.UserID, LookupID: lookupID,
			Detail: map[string]string{"reason": "providers_unavailable"}})
		return nil, err
	}

	contact := buildContactData(resp, s.cfg.MaxPhones, s.cfg.MaxEmails)

	// ConsumeCredit. A ledger failure here aborts with nothing cached and
	// nothing granted.
	used, remaining, err := s.consume(ctx, req.UserID, lookupID)
	if err != nil {
		return nil, err
	}

	// CacheAndGrant.
	rec, err := s.persist(ctx, addrKey, nameKey, resp, contact, now)
	if err != nil {
		s.rollback(ctx, req.UserID, lookupID, used)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cache write failed")
	}
	s.grant(ctx, req.UserID, lookupID, rec.ID, used)

	// Deliver.
	s.emit(ctx, audit.Event{Type: audit.EventLookupCompleted, UserID: req.UserID, LookupID: lookupID,
		CreditType: string(used)})
	s.metrics.ObserveLookup(s.clock().Sub(start))

	return &skiptrace.LookupResult{
		Success:           true,
		LookupID:          lookupID,
		Result:            contact,
		CreditUsed:        used,
		RemainingCredits:  remaining.Total(),
		UsedFallback:      usedFallback,
		APIResponseStatus: "success",
	}, nil
}

// Credits reports the user's current balance.
func (s *Service) Credits(ctx context.Context, userID string) (skiptrace.CreditBalance, error) {
	b, err := s.ledger.Balance(ctx, userID)
	if err != nil {
		return skiptrace.CreditBalance{}, dErrors.Wrap(err, dErrors.CodeInternal, "credit balance unavailable")
	}
	return b, nil
}

func validate(req skiptrace.LookupRequest) error {
	if req.UserID == "" {
		return dErrors.New(dErrors.CodeBadRequest, "userId is required")
	}
	if req.OwnerName == "" {
		return dErrors.New(dErrors.CodeBadRequest, "ownerName is required")
	}
	if len(req.PropertyAddresses) == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "at least one property address is required")
	}
	return nil
}

// primaryAddress is the cache identity for the lookup: the caller's input
// address when present, otherwise the first candidate property.
func primaryAddress(req skiptrace.LookupRequest) skiptrace.Address {
	if req.InputAddress.Street != "" {
		return req.InputAddress
	}
	return req.PropertyAddresses[0]
}

// freshCacheRecord returns the cache record for the key pair when it exists,
// was successful, and is inside the freshness window; nil otherwise. A stale
// record is remembered for Refresh via its ID but not served.
func (s *Service) freshCacheRecord(ctx context.Context, addrKey, nameKey string, now time.Time) (*skiptrace.CacheRecord, error) {
	rec, err := s.cache.Lookup(ctx, addrKey, nameKey)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cache lookup failed")
	}
	if !rec.Successful || !rec.Fresh(now, s.cfg.FreshnessWindowDays) {
		return nil, nil
	}
	return rec, nil
}

// attemptProviders tries the primary adapter and, on definitive failure, the
// fallback. The sequence is strictly sequential; a fallback only fires after
// the primary's failure has been observed.
func (s *Service) attemptProviders(ctx context.Context, req skiptrace.LookupRequest, lookupID string) (*skiptrace.ProviderResponse, bool, error) {
	outbound := skiptrace.Request{
		Addresses: req.PropertyAddresses,
		OwnerName: req.OwnerName,
		Options:   req.Options,
	}

	primary, err := s.reg.Primary()
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "primary provider unavailable")
	}

	resp, primaryErr := s.callProvider(ctx, primary, outbound)
	if primaryErr == nil && resp.HasSuccess() {
		return resp, false, nil
	}
	s.recordProviderFailure(ctx, req.UserID, lookupID, primary.Name(), primaryErr)

	if !s.reg.HasFallback() {
		return nil, false, dErrors.New(dErrors.CodeUnavailable, "service temporarily unavailable")
	}

	fallback, err := s.reg.Fallback()
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "fallback provider unavailable")
	}

	resp, fallbackErr := s.callProvider(ctx, fallback, outbound)
	if fallbackErr == nil && resp.HasSuccess() {
		s.metrics.FallbackUsed.Inc()
		s.emit(ctx, audit.Event{Type: audit.EventFallbackUsed, UserID: req.UserID, LookupID: lookupID,
			Provider: fallback.Name()})
		return resp, true, nil
	}
	s.recordProviderFailure(ctx, req.UserID, lookupID, fallback.Name(), fallbackErr)

	return nil, false, dErrors.New(dErrors.CodeUnavailable, "service temporarily unavailable")
}

func (s *Service) callProvider(ctx context.Context, p providers.Provider, req skiptrace.Request) (*skiptrace.ProviderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "skiptrace.provider."+p.Name())
	defer span.End()

	resp, err := p.PerformSkipTrace(ctx, req)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("provider.successful", resp.Successful),
		attribute.Int("provider.failed", resp.Failed),
	)
	return resp, nil
}

func (s *Service) recordProviderFailure(ctx context.Context, userID, lookupID, provider string, err error) {
	category := string(providers.ErrorUnknown)
	if err != nil {
		category = string(providers.CategoryOf(err))
	}
	s.metrics.ObserveProviderFailure(provider, category)
	s.log.Warn("provider attempt failed",
		"provider", provider, "category", category, "lookup_id", lookupID, "error", err)
	s.emit(ctx, audit.Event{Type: audit.EventProviderFailed, UserID: userID, LookupID: lookupID,
		Provider: provider, Detail: map[string]string{"category": category}})
}

func (s *Service) consume(ctx context.Context, userID, lookupID string) (skiptrace.CreditType, skiptrace.CreditBalance, error) {
	used, remaining, err := s.ledger.Consume(ctx, userID)
	if errors.Is(err, sentinel.ErrInsufficient) {
		return "", skiptrace.CreditBalance{}, dErrors.New(dErrors.CodeInsufficientCredits, "insufficient credits")
	}
	if err != nil {
		return "", skiptrace.CreditBalance{}, dErrors.Wrap(err, dErrors.CodeInternal, "credit consumption failed")
	}
	s.metrics.ObserveCreditConsumed(string(used))
	s.emit(ctx, audit.Event{Type: audit.EventCreditConsumed, UserID: userID, LookupID: lookupID,
		CreditType: string(used)})
	return used, remaining, nil
}

func (s *Service) rollback(ctx context.Context, userID, lookupID string, used skiptrace.CreditType) {
	if err := s.ledger.Rollback(ctx, userID, used); err != nil {
		s.log.Error("credit rollback failed", "user_id", userID, "lookup_id", lookupID, "error", err)
		return
	}
	s.emit(ctx, audit.Event{Type: audit.EventCreditRollback, UserID: userID, LookupID: lookupID,
		CreditType: string(used)})
}

// persist writes the provider payload to the shared cache. A concurrent
// duplicate insert resolves to the first writer's record.
func (s *Service) persist(ctx context.Context, addrKey, nameKey string, resp *skiptrace.ProviderResponse,
	contact *skiptrace.ContactData, now time.Time) (*skiptrace.CacheRecord, error) {

	payload, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("encode provider payload: %w", err)
	}

	rec := &skiptrace.CacheRecord{
		AddressKey:   addrKey,
		NameKey:      nameKey,
		Payload:      payload,
		Phones:       contact.Phones,
		Emails:       contact.Emails,
		HasDNC:       contact.HasDNC,
		HasLitigator: contact.HasLitigator,
		Successful:   true,
		CheckedAt:    now,
	}

	// A stale or unsuccessful record for this key may already exist;
	// refresh it in place so existing grants keep pointing at it.
	existing, err := s.cache.Lookup(ctx, addrKey, nameKey)
	if err == nil {
		rec.ID = existing.ID
		if err := s.cache.Refresh(ctx, rec); err != nil {
			return nil, err
		}
		return rec, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, err
	}

	return s.cache.Insert(ctx, rec)
}

func (s *Service) grant(ctx context.Context, userID, lookupID string, cacheID int64, used skiptrace.CreditType) {
	g := skiptrace.AccessGrant{
		UserID:     userID,
		CacheID:    cacheID,
		LookupID:   lookupID,
		CreditType: used,
		Cost:       1,
		GrantedAt:  s.clock(),
	}
	if err := s.grants.Grant(ctx, g); err != nil {
		// Access bookkeeping is best-effort; the result has already been
		// paid for and is about to be delivered.
		s.log.Error("access grant write failed", "user_id", userID, "cache_id", cacheID, "error", err)
		s.emit(ctx, audit.Event{Type: audit.EventGrantWriteFailed, UserID: userID, LookupID: lookupID})
	}
}

func (s *Service) emit(ctx context.Context, event audit.Event) {
	if err := s.audit.Emit(ctx, event); err != nil {
		s.log.Warn("audit emit failed", "event", event.Type, "error", err)
	}
}

func deliverFromCache(lookupID string, rec *skiptrace.CacheRecord, used skiptrace.CreditType, remaining int) *skiptrace.LookupResult {
	return &skiptrace.LookupResult{
		Success:  true,
		LookupID: lookupID,
		Result: &skiptrace.ContactData{
			Phones:       rec.Phones,
			Emails:       rec.Emails,
			HasDNC:       rec.HasDNC,
			HasLitigator: rec.HasLitigator,
		},
		CreditUsed:        used,
		RemainingCredits:  remaining,
		APIResponseStatus: "success",
	}
}

// buildContactData aggregates owner candidates across all successful
// properties into one deduplicated contact payload, most confident first.
// Compliance flags are computed over the phones actually delivered.
func buildContactData(resp *skiptrace.ProviderResponse, maxPhones, maxEmails int) *skiptrace.ContactData {
	var owners []skiptrace.OwnerCandidate
	for _, pr := range resp.Results {
		if pr.Success {
			owners = append(owners, pr.Owners...)
		}
	}
	match.SortByConfidence(owners)

	var (
		phones []skiptrace.Phone
		emails []string
	)
	for _, o := range owners {
		phones = append(phones, o.Phones...)
		emails = append(emails, o.Emails...)
	}
	phones = match.DedupePhones(phones)
	emails = match.DedupeEmails(emails)

	if len(phones) > maxPhones {
		phones = phones[:maxPhones]
	}
	if len(emails) > maxEmails {
		emails = emails[:maxEmails]
	}

	contact := &skiptrace.ContactData{
		Phones: phones,
		Emails: emails,
		Owners: owners,
	}
	for _, p := range phones {
		if p.DNC {
			contact.HasDNC = true
		}
		if p.Litigator {
			contact.HasLitigator = true
		}
	}
	return contact
}
