// Package skipengine adapts the SkipEngine API to the canonical provider
// contract. SkipEngine only accepts one property per call and bills per
// request, so the adapter walks properties sequentially and stops as soon as
// the accumulated good-match contacts satisfy the configured thresholds.
package skipengine

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"skiptrace/internal/skiptrace"
	"skiptrace/internal/skiptrace/match"
	"skiptrace/internal/skiptrace/providers"
)

const providerName = "skipengine"

// Config holds connection configuration plus the early-stop thresholds.
// MinEmails/MinPhones are a cost/quality tradeoff; they are configuration,
// not constants, so operators can tune them.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MinEmails int
	MinPhones int
}

// Client is the raw transport boundary for SkipEngine.
type Client interface {
	Trace(ctx context.Context, q *Query) (*Result, error)
	Ping(ctx context.Context) error
}

// Query is SkipEngine's native single-property request.
type Query struct {
	Street            string `json:"street"`
	City              string `json:"city,omitempty"`
	State             string `json:"state,omitempty"`
	Zip               string `json:"zip,omitempty"`
	APN               string `json:"apn,omitempty"`
	OwnerName         string `json:"owner_name,omitempty"`
	IncludeBusinesses bool   `json:"include_businesses"`
	IncludeCompliance bool   `json:"include_compliance"`
}

// Result is SkipEngine's native single-property response.
type Result struct {
	Status  int     `json:"status"`
	Message string  `json:"message,omitempty"`
	APN     string  `json:"apn,omitempty"`
	Owners  []Owner `json:"owners"`
}

// Owner is one identity SkipEngine returned for the property.
type Owner struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	EntityType string   `json:"entity_type"` // "individual" or "business"
	Age        int      `json:"age,omitempty"`
	Deceased   bool     `json:"deceased,omitempty"`
	Role       string   `json:"role,omitempty"`
	Phones     []Phone  `json:"phones,omitempty"`
	Emails     []string `json:"emails,omitempty"`
}

// Phone is a SkipEngine phone entry.
type Phone struct {
	Number    string `json:"number"`
	LineType  string `json:"line_type,omitempty"`
	DNC       bool   `json:"dnc"`
	Litigator bool   `json:"litigator"`
}

// Adapter implements providers.Provider on top of the SkipEngine transport.
type Adapter struct {
	client Client
	cfg    Config
	log    *slog.Logger
}

// New builds a SkipEngine adapter.
func New(client Client, cfg Config, log *slog.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MinEmails == 0 {
		cfg.MinEmails = 1
	}
	if cfg.MinPhones == 0 {
		cfg.MinPhones = 2
	}
	return &Adapter{client: client, cfg: cfg, log: log}
}

func (a *Adapter) Name() string { return providerName }

// ValidateConfig checks the adapter has usable connection configuration.
func (a *Adapter) ValidateConfig() error {
	if a.client == nil {
		return errors.New("skipengine: transport client is required")
	}
	if a.cfg.APIKey == "" {
		return errors.New("skipengine: API key is required")
	}
	if a.cfg.BaseURL == "" {
		return errors.New("skipengine: base URL is required")
	}
	return nil
}

// TestConnection verifies the upstream is reachable.
func (a *Adapter) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	if err := a.client.Ping(ctx); err != nil {
		return providers.FromTransport(providerName, err)
	}
	return nil
}

// PerformSkipTrace queries properties one at a time, accumulating contacts
// from good matches, and stops early once it has at least MinEmails emails
// and MinPhones distinct phone numbers. Remaining properties are simply not
// queried; each upstream call costs money.
func (a *Adapter) PerformSkipTrace(ctx context.Context, req skiptrace.Request) (*skiptrace.ProviderResponse, error) {
	valid, skipped := providers.PartitionAddresses(req.Addresses)

	response := &skiptrace.ProviderResponse{Provider: providerName}
	response.Results = append(response.Results, skipped...)

	emails := make(map[string]struct{})
	phones := make(map[string]struct{})

	for _, addr := range valid {
		result, err := a.traceOne(ctx, addr, req)
		if err != nil {
			// Credential and quota problems are provider-wide; further
			// calls would fail the same way.
			category := providers.CategoryOf(err)
			if category == providers.ErrorAuthentication || category == providers.ErrorRateLimited {
				return nil, err
			}
			response.Results = append(response.Results, skiptrace.PropertyResult{
				PropertyAddress: addr.Line(),
				StatusCode:      statusOf(err),
				Success:         false,
				Errors:          []string{"provider call failed"},
			})
			continue
		}

		response.Results = append(response.Results, result)
		accumulateContacts(result, emails, phones)

		if len(emails) >= a.cfg.MinEmails && len(phones) >= a.cfg.MinPhones {
			break
		}
	}

	response.Tally()
	return response, nil
}

func (a *Adapter) traceOne(ctx context.Context, addr skiptrace.Address, req skiptrace.Request) (skiptrace.PropertyResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	result, err := a.client.Trace(callCtx, &Query{
		Street:            addr.Street,
		City:              addr.City,
		State:             addr.State,
		Zip:               addr.Zip,
		APN:               addr.ParcelID,
		OwnerName:         req.OwnerName,
		IncludeBusinesses: req.Options.IncludeBusinesses,
		IncludeCompliance: req.Options.IncludeDNC || req.Options.IncludeLitigators,
	})
	if err != nil {
		return skiptrace.PropertyResult{}, providers.FromTransport(providerName, err)
	}
	if result.Status < 200 || result.Status >= 300 {
		return skiptrace.PropertyResult{}, providers.FromStatus(providerName, result.Status, result.Message)
	}

	return a.mapResult(addr, result, req), nil
}

func (a *Adapter) mapResult(addr skiptrace.Address, result *Result, req skiptrace.Request) skiptrace.PropertyResult {
	candidates := make([]skiptrace.OwnerCandidate, 0, len(result.Owners))
	for _, o := range result.Owners {
		candidates = append(candidates, toCandidate(o))
	}

	matched := match.FindMatchesInProperty(req.OwnerName, candidates)
	if req.Options.MaxResults > 0 && len(matched) > req.Options.MaxResults {
		matched = matched[:req.Options.MaxResults]
	}

	pr := skiptrace.PropertyResult{
		PropertyAddress: addr.Line(),
		APN:             result.APN,
		Owners:          matched,
		StatusCode:      http.StatusOK,
		Success:         len(matched) > 0,
	}
	if !pr.Success {
		pr.Errors = []string{"no owners returned for property"}
	}
	return pr
}

func toCandidate(o Owner) skiptrace.OwnerCandidate {
	kind := skiptrace.OwnerPerson
	if strings.EqualFold(o.EntityType, "business") {
		kind = skiptrace.OwnerBusiness
	}

	phones := make([]skiptrace.Phone, 0, len(o.Phones))
	for _, p := range o.Phones {
		phones = append(phones, skiptrace.Phone{
			Number:    p.Number,
			Type:      p.LineType,
			DNC:       p.DNC,
			Litigator: p.Litigator,
		})
	}

	return skiptrace.OwnerCandidate{
		ID:           o.ID,
		Name:         o.Name,
		Kind:         kind,
		Age:          o.Age,
		Deceased:     o.Deceased,
		Relationship: o.Role,
		Phones:       phones,
		Emails:       o.Emails,
	}
}

// accumulateContacts counts distinct contacts contributed by good matches
// only; fallback candidates do not satisfy the early-stop thresholds.
func accumulateContacts(pr skiptrace.PropertyResult, emails, phones map[string]struct{}) {
	for _, owner := range pr.Owners {
		if !match.IsGood(owner) {
			continue
		}
		for _, e := range owner.Emails {
			emails[strings.ToLower(strings.TrimSpace(e))] = struct{}{}
		}
		for _, p := range owner.Phones {
			if key := p.NormalizedNumber(); key != "" {
				phones[key] = struct{}{}
			}
		}
	}
}

func statusOf(err error) int {
	var pe *providers.ProviderError
	if errors.As(err, &pe) && pe.StatusCode != 0 {
		return pe.StatusCode
	}
	return http.StatusBadGateway
}
