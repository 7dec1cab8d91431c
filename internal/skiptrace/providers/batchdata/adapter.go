// Package batchdata adapts the BatchData skip-trace API to the canonical
// provider contract. BatchData accepts every property in a single call.
package batchdata

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"skiptrace/internal/skiptrace"
	"skiptrace/internal/skiptrace/match"
	"skiptrace/internal/skiptrace/providers"
)

const providerName = "batchdata"

// Config holds connection configuration for the BatchData API.
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// Client is the raw transport boundary. The HTTP implementation lives outside
// this package; tests inject fakes.
type Client interface {
	SkipTrace(ctx context.Context, req *APIRequest) (*APIResponse, error)
	Ping(ctx context.Context) error
}

// APIRequest is BatchData's native request shape.
type APIRequest struct {
	Requests []PropertyQuery `json:"requests"`
	Options  QueryOptions    `json:"options"`
}

// PropertyQuery is one property in a BatchData request.
type PropertyQuery struct {
	Street    string `json:"street"`
	City      string `json:"city,omitempty"`
	State     string `json:"state,omitempty"`
	Zip       string `json:"zip,omitempty"`
	APN       string `json:"apn,omitempty"`
	OwnerName string `json:"ownerName,omitempty"`
}

// QueryOptions mirrors the canonical lookup options.
type QueryOptions struct {
	IncludeBusinesses bool `json:"includeBusinesses"`
	IncludeDNC        bool `json:"includeDnc"`
	IncludeLitigators bool `json:"includeLitigators"`
	MaxResults        int  `json:"maxResults,omitempty"`
}

// APIResponse is BatchData's native response shape.
type APIResponse struct {
	Status  int             `json:"status"`
	Message string          `json:"message,omitempty"`
	Results []PropertyMatch `json:"results"`
}

// PropertyMatch is the per-property slice of a BatchData response.
type PropertyMatch struct {
	Address string   `json:"address"`
	APN     string   `json:"apn,omitempty"`
	Persons []Person `json:"persons"`
	Error   string   `json:"error,omitempty"`
}

// Person is one identity BatchData returned. Associated persons (registered
// agents, officers) reference their business through AssociatedTo.
type Person struct {
	ID           string          `json:"id"`
	FullName     string          `json:"fullName"`
	IsBusiness   bool            `json:"isBusiness"`
	Age          int             `json:"age,omitempty"`
	IsDeceased   bool            `json:"isDeceased,omitempty"`
	Relationship string          `json:"relationship,omitempty"`
	AssociatedTo string          `json:"associatedTo,omitempty"`
	Phones       []PhoneRecord   `json:"phones,omitempty"`
	Emails       []string        `json:"emails,omitempty"`
	Addresses    []AddressRecord `json:"addresses,omitempty"`
}

// PhoneRecord is a BatchData phone entry.
type PhoneRecord struct {
	Number      string `json:"number"`
	LineType    string `json:"lineType,omitempty"`
	IsDNC       bool   `json:"isDnc"`
	IsLitigator bool   `json:"isLitigator"`
}

// AddressRecord is a BatchData mailing address entry.
type AddressRecord struct {
	Street string `json:"street"`
	City   string `json:"city,omitempty"`
	State  string `json:"state,omitempty"`
	Zip    string `json:"zip,omitempty"`
}

// Adapter implements providers.Provider on top of the BatchData transport.
type Adapter struct {
	client Client
	cfg    Config
	log    *slog.Logger
}

// New builds a BatchData adapter.
func New(client Client, cfg Config, log *slog.Logger) *Adapter {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Adapter{client: client, cfg: cfg, log: log}
}

func (a *Adapter) Name() string { return providerName }

// ValidateConfig checks the adapter has usable connection configuration.
func (a *Adapter) ValidateConfig() error {
	if a.client == nil {
		return errors.New("batchdata: transport client is required")
	}
	if a.cfg.APIKey == "" {
		return errors.New("batchdata: API key is required")
	}
	if a.cfg.BaseURL == "" {
		return errors.New("batchdata: base URL is required")
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

// PerformSkipTrace sends all sendable addresses in one upstream call and maps
// the native payload into the canonical response, scoring every returned
// identity against the requested owner name.
func (a *Adapter) PerformSkipTrace(ctx context.Context, req skiptrace.Request) (*skiptrace.ProviderResponse, error) {
	valid, skipped := providers.PartitionAddresses(req.Addresses)

	response := &skiptrace.ProviderResponse{Provider: providerName}
	response.Results = append(response.Results, skipped...)

	if len(valid) == 0 {
		response.Tally()
		return response, nil
	}

	apiReq := a.buildRequest(valid, req)

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	apiResp, err := a.client.SkipTrace(callCtx, apiReq)
	if err != nil {
		return nil, providers.FromTransport(providerName, err)
	}
	if apiResp.Status < 200 || apiResp.Status >= 300 {
		return nil, providers.FromStatus(providerName, apiResp.Status, apiResp.Message)
	}

	for _, pm := range apiResp.Results {
		response.Results = append(response.Results, a.mapProperty(pm, req))
	}
	response.Tally()
	return response, nil
}

func (a *Adapter) buildRequest(addrs []skiptrace.Address, req skiptrace.Request) *APIRequest {
	queries := make([]PropertyQuery, 0, len(addrs))
	for _, addr := range addrs {
		queries = append(queries, PropertyQuery{
			Street:    addr.Street,
			City:      addr.City,
			State:     addr.State,
			Zip:       addr.Zip,
			APN:       addr.ParcelID,
			OwnerName: req.OwnerName,
		})
	}
	return &APIRequest{
		Requests: queries,
		Options: QueryOptions{
			IncludeBusinesses: req.Options.IncludeBusinesses,
			IncludeDNC:        req.Options.IncludeDNC,
			IncludeLitigators: req.Options.IncludeLitigators,
			MaxResults:        req.Options.MaxResults,
		},
	}
}

func (a *Adapter) mapProperty(pm PropertyMatch, req skiptrace.Request) skiptrace.PropertyResult {
	result := skiptrace.PropertyResult{
		PropertyAddress: pm.Address,
		APN:             pm.APN,
		StatusCode:      http.StatusOK,
	}
	if pm.Error != "" {
		result.Success = false
		result.Errors = []string{pm.Error}
		return result
	}

	owners := MapOwners(pm.Persons, req)
	result.Owners = owners
	result.Success = len(owners) > 0
	if !result.Success {
		result.Errors = []string{"no owners returned for property"}
	}
	return result
}

// MapOwners converts native persons into scored owner candidates. Associated
// persons are folded into their business's contact arrays rather than listed
// as candidates of their own.
func MapOwners(persons []Person, req skiptrace.Request) []skiptrace.OwnerCandidate {
	byBusiness := make(map[string][]skiptrace.OwnerCandidate)
	var candidates []skiptrace.OwnerCandidate

	for _, p := range persons {
		c := toCandidate(p)
		if p.AssociatedTo != "" {
			byBusiness[p.AssociatedTo] = append(byBusiness[p.AssociatedTo], c)
			continue
		}
		candidates = append(candidates, c)
	}

	for i, c := range candidates {
		if c.Kind != skiptrace.OwnerBusiness {
			continue
		}
		if assocs := byBusiness[c.ID]; len(assocs) > 0 {
			candidates[i] = match.MergeAssociatedContacts(c, assocs)
		}
	}

	var matched []skiptrace.OwnerCandidate
	if req.OwnerName == "" {
		// No target to score against: pass everything through at the
		// fallback floor so downstream ordering still works.
		matched = candidates
		for i := range matched {
			matched[i].Match = skiptrace.MatchResult{Confidence: 0.3, Type: skiptrace.MatchFallback}
		}
	} else {
		matched = match.FindMatchesInProperty(req.OwnerName, candidates)
	}
	if req.Options.MaxResults > 0 && len(matched) > req.Options.MaxResults {
		matched = matched[:req.Options.MaxResults]
	}
	return matched
}

func toCandidate(p Person) skiptrace.OwnerCandidate {
	kind := skiptrace.OwnerPerson
	if p.IsBusiness {
		kind = skiptrace.OwnerBusiness
	}

	phones := make([]skiptrace.Phone, 0, len(p.Phones))
	for _, ph := range p.Phones {
		phones = append(phones, skiptrace.Phone{
			Number:    ph.Number,
			Type:      ph.LineType,
			DNC:       ph.IsDNC,
			Litigator: ph.IsLitigator,
		})
	}

	addresses := make([]skiptrace.Address, 0, len(p.Addresses))
	for _, ad := range p.Addresses {
		addresses = append(addresses, skiptrace.Address{
			Street: ad.Street,
			City:   ad.City,
			State:  ad.State,
			Zip:    ad.Zip,
		})
	}

	return skiptrace.OwnerCandidate{
		ID:           p.ID,
		Name:         p.FullName,
		Kind:         kind,
		Age:          p.Age,
		Deceased:     p.IsDeceased,
		Relationship: p.Relationship,
		Phones:       phones,
		Emails:       p.Emails,
		Addresses:    addresses,
	}
}
