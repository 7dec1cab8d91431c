// Package skiptrace defines the canonical shapes shared by the provider
// adapters, the matching engine, the orchestration service, and the
// persistence gateway.
package skiptrace

import (
	"strings"
	"time"
)

// OwnerKind distinguishes individuals from business entities.
type OwnerKind string

const (
	OwnerPerson   OwnerKind = "person"
	OwnerBusiness OwnerKind = "business"
)

// MatchType categorizes why a candidate was considered a match.
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchFuzzy    MatchType = "fuzzy_name"
	MatchCompany  MatchType = "company_name"
	MatchFallback MatchType = "fallback"
)

// CreditType records which entitlement paid for a lookup.
type CreditType string

const (
	CreditFree   CreditType = "free"
	CreditPaid   CreditType = "paid"
	CreditCached CreditType = "cached"
)

// Address identifies a property. Equality for caching is by Key().
type Address struct {
	Street   string `json:"street"`
	City     string `json:"city,omitempty"`
	State    string `json:"state,omitempty"`
	Zip      string `json:"zip,omitempty"`
	ParcelID string `json:"parcelId,omitempty"`
}

// Normalized returns a copy with fields trimmed and the state upper-cased,
// the form adapters send upstream.
func (a Address) Normalized() Address {
	return Address{
		Street:   strings.TrimSpace(a.Street),
		City:     strings.TrimSpace(a.City),
		State:    strings.ToUpper(strings.TrimSpace(a.State)),
		Zip:      strings.TrimSpace(a.Zip),
		ParcelID: strings.TrimSpace(a.ParcelID),
	}
}

// HasLocality reports whether the address carries enough locality information
// to be resolvable upstream: a zip, or both city and state.
func (a Address) HasLocality() bool {
	n := a.Normalized()
	if n.Zip != "" {
		return true
	}
	return n.City != "" && n.State != ""
}

// Key returns the normalized cache key form: lower-cased, whitespace-collapsed.
func (a Address) Key() string {
	n := a.Normalized()
	parts := []string{n.Street, n.City, n.State, n.Zip}
	joined := strings.Join(parts, " ")
	return strings.Join(strings.Fields(strings.ToLower(joined)), " ")
}

// Line renders the address as a single display line.
func (a Address) Line() string {
	n := a.Normalized()
	parts := make([]string, 0, 4)
	for _, p := range []string{n.Street, n.City, n.State, n.Zip} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// Phone is a single contact number with its compliance flags.
type Phone struct {
	Number    string `json:"number"`
	Type      string `json:"type,omitempty"`
	DNC       bool   `json:"dnc"`
	Litigator bool   `json:"litigator"`
}

// NormalizedNumber strips everything but digits; two phones are the same
// contact when their digit strings match.
func (p Phone) NormalizedNumber() string {
	var b strings.Builder
	for _, r := range p.Number {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// MatchResult is the matching engine's verdict for one candidate.
//
// Invariants: MatchExact implies Confidence >= 0.9; MatchFallback is only
// produced when no normalized-name overlap exists and carries Confidence 0.3.
type MatchResult struct {
	Confidence float64   `json:"confidence"`
	Type       MatchType `json:"matchType"`
}

// OwnerCandidate is one identity a provider returned for a property,
// scored against the requested owner name. Immutable once produced.
type OwnerCandidate struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Kind         OwnerKind   `json:"kind"`
	Age          int         `json:"age,omitempty"`
	Deceased     bool        `json:"deceased,omitempty"`
	Relationship string      `json:"relationship,omitempty"`
	Phones       []Phone     `json:"phones,omitempty"`
	Emails       []string    `json:"emails,omitempty"`
	Addresses    []Address   `json:"addresses,omitempty"`
	Match        MatchResult `json:"match"`
}

// PropertyResult is the per-property slice of a provider response.
type PropertyResult struct {
	PropertyAddress string           `json:"propertyAddress"`
	APN             string           `json:"apn,omitempty"`
	Owners          []OwnerCandidate `json:"owners"`
	StatusCode      int              `json:"statusCode"`
	Success         bool             `json:"success"`
	Errors          []string         `json:"errors,omitempty"`
}

// ProviderResponse is the canonical shape every adapter returns.
type ProviderResponse struct {
	Results      []PropertyResult `json:"results"`
	TotalResults int              `json:"totalResults"`
	Successful   int              `json:"successful"`
	Failed       int              `json:"failed"`
	Provider     string           `json:"provider"`
	IsAsync      bool             `json:"isAsync"`
}

// Tally recomputes the aggregate counters from the per-property results so
// they always partition Results.
func (r *ProviderResponse) Tally() {
	r.TotalResults = len(r.Results)
	r.Successful = 0
	r.Failed = 0
	for _, res := range r.Results {
		if res.Success {
			r.Successful++
		} else {
			r.Failed++
		}
	}
}

// HasSuccess reports whether at least one property resolved.
func (r *ProviderResponse) HasSuccess() bool {
	return r != nil && r.Successful > 0
}

// Options control what adapters request upstream.
type Options struct {
	IncludeBusinesses bool `json:"includeBusinesses"`
	IncludeDNC        bool `json:"includeDNC"`
	IncludeLitigators bool `json:"includeLitigators"`
	MaxResults        int  `json:"maxResults,omitempty"`
}

// Request is the canonical outbound provider request.
type Request struct {
	Addresses []Address `json:"addresses"`
	OwnerName string    `json:"ownerName,omitempty"`
	Options   Options   `json:"options"`
}

// LookupRequest is the inbound unit of work for the orchestration service.
type LookupRequest struct {
	UserID            string    `json:"userId"`
	OwnerName         string    `json:"ownerName"`
	InputAddress      Address   `json:"inputAddress"`
	PropertyAddresses []Address `json:"propertyAddresses"`
	Options           Options   `json:"options"`
}

// ContactData is the aggregated, deduplicated contact payload delivered to
// callers: most-confident candidates first, capped per contact type.
type ContactData struct {
	Phones       []Phone          `json:"phones"`
	Emails       []string         `json:"emails"`
	Owners       []OwnerCandidate `json:"owners,omitempty"`
	HasDNC       bool             `json:"hasDNC"`
	HasLitigator bool             `json:"hasLitigator"`
}

// LookupResult is what the orchestration service returns to callers.
type LookupResult struct {
	Success           bool         `json:"success"`
	LookupID          string       `json:"lookupId"`
	Result            *ContactData `json:"result,omitempty"`
	CreditUsed        CreditType   `json:"creditUsed"`
	RemainingCredits  int          `json:"remainingCredits"`
	UsedFallback      bool         `json:"usedFallback,omitempty"`
	APIResponseStatus string       `json:"apiResponseStatus"`
}

// CacheRecord is one cached successful lookup keyed by
// (normalized address, normalized owner name).
type CacheRecord struct {
	ID           int64     `json:"id"`
	AddressKey   string    `json:"addressKey"`
	NameKey      string    `json:"nameKey"`
	Payload      []byte    `json:"-"`
	Phones       []Phone   `json:"phones"`
	Emails       []string  `json:"emails"`
	HasDNC       bool      `json:"hasDNC"`
	HasLitigator bool      `json:"hasLitigator"`
	Successful   bool      `json:"successful"`
	CheckedAt    time.Time `json:"checkedAt"`
}

// AgeDays is the freshness counter: whole days since the last refresh.
func (r CacheRecord) AgeDays(now time.Time) int {
	if r.CheckedAt.IsZero() {
		return -1
	}
	return int(now.Sub(r.CheckedAt).Hours() / 24)
}

// Fresh reports whether the record is inside the freshness window.
func (r CacheRecord) Fresh(now time.Time, windowDays int) bool {
	age := r.AgeDays(now)
	return age >= 0 && age < windowDays
}

// AccessGrant links a user to a cache record they have paid for (or been
// granted for free). At most one grant per (user, cache record) carries a
// non-zero cost.
type AccessGrant struct {
	UserID     string     `json:"userId"`
	CacheID    int64      `json:"cacheId"`
	LookupID   string     `json:"lookupId"`
	CreditType CreditType `json:"creditType"`
	Cost       int        `json:"cost"`
	GrantedAt  time.Time  `json:"grantedAt"`
}

// CreditBalance is a user's consumable entitlements. Counters never go
// negative; decrements happen only through conditional ledger updates.
type CreditBalance struct {
	Free int `json:"free"`
	Paid int `json:"paid"`
}

// Total is the number of lookups the user can still pay for.
func (b CreditBalance) Total() int {
	return b.Free + b.Paid
}
