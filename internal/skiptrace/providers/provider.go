// Package providers defines the adapter contract every skip-trace data source
// implements, plus the normalized failure taxonomy shared by all of them.
package providers

import (
	"context"
	"fmt"
	"net/http"

	"skiptrace/internal/skiptrace"
)

// Kind identifies a supported provider implementation. The set is closed:
// dispatch happens through a constructor table built at startup, not through
// runtime reflection.
type Kind string

const (
	KindBatchData  Kind = "batchdata"
	KindSkipEngine Kind = "skipengine"
)

// ParseKind validates a configured provider selector.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindBatchData, KindSkipEngine:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown provider kind %q", s)
	}
}

// Provider is the universal interface all skip-trace sources implement.
// Implementations are stateless except for connection configuration.
type Provider interface {
	// Name returns the provider identifier used in responses and logs.
	Name() string

	// PerformSkipTrace resolves owner contact data for the requested
	// addresses. Per-property failures are reported inside the response;
	// an error return means the provider as a whole failed.
	PerformSkipTrace(ctx context.Context, req skiptrace.Request) (*skiptrace.ProviderResponse, error)

	// ValidateConfig checks that the adapter has usable configuration.
	ValidateConfig() error

	// TestConnection verifies the upstream is reachable with the
	// configured credentials.
	TestConnection(ctx context.Context) error
}

// PartitionAddresses normalizes the requested addresses and splits them into
// sendable ones and per-address failure entries for those lacking locality
// information (no zip and no city+state pair). Skipped addresses are reported,
// not fatal.
func PartitionAddresses(addrs []skiptrace.Address) (valid []skiptrace.Address, skipped []skiptrace.PropertyResult) {
	for _, a := range addrs {
		n := a.Normalized()
		if !n.HasLocality() {
			skipped = append(skipped, skiptrace.PropertyResult{
				PropertyAddress: n.Line(),
				StatusCode:      http.StatusBadRequest,
				Success:         false,
				Errors:          []string{"address lacks locality: needs a zip, or city and state"},
			})
			continue
		}
		valid = append(valid, n)
	}
	return valid, skipped
}
