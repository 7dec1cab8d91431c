// Package audit captures the trail of lookup activity: what was requested,
// what was charged, and where the data came from. Events are written to a
// transactional outbox and relayed to Kafka in the background.
package audit

import "time"

// Event types emitted by the lookup pipeline.
const (
	EventLookupRequested  = "lookup.requested"
	EventCacheHit         = "lookup.cache_hit"
	EventProviderFailed   = "lookup.provider_failed"
	EventFallbackUsed     = "lookup.fallback_used"
	EventLookupCompleted  = "lookup.completed"
	EventLookupFailed     = "lookup.failed"
	EventCreditConsumed   = "credit.consumed"
	EventCreditRollback   = "credit.rollback"
	EventGrantWriteFailed = "grant.write_failed"
)

// Event is one entry in the audit trail. Keep it transport-agnostic so
// stores and sinks can fan out.
type Event struct {
	Timestamp  time.Time         `json:"timestamp"`
	Type       string            `json:"type"`
	UserID     string            `json:"userId,omitempty"`
	LookupID   string            `json:"lookupId,omitempty"`
	Provider   string            `json:"provider,omitempty"`
	CreditType string            `json:"creditType,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
}
