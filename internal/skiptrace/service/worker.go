package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"skiptrace/internal/skiptrace"
	dErrors "skiptrace/pkg/domain-errors"
)

// BatchItem pairs a request with its outcome. Order matches the input slice.
type BatchItem struct {
	Request skiptrace.LookupRequest
	Result  *skiptrace.LookupResult
	Err     error
}

// LookupMany runs independent lookups under a bounded worker pool. One lookup
// is the unit of retry; partial results inside a lookup are never retried
// individually. A failed item does not stop the batch.
func (s *Service) LookupMany(ctx context.Context, reqs []skiptrace.LookupRequest) []BatchItem {
	items := make([]BatchItem, len(reqs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	for i, req := range reqs {
		g.Go(func() error {
			items[i] = BatchItem{Request: req}
			items[i].Result, items[i].Err = s.lookupWithRetry(ctx, req)
			return nil
		})
	}
	_ = g.Wait()

	return items
}

// lookupWithRetry retries the whole lookup on transient failures. Terminal
// outcomes (bad request, insufficient credits) are never retried; burning
// another attempt cannot change them.
func (s *Service) lookupWithRetry(ctx context.Context, req skiptrace.LookupRequest) (*skiptrace.LookupResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(s.cfg.RetryDelay):
			}
		}

		result, err := s.Lookup(ctx, req)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !retryable(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

func retryable(err error) bool {
	switch dErrors.CodeOf(err) {
	case dErrors.CodeBadRequest, dErrors.CodeInsufficientCredits:
		return false
	default:
		return true
	}
}
