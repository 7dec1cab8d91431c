package skipengine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"skiptrace/internal/skiptrace"
	"skiptrace/internal/skiptrace/providers"
)

// fakeClient replays one canned result per Trace call, in order.
type fakeClient struct {
	t       *testing.T
	results []*Result
	errs    []error
	queries []*Query
}

func (f *fakeClient) Trace(_ context.Context, q *Query) (*Result, error) {
	i := len(f.queries)
	f.queries = append(f.queries, q)
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	require.Less(f.t, i, len(f.results), "unexpected Trace call")
	return f.results[i], nil
}

func (f *fakeClient) Ping(context.Context) error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addrs(n int) []skiptrace.Address {
	out := make([]skiptrace.Address, 0, n)
	streets := []string{"100 Congress Ave", "200 Guadalupe St", "300 Lavaca St"}
	for i := 0; i < n; i++ {
		out = append(out, skiptrace.Address{Street: streets[i], City: "Austin", State: "TX", Zip: "78701"})
	}
	return out
}

func ownerResult(name string, phones []string, emails []string) *Result {
	ps := make([]Phone, 0, len(phones))
	for _, p := range phones {
		ps = append(ps, Phone{Number: p})
	}
	return &Result{
		Status: 200,
		Owners: []Owner{{ID: "o1", Name: name, EntityType: "individual", Phones: ps, Emails: emails}},
	}
}

func TestPerformSkipTraceEarlyStop(t *testing.T) {
	t.Run("stops once thresholds are met", func(t *testing.T) {
		client := &fakeClient{t: t, results: []*Result{
			ownerResult("John Smith", []string{"5125550100", "5125550101"}, []string{"john@example.com"}),
			ownerResult("John Smith", []string{"5125550102"}, nil),
		}}
		a := New(client, Config{APIKey: "key", BaseURL: "u", MinEmails: 1, MinPhones: 2}, testLogger())

		resp, err := a.PerformSkipTrace(context.Background(), skiptrace.Request{
			OwnerName: "John Smith",
			Addresses: addrs(3),
		})
		require.NoError(t, err)
		assert.Len(t, client.queries, 1, "thresholds met after the first property")
		assert.Equal(t, 1, resp.Successful)
	})

	t.Run("keeps going while thresholds unmet", func(t *testing.T) {
		client := &fakeClient{t: t, results: []*Result{
			ownerResult("John Smith", []string{"5125550100"}, nil),
			ownerResult("John Smith", []string{"5125550100"}, nil), // duplicate number
			ownerResult("John Smith", []string{"5125550101"}, []string{"john@example.com"}),
		}}
		a := New(client, Config{APIKey: "key", BaseURL: "u", MinEmails: 1, MinPhones: 2}, testLogger())

		_, err := a.PerformSkipTrace(context.Background(), skiptrace.Request{
			OwnerName: "John Smith",
			Addresses: addrs(3),
		})
		require.NoError(t, err)
		assert.Len(t, client.queries, 3, "duplicate phone must not count twice")
	})

	t.Run("fallback matches never satisfy thresholds", func(t *testing.T) {
		client := &fakeClient{t: t, results: []*Result{
			ownerResult("Maria Garcia", []string{"5125550100", "5125550101"}, []string{"m@example.com"}),
			ownerResult("John Smith", []string{"5125550102", "5125550103"}, []string{"john@example.com"}),
		}}
		a := New(client, Config{APIKey: "key", BaseURL: "u", MinEmails: 1, MinPhones: 2}, testLogger())

		_, err := a.PerformSkipTrace(context.Background(), skiptrace.Request{
			OwnerName: "John Smith",
			Addresses: addrs(2),
		})
		require.NoError(t, err)
		assert.Len(t, client.queries, 2)
	})
}

func TestPerformSkipTraceFailures(t *testing.T) {
	t.Run("authentication failure aborts the whole call", func(t *testing.T) {
		client := &fakeClient{t: t, results: []*Result{
			{Status: 401, Message: "bad key"},
		}}
		a := New(client, Config{APIKey: "key", BaseURL: "u"}, testLogger())

		_, err := a.PerformSkipTrace(context.Background(), skiptrace.Request{
			OwnerName: "John Smith",
			Addresses: addrs(3),
		})
		require.Error(t, err)
		assert.Equal(t, providers.ErrorAuthentication, providers.CategoryOf(err))
		assert.Len(t, client.queries, 1)
	})

	t.Run("server error on one property does not stop the rest", func(t *testing.T) {
		client := &fakeClient{t: t, results: []*Result{
			{Status: 503, Message: "upstream busy"},
			ownerResult("John Smith", []string{"5125550100"}, nil),
		}}
		a := New(client, Config{APIKey: "key", BaseURL: "u"}, testLogger())

		resp, err := a.PerformSkipTrace(context.Background(), skiptrace.Request{
			OwnerName: "John Smith",
			Addresses: addrs(2),
		})
		require.NoError(t, err)
		assert.Len(t, client.queries, 2)
		assert.Equal(t, 1, resp.Failed)
		assert.Equal(t, 1, resp.Successful)
	})

	t.Run("transport failure on one property is reported inline", func(t *testing.T) {
		client := &fakeClient{
			t:       t,
			errs:    []error{errors.New("connection reset")},
			results: []*Result{nil, ownerResult("John Smith", []string{"5125550100"}, nil)},
		}
		a := New(client, Config{APIKey: "key", BaseURL: "u"}, testLogger())

		resp, err := a.PerformSkipTrace(context.Background(), skiptrace.Request{
			OwnerName: "John Smith",
			Addresses: addrs(2),
		})
		require.NoError(t, err)
		assert.Equal(t, 1, resp.Failed)
		assert.Equal(t, 1, resp.Successful)
	})
}

func TestDefaults(t *testing.T) {
	a := New(&fakeClient{t: t}, Config{APIKey: "key", BaseURL: "u"}, testLogger())
	assert.Equal(t, 1, a.cfg.MinEmails)
	assert.Equal(t, 2, a.cfg.MinPhones)
	assert.NoError(t, a.ValidateConfig())
}
