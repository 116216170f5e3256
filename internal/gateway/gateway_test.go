package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/retry"
)

type fakeTracker struct {
	mu    sync.Mutex
	order *core.Order
}

func newFakeTracker(tier core.Tier, spent float64) *fakeTracker {
	return &fakeTracker{order: &core.Order{ID: "ord-1", Tier: tier, CostUSD: spent}}
}

func (f *fakeTracker) GetOrder(_ context.Context, _ core.OrderID) (*core.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := *f.order
	return &o, nil
}

func (f *fakeTracker) AddOrderCost(_ context.Context, _ core.OrderID, usd float64) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.order.CostUSD += usd
	return f.order.CostUSD, nil
}

type fakeBackend struct {
	vendor core.Vendor
	calls  int
	errs   []error
	text   string
}

func (f *fakeBackend) Vendor() core.Vendor { return f.vendor }

func (f *fakeBackend) Complete(_ context.Context, req core.ModelRequest) (*core.ModelResult, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &core.ModelResult{Text: f.text, TokensIn: 1000, TokensOut: 500, Model: req.Model}, nil
}

func fastRetry() Option {
	return WithRetryConfig(retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond})
}

func TestGateway_RoutesByModelTable(t *testing.T) {
	oa := &fakeBackend{vendor: core.VendorOpenAI, text: "openai"}
	an := &fakeBackend{vendor: core.VendorAnthropic, text: "anthropic"}
	g := New(newFakeTracker(core.TierB, 0), logging.NewNop(), []core.ModelBackend{oa, an}, fastRetry())

	res, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelClaudeReasoning, Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", res.Text)
	assert.Equal(t, 0, oa.calls)
	assert.Equal(t, 1, an.calls)
}

func TestGateway_UnknownModel(t *testing.T) {
	g := New(newFakeTracker(core.TierA, 0), logging.NewNop(), nil, fastRetry())
	_, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: "made-up"})
	require.Error(t, err)
	assert.False(t, core.IsRetryable(err))
}

func TestGateway_CostCeilingRefusal(t *testing.T) {
	oa := &fakeBackend{vendor: core.VendorOpenAI}
	// Tier A ceiling is 15 USD; the order already spent it.
	g := New(newFakeTracker(core.TierA, 15.0), logging.NewNop(), []core.ModelBackend{oa}, fastRetry())

	_, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelGPTEfficient, Prompt: "p"})
	require.Error(t, err)
	var de *core.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, core.ErrCatBudget, de.Category)
	assert.Equal(t, 0, oa.calls)
}

type fakeAlerter struct {
	mu      sync.Mutex
	keys    []string
	details []map[string]any
}

func (f *fakeAlerter) Alert(_ context.Context, key, _ string, details map[string]any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	f.details = append(f.details, details)
}

func TestGateway_ConfiguredCapUndercutsTierCeiling(t *testing.T) {
	oa := &fakeBackend{vendor: core.VendorOpenAI}
	// Tier D ceiling is 150 USD, but the operator capped orders at 10.
	g := New(newFakeTracker(core.TierD, 10.0), logging.NewNop(), []core.ModelBackend{oa},
		fastRetry(), WithCostPolicy(10.0, 0.8, nil))

	_, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelGPTReasoning, Prompt: "p"})
	require.Error(t, err)
	var de *core.DomainError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, core.ErrCatBudget, de.Category)
	assert.Equal(t, 0, oa.calls)
}

func TestGateway_AlertsAtCostThreshold(t *testing.T) {
	alerter := &fakeAlerter{}
	oa := &fakeBackend{vendor: core.VendorOpenAI}
	// Spend starts at 80% of the 10 USD cap, so the next call's cost
	// lands past the threshold.
	g := New(newFakeTracker(core.TierB, 8.0), logging.NewNop(), []core.ModelBackend{oa},
		fastRetry(), WithCostPolicy(10.0, 0.8, alerter))

	_, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelGPTReasoning, Prompt: "p"})
	require.NoError(t, err)
	require.Len(t, alerter.keys, 1)
	assert.Equal(t, "cost_threshold:ord-1", alerter.keys[0])
	assert.Equal(t, "ord-1", alerter.details[0]["order_id"])
}

func TestGateway_NoAlertBelowThreshold(t *testing.T) {
	alerter := &fakeAlerter{}
	oa := &fakeBackend{vendor: core.VendorOpenAI}
	g := New(newFakeTracker(core.TierB, 0), logging.NewNop(), []core.ModelBackend{oa},
		fastRetry(), WithCostPolicy(10.0, 0.8, alerter))

	_, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelGPTReasoning, Prompt: "p"})
	require.NoError(t, err)
	assert.Empty(t, alerter.keys)
}

func TestGateway_RetriesTransient(t *testing.T) {
	oa := &fakeBackend{
		vendor: core.VendorOpenAI,
		errs:   []error{core.ErrRateLimit("429"), core.ErrTimeout("slow")},
		text:   "third time lucky",
	}
	g := New(newFakeTracker(core.TierB, 0), logging.NewNop(), []core.ModelBackend{oa}, fastRetry())

	res, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelGPTReasoning, Prompt: "p"})
	require.NoError(t, err)
	assert.Equal(t, 3, oa.calls)
	assert.Equal(t, "third time lucky", res.Text)
}

func TestGateway_DoesNotRetryValidation(t *testing.T) {
	oa := &fakeBackend{
		vendor: core.VendorOpenAI,
		errs:   []error{core.ErrValidation("UPSTREAM_4XX", "bad request")},
	}
	g := New(newFakeTracker(core.TierB, 0), logging.NewNop(), []core.ModelBackend{oa}, fastRetry())

	_, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelGPTReasoning, Prompt: "p"})
	require.Error(t, err)
	assert.Equal(t, 1, oa.calls)
}

func TestGateway_RecordsCost(t *testing.T) {
	tracker := newFakeTracker(core.TierB, 0)
	oa := &fakeBackend{vendor: core.VendorOpenAI}
	g := New(tracker, logging.NewNop(), []core.ModelBackend{oa}, fastRetry())

	res, err := g.Complete(context.Background(), "ord-1", core.ModelRequest{Model: core.ModelGPTReasoning, Prompt: "p"})
	require.NoError(t, err)
	want := Cost(core.ModelGPTReasoning, 1000, 500)
	assert.InDelta(t, want, res.CostUSD, 1e-9)
	assert.InDelta(t, want, tracker.order.CostUSD, 1e-9)
}

func TestAnthropicBackend_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		assert.NotEmpty(t, r.Header.Get("x-api-key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content": [{"type": "text", "text": "the holding stands"}],
			"usage": {"input_tokens": 42, "output_tokens": 7}
		}`))
	}))
	defer srv.Close()

	b := NewAnthropicBackend("test-key").WithBaseURL(srv.URL)
	res, err := b.Complete(context.Background(), core.ModelRequest{
		Model:  core.ModelClaudeReasoning,
		Prompt: "verify this citation",
	})
	require.NoError(t, err)
	assert.Equal(t, "the holding stands", res.Text)
	assert.Equal(t, 42, res.TokensIn)
	assert.Equal(t, 7, res.TokensOut)
}

func TestAnthropicBackend_RateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewAnthropicBackend("test-key").WithBaseURL(srv.URL)
	_, err := b.Complete(context.Background(), core.ModelRequest{Model: core.ModelClaudeEfficient, Prompt: "p"})
	require.Error(t, err)
	assert.True(t, core.IsRetryable(err))
}

func TestCost_KnownAndUnknownModels(t *testing.T) {
	assert.InDelta(t, 0.025, Cost(core.ModelGPTReasoning, 1000, 500), 1e-9)
	// Unknown models fall back to the most expensive rate.
	assert.Greater(t, Cost("mystery", 1000, 500), Cost(core.ModelGPTEfficient, 1000, 500))
}
