// Package gateway routes model calls to vendor backends through a
// static model table, normalizes results, and enforces per-order cost
// ceilings. Callers request a model identifier; which vendor services
// it is not their concern.
package gateway

import (
	"context"
	"fmt"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/retry"
)

// CostTracker is the slice of the store the gateway needs.
type CostTracker interface {
	GetOrder(ctx context.Context, id core.OrderID) (*core.Order, error)
	AddOrderCost(ctx context.Context, id core.OrderID, usd float64) (float64, error)
}

// Alerter receives operator alerts when an order's spend crosses the
// configured threshold.
type Alerter interface {
	Alert(ctx context.Context, key, message string, details map[string]any)
}

// Gateway implements core.Gateway over a set of vendor backends.
type Gateway struct {
	backends map[core.Vendor]core.ModelBackend
	costs    CostTracker
	retryCfg retry.Config
	logger   *logging.Logger

	maxPerOrder    float64
	alertThreshold float64
	alerter        Alerter
}

// Option configures the gateway.
type Option func(*Gateway)

// WithRetryConfig overrides the default retry policy.
func WithRetryConfig(cfg retry.Config) Option {
	return func(g *Gateway) { g.retryCfg = cfg }
}

// WithCostPolicy caps per-order spend at the lower of maxPerOrder and
// the tier ceiling, and alerts through alerter once spend reaches
// threshold times the effective ceiling.
func WithCostPolicy(maxPerOrder, threshold float64, alerter Alerter) Option {
	return func(g *Gateway) {
		g.maxPerOrder = maxPerOrder
		g.alertThreshold = threshold
		g.alerter = alerter
	}
}

// New creates a gateway over the given backends.
func New(costs CostTracker, logger *logging.Logger, backends []core.ModelBackend, opts ...Option) *Gateway {
	g := &Gateway{
		backends: make(map[core.Vendor]core.ModelBackend, len(backends)),
		costs:    costs,
		retryCfg: retry.DefaultConfig(),
		logger:   logger.WithComponent("gateway"),
	}
	for _, b := range backends {
		g.backends[b.Vendor()] = b
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Complete routes the request to the backend serving req.Model,
// retrying transient failures with backoff, and records the call's
// cost against the order. A call that would start past the order's
// tier ceiling is refused with a budget error.
func (g *Gateway) Complete(ctx context.Context, orderID core.OrderID, req core.ModelRequest) (*core.ModelResult, error) {
	vendor, ok := core.ModelVendors[req.Model]
	if !ok {
		return nil, core.ErrValidation("UNKNOWN_MODEL", fmt.Sprintf("no vendor serves model %q", req.Model))
	}
	backend, ok := g.backends[vendor]
	if !ok {
		return nil, core.ErrState("BACKEND_MISSING", fmt.Sprintf("vendor %s not configured", vendor))
	}

	order, err := g.costs.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	ceiling := order.Tier.CostCeilingUSD()
	if g.maxPerOrder > 0 && g.maxPerOrder < ceiling {
		ceiling = g.maxPerOrder
	}
	if order.CostUSD >= ceiling {
		return nil, core.ErrBudget(core.CodeCostCeiling,
			fmt.Sprintf("order spend %.2f at tier %s ceiling %.2f", order.CostUSD, order.Tier, ceiling)).
			WithDetail("order_id", string(orderID))
	}

	var result *core.ModelResult
	err = retry.Do(ctx, g.retryCfg, func(ctx context.Context) error {
		r, callErr := backend.Complete(ctx, req)
		if callErr != nil {
			return callErr
		}
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.CostUSD = Cost(req.Model, result.TokensIn, result.TokensOut)
	total, err := g.costs.AddOrderCost(ctx, orderID, result.CostUSD)
	if err != nil {
		return nil, err
	}

	if g.alerter != nil && g.alertThreshold > 0 && total >= g.alertThreshold*ceiling {
		g.alerter.Alert(ctx, "cost_threshold:"+string(orderID),
			fmt.Sprintf("order spend %.2f crossed %.0f%% of ceiling %.2f", total, g.alertThreshold*100, ceiling),
			map[string]any{"order_id": string(orderID), "total_usd": total, "ceiling_usd": ceiling})
	}

	g.logger.Debug("model call complete",
		"order_id", string(orderID),
		"model", req.Model,
		"vendor", string(vendor),
		"tokens_in", result.TokensIn,
		"tokens_out", result.TokensOut,
		"cost_usd", result.CostUSD,
		"order_total_usd", total)

	return result, nil
}
