package cmd

import (
	"github.com/motiongranted/draftengine/internal/adapters/state"
	"github.com/motiongranted/draftengine/internal/checkpoint"
	"github.com/motiongranted/draftengine/internal/citation"
	"github.com/motiongranted/draftengine/internal/config"
	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/gateway"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/notify"
	"github.com/motiongranted/draftengine/internal/service/workflow"
)

// engine bundles the wired subsystems a command needs.
type engine struct {
	cfg    *config.Config
	logger *logging.Logger

	store    *state.SQLiteStore
	chain    *citation.Chain
	queue    *notify.Queue
	manager  *checkpoint.Manager
	alerter  *checkpoint.ThrottledAlerter
	executor *workflow.Executor
}

// buildEngine opens the store and wires gateway, citation pipeline,
// checkpoints, notifications and the executor.
func buildEngine(cfg *config.Config, logger *logging.Logger) (*engine, error) {
	store, err := state.NewSQLiteStore(cfg.State.Path)
	if err != nil {
		return nil, err
	}

	var backends []core.ModelBackend
	if key := cfg.Models.OpenAI.APIKey; key != "" {
		if cfg.Models.OpenAI.BaseURL != "" {
			backends = append(backends, gateway.NewOpenAIBackendWithBaseURL(key, cfg.Models.OpenAI.BaseURL))
		} else {
			backends = append(backends, gateway.NewOpenAIBackend(key))
		}
	}
	if key := cfg.Models.Anthropic.APIKey; key != "" {
		b := gateway.NewAnthropicBackend(key)
		if cfg.Models.Anthropic.BaseURL != "" {
			b = b.WithBaseURL(cfg.Models.Anthropic.BaseURL)
		}
		backends = append(backends, b)
	}
	if len(backends) == 0 {
		logger.Warn("no model backends configured; model phases will fail")
	}

	var sink notify.Sink
	if cfg.Notify.WebhookURL != "" {
		sink = notify.NewWebhookSink(cfg.Notify.WebhookURL)
	} else {
		sink = notify.NewLogSink(logger.WithComponent("notify"))
	}
	queue := notify.NewQueue(sink, logger.WithComponent("notify"), cfg.Notify.QueueSize)
	alerter := checkpoint.NewThrottledAlerter(queue, logger)

	gw := gateway.New(store, logger, backends,
		gateway.WithCostPolicy(cfg.Costs.MaxPerOrder, cfg.Costs.AlertThreshold, alerter))

	// Lookup sources are optional collaborators; the chain degrades to
	// misses when none is configured and verification adapts.
	chain := citation.NewChain(nil, nil, nil, store, cfg.Lookup.MonthlyCeiling, logger)
	verifier := citation.NewVerifier(gw, store, chain, logger)
	cites := workflow.NewCitationService(store, verifier, logger)

	manager := checkpoint.NewManager(store, queue, logger)
	executor := workflow.NewExecutor(store, gw, cites, manager, logger)

	return &engine{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		chain:    chain,
		queue:    queue,
		manager:  manager,
		alerter:  alerter,
		executor: executor,
	}, nil
}

// Close releases the engine's resources.
func (e *engine) Close() {
	if err := e.store.Close(); err != nil {
		e.logger.Warn("closing store", "error", err)
	}
}
