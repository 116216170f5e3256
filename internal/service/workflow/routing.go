package workflow

import (
	"github.com/motiongranted/draftengine/internal/core"
)

// phaseKind separates model-executing phases from phases that run
// deterministic pipelines or declare gates.
type phaseKind int

const (
	kindModel    phaseKind = iota // one gateway call produces the payload
	kindPipeline                  // citation or statute machinery, no prompt
	kindGate                      // declares a checkpoint and parks the order
)

// phaseSpec is the static routing record for one phase: which model
// serves it per tier, whether the bigger reasoning budget applies, and
// what order status the phase runs under.
type phaseSpec struct {
	Kind     phaseKind
	Gate     core.CheckpointType
	Status   core.OrderStatus
	Model    map[core.Tier]string
	Extended map[core.Tier]bool
}

// allTiers assigns one model to every tier.
func allTiers(model string) map[core.Tier]string {
	return map[core.Tier]string{
		core.TierA: model, core.TierB: model, core.TierC: model, core.TierD: model,
	}
}

// split assigns one model to tiers A/B and another to C/D.
func split(lower, upper string) map[core.Tier]string {
	return map[core.Tier]string{
		core.TierA: lower, core.TierB: lower, core.TierC: upper, core.TierD: upper,
	}
}

// upperTiers enables a flag for tiers C and D only.
func upperTiers() map[core.Tier]bool {
	return map[core.Tier]bool{core.TierC: true, core.TierD: true}
}

var phaseSpecs = map[core.Phase]phaseSpec{
	core.PhaseIntakeAnalysis: {
		Kind:   kindModel,
		Status: core.StatusIntakeReview,
		Model:  split(core.ModelGPTEfficient, core.ModelGPTReasoning),
	},
	core.PhaseDocumentSummaries: {
		Kind:   kindModel,
		Status: core.StatusInProduction,
		Model:  allTiers(core.ModelClaudeEfficient),
	},
	core.PhaseLegalResearch: {
		Kind:     kindModel,
		Status:   core.StatusInProduction,
		Model:    allTiers(core.ModelGPTReasoning),
		Extended: upperTiers(),
	},
	core.PhaseResearchVerification: {
		Kind:   kindPipeline,
		Status: core.StatusCitationReview,
	},
	core.PhaseOutline: {
		Kind:   kindModel,
		Status: core.StatusInProduction,
		Model:  split(core.ModelClaudeEfficient, core.ModelClaudeReasoning),
	},
	core.PhaseDraftSections: {
		Kind:     kindModel,
		Status:   core.StatusInProduction,
		Model:    allTiers(core.ModelClaudeReasoning),
		Extended: upperTiers(),
	},
	core.PhaseDraftAssembly: {
		Kind:   kindModel,
		Status: core.StatusInProduction,
		Model:  allTiers(core.ModelClaudeEfficient),
	},
	core.PhaseCitationCheck: {
		Kind:   kindPipeline,
		Status: core.StatusCitationReview,
	},
	core.PhaseGrading: {
		Kind:     kindModel,
		Status:   core.StatusGrading,
		Model:    allTiers(core.ModelGPTReasoning),
		Extended: map[core.Tier]bool{core.TierD: true},
	},
	core.PhaseClientReviewGate: {
		Kind:   kindGate,
		Gate:   core.CheckpointBlocking,
		Status: core.StatusClientReview,
	},
	core.PhaseRevision: {
		Kind:     kindModel,
		Status:   core.StatusRevisionInProgress,
		Model:    allTiers(core.ModelClaudeReasoning),
		Extended: upperTiers(),
	},
	core.PhaseStatuteRecheck: {
		Kind:   kindPipeline,
		Status: core.StatusCitationReview,
	},
	core.PhaseAssembly: {
		Kind:   kindModel,
		Status: core.StatusInProduction,
		Model:  allTiers(core.ModelClaudeEfficient),
	},
	core.PhaseMSJCompliance: {
		Kind:   kindModel,
		Status: core.StatusInProduction,
		Model:  allTiers(core.ModelGPTReasoning),
	},
}

// modelFor resolves the model serving a phase at a tier.
func (s phaseSpec) modelFor(tier core.Tier) string {
	return s.Model[tier]
}

// extendedFor reports whether the phase gets the larger reasoning
// budget at a tier.
func (s phaseSpec) extendedFor(tier core.Tier) bool {
	return s.Extended[tier]
}
