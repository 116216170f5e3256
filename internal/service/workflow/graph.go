// Package workflow drives an order through the phase graph: one model
// execution per phase, a durable transition after every phase, human
// gates, and the bounded revision loop.
package workflow

import (
	"fmt"

	"github.com/motiongranted/draftengine/internal/core"
)

// Condition selects an outgoing edge from a phase. Every phase has a
// default edge; conditional edges take precedence when their condition
// holds.
type Condition string

const (
	CondDefault        Condition = "default"
	CondPass           Condition = "pass"
	CondFail           Condition = "fail"
	CondBoundedExit    Condition = "bounded_exit"
	CondNewCitations   Condition = "new_citations"
	CondNoNewCitations Condition = "no_new_citations"
	CondMSJ            Condition = "msj"
)

// phaseGraph is the static adjacency table. It is data, not code, so
// the full graph can be inspected and validated without executing it.
var phaseGraph = map[core.Phase]map[Condition]core.Phase{
	core.PhaseIntakeAnalysis: {
		CondDefault: core.PhaseDocumentSummaries,
	},
	core.PhaseDocumentSummaries: {
		CondDefault: core.PhaseLegalResearch,
	},
	core.PhaseLegalResearch: {
		CondDefault: core.PhaseResearchVerification,
	},
	core.PhaseResearchVerification: {
		CondDefault: core.PhaseOutline,
	},
	core.PhaseOutline: {
		CondDefault: core.PhaseDraftSections,
	},
	core.PhaseDraftSections: {
		CondDefault: core.PhaseDraftAssembly,
	},
	core.PhaseDraftAssembly: {
		CondDefault: core.PhaseCitationCheck,
	},
	core.PhaseCitationCheck: {
		CondDefault: core.PhaseGrading,
	},
	core.PhaseGrading: {
		CondPass:        core.PhaseClientReviewGate,
		CondFail:        core.PhaseRevision,
		CondBoundedExit: core.PhaseAssembly,
		CondDefault:     core.PhaseClientReviewGate,
	},
	core.PhaseClientReviewGate: {
		CondPass:    core.PhaseAssembly,
		CondFail:    core.PhaseRevision,
		CondDefault: core.PhaseAssembly,
	},
	core.PhaseRevision: {
		CondNewCitations:   core.PhaseCitationCheck,
		CondNoNewCitations: core.PhaseStatuteRecheck,
		CondDefault:        core.PhaseCitationCheck,
	},
	core.PhaseStatuteRecheck: {
		CondDefault: core.PhaseGrading,
	},
	core.PhaseAssembly: {
		CondMSJ:     core.PhaseMSJCompliance,
		CondDefault: core.PhaseDone,
	},
	core.PhaseMSJCompliance: {
		CondDefault: core.PhaseDone,
	},
}

// NextPhase resolves the successor of a phase under a condition,
// falling back to the phase's default edge.
func NextPhase(from core.Phase, cond Condition) (core.Phase, error) {
	edges, ok := phaseGraph[from]
	if !ok {
		return "", core.ErrState("NO_EDGES", fmt.Sprintf("phase %s has no outgoing edges", from))
	}
	if to, ok := edges[cond]; ok {
		return to, nil
	}
	if to, ok := edges[CondDefault]; ok {
		return to, nil
	}
	return "", core.ErrState("NO_EDGE", fmt.Sprintf("phase %s has no edge for %s and no default", from, cond))
}

// ValidateGraph checks the adjacency table is closed over known phases
// and that every non-terminal phase can reach done. Run at startup.
func ValidateGraph() error {
	for from, edges := range phaseGraph {
		if !core.ValidPhase(from) {
			return core.ErrState("BAD_PHASE", fmt.Sprintf("unknown phase %q in graph", from))
		}
		for cond, to := range edges {
			if !core.ValidPhase(to) {
				return core.ErrState("BAD_PHASE",
					fmt.Sprintf("edge %s[%s] targets unknown phase %q", from, cond, to))
			}
		}
		if _, ok := edges[CondDefault]; !ok {
			return core.ErrState("NO_DEFAULT", fmt.Sprintf("phase %s has no default edge", from))
		}
	}

	// Reachability of done from every phase in the table.
	for from := range phaseGraph {
		if !reaches(from, core.PhaseDone, make(map[core.Phase]bool)) {
			return core.ErrState("UNREACHABLE", fmt.Sprintf("phase %s cannot reach done", from))
		}
	}
	return nil
}

func reaches(from, target core.Phase, seen map[core.Phase]bool) bool {
	if from == target {
		return true
	}
	if seen[from] {
		return false
	}
	seen[from] = true
	for _, to := range phaseGraph[from] {
		if reaches(to, target, seen) {
			return true
		}
	}
	return false
}
