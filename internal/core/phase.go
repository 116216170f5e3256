package core

import "fmt"

// Phase represents one production phase in the motion drafting pipeline.
type Phase string

const (
	// PhaseIntakeAnalysis reads the intake packet and classifies the matter.
	PhaseIntakeAnalysis Phase = "intake_analysis"

	// PhaseDocumentSummaries summarizes the client's supporting documents.
	PhaseDocumentSummaries Phase = "document_summaries"

	// PhaseLegalResearch gathers authorities and builds the citation bank.
	PhaseLegalResearch Phase = "legal_research"

	// PhaseResearchVerification verifies every authority in the citation bank.
	PhaseResearchVerification Phase = "research_verification"

	// PhaseOutline produces the argument outline.
	PhaseOutline Phase = "outline"

	// PhaseDraftSections drafts each section of the motion.
	PhaseDraftSections Phase = "draft_sections"

	// PhaseDraftAssembly stitches drafted sections into a single draft.
	PhaseDraftAssembly Phase = "draft_assembly"

	// PhaseCitationCheck extracts and verifies citations found in the draft
	// that are not already in the bank.
	PhaseCitationCheck Phase = "citation_check"

	// PhaseGrading scores the draft against the rubric. Routes to revision
	// on failure, forward on pass.
	PhaseGrading Phase = "grading"

	// PhaseClientReviewGate pauses the order for client approval.
	PhaseClientReviewGate Phase = "client_review_gate"

	// PhaseRevision rewrites the draft to address graded deficiencies.
	PhaseRevision Phase = "revision"

	// PhaseStatuteRecheck diffs statutory references in the revised draft
	// against the statute bank and verifies only the new ones.
	PhaseStatuteRecheck Phase = "statute_recheck"

	// PhaseAssembly produces the final deliverable package.
	PhaseAssembly Phase = "assembly"

	// PhaseMSJCompliance runs the extra compliance pass required for
	// summary-judgment-style motions.
	PhaseMSJCompliance Phase = "msj_compliance"

	// PhaseDone is the terminal marker. It is not executable; it signals
	// that the pipeline has finished for this order.
	PhaseDone Phase = "done"
)

// AllPhases returns every executable phase in canonical order.
func AllPhases() []Phase {
	return []Phase{
		PhaseIntakeAnalysis,
		PhaseDocumentSummaries,
		PhaseLegalResearch,
		PhaseResearchVerification,
		PhaseOutline,
		PhaseDraftSections,
		PhaseDraftAssembly,
		PhaseCitationCheck,
		PhaseGrading,
		PhaseClientReviewGate,
		PhaseRevision,
		PhaseStatuteRecheck,
		PhaseAssembly,
		PhaseMSJCompliance,
	}
}

var validPhases = func() map[Phase]bool {
	m := make(map[Phase]bool, len(AllPhases())+1)
	for _, p := range AllPhases() {
		m[p] = true
	}
	m[PhaseDone] = true
	return m
}()

// ValidPhase reports whether p names a known phase.
func ValidPhase(p Phase) bool {
	return validPhases[p]
}

// ParsePhase converts a string to a Phase with validation.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !ValidPhase(p) {
		return "", fmt.Errorf("invalid phase: %s", s)
	}
	return p, nil
}

// String returns the string representation of the phase.
func (p Phase) String() string {
	return string(p)
}

// CitationBearing reports whether the phase produces text that must go
// through citation extraction and verification.
func (p Phase) CitationBearing() bool {
	switch p {
	case PhaseLegalResearch, PhaseDraftSections, PhaseCitationCheck, PhaseRevision:
		return true
	default:
		return false
	}
}
