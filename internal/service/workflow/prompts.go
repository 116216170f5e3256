package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/motiongranted/draftengine/internal/core"
)

// systemPrompts carries the per-phase instruction. Every model phase
// that produces a structured payload states its JSON contract here so
// payload validation has something to hold the model to.
var systemPrompts = map[core.Phase]string{
	core.PhaseIntakeAnalysis: `You are a senior litigation analyst. Review the intake ` +
		`materials and identify the motion type, jurisdiction, legal issues, and any ` +
		`missing information that blocks drafting. Respond with JSON: ` +
		`{"status":"completed|failed|hold","motion_type":"standard|msj","jurisdiction":"...",` +
		`"issues":["..."],"missing_info":["..."]}. Use status "hold" when required ` +
		`information is missing.`,

	core.PhaseDocumentSummaries: `Summarize each intake document for a drafting attorney. ` +
		`Respond with JSON: {"status":"completed","summaries":[{"title":"...","summary":"..."}]}.`,

	core.PhaseLegalResearch: `You are a legal research attorney. Produce a research memo ` +
		`supporting the motion, citing controlling and persuasive authority with full ` +
		`reporter citations. Respond with JSON: {"status":"completed","memo":"...",` +
		`"authorities":[{"citation":"...","proposition":"..."}]}.`,

	core.PhaseOutline: `Plan the motion's argument structure. Respond with JSON: ` +
		`{"status":"completed","sections":[{"heading":"...","points":["..."]}]}.`,

	core.PhaseDraftSections: `Draft each outlined section in full, with pinpoint citations. ` +
		`Respond with JSON: {"status":"completed","sections":[{"heading":"...","body":"..."}]}.`,

	core.PhaseDraftAssembly: `Assemble the drafted sections into one continuous motion ` +
		`with consistent style and transitions. Respond with JSON: ` +
		`{"status":"completed","draft":"..."}.`,

	core.PhaseGrading: `You are an exacting supervising partner grading a motion draft on ` +
		`a 0.0-4.0 scale. Grade each section for legal accuracy, authority adequacy, and ` +
		`persuasiveness. Begin your response with YAML frontmatter:` + "\n" +
		"---\noverall_score: <0.0-4.0>\nsections:\n  - name: <section>\n    score: <0.0-4.0>\n" +
		"    authority_adequate: <true|false>\n    deficiencies: [\"...\"]\n---",

	core.PhaseRevision: `Revise the draft to resolve every graded deficiency. Do not ` +
		`restate resolved sections as new problems. Respond with JSON: ` +
		`{"status":"completed","draft":"...","change_summary":"..."}.`,

	core.PhaseAssembly: `Produce the final client deliverable from the approved draft: ` +
		`caption, signature block, certificate of service. Respond with JSON: ` +
		`{"status":"completed","final_document":"...","cover_note":"..."}.`,

	core.PhaseMSJCompliance: `Check the motion against summary-judgment practice ` +
		`requirements: statement of undisputed material facts, record citations for each ` +
		`fact, and the governing standard. Respond with JSON: ` +
		`{"status":"completed","compliant":true|false,"findings":["..."]}.`,
}

// promptContext assembles the material a phase needs from earlier
// outputs. Each phase sees the latest relevant predecessors, not the
// whole history.
func (e *Executor) promptContext(ctx context.Context, order *core.Order, phase core.Phase) (string, error) {
	var sections []string
	add := func(label, body string) {
		if body != "" {
			sections = append(sections, fmt.Sprintf("## %s\n\n%s", label, body))
		}
	}

	switch phase {
	case core.PhaseIntakeAnalysis:
		add("Order", fmt.Sprintf("tier %s, motion type %s", order.Tier, order.MotionType))

	case core.PhaseDocumentSummaries:
		add("Intake analysis", e.latestPayloadJSON(ctx, order.ID, core.PhaseIntakeAnalysis))

	case core.PhaseLegalResearch:
		add("Intake analysis", e.latestPayloadJSON(ctx, order.ID, core.PhaseIntakeAnalysis))
		add("Document summaries", e.latestPayloadJSON(ctx, order.ID, core.PhaseDocumentSummaries))

	case core.PhaseOutline:
		add("Intake analysis", e.latestPayloadJSON(ctx, order.ID, core.PhaseIntakeAnalysis))
		add("Research memo", e.latestPayloadJSON(ctx, order.ID, core.PhaseLegalResearch))

	case core.PhaseDraftSections:
		add("Outline", e.latestPayloadJSON(ctx, order.ID, core.PhaseOutline))
		add("Research memo", e.latestPayloadJSON(ctx, order.ID, core.PhaseLegalResearch))
		add("Document summaries", e.latestPayloadJSON(ctx, order.ID, core.PhaseDocumentSummaries))

	case core.PhaseDraftAssembly:
		add("Drafted sections", e.latestPayloadJSON(ctx, order.ID, core.PhaseDraftSections))

	case core.PhaseGrading:
		draft, err := e.latestDraft(ctx, order)
		if err != nil {
			return "", err
		}
		add("Draft under review", draft)
		add("Verified citations", e.citationDigest(ctx, order.ID))

	case core.PhaseRevision:
		draft, err := e.latestDraft(ctx, order)
		if err != nil {
			return "", err
		}
		add("Current draft", draft)
		add("Grade report", e.latestGradeJSON(ctx, order))
		add("Citation findings", e.citationDigest(ctx, order.ID))

	case core.PhaseAssembly:
		draft, err := e.latestDraft(ctx, order)
		if err != nil {
			return "", err
		}
		add("Approved draft", draft)
		add("Disclosure", order.Disclosure)

	case core.PhaseMSJCompliance:
		out, err := e.store.LatestPhaseOutput(ctx, order.ID, core.PhaseAssembly)
		if err != nil {
			return "", err
		}
		add("Final document", string(out.Payload))
	}

	return strings.Join(sections, "\n\n"), nil
}

// latestDraft returns the most recent full draft text: a revision if
// one exists, the assembled draft otherwise.
func (e *Executor) latestDraft(ctx context.Context, order *core.Order) (string, error) {
	for _, phase := range []core.Phase{core.PhaseRevision, core.PhaseDraftAssembly} {
		out, err := e.store.LatestPhaseOutput(ctx, order.ID, phase)
		if err != nil {
			continue
		}
		var p struct {
			Draft string `json:"draft"`
		}
		if jsonErr := json.Unmarshal(out.Payload, &p); jsonErr == nil && p.Draft != "" {
			return p.Draft, nil
		}
	}
	return "", core.ErrState("NO_DRAFT", fmt.Sprintf("order %s has no draft on record", order.ID))
}

func (e *Executor) latestPayloadJSON(ctx context.Context, id core.OrderID, phase core.Phase) string {
	out, err := e.store.LatestPhaseOutput(ctx, id, phase)
	if err != nil {
		return ""
	}
	return string(out.Payload)
}

func (e *Executor) latestGradeJSON(ctx context.Context, order *core.Order) string {
	grade, err := e.store.GetLoopGrade(ctx, order.ID, order.RevisionCount)
	if err != nil {
		return ""
	}
	b, err := json.Marshal(grade)
	if err != nil {
		return ""
	}
	return string(b)
}

// citationDigest renders the verification ledger for prompt context.
func (e *Executor) citationDigest(ctx context.Context, id core.OrderID) string {
	verifs, err := e.store.ListVerifications(ctx, id)
	if err != nil || len(verifs) == 0 {
		return ""
	}
	var b strings.Builder
	for _, v := range verifs {
		fmt.Fprintf(&b, "- %s: %s (confidence %.2f)\n", v.Citation, v.Classification, v.Confidence)
	}
	return b.String()
}
