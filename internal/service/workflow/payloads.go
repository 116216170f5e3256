package workflow

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/motiongranted/draftengine/internal/core"
)

// validate is shared; validator instances cache struct metadata.
var validate = validator.New(validator.WithRequiredStructEnabled())

// basePayload is the envelope every model-produced payload carries.
type basePayload struct {
	Status string `json:"status" validate:"required,oneof=completed failed hold"`
	Notes  string `json:"notes,omitempty"`
}

func (b basePayload) outcome() core.PhaseStatus {
	return core.PhaseStatus(b.Status)
}

func (b basePayload) note() string { return b.Notes }

// payload is implemented by every phase payload type.
type payload interface {
	outcome() core.PhaseStatus
}

// citationSource is implemented by payloads whose prose feeds the
// citation bank.
type citationSource interface {
	citationText() string
}

// IntakePayload is produced by intake analysis.
type IntakePayload struct {
	basePayload
	MotionType   string   `json:"motion_type" validate:"required,oneof=standard msj"`
	Jurisdiction string   `json:"jurisdiction" validate:"required"`
	Issues       []string `json:"issues" validate:"required,min=1,dive,required"`
	MissingInfo  []string `json:"missing_info,omitempty"`
}

// DocumentSummary is one summarized intake document.
type DocumentSummary struct {
	Title   string `json:"title" validate:"required"`
	Summary string `json:"summary" validate:"required"`
}

// SummariesPayload is produced by document summaries.
type SummariesPayload struct {
	basePayload
	Summaries []DocumentSummary `json:"summaries" validate:"required,min=1,dive"`
}

// Authority is one researched legal authority.
type Authority struct {
	Citation    string `json:"citation" validate:"required"`
	Proposition string `json:"proposition" validate:"required"`
}

// ResearchPayload is produced by legal research.
type ResearchPayload struct {
	basePayload
	Memo        string      `json:"memo" validate:"required"`
	Authorities []Authority `json:"authorities" validate:"required,min=1,dive"`
}

func (p ResearchPayload) citationText() string {
	var b strings.Builder
	b.WriteString(p.Memo)
	for _, a := range p.Authorities {
		b.WriteString("\n")
		b.WriteString(a.Citation)
	}
	return b.String()
}

// OutlineSection is one planned section heading.
type OutlineSection struct {
	Heading string   `json:"heading" validate:"required"`
	Points  []string `json:"points,omitempty"`
}

// OutlinePayload is produced by the outline phase.
type OutlinePayload struct {
	basePayload
	Sections []OutlineSection `json:"sections" validate:"required,min=1,dive"`
}

// DraftSection is one drafted section body.
type DraftSection struct {
	Heading string `json:"heading" validate:"required"`
	Body    string `json:"body" validate:"required"`
}

// DraftSectionsPayload is produced by section drafting.
type DraftSectionsPayload struct {
	basePayload
	Sections []DraftSection `json:"sections" validate:"required,min=1,dive"`
}

func (p DraftSectionsPayload) citationText() string {
	parts := make([]string, 0, len(p.Sections))
	for _, s := range p.Sections {
		parts = append(parts, s.Body)
	}
	return strings.Join(parts, "\n\n")
}

// DraftPayload carries an assembled full draft.
type DraftPayload struct {
	basePayload
	Draft string `json:"draft" validate:"required"`
}

// RevisionPayload is produced by the revision phase.
type RevisionPayload struct {
	basePayload
	Draft         string `json:"draft" validate:"required"`
	ChangeSummary string `json:"change_summary" validate:"required"`
}

func (p RevisionPayload) citationText() string { return p.Draft }

// AssemblyPayload is the final deliverable package.
type AssemblyPayload struct {
	basePayload
	FinalDocument string `json:"final_document" validate:"required"`
	CoverNote     string `json:"cover_note,omitempty"`
}

// MSJCompliancePayload reports the summary-judgment compliance check.
type MSJCompliancePayload struct {
	basePayload
	Compliant *bool    `json:"compliant" validate:"required"`
	Findings  []string `json:"findings,omitempty"`
}

// payloadFactories maps model phases to their payload types. Pipeline
// and gate phases synthesize payloads internally and are absent here.
var payloadFactories = map[core.Phase]func() payload{
	core.PhaseIntakeAnalysis:    func() payload { return &IntakePayload{} },
	core.PhaseDocumentSummaries: func() payload { return &SummariesPayload{} },
	core.PhaseLegalResearch:     func() payload { return &ResearchPayload{} },
	core.PhaseOutline:           func() payload { return &OutlinePayload{} },
	core.PhaseDraftSections:     func() payload { return &DraftSectionsPayload{} },
	core.PhaseDraftAssembly:     func() payload { return &DraftPayload{} },
	core.PhaseRevision:          func() payload { return &RevisionPayload{} },
	core.PhaseAssembly:          func() payload { return &AssemblyPayload{} },
	core.PhaseMSJCompliance:     func() payload { return &MSJCompliancePayload{} },
}

// ParsePayload decodes and validates a model's JSON output against the
// phase's payload schema. Any failure is a schema violation; the model
// text is never partially accepted.
func ParsePayload(phase core.Phase, raw []byte) (payload, error) {
	factory, ok := payloadFactories[phase]
	if !ok {
		return nil, core.ErrState("NO_SCHEMA", fmt.Sprintf("phase %s has no payload schema", phase))
	}
	p := factory()
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, core.ErrValidation(core.CodeSchemaInvalid,
			fmt.Sprintf("phase %s payload is not valid JSON: %v", phase, err))
	}
	if err := validate.Struct(p); err != nil {
		return nil, core.ErrValidation(core.CodeSchemaInvalid,
			fmt.Sprintf("phase %s payload failed validation: %v", phase, err))
	}
	return p, nil
}
