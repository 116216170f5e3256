package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motiongranted/draftengine/internal/core"
)

func TestParsePayloadIntake(t *testing.T) {
	raw := `{
		"status": "completed",
		"motion_type": "msj",
		"jurisdiction": "S.D. Fla.",
		"issues": ["no genuine dispute of material fact"]
	}`

	p, err := ParsePayload(core.PhaseIntakeAnalysis, []byte(raw))
	require.NoError(t, err)

	intake, ok := p.(*IntakePayload)
	require.True(t, ok)
	assert.Equal(t, "msj", intake.MotionType)
	assert.Equal(t, core.PhaseCompleted, p.outcome())
}

func TestParsePayloadRejectsMissingFields(t *testing.T) {
	tests := []struct {
		name  string
		phase core.Phase
		raw   string
	}{
		{"no status", core.PhaseIntakeAnalysis, `{"motion_type":"standard","jurisdiction":"x","issues":["y"]}`},
		{"bad status", core.PhaseIntakeAnalysis, `{"status":"done","motion_type":"standard","jurisdiction":"x","issues":["y"]}`},
		{"bad motion type", core.PhaseIntakeAnalysis, `{"status":"completed","motion_type":"appeal","jurisdiction":"x","issues":["y"]}`},
		{"empty issues", core.PhaseIntakeAnalysis, `{"status":"completed","motion_type":"standard","jurisdiction":"x","issues":[]}`},
		{"empty draft", core.PhaseDraftAssembly, `{"status":"completed","draft":""}`},
		{"no change summary", core.PhaseRevision, `{"status":"completed","draft":"text"}`},
		{"section missing body", core.PhaseDraftSections, `{"status":"completed","sections":[{"heading":"I."}]}`},
		{"not json", core.PhaseOutline, `the outline is as follows`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePayload(tt.phase, []byte(tt.raw))
			require.Error(t, err)
			var derr *core.DomainError
			require.ErrorAs(t, err, &derr)
			assert.Equal(t, core.CodeSchemaInvalid, derr.Code)
		})
	}
}

func TestParsePayloadHoldOutcome(t *testing.T) {
	raw := `{
		"status": "hold",
		"notes": "no operative complaint attached",
		"motion_type": "standard",
		"jurisdiction": "unknown",
		"issues": ["cannot determine without complaint"],
		"missing_info": ["operative complaint"]
	}`
	p, err := ParsePayload(core.PhaseIntakeAnalysis, []byte(raw))
	require.NoError(t, err)
	assert.Equal(t, core.PhaseHold, p.outcome())
}

func TestParsePayloadUnknownPhase(t *testing.T) {
	_, err := ParsePayload(core.PhaseCitationCheck, []byte(`{}`))
	require.Error(t, err)
}

func TestCitationTextAssembly(t *testing.T) {
	research := &ResearchPayload{
		Memo: "Summary judgment is proper. Anderson v. Liberty Lobby, 477 U.S. 242 (1986).",
		Authorities: []Authority{
			{Citation: "Celotex Corp. v. Catrett, 477 U.S. 317 (1986)", Proposition: "burden shifting"},
		},
	}
	text := research.citationText()
	assert.Contains(t, text, "477 U.S. 242")
	assert.Contains(t, text, "Celotex")

	sections := &DraftSectionsPayload{Sections: []DraftSection{
		{Heading: "I.", Body: "first"},
		{Heading: "II.", Body: "second"},
	}}
	assert.Equal(t, "first\n\nsecond", sections.citationText())
}
