package api

import (
	"time"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/service/workflow"
)

type checkpointView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Phase     string    `json:"phase"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type orderStatusView struct {
	ID             core.OrderID     `json:"id"`
	Tier           core.Tier        `json:"tier"`
	MotionType     core.MotionType  `json:"motion_type"`
	Status         core.OrderStatus `json:"status"`
	CurrentPhase   core.Phase       `json:"current_phase"`
	RevisionCount  int              `json:"revision_count"`
	CostUSD        float64          `json:"cost_usd"`
	Disclosure     string           `json:"disclosure,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
	LastActivityAt time.Time        `json:"last_activity_at"`

	PendingCheckpoints []checkpointView `json:"pending_checkpoints,omitempty"`
}

func orderView(o *core.Order, pending []*core.Checkpoint) orderStatusView {
	v := orderStatusView{
		ID:             o.ID,
		Tier:           o.Tier,
		MotionType:     o.MotionType,
		Status:         o.Status,
		CurrentPhase:   o.CurrentPhase,
		RevisionCount:  o.RevisionCount,
		CostUSD:        o.CostUSD,
		Disclosure:     o.Disclosure,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
		LastActivityAt: o.LastActivityAt,
	}
	for _, cp := range pending {
		v.PendingCheckpoints = append(v.PendingCheckpoints, checkpointView{
			ID:        cp.ID,
			Type:      string(cp.Type),
			Phase:     string(cp.Phase),
			Message:   cp.Message,
			CreatedAt: cp.CreatedAt,
		})
	}
	return v
}

type advanceResultView struct {
	Phase    core.Phase `json:"phase"`
	Next     core.Phase `json:"next,omitempty"`
	Held     bool       `json:"held"`
	Terminal bool       `json:"terminal"`
}

func advanceView(res *workflow.AdvanceResult) advanceResultView {
	return advanceResultView{
		Phase:    res.Phase,
		Next:     res.Next,
		Held:     res.Held,
		Terminal: res.Terminal,
	}
}

type citationEntryView struct {
	Text           string   `json:"text"`
	Type           string   `json:"type"`
	Occurrences    int      `json:"occurrences"`
	Complete       bool     `json:"complete"`
	FormatWarnings []string `json:"format_warnings,omitempty"`

	Classification string  `json:"classification,omitempty"`
	Confidence     float64 `json:"confidence,omitempty"`
}

func citationLedgerView(cites []core.UniqueCitation, verifs []*core.VerificationResult) map[string]any {
	byText := make(map[string]*core.VerificationResult, len(verifs))
	for _, v := range verifs {
		byText[v.Citation] = v
	}

	entries := make([]citationEntryView, 0, len(cites))
	for _, c := range cites {
		e := citationEntryView{
			Text:           c.Text,
			Type:           string(c.Type),
			Occurrences:    c.Occurrences,
			Complete:       c.Complete,
			FormatWarnings: c.FormatWarnings,
		}
		if v, ok := byText[c.Text]; ok {
			e.Classification = string(v.Classification)
			e.Confidence = v.Confidence
		}
		entries = append(entries, e)
	}
	return map[string]any{"citations": entries}
}

type phaseOutputView struct {
	ID        string    `json:"id"`
	Phase     string    `json:"phase"`
	Status    string    `json:"status"`
	Model     string    `json:"model,omitempty"`
	CostUSD   float64   `json:"cost_usd"`
	CreatedAt time.Time `json:"created_at"`
}

func outputView(out *core.PhaseOutput) phaseOutputView {
	return phaseOutputView{
		ID:        out.ID,
		Phase:     string(out.Phase),
		Status:    string(out.Status),
		Model:     out.Model,
		CostUSD:   out.CostUSD,
		CreatedAt: out.CreatedAt,
	}
}
