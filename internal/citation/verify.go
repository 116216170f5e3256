package citation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/metrics"
)

// Escalation thresholds, binding for every caller. Borderline scores
// escalate rather than pass.
const (
	// SkipThreshold at or above which stage 2 is skipped entirely.
	SkipThreshold = 0.95

	// EscalateFloor below which stage 1 can never self-certify: stage 2
	// still runs for the audit trail, but the classification stays
	// HOLDING_MISMATCH regardless of its outcome.
	EscalateFloor = 0.80

	// degradedConfidenceCap caps stage 1 confidence when no research
	// source could resolve the citation, forcing cross-validation.
	degradedConfidenceCap = 0.94

	verifyConcurrency = 4
)

// VerificationStore persists verification results.
type VerificationStore interface {
	SaveVerification(ctx context.Context, res *core.VerificationResult) error
}

// Verifier runs the two-stage citation verification pipeline.
type Verifier struct {
	gateway core.Gateway
	store   VerificationStore
	chain   *Chain
	logger  *logging.Logger

	// Stage models must resolve to different vendors so the
	// adversarial pass is independent of the holding pass.
	stage1Model  string
	stage2Model  string
	statuteModel string
	clock        func() time.Time
}

// NewVerifier creates the pipeline with the default stage models.
func NewVerifier(gw core.Gateway, store VerificationStore, chain *Chain, logger *logging.Logger) *Verifier {
	return &Verifier{
		gateway:      gw,
		store:        store,
		chain:        chain,
		logger:       logger.WithComponent("citation_verify"),
		stage1Model:  core.ModelClaudeReasoning,
		stage2Model:  core.ModelGPTReasoning,
		statuteModel: core.ModelGPTEfficient,
		clock:        time.Now,
	}
}

// WithStageModels overrides the stage model pair. The pair must span
// both vendors; same-vendor pairs are rejected.
func (v *Verifier) WithStageModels(stage1, stage2 string) (*Verifier, error) {
	if core.ModelVendors[stage1] == core.ModelVendors[stage2] {
		return nil, core.ErrValidation("STAGE_VENDOR_OVERLAP",
			"stage 1 and stage 2 models must come from different vendors")
	}
	v.stage1Model = stage1
	v.stage2Model = stage2
	return v, nil
}

type stage1Finding struct {
	Exists     bool    `json:"exists"`
	Supports   bool    `json:"supports"`
	Confidence float64 `json:"confidence"`
	Rationale  string  `json:"rationale"`
}

type stage2Finding struct {
	Falsified bool   `json:"falsified"`
	Rationale string `json:"rationale"`
}

// Verify runs the staged pipeline for one canonical citation and
// persists the result. The result is append-only: callers never mutate
// it after the order leaves the citation-bearing phase.
func (v *Verifier) Verify(ctx context.Context, orderID core.OrderID, cite core.UniqueCitation, draftContext string) (*core.VerificationResult, error) {
	if cite.Type == core.CiteStatute {
		return v.VerifyStatute(ctx, orderID, cite.Text)
	}

	res := &core.VerificationResult{
		OrderID:   orderID,
		Citation:  cite.Text,
		Stage:     core.StageHolding,
		CreatedAt: v.clock(),
	}

	lookupNote, budgetHit, err := v.lookupContext(ctx, cite.Text)
	if err != nil {
		return nil, err
	}
	if budgetHit {
		res.Classification = core.ClassUnverifiableBudget
		res.Stage1Finding = "metered lookup budget exhausted before verification"
		return v.persist(ctx, res)
	}

	finding, err := v.runStage1(ctx, orderID, cite, draftContext, lookupNote)
	if err != nil {
		return nil, err
	}
	res.Stage1Model = v.stage1Model
	res.Stage1Finding = finding.Rationale
	res.Confidence = finding.Confidence
	if lookupNote == "" && res.Confidence > degradedConfidenceCap {
		// No source corroboration: never allow the skip path.
		res.Confidence = degradedConfidenceCap
	}
	if !finding.Exists || !finding.Supports {
		res.Confidence = 0
	}

	switch {
	case res.Confidence >= SkipThreshold:
		res.Classification = core.ClassVerified
		return v.persist(ctx, res)

	case res.Confidence >= EscalateFloor:
		res.Stage = core.StageAdversarial
		s2, err := v.runStage2(ctx, orderID, cite, draftContext, finding)
		if err != nil {
			return nil, err
		}
		res.Stage2Model = v.stage2Model
		res.Stage2Finding = s2.Rationale
		if s2.Falsified {
			res.Classification = core.ClassHoldingMismatch
		} else {
			res.Classification = core.ClassHoldingStage2
		}
		return v.persist(ctx, res)

	default:
		// Low stage 1 confidence never self-upgrades. Stage 2 runs for
		// the audit trail only.
		res.Stage = core.StageAdversarial
		if s2, err := v.runStage2(ctx, orderID, cite, draftContext, finding); err == nil {
			res.Stage2Model = v.stage2Model
			res.Stage2Finding = s2.Rationale
		} else {
			v.logger.Warn("audit-trail stage 2 failed",
				"order_id", string(orderID), "citation", cite.Text, "error", err)
		}
		res.Classification = core.ClassHoldingMismatch
		return v.persist(ctx, res)
	}
}

// VerifyAll runs the pipeline over a canonical set with bounded
// concurrency. Budget refusals are results, not errors; the first
// infrastructure error aborts the remainder.
func (v *Verifier) VerifyAll(ctx context.Context, orderID core.OrderID, cites []core.UniqueCitation, draftContext string) ([]*core.VerificationResult, error) {
	results := make([]*core.VerificationResult, len(cites))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(verifyConcurrency)
	for i, c := range cites {
		g.Go(func() error {
			r, err := v.Verify(gctx, orderID, c, draftContext)
			if err != nil {
				return err
			}
			results[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// VerifyStatute runs the single-stage statutory check on the efficient
// model. Statutes skip the adversarial pass.
func (v *Verifier) VerifyStatute(ctx context.Context, orderID core.OrderID, statute string) (*core.VerificationResult, error) {
	res := &core.VerificationResult{
		OrderID:     orderID,
		Citation:    statute,
		Stage:       core.StageHolding,
		Stage1Model: v.statuteModel,
		CreatedAt:   v.clock(),
	}

	out, err := v.gateway.Complete(ctx, orderID, core.ModelRequest{
		Model:      v.statuteModel,
		System:     "You verify statutory citations for a legal drafting system.",
		Prompt:     fmt.Sprintf("Does the statute %q exist as cited? Respond with JSON {\"exists\": bool, \"supports\": true, \"confidence\": 0..1, \"rationale\": string}.", statute),
		MaxTokens:  512,
		JSONOutput: true,
	})
	if err != nil {
		return nil, err
	}

	finding := parseStage1(out.Text)
	res.Confidence = finding.Confidence
	res.Stage1Finding = finding.Rationale
	if finding.Exists && finding.Confidence >= EscalateFloor {
		res.Classification = core.ClassVerified
	} else {
		res.Classification = core.ClassHoldingMismatch
	}
	return v.persist(ctx, res)
}

// lookupContext resolves the citation through the fallback chain,
// returning a prompt note describing the source finding. A budget
// refusal is reported, not returned as an error.
func (v *Verifier) lookupContext(ctx context.Context, citation string) (note string, budgetHit bool, err error) {
	if v.chain == nil {
		return "", false, nil
	}
	res, err := v.chain.Lookup(ctx, citation)
	if err != nil {
		var de *core.DomainError
		if errors.As(err, &de) {
			switch de.Category {
			case core.ErrCatBudget:
				return "", true, nil
			case core.ErrCatNotFound:
				return "", false, nil
			}
		}
		// Lookup infrastructure trouble degrades to model-only
		// verification; it never crashes the phase.
		v.logger.Warn("lookup chain degraded", "citation", citation, "error", err)
		return "", false, nil
	}
	good := "good law"
	if !res.GoodLaw {
		good = "negative treatment reported"
	}
	note = fmt.Sprintf("source %q: %s, %s %d, %s.", res.SourceName, res.Name, res.Court, res.Year, good)
	return note, false, nil
}

func (v *Verifier) runStage1(ctx context.Context, orderID core.OrderID, cite core.UniqueCitation, draftContext, lookupNote string) (stage1Finding, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Citation: %s\n", cite.Text)
	if lookupNote != "" {
		fmt.Fprintf(&sb, "Source corroboration: %s\n", lookupNote)
	} else {
		sb.WriteString("Source corroboration: none available.\n")
	}
	fmt.Fprintf(&sb, "Proposition and surrounding draft text:\n%s\n\n", draftContext)
	sb.WriteString(`Check (1) whether this citation exists, and (2) whether the cited authority actually supports the proposition it is attached to. Respond with JSON {"exists": bool, "supports": bool, "confidence": 0..1, "rationale": string}.`)

	out, err := v.gateway.Complete(ctx, orderID, core.ModelRequest{
		Model:      v.stage1Model,
		System:     "You are a meticulous legal citation checker. Overstating confidence is the worst possible failure.",
		Prompt:     sb.String(),
		MaxTokens:  1024,
		JSONOutput: true,
	})
	if err != nil {
		return stage1Finding{}, err
	}
	return parseStage1(out.Text), nil
}

func (v *Verifier) runStage2(ctx context.Context, orderID core.OrderID, cite core.UniqueCitation, draftContext string, s1 stage1Finding) (stage2Finding, error) {
	prompt := fmt.Sprintf(
		"A prior reviewer concluded about the citation %q:\n%s\n\nDraft context:\n%s\n\nYour job is adversarial: attempt to falsify that conclusion. Respond with JSON {\"falsified\": bool, \"rationale\": string}.",
		cite.Text, s1.Rationale, draftContext)

	out, err := v.gateway.Complete(ctx, orderID, core.ModelRequest{
		Model:      v.stage2Model,
		System:     "You independently cross-check citation holdings. Assume the prior reviewer may be wrong.",
		Prompt:     prompt,
		MaxTokens:  1024,
		JSONOutput: true,
	})
	if err != nil {
		return stage2Finding{}, err
	}

	var finding stage2Finding
	if err := json.Unmarshal([]byte(extractJSON(out.Text)), &finding); err != nil {
		// An unparseable cross-check cannot clear a citation.
		return stage2Finding{Falsified: true, Rationale: "unparseable stage 2 output"}, nil
	}
	return finding, nil
}

func (v *Verifier) persist(ctx context.Context, res *core.VerificationResult) (*core.VerificationResult, error) {
	if err := v.store.SaveVerification(ctx, res); err != nil {
		return nil, err
	}
	metrics.VerificationOutcomes.WithLabelValues(string(res.Classification)).Inc()
	return res, nil
}

func parseStage1(text string) stage1Finding {
	var finding stage1Finding
	if err := json.Unmarshal([]byte(extractJSON(text)), &finding); err != nil {
		// Malformed stage 1 output takes the low-confidence path.
		return stage1Finding{Rationale: "unparseable stage 1 output"}
	}
	if finding.Confidence < 0 {
		finding.Confidence = 0
	}
	if finding.Confidence > 1 {
		finding.Confidence = 1
	}
	return finding
}

// extractJSON pulls the outermost JSON object out of model text that
// may wrap it in prose or code fences.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end == -1 || end < start {
		return text
	}
	return text[start : end+1]
}
