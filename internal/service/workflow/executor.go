package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/motiongranted/draftengine/internal/checkpoint"
	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/metrics"
)

// maxValidationFailures is the consecutive schema-failure ceiling for
// one phase before the order goes on hold for an operator.
const maxValidationFailures = 3

// boundedExitDisclosureFmt is formatted with the number of automated
// revision cycles and appended to deliverables produced by a forced
// exit from the revision loop below the pass threshold.
const boundedExitDisclosureFmt = "This draft completed %d automated revision cycles without " +
	"reaching the internal quality target. It is delivered with that limitation " +
	"disclosed and should receive closer attorney review than usual."

// Executor advances orders through the phase graph one durable step at
// a time. Every call persists the phase output and the order
// transition before returning; a crash between calls resumes from the
// order row, which is the single source of truth.
type Executor struct {
	store       core.Store
	gateway     core.Gateway
	citations   CitationService
	checkpoints *checkpoint.Manager
	logger      *logging.Logger
	clock       func() time.Time
}

// NewExecutor builds an executor.
func NewExecutor(store core.Store, gw core.Gateway, cites CitationService, cps *checkpoint.Manager, logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Executor{
		store:       store,
		gateway:     gw,
		citations:   cites,
		checkpoints: cps,
		logger:      logger,
		clock:       time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (e *Executor) WithClock(clock func() time.Time) *Executor {
	e.clock = clock
	return e
}

// AdvanceResult reports one executed phase step.
type AdvanceResult struct {
	Phase    core.Phase
	Output   *core.PhaseOutput
	Next     core.Phase
	Held     bool // parked on a blocking checkpoint or hold
	Terminal bool // order reached done
}

// Advance executes the order's current phase and commits the move to
// the next one. Exactly one phase runs per call.
func (e *Executor) Advance(ctx context.Context, orderID core.OrderID) (*AdvanceResult, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Terminal() {
		return nil, core.ErrConflict("TERMINAL", fmt.Sprintf("order %s is %s", orderID, order.Status))
	}
	if order.Status == core.StatusOnHold {
		return &AdvanceResult{Phase: order.CurrentPhase, Held: true}, nil
	}
	if order.CurrentPhase == core.PhaseDone {
		return &AdvanceResult{Phase: core.PhaseDone, Terminal: false, Held: true}, nil
	}

	pending, err := e.store.PendingCheckpoints(ctx, orderID)
	if err != nil {
		return nil, err
	}
	for _, cp := range pending {
		if cp.Blocking() {
			return &AdvanceResult{Phase: order.CurrentPhase, Held: true}, nil
		}
	}

	spec, ok := phaseSpecs[order.CurrentPhase]
	if !ok {
		return nil, core.ErrState("NO_SPEC", fmt.Sprintf("phase %s has no routing spec", order.CurrentPhase))
	}

	// Align the status with the running phase. Covers the first phase
	// (draft_pending) and resumes after hold release.
	if order.Status != spec.Status {
		if err := e.store.TransitionOrder(ctx, orderID, order.Status, order.CurrentPhase, spec.Status, order.CurrentPhase); err != nil {
			return nil, err
		}
		order.Status = spec.Status
	}

	phase := order.CurrentPhase
	started := e.clock()
	var res *AdvanceResult
	switch spec.Kind {
	case kindGate:
		res, err = e.runGate(ctx, order, spec)
	case kindPipeline:
		res, err = e.runPipeline(ctx, order, spec)
	default:
		if phase == core.PhaseGrading {
			res, err = e.runGrading(ctx, order, spec)
		} else {
			res, err = e.runModelPhase(ctx, order, spec)
		}
	}
	if err != nil {
		return nil, err
	}

	metrics.PhaseDuration.WithLabelValues(string(phase)).Observe(e.clock().Sub(started).Seconds())
	return res, nil
}

// Run advances the order until it parks on a gate, goes on hold, or
// reaches done.
func (e *Executor) Run(ctx context.Context, orderID core.OrderID) (*AdvanceResult, error) {
	for {
		res, err := e.Advance(ctx, orderID)
		if err != nil {
			return nil, err
		}
		if res.Held || res.Terminal {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
	}
}

// runModelPhase executes one gateway call and commits the validated
// payload.
func (e *Executor) runModelPhase(ctx context.Context, order *core.Order, spec phaseSpec) (*AdvanceResult, error) {
	material, err := e.promptContext(ctx, order, order.CurrentPhase)
	if err != nil {
		return nil, err
	}

	result, err := e.gateway.Complete(ctx, order.ID, core.ModelRequest{
		Model:             spec.modelFor(order.Tier),
		System:            systemPrompts[order.CurrentPhase],
		Prompt:            material,
		JSONOutput:        true,
		ExtendedReasoning: spec.extendedFor(order.Tier),
	})
	if err != nil {
		return nil, err
	}

	p, err := ParsePayload(order.CurrentPhase, []byte(result.Text))
	if err != nil {
		return e.handleInvalidPayload(ctx, order, err)
	}
	if err := e.store.ResetValidationFailures(ctx, order.ID); err != nil {
		return nil, err
	}

	switch p.outcome() {
	case core.PhaseHold:
		return e.parkOnHold(ctx, order, payloadNote(p))
	case core.PhaseFailed:
		return nil, core.ErrExecution("PHASE_FAILED",
			fmt.Sprintf("phase %s declared failure: %s", order.CurrentPhase, payloadNote(p)))
	}

	out := e.newOutput(order, core.PhaseCompleted, result)
	out.Payload, _ = json.Marshal(p)

	cond := CondDefault
	if order.CurrentPhase.CitationBearing() {
		src, ok := p.(citationSource)
		if !ok {
			return nil, core.ErrInternal(fmt.Sprintf("phase %s marked citation bearing without text", order.CurrentPhase))
		}
		out.CitationText = src.citationText()
		// Research output seeds the bank; everything later is draft text
		// checked against it.
		provenance := core.SourceDraft
		if order.CurrentPhase == core.PhaseLegalResearch {
			provenance = core.SourceBank
		}
		fresh, err := e.citations.BankNew(ctx, order.ID, out.CitationText, provenance)
		if err != nil {
			return nil, err
		}
		if order.CurrentPhase == core.PhaseRevision {
			if len(fresh) > 0 {
				cond = CondNewCitations
			} else {
				cond = CondNoNewCitations
			}
		}
	}
	if order.CurrentPhase == core.PhaseAssembly && order.MotionType == core.MotionTypeMSJ {
		cond = CondMSJ
	}

	return e.commit(ctx, order, out, cond)
}

// runPipeline executes the deterministic phases: citation and statute
// machinery that calls models only through the verifier.
func (e *Executor) runPipeline(ctx context.Context, order *core.Order, spec phaseSpec) (*AdvanceResult, error) {
	out := e.newOutput(order, core.PhaseCompleted, nil)

	switch order.CurrentPhase {
	case core.PhaseResearchVerification, core.PhaseCitationCheck:
		draftContext := ""
		if d, err := e.latestDraft(ctx, order); err == nil {
			draftContext = d
		}
		results, err := e.citations.VerifyPending(ctx, order.ID, draftContext)
		if err != nil {
			return nil, err
		}
		out.Payload = verificationSummary(results)

	case core.PhaseStatuteRecheck:
		draft, err := e.latestDraft(ctx, order)
		if err != nil {
			return nil, err
		}
		added, err := e.citations.RecheckStatutes(ctx, order.ID, draft)
		if err != nil {
			return nil, err
		}
		out.Payload, _ = json.Marshal(map[string]any{
			"status":       "completed",
			"new_statutes": added,
		})

	default:
		return nil, core.ErrState("NO_PIPELINE", fmt.Sprintf("phase %s has no pipeline", order.CurrentPhase))
	}

	return e.commit(ctx, order, out, CondDefault)
}

// runGate declares the blocking client-review checkpoint and parks the
// order. Resolution arrives through ResolveGate.
func (e *Executor) runGate(ctx context.Context, order *core.Order, spec phaseSpec) (*AdvanceResult, error) {
	pending, err := e.store.PendingCheckpoints(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	for _, cp := range pending {
		if cp.Phase == order.CurrentPhase && cp.Type == spec.Gate {
			return &AdvanceResult{Phase: order.CurrentPhase, Held: true}, nil
		}
	}

	if _, err := e.checkpoints.Declare(ctx, order, order.CurrentPhase, spec.Gate,
		"draft ready for client review"); err != nil {
		return nil, err
	}
	return &AdvanceResult{Phase: order.CurrentPhase, Held: true}, nil
}

// runGrading executes the grader, applies the consistency lock, and
// routes the revision loop.
func (e *Executor) runGrading(ctx context.Context, order *core.Order, spec phaseSpec) (*AdvanceResult, error) {
	material, err := e.promptContext(ctx, order, core.PhaseGrading)
	if err != nil {
		return nil, err
	}

	result, err := e.gateway.Complete(ctx, order.ID, core.ModelRequest{
		Model:             spec.modelFor(order.Tier),
		System:            systemPrompts[core.PhaseGrading],
		Prompt:            material,
		ExtendedReasoning: spec.extendedFor(order.Tier),
	})
	if err != nil {
		return nil, err
	}

	grade, err := ParseGrade(result.Text)
	if err != nil {
		return e.handleInvalidPayload(ctx, order, err)
	}
	if err := e.store.ResetValidationFailures(ctx, order.ID); err != nil {
		return nil, err
	}

	loop := order.RevisionCount + 1
	grade.OrderID = order.ID
	grade.Loop = loop
	grade.CreatedAt = e.clock()

	var prev *core.LoopGrade
	if loop > 1 {
		if p, err := e.store.GetLoopGrade(ctx, order.ID, loop-1); err == nil {
			prev = p
		}
	}
	report := CheckConsistency(prev, grade)
	if report.Adjusted {
		e.logger.Warn("grade adjusted by consistency lock",
			"order_id", order.ID,
			"loop", loop,
			"reported", grade.OverallScore,
			"adjusted", report.AdjustedScore,
			"hard_fails", len(report.HardFails))
		grade.OverallScore = report.AdjustedScore
	}
	for _, w := range report.Warnings {
		e.logger.Warn("grade consistency warning", "order_id", order.ID, "loop", loop, "warning", w)
	}

	if err := e.store.SaveLoopGrade(ctx, grade); err != nil {
		return nil, err
	}

	out := e.newOutput(order, core.PhaseCompleted, result)
	out.Payload, _ = json.Marshal(grade)

	passed := grade.Passed()
	switch {
	case order.RevisionCount >= core.MaxRevisionLoops:
		// Loop budget spent: deliver regardless, disclosing a miss.
		metrics.RevisionLoops.WithLabelValues("bounded_exit").Inc()
		if !passed {
			disclosure := fmt.Sprintf(boundedExitDisclosureFmt, order.RevisionCount)
			out.Disclosure = disclosure
			if err := e.store.SetDisclosure(ctx, order.ID, disclosure); err != nil {
				return nil, err
			}
			order.Disclosure = disclosure
		}
		e.logger.Info("revision loop exhausted, forcing assembly",
			"order_id", order.ID, "loop", loop, "score", grade.OverallScore, "passed", passed)
		return e.commit(ctx, order, out, CondBoundedExit)

	case passed:
		metrics.RevisionLoops.WithLabelValues("pass").Inc()
		return e.commit(ctx, order, out, CondPass)

	default:
		inc, err := e.store.IncrementRevisionCount(ctx, order.ID)
		if err != nil {
			return nil, err
		}
		order.RevisionCount = inc.Count
		metrics.RevisionLoops.WithLabelValues("fail").Inc()
		e.logger.Info("grade below threshold, entering revision",
			"order_id", order.ID, "loop", loop, "score", grade.OverallScore, "revision", inc.Count)
		return e.commit(ctx, order, out, CondFail)
	}
}

// ResolveGate applies a human decision on the client-review gate and
// moves the order accordingly.
func (e *Executor) ResolveGate(ctx context.Context, orderID core.OrderID, checkpointID string, decision core.Resolution) (*AdvanceResult, error) {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.CurrentPhase != core.PhaseClientReviewGate {
		return nil, core.ErrConflict("NOT_GATED", fmt.Sprintf("order %s is in phase %s", orderID, order.CurrentPhase))
	}

	if _, err := e.checkpoints.Resolve(ctx, checkpointID, checkpoint.Resolution{Decision: decision}); err != nil {
		return nil, err
	}

	switch decision {
	case core.ResolutionApproved:
		return e.moveTo(ctx, order, core.PhaseAssembly)
	case core.ResolutionRevise:
		inc, err := e.store.IncrementRevisionCount(ctx, orderID)
		if err != nil {
			return nil, err
		}
		order.RevisionCount = inc.Count
		return e.moveTo(ctx, order, core.PhaseRevision)
	case core.ResolutionCancelled:
		if err := e.store.TransitionOrder(ctx, orderID, order.Status, order.CurrentPhase,
			core.StatusCancelledUser, order.CurrentPhase); err != nil {
			return nil, err
		}
		return &AdvanceResult{Phase: order.CurrentPhase, Terminal: true}, nil
	default:
		return nil, core.ErrValidation("RESOLUTION", fmt.Sprintf("decision %q not valid for the review gate", decision))
	}
}

// ReleaseHold moves an on-hold order back into its current phase after
// the hold checkpoint resolves with the missing information.
func (e *Executor) ReleaseHold(ctx context.Context, orderID core.OrderID) error {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if order.Status != core.StatusOnHold {
		return core.ErrConflict("NOT_HELD", fmt.Sprintf("order %s is %s", orderID, order.Status))
	}
	spec, ok := phaseSpecs[order.CurrentPhase]
	if !ok {
		return core.ErrState("NO_SPEC", fmt.Sprintf("phase %s has no routing spec", order.CurrentPhase))
	}
	return e.store.TransitionOrder(ctx, orderID, order.Status, order.CurrentPhase, spec.Status, order.CurrentPhase)
}

// Approve marks an awaiting-approval order completed.
func (e *Executor) Approve(ctx context.Context, orderID core.OrderID) error {
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return err
	}
	return e.store.TransitionOrder(ctx, orderID, order.Status, order.CurrentPhase,
		core.StatusCompleted, order.CurrentPhase)
}

// handleInvalidPayload books one schema failure and opens a hold after
// the third consecutive one.
func (e *Executor) handleInvalidPayload(ctx context.Context, order *core.Order, cause error) (*AdvanceResult, error) {
	fails, err := e.store.BumpValidationFailures(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	e.logger.Warn("phase payload rejected",
		"order_id", order.ID,
		"phase", order.CurrentPhase,
		"consecutive_failures", fails,
		"error", cause)

	if fails < maxValidationFailures {
		return nil, cause
	}

	if err := e.store.ResetValidationFailures(ctx, order.ID); err != nil {
		return nil, err
	}
	res, holdErr := e.parkOnHold(ctx, order,
		fmt.Sprintf("phase %s produced %d consecutive invalid payloads", order.CurrentPhase, fails))
	if holdErr != nil {
		return nil, holdErr
	}
	return res, nil
}

// parkOnHold opens a HOLD checkpoint and moves the order on hold.
func (e *Executor) parkOnHold(ctx context.Context, order *core.Order, reason string) (*AdvanceResult, error) {
	if _, err := e.checkpoints.Declare(ctx, order, order.CurrentPhase, core.CheckpointHold, reason); err != nil {
		return nil, err
	}
	if err := e.store.TransitionOrder(ctx, order.ID, order.Status, order.CurrentPhase,
		core.StatusOnHold, order.CurrentPhase); err != nil {
		return nil, err
	}
	return &AdvanceResult{Phase: order.CurrentPhase, Held: true}, nil
}

// commit persists the phase output, then the order transition. The
// order row is authoritative; an output whose transition never landed
// is replayed on resume.
func (e *Executor) commit(ctx context.Context, order *core.Order, out *core.PhaseOutput, cond Condition) (*AdvanceResult, error) {
	next, err := NextPhase(order.CurrentPhase, cond)
	if err != nil {
		return nil, err
	}
	if err := e.store.SavePhaseOutput(ctx, out); err != nil {
		return nil, err
	}

	res, err := e.moveTo(ctx, order, next)
	if err != nil {
		return nil, err
	}
	res.Output = out
	return res, nil
}

// moveTo transitions the order into a phase (or done) and reports the
// step.
func (e *Executor) moveTo(ctx context.Context, order *core.Order, next core.Phase) (*AdvanceResult, error) {
	toStatus := core.StatusAwaitingApproval
	if next != core.PhaseDone {
		spec, ok := phaseSpecs[next]
		if !ok {
			return nil, core.ErrState("NO_SPEC", fmt.Sprintf("phase %s has no routing spec", next))
		}
		toStatus = spec.Status
	}

	if err := e.store.TransitionOrder(ctx, order.ID, order.Status, order.CurrentPhase, toStatus, next); err != nil {
		return nil, err
	}
	e.logger.Info("phase advanced",
		"order_id", order.ID,
		"from", string(order.CurrentPhase),
		"to", string(next),
		"status", string(toStatus))

	order.CurrentPhase = next
	order.Status = toStatus
	return &AdvanceResult{
		Phase:    order.CurrentPhase,
		Next:     next,
		Terminal: next == core.PhaseDone,
	}, nil
}

// newOutput builds the base phase output record.
func (e *Executor) newOutput(order *core.Order, status core.PhaseStatus, result *core.ModelResult) *core.PhaseOutput {
	out := &core.PhaseOutput{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Phase:     order.CurrentPhase,
		Tier:      order.Tier,
		Status:    status,
		CreatedAt: e.clock(),
	}
	if result != nil {
		out.Model = result.Model
		out.TokensIn = result.TokensIn
		out.TokensOut = result.TokensOut
		out.CostUSD = result.CostUSD
	}
	return out
}

func payloadNote(p payload) string {
	type noted interface{ note() string }
	if n, ok := p.(noted); ok {
		return n.note()
	}
	b, _ := json.Marshal(p)
	return string(b)
}

// verificationSummary renders pipeline results as the phase payload.
func verificationSummary(results []*core.VerificationResult) json.RawMessage {
	counts := make(map[core.Classification]int)
	for _, r := range results {
		counts[r.Classification]++
	}
	b, _ := json.Marshal(map[string]any{
		"status":   "completed",
		"verified": len(results),
		"outcomes": counts,
	})
	return b
}
