package state

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/motiongranted/draftengine/internal/core"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "orders.db")
	s, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedOrder(t *testing.T, s *SQLiteStore, id core.OrderID) *core.Order {
	t.Helper()
	o := core.NewOrder(id, core.TierB, core.MotionTypeStandard)
	if err := s.CreateOrder(context.Background(), o); err != nil {
		t.Fatalf("CreateOrder() error = %v", err)
	}
	return o
}

func TestSQLiteStore_MigrateIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "orders.db")

	s1, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("first open error = %v", err)
	}
	seedOrder(t, s1, "ord-1")
	if err := s1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	s2, err := NewSQLiteStore(dbPath)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer func() { _ = s2.Close() }()

	got, err := s2.GetOrder(context.Background(), "ord-1")
	if err != nil {
		t.Fatalf("GetOrder() after reopen error = %v", err)
	}
	if got.Tier != core.TierB {
		t.Errorf("Tier = %q, want %q", got.Tier, core.TierB)
	}
}

func TestSQLiteStore_OrderRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := seedOrder(t, s, "ord-1")

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if got.Status != core.StatusDraftPending {
		t.Errorf("Status = %q, want %q", got.Status, core.StatusDraftPending)
	}
	if got.CurrentPhase != core.PhaseIntakeAnalysis {
		t.Errorf("CurrentPhase = %q, want %q", got.CurrentPhase, core.PhaseIntakeAnalysis)
	}
	if got.CreatedAt.IsZero() || got.LastActivityAt.IsZero() {
		t.Error("timestamps not persisted")
	}

	if err := s.CreateOrder(ctx, o); !core.IsConflict(err) {
		t.Errorf("duplicate CreateOrder() error = %v, want conflict", err)
	}

	if _, err := s.GetOrder(ctx, "missing"); !core.IsNotFound(err) {
		t.Errorf("GetOrder(missing) error = %v, want not found", err)
	}
}

func TestSQLiteStore_TransitionOrderGuards(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	err := s.TransitionOrder(ctx, o.ID, core.StatusDraftPending, core.PhaseIntakeAnalysis,
		core.StatusIntakeReview, core.PhaseIntakeAnalysis)
	if err != nil {
		t.Fatalf("valid transition error = %v", err)
	}

	// Stale guard: the order already left draft_pending.
	err = s.TransitionOrder(ctx, o.ID, core.StatusDraftPending, core.PhaseIntakeAnalysis,
		core.StatusIntakeReview, core.PhaseIntakeAnalysis)
	if !core.IsConflict(err) {
		t.Errorf("stale guard error = %v, want conflict", err)
	}

	// Adjacency violation rejected before touching the row.
	err = s.TransitionOrder(ctx, o.ID, core.StatusIntakeReview, core.PhaseIntakeAnalysis,
		core.StatusCompleted, core.PhaseIntakeAnalysis)
	if !core.IsConflict(err) {
		t.Errorf("invalid transition error = %v, want conflict", err)
	}

	// Phase moves within the same status skip adjacency validation.
	err = s.TransitionOrder(ctx, o.ID, core.StatusIntakeReview, core.PhaseIntakeAnalysis,
		core.StatusIntakeReview, core.PhaseDocumentSummaries)
	if err != nil {
		t.Fatalf("same-status phase move error = %v", err)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if got.CurrentPhase != core.PhaseDocumentSummaries {
		t.Errorf("CurrentPhase = %q, want %q", got.CurrentPhase, core.PhaseDocumentSummaries)
	}
}

func TestSQLiteStore_ConcurrentRevisionIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.IncrementRevisionCount(ctx, o.ID); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("IncrementRevisionCount() error = %v", err)
	}

	got, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if got.RevisionCount != n {
		t.Errorf("RevisionCount = %d, want %d (lost updates)", got.RevisionCount, n)
	}
}

func TestSQLiteStore_RevisionIncrementSignalsBoundedExit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	for i := 1; i <= core.MaxRevisionLoops; i++ {
		res, err := s.IncrementRevisionCount(ctx, o.ID)
		if err != nil {
			t.Fatalf("IncrementRevisionCount() error = %v", err)
		}
		if res.Count != i {
			t.Errorf("Count = %d, want %d", res.Count, i)
		}
		wantExit := i >= core.MaxRevisionLoops
		if res.TriggeredBoundedExit != wantExit {
			t.Errorf("increment %d: TriggeredBoundedExit = %v, want %v", i, res.TriggeredBoundedExit, wantExit)
		}
	}
}

func TestSQLiteStore_ValidationFailureCounter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	for want := 1; want <= 3; want++ {
		got, err := s.BumpValidationFailures(ctx, o.ID)
		if err != nil {
			t.Fatalf("BumpValidationFailures() error = %v", err)
		}
		if got != want {
			t.Errorf("count = %d, want %d", got, want)
		}
	}

	if err := s.ResetValidationFailures(ctx, o.ID); err != nil {
		t.Fatalf("ResetValidationFailures() error = %v", err)
	}
	got, err := s.BumpValidationFailures(ctx, o.ID)
	if err != nil {
		t.Fatalf("BumpValidationFailures() after reset error = %v", err)
	}
	if got != 1 {
		t.Errorf("count after reset = %d, want 1", got)
	}
}

func TestSQLiteStore_AddOrderCostAccumulates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	if _, err := s.AddOrderCost(ctx, o.ID, 0.25); err != nil {
		t.Fatalf("AddOrderCost() error = %v", err)
	}
	total, err := s.AddOrderCost(ctx, o.ID, 0.50)
	if err != nil {
		t.Fatalf("AddOrderCost() error = %v", err)
	}
	if total < 0.74 || total > 0.76 {
		t.Errorf("total = %v, want 0.75", total)
	}
}

func TestSQLiteStore_PhaseOutputs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	base := time.Now().Add(-time.Minute)
	for i, phase := range []core.Phase{core.PhaseIntakeAnalysis, core.PhaseLegalResearch, core.PhaseLegalResearch} {
		out := &core.PhaseOutput{
			ID:        uuid.NewString(),
			OrderID:   o.ID,
			Phase:     phase,
			Tier:      o.Tier,
			Status:    core.PhaseCompleted,
			Payload:   []byte(`{"notes":"n"}`),
			Model:     "gpt-5.2",
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		}
		if err := s.SavePhaseOutput(ctx, out); err != nil {
			t.Fatalf("SavePhaseOutput() error = %v", err)
		}
	}

	all, err := s.ListPhaseOutputs(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListPhaseOutputs() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("len = %d, want 3", len(all))
	}
	if all[0].Phase != core.PhaseIntakeAnalysis {
		t.Errorf("first output phase = %q, want intake", all[0].Phase)
	}

	latest, err := s.LatestPhaseOutput(ctx, o.ID, core.PhaseLegalResearch)
	if err != nil {
		t.Fatalf("LatestPhaseOutput() error = %v", err)
	}
	if !latest.CreatedAt.After(all[1].CreatedAt.Add(-time.Millisecond)) {
		t.Errorf("latest output is not the most recent: %v", latest.CreatedAt)
	}

	if _, err := s.LatestPhaseOutput(ctx, o.ID, core.PhaseGrading); !core.IsNotFound(err) {
		t.Errorf("missing phase error = %v, want not found", err)
	}
}

func TestSQLiteStore_CitationBankUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	first := []core.UniqueCitation{
		{Text: "Anderson v. Liberty Lobby, Inc., 477 U.S. 242 (1986)", Type: core.CiteFullCase, Source: core.SourceBank, Occurrences: 1, Complete: true},
		{Text: "Fed. R. Civ. P. 56", Type: core.CiteStatute, Source: core.SourceBank, Occurrences: 2, FormatWarnings: []string{"abbreviation style"}},
	}
	if err := s.SaveCitations(ctx, o.ID, first); err != nil {
		t.Fatalf("SaveCitations() error = %v", err)
	}
	// Re-banking the same citation merges occurrence counts.
	if err := s.SaveCitations(ctx, o.ID, first[:1]); err != nil {
		t.Fatalf("SaveCitations() upsert error = %v", err)
	}

	got, err := s.ListCitations(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListCitations() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].Occurrences != 2 {
		t.Errorf("Occurrences = %d, want 2", got[0].Occurrences)
	}
	if len(got[1].FormatWarnings) != 1 || got[1].FormatWarnings[0] != "abbreviation style" {
		t.Errorf("FormatWarnings = %v", got[1].FormatWarnings)
	}
}

func TestSQLiteStore_StatutesDeduplicate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	if err := s.SaveStatutes(ctx, o.ID, []string{"28 U.S.C. § 1331", "Fed. R. Civ. P. 56"}); err != nil {
		t.Fatalf("SaveStatutes() error = %v", err)
	}
	if err := s.SaveStatutes(ctx, o.ID, []string{"28 U.S.C. § 1331"}); err != nil {
		t.Fatalf("SaveStatutes() repeat error = %v", err)
	}

	got, err := s.ListStatutes(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListStatutes() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("len = %d, want 2", len(got))
	}
}

func TestSQLiteStore_VerificationsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	res := &core.VerificationResult{
		OrderID:        o.ID,
		Citation:       "Celotex Corp. v. Catrett, 477 U.S. 317 (1986)",
		Confidence:     0.94,
		Stage:          core.StageAdversarial,
		Classification: core.ClassVerified,
		Stage1Model:    "gpt-5.2",
		Stage1Finding:  "holding supported",
		Stage2Model:    "claude-opus-4-5",
		Stage2Finding:  "concur",
	}
	if err := s.SaveVerification(ctx, res); err != nil {
		t.Fatalf("SaveVerification() error = %v", err)
	}

	got, err := s.ListVerifications(ctx, o.ID)
	if err != nil {
		t.Fatalf("ListVerifications() error = %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if got[0].Stage != core.StageAdversarial || got[0].Classification != core.ClassVerified {
		t.Errorf("round trip mismatch: %+v", got[0])
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not defaulted on save")
	}
}

func TestSQLiteStore_LoopGradeUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	g := &core.LoopGrade{
		OrderID:      o.ID,
		Loop:         1,
		OverallScore: 3.1,
		Sections: []core.SectionGrade{
			{Name: "argument", Score: 3.0, AuthorityAdequate: false},
		},
	}
	if err := s.SaveLoopGrade(ctx, g); err != nil {
		t.Fatalf("SaveLoopGrade() error = %v", err)
	}

	g.OverallScore = 3.4
	if err := s.SaveLoopGrade(ctx, g); err != nil {
		t.Fatalf("SaveLoopGrade() upsert error = %v", err)
	}

	got, err := s.GetLoopGrade(ctx, o.ID, 1)
	if err != nil {
		t.Fatalf("GetLoopGrade() error = %v", err)
	}
	if got.OverallScore != 3.4 {
		t.Errorf("OverallScore = %v, want 3.4", got.OverallScore)
	}
	if len(got.Sections) != 1 || got.Sections[0].Name != "argument" {
		t.Errorf("Sections = %+v", got.Sections)
	}

	if _, err := s.GetLoopGrade(ctx, o.ID, 2); !core.IsNotFound(err) {
		t.Errorf("missing loop error = %v, want not found", err)
	}
}

func TestSQLiteStore_CheckpointResolveOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	cp := &core.Checkpoint{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Type:      core.CheckpointBlocking,
		Phase:     core.PhaseClientReviewGate,
		Status:    core.CheckpointPending,
		Message:   "draft ready for review",
		CreatedAt: time.Now(),
	}
	if err := s.CreateCheckpoint(ctx, cp); err != nil {
		t.Fatalf("CreateCheckpoint() error = %v", err)
	}

	pending, err := s.PendingCheckpoints(ctx, o.ID)
	if err != nil {
		t.Fatalf("PendingCheckpoints() error = %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending = %d, want 1", len(pending))
	}

	if err := s.ResolveCheckpoint(ctx, cp.ID, core.ResolutionApproved); err != nil {
		t.Fatalf("ResolveCheckpoint() error = %v", err)
	}
	// Replayed resolutions must surface as conflicts, not silent success.
	if err := s.ResolveCheckpoint(ctx, cp.ID, core.ResolutionApproved); !core.IsConflict(err) {
		t.Errorf("second resolve error = %v, want conflict", err)
	}

	got, err := s.GetCheckpoint(ctx, cp.ID)
	if err != nil {
		t.Fatalf("GetCheckpoint() error = %v", err)
	}
	if got.Status != core.CheckpointResolved || got.Resolution != core.ResolutionApproved {
		t.Errorf("checkpoint after resolve: status=%q resolution=%q", got.Status, got.Resolution)
	}
	if got.ResolvedAt == nil {
		t.Error("ResolvedAt not set")
	}
}

func TestSQLiteStore_PendingHoldsDueRungs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	created := time.Now().Add(-25 * time.Hour)
	cp := &core.Checkpoint{
		ID:           uuid.NewString(),
		OrderID:      o.ID,
		Type:         core.CheckpointHold,
		Phase:        core.PhaseIntakeAnalysis,
		Status:       core.CheckpointPending,
		Message:      "missing filings",
		CreatedAt:    created,
		ReminderAt:   created.Add(24 * time.Hour),
		EscalationAt: created.Add(72 * time.Hour),
		FinalAt:      created.Add(7 * 24 * time.Hour),
	}
	if err := s.CreateCheckpoint(ctx, cp); err != nil {
		t.Fatalf("CreateCheckpoint() error = %v", err)
	}

	due, err := s.PendingHoldsDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("PendingHoldsDue() error = %v", err)
	}
	if len(due) != 1 {
		t.Fatalf("due before reminder mark = %d, want 1", len(due))
	}

	if err := s.MarkCheckpointNotice(ctx, cp.ID, true, false); err != nil {
		t.Fatalf("MarkCheckpointNotice() error = %v", err)
	}
	due, err = s.PendingHoldsDue(ctx, time.Now())
	if err != nil {
		t.Fatalf("PendingHoldsDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due after reminder mark = %d, want 0", len(due))
	}

	// Past the final deadline the hold stays due until resolved, sent
	// flags or not.
	due, err = s.PendingHoldsDue(ctx, created.Add(8*24*time.Hour))
	if err != nil {
		t.Fatalf("PendingHoldsDue() error = %v", err)
	}
	if len(due) != 1 {
		t.Errorf("due past final = %d, want 1", len(due))
	}

	if err := s.ResolveCheckpoint(ctx, cp.ID, core.ResolutionInfoGiven); err != nil {
		t.Fatalf("ResolveCheckpoint() error = %v", err)
	}
	due, err = s.PendingHoldsDue(ctx, created.Add(8*24*time.Hour))
	if err != nil {
		t.Fatalf("PendingHoldsDue() error = %v", err)
	}
	if len(due) != 0 {
		t.Errorf("due after resolution = %d, want 0", len(due))
	}
}

func TestSQLiteStore_RefundLockIsExclusive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	o := seedOrder(t, s, "ord-1")

	if err := s.AcquireRefundLock(ctx, o.ID); err != nil {
		t.Fatalf("AcquireRefundLock() error = %v", err)
	}
	if err := s.AcquireRefundLock(ctx, o.ID); !core.IsConflict(err) {
		t.Errorf("second acquire error = %v, want conflict", err)
	}
	if err := s.ReleaseRefundLock(ctx, o.ID); err != nil {
		t.Fatalf("ReleaseRefundLock() error = %v", err)
	}
	if err := s.AcquireRefundLock(ctx, o.ID); err != nil {
		t.Errorf("acquire after release error = %v", err)
	}
}

func TestSQLiteStore_MeteredLookups(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	used, err := s.MeteredLookupsUsed(ctx, "2026-08")
	if err != nil {
		t.Fatalf("MeteredLookupsUsed() error = %v", err)
	}
	if used != 0 {
		t.Errorf("fresh month used = %d, want 0", used)
	}

	for i := 0; i < 3; i++ {
		if err := s.RecordMeteredLookup(ctx, "2026-08"); err != nil {
			t.Fatalf("RecordMeteredLookup() error = %v", err)
		}
	}
	if err := s.RecordMeteredLookup(ctx, "2026-09"); err != nil {
		t.Fatalf("RecordMeteredLookup() error = %v", err)
	}

	used, err = s.MeteredLookupsUsed(ctx, "2026-08")
	if err != nil {
		t.Fatalf("MeteredLookupsUsed() error = %v", err)
	}
	if used != 3 {
		t.Errorf("used = %d, want 3", used)
	}
}

func TestSQLiteStore_StaleQueries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := seedOrder(t, s, "ord-stale")
	fresh := seedOrder(t, s, "ord-fresh")
	for _, o := range []*core.Order{stale, fresh} {
		for _, status := range []core.OrderStatus{core.StatusIntakeReview, core.StatusInProduction, core.StatusAwaitingApproval} {
			prev, err := s.GetOrder(ctx, o.ID)
			if err != nil {
				t.Fatalf("GetOrder() error = %v", err)
			}
			if err := s.TransitionOrder(ctx, o.ID, prev.Status, prev.CurrentPhase, status, prev.CurrentPhase); err != nil {
				t.Fatalf("TransitionOrder(%s) error = %v", status, err)
			}
		}
	}

	// Both orders just moved, so neither looks abandoned yet.
	got, err := s.StaleApprovals(ctx, time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("StaleApprovals() error = %v", err)
	}
	if len(got) != 0 {
		t.Errorf("stale approvals = %d, want 0", len(got))
	}
	got, err = s.StaleApprovals(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("StaleApprovals() error = %v", err)
	}
	if len(got) != 2 {
		t.Errorf("stale approvals = %d, want 2", len(got))
	}

	if err := s.AcquireRefundLock(ctx, stale.ID); err != nil {
		t.Fatalf("AcquireRefundLock() error = %v", err)
	}
	locked, err := s.StaleRefundLocks(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleRefundLocks() error = %v", err)
	}
	if len(locked) != 1 || locked[0].ID != stale.ID {
		t.Errorf("stale refund locks = %+v", locked)
	}
	locked, err = s.StaleRefundLocks(ctx, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatalf("StaleRefundLocks() error = %v", err)
	}
	if len(locked) != 0 {
		t.Errorf("recent refund locks reported stale: %+v", locked)
	}
}

func TestSQLiteStore_StaleRefundLocksSkipSettledOrders(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	o := seedOrder(t, s, "ord-refund")
	for _, status := range []core.OrderStatus{core.StatusIntakeReview, core.StatusInProduction, core.StatusRefundInProgress} {
		prev, err := s.GetOrder(ctx, o.ID)
		if err != nil {
			t.Fatalf("GetOrder() error = %v", err)
		}
		if err := s.TransitionOrder(ctx, o.ID, prev.Status, prev.CurrentPhase, status, prev.CurrentPhase); err != nil {
			t.Fatalf("TransitionOrder(%s) error = %v", status, err)
		}
	}
	if err := s.AcquireRefundLock(ctx, o.ID); err != nil {
		t.Fatalf("AcquireRefundLock() error = %v", err)
	}

	// A refund still in progress past the cutoff is the anomaly.
	locked, err := s.StaleRefundLocks(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleRefundLocks() error = %v", err)
	}
	if len(locked) != 1 || locked[0].ID != o.ID {
		t.Errorf("stale refund locks = %+v, want ord-refund", locked)
	}

	// Once the refund settles, a lingering lock row is not an anomaly.
	prev, err := s.GetOrder(ctx, o.ID)
	if err != nil {
		t.Fatalf("GetOrder() error = %v", err)
	}
	if err := s.TransitionOrder(ctx, o.ID, prev.Status, prev.CurrentPhase, core.StatusRefunded, prev.CurrentPhase); err != nil {
		t.Fatalf("TransitionOrder(refunded) error = %v", err)
	}
	locked, err = s.StaleRefundLocks(ctx, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("StaleRefundLocks() error = %v", err)
	}
	if len(locked) != 0 {
		t.Errorf("settled order reported stale: %+v", locked)
	}
}
