package checkpoint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/testutil"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func holdOrder(t *testing.T, store *testutil.MemStore) *core.Order {
	t.Helper()
	o := core.NewOrder("ord-1", core.TierB, core.MotionTypeStandard)
	o.Status = core.StatusOnHold
	o.CurrentPhase = core.PhaseIntakeAnalysis
	require.NoError(t, store.CreateOrder(context.Background(), o))
	return o
}

func TestDeclareHoldSetsLadderDeadlines(t *testing.T) {
	store := testutil.NewMemStore()
	notifier := &testutil.MemNotifier{}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	m := NewManager(store, notifier, logging.NewNop()).WithClock(fixedClock(now))
	o := holdOrder(t, store)

	cp, err := m.Declare(context.Background(), o, core.PhaseIntakeAnalysis, core.CheckpointHold, "missing exhibits")
	require.NoError(t, err)

	assert.Equal(t, now.Add(24*time.Hour), cp.ReminderAt)
	assert.Equal(t, now.Add(72*time.Hour), cp.EscalationAt)
	assert.Equal(t, now.Add(7*24*time.Hour), cp.FinalAt)
	assert.Len(t, notifier.ByTemplate("order_on_hold"), 1)

	stored, err := store.GetCheckpoint(context.Background(), cp.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CheckpointPending, stored.Status)
}

func TestDeclareNotificationHasNoDeadlines(t *testing.T) {
	store := testutil.NewMemStore()
	m := NewManager(store, &testutil.MemNotifier{}, logging.NewNop())
	o := holdOrder(t, store)

	cp, err := m.Declare(context.Background(), o, core.PhaseOutline, core.CheckpointNotification, "outline ready")
	require.NoError(t, err)
	assert.True(t, cp.ReminderAt.IsZero())
	assert.False(t, cp.Blocking())
}

func TestResolveTwiceIsConflict(t *testing.T) {
	store := testutil.NewMemStore()
	m := NewManager(store, &testutil.MemNotifier{}, logging.NewNop())
	o := holdOrder(t, store)

	cp, err := m.Declare(context.Background(), o, core.PhaseClientReviewGate, core.CheckpointBlocking, "review draft")
	require.NoError(t, err)

	_, err = m.Resolve(context.Background(), cp.ID, Resolution{Decision: core.ResolutionApproved})
	require.NoError(t, err)

	_, err = m.Resolve(context.Background(), cp.ID, Resolution{Decision: core.ResolutionApproved})
	require.Error(t, err)
	assert.True(t, core.IsConflict(err))
}

func TestResolveRejectsDecisionOutsideTypeSet(t *testing.T) {
	store := testutil.NewMemStore()
	m := NewManager(store, &testutil.MemNotifier{}, logging.NewNop())
	o := holdOrder(t, store)

	cp, err := m.Declare(context.Background(), o, core.PhaseIntakeAnalysis, core.CheckpointHold, "missing info")
	require.NoError(t, err)

	_, err = m.Resolve(context.Background(), cp.ID, Resolution{Decision: core.ResolutionRevise})
	require.Error(t, err)

	// The checkpoint stays pending for a valid decision.
	_, err = m.Resolve(context.Background(), cp.ID, Resolution{Decision: core.ResolutionInfoGiven})
	require.NoError(t, err)
}

func TestEscalationLadderFiresEachRungOnce(t *testing.T) {
	store := testutil.NewMemStore()
	notifier := &testutil.MemNotifier{}
	alerter := &testutil.MemAlerter{}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	m := NewManager(store, notifier, logging.NewNop()).WithClock(fixedClock(start))
	o := holdOrder(t, store)
	cp, err := m.Declare(context.Background(), o, core.PhaseIntakeAnalysis, core.CheckpointHold, "missing exhibits")
	require.NoError(t, err)

	esc := NewEscalator(m, alerter)

	// Before the reminder deadline nothing fires.
	m.WithClock(fixedClock(start.Add(12 * time.Hour)))
	require.NoError(t, esc.ProcessDue(context.Background()))
	assert.Empty(t, notifier.ByTemplate("hold_reminder"))

	// Past 24h the reminder fires, and only once.
	m.WithClock(fixedClock(start.Add(25 * time.Hour)))
	require.NoError(t, esc.ProcessDue(context.Background()))
	require.NoError(t, esc.ProcessDue(context.Background()))
	assert.Len(t, notifier.ByTemplate("hold_reminder"), 1)

	// Past 72h the operator escalation fires.
	m.WithClock(fixedClock(start.Add(73 * time.Hour)))
	require.NoError(t, esc.ProcessDue(context.Background()))
	assert.Equal(t, 1, alerter.Count())

	// Past the final deadline the hold auto-resolves to a refund.
	m.WithClock(fixedClock(start.Add(8 * 24 * time.Hour)))
	require.NoError(t, esc.ProcessDue(context.Background()))

	resolved, err := store.GetCheckpoint(context.Background(), cp.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CheckpointResolved, resolved.Status)
	assert.Equal(t, core.ResolutionAutoRefund, resolved.Resolution)

	got, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusRefundInProgress, got.Status)
	assert.Len(t, notifier.ByTemplate("hold_expired_refund"), 1)
}

func TestAutoResolveSkipsOrderThatLeftHold(t *testing.T) {
	store := testutil.NewMemStore()
	notifier := &testutil.MemNotifier{}
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	m := NewManager(store, notifier, logging.NewNop()).WithClock(fixedClock(start))
	o := holdOrder(t, store)
	_, err := m.Declare(context.Background(), o, core.PhaseIntakeAnalysis, core.CheckpointHold, "missing exhibits")
	require.NoError(t, err)

	// An operator moved the order off hold before the deadline hit.
	require.NoError(t, store.TransitionOrder(context.Background(), o.ID,
		core.StatusOnHold, core.PhaseIntakeAnalysis,
		core.StatusInProduction, core.PhaseDocumentSummaries))

	m.WithClock(fixedClock(start.Add(8 * 24 * time.Hour)))
	esc := NewEscalator(m, &testutil.MemAlerter{})
	require.NoError(t, esc.ProcessDue(context.Background()))

	got, err := store.GetOrder(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusInProduction, got.Status)
	assert.Empty(t, notifier.ByTemplate("hold_expired_refund"))
}

func TestSweepAlertsOnStaleState(t *testing.T) {
	store := testutil.NewMemStore()
	alerter := &testutil.MemAlerter{}
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	// A hold pending for three weeks.
	store.Checkpoints["cp-old"] = &core.Checkpoint{
		ID:        "cp-old",
		OrderID:   "ord-hold",
		Type:      core.CheckpointHold,
		Status:    core.CheckpointPending,
		CreatedAt: now.Add(-21 * 24 * time.Hour),
	}

	// An approval idle for two weeks.
	stale := core.NewOrder("ord-stale", core.TierA, core.MotionTypeStandard)
	stale.Status = core.StatusAwaitingApproval
	stale.LastActivityAt = now.Add(-14 * 24 * time.Hour)
	store.Orders[stale.ID] = stale

	// A refund lock held past the crash window.
	locked := core.NewOrder("ord-locked", core.TierA, core.MotionTypeStandard)
	locked.Status = core.StatusRefundInProgress
	store.Orders[locked.ID] = locked
	store.RefundLocks[locked.ID] = now.Add(-2 * time.Hour)

	s := NewSweep(store, alerter, logging.NewNop()).WithClock(fixedClock(now))
	require.NoError(t, s.Run(context.Background()))

	keys := make(map[string]bool)
	for _, a := range alerter.Alerts {
		keys[a.Key] = true
	}
	assert.True(t, keys["stale_hold:ord-hold"])
	assert.True(t, keys["stale_approval:ord-stale"])
	assert.True(t, keys["stale_refund_lock:ord-locked"])

	// The lock is released; the hold and approval are untouched.
	_, held := store.RefundLocks[locked.ID]
	assert.False(t, held)
	cp, err := store.GetCheckpoint(context.Background(), "cp-old")
	require.NoError(t, err)
	assert.Equal(t, core.CheckpointPending, cp.Status)
	got, err := store.GetOrder(context.Background(), stale.ID)
	require.NoError(t, err)
	assert.Equal(t, core.StatusAwaitingApproval, got.Status)
}

type panickyStore struct {
	*testutil.MemStore
}

func (p *panickyStore) StaleHolds(ctx context.Context, olderThan time.Time) ([]*core.Checkpoint, error) {
	panic("boom")
}

func TestSweepIsolatesPanickingCheck(t *testing.T) {
	mem := testutil.NewMemStore()
	now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	stale := core.NewOrder("ord-stale", core.TierA, core.MotionTypeStandard)
	stale.Status = core.StatusAwaitingApproval
	stale.LastActivityAt = now.Add(-14 * 24 * time.Hour)
	mem.Orders[stale.ID] = stale

	alerter := &testutil.MemAlerter{}
	s := NewSweep(&panickyStore{mem}, alerter, logging.NewNop()).WithClock(fixedClock(now))
	require.NoError(t, s.Run(context.Background()))

	// The panicking hold check did not stop the approval check.
	require.Equal(t, 1, alerter.Count())
	assert.Equal(t, "stale_approval:ord-stale", alerter.Alerts[0].Key)
}

func TestThrottledAlerterCooldown(t *testing.T) {
	notifier := &testutil.MemNotifier{}
	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	now := start

	a := NewThrottledAlerter(notifier, logging.NewNop()).
		WithCooldown(10 * time.Minute).
		WithClock(func() time.Time { return now })

	a.Alert(context.Background(), "k1", "first", nil)
	a.Alert(context.Background(), "k1", "suppressed", nil)
	a.Alert(context.Background(), "k2", "other key", nil)
	assert.Len(t, notifier.Sent, 2)

	now = start.Add(11 * time.Minute)
	a.Alert(context.Background(), "k1", "after cooldown", nil)
	assert.Len(t, notifier.Sent, 3)
}
