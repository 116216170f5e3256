// Package checkpoint manages human gates on the order pipeline:
// declaration, resolution, the HOLD escalation ladder, and the
// periodic recovery sweep over stuck state.
package checkpoint

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
)

// Ladder deadlines for HOLD checkpoints, measured from creation.
const (
	HoldReminderAfter   = 24 * time.Hour
	HoldEscalationAfter = 72 * time.Hour
	HoldFinalAfter      = 7 * 24 * time.Hour
)

// Manager declares and resolves checkpoints. All state lives in the
// store; the manager itself carries no order state across calls.
type Manager struct {
	store    core.Store
	notifier core.Notifier
	logger   *logging.Logger
	clock    func() time.Time
}

// NewManager creates a checkpoint manager.
func NewManager(store core.Store, notifier core.Notifier, logger *logging.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		store:    store,
		notifier: notifier,
		logger:   logger,
		clock:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (m *Manager) WithClock(clock func() time.Time) *Manager {
	m.clock = clock
	return m
}

// Declare creates a checkpoint for an order and enqueues its initial
// notification. HOLD checkpoints get the full escalation ladder.
func (m *Manager) Declare(ctx context.Context, order *core.Order, phase core.Phase, typ core.CheckpointType, message string) (*core.Checkpoint, error) {
	now := m.clock()
	cp := &core.Checkpoint{
		ID:        uuid.NewString(),
		OrderID:   order.ID,
		Type:      typ,
		Phase:     phase,
		Status:    core.CheckpointPending,
		Message:   message,
		CreatedAt: now,
	}
	if typ == core.CheckpointHold {
		cp.ReminderAt = now.Add(HoldReminderAfter)
		cp.EscalationAt = now.Add(HoldEscalationAfter)
		cp.FinalAt = now.Add(HoldFinalAfter)
	}

	if err := m.store.CreateCheckpoint(ctx, cp); err != nil {
		return nil, fmt.Errorf("creating checkpoint: %w", err)
	}

	if m.notifier != nil {
		n := core.Notification{
			Template: templateFor(typ),
			OrderID:  order.ID,
			Data: map[string]any{
				"checkpoint_id": cp.ID,
				"phase":         string(phase),
				"message":       message,
			},
		}
		if err := m.notifier.Enqueue(ctx, n); err != nil {
			// The checkpoint is already durable; a notification miss is
			// recoverable through the ops surface, not fatal here.
			m.logger.Warn("checkpoint notification enqueue failed",
				"checkpoint_id", cp.ID,
				"order_id", order.ID,
				"error", err)
		}
	}

	m.logger.Info("checkpoint declared",
		"checkpoint_id", cp.ID,
		"order_id", order.ID,
		"type", string(typ),
		"phase", string(phase))
	return cp, nil
}

// Resolve records a decision on a pending checkpoint. Resolving an
// already-resolved checkpoint is a conflict; callers handling webhook
// replays should treat that conflict as an idempotent no-op.
func (m *Manager) Resolve(ctx context.Context, id string, r Resolution) (*core.Checkpoint, error) {
	cp, err := m.store.GetCheckpoint(ctx, id)
	if err != nil {
		return nil, err
	}
	if cp.Status != core.CheckpointPending {
		return cp, core.ErrConflict("RESOLVED", fmt.Sprintf("checkpoint %s already %s", id, cp.Status))
	}
	if err := validResolution(cp.Type, r.Decision); err != nil {
		return nil, err
	}

	if err := m.store.ResolveCheckpoint(ctx, id, r.Decision); err != nil {
		return nil, err
	}

	m.logger.Info("checkpoint resolved",
		"checkpoint_id", id,
		"order_id", cp.OrderID,
		"decision", string(r.Decision))

	cp.Status = core.CheckpointResolved
	cp.Resolution = r.Decision
	now := m.clock()
	cp.ResolvedAt = &now
	return cp, nil
}

// Resolution carries a human decision on a checkpoint, with an optional
// note that travels into the phase that resumes.
type Resolution struct {
	Decision core.Resolution
	Note     string
}

// validResolution checks the decision against the checkpoint type's
// permitted set.
func validResolution(typ core.CheckpointType, d core.Resolution) error {
	var allowed []core.Resolution
	switch typ {
	case core.CheckpointBlocking:
		allowed = []core.Resolution{core.ResolutionApproved, core.ResolutionRevise, core.ResolutionCancelled}
	case core.CheckpointHold:
		allowed = []core.Resolution{core.ResolutionInfoGiven, core.ResolutionCancelled, core.ResolutionAutoRefund}
	case core.CheckpointNotification:
		allowed = []core.Resolution{core.ResolutionApproved}
	}
	for _, a := range allowed {
		if a == d {
			return nil
		}
	}
	return core.ErrValidation("RESOLUTION", fmt.Sprintf("resolution %q not valid for %s checkpoint", d, typ))
}

func templateFor(typ core.CheckpointType) string {
	switch typ {
	case core.CheckpointBlocking:
		return "client_review_requested"
	case core.CheckpointHold:
		return "order_on_hold"
	default:
		return "order_progress"
	}
}
