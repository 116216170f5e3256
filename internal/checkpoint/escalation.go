package checkpoint

import (
	"context"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
)

// Escalator walks pending HOLD checkpoints through the ladder:
// reminder at 24h, operator escalation at 72h, and auto-resolution to
// a refund at the final deadline. Each rung fires exactly once.
type Escalator struct {
	manager *Manager
	alerter core.Alerter
}

// NewEscalator creates the ladder processor.
func NewEscalator(m *Manager, alerter core.Alerter) *Escalator {
	return &Escalator{manager: m, alerter: alerter}
}

// ProcessDue advances every pending HOLD that has crossed a deadline.
// A failure on one checkpoint is logged and does not stop the rest.
func (e *Escalator) ProcessDue(ctx context.Context) error {
	m := e.manager
	now := m.clock()

	due, err := m.store.PendingHoldsDue(ctx, now)
	if err != nil {
		return err
	}

	for _, cp := range due {
		if err := e.process(ctx, cp, now); err != nil {
			m.logger.Warn("hold escalation step failed",
				"checkpoint_id", cp.ID,
				"order_id", cp.OrderID,
				"error", err)
		}
	}
	return nil
}

func (e *Escalator) process(ctx context.Context, cp *core.Checkpoint, now time.Time) error {
	m := e.manager

	if cp.Overdue(now) {
		return e.autoResolve(ctx, cp)
	}

	if !cp.EscalationSent && now.After(cp.EscalationAt) {
		if e.alerter != nil {
			e.alerter.Alert(ctx, "hold_escalation:"+string(cp.OrderID),
				"hold unanswered past escalation deadline",
				map[string]any{"checkpoint_id": cp.ID, "order_id": string(cp.OrderID)})
		}
		return m.store.MarkCheckpointNotice(ctx, cp.ID, cp.ReminderSent, true)
	}

	if !cp.ReminderSent && now.After(cp.ReminderAt) {
		if m.notifier != nil {
			n := core.Notification{
				Template: "hold_reminder",
				OrderID:  cp.OrderID,
				Data:     map[string]any{"checkpoint_id": cp.ID, "message": cp.Message},
			}
			if err := m.notifier.Enqueue(ctx, n); err != nil {
				return err
			}
		}
		return m.store.MarkCheckpointNotice(ctx, cp.ID, true, cp.EscalationSent)
	}

	return nil
}

// autoResolve closes a HOLD that hit the final deadline and pushes the
// order onto the refund path. The refund lock serializes against any
// concurrent manual refund.
func (e *Escalator) autoResolve(ctx context.Context, cp *core.Checkpoint) error {
	m := e.manager

	if _, err := m.Resolve(ctx, cp.ID, Resolution{Decision: core.ResolutionAutoRefund}); err != nil {
		return err
	}

	order, err := m.store.GetOrder(ctx, cp.OrderID)
	if err != nil {
		return err
	}
	if order.Status != core.StatusOnHold {
		m.logger.Warn("auto-refund skipped, order left hold status",
			"order_id", order.ID, "status", string(order.Status))
		return nil
	}

	if err := m.store.AcquireRefundLock(ctx, order.ID); err != nil {
		return err
	}
	if err := m.store.TransitionOrder(ctx, order.ID,
		order.Status, order.CurrentPhase,
		core.StatusRefundInProgress, order.CurrentPhase); err != nil {
		return err
	}

	if m.notifier != nil {
		n := core.Notification{
			Template: "hold_expired_refund",
			OrderID:  order.ID,
			Data:     map[string]any{"checkpoint_id": cp.ID},
		}
		if err := m.notifier.Enqueue(ctx, n); err != nil {
			m.logger.Warn("refund notification enqueue failed",
				"order_id", order.ID, "error", err)
		}
	}

	m.logger.Info("hold auto-resolved to refund",
		"checkpoint_id", cp.ID, "order_id", order.ID)
	return nil
}

// Run processes the ladder on a fixed interval until the context ends.
func (e *Escalator) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.ProcessDue(ctx); err != nil {
				e.manager.logger.Error("hold escalation pass failed", "error", err)
			}
		}
	}
}
