package core

import "time"

// CheckpointType classifies a gate declared by a phase.
type CheckpointType string

const (
	// CheckpointNotification is informational and never blocks the graph.
	CheckpointNotification CheckpointType = "NOTIFICATION"

	// CheckpointBlocking requires one of a fixed set of human decisions
	// before the phase graph can proceed.
	CheckpointBlocking CheckpointType = "BLOCKING"

	// CheckpointHold pauses the order pending missing information, with
	// a time-boxed escalation ladder ending in auto-resolution.
	CheckpointHold CheckpointType = "HOLD"
)

// CheckpointStatus is the lifecycle of a checkpoint record.
type CheckpointStatus string

const (
	CheckpointPending  CheckpointStatus = "pending"
	CheckpointResolved CheckpointStatus = "resolved"
	CheckpointExpired  CheckpointStatus = "expired"
)

// Resolution is a human (or timeout) decision on a checkpoint.
type Resolution string

const (
	ResolutionApproved   Resolution = "approved"
	ResolutionRevise     Resolution = "revise"
	ResolutionCancelled  Resolution = "cancelled"
	ResolutionInfoGiven  Resolution = "info_provided"
	ResolutionAutoRefund Resolution = "auto_refund" // final-deadline timeout outcome
)

// Checkpoint is one gate instance on an order. Once resolved it is
// immutable history.
type Checkpoint struct {
	ID         string
	OrderID    OrderID
	Type       CheckpointType
	Phase      Phase
	Status     CheckpointStatus
	Resolution Resolution
	Message    string

	CreatedAt    time.Time
	ReminderAt   time.Time // 24h reminder (HOLD only)
	EscalationAt time.Time // 72h escalation (HOLD only)
	FinalAt      time.Time // auto-resolution deadline (HOLD only)
	ResolvedAt   *time.Time

	ReminderSent   bool
	EscalationSent bool
}

// Blocking reports whether the checkpoint prevents phase advancement
// while pending.
func (c *Checkpoint) Blocking() bool {
	return c.Type != CheckpointNotification
}

// Overdue reports whether a pending HOLD has passed its final deadline.
func (c *Checkpoint) Overdue(now time.Time) bool {
	return c.Type == CheckpointHold && c.Status == CheckpointPending && now.After(c.FinalAt)
}
