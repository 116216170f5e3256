package core

import (
	"context"
	"time"
)

// =============================================================================
// Model Gateway Port
// =============================================================================

// ModelRequest describes one model call. The gateway resolves Model to
// a vendor backend through the static table; callers never pick vendors.
type ModelRequest struct {
	Model       string
	Prompt      string
	System      string
	MaxTokens   int
	Temperature float64
	JSONOutput  bool

	// ExtendedReasoning requests the larger reasoning budget where the
	// backing model supports one. Looked up per phase/tier.
	ExtendedReasoning bool
}

// ModelResult is the normalized result shape for every backend.
type ModelResult struct {
	Text      string
	TokensIn  int
	TokensOut int
	CostUSD   float64
	Model     string
	Duration  time.Duration
}

// ModelBackend services model calls for one vendor.
type ModelBackend interface {
	Vendor() Vendor
	Complete(ctx context.Context, req ModelRequest) (*ModelResult, error)
}

// Gateway routes a model request to the backend serving its identifier
// and enforces the per-order cost ceiling.
type Gateway interface {
	Complete(ctx context.Context, orderID OrderID, req ModelRequest) (*ModelResult, error)
}

// =============================================================================
// Legal Research Port
// =============================================================================

// CaseResult is a structured hit from a legal research source.
type CaseResult struct {
	Citation   string
	Name       string
	Court      string
	Year       int
	GoodLaw    bool
	Summary    string
	SourceName string
}

// LegalResearch is the optional external research collaborator. The
// verification pipeline degrades (skip, reduced confidence) when it is
// unavailable; it never crashes a phase.
type LegalResearch interface {
	// Lookup resolves a single citation string.
	Lookup(ctx context.Context, citation string) (*CaseResult, error)

	// Search runs a free-text query.
	Search(ctx context.Context, query string) ([]CaseResult, error)

	// Available reports whether the collaborator is configured and up.
	Available(ctx context.Context) bool
}

// =============================================================================
// Notification Port
// =============================================================================

// Notification is a structured outbound request: template plus data.
// The core never renders or sends mail itself.
type Notification struct {
	Template string
	OrderID  OrderID
	Data     map[string]any
}

// Notifier enqueues notifications to the outbound queue.
type Notifier interface {
	Enqueue(ctx context.Context, n Notification) error
}

// Alerter surfaces operator alerts for fatal errors and stale state.
// Implementations rate-limit so a burst produces one alert, not a flood.
type Alerter interface {
	Alert(ctx context.Context, key, message string, details map[string]any)
}

// =============================================================================
// Persistent Store Port
// =============================================================================

// IncrementResult reports an atomic revision-count increment.
type IncrementResult struct {
	Count                int
	TriggeredBoundedExit bool
}

// Store is the transactional persistence boundary. Implementations must
// be authoritative across process restarts; nothing in memory is.
type Store interface {
	// Orders.
	CreateOrder(ctx context.Context, o *Order) error
	GetOrder(ctx context.Context, id OrderID) (*Order, error)
	// TransitionOrder persists status+phase together, guarded on the
	// order's current values; a guard miss is a conflict.
	TransitionOrder(ctx context.Context, id OrderID, fromStatus OrderStatus, fromPhase Phase, toStatus OrderStatus, toPhase Phase) error
	TouchOrder(ctx context.Context, id OrderID) error
	AddOrderCost(ctx context.Context, id OrderID, usd float64) (total float64, err error)
	SetDisclosure(ctx context.Context, id OrderID, disclosure string) error

	// Revision loop counter. Atomic at the database level.
	IncrementRevisionCount(ctx context.Context, id OrderID) (IncrementResult, error)

	// Consecutive payload validation failures for the current phase.
	// Bump is atomic; Reset runs on every accepted phase output.
	BumpValidationFailures(ctx context.Context, id OrderID) (int, error)
	ResetValidationFailures(ctx context.Context, id OrderID) error

	// Phase outputs, append-only.
	SavePhaseOutput(ctx context.Context, out *PhaseOutput) error
	ListPhaseOutputs(ctx context.Context, id OrderID) ([]*PhaseOutput, error)
	LatestPhaseOutput(ctx context.Context, id OrderID, phase Phase) (*PhaseOutput, error)

	// Citation bank and verification results, append-only.
	SaveCitations(ctx context.Context, id OrderID, cites []UniqueCitation) error
	ListCitations(ctx context.Context, id OrderID) ([]UniqueCitation, error)
	SaveStatutes(ctx context.Context, id OrderID, statutes []string) error
	ListStatutes(ctx context.Context, id OrderID) ([]string, error)
	SaveVerification(ctx context.Context, res *VerificationResult) error
	ListVerifications(ctx context.Context, id OrderID) ([]*VerificationResult, error)

	// Loop grades, append-only.
	SaveLoopGrade(ctx context.Context, g *LoopGrade) error
	GetLoopGrade(ctx context.Context, id OrderID, loop int) (*LoopGrade, error)

	// Checkpoints.
	CreateCheckpoint(ctx context.Context, c *Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (*Checkpoint, error)
	ResolveCheckpoint(ctx context.Context, id string, r Resolution) error
	MarkCheckpointNotice(ctx context.Context, id string, reminder, escalation bool) error
	PendingCheckpoints(ctx context.Context, orderID OrderID) ([]*Checkpoint, error)
	PendingHoldsDue(ctx context.Context, now time.Time) ([]*Checkpoint, error)
	StaleHolds(ctx context.Context, olderThan time.Time) ([]*Checkpoint, error)

	// Sweep queries.
	StaleApprovals(ctx context.Context, inactiveSince time.Time) ([]*Order, error)
	StaleRefundLocks(ctx context.Context, heldSince time.Time) ([]*Order, error)

	// Refund lock. Acquire fails with a conflict while held.
	AcquireRefundLock(ctx context.Context, id OrderID) error
	ReleaseRefundLock(ctx context.Context, id OrderID) error

	// Metered lookup budget, monthly window.
	MeteredLookupsUsed(ctx context.Context, month string) (int, error)
	RecordMeteredLookup(ctx context.Context, month string) error

	Close() error
}
