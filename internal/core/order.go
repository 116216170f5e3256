package core

import (
	"time"
)

// OrderID uniquely identifies an order.
type OrderID string

// OrderStatus represents the current lifecycle state of an order.
type OrderStatus string

const (
	StatusDraftPending       OrderStatus = "draft_pending"
	StatusIntakeReview       OrderStatus = "intake_review"
	StatusInProduction       OrderStatus = "in_production"
	StatusCitationReview     OrderStatus = "citation_review"
	StatusGrading            OrderStatus = "grading"
	StatusRevisionInProgress OrderStatus = "revision_in_progress"
	StatusClientReview       OrderStatus = "client_review"
	StatusOnHold             OrderStatus = "on_hold"
	StatusAwaitingApproval   OrderStatus = "awaiting_approval"
	StatusRefundInProgress   OrderStatus = "refund_in_progress"
	StatusCompleted          OrderStatus = "completed"
	StatusRevisionRequested  OrderStatus = "revision_requested"
	StatusCancelledUser      OrderStatus = "cancelled_user"
	StatusCancelledAdmin     OrderStatus = "cancelled_admin"
	StatusFailed             OrderStatus = "failed"
	StatusRefunded           OrderStatus = "refunded"
)

// AllStatuses lists every order status.
var AllStatuses = []OrderStatus{
	StatusDraftPending,
	StatusIntakeReview,
	StatusInProduction,
	StatusCitationReview,
	StatusGrading,
	StatusRevisionInProgress,
	StatusClientReview,
	StatusOnHold,
	StatusAwaitingApproval,
	StatusRefundInProgress,
	StatusCompleted,
	StatusRevisionRequested,
	StatusCancelledUser,
	StatusCancelledAdmin,
	StatusFailed,
	StatusRefunded,
}

// statusTransitions is the explicit adjacency table for the order status
// machine. A transition absent from this table is invalid, and callers
// must treat the resulting error as a conflict, not something to retry.
//
// The only permitted escape from a terminal state is
// completed -> revision_requested.
var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusDraftPending: {
		StatusIntakeReview, StatusCancelledUser, StatusCancelledAdmin, StatusFailed,
	},
	StatusIntakeReview: {
		StatusInProduction, StatusOnHold, StatusCancelledUser, StatusCancelledAdmin, StatusFailed,
	},
	StatusInProduction: {
		StatusCitationReview, StatusGrading, StatusOnHold, StatusAwaitingApproval,
		StatusRefundInProgress, StatusCancelledAdmin, StatusFailed,
	},
	StatusCitationReview: {
		StatusInProduction, StatusGrading, StatusOnHold, StatusCancelledAdmin, StatusFailed,
	},
	StatusGrading: {
		StatusRevisionInProgress, StatusClientReview, StatusAwaitingApproval,
		StatusInProduction, StatusOnHold, StatusCancelledAdmin, StatusFailed,
	},
	StatusRevisionInProgress: {
		StatusCitationReview, StatusGrading, StatusInProduction, StatusOnHold,
		StatusCancelledAdmin, StatusFailed,
	},
	StatusClientReview: {
		StatusInProduction, StatusAwaitingApproval, StatusRevisionInProgress,
		StatusOnHold, StatusRefundInProgress, StatusCancelledUser, StatusCancelledAdmin,
	},
	StatusOnHold: {
		StatusIntakeReview, StatusInProduction, StatusCitationReview,
		StatusGrading, StatusRevisionInProgress, StatusClientReview,
		StatusRefundInProgress, StatusCancelledUser, StatusCancelledAdmin, StatusFailed,
	},
	StatusAwaitingApproval: {
		StatusCompleted, StatusRevisionInProgress, StatusRefundInProgress,
		StatusCancelledUser, StatusCancelledAdmin,
	},
	StatusRefundInProgress: {
		StatusRefunded, StatusFailed,
	},
	StatusCompleted: {
		StatusRevisionRequested,
	},
	StatusRevisionRequested: {
		StatusRevisionInProgress, StatusCancelledAdmin,
	},
	StatusCancelledUser:  {},
	StatusCancelledAdmin: {},
	StatusFailed:         {},
	StatusRefunded:       {},
}

// TerminalStatus reports whether s permits no further work. Note that
// completed is terminal for the pipeline even though it has a single
// permitted escape.
func TerminalStatus(s OrderStatus) bool {
	switch s {
	case StatusCompleted, StatusCancelledUser, StatusCancelledAdmin, StatusFailed, StatusRefunded:
		return true
	default:
		return false
	}
}

// CanTransition reports whether from -> to is a legal status transition.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MotionType distinguishes document subtypes that change the phase graph.
type MotionType string

const (
	// MotionTypeStandard covers ordinary motions.
	MotionTypeStandard MotionType = "standard"

	// MotionTypeMSJ covers summary-judgment-style motions, which take a
	// mandatory compliance phase before completion.
	MotionTypeMSJ MotionType = "msj"
)

// Order is the unit of work: one motion moving through the pipeline.
// Status and CurrentPhase are updated together, never independently;
// the store enforces this with a single guarded write.
type Order struct {
	ID              OrderID
	Tier            Tier
	MotionType      MotionType
	CurrentPhase    Phase
	Status          OrderStatus
	RevisionCount   int
	ValidationFails int
	CostUSD         float64
	CitationBankID  string
	LatestDraftID   string
	Disclosure      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	LastActivityAt  time.Time
}

// NewOrder creates an order ready for intake.
func NewOrder(id OrderID, tier Tier, motionType MotionType) *Order {
	now := time.Now()
	return &Order{
		ID:             id,
		Tier:           tier,
		MotionType:     motionType,
		CurrentPhase:   PhaseIntakeAnalysis,
		Status:         StatusDraftPending,
		CreatedAt:      now,
		UpdatedAt:      now,
		LastActivityAt: now,
	}
}

// TransitionTo moves the order to a new status, validating against the
// adjacency table. An invalid transition returns a conflict error and
// leaves the order unchanged.
func (o *Order) TransitionTo(to OrderStatus) error {
	if !CanTransition(o.Status, to) {
		return ErrInvalidTransition(o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	return nil
}

// Terminal reports whether the order has reached a terminal status.
func (o *Order) Terminal() bool {
	return TerminalStatus(o.Status)
}
