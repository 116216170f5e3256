package checkpoint

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/metrics"
)

// Sweep thresholds. An order or lock older than its threshold is
// considered stuck and surfaced to an operator.
const (
	DefaultStaleHoldAge     = 14 * 24 * time.Hour
	DefaultStaleApprovalAge = 10 * 24 * time.Hour
	DefaultStaleRefundLock  = 30 * time.Minute
)

// Sweep scans for state that stopped moving: holds nobody answered,
// approvals nobody acted on, and refund locks left behind by a crash.
// It alerts; it never advances the phase graph on its own. The one
// write it performs is releasing an expired refund lock.
type Sweep struct {
	store   core.Store
	alerter core.Alerter
	logger  *logging.Logger
	clock   func() time.Time

	StaleHoldAge     time.Duration
	StaleApprovalAge time.Duration
	StaleRefundLock  time.Duration
}

// NewSweep creates a sweep with default thresholds.
func NewSweep(store core.Store, alerter core.Alerter, logger *logging.Logger) *Sweep {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Sweep{
		store:            store,
		alerter:          alerter,
		logger:           logger,
		clock:            time.Now,
		StaleHoldAge:     DefaultStaleHoldAge,
		StaleApprovalAge: DefaultStaleApprovalAge,
		StaleRefundLock:  DefaultStaleRefundLock,
	}
}

// WithClock overrides the time source, for tests.
func (s *Sweep) WithClock(clock func() time.Time) *Sweep {
	s.clock = clock
	return s
}

// Run executes one sweep pass. The three checks run concurrently and
// are isolated: a panic or error in one is recorded without aborting
// the others.
func (s *Sweep) Run(ctx context.Context) error {
	var g errgroup.Group

	checks := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"stale_holds", s.checkStaleHolds},
		{"stale_approvals", s.checkStaleApprovals},
		{"stale_refund_locks", s.checkStaleRefundLocks},
	}

	for _, c := range checks {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					s.logger.Error("sweep check panicked", "check", c.name, "panic", fmt.Sprint(r))
				}
			}()
			if err := c.fn(ctx); err != nil {
				s.logger.Error("sweep check failed", "check", c.name, "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// RunPeriodic repeats Run on the given interval until the context ends.
func (s *Sweep) RunPeriodic(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = s.Run(ctx)
		}
	}
}

func (s *Sweep) checkStaleHolds(ctx context.Context) error {
	cutoff := s.clock().Add(-s.StaleHoldAge)
	holds, err := s.store.StaleHolds(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, cp := range holds {
		metrics.SweepDetections.WithLabelValues("stale_hold").Inc()
		s.alerter.Alert(ctx, "stale_hold:"+string(cp.OrderID),
			"hold checkpoint pending beyond sweep threshold",
			map[string]any{
				"checkpoint_id": cp.ID,
				"order_id":      string(cp.OrderID),
				"created_at":    cp.CreatedAt.Format(time.RFC3339),
			})
	}
	if len(holds) > 0 {
		s.logger.Warn("sweep found stale holds", "count", len(holds))
	}
	return nil
}

func (s *Sweep) checkStaleApprovals(ctx context.Context) error {
	cutoff := s.clock().Add(-s.StaleApprovalAge)
	orders, err := s.store.StaleApprovals(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, o := range orders {
		metrics.SweepDetections.WithLabelValues("stale_approval").Inc()
		s.alerter.Alert(ctx, "stale_approval:"+string(o.ID),
			"order awaiting approval with no activity",
			map[string]any{
				"order_id":      string(o.ID),
				"last_activity": o.LastActivityAt.Format(time.RFC3339),
			})
	}
	if len(orders) > 0 {
		s.logger.Warn("sweep found stale approvals", "count", len(orders))
	}
	return nil
}

// checkStaleRefundLocks releases refund locks held past the crash
// window and alerts so an operator verifies the refund actually landed.
func (s *Sweep) checkStaleRefundLocks(ctx context.Context) error {
	cutoff := s.clock().Add(-s.StaleRefundLock)
	orders, err := s.store.StaleRefundLocks(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, o := range orders {
		metrics.SweepDetections.WithLabelValues("stale_refund_lock").Inc()
		if err := s.store.ReleaseRefundLock(ctx, o.ID); err != nil {
			s.logger.Error("failed to release stale refund lock",
				"order_id", o.ID, "error", err)
			continue
		}
		s.alerter.Alert(ctx, "stale_refund_lock:"+string(o.ID),
			"refund lock released after crash window, verify refund state",
			map[string]any{"order_id": string(o.ID)})
	}
	return nil
}
