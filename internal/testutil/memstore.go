// Package testutil provides in-memory fakes for store and collaborator
// ports, shared across package tests.
package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
)

// MemStore is an in-memory core.Store. It honors the same guard and
// conflict semantics as the sqlite adapter so orchestration tests
// exercise real transition rules.
type MemStore struct {
	mu sync.Mutex

	Orders       map[core.OrderID]*core.Order
	Outputs      map[core.OrderID][]*core.PhaseOutput
	Citations    map[core.OrderID][]core.UniqueCitation
	Statutes     map[core.OrderID][]string
	Verifs       map[core.OrderID][]*core.VerificationResult
	Grades       map[core.OrderID]map[int]*core.LoopGrade
	Checkpoints  map[string]*core.Checkpoint
	RefundLocks  map[core.OrderID]time.Time
	MeteredUsage map[string]int

	Clock func() time.Time
}

// NewMemStore creates an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		Orders:       make(map[core.OrderID]*core.Order),
		Outputs:      make(map[core.OrderID][]*core.PhaseOutput),
		Citations:    make(map[core.OrderID][]core.UniqueCitation),
		Statutes:     make(map[core.OrderID][]string),
		Verifs:       make(map[core.OrderID][]*core.VerificationResult),
		Grades:       make(map[core.OrderID]map[int]*core.LoopGrade),
		Checkpoints:  make(map[string]*core.Checkpoint),
		RefundLocks:  make(map[core.OrderID]time.Time),
		MeteredUsage: make(map[string]int),
		Clock:        time.Now,
	}
}

func (s *MemStore) CreateOrder(ctx context.Context, o *core.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.Orders[o.ID]; ok {
		return core.ErrConflict("EXISTS", "order already exists")
	}
	cp := *o
	s.Orders[o.ID] = &cp
	return nil
}

func (s *MemStore) GetOrder(ctx context.Context, id core.OrderID) (*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return nil, core.ErrNotFound("order " + string(id) + " not found")
	}
	cp := *o
	return &cp, nil
}

func (s *MemStore) TransitionOrder(ctx context.Context, id core.OrderID, fromStatus core.OrderStatus, fromPhase core.Phase, toStatus core.OrderStatus, toPhase core.Phase) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return core.ErrNotFound("order " + string(id) + " not found")
	}
	if o.Status != fromStatus || o.CurrentPhase != fromPhase {
		return core.ErrConflict("GUARD_MISS", "order moved since read")
	}
	if toStatus != fromStatus && !core.CanTransition(fromStatus, toStatus) {
		return core.ErrInvalidTransition(fromStatus, toStatus)
	}
	o.Status = toStatus
	o.CurrentPhase = toPhase
	o.UpdatedAt = s.Clock()
	o.LastActivityAt = o.UpdatedAt
	return nil
}

func (s *MemStore) TouchOrder(ctx context.Context, id core.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.Orders[id]; ok {
		o.LastActivityAt = s.Clock()
	}
	return nil
}

func (s *MemStore) AddOrderCost(ctx context.Context, id core.OrderID, usd float64) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return 0, core.ErrNotFound("order " + string(id) + " not found")
	}
	o.CostUSD += usd
	return o.CostUSD, nil
}

func (s *MemStore) SetDisclosure(ctx context.Context, id core.OrderID, disclosure string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return core.ErrNotFound("order " + string(id) + " not found")
	}
	o.Disclosure = disclosure
	return nil
}

func (s *MemStore) IncrementRevisionCount(ctx context.Context, id core.OrderID) (core.IncrementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return core.IncrementResult{}, core.ErrNotFound("order " + string(id) + " not found")
	}
	o.RevisionCount++
	return core.IncrementResult{
		Count:                o.RevisionCount,
		TriggeredBoundedExit: o.RevisionCount >= core.MaxRevisionLoops,
	}, nil
}

func (s *MemStore) BumpValidationFailures(ctx context.Context, id core.OrderID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.Orders[id]
	if !ok {
		return 0, core.ErrNotFound("order " + string(id) + " not found")
	}
	o.ValidationFails++
	return o.ValidationFails, nil
}

func (s *MemStore) ResetValidationFailures(ctx context.Context, id core.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.Orders[id]; ok {
		o.ValidationFails = 0
	}
	return nil
}

func (s *MemStore) SavePhaseOutput(ctx context.Context, out *core.PhaseOutput) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *out
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = s.Clock()
	}
	s.Outputs[out.OrderID] = append(s.Outputs[out.OrderID], &cp)
	return nil
}

func (s *MemStore) ListPhaseOutputs(ctx context.Context, id core.OrderID) ([]*core.PhaseOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.PhaseOutput(nil), s.Outputs[id]...), nil
}

func (s *MemStore) LatestPhaseOutput(ctx context.Context, id core.OrderID, phase core.Phase) (*core.PhaseOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	outs := s.Outputs[id]
	for i := len(outs) - 1; i >= 0; i-- {
		if outs[i].Phase == phase {
			cp := *outs[i]
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound("no output for phase " + string(phase))
}

func (s *MemStore) SaveCitations(ctx context.Context, id core.OrderID, cites []core.UniqueCitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Citations[id] = append(s.Citations[id], cites...)
	return nil
}

func (s *MemStore) ListCitations(ctx context.Context, id core.OrderID) ([]core.UniqueCitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.UniqueCitation(nil), s.Citations[id]...), nil
}

func (s *MemStore) SaveStatutes(ctx context.Context, id core.OrderID, statutes []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Statutes[id] = append(s.Statutes[id], statutes...)
	return nil
}

func (s *MemStore) ListStatutes(ctx context.Context, id core.OrderID) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Statutes[id]...), nil
}

func (s *MemStore) SaveVerification(ctx context.Context, res *core.VerificationResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *res
	s.Verifs[res.OrderID] = append(s.Verifs[res.OrderID], &cp)
	return nil
}

func (s *MemStore) ListVerifications(ctx context.Context, id core.OrderID) ([]*core.VerificationResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*core.VerificationResult(nil), s.Verifs[id]...), nil
}

func (s *MemStore) SaveLoopGrade(ctx context.Context, g *core.LoopGrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Grades[g.OrderID] == nil {
		s.Grades[g.OrderID] = make(map[int]*core.LoopGrade)
	}
	cp := *g
	s.Grades[g.OrderID][g.Loop] = &cp
	return nil
}

func (s *MemStore) GetLoopGrade(ctx context.Context, id core.OrderID, loop int) (*core.LoopGrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.Grades[id][loop]
	if !ok {
		return nil, core.ErrNotFound("no grade for loop")
	}
	cp := *g
	return &cp, nil
}

func (s *MemStore) CreateCheckpoint(ctx context.Context, c *core.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	s.Checkpoints[c.ID] = &cp
	return nil
}

func (s *MemStore) GetCheckpoint(ctx context.Context, id string) (*core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Checkpoints[id]
	if !ok {
		return nil, core.ErrNotFound("checkpoint " + id + " not found")
	}
	cp := *c
	return &cp, nil
}

func (s *MemStore) ResolveCheckpoint(ctx context.Context, id string, r core.Resolution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Checkpoints[id]
	if !ok {
		return core.ErrNotFound("checkpoint " + id + " not found")
	}
	if c.Status != core.CheckpointPending {
		return core.ErrConflict("RESOLVED", "checkpoint already resolved")
	}
	c.Status = core.CheckpointResolved
	c.Resolution = r
	now := s.Clock()
	c.ResolvedAt = &now
	return nil
}

func (s *MemStore) MarkCheckpointNotice(ctx context.Context, id string, reminder, escalation bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.Checkpoints[id]
	if !ok {
		return core.ErrNotFound("checkpoint " + id + " not found")
	}
	c.ReminderSent = reminder
	c.EscalationSent = escalation
	return nil
}

func (s *MemStore) PendingCheckpoints(ctx context.Context, orderID core.OrderID) ([]*core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Checkpoint
	for _, c := range s.Checkpoints {
		if c.OrderID == orderID && c.Status == core.CheckpointPending {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) PendingHoldsDue(ctx context.Context, now time.Time) ([]*core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Checkpoint
	for _, c := range s.Checkpoints {
		if c.Type != core.CheckpointHold || c.Status != core.CheckpointPending {
			continue
		}
		due := (!c.ReminderSent && now.After(c.ReminderAt)) ||
			(!c.EscalationSent && now.After(c.EscalationAt)) ||
			now.After(c.FinalAt)
		if due {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemStore) StaleHolds(ctx context.Context, olderThan time.Time) ([]*core.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Checkpoint
	for _, c := range s.Checkpoints {
		if c.Type == core.CheckpointHold && c.Status == core.CheckpointPending && c.CreatedAt.Before(olderThan) {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) StaleApprovals(ctx context.Context, inactiveSince time.Time) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Order
	for _, o := range s.Orders {
		if o.Status == core.StatusAwaitingApproval && o.LastActivityAt.Before(inactiveSince) {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *MemStore) StaleRefundLocks(ctx context.Context, heldSince time.Time) ([]*core.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*core.Order
	for id, at := range s.RefundLocks {
		if !at.Before(heldSince) {
			continue
		}
		o, ok := s.Orders[id]
		if !ok {
			continue
		}
		switch o.Status {
		case core.StatusCancelledUser, core.StatusCancelledAdmin, core.StatusRefunded:
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) AcquireRefundLock(ctx context.Context, id core.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.RefundLocks[id]; held {
		return core.ErrConflict(core.CodeLockHeld, "refund lock already held")
	}
	s.RefundLocks[id] = s.Clock()
	return nil
}

func (s *MemStore) ReleaseRefundLock(ctx context.Context, id core.OrderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.RefundLocks, id)
	return nil
}

func (s *MemStore) MeteredLookupsUsed(ctx context.Context, month string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.MeteredUsage[month], nil
}

func (s *MemStore) RecordMeteredLookup(ctx context.Context, month string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MeteredUsage[month]++
	return nil
}

func (s *MemStore) Close() error { return nil }

var _ core.Store = (*MemStore)(nil)
