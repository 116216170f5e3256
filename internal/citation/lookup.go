package citation

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
	"github.com/motiongranted/draftengine/internal/metrics"
)

// Source is one case-law lookup provider in the fallback chain.
type Source interface {
	Name() string
	Lookup(ctx context.Context, citation string) (*core.CaseResult, error)
}

// MeterStore tracks metered lookup usage per month.
type MeterStore interface {
	MeteredLookupsUsed(ctx context.Context, month string) (int, error)
	RecordMeteredLookup(ctx context.Context, month string) error
}

// Chain is the staged lookup order for unpublished or federal-only
// authorities: free public index, then free archive mirror, and only
// when both miss, the metered proprietary provider behind a hard
// monthly ceiling.
type Chain struct {
	free    Source
	archive Source
	metered Source
	meter   MeterStore
	ceiling atomic.Int64
	logger  *logging.Logger
	clock   func() time.Time
}

// NewChain builds a lookup chain. Any source may be nil, meaning the
// stage is not configured and is skipped.
func NewChain(free, archive, metered Source, meter MeterStore, monthlyCeiling int, logger *logging.Logger) *Chain {
	c := &Chain{
		free:    free,
		archive: archive,
		metered: metered,
		meter:   meter,
		logger:  logger.WithComponent("citation_lookup"),
		clock:   time.Now,
	}
	c.ceiling.Store(int64(monthlyCeiling))
	return c
}

// SetCeiling changes the monthly metered ceiling. Config hot reload
// calls this on a live chain.
func (c *Chain) SetCeiling(n int) {
	c.ceiling.Store(int64(n))
}

// WithClock overrides the time source, used in tests.
func (c *Chain) WithClock(clock func() time.Time) *Chain {
	c.clock = clock
	return c
}

// Lookup resolves a citation through the chain. A budget error means
// the metered stage was needed but the monthly ceiling is spent; the
// caller must mark the citation unverifiable-by-budget, not skip it.
func (c *Chain) Lookup(ctx context.Context, citation string) (*core.CaseResult, error) {
	for _, src := range []Source{c.free, c.archive} {
		if src == nil {
			continue
		}
		res, err := src.Lookup(ctx, citation)
		if err == nil {
			return res, nil
		}
		if !isMiss(err) {
			c.logger.Warn("lookup source degraded", "source", src.Name(), "error", err)
		}
	}

	if c.metered == nil {
		return nil, core.ErrNotFound(fmt.Sprintf("citation %q not found in free sources", citation))
	}

	month := c.clock().UTC().Format("2006-01")
	used, err := c.meter.MeteredLookupsUsed(ctx, month)
	if err != nil {
		return nil, err
	}
	ceiling := int(c.ceiling.Load())
	if used >= ceiling {
		return nil, core.ErrBudget(core.CodeBudgetExhausted,
			fmt.Sprintf("metered lookups for %s exhausted (%d/%d)", month, used, ceiling))
	}
	if err := c.meter.RecordMeteredLookup(ctx, month); err != nil {
		return nil, err
	}
	metrics.MeteredLookups.Inc()

	res, err := c.metered.Lookup(ctx, citation)
	if err != nil {
		if isMiss(err) {
			return nil, core.ErrNotFound(fmt.Sprintf("citation %q not found in any source", citation))
		}
		return nil, err
	}
	return res, nil
}

func isMiss(err error) bool {
	var de *core.DomainError
	if errors.As(err, &de) {
		return de.Category == core.ErrCatNotFound
	}
	return false
}

// ResearchSource adapts the optional legal-research collaborator to a
// chain Source. Unavailability reads as a miss so the chain degrades
// instead of crashing the phase.
type ResearchSource struct {
	name     string
	research core.LegalResearch
}

// NewResearchSource wraps a research collaborator.
func NewResearchSource(name string, research core.LegalResearch) *ResearchSource {
	return &ResearchSource{name: name, research: research}
}

// Name identifies the source.
func (s *ResearchSource) Name() string { return s.name }

// Lookup resolves one citation, reading unavailability as a miss.
func (s *ResearchSource) Lookup(ctx context.Context, citation string) (*core.CaseResult, error) {
	if s.research == nil || !s.research.Available(ctx) {
		return nil, core.ErrNotFound(fmt.Sprintf("source %s unavailable", s.name))
	}
	return s.research.Lookup(ctx, citation)
}
