package workflow

import (
	"context"

	"github.com/motiongranted/draftengine/internal/citation"
	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
)

// CitationService is the executor's view of the citation machinery:
// banking new citations out of phase output, verifying the unverified
// slice of the bank, and the statutory mini-pass after revisions.
type CitationService interface {
	// BankNew extracts, dedupes, and appends citations not already in
	// the order's bank. Returns the newly banked set.
	BankNew(ctx context.Context, orderID core.OrderID, text string, source core.CitationSource) ([]core.UniqueCitation, error)

	// VerifyPending runs verification over every banked citation that
	// has no verification result yet.
	VerifyPending(ctx context.Context, orderID core.OrderID, draftContext string) ([]*core.VerificationResult, error)

	// RecheckStatutes diffs statutes in revised text against the bank
	// and verifies only genuinely new ones.
	RecheckStatutes(ctx context.Context, orderID core.OrderID, revisedText string) (added []string, err error)
}

// citationService wires the citation package to the store.
type citationService struct {
	store    core.Store
	verifier *citation.Verifier
	logger   *logging.Logger
}

// NewCitationService builds the production CitationService.
func NewCitationService(store core.Store, verifier *citation.Verifier, logger *logging.Logger) CitationService {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &citationService{store: store, verifier: verifier, logger: logger}
}

func (s *citationService) BankNew(ctx context.Context, orderID core.OrderID, text string, source core.CitationSource) ([]core.UniqueCitation, error) {
	raw := citation.Extract(text, source)
	if len(raw) == 0 {
		return nil, nil
	}
	result := citation.Dedupe(raw)

	banked, err := s.store.ListCitations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(banked))
	for _, c := range banked {
		seen[normalized(c)] = true
	}

	var fresh []core.UniqueCitation
	for _, c := range result.Unique {
		if !seen[normalized(c)] {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}
	if err := s.store.SaveCitations(ctx, orderID, fresh); err != nil {
		return nil, err
	}
	s.logger.Info("citations banked",
		"order_id", orderID,
		"extracted", len(raw),
		"unique", len(result.Unique),
		"removed", len(result.Removed),
		"new", len(fresh))
	return fresh, nil
}

func (s *citationService) VerifyPending(ctx context.Context, orderID core.OrderID, draftContext string) ([]*core.VerificationResult, error) {
	banked, err := s.store.ListCitations(ctx, orderID)
	if err != nil {
		return nil, err
	}
	verified, err := s.store.ListVerifications(ctx, orderID)
	if err != nil {
		return nil, err
	}
	done := make(map[string]bool, len(verified))
	for _, v := range verified {
		done[v.Citation] = true
	}

	var pending []core.UniqueCitation
	for _, c := range banked {
		if c.Type == core.CiteStatute {
			continue
		}
		if !done[c.Text] {
			pending = append(pending, c)
		}
	}
	if len(pending) == 0 {
		return nil, nil
	}
	return s.verifier.VerifyAll(ctx, orderID, pending, draftContext)
}

func (s *citationService) RecheckStatutes(ctx context.Context, orderID core.OrderID, revisedText string) ([]string, error) {
	res, err := citation.StatuteRecheck(ctx, s.store, s.verifier, orderID, revisedText, s.logger)
	if err != nil {
		return nil, err
	}
	return res.Added, nil
}

// normalized is the bank identity for a citation: statutes get the
// statutory normalization, case law compares case-insensitively.
func normalized(c core.UniqueCitation) string {
	if c.Type == core.CiteStatute {
		return citation.NormalizeStatute(c.Text)
	}
	return c.Text
}
