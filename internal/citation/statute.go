package citation

import (
	"context"
	"regexp"
	"strings"

	"github.com/motiongranted/draftengine/internal/core"
	"github.com/motiongranted/draftengine/internal/logging"
)

var statutePunctRe = regexp.MustCompile(`[,;]+$`)

// NormalizeStatute canonicalizes a statutory citation: case folding,
// whitespace and punctuation canonicalization, section-sign unification.
// Statutes never enter the case-law dedup path.
func NormalizeStatute(s string) string {
	s = normalizeSpace(s)
	s = statutePunctRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "§§", "§")
	s = strings.ReplaceAll(s, "§ ", "§")
	s = strings.ReplaceAll(s, "§", "§ ")
	s = normalizeSpace(s)

	// Case-fold the abbreviation portion without touching subsection
	// letters, which are significant ("(a)" vs "(A)" is not, but
	// "42 U.S.C." vs "42 u.s.c." is noise).
	fields := strings.Fields(s)
	for i, f := range fields {
		if strings.HasSuffix(f, ".") || isAllCapsAbbrev(f) {
			fields[i] = strings.ToUpper(f)
		}
	}
	return strings.Join(fields, " ")
}

func isAllCapsAbbrev(f string) bool {
	letters := 0
	for _, r := range f {
		if r >= 'a' && r <= 'z' {
			return false
		}
		if r >= 'A' && r <= 'Z' {
			letters++
		}
	}
	return letters > 0
}

// StatuteBankStore is the slice of the store the recheck needs.
type StatuteBankStore interface {
	ListStatutes(ctx context.Context, id core.OrderID) ([]string, error)
	SaveStatutes(ctx context.Context, id core.OrderID, statutes []string) error
}

// RecheckResult reports a statutory mini-pass over revised text.
type RecheckResult struct {
	Known []string // statutes already in the bank, untouched
	Added []string // genuinely new statutes appended to the bank
}

// StatuteRecheck is the mini-pass run after revision phases: it
// extracts statutes from the revised text, diffs against the bank
// gathered earlier in the order, and appends only genuinely new
// statutes. Statutes already known are never re-verified.
func StatuteRecheck(ctx context.Context, store StatuteBankStore, verifier *Verifier, orderID core.OrderID, revisedText string, logger *logging.Logger) (*RecheckResult, error) {
	known, err := store.ListStatutes(ctx, orderID)
	if err != nil {
		return nil, err
	}
	knownSet := make(map[string]bool, len(known))
	for _, s := range known {
		knownSet[NormalizeStatute(s)] = true
	}

	res := &RecheckResult{}
	seen := make(map[string]bool)
	for _, raw := range Extract(revisedText, core.SourceDraft) {
		if raw.Type != core.CiteStatute {
			continue
		}
		norm := NormalizeStatute(raw.Matched)
		if seen[norm] {
			continue
		}
		seen[norm] = true
		if knownSet[norm] {
			res.Known = append(res.Known, norm)
			continue
		}
		res.Added = append(res.Added, norm)
	}

	if len(res.Added) == 0 {
		return res, nil
	}

	if verifier != nil {
		for _, statute := range res.Added {
			if _, err := verifier.VerifyStatute(ctx, orderID, statute); err != nil {
				logger.Warn("statute verification degraded",
					"order_id", string(orderID), "statute", statute, "error", err)
			}
		}
	}

	if err := store.SaveStatutes(ctx, orderID, res.Added); err != nil {
		return nil, err
	}
	logger.Info("statute bank extended",
		"order_id", string(orderID), "added", len(res.Added), "known", len(res.Known))
	return res, nil
}
