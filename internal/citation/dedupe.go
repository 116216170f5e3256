package citation

import (
	"sort"
	"strings"

	"github.com/motiongranted/draftengine/internal/core"
)

// DedupeResult holds the canonical citation set and every removal with
// its reason. Running Dedupe twice over the same input produces the
// same set and the same reasons.
type DedupeResult struct {
	Unique  []core.UniqueCitation
	Removed []core.RemovedCitation
}

// Dedupe collapses raw citations to a canonical set. Case-law
// candidates run the truncation-aware algorithm; statutes take the
// separate normalization path and never enter the case-law comparison.
func Dedupe(raw []core.RawCitation) DedupeResult {
	var caseLaw, statutes []core.RawCitation
	for _, r := range raw {
		if r.Type == core.CiteStatute {
			statutes = append(statutes, r)
		} else {
			caseLaw = append(caseLaw, r)
		}
	}

	result := dedupeCaseLaw(caseLaw)
	uniqueStatutes := dedupeStatutes(statutes)
	result.Unique = append(result.Unique, uniqueStatutes...)
	return result
}

// dedupeCaseLaw implements the four-step truncation-aware algorithm.
//
// The upstream extractor sometimes truncates multi-part reporter
// abbreviations (reading "3" as a page before the series suffix "d" is
// consumed), so naive string equality both under- and over-counts.
func dedupeCaseLaw(raw []core.RawCitation) DedupeResult {
	var result DedupeResult

	// Referential cites (Id., Ibid., supra, short forms) stand on their
	// antecedents and are not independent candidates for the bank.
	var candidates []core.RawCitation
	for _, r := range raw {
		if r.Type == core.CiteFullCase || r.Type == core.CiteUnknown {
			candidates = append(candidates, r)
		}
	}

	// Step 1: drop anything without the minimum citation shape.
	var shaped []core.RawCitation
	for _, c := range candidates {
		if !HasLooseShape(c.Matched) {
			result.Removed = append(result.Removed, core.RemovedCitation{
				Citation: c,
				Reason:   core.RemovedIncomplete,
			})
			continue
		}
		shaped = append(shaped, c)
	}

	// Step 2: longest first; ties break lexicographically so the pass
	// is deterministic and idempotent.
	sort.SliceStable(shaped, func(i, j int) bool {
		li, lj := len(shaped[i].Matched), len(shaped[j].Matched)
		if li != lj {
			return li > lj
		}
		return shaped[i].Matched < shaped[j].Matched
	})

	type accepted struct {
		cite     core.RawCitation
		count    int
		complete bool
	}
	var kept []*accepted

	// Step 3: compare each candidate against every longer accepted
	// string, discarding truncations, substrings and duplicates.
candidates:
	for _, c := range shaped {
		for _, a := range kept {
			reason, ok := classifyAgainst(c.Matched, a.cite.Matched)
			if !ok {
				continue
			}
			a.count++
			result.Removed = append(result.Removed, core.RemovedCitation{
				Citation:  c,
				Reason:    reason,
				KeptMatch: a.cite.Matched,
			})
			continue candidates
		}
		kept = append(kept, &accepted{cite: c, count: 1, complete: IsComplete(c.Matched)})
	}

	// Step 4: survivors become the canonical set.
	for _, a := range kept {
		result.Unique = append(result.Unique, core.UniqueCitation{
			Text:           a.cite.Matched,
			Type:           a.cite.Type,
			Source:         a.cite.Source,
			Occurrences:    a.count,
			Complete:       a.complete,
			FormatWarnings: FormatWarnings(a.cite.Matched),
		})
	}
	return result
}

// classifyAgainst decides whether candidate must be discarded given an
// already-accepted (longer or equal) string, returning the removal
// reason. Completeness overrides plain prefix-matching: an independently
// complete candidate sharing a prefix with a longer citation is kept.
func classifyAgainst(candidate, kept string) (core.RemovalReason, bool) {
	if candidate == kept {
		// Same string extracted twice.
		return core.RemovedExactDuplicate, true
	}
	if strings.HasPrefix(kept, candidate) {
		remainder := kept[len(candidate):]
		if startsWithSeriesContinuation(remainder) {
			return core.RemovedSeriesTruncation, true
		}
		if !IsComplete(candidate) {
			return core.RemovedPrefixTruncation, true
		}
		// Complete prefix (e.g. a page cite vs. the same cite with a
		// pinpoint): kept.
		return "", false
	}
	if strings.Contains(kept, candidate) {
		return core.RemovedSubstring, true
	}
	if strings.EqualFold(candidate, kept) {
		return core.RemovedExactDuplicate, true
	}
	return "", false
}

// startsWithSeriesContinuation reports whether the remainder left after
// a prefix match begins with a reporter series token ("d", "th", "nd",
// "rd", "st") followed by whitespace, meaning the prefix was cut off
// mid-abbreviation.
func startsWithSeriesContinuation(remainder string) bool {
	for _, tok := range seriesContinuations {
		if strings.HasPrefix(remainder, tok) {
			rest := remainder[len(tok):]
			if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
				return true
			}
		}
	}
	return false
}

// dedupeStatutes collapses statutory citations by normalized form.
func dedupeStatutes(raw []core.RawCitation) []core.UniqueCitation {
	type bucket struct {
		first core.RawCitation
		count int
	}
	byNorm := make(map[string]*bucket)
	var order []string
	for _, r := range raw {
		key := NormalizeStatute(r.Matched)
		if b, ok := byNorm[key]; ok {
			b.count++
			continue
		}
		byNorm[key] = &bucket{first: r, count: 1}
		order = append(order, key)
	}

	out := make([]core.UniqueCitation, 0, len(order))
	for _, key := range order {
		b := byNorm[key]
		out = append(out, core.UniqueCitation{
			Text:        key,
			Type:        core.CiteStatute,
			Source:      b.first.Source,
			Occurrences: b.count,
			Complete:    true,
		})
	}
	return out
}
