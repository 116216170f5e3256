// Package citation implements extraction, deduplication and staged
// verification of legal citations found in drafts and research output.
package citation

import (
	"regexp"
	"strings"

	"github.com/motiongranted/draftengine/internal/core"
)

// knownReporters is the reporter abbreviation table, longest series
// forms first so the scanner consumes "So. 3d" before "So.".
var knownReporters = []string{
	"U.S.", "S. Ct.", "L. Ed. 2d", "L. Ed.",
	"F.4th", "F.3d", "F.2d", "F. Supp. 3d", "F. Supp. 2d", "F. Supp.", "F. App'x", "F.",
	"So. 3d", "So. 2d", "So.",
	"P.3d", "P.2d", "P.",
	"N.E.3d", "N.E.2d", "N.E.", "N.W.2d", "N.W.",
	"S.E.2d", "S.E.", "S.W.3d", "S.W.2d", "S.W.",
	"A.3d", "A.2d", "A.",
	"Cal. Rptr. 3d", "Cal. Rptr. 2d", "Cal. Rptr.",
	"Wn.2d", "Ill. 2d", "N.Y.S.2d", "N.Y.S.3d",
}

// seriesContinuations are the tokens that complete a reporter series
// ordinal. A shorter extraction whose accepted superstring continues
// with one of these was cut off mid-abbreviation.
var seriesContinuations = []string{"d", "th", "nd", "rd", "st"}

var reporterSet = func() map[string]bool {
	m := make(map[string]bool, len(knownReporters))
	for _, r := range knownReporters {
		m[normalizeSpace(r)] = true
	}
	return m
}()

var reporterAlternation = func() string {
	quoted := make([]string, len(knownReporters))
	for i, r := range knownReporters {
		quoted[i] = strings.ReplaceAll(regexp.QuoteMeta(r), " ", `\s+`)
	}
	return strings.Join(quoted, "|")
}()

// fullCaseRe matches volume + known reporter + page, with optional
// pinpoint and court/year parenthetical.
var fullCaseRe = regexp.MustCompile(
	`\b(\d{1,4})\s+(` + reporterAlternation + `)\s*(\d{1,5})((?:,\s*\d{1,5}(?:[-–]\d{1,5})?)*)(\s*\([^)]*\d{4}\))?`)

// looseCaseRe matches anything shaped like a case citation, including
// truncated reporters the strict table would reject. Used only for
// shape classification during dedup.
var looseCaseRe = regexp.MustCompile(
	`\d{1,4}\s+(?:[A-Z][A-Za-z.']*\s*)+\d{1,5}`)

// shortCaseRe matches short-form cites like "Anderson, 477 U.S. at 248".
var shortCaseRe = regexp.MustCompile(
	`\b([A-Z][A-Za-z.']+),?\s+(\d{1,4})\s+(` + reporterAlternation + `)\s+at\s+(\d{1,5})`)

var idRe = regexp.MustCompile(`\bId\.(?:\s+at\s+\d{1,5})?`)
var ibidRe = regexp.MustCompile(`\bIbid\.`)
var supraRe = regexp.MustCompile(`\b([A-Z][A-Za-z.']+),?\s+supra(?:,?\s+(?:note\s+\d+|at\s+\d{1,5}))?`)

var statuteRes = []*regexp.Regexp{
	regexp.MustCompile(`\b\d{1,3}\s+U\.?\s?S\.?\s?C\.?(?:A\.)?\s+§{1,2}\s*[\dA-Za-z][\w.\-()]*`),
	regexp.MustCompile(`\b\d{1,3}\s+C\.F\.R\.\s+§{1,2}\s*[\d][\w.\-()]*`),
	regexp.MustCompile(`\bFla\.\s+Stat\.(?:\s+Ann\.)?\s+§{1,2}\s*[\d][\w.\-()]*`),
	regexp.MustCompile(`\bCal\.\s+(?:Civ\.|Penal|Evid\.|Bus\.\s*&\s*Prof\.)\s+Code\s+§{1,2}\s*[\d][\w.\-()]*`),
	regexp.MustCompile(`\bTex\.\s+[A-Z][a-z]+\.(?:\s+[A-Z][a-z]+\.)*\s+Code\s+(?:Ann\.\s+)?§{1,2}\s*[\d][\w.\-()]*`),
}

var (
	htmlTagRe    = regexp.MustCompile(`<[^>]+>`)
	underscoreRe = regexp.MustCompile(`_{2,}`)
	spaceRe      = regexp.MustCompile(`\s+`)
)

// CleanText prepares text for extraction: strips markup, collapses
// whitespace runs and removes underscore fill lines.
func CleanText(text string) string {
	text = htmlTagRe.ReplaceAllString(text, " ")
	text = underscoreRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

func normalizeSpace(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

const contextWindow = 120

func contextAround(text string, start, end int) string {
	lo := start - contextWindow
	if lo < 0 {
		lo = 0
	}
	hi := end + contextWindow
	if hi > len(text) {
		hi = len(text)
	}
	return strings.TrimSpace(text[lo:hi])
}

// Extract pulls every citation out of text. Case-law and statutory
// citations take separate matchers; Id./Ibid/supra references are
// resolved to the nearest preceding full case citation.
func Extract(text string, source core.CitationSource) []core.RawCitation {
	text = CleanText(text)
	var out []core.RawCitation

	type span struct{ start, end int }
	var fullSpans []span

	fullIdx := fullCaseRe.FindAllStringIndex(text, -1)
	for _, loc := range fullIdx {
		fullSpans = append(fullSpans, span{loc[0], loc[1]})
		out = append(out, core.RawCitation{
			Matched: normalizeSpace(text[loc[0]:loc[1]]),
			Context: contextAround(text, loc[0], loc[1]),
			Type:    core.CiteFullCase,
			Source:  source,
		})
	}

	antecedentAt := func(pos int) string {
		best := ""
		for i, s := range fullSpans {
			if s.end <= pos {
				best = normalizeSpace(text[fullSpans[i].start:fullSpans[i].end])
			}
		}
		return best
	}

	for _, loc := range shortCaseRe.FindAllStringIndex(text, -1) {
		if overlapsAny(loc, fullIdx) {
			continue
		}
		out = append(out, core.RawCitation{
			Matched:    normalizeSpace(text[loc[0]:loc[1]]),
			Context:    contextAround(text, loc[0], loc[1]),
			Type:       core.CiteShortCase,
			Source:     source,
			Antecedent: antecedentAt(loc[0]),
		})
	}
	for _, loc := range idRe.FindAllStringIndex(text, -1) {
		out = append(out, core.RawCitation{
			Matched:    normalizeSpace(text[loc[0]:loc[1]]),
			Context:    contextAround(text, loc[0], loc[1]),
			Type:       core.CiteID,
			Source:     source,
			Antecedent: antecedentAt(loc[0]),
		})
	}
	for _, loc := range ibidRe.FindAllStringIndex(text, -1) {
		out = append(out, core.RawCitation{
			Matched:    normalizeSpace(text[loc[0]:loc[1]]),
			Context:    contextAround(text, loc[0], loc[1]),
			Type:       core.CiteIbid,
			Source:     source,
			Antecedent: antecedentAt(loc[0]),
		})
	}
	for _, loc := range supraRe.FindAllStringIndex(text, -1) {
		out = append(out, core.RawCitation{
			Matched:    normalizeSpace(text[loc[0]:loc[1]]),
			Context:    contextAround(text, loc[0], loc[1]),
			Type:       core.CiteSupra,
			Source:     source,
			Antecedent: antecedentAt(loc[0]),
		})
	}

	for _, re := range statuteRes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			out = append(out, core.RawCitation{
				Matched: normalizeSpace(text[loc[0]:loc[1]]),
				Context: contextAround(text, loc[0], loc[1]),
				Type:    core.CiteStatute,
				Source:  source,
			})
		}
	}

	return out
}

func overlapsAny(loc []int, spans [][]int) bool {
	for _, s := range spans {
		if loc[0] < s[1] && loc[1] > s[0] {
			return true
		}
	}
	return false
}

// IsComplete reports whether text independently carries the minimum
// citation shape: volume, a reporter from the table, and a page.
func IsComplete(text string) bool {
	m := fullCaseRe.FindStringSubmatch(normalizeSpace(text))
	if m == nil {
		return false
	}
	return reporterSet[normalizeSpace(m[2])]
}

// HasLooseShape reports whether text is at least shaped like a case
// citation (number, capitalized abbreviation, number), without
// requiring the reporter to be known.
func HasLooseShape(text string) bool {
	return looseCaseRe.MatchString(normalizeSpace(text))
}

// FormatWarnings returns advisory issues for a complete citation, such
// as a missing pinpoint or missing court/year parenthetical.
func FormatWarnings(text string) []string {
	m := fullCaseRe.FindStringSubmatch(normalizeSpace(text))
	if m == nil {
		return nil
	}
	var warnings []string
	if m[4] == "" {
		warnings = append(warnings, "missing page pinpoint")
	}
	if m[5] == "" {
		warnings = append(warnings, "missing court/year parenthetical")
	}
	return warnings
}
