package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motiongranted/draftengine/internal/core"
)

func rawCase(texts ...string) []core.RawCitation {
	out := make([]core.RawCitation, len(texts))
	for i, t := range texts {
		out[i] = core.RawCitation{Matched: t, Type: core.CiteFullCase, Source: core.SourceDraft}
	}
	return out
}

func uniqueTexts(r DedupeResult) []string {
	out := make([]string, len(r.Unique))
	for i, u := range r.Unique {
		out[i] = u.Text
	}
	return out
}

func TestDedupe_SeriesTruncation(t *testing.T) {
	// "210 So. 3" is a mid-abbreviation read of "210 So. 3d 447": the
	// page number was consumed before the series suffix "d".
	res := Dedupe(rawCase("210 So. 3", "210 So. 3d 447"))

	require.Len(t, res.Unique, 1)
	assert.Equal(t, "210 So. 3d 447", res.Unique[0].Text)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, core.RemovedSeriesTruncation, res.Removed[0].Reason)
	assert.Equal(t, "210 So. 3d 447", res.Removed[0].KeptMatch)
}

func TestDedupe_CompletenessOverridesPrefix(t *testing.T) {
	// A page cite and the same cite with a pinpoint are both
	// independently complete; both stay.
	res := Dedupe(rawCase("100 F.3d 200", "100 F.3d 200, 205"))

	assert.ElementsMatch(t, []string{"100 F.3d 200", "100 F.3d 200, 205"}, uniqueTexts(res))
	assert.Empty(t, res.Removed)
}

func TestDedupe_IncompleteShape(t *testing.T) {
	res := Dedupe(rawCase("see generally the discussion", "100 F.3d 200"))

	require.Len(t, res.Unique, 1)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, core.RemovedIncomplete, res.Removed[0].Reason)
}

func TestDedupe_PrefixTruncationOfUnknownReporter(t *testing.T) {
	// Shaped like a citation but with a reporter the table does not
	// know: not independently complete, so the prefix rule removes it.
	res := Dedupe(rawCase("100 Xyz. 200", "100 Xyz. 200 (5th Cir. 1996)"))

	require.Len(t, res.Unique, 1)
	assert.Equal(t, "100 Xyz. 200 (5th Cir. 1996)", res.Unique[0].Text)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, core.RemovedPrefixTruncation, res.Removed[0].Reason)
}

func TestDedupe_ExactDuplicateCounts(t *testing.T) {
	res := Dedupe(rawCase("477 U.S. 242", "477 U.S. 242", "477 U.S. 242"))

	require.Len(t, res.Unique, 1)
	assert.Equal(t, 3, res.Unique[0].Occurrences)
	require.Len(t, res.Removed, 2)
	for _, r := range res.Removed {
		assert.Equal(t, core.RemovedExactDuplicate, r.Reason)
	}
}

func TestDedupe_Substring(t *testing.T) {
	res := Dedupe(rawCase("Anderson v. Liberty Lobby, 477 U.S. 242 (1986)", "477 U.S. 242"))

	require.Len(t, res.Unique, 1)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, core.RemovedSubstring, res.Removed[0].Reason)
}

func TestDedupe_Idempotent(t *testing.T) {
	input := rawCase(
		"210 So. 3", "210 So. 3d 447",
		"100 F.3d 200", "100 F.3d 200, 205",
		"477 U.S. 242", "477 U.S. 242",
	)
	first := Dedupe(input)

	again := make([]core.RawCitation, 0, len(first.Unique))
	for _, u := range first.Unique {
		again = append(again, core.RawCitation{Matched: u.Text, Type: u.Type, Source: u.Source})
	}
	second := Dedupe(again)

	assert.ElementsMatch(t, uniqueTexts(first), uniqueTexts(second))
	assert.Empty(t, second.Removed)
}

func TestDedupe_StatutesNeverEnterCaseLawPath(t *testing.T) {
	raw := []core.RawCitation{
		{Matched: "42 U.S.C. § 1983", Type: core.CiteStatute, Source: core.SourceDraft},
		{Matched: "42 u.s.c. §1983", Type: core.CiteStatute, Source: core.SourceDraft},
		{Matched: "100 F.3d 200", Type: core.CiteFullCase, Source: core.SourceDraft},
	}
	res := Dedupe(raw)

	require.Len(t, res.Unique, 2)
	var statute *core.UniqueCitation
	for i := range res.Unique {
		if res.Unique[i].Type == core.CiteStatute {
			statute = &res.Unique[i]
		}
	}
	require.NotNil(t, statute)
	// The two spellings collapse through normalization, with no
	// case-law removal record.
	assert.Equal(t, 2, statute.Occurrences)
	assert.Empty(t, res.Removed)
}

func TestDedupe_ReferentialCitesExcluded(t *testing.T) {
	raw := []core.RawCitation{
		{Matched: "477 U.S. 242", Type: core.CiteFullCase, Source: core.SourceDraft},
		{Matched: "Id. at 248", Type: core.CiteID, Source: core.SourceDraft, Antecedent: "477 U.S. 242"},
		{Matched: "Anderson, 477 U.S. at 248", Type: core.CiteShortCase, Source: core.SourceDraft},
	}
	res := Dedupe(raw)

	require.Len(t, res.Unique, 1)
	assert.Equal(t, "477 U.S. 242", res.Unique[0].Text)
}

func TestFormatWarnings(t *testing.T) {
	warnings := FormatWarnings("100 F.3d 200")
	assert.Contains(t, warnings, "missing page pinpoint")
	assert.Contains(t, warnings, "missing court/year parenthetical")

	assert.Empty(t, FormatWarnings("100 F.3d 200, 205 (5th Cir. 1996)"))
}
