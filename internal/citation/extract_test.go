package citation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motiongranted/draftengine/internal/core"
)

func byType(cites []core.RawCitation, typ core.CitationType) []core.RawCitation {
	var out []core.RawCitation
	for _, c := range cites {
		if c.Type == typ {
			out = append(out, c)
		}
	}
	return out
}

func TestExtract_FullCase(t *testing.T) {
	text := "Summary judgment is proper. Anderson v. Liberty Lobby, Inc., 477 U.S. 242, 248 (1986). " +
		"The Eleventh Circuit agrees. Smith v. Jones, 210 So. 3d 447 (Fla. 2016)."
	cites := Extract(text, core.SourceDraft)

	full := byType(cites, core.CiteFullCase)
	require.Len(t, full, 2)
	assert.Equal(t, "477 U.S. 242, 248 (1986)", full[0].Matched)
	assert.Equal(t, "210 So. 3d 447 (Fla. 2016)", full[1].Matched)
	assert.NotEmpty(t, full[0].Context)
}

func TestExtract_ShortAndIdResolveAntecedents(t *testing.T) {
	text := "Anderson v. Liberty Lobby, 477 U.S. 242 (1986) controls. Id. at 248. " +
		"So does Anderson, 477 U.S. at 250."
	cites := Extract(text, core.SourceDraft)

	ids := byType(cites, core.CiteID)
	require.Len(t, ids, 1)
	assert.Equal(t, "477 U.S. 242 (1986)", ids[0].Antecedent)

	shorts := byType(cites, core.CiteShortCase)
	require.Len(t, shorts, 1)
	assert.Equal(t, "477 U.S. 242 (1986)", shorts[0].Antecedent)
}

func TestExtract_Statutes(t *testing.T) {
	text := "Liability arises under 42 U.S.C. § 1983 and Fla. Stat. § 768.28. See also 28 C.F.R. § 35.130."
	statutes := byType(Extract(text, core.SourceBank), core.CiteStatute)

	require.Len(t, statutes, 3)
	assert.Equal(t, "42 U.S.C. § 1983", statutes[0].Matched)
}

func TestCleanText(t *testing.T) {
	in := "<p>See  Anderson,</p>   477 U.S. 242 ____ (1986)"
	out := CleanText(in)
	assert.Equal(t, "See Anderson, 477 U.S. 242 (1986)", out)
}

func TestIsComplete(t *testing.T) {
	cases := []struct {
		text string
		want bool
	}{
		{"210 So. 3d 447", true},
		{"210 So. 3", true}, // parses as vol+reporter+page on its own
		{"100 F.3d 200, 205", true},
		{"100 Xyz. 200", false}, // unknown reporter
		{"F.3d 200", false},     // no volume
		{"some text", false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, IsComplete(tc.text), tc.text)
	}
}

func TestNormalizeStatute(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"42  u.s.c. §1983", "42 U.S.C. § 1983"},
		{"42 U.S.C. §§ 1983", "42 U.S.C. § 1983"},
		{"Fla. Stat. § 768.28,", "FLA. STAT. § 768.28"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, NormalizeStatute(tc.in), tc.in)
	}
}
