package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motiongranted/draftengine/internal/core"
)

func TestParseGradeFrontmatter(t *testing.T) {
	output := `---
overall_score: 3.4
sections:
  - name: argument
    score: 3.5
    authority_adequate: true
  - name: facts
    score: 3.2
    authority_adequate: false
    deficiencies:
      - "record citations missing for fact 12"
---

The draft is close to final quality.`

	g, err := ParseGrade(output)
	require.NoError(t, err)
	assert.InDelta(t, 3.4, g.OverallScore, 1e-9)
	require.Len(t, g.Sections, 2)
	assert.Equal(t, "argument", g.Sections[0].Name)
	assert.False(t, g.Sections[1].AuthorityAdequate)
	assert.Len(t, g.Sections[1].Deficiencies, 1)
	assert.True(t, g.Passed())
}

func TestParseGradeFallbackScoreLine(t *testing.T) {
	g, err := ParseGrade("Reviewed in full.\n\n**OVERALL_SCORE:** 3.1\n\nNeeds work on facts.")
	require.NoError(t, err)
	assert.InDelta(t, 3.1, g.OverallScore, 1e-9)
	assert.Empty(t, g.Sections)
	assert.False(t, g.Passed())
}

func TestParseGradeRejectsGarbage(t *testing.T) {
	_, err := ParseGrade("I cannot grade this draft.")
	require.Error(t, err)
}

func TestParseGradeRejectsScoreOffScale(t *testing.T) {
	_, err := ParseGrade("---\noverall_score: 9.5\n---\n")
	require.Error(t, err)
}

func section(name string, score float64, adequate bool, defs ...string) core.SectionGrade {
	return core.SectionGrade{Name: name, Score: score, AuthorityAdequate: adequate, Deficiencies: defs}
}

func TestCheckConsistencyNoPriorLoop(t *testing.T) {
	curr := &core.LoopGrade{OverallScore: 3.5}
	report := CheckConsistency(nil, curr)
	assert.False(t, report.Adjusted)
	assert.InDelta(t, 3.5, report.AdjustedScore, 1e-9)
	assert.Empty(t, report.HardFails)
}

func TestCheckConsistencyRevertsInflatedInadequateSection(t *testing.T) {
	prev := &core.LoopGrade{
		OverallScore: 3.0,
		Sections: []core.SectionGrade{
			section("argument", 3.0, false, "no controlling authority"),
		},
	}
	curr := &core.LoopGrade{
		OverallScore: 3.4,
		Sections: []core.SectionGrade{
			section("argument", 3.8, false, "no controlling authority"),
		},
	}

	report := CheckConsistency(prev, curr)
	require.Len(t, report.HardFails, 1)
	assert.Equal(t, "argument", report.HardFails[0].Section)
	assert.InDelta(t, 3.0, report.HardFails[0].AdjustedScore, 1e-9)
	assert.True(t, report.Adjusted)
	// 3.4 minus the 0.8 reversion over one section.
	assert.InDelta(t, 2.6, report.AdjustedScore, 1e-9)
}

func TestCheckConsistencyAllowsRaiseWhenAuthorityFixed(t *testing.T) {
	prev := &core.LoopGrade{
		OverallScore: 3.0,
		Sections:     []core.SectionGrade{section("argument", 3.0, false, "no controlling authority")},
	}
	curr := &core.LoopGrade{
		OverallScore: 3.5,
		Sections:     []core.SectionGrade{section("argument", 3.7, true)},
	}

	report := CheckConsistency(prev, curr)
	assert.Empty(t, report.HardFails)
	assert.False(t, report.Adjusted)
	assert.InDelta(t, 3.5, report.AdjustedScore, 1e-9)
	assert.Empty(t, report.Warnings)
}

func TestCheckConsistencyWarnsOnInflationWithoutResolution(t *testing.T) {
	prev := &core.LoopGrade{
		OverallScore: 3.0,
		Sections: []core.SectionGrade{
			section("argument", 3.0, true, "tone too aggressive"),
			section("facts", 3.0, true, "fact 12 unsupported"),
		},
	}
	curr := &core.LoopGrade{
		OverallScore: 3.5,
		Sections: []core.SectionGrade{
			section("argument", 3.5, true, "tone too aggressive"),
			section("facts", 3.5, true, "fact 12 unsupported"),
		},
	}

	report := CheckConsistency(prev, curr)
	assert.Empty(t, report.HardFails)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "no deficiencies resolved")
}
