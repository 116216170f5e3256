package workflow

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/motiongranted/draftengine/internal/core"
)

// gradeFrontmatter is the YAML block the grading prompt asks for.
type gradeFrontmatter struct {
	OverallScore float64             `yaml:"overall_score"`
	Sections     []core.SectionGrade `yaml:"sections"`
}

// fallback pattern for graders that skip the frontmatter. Accepts
// "OVERALL_SCORE: 3.4", "**OVERALL SCORE:** 3.4" and similar.
var overallScoreRe = regexp.MustCompile(`(?im)^\**OVERALL[_\s]?SCORE[*:]*\s*([0-9]+(?:\.[0-9]+)?)`)

// ParseGrade extracts a loop grade from grader model output. The
// primary format is YAML frontmatter; a bare overall-score line is
// accepted as a degraded fallback with no section detail.
func ParseGrade(output string) (*core.LoopGrade, error) {
	if frontmatter, _, ok := splitFrontmatter(output); ok {
		var fm gradeFrontmatter
		if err := yaml.Unmarshal([]byte(frontmatter), &fm); err == nil && fm.OverallScore > 0 {
			if fm.OverallScore > 4.0 {
				return nil, core.ErrValidation(core.CodeSchemaInvalid,
					fmt.Sprintf("overall score %.2f outside 0-4 scale", fm.OverallScore))
			}
			return &core.LoopGrade{
				OverallScore: fm.OverallScore,
				Sections:     fm.Sections,
			}, nil
		}
	}

	if m := overallScoreRe.FindStringSubmatch(output); m != nil {
		score, err := strconv.ParseFloat(m[1], 64)
		if err == nil && score > 0 && score <= 4.0 {
			return &core.LoopGrade{OverallScore: score}, nil
		}
	}

	return nil, core.ErrValidation(core.CodeSchemaInvalid, "no parseable grade in grader output")
}

// splitFrontmatter extracts a YAML frontmatter block delimited by ---
// lines at the start of the text.
func splitFrontmatter(text string) (frontmatter, body string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "---") {
		return "", text, false
	}
	rest := strings.TrimPrefix(text, "---")
	rest = strings.TrimPrefix(rest, "\r\n")
	rest = strings.TrimPrefix(rest, "\n")

	idx := strings.Index(rest, "\n---")
	if idx == -1 {
		return "", text, false
	}
	frontmatter = strings.TrimSpace(rest[:idx])
	body = strings.TrimSpace(strings.TrimPrefix(rest[idx+4:], "\n"))
	return frontmatter, body, true
}

// CheckConsistency compares consecutive loop grades and applies the
// anti-inflation lock.
//
// A section flagged for inadequate authority in both loops whose score
// still rose is a hard fail: the raise is reverted to the prior score
// and the overall score recomputed. A whole-grade increase with zero
// deficiencies resolved anywhere is recorded as a warning.
func CheckConsistency(prev, curr *core.LoopGrade) *core.ConsistencyReport {
	report := &core.ConsistencyReport{AdjustedScore: curr.OverallScore}
	if prev == nil {
		return report
	}

	adjusted := make([]core.SectionGrade, len(curr.Sections))
	copy(adjusted, curr.Sections)

	resolvedAny := false
	for i := range adjusted {
		sec := &adjusted[i]
		prevSec := prev.Section(sec.Name)
		if prevSec == nil {
			continue
		}
		if len(sec.Deficiencies) < len(prevSec.Deficiencies) {
			resolvedAny = true
		}
		if !prevSec.AuthorityAdequate && !sec.AuthorityAdequate && sec.Score > prevSec.Score {
			report.HardFails = append(report.HardFails, core.ConsistencyFinding{
				Section:       sec.Name,
				PrevScore:     prevSec.Score,
				CurrScore:     sec.Score,
				AdjustedScore: prevSec.Score,
				Reason:        "score rose while authority remained inadequate",
			})
			sec.Score = prevSec.Score
		}
	}

	if len(report.HardFails) > 0 {
		report.Adjusted = true
		report.AdjustedScore = recomputeOverall(curr.OverallScore, curr.Sections, adjusted)
	}

	if report.AdjustedScore > prev.OverallScore && !resolvedAny && sectionsComparable(prev, curr) {
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("overall score rose %.2f -> %.2f with no deficiencies resolved",
				prev.OverallScore, report.AdjustedScore))
	}

	return report
}

// recomputeOverall lowers the overall score by the mean of the section
// reversions. Section weighting is unknown to the engine, so the
// adjustment is proportional rather than a full re-average.
func recomputeOverall(overall float64, before, after []core.SectionGrade) float64 {
	if len(before) == 0 {
		return overall
	}
	var delta float64
	for i := range before {
		delta += before[i].Score - after[i].Score
	}
	adjusted := overall - delta/float64(len(before))
	if adjusted < 0 {
		return 0
	}
	return adjusted
}

// sectionsComparable reports whether both grades carry section detail.
// Fallback grades without sections cannot support the deficiency
// comparison, so the inflation warning is skipped for them.
func sectionsComparable(prev, curr *core.LoopGrade) bool {
	return len(prev.Sections) > 0 && len(curr.Sections) > 0
}
