package core

import "time"

// PassThreshold is the grading score an order must clear to leave the
// revision loop. Tier-independent.
const PassThreshold = 3.3

// MaxRevisionLoops bounds the number of automated revision cycles. Once
// reached, grading is forced to terminal assembly with a disclosure.
const MaxRevisionLoops = 3

// SectionGrade scores one section of a draft.
type SectionGrade struct {
	Name              string   `json:"name" yaml:"name"`
	Score             float64  `json:"score" yaml:"score"`
	AuthorityAdequate bool     `json:"authority_adequate" yaml:"authority_adequate"`
	Deficiencies      []string `json:"deficiencies,omitempty" yaml:"deficiencies,omitempty"`
}

// LoopGrade is the self-grading record for one revision-loop iteration.
// Append-only; the consistency lock compares loop n against loop n+1.
type LoopGrade struct {
	OrderID      OrderID        `json:"order_id"`
	Loop         int            `json:"loop"`
	OverallScore float64        `json:"overall_score"`
	Sections     []SectionGrade `json:"sections"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Section returns the named section grade, or nil if absent.
func (g *LoopGrade) Section(name string) *SectionGrade {
	for i := range g.Sections {
		if g.Sections[i].Name == name {
			return &g.Sections[i]
		}
	}
	return nil
}

// Passed reports whether the overall score clears the pass threshold.
func (g *LoopGrade) Passed() bool {
	return g.OverallScore >= PassThreshold
}

// ConsistencyFinding is one anti-inflation violation between two loops.
type ConsistencyFinding struct {
	Section       string
	PrevScore     float64
	CurrScore     float64
	AdjustedScore float64
	Reason        string
}

// ConsistencyReport is the outcome of comparing consecutive loop grades.
type ConsistencyReport struct {
	HardFails     []ConsistencyFinding
	Warnings      []string
	AdjustedScore float64
	Adjusted      bool
}
