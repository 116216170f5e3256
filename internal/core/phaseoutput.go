package core

import (
	"encoding/json"
	"time"
)

// PhaseStatus is the declared outcome of a single phase execution.
type PhaseStatus string

const (
	PhaseCompleted PhaseStatus = "completed"
	PhaseFailed    PhaseStatus = "failed"
	PhaseHold      PhaseStatus = "hold"
)

// PhaseOutput is the immutable record produced each time a phase runs.
// Payload carries the phase-specific structure, already validated
// against that phase's schema before the record is accepted.
type PhaseOutput struct {
	ID           string
	OrderID      OrderID
	Phase        Phase
	Tier         Tier
	Status       PhaseStatus
	Payload      json.RawMessage
	CitationText string // citation-bearing content, empty otherwise
	Model        string
	TokensIn     int
	TokensOut    int
	CostUSD      float64
	Disclosure   string // set on bounded-loop forced exits
	CreatedAt    time.Time
}
