package core

import "time"

// CitationType classifies an extracted citation.
type CitationType string

const (
	CiteFullCase  CitationType = "FULL_CASE"
	CiteShortCase CitationType = "SHORT_CASE"
	CiteID        CitationType = "ID"
	CiteIbid      CitationType = "IBID"
	CiteSupra     CitationType = "SUPRA"
	CiteStatute   CitationType = "STATUTE"
	CiteUnknown   CitationType = "UNKNOWN"
)

// CitationSource records where a raw citation was found.
type CitationSource string

const (
	SourceBank  CitationSource = "bank"  // citation bank built during research
	SourceDraft CitationSource = "draft" // free text of a draft
)

// RawCitation is a single extraction from text, before deduplication.
type RawCitation struct {
	Matched    string
	Context    string
	Type       CitationType
	Source     CitationSource
	Antecedent string // resolved target for Id./Ibid/supra references
}

// RemovalReason explains why a raw citation was dropped during dedup.
type RemovalReason string

const (
	RemovedIncomplete       RemovalReason = "INCOMPLETE"
	RemovedSeriesTruncation RemovalReason = "SERIES_TRUNCATION"
	RemovedPrefixTruncation RemovalReason = "PREFIX_TRUNCATION"
	RemovedSubstring        RemovalReason = "SUBSTRING"
	RemovedExactDuplicate   RemovalReason = "EXACT_DUPLICATE"
)

// RemovedCitation pairs a dropped citation with its removal reason and
// the accepted citation it collided with, when there is one.
type RemovedCitation struct {
	Citation  RawCitation
	Reason    RemovalReason
	KeptMatch string
}

// UniqueCitation is a canonical citation surviving deduplication.
type UniqueCitation struct {
	Text           string
	Type           CitationType
	Source         CitationSource
	Occurrences    int
	Complete       bool // has volume + reporter + page
	FormatWarnings []string
}

// VerificationStage identifies how far the pipeline ran for a citation.
type VerificationStage int

const (
	// StageHolding is the first-pass holding check on one backend.
	StageHolding VerificationStage = 1

	// StageAdversarial is the independent cross-check on the other vendor.
	StageAdversarial VerificationStage = 2
)

// Classification is the terminal outcome for a verified citation.
type Classification string

const (
	// ClassVerified means stage 1 confidence cleared the skip threshold,
	// or stage 2 confirmed the holding.
	ClassVerified Classification = "VERIFIED"

	// ClassHoldingStage2 means the citation required adversarial
	// cross-checking and its outcome stands on the stage 2 verdict.
	ClassHoldingStage2 Classification = "HOLDING_STAGE_2"

	// ClassHoldingMismatch means stage 1 confidence was too low to
	// trust; stage 2 runs for the audit trail but never upgrades it.
	ClassHoldingMismatch Classification = "HOLDING_MISMATCH"

	// ClassUnverifiableBudget means the metered lookup budget was
	// exhausted before the citation could be checked.
	ClassUnverifiableBudget Classification = "UNVERIFIABLE_BUDGET"
)

// VerificationResult records the outcome for one canonical citation in
// one order. Results are append-only: a later phase that introduces new
// citations creates new records rather than editing old ones.
type VerificationResult struct {
	OrderID        OrderID
	Citation       string
	Confidence     float64
	Stage          VerificationStage
	Classification Classification
	Stage1Model    string
	Stage1Finding  string
	Stage2Model    string
	Stage2Finding  string
	CreatedAt      time.Time
}
