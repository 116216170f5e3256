// Package core provides the domain model shared across the engine:
// orders, phases, citations, grades, checkpoints, errors and ports.
// All packages import model identifiers from here for consistency.
package core

// ModelClass distinguishes the two interchangeable model capabilities.
type ModelClass string

const (
	// ModelReasoning is the high-capability reasoning model class, used
	// for drafting, grading and holding verification.
	ModelReasoning ModelClass = "reasoning"

	// ModelEfficient is the cost-efficient model class, used for
	// summaries, extraction assists and routing-light tasks.
	ModelEfficient ModelClass = "efficient"
)

// Vendor identifies which backend services a model identifier.
type Vendor string

const (
	VendorOpenAI    Vendor = "openai"
	VendorAnthropic Vendor = "anthropic"
)

// Model identifiers. Each class is obtainable from either vendor; the
// gateway's static table maps identifier -> vendor.
const (
	ModelGPTReasoning    = "gpt-5.2"
	ModelGPTEfficient    = "gpt-5.2-mini"
	ModelClaudeReasoning = "claude-opus-4-5"
	ModelClaudeEfficient = "claude-haiku-4-5"
)

// ModelVendors is the static model -> vendor table. The gateway is
// agnostic to it beyond the lookup.
var ModelVendors = map[string]Vendor{
	ModelGPTReasoning:    VendorOpenAI,
	ModelGPTEfficient:    VendorOpenAI,
	ModelClaudeReasoning: VendorAnthropic,
	ModelClaudeEfficient: VendorAnthropic,
}

// ModelClasses maps each model identifier to its capability class.
var ModelClasses = map[string]ModelClass{
	ModelGPTReasoning:    ModelReasoning,
	ModelGPTEfficient:    ModelEfficient,
	ModelClaudeReasoning: ModelReasoning,
	ModelClaudeEfficient: ModelEfficient,
}

// IsValidModel checks if the given model identifier is known.
func IsValidModel(model string) bool {
	_, ok := ModelVendors[model]
	return ok
}
