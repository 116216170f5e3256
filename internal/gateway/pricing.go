package gateway

import "github.com/motiongranted/draftengine/internal/core"

// price holds per-million-token USD rates for one model.
type price struct {
	InputPerM  float64
	OutputPerM float64
}

// priceTable maps model identifiers to rates. Unknown models price at
// the reasoning-class rate, erring toward overcounting spend.
var priceTable = map[string]price{
	core.ModelGPTReasoning:    {InputPerM: 10.00, OutputPerM: 30.00},
	core.ModelGPTEfficient:    {InputPerM: 0.40, OutputPerM: 1.60},
	core.ModelClaudeReasoning: {InputPerM: 15.00, OutputPerM: 75.00},
	core.ModelClaudeEfficient: {InputPerM: 0.80, OutputPerM: 4.00},
}

var fallbackPrice = price{InputPerM: 15.00, OutputPerM: 75.00}

// Cost computes the USD cost of one call from token counts.
func Cost(model string, tokensIn, tokensOut int) float64 {
	p, ok := priceTable[model]
	if !ok {
		p = fallbackPrice
	}
	return float64(tokensIn)/1e6*p.InputPerM + float64(tokensOut)/1e6*p.OutputPerM
}
