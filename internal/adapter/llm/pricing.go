package llm

// Pricing is the USD cost per million tokens for one model.
type Pricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Pricer converts token usage into USD cost. Models without a price entry
// cost zero; the metrics still carry their token counts.
type Pricer struct {
	table map[string]Pricing
}

// NewPricer builds a pricer from a model -> pricing table.
func NewPricer(table map[string]Pricing) *Pricer {
	cp := make(map[string]Pricing, len(table))
	for model, p := range table {
		cp[model] = p
	}
	return &Pricer{table: cp}
}

// Cost returns the USD cost of one call.
func (p *Pricer) Cost(model string, tokensIn, tokensOut int64) float64 {
	pr, ok := p.table[model]
	if !ok {
		return 0
	}
	return float64(tokensIn)/1e6*pr.InputPer1M + float64(tokensOut)/1e6*pr.OutputPer1M
}
