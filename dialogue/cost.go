package dialogue

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// ModelPricing defines input and output token costs for a model.
// Prices are in USD per 1M tokens.
type ModelPricing struct {
	InputPer1M  float64
	OutputPer1M float64
}

// Published list prices for the cloud catalog models. Local models are not
// listed and cost nothing.
var defaultModelPricing = map[string]ModelPricing{
	"claude-opus-4-20250514":   {InputPer1M: 15.00, OutputPer1M: 75.00},
	"claude-sonnet-4-20250514": {InputPer1M: 3.00, OutputPer1M: 15.00},
	"gemini-2.5-pro":           {InputPer1M: 1.25, OutputPer1M: 10.00},
	"gemini-2.5-flash":         {InputPer1M: 0.30, OutputPer1M: 2.50},
	"gpt-4o":                   {InputPer1M: 2.50, OutputPer1M: 10.00},
	"gpt-4o-mini":              {InputPer1M: 0.15, OutputPer1M: 0.60},
}

// Price returns the USD cost of a call with the default pricing table.
func Price(modelID string, inputTokens, outputTokens int) float64 {
	return priceWith(defaultModelPricing, modelID, inputTokens, outputTokens)
}

func priceWith(table map[string]ModelPricing, modelID string, inputTokens, outputTokens int) float64 {
	p, ok := table[modelID]
	if !ok {
		return 0
	}
	return float64(inputTokens)/1_000_000.0*p.InputPer1M + float64(outputTokens)/1_000_000.0*p.OutputPer1M
}

// LLMCall is one recorded model invocation.
type LLMCall struct {
	Model        string
	NodeID       string
	InputTokens  int
	OutputTokens int
	CostUSD      float64
	Timestamp    time.Time
}

// CostTracker accumulates token usage and cost for a session.
//
// Thread-safe: all methods use mutex protection.
type CostTracker struct {
	SessionID string

	mu         sync.RWMutex
	pricing    map[string]ModelPricing
	calls      []LLMCall
	total      float64
	modelCosts map[string]float64
	inTokens   int64
	outTokens  int64
}

// NewCostTracker creates a tracker with the default pricing table.
func NewCostTracker(sessionID string) *CostTracker {
	pricing := make(map[string]ModelPricing, len(defaultModelPricing))
	for k, v := range defaultModelPricing {
		pricing[k] = v
	}
	return &CostTracker{
		SessionID:  sessionID,
		pricing:    pricing,
		modelCosts: make(map[string]float64),
	}
}

// RecordLLMCall records a call and returns its cost. Models without a price
// are recorded at zero cost.
func (ct *CostTracker) RecordLLMCall(modelID string, inputTokens, outputTokens int, nodeID string) float64 {
	ct.mu.Lock()
	defer ct.mu.Unlock()

	cost := priceWith(ct.pricing, modelID, inputTokens, outputTokens)
	ct.calls = append(ct.calls, LLMCall{
		Model:        modelID,
		NodeID:       nodeID,
		InputTokens:  inputTokens,
		OutputTokens: outputTokens,
		CostUSD:      cost,
		Timestamp:    time.Now(),
	})
	ct.total += cost
	ct.modelCosts[modelID] += cost
	ct.inTokens += int64(inputTokens)
	ct.outTokens += int64(outputTokens)
	return cost
}

// SetCustomPricing overrides the price of one model.
func (ct *CostTracker) SetCustomPricing(modelID string, inputPer1M, outputPer1M float64) {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	ct.pricing[modelID] = ModelPricing{InputPer1M: inputPer1M, OutputPer1M: outputPer1M}
}

// GetTotalCost returns the cumulative cost in USD.
func (ct *CostTracker) GetTotalCost() float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.total
}

// GetCostByModel returns a copy of the per-model cost breakdown.
func (ct *CostTracker) GetCostByModel() map[string]float64 {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	costs := make(map[string]float64, len(ct.modelCosts))
	for m, c := range ct.modelCosts {
		costs[m] = c
	}
	return costs
}

// GetTokenUsage returns total input and output token counts.
func (ct *CostTracker) GetTokenUsage() (inputTokens, outputTokens int64) {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return ct.inTokens, ct.outTokens
}

// GetCallHistory returns a copy of every recorded call.
func (ct *CostTracker) GetCallHistory() []LLMCall {
	ct.mu.RLock()
	defer ct.mu.RUnlock()
	return append([]LLMCall(nil), ct.calls...)
}

// String returns a human-readable summary.
func (ct *CostTracker) String() string {
	ct.mu.RLock()
	defer ct.mu.RUnlock()

	models := make([]string, 0, len(ct.modelCosts))
	for m := range ct.modelCosts {
		models = append(models, m)
	}
	sort.Strings(models)

	return fmt.Sprintf("calls=%d tokens_in=%d tokens_out=%d cost=$%.4f models=%v",
		len(ct.calls), ct.inTokens, ct.outTokens, ct.total, models)
}
