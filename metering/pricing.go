// Package metering implements integer micro-USD cost accounting (C11), the
// append-only spend ledger (C12), the daily budget enforcer (C13), and the
// per-provider rate limiter (C10). All four share the same durable-state
// pattern: small JSON/JSONL files under a run directory, serialized with
// golang.org/x/sys/unix.Flock, grounded on
// _examples/original_source/.claude/adapters/loa_cheval/metering/*.py.
//
// All money fields are int64 micro-USD (1 USD == 1_000_000 micro-USD); no
// floating point appears anywhere in the cost path.
package metering

import (
	"sync"

	"github.com/hounfour/gateway/types"
)

// MaxSafeProduct bounds tokens*price to preserve IEEE-754-double parity with
// the JS/TS sibling implementation this pricing model was ported from
// (Number.MAX_SAFE_INTEGER == 2^53-1), not to Go's own int64 range.
const MaxSafeProduct = (int64(1) << 53) - 1

// PricingMode selects how a completion's token/task counts convert to cost.
type PricingMode string

const (
	PricingToken  PricingMode = "token"
	PricingTask   PricingMode = "task"
	PricingHybrid PricingMode = "hybrid"
)

// PricingEntry is per-model pricing, all fields in micro-USD per million
// tokens except PerTaskMicroUSD, which is a flat micro-USD charge.
type PricingEntry struct {
	Provider           string      `json:"provider"`
	Model              string      `json:"model"`
	InputPerMtok       int64       `json:"input_per_mtok"`
	OutputPerMtok      int64       `json:"output_per_mtok"`
	ReasoningPerMtok   int64       `json:"reasoning_per_mtok"`
	PerTaskMicroUSD    int64       `json:"per_task_micro_usd"`
	Mode               PricingMode `json:"pricing_mode"`
}

// CostBreakdown is the detailed per-completion cost result.
type CostBreakdown struct {
	InputCostMicro     int64 `json:"input_cost_micro"`
	OutputCostMicro    int64 `json:"output_cost_micro"`
	ReasoningCostMicro int64 `json:"reasoning_cost_micro"`
	TotalCostMicro     int64 `json:"total_cost_micro"`
	RemainderInput     int64 `json:"remainder_input"`
	RemainderOutput    int64 `json:"remainder_output"`
	RemainderReasoning int64 `json:"remainder_reasoning"`
}

// CalculateCostMicro computes floor(tokens*pricePerMillionMicro/1_000_000)
// and its remainder, using only integer arithmetic (INV-001). Negative
// inputs and products exceeding MaxSafeProduct fail with BUDGET_OVERFLOW.
func CalculateCostMicro(tokens, pricePerMillionMicro int64) (costMicro, remainderMicro int64, err error) {
	if tokens < 0 || pricePerMillionMicro < 0 {
		return 0, 0, types.NewError(types.ErrBudgetOverflow, "tokens and price must be non-negative")
	}
	if tokens == 0 || pricePerMillionMicro == 0 {
		return 0, 0, nil
	}
	// Detect overflow before computing the product: tokens*price > MaxSafeProduct
	// iff tokens > MaxSafeProduct/price (integer division truncates, so also
	// check the exact remainder boundary).
	if tokens > MaxSafeProduct/pricePerMillionMicro {
		return 0, 0, types.NewError(types.ErrBudgetOverflow,
			"tokens*price exceeds MAX_SAFE_PRODUCT").WithRetryable(false)
	}
	product := tokens * pricePerMillionMicro
	if product > MaxSafeProduct {
		return 0, 0, types.NewError(types.ErrBudgetOverflow,
			"tokens*price exceeds MAX_SAFE_PRODUCT").WithRetryable(false)
	}
	return product / 1_000_000, product % 1_000_000, nil
}

// CalculateTotalCost dispatches on pricing.Mode:
//   - token:  sum of the three per-token cost primitives.
//   - task:   per_task_micro_usd only; token counts are ignored for cost.
//   - hybrid: token total plus per_task_micro_usd.
func CalculateTotalCost(inputTokens, outputTokens, reasoningTokens int64, pricing PricingEntry) (CostBreakdown, error) {
	if pricing.Mode == PricingTask {
		return CostBreakdown{TotalCostMicro: pricing.PerTaskMicroUSD}, nil
	}

	inCost, inRem, err := CalculateCostMicro(inputTokens, pricing.InputPerMtok)
	if err != nil {
		return CostBreakdown{}, err
	}
	outCost, outRem, err := CalculateCostMicro(outputTokens, pricing.OutputPerMtok)
	if err != nil {
		return CostBreakdown{}, err
	}

	var reasCost, reasRem int64
	if pricing.ReasoningPerMtok != 0 && reasoningTokens != 0 {
		reasCost, reasRem, err = CalculateCostMicro(reasoningTokens, pricing.ReasoningPerMtok)
		if err != nil {
			return CostBreakdown{}, err
		}
	}

	total := inCost + outCost + reasCost
	if pricing.Mode == PricingHybrid {
		total += pricing.PerTaskMicroUSD
	}

	return CostBreakdown{
		InputCostMicro:     inCost,
		OutputCostMicro:    outCost,
		ReasoningCostMicro: reasCost,
		TotalCostMicro:     total,
		RemainderInput:     inRem,
		RemainderOutput:    outRem,
		RemainderReasoning: reasRem,
	}, nil
}

// RemainderAccumulator carries sub-micro-USD remainders across invocations,
// keyed by an arbitrary scope string (typically provider:model or agent
// name), so long sequences of small requests eventually tip a full
// micro-USD rather than losing it to floor division forever.
type RemainderAccumulator struct {
	mu         sync.Mutex
	remainders map[string]int64
}

// NewRemainderAccumulator returns an empty accumulator.
func NewRemainderAccumulator() *RemainderAccumulator {
	return &RemainderAccumulator{remainders: make(map[string]int64)}
}

// Carry adds remainderMicro to the scope's running total and returns the
// extra whole micro-USD (0 or more) that should be added to cost once the
// accumulated remainder reaches 1,000,000.
func (r *RemainderAccumulator) Carry(scopeKey string, remainderMicro int64) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := r.remainders[scopeKey] + remainderMicro
	extra := total / 1_000_000
	r.remainders[scopeKey] = total % 1_000_000
	return extra
}

// Get returns the currently accumulated (sub-micro-USD) remainder for a scope.
func (r *RemainderAccumulator) Get(scopeKey string) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.remainders[scopeKey]
}

// Clear resets every scope's accumulated remainder.
func (r *RemainderAccumulator) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remainders = make(map[string]int64)
}

// ModelPricingConfig is the subset of the merged hounfour config this
// package reads: providers.<name>.models.<id>.pricing.
type ModelPricingConfig struct {
	Providers map[string]struct {
		Models map[string]struct {
			Pricing *PricingEntry `json:"pricing" yaml:"pricing"`
		} `json:"models" yaml:"models"`
	} `json:"providers" yaml:"providers"`
}

// FindPricing looks up a model's pricing entry from the merged config,
// filling in Provider/Model and defaulting Mode to "token" when absent.
func FindPricing(provider, model string, cfg ModelPricingConfig) (PricingEntry, bool) {
	p, ok := cfg.Providers[provider]
	if !ok {
		return PricingEntry{}, false
	}
	m, ok := p.Models[model]
	if !ok || m.Pricing == nil {
		return PricingEntry{}, false
	}
	entry := *m.Pricing
	entry.Provider = provider
	entry.Model = model
	if entry.Mode == "" {
		entry.Mode = PricingToken
	}
	return entry, true
}
