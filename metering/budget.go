package metering

import (
	"sync"

	"go.uber.org/zap"
)

// BudgetStatus is the verdict pre_call/pre_call_atomic return (spec §4.13).
type BudgetStatus string

const (
	BudgetAllow     BudgetStatus = "ALLOW"
	BudgetWarn      BudgetStatus = "WARN"
	BudgetDowngrade BudgetStatus = "DOWNGRADE"
	BudgetBlock     BudgetStatus = "BLOCK"
)

// OnExceeded selects what pre_call returns once spend reaches the daily
// limit.
type OnExceeded string

const (
	OnExceededBlock     OnExceeded = "block"
	OnExceededDowngrade OnExceeded = "downgrade"
	OnExceededWarn      OnExceeded = "warn"
)

// BudgetConfig mirrors the metering.budget section of the merged config
// (spec §6's "Configuration file" layout).
type BudgetConfig struct {
	Enabled       bool       `yaml:"enabled"`
	DailyMicroUSD int64      `yaml:"daily_micro_usd"`
	WarnAtPercent int64      `yaml:"warn_at_percent"`
	OnExceeded    OnExceeded `yaml:"on_exceeded"`
}

// DefaultBudgetConfig matches the Python original's defaults.
func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		Enabled:       true,
		DailyMicroUSD: 500_000_000,
		WarnAtPercent: 80,
		OnExceeded:    OnExceededDowngrade,
	}
}

// PostCallInput is what BudgetEnforcer.PostCall needs to record a
// completed request's cost; it deliberately does not depend on the llm
// package's ChatRequest/ChatResponse shape, keeping metering free of an
// import-cycle-prone dependency on the dispatch layer.
type PostCallInput struct {
	Agent           string
	Provider        string
	Model           string
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	LatencyMs       int64
	UsageSource     string // "actual" | "estimated"
	InteractionID   string // non-empty for Deep Research polls; dedup key
}

// BudgetEnforcer implements C13: pre-call daily-spend checks (both
// non-atomic and flock-atomic variants) and post-call cost recording with
// interaction-id deduplication (INV-010).
//
// Concurrency is intentionally best-effort for the non-atomic path:
// parallel callers may both observe ALLOW before either records cost.
// Expected overshoot is bounded by max_total_attempts * max_cost_per_call
// (spec §4.13), which is why pre_call_atomic exists for callers that need
// the stronger guarantee.
type BudgetEnforcer struct {
	cfg    BudgetConfig
	ledger *Ledger
	logger *zap.Logger

	mu              sync.Mutex
	attempt         int
	seenInteraction map[string]bool
}

// NewBudgetEnforcer builds an enforcer against an already-constructed
// Ledger (so the enforcer and any direct ledger callers share one lock
// domain on the same directory).
func NewBudgetEnforcer(cfg BudgetConfig, ledger *Ledger, logger *zap.Logger) *BudgetEnforcer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BudgetEnforcer{
		cfg:             cfg,
		ledger:          ledger,
		logger:          logger,
		seenInteraction: make(map[string]bool),
	}
}

// PreCall reads today's spend (O(1)) and returns ALLOW/WARN/DOWNGRADE/BLOCK
// per the configured OnExceeded policy.
func (b *BudgetEnforcer) PreCall() BudgetStatus {
	if !b.cfg.Enabled {
		return BudgetAllow
	}
	b.mu.Lock()
	b.attempt++
	b.mu.Unlock()

	spent := b.ledger.ReadDailySpend()
	return b.classify(spent)
}

func (b *BudgetEnforcer) classify(spent int64) BudgetStatus {
	if spent >= b.cfg.DailyMicroUSD {
		switch b.cfg.OnExceeded {
		case OnExceededBlock:
			b.logger.Warn("budget BLOCK", zap.Int64("spent", spent), zap.Int64("limit", b.cfg.DailyMicroUSD))
			return BudgetBlock
		case OnExceededDowngrade:
			b.logger.Warn("budget DOWNGRADE", zap.Int64("spent", spent), zap.Int64("limit", b.cfg.DailyMicroUSD))
			return BudgetDowngrade
		default:
			b.logger.Warn("budget WARN", zap.Int64("spent", spent), zap.Int64("limit", b.cfg.DailyMicroUSD))
			return BudgetWarn
		}
	}

	warnThreshold := b.cfg.DailyMicroUSD * b.cfg.WarnAtPercent / 100
	if spent >= warnThreshold {
		b.logger.Info("budget WARN", zap.Int64("spent", spent), zap.Int64("threshold", warnThreshold))
		return BudgetWarn
	}
	return BudgetAllow
}

// PreCallAtomic holds the daily-spend file under an exclusive lock for the
// whole check-and-reserve, eliminating the check-then-act race between
// concurrent callers (spec §4.13). reservationMicro == 0 performs a
// check-only pass without writing a reservation.
func (b *BudgetEnforcer) PreCallAtomic(reservationMicro int64) (BudgetStatus, error) {
	if !b.cfg.Enabled {
		return BudgetAllow, nil
	}
	b.mu.Lock()
	b.attempt++
	b.mu.Unlock()

	var status BudgetStatus
	err := b.ledger.withDailySpendLock(func(spent int64) (newTotal int64, wrote bool, err error) {
		status = b.classify(spent)
		if status == BudgetBlock || status == BudgetDowngrade {
			return spent, false, nil
		}
		if reservationMicro > 0 {
			return spent + reservationMicro, true, nil
		}
		return spent, false, nil
	})
	return status, err
}

// PostCall records the actual cost through the ledger. Calling PostCall
// twice with the same non-empty InteractionID is a no-op the second time
// (INV-010), preventing a long-running task's completed-state poll from
// being billed more than once.
func (b *BudgetEnforcer) PostCall(in PostCallInput, pricing PricingEntry, havePricing bool) error {
	if !b.cfg.Enabled {
		return nil
	}

	if in.InteractionID != "" {
		b.mu.Lock()
		dup := b.seenInteraction[in.InteractionID]
		if !dup {
			b.seenInteraction[in.InteractionID] = true
		}
		b.mu.Unlock()
		if dup {
			b.logger.Info("skipping duplicate cost for interaction", zap.String("interaction_id", in.InteractionID))
			return nil
		}
	}

	b.mu.Lock()
	attempt := b.attempt
	b.mu.Unlock()

	entry := NewLedgerEntry("", in.Agent, in.Provider, in.Model, in.InputTokens, in.OutputTokens,
		in.ReasoningTokens, in.LatencyMs, pricing, havePricing, attempt, in.UsageSource, in.InteractionID)
	return b.ledger.RecordCost(entry)
}

// CheckBudget is the standalone, request-independent check: it classifies
// today's spend without counting an attempt or holding a lock.
func CheckBudget(cfg BudgetConfig, ledger *Ledger) BudgetStatus {
	if !cfg.Enabled {
		return BudgetAllow
	}
	e := &BudgetEnforcer{cfg: cfg, ledger: ledger, logger: zap.NewNop()}
	return e.classify(ledger.ReadDailySpend())
}
