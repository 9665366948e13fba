package metering

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LedgerEntry is a single append-only cost record (spec.md §3 wire format).
// The key set is a stable contract: readers must tolerate unknown extra
// keys; decoding into this struct silently drops any key it doesn't name.
type LedgerEntry struct {
	Timestamp       string `json:"ts"`
	TraceID         string `json:"trace_id"`
	RequestID       string `json:"request_id"`
	Agent           string `json:"agent"`
	Provider        string `json:"provider"`
	Model           string `json:"model"`
	TokensIn        int64  `json:"tokens_in"`
	TokensOut       int64  `json:"tokens_out"`
	TokensReasoning int64  `json:"tokens_reasoning"`
	LatencyMs       int64  `json:"latency_ms"`
	CostMicroUSD    int64  `json:"cost_micro_usd"`
	UsageSource     string `json:"usage_source"`
	PricingSource   string `json:"pricing_source"`
	PricingMode     string `json:"pricing_mode"`
	PhaseID         string `json:"phase_id,omitempty"`
	SprintID        string `json:"sprint_id,omitempty"`
	Attempt         int    `json:"attempt"`
	InteractionID   string `json:"interaction_id,omitempty"`
}

// NewLedgerEntry computes cost from the model's pricing entry (falling
// back to zero cost with pricing_source "unknown" when the model has no
// pricing configured) and fills in timestamp/request id.
func NewLedgerEntry(traceID, agent, provider, model string, inTok, outTok, reasTok, latencyMs int64, pricing PricingEntry, havePricing bool, attempt int, usageSource, interactionID string) LedgerEntry {
	entry := LedgerEntry{
		Timestamp:       time.Now().UTC().Format("2006-01-02T15:04:05.000Z"),
		TraceID:         traceID,
		RequestID:       "req-" + uuid.New().String()[:12],
		Agent:           agent,
		Provider:        provider,
		Model:           model,
		TokensIn:        inTok,
		TokensOut:       outTok,
		TokensReasoning: reasTok,
		LatencyMs:       latencyMs,
		UsageSource:     usageSource,
		Attempt:         attempt,
		InteractionID:   interactionID,
	}

	if havePricing {
		breakdown, err := CalculateTotalCost(inTok, outTok, reasTok, pricing)
		if err == nil {
			entry.CostMicroUSD = breakdown.TotalCostMicro
			entry.PricingSource = "config"
			entry.PricingMode = string(pricing.Mode)
			return entry
		}
	}

	entry.PricingSource = "unknown"
	entry.PricingMode = string(PricingToken)
	return entry
}

// Ledger is an append-only JSONL cost ledger paired with an O(1)-readable
// daily spend summary, both serialized through golang.org/x/sys/unix.Flock
// (C12, spec §4.12). Dir is the ledger directory; the ledger file itself
// is "<Dir>/cost-ledger.jsonl" and the daily summary is
// "<Dir>/.daily-spend-<YYYY-MM-DD>.json", matching spec §6's persisted
// state layout.
type Ledger struct {
	Dir    string
	logger *zap.Logger
}

// NewLedger returns a Ledger rooted at dir. The directory is created on the
// first write, not here.
func NewLedger(dir string, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{Dir: dir, logger: logger}
}

func (l *Ledger) path() string {
	return filepath.Join(l.Dir, "cost-ledger.jsonl")
}

func (l *Ledger) dailySpendPath(date string) string {
	return filepath.Join(l.Dir, fmt.Sprintf(".daily-spend-%s.json", date))
}

// Append writes one JSON-encoded line under an exclusive advisory lock.
// This is the only supported write path for the ledger file.
func (l *Ledger) Append(entry LedgerEntry) error {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return err
	}
	lf, err := lockExclusive(l.path())
	if err != nil {
		return err
	}
	defer lf.Close()

	if _, err := lf.File().Seek(0, io.SeekEnd); err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	line = append(line, '\n')
	_, err = lf.File().Write(line)
	return err
}

// Read scans the ledger line-by-line, skipping and counting any line that
// fails to JSON-decode (truncation mid-line is survivable). Lock-free:
// lines are appended atomically, so a concurrent append cannot produce a
// torn read of an already-complete line.
func (l *Ledger) Read() ([]LedgerEntry, error) {
	f, err := os.Open(l.path())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []LedgerEntry
	var corrupt int
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e LedgerEntry
		if err := json.Unmarshal(line, &e); err != nil {
			corrupt++
			continue
		}
		entries = append(entries, e)
	}
	if corrupt > 0 {
		l.logger.Warn("ledger: skipped corrupted line(s)",
			zap.String("path", l.path()), zap.Int("count", corrupt))
	}
	return entries, scanner.Err()
}

type dailySpendSummary struct {
	Date         string `json:"date"`
	TotalMicro   int64  `json:"total_micro_usd"`
	EntryCount   int64  `json:"entry_count"`
}

// ReadDailySpend returns today's (UTC) accumulated total_micro_usd, or zero
// if the summary file is missing, corrupt, or stamped for a prior day
// (INV-002: never negative).
func (l *Ledger) ReadDailySpend() int64 {
	today := time.Now().UTC().Format("2006-01-02")
	data, err := os.ReadFile(l.dailySpendPath(today))
	if err != nil {
		return 0
	}
	var s dailySpendSummary
	if err := json.Unmarshal(data, &s); err != nil {
		return 0
	}
	if s.Date != today {
		return 0
	}
	if s.TotalMicro < 0 {
		return 0
	}
	return s.TotalMicro
}

// UpdateDailySpend increments today's summary by deltaMicro under an
// exclusive lock held across the whole read-modify-write (INV-004:
// monotonic once metering is enabled, since deltaMicro is never negative
// in the call sites that feed this).
func (l *Ledger) UpdateDailySpend(deltaMicro int64) error {
	return l.withDailySpendLock(func(spent int64) (int64, bool, error) {
		return spent + deltaMicro, true, nil
	})
}

// withDailySpendLock holds today's daily-spend file under an exclusive
// lock for the duration of fn, which receives the current total and
// returns (newTotal, wrote, err). When wrote is false, the file is left
// untouched (used by a check-only PreCallAtomic pass with no reservation).
// This is the single critical section shared by UpdateDailySpend and
// BudgetEnforcer.PreCallAtomic so both compose onto the same flock.
func (l *Ledger) withDailySpendLock(fn func(spent int64) (newTotal int64, wrote bool, err error)) error {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return err
	}
	today := time.Now().UTC().Format("2006-01-02")
	lf, err := lockExclusive(l.dailySpendPath(today))
	if err != nil {
		return err
	}
	defer lf.Close()

	raw := make([]byte, 4096)
	n, _ := lf.File().ReadAt(raw, 0)
	s := dailySpendSummary{}
	if n > 0 {
		_ = json.Unmarshal(raw[:n], &s) // corrupt/missing defaults to zero value
	}

	newTotal, wrote, err := fn(s.TotalMicro)
	if err != nil || !wrote {
		return err
	}

	s.Date = today
	s.TotalMicro = newTotal
	s.EntryCount++

	encoded, err := json.Marshal(s)
	if err != nil {
		return err
	}
	if err := lf.File().Truncate(0); err != nil {
		return err
	}
	_, err = lf.File().WriteAt(encoded, 0)
	return err
}

// RecordCost is the composition append_ledger + update_daily_spend
// (spec §4.12's record_cost). The post-call hook treats a ledger write
// failure as best-effort per spec §7: the caller decides whether to log
// and continue or surface the error.
func (l *Ledger) RecordCost(entry LedgerEntry) error {
	if err := l.Append(entry); err != nil {
		return err
	}
	return l.UpdateDailySpend(entry.CostMicroUSD)
}
