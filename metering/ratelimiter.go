package metering

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultRateLimit is a provider's {rpm,tpm} ceiling before config overrides
// apply (spec §4.10).
type DefaultRateLimit struct {
	RPM int64 `yaml:"rpm"`
	TPM int64 `yaml:"tpm"`
}

// DefaultLimits mirrors the Python original's DEFAULT_LIMITS table.
var DefaultLimits = map[string]DefaultRateLimit{
	"google":    {RPM: 60, TPM: 1_000_000},
	"openai":    {RPM: 500, TPM: 2_000_000},
	"anthropic": {RPM: 100, TPM: 1_000_000},
}

const defaultRPM = 60
const defaultTPM = 1_000_000

type rateLimitState struct {
	RequestsRemaining int64   `json:"requests_remaining"`
	TokensRemaining   int64   `json:"tokens_remaining"`
	LastUpdate        float64 `json:"last_update"`
}

// RateLimiter is a per-provider RPM/TPM token-bucket limiter persisted to
// "<StateDir>/.ratelimit-<provider>.json" (spec §6 state layout, C10).
//
// Check is ADVISORY: it reads the state file without locking, so concurrent
// processes can simultaneously observe capacity and both proceed. Record is
// the only flock-protected read-modify-write path. Callers that need hard
// enforcement should use BudgetEnforcer.PreCallAtomic instead; this limiter
// exists to shed obviously-over-limit traffic cheaply, not to be the last
// line of defense.
//
// Persisted state uses wall-clock time.Now().Unix() (not a monotonic clock)
// so elapsed-time refill computed by a different process reading the same
// file stays consistent.
type RateLimiter struct {
	RPM      int64
	TPM      int64
	StateDir string

	mu          sync.Mutex
	tpmLimiters map[string]*rate.Limiter // per-provider in-process TPM bucket, composed with the persisted file below
}

// NewRateLimiter builds a limiter with explicit RPM/TPM ceilings.
func NewRateLimiter(rpm, tpm int64, stateDir string) *RateLimiter {
	return &RateLimiter{RPM: rpm, TPM: tpm, StateDir: stateDir, tpmLimiters: make(map[string]*rate.Limiter)}
}

// tpmLimiter returns the per-provider in-process token bucket, creating it
// on first use. golang.org/x/time/rate models the same linear per-second
// refill arithmetic the persisted state tracks by hand, but cheaply and
// without the file round trip; it catches an obviously-over-budget burst
// within one process before Check even has to read the shared state file.
// It never overrides the persisted file's verdict — only adds a faster,
// local "no" on top of it.
func (r *RateLimiter) tpmLimiter(provider string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()
	lim, ok := r.tpmLimiters[provider]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(float64(r.TPM)/60.0), int(r.TPM))
		r.tpmLimiters[provider] = lim
	}
	return lim
}

// inProcessAllow peeks whether tokens are available in the in-process TPM
// bucket without consuming them (reserve-then-cancel is the idiomatic
// non-mutating check x/time/rate documents for exactly this use).
func (r *RateLimiter) inProcessAllow(provider string, tokens int64) bool {
	if tokens <= 0 {
		tokens = 1
	}
	lim := r.tpmLimiter(provider)
	res := lim.ReserveN(time.Now(), int(tokens))
	defer res.Cancel()
	return res.OK() && res.Delay() == 0
}

// NewRateLimiterForProvider applies DefaultLimits for provider, falling back
// to the generic 60rpm/1M-tpm default when the provider is unrecognized.
func NewRateLimiterForProvider(provider, stateDir string) *RateLimiter {
	d, ok := DefaultLimits[provider]
	if !ok {
		d = DefaultRateLimit{RPM: defaultRPM, TPM: defaultTPM}
	}
	return NewRateLimiter(d.RPM, d.TPM, stateDir)
}

func (r *RateLimiter) statePath(provider string) string {
	return filepath.Join(r.StateDir, fmt.Sprintf(".ratelimit-%s.json", provider))
}

func (r *RateLimiter) defaultState(now time.Time) rateLimitState {
	return rateLimitState{
		RequestsRemaining: r.RPM,
		TokensRemaining:   r.TPM,
		LastUpdate:        float64(now.Unix()),
	}
}

// refill tops up both buckets proportional to elapsed wall-clock minutes
// since LastUpdate, clamped to each bucket's ceiling.
func (r *RateLimiter) refill(s rateLimitState, now time.Time) rateLimitState {
	elapsed := float64(now.Unix()) - s.LastUpdate
	if elapsed <= 0 {
		return s
	}
	minutes := elapsed / 60.0
	rpmRefill := int64(float64(r.RPM) * minutes)
	tpmRefill := int64(float64(r.TPM) * minutes)

	s.RequestsRemaining = minInt64(r.RPM, s.RequestsRemaining+rpmRefill)
	s.TokensRemaining = minInt64(r.TPM, s.TokensRemaining+tpmRefill)
	s.LastUpdate = float64(now.Unix())
	return s
}

func (r *RateLimiter) readState(provider string) rateLimitState {
	data, err := os.ReadFile(r.statePath(provider))
	if err != nil {
		return r.defaultState(time.Now())
	}
	var s rateLimitState
	if err := json.Unmarshal(data, &s); err != nil {
		return r.defaultState(time.Now())
	}
	return s
}

// Check reports whether a request estimated to use estimatedTokens is
// within the provider's current RPM/TPM allowance. It does not consume
// capacity; callers must follow a successful completion with Record.
func (r *RateLimiter) Check(provider string, estimatedTokens int64) bool {
	if !r.inProcessAllow(provider, estimatedTokens) {
		return false
	}
	s := r.refill(r.readState(provider), time.Now())
	if s.RequestsRemaining <= 0 {
		return false
	}
	if estimatedTokens > 0 && s.TokensRemaining < estimatedTokens {
		return false
	}
	return true
}

// Record consumes one request and tokensUsed tokens from the provider's
// buckets, under an exclusive lock held for the whole refill+decrement+write.
func (r *RateLimiter) Record(provider string, tokensUsed int64) error {
	r.tpmLimiter(provider).AllowN(time.Now(), int(tokensUsed))

	if err := os.MkdirAll(r.StateDir, 0o755); err != nil {
		return err
	}
	lf, err := lockExclusive(r.statePath(provider))
	if err != nil {
		return err
	}
	defer lf.Close()

	raw := make([]byte, 4096)
	n, _ := lf.File().ReadAt(raw, 0)
	var s rateLimitState
	if n > 0 {
		if err := json.Unmarshal(raw[:n], &s); err != nil {
			s = r.defaultState(time.Now())
		}
	} else {
		s = r.defaultState(time.Now())
	}

	now := time.Now()
	s = r.refill(s, now)
	s.RequestsRemaining = maxInt64(0, s.RequestsRemaining-1)
	s.TokensRemaining = maxInt64(0, s.TokensRemaining-tokensUsed)
	s.LastUpdate = float64(now.Unix())

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

func minInt64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
