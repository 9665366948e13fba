package interaction

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hounfour/gateway/types"
)

// pollGroup collapses concurrent Poll calls for the same interaction id
// into a single in-flight transport.Poll loop, so two goroutines awaiting
// the same long-running interaction don't double the provider round trips.
var pollGroup singleflight.Group

// completed/failed status synonyms tolerated across providers (schema
// tolerance — spec §4.14 accepts either a `status` or `state` field, and
// a handful of spellings for each terminal state).
var (
	completedStates = map[string]bool{"completed": true, "done": true, "succeeded": true}
	failedStates    = map[string]bool{"failed": true, "error": true, "cancelled": true}
)

// PollResult is one GET against the interaction endpoint, normalized to
// the fields the poll loop needs.
type PollResult struct {
	Status     string // raw status/state string, lowercased
	Output     string
	RetryAfter bool // true if the caller should treat this as a transient 429/5xx
}

// Transport performs the three HTTP verbs a provider's interaction
// lifecycle needs. Providers that support deep-research-style async
// completion implement this directly against their own endpoints.
type Transport interface {
	Create(ctx context.Context) (interactionID string, err error)
	Poll(ctx context.Context, interactionID string) (PollResult, error)
	Cancel(ctx context.Context, interactionID string) error
}

const (
	maxPollRetries  = 5
	progressLogGap  = 30 * time.Second
	pollRetryCapSec = 30
)

// ProgressLogger is called at most once per progressLogGap while a poll is
// in flight; callers wire this to their logger. Must not receive prompt
// content (spec §4.14: "excluding any prompt content").
type ProgressLogger func(interactionID, status string, elapsed time.Duration)

// Create starts a long-running interaction and immediately persists its
// metadata to the registry so an external recovery tool can resume or
// cancel it after a crash.
func Create(ctx context.Context, transport Transport, registry *Registry, model string, pid int) (string, error) {
	id, err := transport.Create(ctx)
	if err != nil {
		return "", err
	}
	if id == "" {
		return "", types.NewError(types.ErrInvalidResponse, "interaction create returned no interaction id")
	}

	if err := registry.Persist(id, Entry{Model: model, StartTime: time.Now(), PID: pid}); err != nil {
		// Losing crash-recovery metadata must not fail an otherwise
		// successful create.
		_ = err
	}
	return id, nil
}

// Poll loops until the interaction reaches a completed or failed state, or
// until timeout elapses. Concurrent Poll calls for the same id share one
// underlying loop via singleflight. Transient statuses are retried with
// exponential backoff up to maxPollRetries before surfacing; unknown
// intermediate states are tolerated and simply logged.
func Poll(ctx context.Context, transport Transport, id string, pollInterval, timeout time.Duration, onProgress ProgressLogger) (PollResult, error) {
	v, err, _ := pollGroup.Do(id, func() (any, error) {
		return pollLoop(ctx, transport, id, pollInterval, timeout, onProgress)
	})
	if err != nil {
		return PollResult{}, err
	}
	return v.(PollResult), nil
}

func pollLoop(ctx context.Context, transport Transport, id string, pollInterval, timeout time.Duration, onProgress ProgressLogger) (PollResult, error) {
	deadline := time.Now().Add(timeout)
	start := time.Now()
	lastLog := start
	attempt := 0

	for {
		if time.Now().After(deadline) {
			return PollResult{}, types.NewError(types.ErrTimeout, "interaction poll timed out").WithRetryable(false)
		}

		result, err := transport.Poll(ctx, id)
		if err != nil {
			attempt++
			if attempt > maxPollRetries {
				return PollResult{}, err
			}
			if !sleepOrDone(ctx, backoffDelay(pollInterval, attempt)) {
				return PollResult{}, ctx.Err()
			}
			continue
		}

		if result.RetryAfter {
			attempt++
			if attempt > maxPollRetries {
				return PollResult{}, types.NewError(types.ErrRetriesExhausted, "interaction poll exhausted retries on transient status")
			}
			if !sleepOrDone(ctx, backoffDelay(pollInterval, attempt)) {
				return PollResult{}, ctx.Err()
			}
			continue
		}
		attempt = 0

		status := strings.ToLower(result.Status)
		if completedStates[status] {
			return result, nil
		}
		if failedStates[status] {
			return PollResult{}, types.NewError(types.ErrProviderUnavailable, "interaction reached a failed state: "+status).WithRetryable(false)
		}

		if onProgress != nil && time.Since(lastLog) >= progressLogGap {
			onProgress(id, status, time.Since(start))
			lastLog = time.Now()
		}

		if !sleepOrDone(ctx, pollInterval) {
			return PollResult{}, ctx.Err()
		}
	}
}

// Cancel requests cancellation and removes the interaction from the
// registry. Cancellation is treated as idempotent: cancelling an
// already-completed interaction is a success, not an error, as long as
// the provider doesn't respond with a 5xx (transport.Cancel's contract).
func Cancel(ctx context.Context, transport Transport, registry *Registry, id string) error {
	err := transport.Cancel(ctx, id)
	if registry != nil {
		_ = registry.Remove(id)
	}
	return err
}

func backoffDelay(base time.Duration, attempt int) time.Duration {
	d := base * time.Duration(1<<uint(attempt))
	cap := time.Duration(pollRetryCapSec) * time.Second
	if d > cap {
		d = cap
	}
	return d
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
