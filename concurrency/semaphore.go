// Package concurrency implements the cross-process N-slot semaphore (C9,
// spec §4.9): one advisory-locked file per slot under a local directory, a
// pid written into the file body as the holder fingerprint, and stale-holder
// reclamation via a liveness probe (signal 0) when a slot looks held but its
// owning process is gone.
//
// Grounded on the teacher's in-process circuit breaker
// (llm/circuitbreaker/breaker.go) for the retry/backoff shape, and on
// metering's flock primitive for the advisory-lock mechanics — the spec
// calls for the same golang.org/x/sys/unix.Flock building block C9 and C12
// share.
package concurrency

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hounfour/gateway/types"
	"golang.org/x/sys/unix"
)

// Semaphore is an N-slot cross-process mutual-exclusion primitive backed by
// one lock file per slot in Dir. Dir must be on a local filesystem: the
// contract explicitly does not support advisory locks over NFS/network
// filesystems.
type Semaphore struct {
	Pool    string
	Slots   int
	Dir     string
	Backoff BackoffPolicy
}

// BackoffPolicy controls the exponential-capped retry loop used while every
// slot is held.
type BackoffPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// DefaultBackoffPolicy starts at 20ms and doubles up to 2s: the same
// exponential, capped shape as the backoff retryer in llm/retry, with much
// shorter delays than that retryer's 1s-to-30s defaults.
func DefaultBackoffPolicy() BackoffPolicy {
	return BackoffPolicy{Initial: 20 * time.Millisecond, Max: 2 * time.Second}
}

// NewSemaphore returns a semaphore with slots lock files under dir.
func NewSemaphore(pool string, slots int, dir string) *Semaphore {
	return &Semaphore{Pool: pool, Slots: slots, Dir: dir, Backoff: DefaultBackoffPolicy()}
}

// Slot is a held semaphore slot; call Release when done with it.
type Slot struct {
	index int
	file  *os.File
}

// Index returns the zero-based slot index held.
func (s *Slot) Index() int { return s.index }

// Release unlocks and closes the slot's file, freeing it for the next
// acquirer.
func (s *Slot) Release() error {
	unix.Flock(int(s.file.Fd()), unix.LOCK_UN)
	return s.file.Close()
}

func (sem *Semaphore) slotPath(i int) string {
	return filepath.Join(sem.Dir, fmt.Sprintf(".semaphore-%s-%d.lock", sem.Pool, i))
}

// Acquire iterates slot indices attempting a non-blocking exclusive lock on
// each, reclaiming any slot whose recorded holder pid is no longer alive.
// If every slot is held by a live process, it backs off exponentially
// (capped at Backoff.Max) and retries until timeout elapses.
func (sem *Semaphore) Acquire(timeout time.Duration) (*Slot, error) {
	if err := os.MkdirAll(sem.Dir, 0o755); err != nil {
		return nil, err
	}

	deadline := time.Now().Add(timeout)
	delay := sem.Backoff.Initial
	if delay <= 0 {
		delay = DefaultBackoffPolicy().Initial
	}

	for {
		for i := 0; i < sem.Slots; i++ {
			sem.reclaimIfStale(i)

			f, err := os.OpenFile(sem.slotPath(i), os.O_RDWR|os.O_CREATE, 0o600)
			if err != nil {
				continue
			}
			if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
				f.Close()
				continue
			}

			if err := f.Truncate(0); err != nil {
				unix.Flock(int(f.Fd()), unix.LOCK_UN)
				f.Close()
				return nil, err
			}
			if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
				unix.Flock(int(f.Fd()), unix.LOCK_UN)
				f.Close()
				return nil, err
			}
			return &Slot{index: i, file: f}, nil
		}

		if time.Now().After(deadline) {
			return nil, types.NewError(types.ErrTimeout, fmt.Sprintf("semaphore %q: no slot available within timeout", sem.Pool))
		}

		remaining := time.Until(deadline)
		sleep := delay
		if sleep > remaining {
			sleep = remaining
		}
		time.Sleep(sleep)

		delay *= 2
		if delay > sem.Backoff.Max {
			delay = sem.Backoff.Max
		}
	}
}

// reclaimIfStale reads the pid recorded in slot i's file, if any, and
// unlinks the file when that process no longer exists. This is cooperative:
// it only helps when the file is not currently flock-held by a live
// process, since a live holder's lock will simply fail the subsequent
// non-blocking acquire attempt regardless.
func (sem *Semaphore) reclaimIfStale(i int) {
	path := sem.slotPath(i)
	data, err := os.ReadFile(path)
	if err != nil || len(data) == 0 {
		return
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return
	}
	if processAlive(pid) {
		return
	}
	os.Remove(path)
}

// processAlive probes liveness with signal 0, which performs error checking
// without actually sending a signal (kill(2)).
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(unix.Signal(0)) == nil
}
