// Package interaction implements the long-running-interaction lifecycle
// (C14, spec §4.14): creating a provider "interaction" (deep-research-style
// async job), persisting it for crash recovery, polling it to completion,
// and cancelling it.
//
// Grounded on
// _examples/original_source/.claude/adapters/loa_cheval/providers/google_adapter.py's
// create_interaction/poll_interaction/cancel_interaction/_persist_interaction
// functions — the only place in original_source this lifecycle appears.
package interaction

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sys/unix"
)

// Entry is one interaction registry record (spec §6 persisted-state
// layout: `.dr-interactions.json`).
type Entry struct {
	Model     string    `json:"model"`
	StartTime time.Time `json:"start_time"`
	PID       int       `json:"pid"`
}

// Registry is the flock-protected interaction registry file, keyed by
// interaction id, enabling an external recovery tool to resume or cancel
// an interaction after its owning process crashed.
type Registry struct {
	Path string
}

// NewRegistry returns a registry backed by ".dr-interactions.json" under
// dir.
func NewRegistry(dir string) *Registry {
	return &Registry{Path: filepath.Join(dir, ".dr-interactions.json")}
}

func (r *Registry) lockPath() string { return r.Path + ".lock" }

// Persist records a newly created interaction under an exclusive lock,
// read-modify-write against the existing registry contents. Create, its
// caller, discards a failure to persist instead of surfacing it as a hard
// error — losing crash-recovery metadata should not fail the request that
// is otherwise succeeding.
func (r *Registry) Persist(id string, entry Entry) error {
	if err := os.MkdirAll(filepath.Dir(r.Path), 0o755); err != nil {
		return err
	}

	lock, err := lockExclusive(r.lockPath())
	if err != nil {
		return err
	}
	defer lock.Close()

	data, err := r.readLocked()
	if err != nil {
		data = make(map[string]Entry)
	}
	data[id] = entry

	return r.writeLocked(data)
}

// Remove deletes an interaction's registry entry under the same exclusive
// lock. Cancel calls it; Poll leaves the entry in place when an interaction
// completes or fails.
func (r *Registry) Remove(id string) error {
	lock, err := lockExclusive(r.lockPath())
	if err != nil {
		return err
	}
	defer lock.Close()

	data, err := r.readLocked()
	if err != nil {
		return nil
	}
	if _, ok := data[id]; !ok {
		return nil
	}
	delete(data, id)
	return r.writeLocked(data)
}

// List returns every currently-registered interaction (for an external
// recovery tool to resume or cancel). Corrupt/missing registry data
// degrades to an empty map, never an error.
func (r *Registry) List() map[string]Entry {
	lock, err := lockExclusive(r.lockPath())
	if err != nil {
		return map[string]Entry{}
	}
	defer lock.Close()

	data, err := r.readLocked()
	if err != nil {
		return map[string]Entry{}
	}
	return data
}

func (r *Registry) readLocked() (map[string]Entry, error) {
	raw, err := os.ReadFile(r.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Entry{}, nil
		}
		return nil, err
	}
	var data map[string]Entry
	if err := json.Unmarshal(raw, &data); err != nil {
		return map[string]Entry{}, nil
	}
	return data, nil
}

func (r *Registry) writeLocked(data map[string]Entry) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(r.Path, raw, 0o600)
}

type lockedFile struct{ f *os.File }

func lockExclusive(path string) (*lockedFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, err
	}
	return &lockedFile{f: f}, nil
}

func (l *lockedFile) Close() error {
	unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
	return l.f.Close()
}
