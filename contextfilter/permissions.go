package contextfilter

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// PermissionsFile is the on-disk shape of model-permissions.yaml: a flat
// map from "<provider>:<model_id>" to its trust scopes.
type PermissionsFile struct {
	Models map[string]TrustScopes `yaml:"models"`
}

// PermissionsCache loads model-permissions.yaml once and re-reads it only
// when the file's mtime changes, so a long-running process picks up edits
// without a restart.
type PermissionsCache struct {
	Path string

	mu    sync.Mutex
	mtime int64
	data  PermissionsFile
}

// NewPermissionsCache returns a cache rooted at path.
func NewPermissionsCache(path string) *PermissionsCache {
	return &PermissionsCache{Path: path}
}

// Invalidate forces the next Lookup to re-read the file regardless of its
// mtime. Intended for use alongside an fsnotify watcher on the config
// directory, so an edit that lands within the same filesystem mtime
// granularity as the prior read is still picked up.
func (c *PermissionsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mtime = 0
	c.data = PermissionsFile{}
}

func (c *PermissionsCache) reloadIfStale() {
	info, err := os.Stat(c.Path)
	if err != nil {
		c.data = PermissionsFile{}
		c.mtime = 0
		return
	}
	mtime := info.ModTime().UnixNano()
	if mtime == c.mtime && c.data.Models != nil {
		return
	}

	raw, err := os.ReadFile(c.Path)
	if err != nil {
		c.data = PermissionsFile{}
		c.mtime = 0
		return
	}

	var parsed PermissionsFile
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		// Corrupt permissions file: treat as empty (all-full default)
		// rather than failing every request.
		c.data = PermissionsFile{}
		c.mtime = mtime
		return
	}

	c.data = parsed
	c.mtime = mtime
}

// Watch establishes an fsnotify watch on the permissions file's directory
// and calls Invalidate on every write/create/rename event touching it, so
// Lookup picks up an edit on its very next call instead of waiting for a
// stat-based mtime check. If no watch can be established (platform lacks
// inotify/kqueue, or the directory can't be added), Watch falls back to a
// timer-driven stat poll at the given interval, matching the fallback the
// general config file watcher uses.
func (c *PermissionsCache) Watch(ctx context.Context, logger *zap.Logger, pollFallback time.Duration) {
	if logger == nil {
		logger = zap.NewNop()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Warn("permissions cache: fsnotify unavailable, falling back to polling", zap.Error(err))
		c.pollLoop(ctx, pollFallback)
		return
	}
	if err := fw.Add(filepath.Dir(c.Path)); err != nil {
		logger.Warn("permissions cache: could not watch permissions directory, falling back to polling",
			zap.String("path", c.Path), zap.Error(err))
		fw.Close()
		c.pollLoop(ctx, pollFallback)
		return
	}

	go func() {
		defer fw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if ev.Name == c.Path {
					c.Invalidate()
				}
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				logger.Warn("permissions cache: fsnotify error", zap.Error(err))
			}
		}
	}()
}

func (c *PermissionsCache) pollLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Invalidate()
			}
		}
	}()
}

// Lookup returns the trust scopes configured for provider:model, or
// DefaultTrustScopes (all full) when unconfigured.
func (c *PermissionsCache) Lookup(provider, modelID string) TrustScopes {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reloadIfStale()
	scopes, ok := c.data.Models[provider+":"+modelID]
	if !ok {
		return DefaultTrustScopes()
	}
	return normalize(scopes)
}
