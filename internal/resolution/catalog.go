// Package resolution produces remedies for reported problems via a tiered
// strategy chain: assistant thread, single-shot classification, then a
// deterministic keyword matcher. Every strategy failure is caught locally
// and falls through; exhausting the chain yields a not-found result that
// the dialogue layer surfaces as technician handoff.
package resolution

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// CatalogEntry is one remedy scenario: a label, ordered steps, and optional
// notes. Entries are static, externally supplied, and read-only.
type CatalogEntry struct {
	Label string   `json:"label"`
	Steps []string `json:"steps"`
	Notes string   `json:"notes,omitempty"`
}

// Catalog holds the remedy entries and supports hot reload from file.
type Catalog struct {
	mu      sync.RWMutex
	entries []CatalogEntry
	path    string
}

// NewCatalog wraps an already-loaded entry list (tests, embedded defaults).
func NewCatalog(entries []CatalogEntry) *Catalog {
	return &Catalog{entries: entries}
}

// LoadCatalog reads the remedy catalog from a JSON file.
func LoadCatalog(path string) (*Catalog, error) {
	entries, err := readCatalogFile(path)
	if err != nil {
		return nil, err
	}
	return &Catalog{entries: entries, path: path}, nil
}

func readCatalogFile(path string) ([]CatalogEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	return entries, nil
}

// Entries returns a snapshot of the entry list.
func (c *Catalog) Entries() []CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]CatalogEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// FindByLabel returns the first entry whose label contains pattern
// (case-insensitive), or nil.
func (c *Catalog) FindByLabel(pattern string) *CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := strings.ToLower(pattern)
	for i := range c.entries {
		if strings.Contains(strings.ToLower(c.entries[i].Label), p) {
			e := c.entries[i]
			return &e
		}
	}
	return nil
}

// At returns the entry at index (0-based), or nil when out of range.
func (c *Catalog) At(idx int) *CatalogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if idx < 0 || idx >= len(c.entries) {
		return nil
	}
	e := c.entries[idx]
	return &e
}

// Watch reloads the catalog when its file changes. Events are debounced;
// a malformed file keeps the previous entries. Blocks until ctx ends.
func (c *Catalog) Watch(ctx context.Context) error {
	if c.path == "" {
		return fmt.Errorf("catalog: no backing file to watch")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("catalog watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory: editors replace files via rename, which drops
	// a watch placed on the file itself.
	if err := watcher.Add(filepath.Dir(c.path)); err != nil {
		return fmt.Errorf("catalog watcher add: %w", err)
	}

	var pending <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(c.path) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			pending = time.After(500 * time.Millisecond)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Warn("catalog watcher error", "error", err)
		case <-pending:
			pending = nil
			entries, err := readCatalogFile(c.path)
			if err != nil {
				slog.Warn("catalog reload failed, keeping previous entries", "error", err)
				continue
			}
			c.mu.Lock()
			c.entries = entries
			c.mu.Unlock()
			slog.Info("catalog reloaded", "entries", len(entries))
		}
	}
}
