// Package registry tracks per-codebase indexing status in a single
// JSON file. The in-memory map is authoritative for the lifetime of
// the process; disk is a cache read at startup. Every reader sees its
// own writes immediately, independent of whether the disk write has
// completed.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Status is the state of one codebase in the registry.
type Status string

const (
	StatusIndexing Status = "indexing"
	StatusIndexed  Status = "indexed"
	StatusFailed   Status = "failed"
)

// Completion reports how a finished index run ended.
type Completion string

const (
	CompletionCompleted    Completion = "completed"
	CompletionLimitReached Completion = "limit_reached"
)

// Entry is the tagged union persisted per codebase path.
type Entry struct {
	Status       Status     `json:"status"`
	Progress     float64    `json:"progress,omitempty"`     // indexing
	Files        int        `json:"files,omitempty"`        // indexed
	Chunks       int        `json:"chunks,omitempty"`       // indexed
	Completion   Completion `json:"completion,omitempty"`   // indexed
	Message      string     `json:"message,omitempty"`      // failed
	LastProgress *float64   `json:"lastProgress,omitempty"` // failed
	LastUpdated  string     `json:"lastUpdated"`
}

// IndexedStats carries the results recorded on success.
type IndexedStats struct {
	Files      int
	Chunks     int
	Completion Completion
}

type registryFile struct {
	Codebases map[string]Entry `json:"codebases"`
}

// Registry is the process-wide codebase status store. Safe for
// concurrent use.
type Registry struct {
	path string

	mu        sync.RWMutex
	codebases map[string]Entry

	log *logrus.Entry
}

// New creates a registry backed by the given file, loading persisted
// state when present. Load failures are logged and start empty.
func New(path string) *Registry {
	r := &Registry{
		path:      path,
		codebases: make(map[string]Entry),
		log:       logrus.WithField("component", "registry"),
	}
	if err := r.load(); err != nil && !os.IsNotExist(err) {
		r.log.WithError(err).Warn("failed to load registry, starting empty")
	}
	return r
}

// SetIndexing records an in-progress state with percentage.
func (r *Registry) SetIndexing(path string, progress float64) {
	r.mu.Lock()
	r.codebases[path] = Entry{
		Status:      StatusIndexing,
		Progress:    clampProgress(progress),
		LastUpdated: now(),
	}
	r.mu.Unlock()
	r.persist()
}

// SetIndexed records a successful index run.
func (r *Registry) SetIndexed(path string, stats IndexedStats) {
	if stats.Completion == "" {
		stats.Completion = CompletionCompleted
	}
	r.mu.Lock()
	r.codebases[path] = Entry{
		Status:      StatusIndexed,
		Files:       stats.Files,
		Chunks:      stats.Chunks,
		Completion:  stats.Completion,
		LastUpdated: now(),
	}
	r.mu.Unlock()
	r.persist()
}

// SetFailed records a fatal failure, preserving the last progress
// observed when available.
func (r *Registry) SetFailed(path, message string) {
	r.mu.Lock()
	entry := Entry{
		Status:      StatusFailed,
		Message:     message,
		LastUpdated: now(),
	}
	if prev, ok := r.codebases[path]; ok && prev.Status == StatusIndexing {
		p := prev.Progress
		entry.LastProgress = &p
	}
	r.codebases[path] = entry
	r.mu.Unlock()
	r.persist()
}

// Clear removes a codebase entry entirely.
func (r *Registry) Clear(path string) {
	r.mu.Lock()
	delete(r.codebases, path)
	r.mu.Unlock()
	r.persist()
}

// Get returns the entry for a path.
func (r *Registry) Get(path string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.codebases[path]
	return entry, ok
}

// List returns a copy of every entry.
func (r *Registry) List() map[string]Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Entry, len(r.codebases))
	for path, entry := range r.codebases {
		out[path] = entry
	}
	return out
}

// GetIndexed returns the paths currently in the indexed state.
func (r *Registry) GetIndexed() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var paths []string
	for path, entry := range r.codebases {
		if entry.Status == StatusIndexed {
			paths = append(paths, path)
		}
	}
	return paths
}

// CollectionChecker reports whether a backing collection exists.
// Satisfied by the vector store.
type CollectionChecker interface {
	HasCollection(ctx context.Context, name string) (bool, error)
}

// Reconcile drops indexed entries whose backing collection no longer
// exists. Entries still indexing are left intact: they may belong to
// a freshly created collection that is still being populated.
func (r *Registry) Reconcile(ctx context.Context, store CollectionChecker, collectionName func(path string) string) {
	stale := make([]string, 0)
	for path, entry := range r.List() {
		if entry.Status != StatusIndexed {
			continue
		}
		has, err := store.HasCollection(ctx, collectionName(path))
		if err != nil {
			r.log.WithError(err).WithField("path", path).Warn("reconcile check failed")
			continue
		}
		if !has {
			stale = append(stale, path)
		}
	}
	for _, path := range stale {
		r.log.WithField("path", path).Info("dropping stale registry entry")
		r.Clear(path)
	}
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return err
	}
	var file registryFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("invalid registry file: %w", err)
	}
	if file.Codebases != nil {
		r.codebases = file.Codebases
	}
	return nil
}

// persist writes the registry to disk. Failures are logged, never
// surfaced: the in-memory state stays authoritative.
func (r *Registry) persist() {
	r.mu.RLock()
	data, err := json.MarshalIndent(registryFile{Codebases: r.codebases}, "", "  ")
	r.mu.RUnlock()
	if err != nil {
		r.log.WithError(err).Warn("failed to encode registry")
		return
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		r.log.WithError(err).Warn("failed to create registry directory")
		return
	}
	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		r.log.WithError(err).Warn("failed to write registry")
		return
	}
	if err := os.Rename(tmp, r.path); err != nil {
		r.log.WithError(err).Warn("failed to replace registry")
	}
}

func clampProgress(p float64) float64 {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
