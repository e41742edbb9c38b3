// Package filesync tracks a root directory's file tree across runs.
// It maintains a persisted snapshot of relative path to content hash
// and computes {added, modified, removed} deltas with minimal work.
package filesync

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/dshills/semindex-mcp/internal/hasher"
	"github.com/dshills/semindex-mcp/internal/merkle"
)

// Snapshot is the persisted map of relative path to content hash for
// one root. The on-disk layout is part of the compatibility contract.
type Snapshot struct {
	Root   string            `json:"root"`
	Hashes map[string]string `json:"hashes"`
}

// Changes is the three-set delta between two consecutive snapshots.
type Changes struct {
	Added    []string
	Modified []string
	Removed  []string
}

// Synchronizer owns one root's snapshot file. It is not safe for
// concurrent use; the indexing pipeline serializes access per root.
type Synchronizer struct {
	root        string
	snapshotDir string
	walker      *Walker
	hashes      map[string]string
	log         *logrus.Entry
}

// NewSynchronizer creates a synchronizer for root, persisting its
// snapshot under snapshotDir. Ignore patterns default when empty.
func NewSynchronizer(root, snapshotDir string, ignores []string) *Synchronizer {
	return &Synchronizer{
		root:        root,
		snapshotDir: snapshotDir,
		walker:      NewWalker(ignores),
		hashes:      make(map[string]string),
		log:         logrus.WithFields(logrus.Fields{"component": "filesync", "root": root}),
	}
}

// SnapshotPath returns the snapshot file location for a root.
func SnapshotPath(snapshotDir, root string) string {
	return filepath.Join(snapshotDir, hasher.Hash(root)+".json")
}

// Initialize loads the persisted snapshot when one exists; otherwise
// it walks the tree, hashes every tracked file, and persists the
// result. Any load failure falls back to a fresh walk.
func (s *Synchronizer) Initialize() error {
	if err := s.load(); err == nil {
		s.log.WithField("files", len(s.hashes)).Debug("loaded file snapshot")
		return nil
	}

	current, err := s.hashTree()
	if err != nil {
		return fmt.Errorf("failed to build initial snapshot: %w", err)
	}
	s.hashes = current
	if err := s.persist(); err != nil {
		return fmt.Errorf("failed to persist initial snapshot: %w", err)
	}
	s.log.WithField("files", len(s.hashes)).Info("generated file snapshot")
	return nil
}

// CheckForChanges walks the current tree, diffs it against the held
// snapshot, then atomically replaces and persists the snapshot before
// returning. Two consecutive calls with no filesystem changes return
// empty deltas. When the snapshot file has been deleted out from
// under us, the first call rebuilds the baseline from the in-memory
// state and persists it silently.
func (s *Synchronizer) CheckForChanges() (Changes, error) {
	current, err := s.hashTree()
	if err != nil {
		return Changes{}, fmt.Errorf("failed to walk tree: %w", err)
	}

	// Cheap structural check first: equal DAGs mean an unchanged
	// tree, and the keyed diff can be skipped entirely.
	diff := merkle.Compare(buildDAG(s.hashes), buildDAG(current))
	var changes Changes
	if len(diff.Added) == 0 && len(diff.Removed) == 0 {
		changes = Changes{Added: []string{}, Modified: []string{}, Removed: []string{}}
	} else {
		changes = diffHashes(s.hashes, current)
	}

	s.hashes = current
	if err := s.persist(); err != nil {
		return Changes{}, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"added":    len(changes.Added),
		"modified": len(changes.Modified),
		"removed":  len(changes.Removed),
	}).Debug("change detection complete")
	return changes, nil
}

// DeleteSnapshot removes the persisted snapshot file for a root.
// Missing files are not an error.
func DeleteSnapshot(snapshotDir, root string) error {
	err := os.Remove(SnapshotPath(snapshotDir, root))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// buildDAG folds a snapshot into a content-addressed DAG: one root
// summarizing the whole tree, one child per file keyed by path:hash.
// Node ids are pure functions of content, so two snapshots of an
// unchanged tree produce structurally identical DAGs.
func buildDAG(hashes map[string]string) *merkle.DAG {
	entries := make([]string, 0, len(hashes))
	for path, hash := range hashes {
		entries = append(entries, path+":"+hash)
	}
	sort.Strings(entries)

	dag := merkle.NewDAG()
	rootID := dag.AddNode(strings.Join(entries, "\n"))
	for _, entry := range entries {
		dag.AddNode(entry, rootID)
	}
	return dag
}

func diffHashes(prev, current map[string]string) Changes {
	changes := Changes{Added: []string{}, Modified: []string{}, Removed: []string{}}
	for path, hash := range current {
		old, ok := prev[path]
		switch {
		case !ok:
			changes.Added = append(changes.Added, path)
		case old != hash:
			changes.Modified = append(changes.Modified, path)
		}
	}
	for path := range prev {
		if _, ok := current[path]; !ok {
			changes.Removed = append(changes.Removed, path)
		}
	}
	return changes
}

func (s *Synchronizer) hashTree() (map[string]string, error) {
	files, err := s.walker.Walk(s.root)
	if err != nil {
		return nil, err
	}

	hashes := make(map[string]string, len(files))
	for _, rel := range files {
		h, err := hasher.HashFile(filepath.Join(s.root, rel))
		if err != nil {
			s.log.WithError(err).WithField("path", rel).Warn("skipping unreadable file")
			continue
		}
		hashes[rel] = h
	}
	return hashes, nil
}

func (s *Synchronizer) load() error {
	data, err := os.ReadFile(SnapshotPath(s.snapshotDir, s.root))
	if err != nil {
		return err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Hashes == nil {
		snap.Hashes = make(map[string]string)
	}
	s.hashes = snap.Hashes
	return nil
}

func (s *Synchronizer) persist() error {
	if err := os.MkdirAll(s.snapshotDir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(Snapshot{Root: s.root, Hashes: s.hashes})
	if err != nil {
		return err
	}

	// Temp-file + rename keeps readers from observing partial writes.
	path := SnapshotPath(s.snapshotDir, s.root)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
