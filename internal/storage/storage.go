// Package storage owns the local workspace of a run: canonical artifacts in
// the output directory, run scoped temp files and backup staging.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Workspace holds the directories used by one run.
type Workspace struct {
	OutputDir  string // Canonical API and product documents
	BackupDir  string // Backup root, holding latest/ and run staging
	RunID      string
	TempDir    string // Run scoped, removed by End
	StagingDir string // Run scoped backup staging, kept until Commit or Discard
	mu         sync.RWMutex
}

// NewWorkspace creates a workspace rooted at the given directories.
func NewWorkspace(outputDir, backupDir string) *Workspace {
	return &Workspace{
		OutputDir: outputDir,
		BackupDir: backupDir,
	}
}

// Begin creates the run scoped directories.
func (w *Workspace) Begin(runID string) error {
	return w.WithLock(func() error {
		w.RunID = runID
		w.TempDir = filepath.Join(w.OutputDir, ".tmp-"+runID)
		w.StagingDir = filepath.Join(w.BackupDir, ".staging-"+runID)
		for _, dir := range []string{w.OutputDir, w.TempDir, w.StagingDir} {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("failed to create %s: %w", dir, err)
			}
		}
		return nil
	})
}

// End removes the temp directory. Backup staging is left alone.
func (w *Workspace) End() error {
	return w.WithLock(func() error {
		if w.TempDir == "" {
			return nil
		}
		if err := os.RemoveAll(w.TempDir); err != nil {
			return fmt.Errorf("failed to remove temp dir %s: %w", w.TempDir, err)
		}
		return nil
	})
}

// LatestDir is the committed backup snapshot.
func (w *Workspace) LatestDir() string {
	return filepath.Join(w.BackupDir, "latest")
}

// WithLock executes fn while holding the write lock.
func (w *Workspace) WithLock(fn func() error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return fn()
}

// WithRLock executes fn while holding the read lock.
func (w *Workspace) WithRLock(fn func() error) error {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return fn()
}

// WriteFileAtomic writes data next to path and renames it into place.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmp.Name(), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}
