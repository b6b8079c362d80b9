package repos

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/plantarium-platform/apisync-go/internal/storage"
)

// BackupRepositoryInterface defines methods for the run backup.
type BackupRepositoryInterface interface {
	Stage(fileName string, doc []byte) error
	Recover(fileName string) ([]byte, bool, error)
	Commit(revision string) error
	Discard() error
}

// BackupRepository is an implementation of BackupRepositoryInterface.
// Documents are staged during the run and become the latest snapshot on Commit.
type BackupRepository struct {
	storage *storage.Workspace
}

// NewBackupRepository initializes a new BackupRepository with the provided workspace.
func NewBackupRepository(storage *storage.Workspace) *BackupRepository {
	return &BackupRepository{
		storage: storage,
	}
}

// Stage records the remote copy of a document before it is changed.
func (r *BackupRepository) Stage(fileName string, doc []byte) error {
	return r.storage.WithLock(func() error {
		if r.storage.StagingDir == "" {
			return fmt.Errorf("workspace has not been started")
		}
		return storage.WriteFileAtomic(filepath.Join(r.storage.StagingDir, fileName), doc)
	})
}

// Recover looks a document up in the run staging first, then in the latest snapshot.
func (r *BackupRepository) Recover(fileName string) ([]byte, bool, error) {
	var (
		data  []byte
		found bool
	)
	err := r.storage.WithRLock(func() error {
		for _, dir := range []string{r.storage.StagingDir, r.storage.LatestDir()} {
			if dir == "" {
				continue
			}
			content, err := os.ReadFile(filepath.Join(dir, fileName))
			if os.IsNotExist(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("failed to read backup %s: %w", fileName, err)
			}
			data, found = content, true
			return nil
		}
		return nil
	})
	return data, found, err
}

// Commit merges the previous snapshot into staging, writes the metadata and
// swaps staging in as the new latest snapshot.
func (r *BackupRepository) Commit(revision string) error {
	return r.storage.WithLock(func() error {
		staging, latest := r.storage.StagingDir, r.storage.LatestDir()
		if staging == "" {
			return fmt.Errorf("workspace has not been started")
		}

		if err := carryOver(latest, staging); err != nil {
			return err
		}
		files, err := listFiles(staging)
		if err != nil {
			return err
		}

		meta := storage.BackupMetadata{
			Timestamp: time.Now().UTC(),
			RunID:     r.storage.RunID,
			Revision:  revision,
			Files:     files,
		}
		data, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode backup metadata: %w", err)
		}
		if err := storage.WriteFileAtomic(filepath.Join(staging, storage.MetadataFile), data); err != nil {
			return err
		}

		previous := filepath.Join(r.storage.BackupDir, ".previous-"+r.storage.RunID)
		hadLatest := false
		if _, err := os.Stat(latest); err == nil {
			if err := os.Rename(latest, previous); err != nil {
				return fmt.Errorf("failed to set aside previous backup: %w", err)
			}
			hadLatest = true
		}
		if err := os.Rename(staging, latest); err != nil {
			if hadLatest {
				_ = os.Rename(previous, latest)
			}
			return fmt.Errorf("failed to commit backup: %w", err)
		}
		if hadLatest {
			_ = os.RemoveAll(previous)
		}
		return nil
	})
}

// Discard drops the run staging and keeps the previous snapshot.
func (r *BackupRepository) Discard() error {
	return r.storage.WithLock(func() error {
		if r.storage.StagingDir == "" {
			return nil
		}
		if err := os.RemoveAll(r.storage.StagingDir); err != nil {
			return fmt.Errorf("failed to discard backup staging: %w", err)
		}
		return nil
	})
}

// carryOver copies documents of the previous snapshot that were not staged in this run.
func carryOver(latest, staging string) error {
	entries, err := os.ReadDir(latest)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read previous backup: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || e.Name() == storage.MetadataFile {
			continue
		}
		target := filepath.Join(staging, e.Name())
		if _, err := os.Stat(target); err == nil {
			continue
		}
		data, err := os.ReadFile(filepath.Join(latest, e.Name()))
		if err != nil {
			return fmt.Errorf("failed to read previous backup %s: %w", e.Name(), err)
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return fmt.Errorf("failed to carry over %s: %w", e.Name(), err)
		}
	}
	return nil
}

func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && e.Name() != storage.MetadataFile {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}
