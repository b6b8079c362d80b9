package repos

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/plantarium-platform/apisync-go/internal/storage"
)

// ArtifactRepositoryInterface defines methods for managing local API and product documents.
type ArtifactRepositoryInterface interface {
	WriteTemp(prefix string, doc []byte) (string, error)
	Adopt(tempPath, fileName string) error
	Exists(fileName string) bool
	Read(fileName string) ([]byte, error)
	Restore(fileName string, doc []byte) error
}

// ArtifactRepository is an implementation of ArtifactRepositoryInterface.
type ArtifactRepository struct {
	storage *storage.Workspace
}

// NewArtifactRepository initializes a new ArtifactRepository with the provided workspace.
func NewArtifactRepository(storage *storage.Workspace) *ArtifactRepository {
	return &ArtifactRepository{
		storage: storage,
	}
}

// WriteTemp writes doc to a new unique file in the run temp directory.
func (r *ArtifactRepository) WriteTemp(prefix string, doc []byte) (string, error) {
	var path string
	err := r.storage.WithLock(func() error {
		if r.storage.TempDir == "" {
			return fmt.Errorf("workspace has not been started")
		}
		f, err := os.CreateTemp(r.storage.TempDir, prefix+"-*.yaml")
		if err != nil {
			return fmt.Errorf("failed to create temp artifact: %w", err)
		}
		path = f.Name()
		if _, err := f.Write(doc); err != nil {
			f.Close()
			return fmt.Errorf("failed to write temp artifact %s: %w", path, err)
		}
		return f.Close()
	})
	return path, err
}

// Adopt moves a temp artifact to its canonical name in the output directory.
func (r *ArtifactRepository) Adopt(tempPath, fileName string) error {
	return r.storage.WithLock(func() error {
		target := filepath.Join(r.storage.OutputDir, fileName)
		if err := os.Rename(tempPath, target); err != nil {
			return fmt.Errorf("failed to adopt %s as %s: %w", tempPath, fileName, err)
		}
		return nil
	})
}

// Exists reports whether the canonical artifact is present.
func (r *ArtifactRepository) Exists(fileName string) bool {
	exists := false
	_ = r.storage.WithRLock(func() error {
		info, err := os.Stat(filepath.Join(r.storage.OutputDir, fileName))
		exists = err == nil && info.Mode().IsRegular()
		return nil
	})
	return exists
}

// Read returns the canonical artifact content.
func (r *ArtifactRepository) Read(fileName string) ([]byte, error) {
	var data []byte
	err := r.storage.WithRLock(func() error {
		var err error
		data, err = os.ReadFile(filepath.Join(r.storage.OutputDir, fileName))
		if err != nil {
			return fmt.Errorf("failed to read artifact %s: %w", fileName, err)
		}
		return nil
	})
	return data, err
}

// Restore writes doc directly as the canonical artifact.
func (r *ArtifactRepository) Restore(fileName string, doc []byte) error {
	return r.storage.WithLock(func() error {
		return storage.WriteFileAtomic(filepath.Join(r.storage.OutputDir, fileName), doc)
	})
}
