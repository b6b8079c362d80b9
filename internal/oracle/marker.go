package oracle

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/plantarium-platform/apisync-go/pkg/models"
)

var markerPattern = regexp.MustCompile(`^[A-Za-z0-9]{40}$`)

// ValidMarker reports whether s is a usable baseline revision.
func ValidMarker(s string) bool {
	return markerPattern.MatchString(s)
}

// MarkerStore persists the revision of the last fully successful run.
type MarkerStore struct {
	path string
}

func NewMarkerStore(path string) *MarkerStore {
	return &MarkerStore{path: path}
}

// Path returns the marker file location.
func (m *MarkerStore) Path() string {
	return m.path
}

// Read returns the stored marker, or "" when no marker has been written yet.
func (m *MarkerStore) Read() (string, error) {
	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read marker %s: %w", m.path, err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Write replaces the marker atomically.
func (m *MarkerStore) Write(revision string) error {
	if !ValidMarker(revision) {
		return models.NewValidationError(fmt.Sprintf("refusing to write invalid marker %q", revision), nil)
	}
	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create marker directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".marker-*")
	if err != nil {
		return fmt.Errorf("failed to create temp marker: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(revision + "\n"); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp marker: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp marker: %w", err)
	}
	if err := os.Rename(tmp.Name(), m.path); err != nil {
		return fmt.Errorf("failed to replace marker %s: %w", m.path, err)
	}
	return nil
}
