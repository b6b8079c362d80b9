package storage

import (
	"path/filepath"
	"testing"

	"github.com/Flaque/filet"
)

// GetTestWorkspace returns a started workspace in a temp directory. The
// caller is expected to defer filet.CleanUp(t).
func GetTestWorkspace(t *testing.T, runID string) *Workspace {
	root := filet.TmpDir(t, "")
	ws := NewWorkspace(filepath.Join(root, "apis"), filepath.Join(root, "backup"))
	if err := ws.Begin(runID); err != nil {
		t.Fatalf("failed to begin workspace: %v", err)
	}
	return ws
}
