package oracle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Flaque/filet"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// commitFiles writes files into the worktree and commits them.
func commitFiles(t *testing.T, repo *git.Repository, dir string, files map[string]string) string {
	wt, err := repo.Worktree()
	require.NoError(t, err)
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err = wt.Add(filepath.ToSlash(name))
		require.NoError(t, err)
	}
	hash, err := wt.Commit("update", &git.CommitOptions{
		Author: &object.Signature{Name: "ci", Email: "ci@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash.String()
}

func TestGitHistory_Diff(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	first := commitFiles(t, repo, dir, map[string]string{
		"services.json":         "[]",
		"schemas/customer.json": `{"type":"object"}`,
	})
	second := commitFiles(t, repo, dir, map[string]string{
		"schemas/customer.json": `{"type":"object","title":"Customer"}`,
		"schemas/orders.json":   `{"type":"object"}`,
	})

	history, err := NewGitHistory(dir)
	require.NoError(t, err)

	current, err := history.CurrentRevision(context.Background())
	require.NoError(t, err)
	assert.Equal(t, second, current)
	assert.True(t, ValidMarker(current))

	paths, err := history.Diff(context.Background(), first, second)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"schemas/customer.json", "schemas/orders.json"}, paths)
}

func TestGitHistory_Subdirectory(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	first := commitFiles(t, repo, dir, map[string]string{"deploy/services.json": "[]", "other.txt": "a"})
	second := commitFiles(t, repo, dir, map[string]string{"deploy/services.json": "[{}]", "other.txt": "b"})

	history, err := NewGitHistory(filepath.Join(dir, "deploy"))
	require.NoError(t, err)

	paths, err := history.Diff(context.Background(), first, second)
	require.NoError(t, err)
	assert.Equal(t, []string{"services.json"}, paths)
}

func TestGitHistory_UnknownRevision(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	current := commitFiles(t, repo, dir, map[string]string{"a.txt": "a"})

	history, err := NewGitHistory(dir)
	require.NoError(t, err)

	_, err = history.Diff(context.Background(), baseline, current)
	assert.Error(t, err)
}

func TestNewGitHistory_NotARepository(t *testing.T) {
	defer filet.CleanUp(t)
	dir := filet.TmpDir(t, "")

	_, err := NewGitHistory(dir)

	assert.Error(t, err)
}
