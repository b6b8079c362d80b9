package oracle

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// RevisionHistory answers which files changed between two revisions.
type RevisionHistory interface {
	CurrentRevision(ctx context.Context) (string, error)
	Diff(ctx context.Context, from, to string) ([]string, error)
}

// GitHistory reads revisions from the git repository containing dir.
// Paths are reported relative to dir, slash separated.
type GitHistory struct {
	repo   *git.Repository
	prefix string
}

// NewGitHistory opens the repository that contains dir.
func NewGitHistory(dir string) (*GitHistory, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", dir, err)
	}
	repo, err := git.PlainOpenWithOptions(abs, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", abs, err)
	}

	prefix := ""
	if wt, err := repo.Worktree(); err == nil {
		if rel, err := filepath.Rel(wt.Filesystem.Root(), abs); err == nil && rel != "." {
			prefix = filepath.ToSlash(rel) + "/"
		}
	}
	return &GitHistory{repo: repo, prefix: prefix}, nil
}

// CurrentRevision returns the HEAD commit hash.
func (g *GitHistory) CurrentRevision(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	head, err := g.repo.Head()
	if err != nil {
		return "", fmt.Errorf("failed to resolve HEAD: %w", err)
	}
	return head.Hash().String(), nil
}

// Diff lists the paths touched between from and to. Renames report both names.
func (g *GitHistory) Diff(ctx context.Context, from, to string) ([]string, error) {
	fromTree, err := g.tree(from)
	if err != nil {
		return nil, err
	}
	toTree, err := g.tree(to)
	if err != nil {
		return nil, err
	}
	changes, err := object.DiffTreeWithOptions(ctx, fromTree, toTree, object.DefaultDiffTreeOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to diff %s..%s: %w", from, to, err)
	}

	var paths []string
	for _, ch := range changes {
		for _, name := range []string{ch.From.Name, ch.To.Name} {
			if name == "" {
				continue
			}
			if g.prefix != "" {
				if !strings.HasPrefix(name, g.prefix) {
					continue
				}
				name = strings.TrimPrefix(name, g.prefix)
			}
			paths = append(paths, name)
		}
	}
	return paths, nil
}

func (g *GitHistory) tree(revision string) (*object.Tree, error) {
	commit, err := g.repo.CommitObject(plumbing.NewHash(revision))
	if err != nil {
		return nil, fmt.Errorf("failed to load commit %s: %w", revision, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("failed to load tree of %s: %w", revision, err)
	}
	return tree, nil
}

// UnavailableHistory is used when no repository could be opened. Every call
// fails with Err, which the oracle reports as degradation.
type UnavailableHistory struct {
	Err error
}

func (u UnavailableHistory) CurrentRevision(context.Context) (string, error) {
	return "", u.Err
}

func (u UnavailableHistory) Diff(context.Context, string, string) ([]string, error) {
	return nil, u.Err
}
