package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// commitWalkLimit caps history walks so a malformed range cannot make a
// hook traverse the entire repository.
const commitWalkLimit = 1000

// CommitInfo is the slice of a commit the pipelines inspect.
type CommitInfo struct {
	Hash        string
	Message     string
	AuthorName  string
	AuthorEmail string
}

// Repo is the engine's view of the underlying git repository. Tests
// substitute a fake; GitRepo is the go-git backed implementation.
type Repo interface {
	// CurrentBranch returns the checked-out branch name, or empty when
	// HEAD is detached.
	CurrentBranch() (string, error)

	// StagedFiles lists paths staged for the next commit.
	StagedFiles() ([]string, error)

	// LastCommitFiles lists paths touched by the HEAD commit.
	LastCommitFiles() ([]string, error)

	// HasRemote reports whether any remote is configured.
	HasRemote() bool

	// ResolveRevision turns a revision expression into a commit hash.
	ResolveRevision(rev string) (string, error)

	// IsAncestor reports whether old is an ancestor of new.
	IsAncestor(oldHash, newHash string) (bool, error)

	// CommitsBetween lists commits reachable from newHash but not from
	// oldHash, newest first, bounded by commitWalkLimit.
	CommitsBetween(oldHash, newHash string) ([]CommitInfo, error)

	// IsClean reports whether the working tree has no changes.
	IsClean() (bool, error)

	// HasUnmergedPaths reports whether conflict markers remain staged.
	HasUnmergedPaths() (bool, error)

	// FileExists reports whether path exists in the working tree.
	FileExists(path string) bool
}

// GitRepo implements Repo on a real repository.
type GitRepo struct {
	repo *git.Repository
	root string
}

// OpenRepo opens the repository containing dir.
func OpenRepo(dir string) (*GitRepo, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", dir, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository worktree: %w", err)
	}
	return &GitRepo{repo: repo, root: wt.Filesystem.Root()}, nil
}

// NewGitRepo wraps an already-open repository.
func NewGitRepo(repo *git.Repository, root string) *GitRepo {
	return &GitRepo{repo: repo, root: root}
}

// Root returns the working tree root.
func (g *GitRepo) Root() string { return g.root }

// CurrentBranch implements Repo.
func (g *GitRepo) CurrentBranch() (string, error) {
	head, err := g.repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			// Unborn branch in a fresh repository.
			return "", nil
		}
		return "", fmt.Errorf("resolve HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", nil
	}
	return head.Name().Short(), nil
}

// StagedFiles implements Repo.
func (g *GitRepo) StagedFiles() ([]string, error) {
	status, err := g.status()
	if err != nil {
		return nil, err
	}
	var files []string
	for path, st := range status {
		switch st.Staging {
		case git.Unmodified, git.Untracked:
		default:
			files = append(files, path)
		}
	}
	return files, nil
}

// LastCommitFiles implements Repo.
func (g *GitRepo) LastCommitFiles() ([]string, error) {
	head, err := g.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}
	commit, err := g.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("load HEAD commit: %w", err)
	}
	stats, err := commit.Stats()
	if err != nil {
		return nil, fmt.Errorf("commit stats: %w", err)
	}
	files := make([]string, 0, len(stats))
	for _, s := range stats {
		files = append(files, s.Name)
	}
	return files, nil
}

// HasRemote implements Repo.
func (g *GitRepo) HasRemote() bool {
	remotes, err := g.repo.Remotes()
	return err == nil && len(remotes) > 0
}

// ResolveRevision implements Repo.
func (g *GitRepo) ResolveRevision(rev string) (string, error) {
	hash, err := g.repo.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", rev, err)
	}
	return hash.String(), nil
}

// IsAncestor implements Repo.
func (g *GitRepo) IsAncestor(oldHash, newHash string) (bool, error) {
	oldCommit, err := g.repo.CommitObject(plumbing.NewHash(oldHash))
	if err != nil {
		return false, fmt.Errorf("load commit %s: %w", oldHash, err)
	}
	newCommit, err := g.repo.CommitObject(plumbing.NewHash(newHash))
	if err != nil {
		return false, fmt.Errorf("load commit %s: %w", newHash, err)
	}
	ok, err := oldCommit.IsAncestor(newCommit)
	if err != nil {
		return false, fmt.Errorf("ancestor check %s..%s: %w", oldHash, newHash, err)
	}
	return ok, nil
}

// CommitsBetween implements Repo. The range is reachability-based: a
// plain stop-at-old walk misses the second parent's line on merge
// topologies, so the full ancestor set of old is excluded instead.
func (g *GitRepo) CommitsBetween(oldHash, newHash string) ([]CommitInfo, error) {
	newCommit, err := g.repo.CommitObject(plumbing.NewHash(newHash))
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", newHash, err)
	}
	exclude, err := g.ancestorSet(oldHash)
	if err != nil {
		return nil, err
	}

	var commits []CommitInfo
	iter := object.NewCommitPreorderIter(newCommit, exclude, nil)
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, CommitInfo{
			Hash:        c.Hash.String(),
			Message:     c.Message,
			AuthorName:  c.Author.Name,
			AuthorEmail: c.Author.Email,
		})
		if len(commits) >= commitWalkLimit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s..%s: %w", oldHash, newHash, err)
	}
	return commits, nil
}

// ancestorSet returns hash plus everything reachable from it, bounded
// by commitWalkLimit. The zero hash marks ref creation and has no
// ancestry to exclude.
func (g *GitRepo) ancestorSet(hash string) (map[plumbing.Hash]bool, error) {
	h := plumbing.NewHash(hash)
	if h.IsZero() {
		return nil, nil
	}
	commit, err := g.repo.CommitObject(h)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}

	set := make(map[plumbing.Hash]bool)
	iter := object.NewCommitPreorderIter(commit, nil, nil)
	defer iter.Close()
	err = iter.ForEach(func(c *object.Commit) error {
		set[c.Hash] = true
		if len(set) >= commitWalkLimit {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk ancestors of %s: %w", hash, err)
	}
	return set, nil
}

// IsClean implements Repo.
func (g *GitRepo) IsClean() (bool, error) {
	status, err := g.status()
	if err != nil {
		return false, err
	}
	return status.IsClean(), nil
}

// HasUnmergedPaths implements Repo.
func (g *GitRepo) HasUnmergedPaths() (bool, error) {
	status, err := g.status()
	if err != nil {
		return false, err
	}
	for _, st := range status {
		if st.Staging == git.UpdatedButUnmerged || st.Worktree == git.UpdatedButUnmerged {
			return true, nil
		}
	}
	return false, nil
}

// FileExists implements Repo.
func (g *GitRepo) FileExists(path string) bool {
	_, err := os.Stat(filepath.Join(g.root, path))
	return err == nil
}

func (g *GitRepo) status() (git.Status, error) {
	wt, err := g.repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("repository worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return nil, fmt.Errorf("worktree status: %w", err)
	}
	return status, nil
}
