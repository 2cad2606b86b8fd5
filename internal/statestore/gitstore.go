package statestore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// DefaultBranch is the state branch used when none is configured.
const DefaultBranch = "hookd-state"

// GitStore persists documents as commits on a dedicated branch.
//
// The branch is written through the object database and a ref update
// only; it is never checked out, so writes cannot disturb the caller's
// working tree or index.
type GitStore struct {
	repo *git.Repository
	ref  plumbing.ReferenceName
	now  func() time.Time
}

// NewGitStore opens the repository containing dir (searching upward for
// .git) and binds the store to the named state branch.
func NewGitStore(dir, branch string) (*GitStore, error) {
	repo, err := git.PlainOpenWithOptions(dir, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("open repository at %s: %w", dir, err)
	}
	return NewGitStoreFromRepo(repo, branch), nil
}

// NewGitStoreFromRepo binds a store to an already-open repository.
func NewGitStoreFromRepo(repo *git.Repository, branch string) *GitStore {
	if branch == "" {
		branch = DefaultBranch
	}
	return &GitStore{
		repo: repo,
		ref:  plumbing.NewBranchReferenceName(branch),
		now:  time.Now,
	}
}

// Write commits content under key on the state branch.
func (s *GitStore) Write(_ context.Context, key, content string) error {
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}

	files, parent, err := s.snapshot()
	if err != nil {
		return err
	}

	blobHash, err := s.writeBlob(content)
	if err != nil {
		return err
	}
	files[key] = blobHash

	treeHash, err := s.writeTree(files)
	if err != nil {
		return err
	}

	sig := object.Signature{Name: "hookd", Email: "hookd@localhost", When: s.now()}
	commit := &object.Commit{
		Author:    sig,
		Committer: sig,
		Message:   fmt.Sprintf("update %s\n", key),
		TreeHash:  treeHash,
	}
	if parent != plumbing.ZeroHash {
		commit.ParentHashes = []plumbing.Hash{parent}
	}

	obj := s.repo.Storer.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		return fmt.Errorf("encode state commit: %w", err)
	}
	commitHash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return fmt.Errorf("store state commit: %w", err)
	}

	if err := s.repo.Storer.SetReference(plumbing.NewHashReference(s.ref, commitHash)); err != nil {
		return fmt.Errorf("update state branch %s: %w", s.ref.Short(), err)
	}
	return nil
}

// Read returns the content at key from the branch tip.
func (s *GitStore) Read(_ context.Context, key string) (string, error) {
	key, err := normalizeKey(key)
	if err != nil {
		return "", err
	}

	tree, err := s.tipTree()
	if err != nil {
		return "", err
	}
	if tree == nil {
		return "", ErrNotFound
	}

	f, err := tree.File(key)
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read state key %s: %w", key, err)
	}
	content, err := f.Contents()
	if err != nil {
		return "", fmt.Errorf("read state blob %s: %w", key, err)
	}
	return content, nil
}

// snapshot returns the flat path→blob map at the branch tip plus the
// tip commit hash, or an empty map when the branch does not exist yet.
func (s *GitStore) snapshot() (map[string]plumbing.Hash, plumbing.Hash, error) {
	files := make(map[string]plumbing.Hash)

	ref, err := s.repo.Reference(s.ref, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return files, plumbing.ZeroHash, nil
		}
		return nil, plumbing.ZeroHash, fmt.Errorf("resolve state branch: %w", err)
	}

	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("load state tip: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("load state tree: %w", err)
	}

	iter := tree.Files()
	defer iter.Close()
	err = iter.ForEach(func(f *object.File) error {
		files[f.Name] = f.Hash
		return nil
	})
	if err != nil {
		return nil, plumbing.ZeroHash, fmt.Errorf("walk state tree: %w", err)
	}
	return files, ref.Hash(), nil
}

// tipTree returns the tree at the branch tip, or nil when the branch
// does not exist.
func (s *GitStore) tipTree() (*object.Tree, error) {
	ref, err := s.repo.Reference(s.ref, true)
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve state branch: %w", err)
	}
	commit, err := s.repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("load state tip: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("load state tree: %w", err)
	}
	return tree, nil
}

func (s *GitStore) writeBlob(content string) (plumbing.Hash, error) {
	obj := s.repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	w, err := obj.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open blob writer: %w", err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		_ = w.Close()
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close blob writer: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob: %w", err)
	}
	return hash, nil
}

// writeTree builds nested tree objects from a flat path→blob map and
// returns the root tree hash.
func (s *GitStore) writeTree(files map[string]plumbing.Hash) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(files))
	children := make(map[string]map[string]plumbing.Hash)

	for p, h := range files {
		if i := strings.IndexByte(p, '/'); i >= 0 {
			dir, rest := p[:i], p[i+1:]
			if children[dir] == nil {
				children[dir] = make(map[string]plumbing.Hash)
			}
			children[dir][rest] = h
		} else {
			entries = append(entries, object.TreeEntry{Name: p, Mode: filemode.Regular, Hash: h})
		}
	}

	for dir, sub := range children {
		h, err := s.writeTree(sub)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: dir, Mode: filemode.Dir, Hash: h})
	}

	// Git orders tree entries byte-wise with directories compared as
	// if their names ended in '/'.
	sort.Slice(entries, func(i, j int) bool {
		return treeSortKey(entries[i]) < treeSortKey(entries[j])
	})

	tree := &object.Tree{Entries: entries}
	obj := s.repo.Storer.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	hash, err := s.repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store tree: %w", err)
	}
	return hash, nil
}

func treeSortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// normalizeKey cleans a logical path and rejects escapes.
func normalizeKey(key string) (string, error) {
	key = strings.TrimPrefix(path.Clean("/"+key), "/")
	if key == "" || key == "." {
		return "", errors.New("empty state key")
	}
	if strings.HasPrefix(key, "..") {
		return "", fmt.Errorf("invalid state key %q", key)
	}
	return key, nil
}
