package engine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*GitRepo, *git.Worktree, string) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return NewGitRepo(repo, dir), wt, dir
}

func commitFile(t *testing.T, wt *git.Worktree, dir, name, msg string, parents ...plumbing.Hash) plumbing.Hash {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
	_, err := wt.Add(name)
	require.NoError(t, err)

	opts := &git.CommitOptions{
		Author: &object.Signature{Name: "Dev", Email: "dev@example.com", When: time.Now()},
	}
	if len(parents) > 0 {
		opts.Parents = parents
	}
	hash, err := wt.Commit(msg, opts)
	require.NoError(t, err)
	return hash
}

func commitHashes(commits []CommitInfo) []string {
	hashes := make([]string, 0, len(commits))
	for _, c := range commits {
		hashes = append(hashes, c.Hash)
	}
	return hashes
}

func TestCommitsBetween_LinearRange(t *testing.T) {
	g, wt, dir := newTestRepo(t)

	base := commitFile(t, wt, dir, "base.txt", "feat: base")
	m1 := commitFile(t, wt, dir, "m1.txt", "feat: m1")
	m2 := commitFile(t, wt, dir, "m2.txt", "feat: m2")

	commits, err := g.CommitsBetween(base.String(), m2.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{m1.String(), m2.String()}, commitHashes(commits))
}

func TestCommitsBetween_MergeEnumeratesBothParentLines(t *testing.T) {
	g, wt, dir := newTestRepo(t)

	base := commitFile(t, wt, dir, "base.txt", "feat: base")
	m1 := commitFile(t, wt, dir, "m1.txt", "feat: m1")
	m2 := commitFile(t, wt, dir, "m2.txt", "feat: m2")

	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Hash:   base,
		Branch: plumbing.NewBranchReferenceName("feature"),
		Create: true,
		Force:  true,
	}))
	f1 := commitFile(t, wt, dir, "f1.txt", "feat: f1")
	merge := commitFile(t, wt, dir, "merge.txt", "Merge branch 'main' into feature", f1, m2)

	// Updating the feature ref from f1 to the merge brings in the merge
	// commit and everything reachable only through its second parent.
	commits, err := g.CommitsBetween(f1.String(), merge.String())
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{merge.String(), m1.String(), m2.String()},
		commitHashes(commits))
}

func TestCommitsBetween_MergeExcludesOldSideAncestry(t *testing.T) {
	g, wt, dir := newTestRepo(t)

	base := commitFile(t, wt, dir, "base.txt", "feat: base")
	m1 := commitFile(t, wt, dir, "m1.txt", "feat: m1")

	require.NoError(t, wt.Checkout(&git.CheckoutOptions{
		Hash:   base,
		Branch: plumbing.NewBranchReferenceName("feature"),
		Create: true,
		Force:  true,
	}))
	f1 := commitFile(t, wt, dir, "f1.txt", "feat: f1")
	f2 := commitFile(t, wt, dir, "f2.txt", "feat: f2")
	merge := commitFile(t, wt, dir, "merge.txt", "Merge branch 'main' into feature", f2, m1)

	// Pushing main from m1 to the merge must not re-enumerate the
	// feature commits already behind m1's counterpart walk, only the
	// lines new relative to m1.
	commits, err := g.CommitsBetween(m1.String(), merge.String())
	require.NoError(t, err)
	assert.ElementsMatch(t,
		[]string{merge.String(), f1.String(), f2.String()},
		commitHashes(commits))
}

func TestCommitsBetween_RefCreationWalksFullAncestry(t *testing.T) {
	g, wt, dir := newTestRepo(t)

	base := commitFile(t, wt, dir, "base.txt", "feat: base")
	m1 := commitFile(t, wt, dir, "m1.txt", "feat: m1")

	commits, err := g.CommitsBetween(zeroHash, m1.String())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{base.String(), m1.String()}, commitHashes(commits))
}

func TestCommitsBetween_EmptyRange(t *testing.T) {
	g, wt, dir := newTestRepo(t)

	base := commitFile(t, wt, dir, "base.txt", "feat: base")
	m1 := commitFile(t, wt, dir, "m1.txt", "feat: m1")

	commits, err := g.CommitsBetween(m1.String(), m1.String())
	require.NoError(t, err)
	assert.Empty(t, commits)

	// A rewind (new strictly behind old) has nothing new either.
	commits, err = g.CommitsBetween(m1.String(), base.String())
	require.NoError(t, err)
	assert.Empty(t, commits)
}

func TestIsAncestor_RealRepo(t *testing.T) {
	g, wt, dir := newTestRepo(t)

	base := commitFile(t, wt, dir, "base.txt", "feat: base")
	m1 := commitFile(t, wt, dir, "m1.txt", "feat: m1")

	ok, err := g.IsAncestor(base.String(), m1.String())
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = g.IsAncestor(m1.String(), base.String())
	require.NoError(t, err)
	assert.False(t, ok)
}
