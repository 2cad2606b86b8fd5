package statestore

import (
	"context"
	"testing"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*GitStore, *git.Repository) {
	t.Helper()
	repo, err := git.PlainInit(t.TempDir(), false)
	require.NoError(t, err)
	return NewGitStoreFromRepo(repo, "hookd-state"), repo
}

func TestGitStore_WriteReadRoundtrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "metrics/aggregate.json", `{"total":1}`))

	got, err := s.Read(ctx, "metrics/aggregate.json")
	require.NoError(t, err)
	assert.Equal(t, `{"total":1}`, got)
}

func TestGitStore_ReadMissingKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Read(ctx, "nothing/here.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, "a.txt", "x"))
	_, err = s.Read(ctx, "b.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGitStore_OverwritePreservesOtherKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "journal/main.yaml", "v1"))
	require.NoError(t, s.Write(ctx, "reports/post-merge/1.json", "report"))
	require.NoError(t, s.Write(ctx, "journal/main.yaml", "v2"))

	got, err := s.Read(ctx, "journal/main.yaml")
	require.NoError(t, err)
	assert.Equal(t, "v2", got)

	got, err = s.Read(ctx, "reports/post-merge/1.json")
	require.NoError(t, err)
	assert.Equal(t, "report", got)
}

func TestGitStore_DeeplyNestedKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "a/b/c/d/e.txt", "deep"))
	got, err := s.Read(ctx, "a/b/c/d/e.txt")
	require.NoError(t, err)
	assert.Equal(t, "deep", got)
}

func TestGitStore_NeverTouchesWorkingTree(t *testing.T) {
	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	s := NewGitStoreFromRepo(repo, "hookd-state")

	require.NoError(t, s.Write(context.Background(), "journal/main.yaml", "content"))

	wt, err := repo.Worktree()
	require.NoError(t, err)
	status, err := wt.Status()
	require.NoError(t, err)
	assert.True(t, status.IsClean(), "state writes must not dirty the working tree")
}

func TestGitStore_CommitChainGrows(t *testing.T) {
	s, repo := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Write(ctx, "k1", "v1"))
	require.NoError(t, s.Write(ctx, "k2", "v2"))

	ref, err := repo.Reference(plumbing.NewBranchReferenceName("hookd-state"), true)
	require.NoError(t, err)
	tip, err := repo.CommitObject(ref.Hash())
	require.NoError(t, err)
	assert.Equal(t, 1, tip.NumParents(), "second write must chain onto the first commit")
}

func TestGitStore_RejectsEscapingKeys(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	assert.Error(t, s.Write(ctx, "", "x"))
	assert.Error(t, s.Write(ctx, "../outside", "x"))

	// Clean removes inner traversal; the result stays inside the tree.
	require.NoError(t, s.Write(ctx, "a/../b.txt", "x"))
	got, err := s.Read(ctx, "b.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", got)
}

func TestMemStore_Roundtrip(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	_, err := m.Read(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Write(ctx, "reports/x.json", "data"))
	got, err := m.Read(ctx, "reports/x.json")
	require.NoError(t, err)
	assert.Equal(t, "data", got)
}
