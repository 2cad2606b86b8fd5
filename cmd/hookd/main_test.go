package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/hookd/internal/engine"
)

func TestHookArgs_CommitMsgReadsMessageFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "COMMIT_EDITMSG")
	require.NoError(t, os.WriteFile(path, []byte("feat: add thing\n"), 0o644))

	args, err := hookArgs(engine.CommitMsg, []string{path}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "feat: add thing\n", args.Message)
}

func TestHookArgs_CommitMsgRequiresPath(t *testing.T) {
	_, err := hookArgs(engine.CommitMsg, nil, strings.NewReader(""))
	assert.Error(t, err)
}

func TestHookArgs_PrePushRemote(t *testing.T) {
	args, err := hookArgs(engine.PrePush, []string{"origin", "git@example.com:org/repo.git"}, strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, "origin", args.Remote)
	assert.Equal(t, "git@example.com:org/repo.git", args.RemoteURL)
}

func TestHookArgs_PostCheckoutBranchFlag(t *testing.T) {
	args, err := hookArgs(engine.PostCheckout, []string{"aaa", "bbb", "1"}, strings.NewReader(""))
	require.NoError(t, err)
	assert.True(t, args.BranchCheckout)

	args, err = hookArgs(engine.PostCheckout, []string{"aaa", "bbb", "0"}, strings.NewReader(""))
	require.NoError(t, err)
	assert.False(t, args.BranchCheckout)
}

func TestHookArgs_PreReceiveParsesStdin(t *testing.T) {
	stdin := strings.NewReader(
		"old1 new1 refs/heads/main\n" +
			"malformed line\n" +
			"old2 new2 refs/heads/feature/sync\n")

	args, err := hookArgs(engine.PreReceive, nil, stdin)
	require.NoError(t, err)
	require.Len(t, args.RefUpdates, 2)
	assert.Equal(t, engine.RefUpdate{OldHash: "old1", NewHash: "new1", RefName: "refs/heads/main"}, args.RefUpdates[0])
	assert.Equal(t, "refs/heads/feature/sync", args.RefUpdates[1].RefName)
}
