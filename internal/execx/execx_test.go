package execx

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_CapturesStdout(t *testing.T) {
	r := NewOSRunner()
	res, err := r.Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "echo hello; echo oops >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, "oops\n", res.Stderr)
	assert.True(t, res.Ok())
}

func TestRun_NonZeroExit(t *testing.T) {
	r := NewOSRunner()
	res, err := r.Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Ok())
}

func TestRun_MissingProgram(t *testing.T) {
	r := NewOSRunner()
	res, err := r.Run(context.Background(), Command{Program: "definitely-not-a-real-binary-xyz"})
	require.NoError(t, err)
	assert.Equal(t, -1, res.ExitCode)
	assert.Contains(t, res.StartError, "not found")
}

func TestRun_Timeout(t *testing.T) {
	r := &OSRunner{TermGrace: 100 * time.Millisecond}
	start := time.Now()
	res, err := r.Run(context.Background(), Command{
		Program: "sleep",
		Args:    []string{"10"},
		Timeout: 100 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.True(t, res.TimedOut)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRun_TruncatesOutput(t *testing.T) {
	r := NewOSRunner()
	res, err := r.Run(context.Background(), Command{
		Program:         "sh",
		Args:            []string{"-c", "printf 'aaaaaaaaaaaaaaaaaaaa'"},
		CaptureMaxBytes: 8,
	})
	require.NoError(t, err)
	assert.True(t, res.StdoutTruncated)
	assert.Len(t, res.Stdout, 8)
}

func TestRun_EmptyProgram(t *testing.T) {
	r := NewOSRunner()
	_, err := r.Run(context.Background(), Command{})
	require.Error(t, err)
}

func TestRun_EnvOverlay(t *testing.T) {
	r := NewOSRunner()
	res, err := r.Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "echo $HOOKD_TEST_VAR"},
		Env:     map[string]string{"HOOKD_TEST_VAR": "overlay-value"},
	})
	require.NoError(t, err)
	assert.Equal(t, "overlay-value", strings.TrimSpace(res.Stdout))
}

func TestFakeRunner_Scripted(t *testing.T) {
	f := &FakeRunner{
		Results: map[string]Result{"golangci-lint": {ExitCode: 1, Stderr: "lint error"}},
		Default: Result{ExitCode: 0},
	}
	res, err := f.Run(context.Background(), Command{Program: "golangci-lint"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.ExitCode)

	res, err = f.Run(context.Background(), Command{Program: "go"})
	require.NoError(t, err)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, 2, f.CallCount())
}
