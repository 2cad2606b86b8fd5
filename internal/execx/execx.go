package execx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// DefaultCaptureMaxBytes bounds captured stdout/stderr per stream.
const DefaultCaptureMaxBytes = 256 * 1024

// Command describes a single subprocess invocation.
type Command struct {
	// Program is the executable to run, resolved via PATH.
	Program string

	// Args is the argument vector, never joined through a shell.
	Args []string

	// Dir is the working directory. Empty means the caller's cwd.
	Dir string

	// Env entries overlay the parent environment.
	Env map[string]string

	// Timeout is the hard budget for the run. Zero means no timeout.
	Timeout time.Duration

	// CaptureMaxBytes caps each captured stream. Zero uses the default.
	CaptureMaxBytes int
}

// Result is the outcome of a subprocess run.
//
// Start failures and timeouts are reported in the result rather than as
// errors: a missing linter binary is a pipeline condition to classify,
// not a reason to abort the hook.
type Result struct {
	ExitCode        int
	Stdout          string
	Stderr          string
	StdoutTruncated bool
	StderrTruncated bool
	TimedOut        bool
	StartError      string
}

// Ok reports whether the process ran to completion with exit code 0.
func (r Result) Ok() bool {
	return r.ExitCode == 0 && !r.TimedOut && r.StartError == ""
}

// Runner executes commands. The OS-backed implementation is OSRunner;
// tests substitute a FakeRunner.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// OSRunner runs commands against the real operating system.
type OSRunner struct {
	// TermGrace is how long to wait after SIGTERM before SIGKILL.
	TermGrace time.Duration
}

// NewOSRunner returns a runner with a one second termination grace.
func NewOSRunner() *OSRunner {
	return &OSRunner{TermGrace: time.Second}
}

// limitedBuffer captures up to max bytes and flags truncation.
type limitedBuffer struct {
	max       int
	buf       bytes.Buffer
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	remain := b.max - b.buf.Len()
	if remain > 0 {
		if remain > len(p) {
			remain = len(p)
		}
		_, _ = b.buf.Write(p[:remain])
	}
	if len(p) > remain {
		b.truncated = true
	}
	return n, nil
}

// Run executes cmd. The returned error is reserved for invocation
// mistakes (empty program); process-level failures land in the Result.
func (r *OSRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Program == "" {
		return Result{}, errors.New("execx: empty program")
	}

	maxBytes := cmd.CaptureMaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultCaptureMaxBytes
	}

	c := exec.Command(cmd.Program, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = overlayEnv(os.Environ(), cmd.Env)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	outBuf := &limitedBuffer{max: maxBytes}
	errBuf := &limitedBuffer{max: maxBytes}
	c.Stdout = outBuf
	c.Stderr = errBuf
	c.Stdin = nil

	if err := c.Start(); err != nil {
		var ee *exec.Error
		if errors.As(err, &ee) {
			return Result{ExitCode: -1, StartError: fmt.Sprintf("program %s not found", cmd.Program)}, nil
		}
		return Result{ExitCode: -1, StartError: fmt.Sprintf("program %s failed to start: %v", cmd.Program, err)}, nil
	}

	done := make(chan error, 1)
	go func() { done <- c.Wait() }()

	var timeoutC <-chan time.Time
	if cmd.Timeout > 0 {
		timer := time.NewTimer(cmd.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var waitErr error
	timedOut := false
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		timedOut = true
		waitErr = r.terminate(c, done)
	case <-timeoutC:
		timedOut = true
		waitErr = r.terminate(c, done)
	}

	res := Result{
		Stdout:          outBuf.buf.String(),
		Stderr:          errBuf.buf.String(),
		StdoutTruncated: outBuf.truncated,
		StderrTruncated: errBuf.truncated,
		TimedOut:        timedOut,
	}
	if timedOut {
		res.ExitCode = -1
		return res, nil
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		res.ExitCode = -1
		res.StartError = fmt.Sprintf("program %s execution failed: %v", cmd.Program, waitErr)
		return res, nil
	}
	return res, nil
}

// terminate signals the process group, escalating to SIGKILL after the
// grace period, and drains the wait result.
func (r *OSRunner) terminate(c *exec.Cmd, done <-chan error) error {
	signalGroup(c, syscall.SIGTERM)
	grace := r.TermGrace
	if grace <= 0 {
		grace = time.Second
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		signalGroup(c, syscall.SIGKILL)
		return <-done
	}
}

func signalGroup(c *exec.Cmd, sig syscall.Signal) {
	if c == nil || c.Process == nil {
		return
	}
	pid := c.Process.Pid
	if pid > 0 {
		if err := syscall.Kill(-pid, sig); err == nil {
			return
		}
	}
	_ = c.Process.Signal(sig)
}

func overlayEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return append([]string(nil), base...)
	}
	m := make(map[string]string, len(base)+len(overlay))
	for _, kv := range base {
		for i := 0; i < len(kv); i++ {
			if kv[i] == '=' {
				m[kv[:i]] = kv[i+1:]
				break
			}
		}
	}
	for k, v := range overlay {
		m[k] = v
	}
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}
