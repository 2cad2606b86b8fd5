package breaker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// ErrLockTimeout is returned when a named lock cannot be acquired
// within the configured budget. Callers treat it as recoverable.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// staleLockAge is the mtime bound for lock files whose holder PID
// cannot be read. A holder killed between create and release would
// otherwise block every later acquisition until manual cleanup.
const staleLockAge = 10 * time.Minute

// Locker provides named mutual exclusion between hook processes using
// exclusively-created lock files under a shared directory.
type Locker struct {
	dir     string
	timeout time.Duration
	poll    time.Duration
	logger  *zap.Logger
}

// NewLocker creates a locker rooted at dir. Lock acquisition gives up
// after timeout; zero means a 10 second default.
func NewLocker(dir string, timeout time.Duration, logger *zap.Logger) *Locker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{
		dir:     dir,
		timeout: timeout,
		poll:    25 * time.Millisecond,
		logger:  logger,
	}
}

// WithLock runs fn while holding the lock named name. The lock is
// released on every exit path, including a panic inside fn.
func (l *Locker) WithLock(ctx context.Context, name string, fn func() error) error {
	path, err := l.acquire(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if rerr := os.Remove(path); rerr != nil && !os.IsNotExist(rerr) {
			l.logger.Warn("failed to release lock",
				zap.String("name", name), zap.Error(rerr))
		}
	}()
	return fn()
}

// acquire creates the lock file, polling until success, timeout, or
// context cancellation.
func (l *Locker) acquire(ctx context.Context, name string) (string, error) {
	if err := os.MkdirAll(l.dir, 0o700); err != nil {
		return "", fmt.Errorf("create lock directory: %w", err)
	}
	path := filepath.Join(l.dir, name+".lock")
	deadline := time.Now().Add(l.timeout)

	for {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			_, _ = f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
			_ = f.Close()
			return path, nil
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("create lock file %s: %w", path, err)
		}
		if l.reclaimIfStale(path, name) {
			continue
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("lock %q held too long: %w", name, ErrLockTimeout)
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("lock %q: %w", name, ctx.Err())
		case <-time.After(l.poll):
		}
	}
}

// reclaimIfStale removes a lock whose recorded holder is gone: the PID
// no longer exists, or the file is unreadable and older than
// staleLockAge. Returns true when the caller should retry immediately.
func (l *Locker) reclaimIfStale(path, name string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		// Racing against a release; the retry loop handles it.
		return false
	}

	stale := false
	pid, perr := strconv.Atoi(strings.TrimSpace(string(data)))
	if perr == nil && pid > 0 {
		stale = !processAlive(pid)
	} else if info, serr := os.Stat(path); serr == nil {
		stale = time.Since(info.ModTime()) > staleLockAge
	}
	if !stale {
		return false
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return false
	}
	l.logger.Warn("reclaimed stale lock",
		zap.String("name", name), zap.Int("holder_pid", pid))
	return true
}

// processAlive probes pid with signal 0. EPERM still means the process
// exists, just owned by someone else.
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return errors.Is(err, syscall.EPERM)
}
