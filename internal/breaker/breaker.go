package breaker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FailureThreshold is the number of recorded failures that opens the
// circuit.
const FailureThreshold = 3

// State is the persisted breaker document.
type State struct {
	Failures        int       `json:"failures"`
	IsOpen          bool      `json:"is_open"`
	LastFailureTime time.Time `json:"last_failure_time,omitempty"`
}

// Breaker is a process-wide failure counter with open/closed semantics.
// The counter is loaded from its document at construction and persisted
// on every mutation, so consecutive hook invocations share one circuit.
type Breaker struct {
	path   string
	logger *zap.Logger

	mu    sync.Mutex
	state State
}

// New loads (or initializes) the breaker backed by the document at path.
// A missing or corrupt document starts the breaker closed; corruption is
// logged, not fatal.
func New(path string, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Breaker{path: path, logger: logger}

	data, err := os.ReadFile(path)
	if err == nil {
		if uerr := json.Unmarshal(data, &b.state); uerr != nil {
			logger.Warn("breaker document corrupt, starting closed",
				zap.String("path", path), zap.Error(uerr))
			b.state = State{}
		}
	}
	return b
}

// RecordFailure increments the persisted counter and opens the circuit
// once the threshold is reached.
func (b *Breaker) RecordFailure() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state.Failures++
	b.state.LastFailureTime = time.Now().UTC()
	if b.state.Failures >= FailureThreshold {
		b.state.IsOpen = true
	}
	return b.persist()
}

// Reset clears the counter and closes the circuit.
func (b *Breaker) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = State{}
	return b.persist()
}

// IsOpen reports whether the circuit is open. Pure read.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.IsOpen
}

// Failures returns the current failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state.Failures
}

// persist writes the state document. Caller holds b.mu.
func (b *Breaker) persist() error {
	data, err := json.MarshalIndent(b.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal breaker state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.path), 0o700); err != nil {
		return fmt.Errorf("create breaker directory: %w", err)
	}
	tmp := b.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write breaker state: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace breaker state: %w", err)
	}
	return nil
}
