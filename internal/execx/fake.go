package execx

import (
	"context"
	"sync"
)

// FakeRunner is a scripted Runner for tests. Results are matched by
// program name; unmatched programs return the Default result.
type FakeRunner struct {
	mu sync.Mutex

	// Results maps program name to the result to return.
	Results map[string]Result

	// Default is returned for programs with no scripted result.
	Default Result

	// Err, when set, is returned from every Run call.
	Err error

	// Calls records every command in invocation order.
	Calls []Command
}

// Run returns the scripted result for cmd.Program.
func (f *FakeRunner) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, cmd)
	if f.Err != nil {
		return Result{}, f.Err
	}
	if res, ok := f.Results[cmd.Program]; ok {
		return res, nil
	}
	return f.Default, nil
}

// CallCount returns how many commands have been run.
func (f *FakeRunner) CallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Calls)
}
