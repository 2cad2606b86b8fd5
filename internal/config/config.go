package config

import (
	"fmt"
	"time"

	"github.com/fyrsmithlabs/hookd/internal/logging"
)

// Config is the full hookd configuration.
type Config struct {
	Hooks       HooksConfig       `koanf:"hooks"`
	Performance PerformanceConfig `koanf:"performance"`
	Recovery    RecoveryConfig    `koanf:"recovery"`
	Timeouts    TimeoutsConfig    `koanf:"timeouts"`
	Git         GitConfig         `koanf:"git"`
	Tools       ToolsConfig       `koanf:"tools"`
	Logging     logging.Config    `koanf:"logging"`
}

// HooksConfig toggles pipeline features.
type HooksConfig struct {
	EnableLinting           bool `koanf:"enable_linting"`
	EnableTesting           bool `koanf:"enable_testing"`
	EnableContextValidation bool `koanf:"enable_context_validation"`
	EnableGatekeeper        bool `koanf:"enable_gatekeeper"`
	DevelopmentMode         bool `koanf:"development_mode"`

	// CoverageThreshold is the minimum statement coverage percentage
	// enforced by pre-push. Zero disables the check.
	CoverageThreshold float64 `koanf:"coverage_threshold"`
}

// PerformanceConfig tunes the execution tracker.
type PerformanceConfig struct {
	// PerformanceThreshold flags executions slower than this.
	PerformanceThreshold time.Duration `koanf:"performance_threshold"`

	// OptimizationThreshold triggers optimization recommendations.
	OptimizationThreshold time.Duration `koanf:"optimization_threshold"`
}

// RecoveryConfig tunes automatic error recovery.
type RecoveryConfig struct {
	MaxAttempts        int  `koanf:"max_attempts"`
	EnableAutoRecovery bool `koanf:"enable_auto_recovery"`
}

// TimeoutsConfig carries per-step subprocess budgets. The fast-test
// budget is deliberately short; pre-push gets the full-suite budget.
type TimeoutsConfig struct {
	FastTest time.Duration `koanf:"fast_test"`
	FullTest time.Duration `koanf:"full_test"`
	Build    time.Duration `koanf:"build"`
	Lint     time.Duration `koanf:"lint"`
	Scan     time.Duration `koanf:"scan"`
	Lock     time.Duration `koanf:"lock"`
}

// GitConfig describes repository layout and protections.
type GitConfig struct {
	// StateBranch is the never-checked-out branch holding engine state.
	StateBranch string `koanf:"state_branch"`

	// ProtectedBranches get stricter pre-receive and rollback handling.
	ProtectedBranches []string `koanf:"protected_branches"`

	// JournalPath is the working-tree path of the running-context journal.
	JournalPath string `koanf:"journal_path"`

	// CriticalFiles must exist after a merge for the repository to be
	// considered healthy.
	CriticalFiles []string `koanf:"critical_files"`
}

// ToolsConfig holds the argv for each external tool. The first element
// is the program, the rest are arguments; nothing passes through a shell.
type ToolsConfig struct {
	Lint     []string `koanf:"lint"`
	Format   []string `koanf:"format"`
	TestFast []string `koanf:"test_fast"`
	TestFull []string `koanf:"test_full"`
	Build    []string `koanf:"build"`
	Scan     []string `koanf:"scan"`
	Docs     []string `koanf:"docs"`
}

// NewDefault returns the built-in configuration.
func NewDefault() *Config {
	return &Config{
		Hooks: HooksConfig{
			EnableLinting:           true,
			EnableTesting:           true,
			EnableContextValidation: true,
			EnableGatekeeper:        true,
			DevelopmentMode:         false,
		},
		Performance: PerformanceConfig{
			PerformanceThreshold:  2 * time.Second,
			OptimizationThreshold: 5 * time.Second,
		},
		Recovery: RecoveryConfig{
			MaxAttempts:        3,
			EnableAutoRecovery: true,
		},
		Timeouts: TimeoutsConfig{
			FastTest: 30 * time.Second,
			FullTest: 10 * time.Minute,
			Build:    5 * time.Minute,
			Lint:     time.Minute,
			Scan:     2 * time.Minute,
			Lock:     10 * time.Second,
		},
		Git: GitConfig{
			StateBranch:       "hookd-state",
			ProtectedBranches: []string{"main", "master"},
			JournalPath:       ".hookd/journal.yaml",
			CriticalFiles:     []string{"go.mod"},
		},
		Tools: ToolsConfig{
			Lint:     []string{"golangci-lint", "run"},
			Format:   []string{"gofmt", "-w"},
			TestFast: []string{"go", "test", "-short", "./..."},
			TestFull: []string{"go", "test", "-coverprofile=coverage.out", "./..."},
			Build:    []string{"go", "build", "./..."},
			Scan:     []string{"govulncheck", "-json", "./..."},
			Docs:     []string{"go", "generate", "./..."},
		},
		Logging: *logging.NewDefaultConfig(),
	}
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	if c.Performance.PerformanceThreshold <= 0 {
		return fmt.Errorf("performance_threshold must be > 0, got %v", c.Performance.PerformanceThreshold)
	}
	if c.Performance.OptimizationThreshold < c.Performance.PerformanceThreshold {
		return fmt.Errorf("optimization_threshold %v must be >= performance_threshold %v",
			c.Performance.OptimizationThreshold, c.Performance.PerformanceThreshold)
	}
	if c.Hooks.CoverageThreshold < 0 || c.Hooks.CoverageThreshold > 100 {
		return fmt.Errorf("coverage_threshold must be between 0 and 100, got %v", c.Hooks.CoverageThreshold)
	}
	if c.Recovery.MaxAttempts < 1 {
		return fmt.Errorf("recovery max_attempts must be >= 1, got %d", c.Recovery.MaxAttempts)
	}
	if c.Git.StateBranch == "" {
		return fmt.Errorf("state_branch cannot be empty")
	}
	if c.Git.JournalPath == "" {
		return fmt.Errorf("journal_path cannot be empty")
	}
	for name, budget := range map[string]time.Duration{
		"fast_test": c.Timeouts.FastTest,
		"full_test": c.Timeouts.FullTest,
		"build":     c.Timeouts.Build,
		"lint":      c.Timeouts.Lint,
		"scan":      c.Timeouts.Scan,
		"lock":      c.Timeouts.Lock,
	} {
		if budget <= 0 {
			return fmt.Errorf("timeout %s must be > 0, got %v", name, budget)
		}
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	return nil
}

// IsProtectedBranch reports whether branch is configured as protected.
func (c *Config) IsProtectedBranch(branch string) bool {
	for _, p := range c.Git.ProtectedBranches {
		if p == branch {
			return true
		}
	}
	return false
}
