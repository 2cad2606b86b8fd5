package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fyrsmithlabs/hookd/internal/execx"
)

// CommandScanner runs the configured vulnerability scanner as a
// subprocess and derives severity counts from its output.
type CommandScanner struct {
	Argv    []string
	Timeout time.Duration
	Runner  execx.Runner
}

// Scan implements VulnScanner.
func (s *CommandScanner) Scan(ctx context.Context) (ScanSummary, error) {
	if len(s.Argv) == 0 {
		return ScanSummary{}, fmt.Errorf("no scan tool configured")
	}
	out, err := s.Runner.Run(ctx, execx.Command{
		Program: s.Argv[0],
		Args:    s.Argv[1:],
		Timeout: s.Timeout,
	})
	if err != nil {
		return ScanSummary{}, err
	}
	if out.TimedOut {
		return ScanSummary{}, fmt.Errorf("vulnerability scan timed out")
	}
	if out.StartError != "" {
		return ScanSummary{}, fmt.Errorf("vulnerability scan: %s", out.StartError)
	}

	sum := parseSeverities(out.Stdout + "\n" + out.Stderr)
	if sum == (ScanSummary{}) && out.ExitCode != 0 {
		// The scanner flagged findings we could not parse. Treat them
		// as critical rather than waving the push through.
		sum.Critical = 1
	}
	return sum, nil
}

// parseSeverities counts severity markers in scanner output. Both
// "severity": "critical" JSON fields and plain "Severity: CRITICAL"
// report lines are recognized.
func parseSeverities(output string) ScanSummary {
	var sum ScanSummary
	for _, line := range strings.Split(output, "\n") {
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "severity") {
			continue
		}
		switch {
		case strings.Contains(lower, "critical"):
			sum.Critical++
		case strings.Contains(lower, "high"):
			sum.High++
		case strings.Contains(lower, "moderate"), strings.Contains(lower, "medium"):
			sum.Medium++
		case strings.Contains(lower, "low"):
			sum.Low++
		}
	}
	return sum
}
