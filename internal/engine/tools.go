package engine

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/fyrsmithlabs/hookd/internal/execx"
)

// codeExtensions mark files whose changes require tests, linting, and a
// journal update.
var codeExtensions = map[string]bool{
	".go": true, ".js": true, ".ts": true, ".py": true,
	".rs": true, ".java": true, ".c": true, ".cc": true,
	".cpp": true, ".h": true, ".sh": true,
}

// docExtensions mark files that trigger documentation regeneration.
var docExtensions = map[string]bool{
	".md": true, ".rst": true, ".adoc": true,
}

func isCodeFile(path string) bool {
	return codeExtensions[strings.ToLower(filepath.Ext(path))]
}

func isDocFile(path string) bool {
	return docExtensions[strings.ToLower(filepath.Ext(path))]
}

func filterCodeFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		if isCodeFile(p) {
			out = append(out, p)
		}
	}
	return out
}

func containsPath(paths []string, target string) bool {
	target = filepath.ToSlash(target)
	for _, p := range paths {
		if filepath.ToSlash(p) == target {
			return true
		}
	}
	return false
}

// runTool executes one configured argv with a timeout budget.
func (o *Orchestrator) runTool(ctx context.Context, argv []string, timeout time.Duration, extra ...string) (execx.Result, error) {
	if len(argv) == 0 {
		return execx.Result{StartError: "no tool configured"}, nil
	}
	return o.runner.Run(ctx, execx.Command{
		Program: argv[0],
		Args:    append(append([]string{}, argv[1:]...), extra...),
		Timeout: timeout,
	})
}

// outputSummary condenses tool output into a single line for step
// errors and reports.
func outputSummary(out execx.Result) string {
	text := strings.TrimSpace(out.Stderr)
	if text == "" {
		text = strings.TrimSpace(out.Stdout)
	}
	if text == "" {
		return "exit code " + strconv.Itoa(out.ExitCode)
	}
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}

// coveragePattern matches the total line of go test -cover output.
var coveragePattern = regexp.MustCompile(`coverage: (\d+(?:\.\d+)?)% of statements`)

// parseCoverage extracts the lowest reported statement coverage, or -1
// when the output carries none.
func parseCoverage(output string) float64 {
	lowest := -1.0
	for _, m := range coveragePattern.FindAllStringSubmatch(output, -1) {
		pct, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		if lowest < 0 || pct < lowest {
			lowest = pct
		}
	}
	return lowest
}
