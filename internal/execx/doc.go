// Package execx runs external tools with explicit argument vectors,
// timeout budgets, and bounded output capture.
//
// Pipelines never build shell strings; every invocation is a Command
// with a program and argv, so there is nothing to inject into. The
// Runner interface lets pipeline code swap in a fake for tests.
package execx
