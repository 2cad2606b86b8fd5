// Package perf tracks hook execution timing with bounded history.
//
// Every pipeline run opens an execution record at start and closes it
// exactly once at the end. History lives in fixed-capacity ring buffers
// so memory stays O(1) no matter how many hooks a long-lived test
// process fires. Aggregates and the development-mode bypass signal are
// derived from the retained window only.
package perf
