// Package breaker guards fragile and shared operations across hook
// invocations.
//
// Two primitives live here: a circuit breaker whose failure count is
// persisted to a small JSON document so it survives process restarts,
// and a named lock built on exclusive lock files that serializes access
// to shared resources (the journal, the metrics document, the breaker
// document itself) between concurrently running hook processes.
package breaker
