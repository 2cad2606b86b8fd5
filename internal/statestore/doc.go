// Package statestore persists engine documents as commits on a
// dedicated branch that is never checked out.
//
// Keys are hierarchical logical paths ("reports/post-merge/123.json");
// each write produces a new commit on the state branch whose tree holds
// the full key space, so reads always see the branch tip. The store
// performs no locking of its own — callers that need atomicity across
// read-modify-write cycles wrap calls in breaker.WithLock.
package statestore
