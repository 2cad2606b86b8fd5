// Package logging provides the structured zap logger used by every
// hookd component.
//
// Hooks run as short-lived subprocesses of git, so the logger writes to
// stderr (stdout belongs to git's hook protocol) and defaults to the
// console encoder for humans; the JSON encoder is available for log
// shipping from CI machines.
package logging
