// Package recovery classifies pipeline errors, attempts bounded
// automatic recovery, and manages the audited bypass mechanism.
//
// Classification is deterministic and recomputed per occurrence: the
// error's text (or explicit category) plus the hook phase map to a
// severity, a blocking type, and recoverability/bypassability flags.
// Recovery attempts are counted per (category, context) key and capped
// so a flapping failure cannot loop forever. Every granted bypass is
// paired with an append-only audit record.
package recovery
