// Package engine is the hook orchestrator: one entry point per git
// lifecycle event, each running a fixed pipeline of named steps.
//
// Steps never throw past their boundary. A raised error is classified,
// run through bounded recovery where the category allows it, and folded
// into the step result. Pre events can fail the run and feed the
// circuit breaker; post events always succeed because the repository
// mutation they follow has already happened.
package engine
