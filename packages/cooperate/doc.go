// Package cooperate implements a single-threaded cooperative scheduler.
//
// Work is expressed as an Iterator whose Next method performs one bounded
// step. A Cooperator interleaves the steps of all its tasks:
//   - Tick runs one step of every runnable task, for deterministic tests
//   - Run drives ticks on the calling goroutine until the context ends
//   - WithRate paces ticks with a token bucket
//
// A step may return a wait signal; the task is then suspended until the
// signal resolves, and fails if it resolves with an error. Tasks can be
// paused, resumed and stopped from any goroutine.
package cooperate
