// Package volsync keeps the volume of a set of tracked sinks in sync.
//
// All state changes go through a single Dispatcher that consumes events in
// arrival order: sink appearances and removals update the tracked set,
// a change on a tracked sink copies its volume to every other tracked sink,
// and a configuration reload rebuilds the tracked set from scratch.
package volsync
