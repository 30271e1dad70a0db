// Package refresh periodically reloads store collections.
//
// This package is internal to dispatchboard. A [Scheduler] calls a reload
// function on a fixed interval until stopped; a panicking reload is recovered
// and logged with a correlation ID, and the next tick runs normally.
package refresh
