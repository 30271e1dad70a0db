// Package broadcast fans out the latest value of a reactive view to
// subscribers.
//
// This package is internal to dispatchboard. A [Hub] follows a view through a
// watcher, so subscribers receive one update per settle cycle in which the
// view changed. Delivery is non-blocking: slow subscribers miss intermediate
// updates rather than stall the runtime, and can always catch up with
// [Hub.Latest].
//
// The main components are:
//
//   - [Hub]: Latest-value store with pub/sub
//   - [Update]: A published value with its sequence number
package broadcast
