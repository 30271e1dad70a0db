// Package reactive provides store-agnostic reactive state primitives.
//
// The package models a small dependency graph with three kinds of nodes:
//
//   - [Cell]: an owned, versioned mutable value with change notification
//   - [Derived]: a cached pure function over cells and other derived values,
//     recomputed lazily on the next read after one of its inputs changed
//   - [Watcher]: a side-effecting reaction dispatched at most once per settle
//     cycle when anything it read during its last run changed
//
// All nodes belong to a [Runtime]. The runtime serializes every graph access
// behind a single lock, which gives the same guarantees as a single logical
// thread of control: two writes never interleave and a derived value is never
// observed half-computed.
//
// # Dependency Tracking
//
// Dependencies are discovered by recording reads. Compute functions and
// watcher actions receive a [*Scope]; reading through it records the node and
// the version observed:
//
//	rt := reactive.NewRuntime()
//	items := reactive.NewCell(rt, []int{1, 2, 3})
//	sum := reactive.NewDerived(rt, func(s *reactive.Scope) int {
//	    total := 0
//	    for _, v := range items.Read(s) {
//	        total += v
//	    }
//	    return total
//	})
//
// Untracked reads use Get. Compute functions must only read through their
// scope and must never write; doing either from inside a compute function
// deadlocks the runtime.
//
// # Settle Cycles
//
// A settle cycle spans one external trigger (a write, or a [Runtime.Batch]
// containing several writes) until no further synchronous writes are pending.
// Watchers run once per cycle, after all of the cycle's writes have applied:
//
//	rt.Watch("log-sum", func(s *reactive.Scope) error {
//	    slog.Info("sum changed", "sum", sum.Read(s))
//	    return nil
//	})
//
//	rt.Batch(func() {
//	    items.Set([]int{4, 5})
//	    items.Set([]int{6})
//	}) // "log-sum" runs once, observing 6
//
// Watcher failures (returned errors and panics) are isolated: they are logged
// with a correlation ID and reported to the configured error handler, and the
// remaining watchers still run.
package reactive
