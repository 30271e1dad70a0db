// Package metrics exposes store and runtime activity as Prometheus metrics.
//
// A [Collector] implements both the store's remote-call recorder and the
// runtime observer, so one value wired through the store options covers
// loads, persists and watcher runs.
package metrics
