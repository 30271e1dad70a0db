package reactive

import (
	"cmp"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"
)

const defaultMaxFlushRounds = 100

var (
	// ErrCycle is raised (as a panic value) when a derived value reads itself,
	// directly or through other derived values.
	ErrCycle = errors.New("reactive: dependency cycle")

	// ErrFeedbackLoop is reported when watchers keep re-triggering each other
	// beyond the configured number of flush rounds.
	ErrFeedbackLoop = errors.New("reactive: watcher feedback loop")
)

// node is anything that can be read through a [Scope].
type node interface {
	// currentVersion returns the node's version, bringing derived values up to
	// date first. Caller holds the runtime lock.
	currentVersion() uint64
	addSub(sub subscriber)
	removeSub(sub subscriber)
}

// subscriber is notified (under the runtime lock) when an upstream node changed.
type subscriber interface {
	notify(epoch uint64)
}

// subscribers is the set of downstream nodes of a cell or derived value.
type subscribers map[subscriber]struct{}

func (subs subscribers) notifyAll(epoch uint64) {
	for sub := range subs {
		sub.notify(epoch)
	}
}

// Observer receives watcher execution events, e.g. for metrics.
type Observer interface {
	WatcherRan(name string, duration time.Duration, err error)
}

// Stats holds cumulative runtime counters.
type Stats struct {
	Writes          uint64
	Recomputes      uint64
	WatcherRuns     uint64
	WatcherFailures uint64
}

// RuntimeOption configures a [Runtime].
type RuntimeOption func(*Runtime)

// WithRuntimeLogger sets the logger used for watcher failures.
// If not specified, [slog.Default] is used.
func WithRuntimeLogger(logger *slog.Logger) RuntimeOption {
	return func(rt *Runtime) {
		if logger != nil {
			rt.logger = logger
		}
	}
}

// WithWatcherErrorHandler registers a function called with every watcher
// failure, after it has been logged. The handler runs outside the runtime lock.
func WithWatcherErrorHandler(fn func(name string, err error)) RuntimeOption {
	return func(rt *Runtime) {
		rt.onError = fn
	}
}

// WithObserver registers an [Observer] notified after every watcher run.
func WithObserver(o Observer) RuntimeOption {
	return func(rt *Runtime) {
		rt.observer = o
	}
}

// WithMaxFlushRounds bounds how many rounds of watcher dispatch a single flush
// may take before it is treated as a feedback loop. Values below 1 are ignored.
func WithMaxFlushRounds(n int) RuntimeOption {
	return func(rt *Runtime) {
		if n > 0 {
			rt.maxRounds = n
		}
	}
}

// Runtime owns a reactive graph and schedules its watchers.
//
// A Runtime is safe for concurrent use. Writes from any goroutine are applied
// under the runtime lock; watcher dispatch is performed by one goroutine at a
// time (whichever closed the settle cycle), so watcher actions never run
// concurrently with each other.
type Runtime struct {
	mu        sync.Mutex
	logger    *slog.Logger
	onError   func(name string, err error)
	observer  Observer
	maxRounds int

	epoch      uint64
	batchDepth int
	flushing   bool
	nextID     uint64
	pending    map[*Watcher]struct{}
	stats      Stats
}

// NewRuntime creates an empty [Runtime].
func NewRuntime(opts ...RuntimeOption) *Runtime {
	rt := &Runtime{
		logger:    slog.Default(),
		maxRounds: defaultMaxFlushRounds,
		pending:   make(map[*Watcher]struct{}),
	}
	for _, opt := range opts {
		opt(rt)
	}
	return rt
}

// Batch runs fn as a single settle cycle. Watchers affected by any write made
// inside fn run once, after fn returns, observing the final state.
//
// Batches nest; only the outermost one triggers dispatch.
func (rt *Runtime) Batch(fn func()) {
	rt.mu.Lock()
	rt.batchDepth++
	rt.mu.Unlock()

	defer func() {
		rt.mu.Lock()
		rt.batchDepth--
		rt.mu.Unlock()
		rt.settle()
	}()

	fn()
}

// Stats returns a snapshot of the runtime counters.
func (rt *Runtime) Stats() Stats {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	return rt.stats
}

// write applies a mutation under the lock, notifies downstream nodes and
// settles if no batch or flush is in progress. apply reports whether it
// changed anything; a false result leaves the graph untouched.
func (rt *Runtime) write(apply func() bool, subs subscribers) bool {
	changed := func() bool {
		rt.mu.Lock()
		defer rt.mu.Unlock()
		if !apply() {
			return false
		}
		rt.epoch++
		rt.stats.Writes++
		subs.notifyAll(rt.epoch)
		return true
	}()

	if changed {
		rt.settle()
	}
	return changed
}

// enqueue marks a watcher for the next flush round. Caller holds the lock.
func (rt *Runtime) enqueue(w *Watcher) {
	if w.stopped {
		return
	}
	rt.pending[w] = struct{}{}
}

// settle starts a flush on the calling goroutine unless one is already
// running, a batch is open, or nothing is pending.
func (rt *Runtime) settle() {
	rt.mu.Lock()
	if rt.batchDepth > 0 || rt.flushing || len(rt.pending) == 0 {
		rt.mu.Unlock()
		return
	}
	rt.flushing = true
	rt.mu.Unlock()

	rt.flush()
}

// flush dispatches pending watchers in rounds until nothing is pending.
func (rt *Runtime) flush() {
	for round := 0; ; round++ {
		due, stop, overflow := rt.nextRound(round)
		for _, name := range overflow {
			rt.report(name, ErrFeedbackLoop)
		}
		if stop {
			return
		}
		for _, w := range due {
			rt.run(w)
		}
	}
}

// nextRound takes the pending set and returns the watchers whose inputs
// actually changed. stop reports that the flush is over (flushing has been
// cleared).
func (rt *Runtime) nextRound(round int) (due []*Watcher, stop bool, overflow []string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()

	// an open batch will flush when it closes
	if len(rt.pending) == 0 || rt.batchDepth > 0 {
		rt.flushing = false
		return nil, true, nil
	}

	if round >= rt.maxRounds {
		for w := range rt.pending {
			overflow = append(overflow, w.name)
		}
		clear(rt.pending)
		rt.flushing = false
		slices.Sort(overflow)
		return nil, true, overflow
	}

	batch := make([]*Watcher, 0, len(rt.pending))
	for w := range rt.pending {
		batch = append(batch, w)
	}
	clear(rt.pending)
	slices.SortFunc(batch, func(a, b *Watcher) int {
		return cmp.Compare(a.id, b.id)
	})

	for _, w := range batch {
		if w.stopped {
			continue
		}
		if rt.isStale(w, true) {
			due = append(due, w)
		}
	}
	return due, false, nil
}

// isStale reports whether a watcher must run. A derived input that panics
// while refreshing reports onPanic instead.
func (rt *Runtime) isStale(w *Watcher, onPanic bool) (stale bool) {
	defer func() {
		if r := recover(); r != nil {
			stale = onPanic
		}
	}()
	return w.stale()
}

// run executes a watcher outside the lock and rebinds its dependencies.
func (rt *Runtime) run(w *Watcher) {
	s := newScope(false)
	start := time.Now()
	err := w.invoke(s)
	elapsed := time.Since(start)

	rt.mu.Lock()
	w.rebind(s.deps)
	w.runs++
	rt.stats.WatcherRuns++
	if err != nil {
		rt.stats.WatcherFailures++
	}
	// a write that landed between the read and the rebind would otherwise be lost
	if !w.stopped && rt.isStale(w, false) {
		rt.enqueue(w)
	}
	observer := rt.observer
	rt.mu.Unlock()

	if observer != nil {
		observer.WatcherRan(w.name, elapsed, err)
	}
	if err != nil {
		rt.report(w.name, err)
	}
}

// report hands a watcher failure to the error handler. Logging has already
// happened for panics and errors returned by actions.
func (rt *Runtime) report(name string, err error) {
	if errors.Is(err, ErrFeedbackLoop) {
		rt.logger.Error("watcher flush aborted", "watcher", name, "error", err)
	}
	if rt.onError != nil {
		rt.onError(name, err)
	}
}
