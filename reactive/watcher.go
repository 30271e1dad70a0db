package reactive

import (
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"
)

// Watcher is a side-effecting reaction to changes in the nodes it reads.
//
// Create watchers with [Runtime.Watch]. A watcher's dependency set is
// rediscovered on every run, so an action that branches and reads different
// nodes each time is tracked correctly.
type Watcher struct {
	rt     *Runtime
	id     uint64
	name   string
	action func(s *Scope) error

	deps    map[node]uint64
	ran     bool
	runs    int
	stopped bool
}

// Watch registers a watcher and runs it once to discover its dependencies.
//
// The first run happens before Watch returns only when the runtime is idle.
// Batch depth and flushing are runtime-wide: while any goroutine holds a
// [Runtime.Batch] open or is dispatching watchers, the first run is deferred
// to that settle cycle and may happen on the other goroutine.
//
// A non-nil error returned by action, or a panic inside it, is logged and
// reported to the runtime's error handler. It never prevents other watchers
// from running and never propagates to the write that triggered the run.
func (rt *Runtime) Watch(name string, action func(s *Scope) error) *Watcher {
	rt.mu.Lock()
	rt.nextID++
	w := &Watcher{
		rt:     rt,
		id:     rt.nextID,
		name:   name,
		action: action,
		deps:   make(map[node]uint64),
	}
	rt.enqueue(w)
	rt.mu.Unlock()

	rt.settle()
	return w
}

// Name returns the name given at registration.
func (w *Watcher) Name() string { return w.name }

// Runs returns how many times the watcher's action has executed.
func (w *Watcher) Runs() int {
	w.rt.mu.Lock()
	defer w.rt.mu.Unlock()
	return w.runs
}

// Stop detaches the watcher from the graph. It will not run again.
// Safe to call multiple times.
func (w *Watcher) Stop() {
	w.rt.mu.Lock()
	defer w.rt.mu.Unlock()

	w.stopped = true
	delete(w.rt.pending, w)
	w.rebind(nil)
}

// invoke runs the action with panic recovery.
// If the action panics, the stack is logged with a correlation ID and an
// error carrying that ID is returned instead.
func (w *Watcher) invoke(s *Scope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			w.rt.logger.Error("watcher panic",
				"watcher", w.name,
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			err = fmt.Errorf("watcher %q panicked (correlation_id: %s)", w.name, correlationID)
		}
	}()

	if err := w.action(s); err != nil {
		w.rt.logger.Warn("watcher failed", "watcher", w.name, "error", err)
		return err
	}
	return nil
}

// stale reports whether the watcher has never run or any dependency changed.
// Caller holds the lock.
func (w *Watcher) stale() bool {
	if !w.ran {
		return true
	}
	for n, seen := range w.deps {
		if n.currentVersion() != seen {
			return true
		}
	}
	return false
}

// rebind swaps the dependency set. Caller holds the lock.
func (w *Watcher) rebind(next map[node]uint64) {
	for n := range w.deps {
		if _, keep := next[n]; !keep || w.stopped {
			n.removeSub(w)
		}
	}
	if !w.stopped {
		for n := range next {
			if _, had := w.deps[n]; !had {
				n.addSub(w)
			}
		}
	}
	w.deps = next
	if next != nil {
		w.ran = true
	}
}

func (w *Watcher) notify(uint64) {
	w.rt.enqueue(w)
}
