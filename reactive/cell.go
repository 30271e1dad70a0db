package reactive

// Scope records the nodes read during one evaluation of a derived value or a
// watcher action, together with the version observed for each.
//
// A nil *Scope is valid and means an untracked read.
type Scope struct {
	deps map[node]uint64
	// held reports that the runtime lock is already held by the evaluation
	held bool
}

func newScope(held bool) *Scope {
	return &Scope{deps: make(map[node]uint64), held: held}
}

// track records the first version observed for n.
func (s *Scope) track(n node, version uint64) {
	if _, seen := s.deps[n]; !seen {
		s.deps[n] = version
	}
}

// Len returns the number of distinct nodes read through the scope.
func (s *Scope) Len() int {
	if s == nil {
		return 0
	}
	return len(s.deps)
}

// View is the read side shared by [Cell] and [Derived].
type View[T any] interface {
	// Get returns the current value without recording a dependency.
	Get() T
	// Read returns the current value and records it as a dependency of s.
	Read(s *Scope) T
	// Version changes whenever the value observed through Get may have changed.
	Version() uint64
}

// Cell is a versioned mutable value with change notification.
//
// Values stored in a Cell are treated as immutable: to change a composite
// value (slice, map, struct holding either), build a new one and [Cell.Set]
// it, or use [Cell.Update]. Derived values compare versions, not contents,
// so mutating a stored value in place is never observed.
type Cell[T any] struct {
	rt      *Runtime
	value   T
	version uint64
	subs    subscribers
}

// NewCell creates a cell owned by rt holding initial.
func NewCell[T any](rt *Runtime, initial T) *Cell[T] {
	return &Cell[T]{
		rt:      rt,
		value:   initial,
		version: 1,
		subs:    make(subscribers),
	}
}

// Get returns the current value without recording a dependency.
func (c *Cell[T]) Get() T {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()
	return c.value
}

// Read returns the current value and records it as a dependency of s.
func (c *Cell[T]) Read(s *Scope) T {
	if s == nil {
		return c.Get()
	}
	if !s.held {
		c.rt.mu.Lock()
		defer c.rt.mu.Unlock()
	}
	s.track(c, c.version)
	return c.value
}

// Set replaces the value, bumps the version and schedules dependents.
func (c *Cell[T]) Set(v T) {
	c.rt.write(func() bool {
		c.value = v
		c.version++
		return true
	}, c.subs)
}

// Update replaces the value with fn(current) atomically.
//
// fn runs under the runtime lock: it must derive the new value from its
// argument only and must not read or write other nodes.
func (c *Cell[T]) Update(fn func(T) T) {
	c.rt.write(func() bool {
		c.value = fn(c.value)
		c.version++
		return true
	}, c.subs)
}

// UpdateIf is [Cell.Update] for conditional writes: fn returns the new value
// and whether to store it. When fn declines, neither the value nor the
// version changes and no dependent is scheduled. Reports whether the write
// happened.
func (c *Cell[T]) UpdateIf(fn func(T) (T, bool)) bool {
	return c.rt.write(func() bool {
		next, ok := fn(c.value)
		if !ok {
			return false
		}
		c.value = next
		c.version++
		return true
	}, c.subs)
}

// Version returns the number of writes applied to the cell, plus one.
func (c *Cell[T]) Version() uint64 {
	c.rt.mu.Lock()
	defer c.rt.mu.Unlock()
	return c.version
}

func (c *Cell[T]) currentVersion() uint64 { return c.version }

func (c *Cell[T]) addSub(sub subscriber) { c.subs[sub] = struct{}{} }

func (c *Cell[T]) removeSub(sub subscriber) { delete(c.subs, sub) }

var (
	_ View[int] = (*Cell[int])(nil)
	_ View[int] = (*Derived[int])(nil)
)
