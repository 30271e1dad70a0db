package reactive

// DerivedOption configures a [Derived].
type DerivedOption[T any] func(*Derived[T])

// WithEqual sets the equality used after a recompute. When the new value is
// equal to the cached one, the cached value is kept and the version does not
// change, so dependents see no change.
func WithEqual[T any](equal func(a, b T) bool) DerivedOption[T] {
	return func(d *Derived[T]) {
		d.equal = equal
	}
}

// Derived is a cached, pure function over cells and other derived values.
//
// The cached value is reused for as long as every input read during the last
// computation still reports the version observed then. Otherwise the value
// is recomputed on the next read; writes never trigger computation on their
// own.
//
// Once computed, a Derived stays subscribed to its inputs for as long as they
// live, whether or not anything still reads it. Create views once per store,
// not per request.
type Derived[T any] struct {
	rt      *Runtime
	compute func(s *Scope) T
	equal   func(a, b T) bool

	value     T
	version   uint64
	computed  bool
	computing bool
	deps      map[node]uint64
	subs      subscribers
	notified  uint64
}

// NewDerived creates a derived value owned by rt. compute must be free of
// side effects and must read its inputs through the scope it is given.
func NewDerived[T any](rt *Runtime, compute func(s *Scope) T, opts ...DerivedOption[T]) *Derived[T] {
	d := &Derived[T]{
		rt:      rt,
		compute: compute,
		subs:    make(subscribers),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Get returns the up-to-date value without recording a dependency.
func (d *Derived[T]) Get() T {
	d.rt.mu.Lock()
	defer d.rt.mu.Unlock()
	d.refresh()
	return d.value
}

// Read returns the up-to-date value and records it as a dependency of s.
func (d *Derived[T]) Read(s *Scope) T {
	if s == nil {
		return d.Get()
	}
	if !s.held {
		d.rt.mu.Lock()
		defer d.rt.mu.Unlock()
	}
	d.refresh()
	s.track(d, d.version)
	return d.value
}

// Version returns the derived value's version, recomputing first if needed.
func (d *Derived[T]) Version() uint64 {
	d.rt.mu.Lock()
	defer d.rt.mu.Unlock()
	d.refresh()
	return d.version
}

// refresh recomputes the value if any input changed. Caller holds the lock.
func (d *Derived[T]) refresh() {
	if d.computing {
		panic(ErrCycle)
	}
	if d.computed && !d.stale() {
		return
	}

	d.computing = true
	defer func() { d.computing = false }()

	s := newScope(true)
	v := d.compute(s)
	d.rebind(s.deps)
	d.rt.stats.Recomputes++

	if d.computed && d.equal != nil && d.equal(d.value, v) {
		return
	}
	d.value = v
	d.version++
	d.computed = true
}

// stale reports whether any recorded input moved past the observed version.
func (d *Derived[T]) stale() bool {
	for n, seen := range d.deps {
		if n.currentVersion() != seen {
			return true
		}
	}
	return false
}

// rebind swaps the dependency set, keeping upstream subscriptions in sync.
func (d *Derived[T]) rebind(next map[node]uint64) {
	for n := range d.deps {
		if _, ok := next[n]; !ok {
			n.removeSub(d)
		}
	}
	for n := range next {
		if _, ok := d.deps[n]; !ok {
			n.addSub(d)
		}
	}
	d.deps = next
}

func (d *Derived[T]) currentVersion() uint64 {
	d.refresh()
	return d.version
}

func (d *Derived[T]) addSub(sub subscriber) { d.subs[sub] = struct{}{} }

func (d *Derived[T]) removeSub(sub subscriber) { delete(d.subs, sub) }

// notify forwards a change downstream once per write.
func (d *Derived[T]) notify(epoch uint64) {
	if d.notified == epoch {
		return
	}
	d.notified = epoch
	d.subs.notifyAll(epoch)
}
