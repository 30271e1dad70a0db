package dispatchboard

import (
	"errors"
	"log/slog"
	"time"

	"github.com/jpalmerr/dispatchboard/reactive"
	"github.com/jpalmerr/dispatchboard/remote"
)

// ErrNoSource is returned by store constructors when no [remote.Source] was
// configured via [WithSource].
var ErrNoSource = errors.New("a remote source is required")

// Recorder receives the outcome of every remote call a store makes.
//
// A Recorder that also implements [reactive.Observer] is attached to the
// store's runtime when the runtime is created by the store.
type Recorder interface {
	ObserveLoad(collection string, duration time.Duration, err error)
	ObservePersist(collection string, duration time.Duration, err error)
}

// storeConfig holds mutable state during store construction.
type storeConfig struct {
	source       remote.Source
	runtime      *reactive.Runtime
	logger       *slog.Logger
	recorder     Recorder
	persist      LoadOptions
	totalLogging bool
}

// Option is a function that configures a [BoardStore] or [CartStore] during
// construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails.
//
// Built-in options: [WithSource], [WithRuntime], [WithLogger], [WithMetrics],
// [WithPersistOptions], [WithTotalLogging].
type Option func(*storeConfig) error

// WithSource sets the remote data source used for loads and persists.
// Required.
//
// Example:
//
//	src, err := remote.NewHTTPSource("http://localhost:3000")
//	if err != nil {
//	    return err
//	}
//	store, err := dispatchboard.NewBoardStore(dispatchboard.WithSource(src))
//
// Returns an error if the source is nil.
func WithSource(src remote.Source) Option {
	return func(cfg *storeConfig) error {
		if src == nil {
			return errors.New("source cannot be nil")
		}
		cfg.source = src
		return nil
	}
}

// WithRuntime places the store's cells on an existing runtime, so watchers
// can observe several stores within one settle cycle. If not specified, each
// store creates its own runtime.
//
// Returns an error if the runtime is nil.
func WithRuntime(rt *reactive.Runtime) Option {
	return func(cfg *storeConfig) error {
		if rt == nil {
			return errors.New("runtime cannot be nil")
		}
		cfg.runtime = rt
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the store.
//
// If not specified, [slog.Default] is used. The logger is also handed to the
// runtime when the store creates one.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *storeConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithMetrics registers a [Recorder] notified after every remote call.
// Nil recorders are silently ignored.
func WithMetrics(r Recorder) Option {
	return func(cfg *storeConfig) error {
		cfg.recorder = r
		return nil
	}
}

// WithPersistOptions sets the testing hooks applied to every persist call
// made by a mutation.
//
// Example:
//
//	// every mutation fails remotely; local state keeps the change
//	store, err := dispatchboard.NewBoardStore(
//	    dispatchboard.WithSource(src),
//	    dispatchboard.WithPersistOptions(dispatchboard.LoadOptions{SimulateError: true}),
//	)
//
// Returns an error if the delay is negative.
func WithPersistOptions(opts LoadOptions) Option {
	return func(cfg *storeConfig) error {
		if opts.Delay < 0 {
			return errors.New("persist delay cannot be negative")
		}
		cfg.persist = opts
		return nil
	}
}

// WithTotalLogging attaches a watcher to a [CartStore] that logs the cart
// total every time it changes. Ignored by [BoardStore].
func WithTotalLogging() Option {
	return func(cfg *storeConfig) error {
		cfg.totalLogging = true
		return nil
	}
}

// newStoreConfig applies opts over the defaults.
func newStoreConfig(opts []Option) (*storeConfig, error) {
	cfg := &storeConfig{}
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.source == nil {
		return nil, ErrNoSource
	}

	// default to slog.Default() if no logger provided
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	if cfg.runtime == nil {
		rtOpts := []reactive.RuntimeOption{reactive.WithRuntimeLogger(cfg.logger)}
		if obs, ok := cfg.recorder.(reactive.Observer); ok {
			rtOpts = append(rtOpts, reactive.WithObserver(obs))
		}
		cfg.runtime = reactive.NewRuntime(rtOpts...)
	}
	return cfg, nil
}

func (o LoadOptions) callOptions() remote.CallOptions {
	return remote.CallOptions{Delay: o.Delay, SimulateError: o.SimulateError}
}
