package dispatchboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/dispatchboard/reactive"
	"github.com/jpalmerr/dispatchboard/remote"
)

// lifecycle is the remote-call machinery shared by the stores: the loading
// and error cells, async dispatch and completion tracking.
type lifecycle struct {
	rt       *reactive.Runtime
	source   remote.Source
	logger   *slog.Logger
	recorder Recorder
	persist  LoadOptions

	// loads counts in-flight loads; isLoading derives from it so overlapping
	// loads keep the flag raised until the last one completes
	loads     *reactive.Cell[int]
	isLoading *reactive.Derived[bool]
	err       *reactive.Cell[string]

	wg sync.WaitGroup
}

func newLifecycle(cfg *storeConfig) *lifecycle {
	l := &lifecycle{
		rt:       cfg.runtime,
		source:   cfg.source,
		logger:   cfg.logger,
		recorder: cfg.recorder,
		persist:  cfg.persist,
		loads:    reactive.NewCell(cfg.runtime, 0),
		err:      reactive.NewCell(cfg.runtime, ""),
	}
	l.isLoading = reactive.NewDerived(cfg.runtime, func(s *reactive.Scope) bool {
		return l.loads.Read(s) > 0
	}, reactive.WithEqual(func(a, b bool) bool { return a == b }))
	return l
}

// load lists collection into dst asynchronously.
//
// The loading flag is raised and the error cleared in one settle cycle before
// load returns. The completion replaces dst wholesale and lowers the flag in
// another; on failure dst is left untouched and the error cell receives the
// failure message.
func load[T any](l *lifecycle, ctx context.Context, collection string, opts LoadOptions, dst *reactive.Cell[[]T]) {
	l.rt.Batch(func() {
		l.loads.Update(func(n int) int { return n + 1 })
		l.err.Set("")
	})

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		start := time.Now()
		var items []T
		err := l.source.List(ctx, collection, opts.callOptions(), &items)
		elapsed := time.Since(start)
		if l.recorder != nil {
			l.recorder.ObserveLoad(collection, elapsed, err)
		}

		l.rt.Batch(func() {
			if err != nil {
				l.err.Set(failureMessage(err, "Failed to load "+collection))
			} else {
				if items == nil {
					items = []T{}
				}
				dst.Set(items)
			}
			l.loads.Update(func(n int) int { return n - 1 })
		})

		logAttrs := []any{
			"collection", collection,
			"latency_ms", elapsed.Milliseconds(),
		}
		if err != nil {
			l.logger.Warn("load failed", append(logAttrs, "error", err.Error())...)
		} else {
			l.logger.Debug("load completed", append(logAttrs, "count", len(items))...)
		}
	}()
}

// persistPatch sends fields to the remote entity asynchronously. A failure
// sets the error cell; the local state is never reverted.
func (l *lifecycle) persistPatch(ctx context.Context, collection string, id int, fields map[string]any, fallback string) {
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		start := time.Now()
		err := l.source.Patch(ctx, collection, id, fields, l.persist.callOptions(), nil)
		elapsed := time.Since(start)
		if l.recorder != nil {
			l.recorder.ObservePersist(collection, elapsed, err)
		}

		logAttrs := []any{
			"collection", collection,
			"id", id,
			"latency_ms", elapsed.Milliseconds(),
		}
		if err != nil {
			l.logger.Warn("persist failed, keeping local change", append(logAttrs, "error", err.Error())...)
			l.err.Set(failureMessage(err, fallback))
			return
		}
		l.logger.Debug("persist completed", logAttrs...)
	}()
}

// wait blocks until every in-flight remote call has completed.
func (l *lifecycle) wait() {
	l.wg.Wait()
}

// failureMessage returns the human-readable message of a remote failure.
func failureMessage(err error, fallback string) string {
	var failure *remote.Failure
	if errors.As(err, &failure) && failure.Message != "" {
		return failure.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return fallback
}
