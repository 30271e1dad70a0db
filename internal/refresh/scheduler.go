package refresh

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Scheduler runs a reload function at a fixed interval.
//
// All lifecycle methods (Start, Stop) are safe for concurrent use.
type Scheduler struct {
	interval time.Duration
	reload   func(ctx context.Context)
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu      sync.Mutex
	started bool
	stopped bool
	ticks   int
}

// NewScheduler creates a [Scheduler] calling reload every interval.
//
// The scheduler must be started with [Scheduler.Start] and stopped with
// [Scheduler.Stop]. A nil logger means [slog.Default].
func NewScheduler(interval time.Duration, reload func(ctx context.Context), logger *slog.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("refresh interval must be positive, got %v", interval)
	}
	if reload == nil {
		return nil, fmt.Errorf("reload function cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		interval: interval,
		reload:   reload,
		logger:   logger,
	}, nil
}

// Start begins the reload loop in a background goroutine.
//
// The first reload happens one interval after Start. Start is idempotent;
// subsequent calls after the first are no-ops. If Stop was called before
// Start, Start is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started || s.stopped {
		s.mu.Unlock()
		return
	}
	s.started = true

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.safeReload(ctx)
			}
		}
	}()
}

// Stop halts the scheduler and waits for an in-progress reload call to
// return. Stop is idempotent; calling it before Start is a safe no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.stopped {
		s.stopped = true
		if s.cancel != nil {
			s.cancel()
		}
	}
	s.mu.Unlock()

	s.wg.Wait()
}

// Ticks returns how many reloads have been started.
func (s *Scheduler) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// safeReload calls reload with panic recovery. A panic is logged with its
// stack trace and a correlation ID.
func (s *Scheduler) safeReload(ctx context.Context) {
	s.mu.Lock()
	s.ticks++
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("reload panic",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
		}
	}()

	s.logger.Debug("periodic reload")
	s.reload(ctx)
}
