package pattern

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultDebounce is the quiet period after an edit before detection runs.
const DefaultDebounce = 750 * time.Millisecond

// ErrSchedulerClosed is returned by RunNow after Close.
var ErrSchedulerClosed = errors.New("pattern: scheduler closed")

// DetectFunc performs one detection pass over the current graph.
type DetectFunc func(ctx context.Context) (Result, error)

// Run is the outcome of one scheduled pass.
type Run struct {
	Result    Result
	StartedAt time.Time
	Duration  time.Duration
	// Stale is set when an edit arrived while the pass was running. Stale
	// results are not delivered to the result hook.
	Stale bool
}

// Hooks receive scheduler outcomes. Both are optional and are called from
// the goroutine that executed the pass, while no other pass is running.
type Hooks struct {
	OnResult func(Run)
	OnError  func(error)
}

// Scheduler debounces detection requests and guarantees that at most one
// pass runs at a time.
type Scheduler struct {
	detect   DetectFunc
	debounce time.Duration
	hooks    Hooks
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	group singleflight.Group
	runMu sync.Mutex

	mu         sync.Mutex
	generation uint64
	timer      *time.Timer
	closed     bool
	wg         sync.WaitGroup
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithDebounce sets the quiet period. Non-positive values keep the default.
func WithDebounce(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.debounce = d
		}
	}
}

// WithHooks installs outcome callbacks.
func WithHooks(h Hooks) SchedulerOption {
	return func(s *Scheduler) {
		s.hooks = h
	}
}

// WithSchedulerLogger attaches a logger.
func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewScheduler wraps detect with the debounce discipline.
func NewScheduler(detect DetectFunc, opts ...SchedulerOption) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		detect:   detect,
		debounce: DefaultDebounce,
		logger:   zap.NewNop(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Trigger records an edit and (re)arms the debounce timer. A pending pass
// that has not started yet is superseded.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.generation++
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, s.fire)
}

// Pending reports whether a debounced pass is armed.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// RunNow runs a pass immediately, cancelling any armed timer. Concurrent
// callers share a single pass. The pass itself runs under the scheduler's
// lifetime, so a caller giving up on ctx does not cancel it for the others.
func (s *Scheduler) RunNow(ctx context.Context) (Run, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Run{}, ErrSchedulerClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()
	return s.shared(ctx)
}

// Close stops the timer, cancels the context handed to running passes and
// waits for them to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) fire() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	if _, err := s.shared(s.ctx); err != nil {
		s.logger.Debug("pattern: debounced detection failed", zap.Error(err))
	}
}

// shared joins the in-flight pass, or starts one, and waits for it on ctx.
// It releases the wait group slot the caller took once that pass is over,
// even when the caller stopped waiting early.
func (s *Scheduler) shared(ctx context.Context) (Run, error) {
	if err := ctx.Err(); err != nil {
		s.wg.Done()
		return Run{}, err
	}
	ch := s.group.DoChan("detect", func() (any, error) {
		return s.run(s.ctx)
	})
	select {
	case res := <-ch:
		s.wg.Done()
		if res.Err != nil {
			return Run{}, res.Err
		}
		return res.Val.(Run), nil
	case <-ctx.Done():
		go func() {
			<-ch
			s.wg.Done()
		}()
		return Run{}, ctx.Err()
	}
}

func (s *Scheduler) run(ctx context.Context) (Run, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	s.mu.Lock()
	started := s.generation
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Run{}, err
	}
	run := Run{StartedAt: time.Now()}
	result, err := s.detect(ctx)
	run.Duration = time.Since(run.StartedAt)
	if err != nil {
		if s.hooks.OnError != nil {
			s.hooks.OnError(err)
		}
		return Run{}, err
	}
	run.Result = result

	s.mu.Lock()
	run.Stale = s.generation != started
	s.mu.Unlock()

	if run.Stale {
		s.logger.Debug("pattern: discarding stale detection", zap.Duration("took", run.Duration))
		return run, nil
	}
	if s.hooks.OnResult != nil {
		s.hooks.OnResult(run)
	}
	return run, nil
}
