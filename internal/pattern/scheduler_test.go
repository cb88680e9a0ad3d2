package pattern

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestSchedulerDebouncesBursts(t *testing.T) {
	var calls atomic.Int32
	delivered := make(chan Run, 4)
	s := NewScheduler(func(context.Context) (Result, error) {
		calls.Add(1)
		return Result{Visited: 1}, nil
	}, WithDebounce(30*time.Millisecond), WithHooks(Hooks{OnResult: func(r Run) { delivered <- r }}))
	defer s.Close()

	for i := 0; i < 5; i++ {
		s.Trigger()
		time.Sleep(5 * time.Millisecond)
	}
	select {
	case run := <-delivered:
		assert.False(t, run.Stale)
	case <-time.After(2 * time.Second):
		t.Fatalf("debounced run never fired")
	}
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load())
	assert.False(t, s.Pending())
}

func TestSchedulerNeverOverlapsRuns(t *testing.T) {
	var active, maxActive atomic.Int32
	s := NewScheduler(func(context.Context) (Result, error) {
		n := active.Add(1)
		for {
			prev := maxActive.Load()
			if n <= prev || maxActive.CompareAndSwap(prev, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		active.Add(-1)
		return Result{}, nil
	}, WithDebounce(time.Millisecond))
	defer s.Close()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Trigger()
			_, _ = s.RunNow(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxActive.Load())
}

func TestSchedulerMarksRunsStaleWhenEditsArrive(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var delivered atomic.Int32
	var first atomic.Bool
	s := NewScheduler(func(context.Context) (Result, error) {
		if first.CompareAndSwap(false, true) {
			started <- struct{}{}
			<-release
		}
		return Result{}, nil
	}, WithDebounce(time.Hour), WithHooks(Hooks{OnResult: func(Run) { delivered.Add(1) }}))
	defer s.Close()

	done := make(chan Run, 1)
	go func() {
		run, err := s.RunNow(context.Background())
		assert.NoError(t, err)
		done <- run
	}()
	<-started
	s.Trigger()
	close(release)
	run := <-done
	assert.True(t, run.Stale)
	assert.Zero(t, delivered.Load())
	assert.True(t, s.Pending(), "the edit must leave a pass armed")

	fresh, err := s.RunNow(context.Background())
	require.NoError(t, err)
	assert.False(t, fresh.Stale)
	assert.Equal(t, int32(1), delivered.Load())
	assert.False(t, s.Pending())
}

func TestSchedulerReportsErrors(t *testing.T) {
	boom := errors.New("boom")
	var seen error
	s := NewScheduler(func(context.Context) (Result, error) {
		return Result{}, boom
	}, WithHooks(Hooks{OnError: func(err error) { seen = err }}))
	defer s.Close()

	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, seen, boom)
}

func TestSchedulerCloseStopsEverything(t *testing.T) {
	var calls atomic.Int32
	s := NewScheduler(func(context.Context) (Result, error) {
		calls.Add(1)
		return Result{}, nil
	}, WithDebounce(20*time.Millisecond))
	s.Trigger()
	s.Close()
	s.Close()
	time.Sleep(40 * time.Millisecond)
	assert.Zero(t, calls.Load())

	_, err := s.RunNow(context.Background())
	assert.ErrorIs(t, err, ErrSchedulerClosed)
	s.Trigger()
	assert.False(t, s.Pending())
}

func TestSchedulerSharedRunSurvivesCallerCancel(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var calls atomic.Int32
	s := NewScheduler(func(ctx context.Context) (Result, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
			return Result{}, ctx.Err()
		}
		return Result{Visited: 7}, nil
	}, WithDebounce(time.Hour))
	defer s.Close()

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := s.RunNow(first)
		firstErr <- err
	}()
	<-started

	type outcome struct {
		run Run
		err error
	}
	second := make(chan outcome, 1)
	go func() {
		run, err := s.RunNow(context.Background())
		second <- outcome{run, err}
	}()
	// Let the second caller join the pass before the first one leaves.
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	select {
	case got := <-second:
		require.NoError(t, got.err)
		assert.Equal(t, 7, got.run.Result.Visited)
	case <-time.After(2 * time.Second):
		t.Fatalf("joined caller never got the shared run")
	}
	assert.Equal(t, int32(1), calls.Load())
}

func TestSchedulerCloseWaitsForAbandonedRun(t *testing.T) {
	started := make(chan struct{})
	var finished atomic.Bool
	s := NewScheduler(func(ctx context.Context) (Result, error) {
		close(started)
		<-ctx.Done()
		finished.Store(true)
		return Result{}, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(ctx)
		done <- err
	}()
	<-started
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.False(t, finished.Load(), "caller cancel must not stop the pass")

	s.Close()
	assert.True(t, finished.Load())
}
