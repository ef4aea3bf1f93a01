package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestResultsAreAppliedInOrder(t *testing.T) {
	is := is.New(t)

	var mu sync.Mutex
	applied := []uint64{}
	var calls atomic.Int64

	p := New(5*time.Millisecond, func(ctx context.Context) (int64, error) {
		return calls.Add(1), nil
	}, func(seq uint64, result int64, err error) {
		mu.Lock()
		defer mu.Unlock()
		applied = append(applied, seq)
	})

	p.Start(context.Background())
	waitFor(t, func() bool { return p.Stats().Applied >= 3 })
	p.Stop()

	mu.Lock()
	defer mu.Unlock()

	for i := 1; i < len(applied); i++ {
		is.True(applied[i] > applied[i-1])
	}
}

func TestRunsDoNotOverlap(t *testing.T) {
	is := is.New(t)

	var running, maxRunning atomic.Int32
	release := make(chan struct{})

	p := New(2*time.Millisecond, func(ctx context.Context) (bool, error) {
		n := running.Add(1)
		defer running.Add(-1)
		if n > maxRunning.Load() {
			maxRunning.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return true, nil
	}, func(uint64, bool, error) {})

	p.Start(context.Background())
	waitFor(t, func() bool { return p.Stats().Skipped >= 3 })
	close(release)
	p.Stop()

	is.Equal(maxRunning.Load(), int32(1))
}

func TestInvalidatedResultIsDiscarded(t *testing.T) {
	is := is.New(t)

	started := make(chan struct{}, 10)
	var applied atomic.Int32

	p := New(time.Hour, func(ctx context.Context) (int, error) {
		started <- struct{}{}
		<-ctx.Done()
		return 0, ctx.Err()
	}, func(uint64, int, error) {
		applied.Add(1)
	})

	p.Start(context.Background())
	<-started
	p.Invalidate()

	waitFor(t, func() bool { return p.Stats().Stale == 1 })
	p.Stop()

	is.Equal(applied.Load(), int32(0))
}

func TestStopCancelsInFlightRun(t *testing.T) {
	is := is.New(t)

	started := make(chan struct{})
	cancelled := make(chan struct{})

	p := New(time.Hour, func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return 0, ctx.Err()
	}, func(uint64, int, error) {
		t.Error("result of a cancelled run must not be applied")
	})

	p.Start(context.Background())
	<-started
	p.Stop()

	select {
	case <-cancelled:
	default:
		is.Fail() // run was not cancelled
	}
}

func waitFor(t *testing.T, cond func() bool) {
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(time.Millisecond)
	}
}
