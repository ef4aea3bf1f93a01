// Package scheduler runs a task periodically and applies its results in order.
package scheduler

import (
	"context"
	"sync"
	"time"
)

type TaskFunc[T any] func(ctx context.Context) (T, error)

// ApplyFunc receives the result of a run. It is never called with a result
// that is older than one already applied.
type ApplyFunc[T any] func(seq uint64, result T, err error)

type Stats struct {
	Started uint64
	Applied uint64
	Stale   uint64
	Skipped uint64
}

// Poller runs its task once per interval. Every run is tagged with a
// sequence number and a run never starts while another is in flight.
type Poller[T any] struct {
	interval time.Duration
	task     TaskFunc[T]
	apply    ApplyFunc[T]

	mu        sync.Mutex
	seq       uint64
	applied   uint64
	floor     uint64
	inflight  bool
	cancelRun context.CancelFunc
	stats     Stats

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New[T any](interval time.Duration, task TaskFunc[T], apply ApplyFunc[T]) *Poller[T] {
	return &Poller[T]{
		interval: interval,
		task:     task,
		apply:    apply,
	}
}

// Start runs the task immediately and then once per interval until Stop is
// called or the context is cancelled.
func (p *Poller[T]) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()

	p.wg.Add(1)
	go p.loop(ctx)
}

// Stop cancels the run in flight, if any, and waits for the poller to exit.
// Results of cancelled runs are discarded.
func (p *Poller[T]) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.floor = p.seq + 1
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	p.wg.Wait()
}

// Invalidate discards the result of the run in flight. Use it when the
// parameters of the task change between runs.
func (p *Poller[T]) Invalidate() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.floor = p.seq + 1
	if p.cancelRun != nil {
		p.cancelRun()
	}
}

func (p *Poller[T]) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

func (p *Poller[T]) loop(ctx context.Context) {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller[T]) tick(ctx context.Context) {
	p.mu.Lock()
	if p.inflight {
		p.stats.Skipped++
		p.mu.Unlock()
		return
	}

	p.seq++
	seq := p.seq
	runCtx, cancel := context.WithCancel(ctx)
	p.inflight = true
	p.cancelRun = cancel
	p.stats.Started++
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer cancel()

		result, err := p.task(runCtx)
		p.complete(seq, result, err)
	}()
}

func (p *Poller[T]) complete(seq uint64, result T, err error) {
	p.mu.Lock()
	p.inflight = false
	p.cancelRun = nil

	if seq <= p.applied || seq < p.floor {
		p.stats.Stale++
		p.mu.Unlock()
		return
	}

	p.applied = seq
	p.stats.Applied++
	p.mu.Unlock()

	p.apply(seq, result, err)
}
