// Package eventloop provides the single logical thread that owns all
// controller state.
//
// Every mutation of the registry, the playback engines and the selection
// happens inside a function posted to a Loop. Timer ticks and completions
// of remote calls never touch state directly: they are posted back onto
// the loop and run one at a time, in order.
//
// Two implementations exist:
//
//	Runner  production loop backed by a goroutine and real tickers
//	Manual  deterministic loop for tests, driven step by step
package eventloop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("event loop stopped")

// Loop schedules work onto the controller's single logical thread.
type Loop interface {
	// Post queues fn to run on the loop.
	Post(fn func())
	// Every runs fn on the loop once per period until the task is cancelled.
	Every(period time.Duration, fn func()) Task
	// Go runs work off the loop. If work returns a non-nil function,
	// that function is posted back onto the loop.
	Go(work func() func())
}

// Task is a cancellable repeating task.
//
// Cancel must be called from the loop. Once it returns, fn will not run
// again, even if a tick was already queued.
type Task interface {
	Cancel()
}

// Runner is the production Loop.
type Runner struct {
	queue chan func()
	done  chan struct{}
	once  sync.Once
	wg    sync.WaitGroup
}

// NewRunner creates a loop with the given queue depth.
func NewRunner(depth int) *Runner {
	if depth <= 0 {
		depth = 256
	}
	return &Runner{
		queue: make(chan func(), depth),
		done:  make(chan struct{}),
	}
}

// Run processes posted functions until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	defer r.shutdown()
	for {
		select {
		case <-ctx.Done():
			return nil
		case fn := <-r.queue:
			fn()
		}
	}
}

func (r *Runner) shutdown() {
	r.once.Do(func() { close(r.done) })
	r.wg.Wait()
}

// Post queues fn. Functions posted after the loop stopped are dropped.
func (r *Runner) Post(fn func()) {
	select {
	case <-r.done:
	case r.queue <- fn:
	}
}

// Do runs fn on the loop and waits for it to finish.
func (r *Runner) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	select {
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	case r.queue <- func() { fn(); close(finished) }:
	}
	select {
	case <-finished:
		return nil
	case <-r.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go runs work on its own goroutine and posts the returned function.
func (r *Runner) Go(work func() func()) {
	go func() {
		if apply := work(); apply != nil {
			r.Post(apply)
		}
	}()
}

// Every starts a ticker goroutine that posts fn each period.
func (r *Runner) Every(period time.Duration, fn func()) Task {
	t := &tickerTask{stop: make(chan struct{})}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-r.done:
				return
			case <-ticker.C:
				r.Post(func() {
					if t.cancelled.Load() {
						return
					}
					fn()
				})
			}
		}
	}()
	return t
}

type tickerTask struct {
	cancelled atomic.Bool
	stop      chan struct{}
}

func (t *tickerTask) Cancel() {
	if t.cancelled.CompareAndSwap(false, true) {
		close(t.stop)
	}
}
