// Package worker provides a background worker that owns a single goroutine
// and repeatedly invokes a callback until it is stopped.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrAlreadyStarted = errors.New("worker already started")
	ErrNoCallback     = errors.New("worker has no callback")
)

// A Callback is invoked repeatedly by the worker. It should perform one unit
// of work and return; blocking waits inside the callback must honor ctx so
// that Stop remains prompt.
type Callback func(ctx context.Context)

type Config struct {
	// Name identifies the worker in diagnostics.
	Name string
	// Callback is the function the worker invokes on every iteration.
	Callback Callback
}

// A Worker runs a callback in a loop on its own goroutine. The stop check
// happens at the top of every iteration, independent of any sleeping the
// callback does, so teardown is deterministic rather than timing-dependent.
type Worker struct {
	name     string
	callback Callback

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(config Config) *Worker {
	return &Worker{
		name:     config.Name,
		callback: config.Callback,
	}
}

func (w *Worker) Name() string {
	return w.name
}

// Start launches the worker goroutine. A worker can only be started once.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel != nil {
		return ErrAlreadyStarted
	}
	if w.callback == nil {
		return ErrNoCallback
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})

	go w.run(ctx)
	return nil
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		if ctx.Err() != nil {
			return
		}
		w.callback(ctx)
	}
}

// IsStarted reports whether the worker goroutine is currently running.
func (w *Worker) IsStarted() bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cancel == nil {
		return false
	}
	select {
	case <-w.done:
		return false
	default:
		return true
	}
}

// Stop cancels the worker and waits for its goroutine to exit. It is safe to
// call Stop multiple times and on a worker that was never started.
func (w *Worker) Stop() {
	w.mu.Lock()
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Sleep waits for the given duration or until ctx is cancelled, whichever
// comes first. Callbacks use it to back off between iterations without
// delaying teardown.
func Sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
