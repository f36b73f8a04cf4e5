// Package limiter provides a generic bounded-concurrency task runner with
// graceful disposal of queued-but-not-started work. It is not asset-specific;
// it can bound any concurrent fan-out.
package limiter

import (
	"sync"

	asseterrors "github.com/input-output-hk/catalyst-forge-libs/assets/errors"
)

// Task is a unit of work submitted to the limiter.
type Task func() error

// Limiter runs submitted tasks with at most a fixed number in flight.
// Tasks are dispatched in submission order. When a running task settles, the
// next queued task is dispatched before the settled task's result is
// delivered, so a Dispose racing the dispatch loop cannot starve it.
type Limiter struct {
	mu          sync.Mutex
	concurrency int
	active      int
	queue       []*pending
	disposed    bool
}

type pending struct {
	task Task
	done chan error
}

// New creates a limiter allowing up to concurrency tasks in flight.
func New(concurrency int) *Limiter {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Limiter{concurrency: concurrency}
}

// Submit queues a task and returns a channel that receives its result once
// the task settles. After Dispose, submissions fail immediately with
// ErrTaskCancelled.
func (l *Limiter) Submit(task Task) <-chan error {
	p := &pending{task: task, done: make(chan error, 1)}

	l.mu.Lock()
	if l.disposed {
		l.mu.Unlock()
		p.done <- asseterrors.ErrTaskCancelled
		return p.done
	}
	l.queue = append(l.queue, p)
	l.dispatchLocked()
	l.mu.Unlock()

	return p.done
}

// Dispose cancels all queued-but-not-started tasks with ErrTaskCancelled.
// Tasks already running finish unaffected. Dispose is idempotent.
func (l *Limiter) Dispose() {
	l.mu.Lock()
	l.disposed = true
	l.purgeLocked()
	l.mu.Unlock()
}

// dispatchLocked starts queued tasks while capacity remains. Caller holds mu.
func (l *Limiter) dispatchLocked() {
	for l.active < l.concurrency && len(l.queue) > 0 {
		p := l.queue[0]
		l.queue = l.queue[1:]
		l.active++
		go l.run(p)
	}
}

// purgeLocked rejects everything still queued. Caller holds mu.
func (l *Limiter) purgeLocked() {
	for _, p := range l.queue {
		p.done <- asseterrors.ErrTaskCancelled
	}
	l.queue = nil
}

func (l *Limiter) run(p *pending) {
	err := p.task()

	// Dispatch the next task before reporting back on this one.
	l.mu.Lock()
	l.active--
	if l.disposed {
		l.purgeLocked()
	}
	l.dispatchLocked()
	l.mu.Unlock()

	p.done <- err
}
