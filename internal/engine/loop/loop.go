// Package loop provides the frame-goroutine task queue.
//
// Background work never touches planet state directly. It posts a closure to
// the Loop, and the frame goroutine runs everything posted since the previous
// turn at the start of the next frame.
package loop

import (
	"context"
	"sync"
)

// Loop is a goroutine-safe inbox of closures drained on a single goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	notify chan struct{}
}

// New creates an empty loop.
func New() *Loop {
	return &Loop{notify: make(chan struct{}, 1)}
}

// Post schedules fn for the next turn. Safe to call from any goroutine,
// including from a task that is currently running.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.notify <- struct{}{}:
	default:
	}
}

// RunPending runs the tasks queued before the call and returns how many ran.
// Tasks posted while running wait for the next turn.
func (l *Loop) RunPending() int {
	l.mu.Lock()
	tasks := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, fn := range tasks {
		fn()
	}
	return len(tasks)
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Wait blocks until at least one task is queued or ctx is done.
func (l *Loop) Wait(ctx context.Context) error {
	for {
		if l.Len() > 0 {
			return nil
		}
		select {
		case <-l.notify:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Drain runs turns until the queue stays empty after a turn or ctx is done.
// Intended for headless tools and tests; a frame loop calls RunPending.
func (l *Loop) Drain(ctx context.Context) error {
	for l.RunPending() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	return nil
}
