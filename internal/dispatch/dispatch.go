// Package dispatch provides the two execution contexts the service uses:
// a serial Loop that owns every observable state mutation (the UI-facing
// context) and a bounded Pool for blocking I/O.
package dispatch

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"

	appLog "dicodingevent/internal/log"
)

// Executor runs posted functions on some execution context.
type Executor interface {
	Post(fn func())
}

// Loop is a single-goroutine serial executor. Functions posted to it run one
// at a time, in posting order. The queue is unbounded so a function running
// on the loop may post to it without deadlocking.
type Loop struct {
	mu      sync.Mutex
	tasks   []func()
	wake    chan struct{}
	stopped bool
}

func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Post enqueues fn. After Run has returned, fn is dropped.
func (l *Loop) Post(fn func()) {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		appLog.Debug("dispatch: loop stopped, dropping task")
		return
	}
	l.tasks = append(l.tasks, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Run executes posted functions until ctx is canceled.
func (l *Loop) Run(ctx context.Context) {
	defer func() {
		l.mu.Lock()
		l.stopped = true
		l.tasks = nil
		l.mu.Unlock()
	}()

	for {
		l.mu.Lock()
		batch := l.tasks
		l.tasks = nil
		l.mu.Unlock()

		for _, fn := range batch {
			if ctx.Err() != nil {
				return
			}
			fn()
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
		}
	}
}

// Pool runs blocking work off the caller's goroutine with at most size
// functions executing at once.
type Pool struct {
	ctx context.Context
	sem *semaphore.Weighted
	wg  sync.WaitGroup
}

// NewPool returns a pool whose work receives ctx. Work that has not started
// when ctx is canceled is skipped.
func NewPool(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = 4
	}
	return &Pool{ctx: ctx, sem: semaphore.NewWeighted(int64(size))}
}

// Go schedules fn and returns immediately.
func (p *Pool) Go(fn func(ctx context.Context)) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			appLog.Debug("dispatch: pool closed before task started", "err", err)
			return
		}
		defer p.sem.Release(1)
		fn(p.ctx)
	}()
}

// Wait blocks until every scheduled function has returned or been skipped.
func (p *Pool) Wait() {
	p.wg.Wait()
}
