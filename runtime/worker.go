package runtime

import (
	"context"
	stderrors "errors"
	goruntime "runtime"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/wippyai/bfbridge/errors"
)

// Worker owns one OS thread with an attached Thread and a Session on it.
// Work submitted with Do runs on that thread, so callers on arbitrary
// goroutines can use the session safely.
type Worker struct {
	jobs     chan job
	quit     chan struct{}
	done     chan struct{}
	closeErr error
	threadID int
	once     sync.Once
}

type job struct {
	fn     func(*Session) error
	result chan error
}

// StartWorker starts a worker goroutine locked to a fresh OS thread and
// returns once its Thread and Session are ready.
func StartWorker(rt *Runtime, opts ...SessionOption) (*Worker, error) {
	w := &Worker{
		jobs: make(chan job),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
	ready := make(chan error, 1)
	go w.run(rt, opts, ready)
	if err := <-ready; err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Worker) run(rt *Runtime, opts []SessionOption, ready chan<- error) {
	defer close(w.done)
	goruntime.LockOSThread()
	defer goruntime.UnlockOSThread()

	th, err := Attach(rt)
	if err != nil {
		ready <- err
		return
	}
	s, err := NewSession(th, opts...)
	if err != nil {
		ready <- stderrors.Join(err, th.Close())
		return
	}
	w.threadID = th.ThreadID()
	ready <- nil

	for {
		select {
		case j := <-w.jobs:
			j.result <- j.fn(s)
		case <-w.quit:
			w.closeErr = stderrors.Join(s.Close(), th.Close())
			return
		}
	}
}

// Do runs fn on the worker's thread and returns its error. Cancelling ctx
// stops the wait but not fn itself, which runs to completion.
func (w *Worker) Do(ctx context.Context, fn func(*Session) error) error {
	j := job{fn: fn, result: make(chan error, 1)}
	select {
	case w.jobs <- j:
	case <-w.quit:
		return errors.UseAfterClose(errors.PhaseSession, "worker")
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ThreadID returns the OS thread the worker runs on.
func (w *Worker) ThreadID() int {
	return w.threadID
}

// Close closes the session and thread on the worker's thread and stops the
// worker. It waits for any running fn to finish.
func (w *Worker) Close() error {
	w.once.Do(func() { close(w.quit) })
	<-w.done
	return w.closeErr
}

// Pool spreads work across several workers.
type Pool struct {
	idle    chan *Worker
	workers []*Worker
}

// NewPool starts n workers.
func NewPool(rt *Runtime, n int, opts ...SessionOption) (*Pool, error) {
	if n <= 0 {
		return nil, errors.New(errors.PhaseSession, errors.KindInvalidInput).
			Detail("pool size must be positive, got %d", n).
			Build()
	}
	p := &Pool{idle: make(chan *Worker, n)}
	for i := 0; i < n; i++ {
		w, err := StartWorker(rt, opts...)
		if err != nil {
			return nil, stderrors.Join(err, p.Close())
		}
		p.workers = append(p.workers, w)
		p.idle <- w
	}
	return p, nil
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Do runs fn on the next idle worker.
func (p *Pool) Do(ctx context.Context, fn func(*Session) error) error {
	select {
	case w := <-p.idle:
		defer func() { p.idle <- w }()
		return w.Do(ctx, fn)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run calls fn for task indices 0..tasks-1 across the pool and returns the
// first error. Remaining tasks are skipped once one fails.
func (p *Pool) Run(ctx context.Context, tasks int, fn func(i int, s *Session) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.Size())
	for i := 0; i < tasks; i++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return p.Do(ctx, func(s *Session) error { return fn(i, s) })
		})
	}
	return g.Wait()
}

// Close stops every worker.
func (p *Pool) Close() error {
	var errs []error
	for _, w := range p.workers {
		errs = append(errs, w.Close())
	}
	return stderrors.Join(errs...)
}
