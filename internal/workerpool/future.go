package workerpool

import (
	"context"
	"sync"
)

// Future holds the result of work submitted with Go.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] { return &Future[T]{done: make(chan struct{})} }

func (f *Future[T]) resolve(v T, err error) {
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
	})
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the result is available or ctx is done. Giving up on
// Wait does not stop the work.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go submits fn to p and returns a Future for its result. A submit failure
// (ErrQueueFull, ErrPoolClosed, a done ctx) is returned directly and no
// Future is created. If ctx is cancelled while fn is still queued, the
// Future resolves with ctx.Err() and fn never runs.
func Go[T any](p *Pool, ctx context.Context, fn func(ctx context.Context) (T, error)) (*Future[T], error) {
	f := newFuture[T]()
	err := p.submit(ctx,
		func(ctx context.Context) { f.resolve(fn(ctx)) },
		func(err error) {
			var zero T
			f.resolve(zero, err)
		},
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}
