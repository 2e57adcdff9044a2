package docdb

import (
	"context"
	"fmt"
)

// call is one request across the connection boundary.
type call func(ctx context.Context) (any, error)

type outcome struct {
	v   any
	err error
}

// step is what a machine wants next: either another call, or its result.
type step[R any] struct {
	call call
	done bool
	res  R
	err  error
}

func invoke[R any](c call) step[R] {
	return step[R]{call: c}
}

func resolve[R any](res R, err error) step[R] {
	return step[R]{done: true, res: res, err: err}
}

func fail[R any](err error) step[R] {
	var zero R
	return step[R]{done: true, res: zero, err: err}
}

// machine is an algorithm written as a sequence of connection calls. The
// first advance receives a zero outcome; every later one receives the outcome
// of the call returned by the previous advance. The same machine runs under
// run (blocking) and under Future (polled).
type machine[R any] interface {
	advance(o outcome) step[R]
}

func perform(ctx context.Context, c call) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c(ctx)
}

func run[R any](ctx context.Context, m machine[R]) (R, error) {
	s := m.advance(outcome{})
	for !s.done {
		v, err := perform(ctx, s.call)
		s = m.advance(outcome{v, err})
	}
	return s.res, s.err
}

// single is a machine that makes exactly one call.
type single[R any] struct {
	c      call
	finish func(v any) (R, error)
	sent   bool
}

func (m *single[R]) advance(o outcome) step[R] {
	if !m.sent {
		m.sent = true
		return invoke[R](m.c)
	}
	if o.err != nil {
		return fail[R](o.err)
	}
	res, err := m.finish(o.v)
	return resolve(res, err)
}

// once runs a single call to completion.
func once[R any](ctx context.Context, c call, finish func(v any) (R, error)) (R, error) {
	return run(ctx, &single[R]{c: c, finish: finish})
}

type FutureState int

const (
	Pending FutureState = iota
	Executing
	Resolved
)

func (s FutureState) String() string {
	switch s {
	case Pending:
		return "pending"
	case Executing:
		return "executing"
	case Resolved:
		return "resolved"
	default:
		return fmt.Sprintf("FutureState(%d)", int(s))
	}
}

// Future drives a machine one call at a time without blocking the caller.
// Nothing happens until the first Poll. Each Poll makes as much progress as
// completed calls allow; Ready fires whenever another Poll may make progress.
//
// A Future must be polled from a single goroutine. Abandoning it leaves any
// in-flight call running and does not undo writes that already committed.
type Future[R any] struct {
	ctx      context.Context
	state    FutureState
	m        machine[R]
	inflight chan outcome
	wake     chan struct{}
	res      R
	err      error
}

func startFuture[R any](ctx context.Context, m machine[R]) *Future[R] {
	f := &Future[R]{
		ctx:   ctx,
		state: Pending,
		m:     m,
		wake:  make(chan struct{}, 1),
	}
	f.signal()
	return f
}

func (f *Future[R]) State() FutureState {
	return f.state
}

func (f *Future[R]) Ready() <-chan struct{} {
	return f.wake
}

func (f *Future[R]) signal() {
	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Poll returns the result and true once the future has resolved.
func (f *Future[R]) Poll() (R, error, bool) {
	for {
		switch f.state {
		case Pending:
			f.transition(f.m.advance(outcome{}))
		case Executing:
			select {
			case o := <-f.inflight:
				f.transition(f.m.advance(o))
			default:
				var zero R
				return zero, nil, false
			}
		case Resolved:
			return f.res, f.err, true
		}
	}
}

func (f *Future[R]) transition(s step[R]) {
	if s.done {
		f.state = Resolved
		f.res, f.err = s.res, s.err
		f.m, f.inflight = nil, nil
		f.signal()
		return
	}
	f.state = Executing
	ch := make(chan outcome, 1)
	f.inflight = ch
	ctx, c := f.ctx, s.call
	go func() {
		v, err := perform(ctx, c)
		ch <- outcome{v, err}
		f.signal()
	}()
}

// Await polls until resolution. Cancelling ctx abandons the future.
func (f *Future[R]) Await(ctx context.Context) (R, error) {
	for {
		if res, err, ok := f.Poll(); ok {
			return res, err
		}
		select {
		case <-f.wake:
		case <-ctx.Done():
			var zero R
			return zero, ctx.Err()
		}
	}
}
