// Package executor provides the minimal cooperative task engine that
// Child, ChildrenGroup and Supervisor run their futures on: spawn a
// function with a scheduling handle, await it with panic recovery.
package executor

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
)

// ErrCancelled names the cancelled-handle condition. Nothing in this
// package returns it: Await on a cancelled handle still resolves to
// the Outcome its Fn returns.
var ErrCancelled = errors.New("executor: handle cancelled")

// Context is passed to a spawned function. Done is closed when the
// handle is cancelled; well-behaved functions select on it at their
// suspension points instead of running to completion regardless.
type Context struct {
	context.Context
	Done <-chan struct{}
}

// Outcome is the result of a spawned function: either a value, an
// error, or (exclusively) a captured panic.
type Outcome struct {
	Value interface{}
	Err   error
	Panic interface{}
	Stack []byte
}

// Recovered reports whether the function panicked instead of
// returning normally.
func (o Outcome) Recovered() bool { return o.Panic != nil }

// Fn is a unit of work run on the executor. It receives a Context for
// cancellation and must return its own result explicitly; panics are
// caught by Spawn and turned into an Outcome.
type Fn func(Context) Outcome

// Handle is returned by Spawn. Exactly one of Await's two return
// values is meaningful at a time, matching the recoverable-handle
// contract: either the Outcome the function produced, or a non-nil
// error if the ctx passed to Await is done first.
type Handle struct {
	done     chan struct{}
	cancel   chan struct{}
	once     sync.Once
	doneOnce sync.Once

	mu      sync.Mutex
	outcome Outcome
	ready   bool
}

// NewManualHandle returns a Handle whose outcome is supplied externally
// via the returned complete function, instead of by running a Fn on
// its own goroutine. This is for callers (the blocking pool) that
// dispatch work onto a separately managed worker thread but still want
// to hand back the same recoverable-handle contract Spawn produces.
func NewManualHandle() (*Handle, func(Outcome)) {
	h := &Handle{
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}
	complete := func(out Outcome) {
		h.mu.Lock()
		if !h.ready {
			h.outcome = out
			h.ready = true
		}
		h.mu.Unlock()
		h.doneOnce.Do(func() { close(h.done) })
	}
	return h, complete
}

// Spawn runs fn on its own goroutine and returns a Handle to observe
// its result. This is the engine Child/ChildrenGroup/Supervisor run
// their own run-loops and user futures on; it is deliberately small,
// a single goroutine per spawn, cooperative rather than preemptive.
func Spawn(ctx context.Context, fn Fn) *Handle {
	h := &Handle{
		done:   make(chan struct{}),
		cancel: make(chan struct{}),
	}

	go func() {
		defer close(h.done)
		out := h.runRecovered(ctx, fn)
		h.mu.Lock()
		h.outcome = out
		h.ready = true
		h.mu.Unlock()
	}()

	return h
}

func (h *Handle) runRecovered(ctx context.Context, fn Fn) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Panic: r, Stack: debug.Stack()}
		}
	}()
	return fn(Context{Context: ctx, Done: h.cancel})
}

// Cancel closes the channel the spawned Fn sees as Context.Done (not
// the completion channel Done returns). It does not forcibly stop
// the goroutine: a spawned Fn is expected to select on Context.Done at
// its own suspension points, per the cooperative-cancellation model.
func (h *Handle) Cancel() {
	h.once.Do(func() { close(h.cancel) })
}

// Await blocks the caller until the outcome is ready or ctx is done,
// whichever happens first.
func (h *Handle) Await(ctx context.Context) (Outcome, error) {
	select {
	case <-h.done:
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

// Done exposes the completion channel for callers that need to select
// on it alongside other events (e.g. a node run-loop polling handles
// non-blockingly).
func (h *Handle) Done() <-chan struct{} { return h.done }

// TryOutcome returns the outcome and true if the handle has already
// completed, without blocking.
func (h *Handle) TryOutcome() (Outcome, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.outcome, h.ready
}

// String aids debugging/logging of an outcome without leaking its
// payload type.
func (o Outcome) String() string {
	switch {
	case o.Panic != nil:
		return fmt.Sprintf("panic: %v", o.Panic)
	case o.Err != nil:
		return fmt.Sprintf("err: %v", o.Err)
	default:
		return "ok"
	}
}
