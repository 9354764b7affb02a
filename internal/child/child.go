// Package child implements a single supervised user future: its
// mailbox, state, and the run-loop that turns its outcome into
// lifecycle notifications toward its parent.
package child

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ibs-source/bastion/internal/broadcast"
	"github.com/ibs-source/bastion/internal/envelope"
	"github.com/ibs-source/bastion/internal/executor"
	"github.com/ibs-source/bastion/internal/hotlog"
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/path"
)

// State is a child's externally observable lifecycle state.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateStopping
	StateKilling
	StateStopped
	StateFaulted
)

// RunContext is handed to a user Future. Inbox delivers every envelope
// addressed to this child that is not itself a Stop/Kill (those are
// intercepted by the run-loop); Start and UserMessage pass through
// here, in arrival order, including any pre-start replay the owning
// group performs. State is the shared, mutex-guarded state a
// supervising group may also touch.
type RunContext struct {
	executor.Context
	Inbox <-chan envelope.Envelope
	State *ContextState
}

// Future is the user-supplied unit of work a Child runs. Returning nil
// is a clean Stop; a non-nil error or a panic (caught by the executor)
// is a Fault.
type Future func(*RunContext) error

// ContextState is shared, mutex-guarded state between the run-loop and
// the user future — deliberately separate from the mailbox channel.
type ContextState struct {
	mu   sync.Mutex
	data map[string]interface{}
}

func newContextState() *ContextState {
	return &ContextState{data: make(map[string]interface{})}
}

// Set stores a value under key.
func (cs *ContextState) Set(key string, value interface{}) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	cs.data[key] = value
}

// Get retrieves a value under key.
func (cs *ContextState) Get(key string) (interface{}, bool) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	v, ok := cs.data[key]
	return v, ok
}

// inboxDepth bounds the forwarding channel between the run-loop and
// the user future; an implementation choice local to this package.
const inboxDepth = 32

// Child owns one running user future exclusively.
type Child struct {
	id         id.Bastion
	path       path.Path
	parentPath path.Path
	channel    *broadcast.Channel
	inbox      chan envelope.Envelope
	state      atomic.Int32
	ctxState   *ContextState
	future     Future
}

// New constructs a Child bound to nodeID/p, reporting lifecycle
// notifications to parentPath over parentSender.
func New(
	parentSender chan envelope.Envelope,
	nodeID id.Bastion,
	p path.Path,
	parentPath path.Path,
	future Future,
) *Child {
	return &Child{
		id:         nodeID,
		path:       p,
		parentPath: parentPath,
		channel:    broadcast.New(parentSender, nodeID, p),
		inbox:      make(chan envelope.Envelope, inboxDepth),
		ctxState:   newContextState(),
		future:     future,
	}
}

// NewWithChannel reuses an existing mailbox channel, preserving
// identity across a group-level restart.
func NewWithChannel(
	parentSender chan envelope.Envelope,
	nodeID id.Bastion,
	p path.Path,
	parentPath path.Path,
	future Future,
	existing chan envelope.Envelope,
) *Child {
	return &Child{
		id:         nodeID,
		path:       p,
		parentPath: parentPath,
		channel:    broadcast.NewWithChannel(parentSender, nodeID, p, existing),
		inbox:      make(chan envelope.Envelope, inboxDepth),
		ctxState:   newContextState(),
		future:     future,
	}
}

// ID returns the child's identity.
func (c *Child) ID() id.Bastion { return c.id }

// Channel exposes the mailbox so a ChildrenGroup can register/deliver
// envelopes to this child.
func (c *Child) Channel() *broadcast.Channel { return c.channel }

// State reports the child's current lifecycle state.
func (c *Child) State() State { return State(c.state.Load()) }

// Run is the child's run-loop: spawn the user future on the executor,
// then alternate between polling the handle and awaiting the next
// envelope, translating the outcome into a lifecycle notification to
// the parent. Run returns once the child has reached a terminal state.
func (c *Child) Run(ctx context.Context) {
	c.state.Store(int32(StateRunning))

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	handle := executor.Spawn(runCtx, func(execCtx executor.Context) executor.Outcome {
		err := c.future(&RunContext{Context: execCtx, Inbox: c.inbox, State: c.ctxState})
		return executor.Outcome{Err: err}
	})

	for {
		select {
		case <-handle.Done():
			c.terminal(ctx, handle)
			return
		case env := <-c.channel.Receiver():
			switch env.Message.(type) {
			case envelope.Stop:
				c.state.Store(int32(StateStopping))
				out, _ := handle.Await(ctx)
				c.emit(ctx, out)
				return
			case envelope.Kill:
				c.state.Store(int32(StateKilling))
				hotlog.Killf("child %s killing", c.id)
				handle.Cancel()
				out, _ := handle.Await(ctx)
				_ = out
				c.state.Store(int32(StateStopped))
				_ = c.channel.Stopped(ctx, c.parentPath)
				return
			default:
				c.forward(ctx, env)
			}
		case <-ctx.Done():
			return
		}
	}
}

// forward hands a non-lifecycle-intercept envelope (Start,
// UserMessage) to the future via its inbox, without blocking forever
// if the future never reads it and the child is asked to stop/kill in
// the meantime.
func (c *Child) forward(ctx context.Context, env envelope.Envelope) {
	select {
	case c.inbox <- env:
	case <-ctx.Done():
	}
}

func (c *Child) terminal(ctx context.Context, handle *executor.Handle) {
	out, _ := handle.TryOutcome()
	c.emit(ctx, out)
}

func (c *Child) emit(ctx context.Context, out executor.Outcome) {
	switch {
	case out.Recovered():
		c.state.Store(int32(StateFaulted))
		hotlog.Faultf("child %s panicked: %v", c.id, out.Panic)
		_ = c.channel.Faulted(ctx, c.parentPath)
	case out.Err != nil:
		c.state.Store(int32(StateFaulted))
		_ = c.channel.Faulted(ctx, c.parentPath)
	default:
		c.state.Store(int32(StateStopped))
		_ = c.channel.Stopped(ctx, c.parentPath)
	}
}
