// Package childrengroup implements a container of N identically
// configured children: redundancy, restart-by-reuse of cached mailbox
// channels, and pre-start message buffering/replay.
package childrengroup

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/ibs-source/bastion/internal/broadcast"
	"github.com/ibs-source/bastion/internal/child"
	"github.com/ibs-source/bastion/internal/envelope"
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/path"
)

// State is the group's externally observable lifecycle state.
type State int32

const (
	StateInit State = iota
	StateUnstarted
	StateRunning
	StateStopping
	StateKilling
	StateStopped
)

// Callbacks are optional lifecycle hooks.
type Callbacks struct {
	OnStart   func()
	OnStop    func()
	OnRestart func()
}

// killedEntry records a child removed from the group, available for
// identity reuse on the next launchElems call. channel is nil when no
// mailbox was cached for it.
type killedEntry struct {
	id      id.Bastion
	channel chan envelope.Envelope
}

type launched struct {
	c    *child.Child
	done chan struct{}
}

// Group is a ChildrenGroup: redundancy identically configured children
// sharing a future factory, owned exclusively by the group.
type Group struct {
	id         id.Bastion
	path       path.Path
	parentPath path.Path
	channel    *broadcast.Channel

	redundancy int
	future     child.Future
	callbacks  Callbacks

	mu           sync.Mutex
	launchedSet  map[id.Bastion]*launched
	killed       []killedEntry
	preStartMsgs []envelope.Envelope
	started      bool

	state atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a Group. redundancy is clamped to >= 1 (0 is remapped
// to 1).
func New(
	parentSender chan envelope.Envelope,
	nodeID id.Bastion,
	p path.Path,
	parentPath path.Path,
	redundancy int,
	future child.Future,
	callbacks Callbacks,
) *Group {
	if redundancy < 1 {
		redundancy = 1
	}
	return &Group{
		id:          nodeID,
		path:        p,
		parentPath:  parentPath,
		channel:     broadcast.New(parentSender, nodeID, p),
		redundancy:  redundancy,
		future:      future,
		callbacks:   callbacks,
		launchedSet: make(map[id.Bastion]*launched),
	}
}

// ID returns the group's identity.
func (g *Group) ID() id.Bastion { return g.id }

// Channel exposes the group's own mailbox, for a supervisor to
// register it as a child.
func (g *Group) Channel() *broadcast.Channel { return g.channel }

// State reports the group's current lifecycle state.
func (g *Group) State() State { return State(g.state.Load()) }

// LaunchElems creates redundancy children, preferring to reuse a
// cached identity+channel from the killed list before minting new
// ones. Each child is registered with the group's broadcast channel
// and spawned immediately.
func (g *Group) LaunchElems(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ctx, g.cancel = context.WithCancel(ctx)

	for i := 0; i < g.redundancy; i++ {
		var c *child.Child
		if len(g.killed) > 0 {
			entry := g.killed[0]
			g.killed = g.killed[1:]
			if entry.channel != nil {
				c = child.NewWithChannel(g.channel.Sender(), entry.id, g.path, g.path, g.future, entry.channel)
			} else {
				c = child.New(g.channel.Sender(), entry.id, g.path, g.path, g.future)
			}
		} else {
			c = child.New(g.channel.Sender(), id.New(), g.path, g.path, g.future)
		}

		g.channel.Register(c.ID(), c.Channel().Receiver())

		done := make(chan struct{})
		g.launchedSet[c.ID()] = &launched{c: c, done: done}
		go func(c *child.Child, done chan struct{}) {
			defer close(done)
			c.Run(g.ctx)
		}(c, done)
	}

	g.state.Store(int32(StateUnstarted))
}

// Start transitions the group to Running and replays any buffered
// pre-start messages in FIFO order.
func (g *Group) Start(ctx context.Context) {
	g.mu.Lock()
	g.started = true
	g.state.Store(int32(StateRunning))
	toReplay := g.preStartMsgs
	g.preStartMsgs = nil
	g.mu.Unlock()

	g.channel.SendChildren(ctx, envelope.New(envelope.Start{}, g.path, g.path))

	for _, env := range toReplay {
		g.channel.SendChildren(ctx, env)
	}

	if g.callbacks.OnStart != nil {
		g.callbacks.OnStart()
	}
}

// Dispatch routes one envelope addressed to the group: Start/Stop/Kill
// are applied to the group itself; UserMessages are buffered before
// Start and fanned out after; Stopped/Faulted from an unknown child id
// are silently dropped.
func (g *Group) Dispatch(ctx context.Context, env envelope.Envelope) {
	switch msg := env.Message.(type) {
	case envelope.Start:
		g.Start(ctx)
	case envelope.Stop:
		g.Stop(ctx)
	case envelope.Kill:
		g.Kill(ctx)
	case envelope.UserMessage:
		g.mu.Lock()
		started := g.started
		if !started {
			g.preStartMsgs = append(g.preStartMsgs, env)
			g.mu.Unlock()
			return
		}
		g.mu.Unlock()
		g.channel.SendChildren(ctx, env)
	case envelope.Stopped:
		g.onChildStopped(ctx, msg.ID)
	case envelope.Faulted:
		g.onChildFaulted(ctx, msg.ID)
	}
}

func (g *Group) onChildStopped(ctx context.Context, childID id.Bastion) {
	g.mu.Lock()
	if _, ok := g.launchedSet[childID]; !ok {
		g.mu.Unlock()
		return
	}
	delete(g.launchedSet, childID)
	g.channel.RemoveChild(childID)
	empty := len(g.launchedSet) == 0
	g.mu.Unlock()

	if empty {
		g.state.Store(int32(StateStopped))
		_ = g.channel.Stopped(ctx, g.parentPath)
	}
}

func (g *Group) onChildFaulted(ctx context.Context, childID id.Bastion) {
	g.mu.Lock()
	if _, ok := g.launchedSet[childID]; !ok {
		g.mu.Unlock()
		return
	}
	g.mu.Unlock()

	g.killAllChildren(ctx)
	g.state.Store(int32(StateStopped))
	_ = g.channel.Faulted(ctx, g.parentPath)
}

// Stop cooperatively stops every child and waits for all to settle.
func (g *Group) Stop(ctx context.Context) {
	g.state.Store(int32(StateStopping))
	g.channel.StopChildren(ctx)
	g.awaitAllDone()
	g.state.Store(int32(StateStopped))
}

// Kill cancels every child immediately and waits for all to settle.
func (g *Group) Kill(ctx context.Context) {
	g.state.Store(int32(StateKilling))
	g.killAllChildren(ctx)
	g.state.Store(int32(StateStopped))
}

func (g *Group) killAllChildren(ctx context.Context) {
	g.channel.KillChildren(ctx)
	g.awaitAllDone()
}

func (g *Group) awaitAllDone() {
	g.mu.Lock()
	dones := make([]chan struct{}, 0, len(g.launchedSet))
	for _, l := range g.launchedSet {
		dones = append(dones, l.done)
	}
	g.mu.Unlock()

	for _, d := range dones {
		<-d
	}
}

// Reset performs a group-internal restart: kill all children, clear
// the pre-start buffer, and relaunch, reusing cached mailbox identity
// via the killed list where available. The group's own id is
// unchanged — this is distinct from a supervisor-level restart, which
// always discards the group and launches a fresh one with a fresh id.
func (g *Group) Reset(ctx context.Context) {
	g.mu.Lock()
	for cid, l := range g.launchedSet {
		g.killed = append(g.killed, killedEntry{id: cid, channel: l.c.Channel().Receiver()})
	}
	g.launchedSet = make(map[id.Bastion]*launched)
	g.preStartMsgs = nil
	g.started = false
	g.mu.Unlock()

	g.channel.KillChildren(ctx)
	g.awaitAllDone()
	g.channel.ClearChildren()

	if g.callbacks.OnRestart != nil {
		g.callbacks.OnRestart()
	}

	g.LaunchElems(ctx)
}

// Run is the group's own run-loop: it consumes envelopes addressed to
// the group (Start/Stop/Kill/UserMessage from its parent, plus
// Stopped/Faulted bubbling up from its own children) until ctx is done
// or the group reaches StateStopped, whichever comes first — a clean
// Stop/Kill or a child-fault escalation both end the loop without
// waiting for external cancellation.
func (g *Group) Run(ctx context.Context) {
	for {
		select {
		case env := <-g.channel.Receiver():
			g.Dispatch(ctx, env)
			if g.State() == StateStopped {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// Elems returns the ids of currently launched children.
func (g *Group) Elems() []id.Bastion {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]id.Bastion, 0, len(g.launchedSet))
	for cid := range g.launchedSet {
		out = append(out, cid)
	}
	return out
}
