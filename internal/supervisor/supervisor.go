// Package supervisor implements the supervision tree's restart logic:
// a supervisor owns an ordered list of child nodes (children-groups or
// sub-supervisors), applies a restart strategy on Faulted, and routes
// lifecycle broadcasts downward.
package supervisor

import (
	"context"
	"sync"

	"github.com/ibs-source/bastion/internal/broadcast"
	"github.com/ibs-source/bastion/internal/envelope"
	"github.com/ibs-source/bastion/internal/hotlog"
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/path"
)

// Strategy is the supervisor's restart policy, reusing the variant
// carried by envelope.SuperviseWith.
type Strategy = envelope.RestartStrategy

const (
	OneForOne  = envelope.OneForOne
	OneForAll  = envelope.OneForAll
	RestForOne = envelope.RestForOne
)

// Node is anything a Supervisor can own: a ChildrenGroup or another
// Supervisor both satisfy this via their ID()/Channel() methods.
type Node interface {
	ID() id.Bastion
	Channel() *broadcast.Channel
}

// Factory builds a fresh Node (with a fresh BastionId, per invariant
// 5) wired to report to the supervisor, plus the function that runs
// its full lifecycle until it terminates. Called once at initial
// launch and once per restart.
type Factory func(parentSender chan envelope.Envelope, parentPath path.Path) (Node, func(context.Context))

type slot struct {
	factory Factory
	node    Node
	cancel  context.CancelFunc
	done    chan struct{}
}

// Supervisor owns an ordered list of nodes and a restart strategy.
type Supervisor struct {
	id         id.Bastion
	path       path.Path
	parentPath path.Path
	channel    *broadcast.Channel
	strategy   Strategy

	mu       sync.Mutex
	order    []*slot
	launched map[id.Bastion]*slot
	started  bool
	stopped  bool
	preStart []envelope.Envelope

	ctx context.Context
}

// New constructs a Supervisor bound to nodeID/p.
func New(
	parentSender chan envelope.Envelope,
	nodeID id.Bastion,
	p path.Path,
	parentPath path.Path,
	strategy Strategy,
) *Supervisor {
	return &Supervisor{
		id:         nodeID,
		path:       p,
		parentPath: parentPath,
		channel:    broadcast.New(parentSender, nodeID, p),
		strategy:   strategy,
		launched:   make(map[id.Bastion]*slot),
	}
}

// ID returns the supervisor's identity.
func (s *Supervisor) ID() id.Bastion { return s.id }

// Channel exposes the supervisor's own mailbox.
func (s *Supervisor) Channel() *broadcast.Channel { return s.channel }

// SetStrategy installs the restart strategy; equivalent to receiving
// a SuperviseWith envelope.
func (s *Supervisor) SetStrategy(strategy Strategy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.strategy = strategy
}

// AddNode registers a factory for one owned node, in order. Must be
// called before LaunchElems.
func (s *Supervisor) AddNode(factory Factory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order = append(s.order, &slot{factory: factory})
}

// LaunchElems builds every registered node not yet launched via its
// factory and starts each one's lifecycle goroutine; a node attached
// with Deploy is already running and is skipped.
func (s *Supervisor) LaunchElems(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	slots := make([]*slot, 0, len(s.order))
	for _, sl := range s.order {
		if sl.node == nil {
			slots = append(slots, sl)
		}
	}
	s.mu.Unlock()

	for _, sl := range slots {
		s.launchSlot(ctx, sl)
	}
}

func (s *Supervisor) launchSlot(ctx context.Context, sl *slot) {
	node, run := sl.factory(s.channel.Sender(), s.path)

	nodeCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	s.mu.Lock()
	sl.node = node
	sl.cancel = cancel
	sl.done = done
	s.launched[node.ID()] = sl
	s.mu.Unlock()

	s.channel.Register(node.ID(), node.Channel().Receiver())

	go func() {
		defer close(done)
		run(nodeCtx)
	}()
}

// Run is the supervisor's own run-loop, consuming envelopes addressed
// to it (Start/Stop/Kill/UserMessage from its parent, SuperviseWith,
// plus Stopped/Faulted bubbling from owned nodes) until ctx is done or
// the supervisor itself has been stopped/killed.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		select {
		case env := <-s.channel.Receiver():
			s.dispatch(ctx, env)
			if s.isStopped() {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Supervisor) isStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

func (s *Supervisor) dispatch(ctx context.Context, env envelope.Envelope) {
	switch msg := env.Message.(type) {
	case envelope.Start:
		s.start(ctx)
	case envelope.Stop:
		s.stopAll(ctx)
	case envelope.Kill:
		s.killAll(ctx)
	case envelope.SuperviseWith:
		s.SetStrategy(msg.Strategy)
	case envelope.UserMessage:
		s.forwardOrBuffer(ctx, env)
	case envelope.Stopped:
		s.onStopped(msg.ID)
	case envelope.Faulted:
		s.onFaulted(ctx, msg.ID)
	}
}

// Start is the public entry point for a root supervisor with no
// parent to deliver it a Start envelope — the façade calls this
// directly instead of routing through the mailbox.
func (s *Supervisor) Start(ctx context.Context) {
	s.start(ctx)
}

// Stop is the public entry point mirroring Start, for a root
// supervisor.
func (s *Supervisor) Stop(ctx context.Context) {
	s.stopAll(ctx)
}

// Kill is the public entry point mirroring Start, for a root
// supervisor.
func (s *Supervisor) Kill(ctx context.Context) {
	s.killAll(ctx)
}

// Broadcast fans a user payload out to every owned node, buffering it
// if the supervisor has not yet been started.
func (s *Supervisor) Broadcast(ctx context.Context, payload interface{}) {
	s.forwardOrBuffer(ctx, envelope.New(envelope.UserMessage{Payload: payload}, s.path, s.path))
}

// Deploy attaches a new node under this supervisor after it has
// already been launched, running its lifecycle immediately rather
// than waiting for the next LaunchElems call.
func (s *Supervisor) Deploy(ctx context.Context, factory Factory) Node {
	sl := &slot{factory: factory}
	s.mu.Lock()
	s.order = append(s.order, sl)
	s.mu.Unlock()

	s.launchSlot(ctx, sl)
	return sl.node
}

func (s *Supervisor) start(ctx context.Context) {
	s.mu.Lock()
	s.started = true
	toReplay := s.preStart
	s.preStart = nil
	s.mu.Unlock()

	s.channel.SendChildren(ctx, envelope.New(envelope.Start{}, s.path, s.path))
	for _, env := range toReplay {
		s.channel.SendChildren(ctx, env)
	}
}

func (s *Supervisor) forwardOrBuffer(ctx context.Context, env envelope.Envelope) {
	s.mu.Lock()
	if !s.started {
		s.preStart = append(s.preStart, env)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()
	s.channel.SendChildren(ctx, env)
}

func (s *Supervisor) stopAll(ctx context.Context) {
	s.channel.StopChildren(ctx)
	s.awaitAll()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Supervisor) killAll(ctx context.Context) {
	s.channel.KillChildren(ctx)
	s.awaitAll()
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
}

func (s *Supervisor) awaitAll() {
	s.mu.Lock()
	dones := make([]chan struct{}, 0, len(s.order))
	for _, sl := range s.order {
		if sl.done != nil {
			dones = append(dones, sl.done)
		}
	}
	s.mu.Unlock()
	for _, d := range dones {
		<-d
	}
}

func (s *Supervisor) onStopped(nodeID id.Bastion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.launched[nodeID]; !ok {
		return
	}
	delete(s.launched, nodeID)
	s.channel.RemoveChild(nodeID)
}

// onFaulted applies the restart strategy: compute the target set,
// kill each target, await its terminal Stopped, then relaunch a fresh
// instance of each from its slot's factory.
func (s *Supervisor) onFaulted(ctx context.Context, nodeID id.Bastion) {
	targets := s.restartTargets(nodeID)
	if len(targets) == 0 {
		return
	}

	for _, sl := range targets {
		hotlog.Restartf("supervisor %s restarting node %s", s.id, sl.node.ID())
		s.killSlot(sl)
	}
	for _, sl := range targets {
		s.launchSlot(ctx, sl)
	}
}

func (s *Supervisor) killSlot(sl *slot) {
	s.mu.Lock()
	cancel := sl.cancel
	ch := sl.node.Channel()
	done := sl.done
	nodeID := sl.node.ID()
	delete(s.launched, nodeID)
	s.mu.Unlock()

	s.channel.RemoveChild(nodeID)

	if ch != nil {
		ch.KillChildren(context.Background())
		select {
		case ch.Receiver() <- envelope.New(envelope.Kill{}, s.path, s.path):
		default:
		}
	}
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// restartTargets computes, under strategy, which slots must restart
// given that nodeID faulted.
func (s *Supervisor) restartTargets(nodeID id.Bastion) []*slot {
	s.mu.Lock()
	defer s.mu.Unlock()

	faultedSlot, ok := s.launched[nodeID]
	if !ok {
		return nil
	}

	switch s.strategy {
	case OneForAll:
		return append([]*slot(nil), s.order...)
	case RestForOne:
		idx := -1
		for i, sl := range s.order {
			if sl == faultedSlot {
				idx = i
				break
			}
		}
		if idx < 0 {
			return nil
		}
		return append([]*slot(nil), s.order[idx:]...)
	default: // OneForOne
		return []*slot{faultedSlot}
	}
}

// Elems returns the ids of currently launched nodes.
func (s *Supervisor) Elems() []id.Bastion {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]id.Bastion, 0, len(s.launched))
	for nid := range s.launched {
		out = append(out, nid)
	}
	return out
}
