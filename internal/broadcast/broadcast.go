// Package broadcast implements the lifecycle bus every supervision
// tree node uses to talk to its parent and fan out to its children.
package broadcast

import (
	"context"
	"sync"

	"github.com/ibs-source/bastion/internal/envelope"
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/path"
)

// Channel is the per-node broadcast bus: exactly one sender/receiver
// pair bound to the node's own path element, plus the senders of any
// registered children for fan-out. Within one sender->receiver pair
// delivery is FIFO; no ordering is promised across distinct senders.
type Channel struct {
	id           id.Bastion
	path         path.Path
	sender       chan envelope.Envelope
	receiver     chan envelope.Envelope
	parentSender chan envelope.Envelope

	mu       sync.Mutex
	children map[id.Bastion]chan envelope.Envelope
}

// mailboxDepth bounds the per-node inbox so a stalled node applies
// backpressure to its senders rather than growing without limit.
const mailboxDepth = 64

// New creates a fresh Channel bound to p, wired to deliver to
// parentSender.
func New(parentSender chan envelope.Envelope, nodeID id.Bastion, p path.Path) *Channel {
	return NewWithChannel(parentSender, nodeID, p, make(chan envelope.Envelope, mailboxDepth))
}

// NewWithChannel reuses an existing receiver channel so a restarted
// node can keep its mailbox identity across a group-level reset.
func NewWithChannel(
	parentSender chan envelope.Envelope,
	nodeID id.Bastion,
	p path.Path,
	existing chan envelope.Envelope,
) *Channel {
	return &Channel{
		id:           nodeID,
		path:         p,
		sender:       existing,
		receiver:     existing,
		parentSender: parentSender,
		children:     make(map[id.Bastion]chan envelope.Envelope),
	}
}

// ID returns the node id this channel is bound to.
func (c *Channel) ID() id.Bastion { return c.id }

// Path returns the node path this channel is bound to.
func (c *Channel) Path() path.Path { return c.path }

// Sender exposes the raw sender end, for registering with a parent.
func (c *Channel) Sender() chan envelope.Envelope { return c.sender }

// Receiver exposes the raw receiver end for callers that need to
// select on it alongside other events instead of calling Next.
func (c *Channel) Receiver() chan envelope.Envelope { return c.receiver }

// SendParent delivers msg to the parent, addressed from this node.
func (c *Channel) SendParent(ctx context.Context, msg envelope.Message, parentPath path.Path) error {
	if c.parentSender == nil {
		return nil
	}
	env := envelope.New(msg, c.path, parentPath)
	select {
	case c.parentSender <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendChildren fans an envelope out to every registered child.
func (c *Channel) SendChildren(ctx context.Context, env envelope.Envelope) {
	c.mu.Lock()
	targets := make([]chan envelope.Envelope, 0, len(c.children))
	for _, ch := range c.children {
		targets = append(targets, ch)
	}
	c.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- env:
		case <-ctx.Done():
			return
		}
	}
}

// Register adds a child's sender channel for future fan-out.
func (c *Channel) Register(childID id.Bastion, childSender chan envelope.Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children[childID] = childSender
}

// RemoveChild drops a child from the fan-out set.
func (c *Channel) RemoveChild(childID id.Bastion) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.children, childID)
}

// ClearChildren drops every registered child.
func (c *Channel) ClearChildren() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.children = make(map[id.Bastion]chan envelope.Envelope)
}

// StopChildren broadcasts Stop to every registered child.
func (c *Channel) StopChildren(ctx context.Context) {
	c.SendChildren(ctx, envelope.New(envelope.Stop{}, c.path, path.Path{}))
}

// KillChildren broadcasts Kill to every registered child.
func (c *Channel) KillChildren(ctx context.Context) {
	c.SendChildren(ctx, envelope.New(envelope.Kill{}, c.path, path.Path{}))
}

// Stopped notifies the parent this node stopped cleanly.
func (c *Channel) Stopped(ctx context.Context, parentPath path.Path) error {
	return c.SendParent(ctx, envelope.Stopped{ID: c.id}, parentPath)
}

// Faulted notifies the parent this node terminated abnormally.
func (c *Channel) Faulted(ctx context.Context, parentPath path.Path) error {
	return c.SendParent(ctx, envelope.Faulted{ID: c.id}, parentPath)
}

// Next blocks for the next envelope addressed to this node, the
// async-style receive used by node run-loops.
func (c *Channel) Next(ctx context.Context) (envelope.Envelope, error) {
	select {
	case env := <-c.receiver:
		return env, nil
	case <-ctx.Done():
		return envelope.Envelope{}, ctx.Err()
	}
}
