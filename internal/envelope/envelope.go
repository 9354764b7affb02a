// Package envelope defines the message variants and routing wrapper
// carried over a BroadcastChannel.
package envelope

import (
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/path"
)

// RestartStrategy names a supervisor's restart policy. Defined here,
// not in internal/supervisor, because SuperviseWith carries it across
// the wire before a supervisor package exists to interpret it.
type RestartStrategy int

const (
	// OneForOne restarts only the failing node.
	OneForOne RestartStrategy = iota
	// OneForAll restarts every node under the supervisor.
	OneForAll
	// RestForOne restarts the failing node and every node started
	// after it.
	RestForOne
)

// Message is the sealed set of payloads an Envelope can carry: the
// Lifecycle variants plus UserMessage. Implementations live in this
// package only.
type Message interface {
	isMessage()
}

// Start signals a node to begin running.
type Start struct{}

// Stop signals a node to stop cooperatively.
type Stop struct{}

// Kill signals a node to stop immediately, non-cooperatively.
type Kill struct{}

// Deploy attaches a new node (opaque to this package) under the
// receiver.
type Deploy struct {
	Node interface{}
}

// Prune removes a node by id from the receiver.
type Prune struct {
	ID id.Bastion
}

// SuperviseWith installs a restart strategy on the receiving
// supervisor.
type SuperviseWith struct {
	Strategy RestartStrategy
}

// Stopped notifies a parent that the named node terminated cleanly.
type Stopped struct {
	ID id.Bastion
}

// Faulted notifies a parent that the named node terminated abnormally.
type Faulted struct {
	ID id.Bastion
}

// UserMessage wraps an arbitrary application payload, plus an optional
// reply channel for the ask pattern.
type UserMessage struct {
	Payload interface{}
	Reply   chan interface{}
}

func (Start) isMessage()         {}
func (Stop) isMessage()          {}
func (Kill) isMessage()          {}
func (Deploy) isMessage()        {}
func (Prune) isMessage()         {}
func (SuperviseWith) isMessage() {}
func (Stopped) isMessage()       {}
func (Faulted) isMessage()       {}
func (UserMessage) isMessage()   {}

// Envelope is a message plus the routing metadata of its journey. Once
// constructed it is immutable; ownership passes with the mailbox that
// currently holds it, never shared between goroutines concurrently.
type Envelope struct {
	Message      Message
	SenderPath   path.Path
	ReceiverPath path.Path
}

// New constructs an Envelope.
func New(msg Message, sender, receiver path.Path) Envelope {
	return Envelope{Message: msg, SenderPath: sender, ReceiverPath: receiver}
}
