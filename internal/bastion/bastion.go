// Package bastion is the public façade over the supervision tree: a
// lazily initialized system root, factories for attaching supervisors
// and children-groups, and the top-level start/stop/kill/broadcast
// operations a host program drives.
package bastion

import (
	"context"
	"errors"
	"sync"

	"github.com/ibs-source/bastion/internal/child"
	"github.com/ibs-source/bastion/internal/childrengroup"
	"github.com/ibs-source/bastion/internal/envelope"
	"github.com/ibs-source/bastion/internal/hotlog"
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/path"
	"github.com/ibs-source/bastion/internal/supervisor"
)

// ErrNotInitialized is returned by operations called before Init or
// InitWithConfig.
var ErrNotInitialized = errors.New("bastion: system not initialized")

// Config configures the system root.
type Config struct {
	// HideBacktraces raises hotlog's level to info, which silences all
	// of its debug-level kill, restart and fault lines, stack traces
	// included; the panic itself is still reported as Faulted.
	HideBacktraces bool
	// RootStrategy is the restart strategy applied to nodes attached
	// directly at the top level.
	RootStrategy supervisor.Strategy
}

type system struct {
	mu        sync.Mutex
	root      *supervisor.Supervisor
	ctx       context.Context
	cancel    context.CancelFunc
	cfg       Config
	stopped   chan struct{}
	startedAt bool
}

var (
	once sync.Once
	sys  *system
)

// Init initializes the system root with default configuration. It is
// a no-op if the system is already initialized.
func Init() error {
	return InitWithConfig(Config{})
}

// InitWithConfig initializes the system root with cfg. It is a no-op
// if the system is already initialized.
func InitWithConfig(cfg Config) error {
	once.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		sys = &system{
			root:    supervisor.New(nil, id.New(), path.Root(), path.Path{}, cfg.RootStrategy),
			ctx:     ctx,
			cancel:  cancel,
			cfg:     cfg,
			stopped: make(chan struct{}),
		}
		if cfg.HideBacktraces {
			hotlog.SetLevel("info")
		}
	})
	return nil
}

func current() (*system, error) {
	if sys == nil {
		return nil, ErrNotInitialized
	}
	return sys, nil
}

// Start launches every node attached so far and transitions the
// system to running.
func Start() error {
	s, err := current()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.root.LaunchElems(s.ctx)
	go s.root.Run(s.ctx)
	s.root.Start(s.ctx)
	s.startedAt = true
	return nil
}

// Stop cooperatively stops the whole tree and unblocks
// BlockUntilStopped once every node has settled.
func Stop() error {
	s, err := current()
	if err != nil {
		return err
	}
	s.root.Stop(s.ctx)
	s.cancel()
	closeOnce(s)
	return nil
}

// Kill immediately cancels the whole tree.
func Kill() error {
	s, err := current()
	if err != nil {
		return err
	}
	s.root.Kill(s.ctx)
	s.cancel()
	closeOnce(s)
	return nil
}

func closeOnce(s *system) {
	select {
	case <-s.stopped:
	default:
		close(s.stopped)
	}
}

// BlockUntilStopped blocks the calling goroutine until Stop or Kill
// has been called and has finished settling the tree.
func BlockUntilStopped() error {
	s, err := current()
	if err != nil {
		return err
	}
	<-s.stopped
	return nil
}

// Broadcast fans payload out as a UserMessage to every top-level node.
func Broadcast(payload interface{}) error {
	s, err := current()
	if err != nil {
		return err
	}
	s.root.Broadcast(s.ctx, payload)
	return nil
}

// Deploy attaches factory as a new top-level node, running it
// immediately.
func Deploy(factory supervisor.Factory) (supervisor.Node, error) {
	s, err := current()
	if err != nil {
		return nil, err
	}
	return s.root.Deploy(s.ctx, factory), nil
}

// Supervisor builds a Factory for a nested supervisor owning the
// given child factories under strategy.
func Supervisor(strategy supervisor.Strategy, nodes ...supervisor.Factory) supervisor.Factory {
	return func(parentSender chan envelope.Envelope, parentPath path.Path) (supervisor.Node, func(context.Context)) {
		nodeID := id.New()
		p := parentPath.Append(path.SupervisorElement(nodeID))
		sub := supervisor.New(parentSender, nodeID, p, parentPath, strategy)
		for _, n := range nodes {
			sub.AddNode(n)
		}
		run := func(ctx context.Context) {
			sub.LaunchElems(ctx)
			sub.Start(ctx)
			sub.Run(ctx)
		}
		return sub, run
	}
}

// Children builds a Factory for a children-group of redundancy
// identical futures.
func Children(redundancy int, future child.Future, callbacks childrengroup.Callbacks) supervisor.Factory {
	return func(parentSender chan envelope.Envelope, parentPath path.Path) (supervisor.Node, func(context.Context)) {
		nodeID := id.New()
		p := parentPath.Append(path.ChildrenElement(nodeID))
		g := childrengroup.New(parentSender, nodeID, p, parentPath, redundancy, future, callbacks)
		run := func(ctx context.Context) {
			g.LaunchElems(ctx)
			g.Start(ctx)
			g.Run(ctx)
		}
		return g, run
	}
}
