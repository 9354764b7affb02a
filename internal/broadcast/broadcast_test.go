package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/ibs-source/bastion/internal/envelope"
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/path"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendParentDeliversToParentSender(t *testing.T) {
	parentSender := make(chan envelope.Envelope, 1)
	childID := id.New()
	childPath := path.Root().Append(path.ChildElement(childID))
	ch := New(parentSender, childID, childPath)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, ch.Stopped(ctx, path.Root()))

	select {
	case env := <-parentSender:
		assert.Equal(t, envelope.Stopped{ID: childID}, env.Message)
	default:
		t.Fatal("expected envelope on parent sender")
	}
}

func TestRegisterAndSendChildrenFansOut(t *testing.T) {
	parent := New(nil, id.New(), path.Root())

	childA := make(chan envelope.Envelope, 1)
	childB := make(chan envelope.Envelope, 1)
	idA, idB := id.New(), id.New()
	parent.Register(idA, childA)
	parent.Register(idB, childB)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	parent.StopChildren(ctx)

	for _, ch := range []chan envelope.Envelope{childA, childB} {
		select {
		case env := <-ch:
			assert.Equal(t, envelope.Stop{}, env.Message)
		default:
			t.Fatal("expected Stop on every child")
		}
	}
}

func TestRemoveChildStopsFanOut(t *testing.T) {
	parent := New(nil, id.New(), path.Root())
	childID := id.New()
	childCh := make(chan envelope.Envelope, 1)
	parent.Register(childID, childCh)
	parent.RemoveChild(childID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	parent.KillChildren(ctx)

	select {
	case <-childCh:
		t.Fatal("removed child should not receive broadcasts")
	default:
	}
}

func TestNextRespectsContextCancellation(t *testing.T) {
	ch := New(nil, id.New(), path.Root())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := ch.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewWithChannelReusesMailbox(t *testing.T) {
	existing := make(chan envelope.Envelope, 1)
	existing <- envelope.New(envelope.Start{}, path.Root(), path.Root())

	ch := NewWithChannel(nil, id.New(), path.Root(), existing)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	env, err := ch.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, envelope.Start{}, env.Message)
}
