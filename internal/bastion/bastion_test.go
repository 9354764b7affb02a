package bastion

import (
	"testing"
	"time"

	"github.com/ibs-source/bastion/internal/child"
	"github.com/ibs-source/bastion/internal/childrengroup"
	"github.com/ibs-source/bastion/internal/envelope"
	"github.com/ibs-source/bastion/internal/supervisor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	resetForTest()
	defer resetForTest()

	require.NoError(t, Init())
	require.NoError(t, Init())
	assert.NotNil(t, sys)
}

func TestOperationsBeforeInitReturnErrNotInitialized(t *testing.T) {
	resetForTest()
	defer resetForTest()

	assert.ErrorIs(t, Start(), ErrNotInitialized)
	assert.ErrorIs(t, Stop(), ErrNotInitialized)
	assert.ErrorIs(t, Kill(), ErrNotInitialized)
	assert.ErrorIs(t, Broadcast("x"), ErrNotInitialized)
	assert.ErrorIs(t, BlockUntilStopped(), ErrNotInitialized)
}

func TestStartStopSettlesDeployedChildren(t *testing.T) {
	resetForTest()
	defer resetForTest()

	require.NoError(t, InitWithConfig(Config{RootStrategy: supervisor.OneForOne}))

	received := make(chan interface{}, 1)
	factory := Children(1, func(rc *child.RunContext) error {
		for {
			select {
			case env := <-rc.Inbox:
				if um, ok := env.Message.(envelope.UserMessage); ok {
					received <- um.Payload
					return nil
				}
			case <-rc.Done:
				return nil
			}
		}
	}, childrengroup.Callbacks{})

	_, err := Deploy(factory)
	require.NoError(t, err)

	require.NoError(t, Start())
	require.NoError(t, Broadcast("hello"))

	select {
	case payload := <-received:
		assert.Equal(t, "hello", payload)
	case <-time.After(2 * time.Second):
		t.Fatal("expected the deployed child to observe the broadcast payload")
	}

	done := make(chan struct{})
	go func() {
		require.NoError(t, Stop())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected Stop to settle the tree")
	}

	require.NoError(t, BlockUntilStopped())
}
