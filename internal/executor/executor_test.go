package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnAwaitOk(t *testing.T) {
	h := Spawn(context.Background(), func(Context) Outcome {
		return Outcome{Value: 42}
	})

	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, out.Value)
	assert.False(t, out.Recovered())
}

func TestSpawnAwaitErr(t *testing.T) {
	wantErr := errors.New("boom")
	h := Spawn(context.Background(), func(Context) Outcome {
		return Outcome{Err: wantErr}
	})

	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wantErr, out.Err)
}

func TestSpawnRecoversPanic(t *testing.T) {
	h := Spawn(context.Background(), func(Context) Outcome {
		panic("kaboom")
	})

	out, err := h.Await(context.Background())
	require.NoError(t, err)
	require.True(t, out.Recovered())
	assert.Equal(t, "kaboom", out.Panic)
	assert.NotEmpty(t, out.Stack)
}

func TestCancelClosesDone(t *testing.T) {
	started := make(chan struct{})
	h := Spawn(context.Background(), func(c Context) Outcome {
		close(started)
		<-c.Done
		return Outcome{Value: "cancelled"}
	})

	<-started
	h.Cancel()

	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "cancelled", out.Value)
}

func TestAwaitTimesOutBeforeCompletion(t *testing.T) {
	h := Spawn(context.Background(), func(c Context) Outcome {
		<-c.Done
		return Outcome{}
	})
	defer h.Cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTryOutcomeNonBlocking(t *testing.T) {
	h := Spawn(context.Background(), func(Context) Outcome {
		return Outcome{Value: "done"}
	})

	require.Eventually(t, func() bool {
		_, ready := h.TryOutcome()
		return ready
	}, time.Second, time.Millisecond)

	out, ready := h.TryOutcome()
	require.True(t, ready)
	assert.Equal(t, "done", out.Value)
}
