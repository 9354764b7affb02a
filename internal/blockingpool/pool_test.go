package blockingpool

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T) *Pool {
	t.Helper()
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p
}

func TestNewDefaultsLowWatermark(t *testing.T) {
	os.Unsetenv(lowWatermarkEnv)
	p, err := New(context.Background(), nil)
	require.NoError(t, err)
	defer p.Stop()
	assert.Equal(t, int64(defaultLowWatermark), p.lowWatermark)
}

func TestNewRejectsMalformedEnv(t *testing.T) {
	os.Setenv(lowWatermarkEnv, "not-a-number")
	defer os.Unsetenv(lowWatermarkEnv)

	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidLowWatermark)
}

func TestNewRejectsNegativeEnv(t *testing.T) {
	os.Setenv(lowWatermarkEnv, "-1")
	defer os.Unsetenv(lowWatermarkEnv)

	_, err := New(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidLowWatermark)
}

func TestStartLaunchesStaticWorkers(t *testing.T) {
	os.Setenv(lowWatermarkEnv, "3")
	defer os.Unsetenv(lowWatermarkEnv)

	p := newTestPool(t)
	p.Start()

	require.Eventually(t, func() bool {
		return p.PoolSize() == 3
	}, time.Second, time.Millisecond)
}

func TestSpawnBlockingResolvesValue(t *testing.T) {
	p := newTestPool(t)
	p.Start()

	h := p.SpawnBlocking(func() (interface{}, error) {
		return "hello", nil
	})

	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", out.Value)
}

func TestSpawnBlockingCapturesError(t *testing.T) {
	p := newTestPool(t)
	p.Start()

	wantErr := errors.New("boom")
	h := p.SpawnBlocking(func() (interface{}, error) {
		return nil, wantErr
	})

	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wantErr, out.Err)
}

func TestSpawnBlockingCapturesPanic(t *testing.T) {
	p := newTestPool(t)
	p.Start()

	h := p.SpawnBlocking(func() (interface{}, error) {
		panic("kaboom")
	})

	out, err := h.Await(context.Background())
	require.NoError(t, err)
	require.True(t, out.Recovered())
	assert.Equal(t, "kaboom", out.Panic)
}

func TestSpawnBlockingAfterStopReturnsPoolStoppedError(t *testing.T) {
	p := newTestPool(t)
	p.Start()
	p.Stop()

	h := p.SpawnBlocking(func() (interface{}, error) { return nil, nil })
	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.ErrorIs(t, out.Err, ErrPoolStopped)
}

func TestDynamicWorkerSelfDestructsAfterIdle(t *testing.T) {
	p := newTestPool(t)
	p.Start()

	before := p.PoolSize()
	p.spawnDynamicWorker()
	require.Eventually(t, func() bool {
		return p.PoolSize() == before+1
	}, time.Second, time.Millisecond)

	// Dynamic idle window starts at 1s; give it generous slack.
	require.Eventually(t, func() bool {
		return p.PoolSize() == before
	}, 15*time.Second, 50*time.Millisecond)
}
