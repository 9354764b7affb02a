package workload

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ibs-source/bastion/internal/blockingpool"
	"github.com/ibs-source/bastion/internal/child"
	"github.com/ibs-source/bastion/internal/config"
	"github.com/ibs-source/bastion/internal/domain"
	"github.com/ibs-source/bastion/internal/executor"
	"github.com/ibs-source/bastion/internal/ports"
	"github.com/ibs-source/bastion/pkg/ringbuffer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	ports.RedisClient
	messages []*domain.Message
	readErr  error
	acked    []string
	reads    int
}

func (f *fakeRedis) ReadMessages(context.Context, string, string, string, int64, time.Duration) ([]*domain.Message, error) {
	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	if f.reads > 1 {
		return nil, nil
	}
	return f.messages, nil
}

func (f *fakeRedis) AckMessages(_ context.Context, _, _ string, ids ...string) error {
	f.acked = append(f.acked, ids...)
	return nil
}

func (f *fakeRedis) GetConsumerName() string { return "test-consumer" }

type fakeMQTT struct {
	ports.MQTTClient
	published [][]byte
	publishFn func([]byte) error
}

func (f *fakeMQTT) Publish(_ context.Context, _ string, _ byte, _ bool, payload []byte) error {
	f.published = append(f.published, payload)
	if f.publishFn != nil {
		return f.publishFn(payload)
	}
	return nil
}

type fakeLogger struct{}

func (fakeLogger) Trace(string, ...ports.Field)           {}
func (fakeLogger) Debug(string, ...ports.Field)           {}
func (fakeLogger) Info(string, ...ports.Field)            {}
func (fakeLogger) Warn(string, ...ports.Field)            {}
func (fakeLogger) Error(string, ...ports.Field)           {}
func (fakeLogger) Fatal(string, ...ports.Field)           {}
func (f fakeLogger) WithFields(...ports.Field) ports.Logger { return f }

type passthroughCB struct{}

func (passthroughCB) Execute(fn func() error) error { return fn() }
func (passthroughCB) GetState() string               { return "closed" }
func (passthroughCB) GetStats() ports.CircuitBreakerStats {
	return ports.CircuitBreakerStats{}
}

func testConfig() *config.Config {
	cfg := config.GetDefaults()
	cfg.Workload.BatchSize = 10
	cfg.Workload.BatchTimeout = 10 * time.Millisecond
	return cfg
}

func testPool(t *testing.T) *blockingpool.Pool {
	t.Helper()
	pool, err := blockingpool.New(context.Background(), fakeLogger{})
	require.NoError(t, err)
	pool.Start()
	t.Cleanup(pool.Stop)
	return pool
}

func TestRedisConsumerFillsQueueAndReturnsNilOnCancel(t *testing.T) {
	queue := ringbuffer.New[domain.Message](8)
	fr := &fakeRedis{messages: []*domain.Message{
		{ID: "1", Data: []byte(`{}`)},
		{ID: "2", Data: []byte(`{}`)},
	}}

	deps := Deps{
		Config: testConfig(),
		Redis:  fr,
		Logger: fakeLogger{},
		Queue:  queue,
		Pool:   testPool(t),
	}

	future := NewRedisConsumerFuture(deps)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	h := executor.Spawn(ctx, func(execCtx executor.Context) executor.Outcome {
		rc := &child.RunContext{Context: execCtx}
		return executor.Outcome{Err: future(rc)}
	})

	time.Sleep(50 * time.Millisecond)
	cancel()
	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.NoError(t, out.Err)
	assert.GreaterOrEqual(t, queue.Size(), 2)
}

func TestRedisConsumerFaultsOnReadError(t *testing.T) {
	queue := ringbuffer.New[domain.Message](8)
	fr := &fakeRedis{readErr: errors.New("boom")}

	deps := Deps{
		Config: testConfig(),
		Redis:  fr,
		Logger: fakeLogger{},
		Queue:  queue,
		Pool:   testPool(t),
	}

	future := NewRedisConsumerFuture(deps)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	h := executor.Spawn(ctx, func(execCtx executor.Context) executor.Outcome {
		rc := &child.RunContext{Context: execCtx}
		return executor.Outcome{Err: future(rc)}
	})

	out, err := h.Await(ctx)
	require.NoError(t, err)
	assert.ErrorContains(t, out.Err, "boom")
}

func TestMQTTPublisherDrainsQueueAndAcks(t *testing.T) {
	queue := ringbuffer.New[domain.Message](8)
	msg := &domain.Message{ID: "42", Data: []byte(`{"k":"v"}`)}
	require.True(t, queue.Put(msg))

	fr := &fakeRedis{}
	fm := &fakeMQTT{}

	deps := Deps{
		Config:         testConfig(),
		Redis:          fr,
		MQTT:           fm,
		Logger:         fakeLogger{},
		CircuitBreaker: passthroughCB{},
		Queue:          queue,
		Pool:           testPool(t),
	}

	future := NewMQTTPublisherFuture(deps)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	h := executor.Spawn(ctx, func(execCtx executor.Context) executor.Outcome {
		rc := &child.RunContext{Context: execCtx}
		return executor.Outcome{Err: future(rc)}
	})

	require.Eventually(t, func() bool {
		return len(fm.published) == 1
	}, 250*time.Millisecond, 10*time.Millisecond)

	h.Cancel()
	out, err := h.Await(context.Background())
	require.NoError(t, err)
	assert.NoError(t, out.Err)
	assert.Equal(t, []string{"42"}, fr.acked)
}

func TestMQTTPublisherFaultsOnPublishError(t *testing.T) {
	queue := ringbuffer.New[domain.Message](8)
	msg := &domain.Message{ID: "7", Data: []byte(`{}`)}
	require.True(t, queue.Put(msg))

	fm := &fakeMQTT{publishFn: func([]byte) error { return errors.New("publish failed") }}

	deps := Deps{
		Config:         testConfig(),
		Redis:          &fakeRedis{},
		MQTT:           fm,
		Logger:         fakeLogger{},
		CircuitBreaker: passthroughCB{},
		Queue:          queue,
		Pool:           testPool(t),
	}

	future := NewMQTTPublisherFuture(deps)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	h := executor.Spawn(ctx, func(execCtx executor.Context) executor.Outcome {
		rc := &child.RunContext{Context: execCtx}
		return executor.Outcome{Err: future(rc)}
	})

	out, err := h.Await(ctx)
	require.NoError(t, err)
	assert.ErrorContains(t, out.Err, "publish failed")
}
