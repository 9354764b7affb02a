// Package main boots a demo Bastion tree: a Redis stream consumer and
// an MQTT publisher running as supervised children under one
// top-level supervisor, wired through configuration, logging, Redis
// and MQTT clients, and a circuit breaker the same way the syslog
// consumer this tree was adapted from wires them.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ibs-source/bastion/internal/bastion"
	"github.com/ibs-source/bastion/internal/blockingpool"
	"github.com/ibs-source/bastion/internal/childrengroup"
	"github.com/ibs-source/bastion/internal/config"
	"github.com/ibs-source/bastion/internal/domain"
	"github.com/ibs-source/bastion/internal/id"
	"github.com/ibs-source/bastion/internal/logger"
	"github.com/ibs-source/bastion/internal/mqtt"
	core "github.com/ibs-source/bastion/internal/ports"
	"github.com/ibs-source/bastion/internal/redis"
	"github.com/ibs-source/bastion/internal/supervisor"
	"github.com/ibs-source/bastion/internal/workload"
	"github.com/ibs-source/bastion/pkg/circuitbreaker"
	"github.com/ibs-source/bastion/pkg/ringbuffer"
)

func main() {
	os.Exit(run())
}

// resolveStrategy translates the validated configuration string into
// the supervisor.Strategy value bastion's factories expect.
func resolveStrategy(name string) supervisor.Strategy {
	switch name {
	case config.StrategyOneForAll:
		return supervisor.OneForAll
	case config.StrategyRestForOne:
		return supervisor.RestForOne
	default:
		return supervisor.OneForOne
	}
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logr, err := logger.NewLogrusLogger(cfg.App.LogLevel, cfg.App.LogFormat)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		return 1
	}

	redisClient, err := redis.NewClient(cfg, logr)
	if err != nil {
		logr.Error("failed to create redis client", core.Field{Key: "error", Value: err})
		return 1
	}
	defer func() { _ = redisClient.Close() }()

	mqttClient, err := mqtt.NewClient(cfg, logr)
	if err != nil {
		logr.Error("failed to create mqtt client", core.Field{Key: "error", Value: err})
		return 1
	}
	defer mqttClient.Disconnect(cfg.MQTT.WriteTimeout)

	publishCB := circuitbreaker.New(
		"mqtt-publish",
		cfg.CircuitBreaker.ErrorThreshold,
		cfg.CircuitBreaker.SuccessThreshold,
		cfg.CircuitBreaker.Timeout,
		cfg.CircuitBreaker.MaxConcurrentCalls,
		cfg.CircuitBreaker.RequestVolumeThreshold,
	)

	poolCtx, poolCancel := context.WithCancel(context.Background())
	defer poolCancel()
	pool, err := blockingpool.New(poolCtx, logr)
	if err != nil {
		logr.Error("failed to create blocking pool", core.Field{Key: "error", Value: err})
		return 1
	}
	pool.Start()
	defer pool.Stop()

	deps := workload.Deps{
		Config:         cfg,
		Redis:          redisClient,
		MQTT:           mqttClient,
		Logger:         logr,
		CircuitBreaker: publishCB,
		Queue:          ringbuffer.New[domain.Message](uint32(cfg.Workload.BufferSize)),
		Pool:           pool,
	}

	rootStrategy := resolveStrategy(cfg.Supervision.RootStrategy)
	if err := bastion.InitWithConfig(bastion.Config{RootStrategy: rootStrategy}); err != nil {
		logr.Error("failed to initialize bastion", core.Field{Key: "error", Value: err})
		return 1
	}

	redundancy := cfg.Supervision.Redundancy
	consumerGroup := bastion.Children(redundancy, workload.NewRedisConsumerFuture(deps), childrengroup.Callbacks{
		OnRestart: func() {
			logr.WithNodeID(id.New()).Warn("redis consumer restarting")
		},
	})
	publisherGroup := bastion.Children(redundancy, workload.NewMQTTPublisherFuture(deps), childrengroup.Callbacks{
		OnRestart: func() {
			publishCB.Reset()
			logr.WithNodeID(id.New()).Warn("mqtt publisher restarting",
				core.Field{Key: "handlers", Value: mqttClient.HandlerCount()},
			)
		},
	})

	pipeline := bastion.Supervisor(rootStrategy, consumerGroup, publisherGroup)
	if _, err := bastion.Deploy(pipeline); err != nil {
		logr.Error("failed to deploy pipeline", core.Field{Key: "error", Value: err})
		return 1
	}

	if err := bastion.Start(); err != nil {
		logr.Error("failed to start bastion", core.Field{Key: "error", Value: err})
		return 1
	}
	logr.Info("bastion demo started",
		core.Field{Key: "name", Value: cfg.App.Name},
		core.Field{Key: "environment", Value: cfg.App.Environment},
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logr.Info("received shutdown signal", core.Field{Key: "signal", Value: sig})

	if err := bastion.Stop(); err != nil {
		logr.Error("failed to stop bastion", core.Field{Key: "error", Value: err})
		return 1
	}
	if !waitForStop(cfg.App.ShutdownTimeout, cfg.App.PendingOpsGrace, logr) {
		logr.Error("shutdown deadline exceeded, tree did not settle cleanly")
		return 1
	}

	logr.Info("application shutdown complete")
	return 0
}

// waitForStop blocks until the tree settles or timeout elapses. On
// timeout it escalates to Kill and allows pendingOpsGrace more time
// for blocking-pool work already in flight to unwind before giving up.
func waitForStop(timeout, pendingOpsGrace time.Duration, logr *logger.LogrusLogger) bool {
	done := make(chan struct{})
	go func() {
		_ = bastion.BlockUntilStopped()
		close(done)
	}()

	select {
	case <-done:
		return true
	case <-time.After(timeout):
		logr.Warn("shutdown timeout exceeded, killing tree", core.Field{Key: "timeout", Value: timeout})
	}

	if err := bastion.Kill(); err != nil {
		logr.Error("failed to kill bastion after timeout", core.Field{Key: "error", Value: err})
	}

	select {
	case <-done:
		return true
	case <-time.After(pendingOpsGrace):
		return false
	}
}
