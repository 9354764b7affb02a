// Package workload supplies the demo supervised futures: a Redis
// stream consumer and an MQTT publisher, wired through a shared
// ring buffer and guarded by a circuit breaker.
package workload

import (
	"github.com/ibs-source/bastion/internal/blockingpool"
	"github.com/ibs-source/bastion/internal/config"
	"github.com/ibs-source/bastion/internal/domain"
	"github.com/ibs-source/bastion/internal/ports"
	"github.com/ibs-source/bastion/pkg/ringbuffer"
)

// Deps bundles the adapters a workload future needs. Queue decouples
// the consumer from the publisher so each can live under its own
// supervised child. Pool is where both futures submit their actual
// blocking Redis/MQTT calls, keeping those syscalls off the
// cooperative executor goroutine each future otherwise runs on.
type Deps struct {
	Config         *config.Config
	Redis          ports.RedisClient
	MQTT           ports.MQTTClient
	Logger         ports.Logger
	CircuitBreaker ports.CircuitBreaker
	Queue          *ringbuffer.RingBuffer[domain.Message]
	Pool           *blockingpool.Pool
}
