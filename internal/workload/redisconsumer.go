package workload

import (
	"github.com/ibs-source/bastion/internal/child"
	"github.com/ibs-source/bastion/internal/domain"
	"github.com/ibs-source/bastion/internal/ports"
)

// NewRedisConsumerFuture returns the child.Future that reads new
// messages from a Redis stream consumer group and enqueues them on the shared
// ring buffer for the publisher side to drain. Each read is submitted
// to the blocking pool rather than run inline, since a Streams read
// can block for up to the configured batch timeout. A read error
// returns non-nil, which the owning child reports as Faulted so its
// supervisor can restart the consumer under its configured strategy.
func NewRedisConsumerFuture(deps Deps) child.Future {
	return func(rc *child.RunContext) error {
		cfg := deps.Config
		ctx := rc.Context.Context
		consumer := deps.Redis.GetConsumerName()

		for {
			select {
			case <-rc.Done:
				return nil
			default:
			}

			handle := deps.Pool.SpawnBlocking(func() (interface{}, error) {
				return deps.Redis.ReadMessages(
					ctx,
					cfg.Redis.ConsumerGroup,
					consumer,
					cfg.Redis.StreamName,
					int64(cfg.Workload.BatchSize),
					cfg.Workload.BatchTimeout,
				)
			})

			out, err := handle.Await(ctx)
			if err != nil {
				return nil
			}
			if out.Err != nil {
				deps.Logger.Error("redis read failed", ports.Field{Key: "error", Value: out.Err})
				return out.Err
			}

			msgs, _ := out.Value.([]*domain.Message)
			for _, m := range msgs {
				if !deps.Queue.Put(m) {
					deps.Logger.Warn("ring buffer full, dropping message", ports.Field{Key: "id", Value: m.ID})
				}
			}
		}
	}
}
