package workload

import (
	"time"

	"github.com/ibs-source/bastion/internal/child"
	"github.com/ibs-source/bastion/internal/ports"
	"github.com/ibs-source/bastion/pkg/jsonfast"
)

// drainInterval is how often the publisher polls the shared ring
// buffer when it is empty; an implementation choice local to this
// package, not a configured value.
const drainInterval = 25 * time.Millisecond

// NewMQTTPublisherFuture returns the child.Future that drains the
// shared ring buffer and publishes each message to MQTT through the
// circuit breaker, submitting the publish call itself to the blocking
// pool. The Redis ack only happens after a successful publish. A
// publish error (including one surfaced by an open circuit) returns
// non-nil, reported as Faulted.
func NewMQTTPublisherFuture(deps Deps) child.Future {
	return func(rc *child.RunContext) error {
		cfg := deps.Config
		ctx := rc.Context.Context

		for {
			msg := deps.Queue.WaitForItem(rc.Done, drainInterval)
			if msg == nil {
				return nil
			}

			b := jsonfast.New(len(msg.Data) + 64)
			b.BeginObject()
			b.AddStringField("id", msg.ID)
			b.AddTimeRFC3339Field("timestamp", msg.Timestamp)
			b.AddIntField("attempts", int(msg.Attempts))
			b.AddRawJSONField("data", msg.Data)
			b.EndObject()
			payload := append([]byte(nil), b.Bytes()...)

			handle := deps.Pool.SpawnBlocking(func() (interface{}, error) {
				err := deps.CircuitBreaker.Execute(func() error {
					return deps.MQTT.Publish(
						ctx,
						cfg.MQTT.Topics.PublishTopic,
						cfg.MQTT.QoS,
						cfg.MQTT.Topics.RetainMessages,
						payload,
					)
				})
				return nil, err
			})

			out, err := handle.Await(ctx)
			if err != nil {
				return nil
			}
			if out.Err != nil {
				deps.Logger.Error("publish failed", ports.Field{Key: "error", Value: out.Err})
				return out.Err
			}

			if err := deps.Redis.AckMessages(ctx, cfg.Redis.StreamName, cfg.Redis.ConsumerGroup, msg.ID); err != nil {
				deps.Logger.Warn("ack failed", ports.Field{Key: "error", Value: err})
			}
		}
	}
}
