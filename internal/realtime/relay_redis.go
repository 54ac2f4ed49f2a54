package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/codecollab/collab-server/pkg/metrics"
)

type relayEnvelope struct {
	Origin  string          `json:"origin"`
	Exclude string          `json:"exclude,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// RedisRelay fans room broadcasts out to every instance subscribed to the
// same channel prefix. Each instance skips its own messages since local
// members were already served by the Registry.
type RedisRelay struct {
	client   *redis.Client
	prefix   string
	origin   string
	registry *Registry
	log      *slog.Logger
}

func NewRedisRelay(client *redis.Client, prefix string, registry *Registry, log *slog.Logger) *RedisRelay {
	return &RedisRelay{
		client:   client,
		prefix:   prefix,
		origin:   uuid.NewString(),
		registry: registry,
		log:      log,
	}
}

func (r *RedisRelay) channel(documentID string) string {
	return r.prefix + documentID
}

func (r *RedisRelay) Publish(ctx context.Context, documentID string, payload []byte, excludeConnID string) error {
	b, err := json.Marshal(relayEnvelope{Origin: r.origin, Exclude: excludeConnID, Payload: payload})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, r.channel(documentID), b).Err(); err != nil {
		return fmt.Errorf("relay publish: %w", err)
	}
	metrics.RelayMessages.WithLabelValues("out").Inc()
	return nil
}

// Start subscribes before returning so no message published afterwards is
// missed. The subscription ends when ctx is cancelled.
func (r *RedisRelay) Start(ctx context.Context) error {
	ps := r.client.PSubscribe(ctx, r.prefix+"*")
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return fmt.Errorf("relay subscribe: %w", err)
	}
	go func() {
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.handle(msg)
			}
		}
	}()
	return nil
}

func (r *RedisRelay) handle(msg *redis.Message) {
	var env relayEnvelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		r.log.Warn("relay message malformed", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == r.origin {
		return
	}
	documentID := strings.TrimPrefix(msg.Channel, r.prefix)
	metrics.RelayMessages.WithLabelValues("in").Inc()
	r.registry.Deliver(documentID, env.Payload, env.Exclude)
}
