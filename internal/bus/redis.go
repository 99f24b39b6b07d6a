package bus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nikhil/discuss/internal/cache"
	"github.com/nikhil/discuss/internal/logger"
	"github.com/nikhil/discuss/internal/models"
)

// Redis publishes notifications on Redis so that every instance can deliver
// them to its own websocket clients through Relay.
type Redis struct {
	redis *cache.Redis
}

// NewRedis creates a bus publishing on Redis.
func NewRedis(r *cache.Redis) *Redis {
	return &Redis{redis: r}
}

// SendOne publishes the notification for all instances.
func (b *Redis) SendOne(ctx context.Context, target models.Target, notifType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", notifType, err)
	}
	data, err := json.Marshal(envelope{
		Model: target.Model,
		ID:    target.ID,
		Frame: Frame{Type: notifType, Payload: raw},
	})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	return b.redis.Publish(ctx, redisBusChannel, data)
}

// Relay forwards notifications published on Redis to the local hub until ctx is cancelled.
func Relay(ctx context.Context, r *cache.Redis, hub *models.Hub, log *logger.Logger) error {
	return r.Subscribe(ctx, redisBusChannel, func(data []byte) {
		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			log.Warn("Dropping malformed bus envelope", "error", err)
			return
		}
		frame, err := json.Marshal(env.Frame)
		if err != nil {
			log.Warn("Dropping bus frame", "error", err)
			return
		}
		hub.Publish(models.Target{Model: env.Model, ID: env.ID}, frame)
	})
}
