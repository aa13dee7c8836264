package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"permitdesk.org/internal/notify"
)

const (
	redisChannelPrefix = "permitdesk:notify:"
	publishTimeout     = 2 * time.Second
)

// RedisPublisher pushes notifications through Redis pub/sub so that
// clients connected to any API replica receive them.
type RedisPublisher struct {
	client *redis.Client
}

// NewRedisPublisher wraps an existing Redis client.
func NewRedisPublisher(client *redis.Client) *RedisPublisher {
	return &RedisPublisher{client: client}
}

// Publish sends the notification to its scope channel. A timed-out
// publish is reported as failed, never assumed delivered.
func (p *RedisPublisher) Publish(ctx context.Context, n notify.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, redisChannelPrefix+scopeKey(notify.ScopeOf(n)), payload).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Relay consumes every notification channel on Redis and republishes
// into dst, bridging events published by other replicas into this
// replica's broker. It blocks until the context ends. A replica's own
// publishes come back around too; delivery is at-least-once and
// subscribers de-duplicate by notification id.
func (p *RedisPublisher) Relay(ctx context.Context, dst notify.Publisher) {
	sub := p.client.PSubscribe(ctx, redisChannelPrefix+"*")
	defer func() { _ = sub.Close() }()
	relay(ctx, sub.Channel(), dst)
}

func relay(ctx context.Context, msgs <-chan *redis.Message, dst notify.Publisher) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			var n notify.Notification
			if err := json.Unmarshal([]byte(msg.Payload), &n); err != nil {
				// Foreign payloads on the channel are not ours to deliver.
				continue
			}
			_ = dst.Publish(ctx, n)
		}
	}
}
