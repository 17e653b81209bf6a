package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// DefaultChannel carries daemon messages to every attached foreground page.
const DefaultChannel = "reaport:sync:events"

// ControlChannel carries force-sync and heartbeat requests back to the daemon.
const ControlChannel = "reaport:sync:control"

const publishTimeout = 2 * time.Second

// RedisPublisher broadcasts messages on a pub/sub channel so that every
// attached foreground page receives them, regardless of which process
// triggered the drain.
type RedisPublisher struct {
	client  *redis.Client
	channel string
}

// NewRedisPublisher wraps an existing client. A nil client yields a
// publisher whose Publish always errors; callers wanting graceful
// degradation wrap it in a Fanout.
func NewRedisPublisher(client *redis.Client, channel string) *RedisPublisher {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisPublisher{client: client, channel: channel}
}

func (p *RedisPublisher) Publish(msg Message) error {
	if p.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := msg.Encode()
	if err != nil {
		return fmt.Errorf("encode notify message: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := p.client.Publish(ctx, p.channel, data).Err(); err != nil {
		return fmt.Errorf("publish notify message: %w", err)
	}
	return nil
}

// Subscribe delivers decoded channel messages to the handler until ctx is
// done. Used by the daemon to receive foreground control messages and by
// tests to observe the outbound stream.
func Subscribe(ctx context.Context, client *redis.Client, channel string, logger *zerolog.Logger, handler Handler) error {
	if client == nil {
		return fmt.Errorf("redis client is nil")
	}
	sub := client.Subscribe(ctx, channel)
	defer sub.Close()

	// Wait for the subscription to be confirmed before reporting ready.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-ch:
			if !ok {
				return nil
			}
			msg, err := Decode([]byte(raw.Payload))
			if err != nil {
				logger.Warn().Err(err).Str("channel", channel).Msg("dropping undecodable notify message")
				continue
			}
			handler(msg)
		}
	}
}
