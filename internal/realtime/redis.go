package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// DefaultChannel is the Redis pub/sub channel shared by all instances.
const DefaultChannel = "cadence:realtime"

type envelope struct {
	Topic   string          `json:"topic"`
	Payload json.RawMessage `json:"payload"`
}

// RedisBroker publishes through Redis and relays everything received on the
// channel to the local hub, so each instance serves its own subscribers.
type RedisBroker struct {
	client  *redis.Client
	channel string
	local   Publisher
	logger  *slog.Logger
}

var _ Publisher = (*RedisBroker)(nil)

// NewRedisClient parses url and pings the server.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisBroker creates a broker relaying to local.
func NewRedisBroker(client *redis.Client, channel string, local Publisher, logger *slog.Logger) *RedisBroker {
	if logger == nil {
		logger = slog.Default()
	}
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		client:  client,
		channel: channel,
		local:   local,
		logger:  logger.With(slog.String("component", "realtime_redis")),
	}
}

// Publish implements Publisher.
func (b *RedisBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	data, err := json.Marshal(envelope{Topic: topic, Payload: payload})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, data).Err()
}

// Run relays channel messages to the local hub until ctx is done. The
// subscription is confirmed before Run starts relaying.
func (b *RedisBroker) Run(ctx context.Context) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = sub.Close() }()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	b.logger.Info("relaying realtime messages", slog.String("channel", b.channel))

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(ctx, msg.Payload)
		}
	}
}

func (b *RedisBroker) relay(ctx context.Context, raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil || env.Topic == "" {
		b.logger.Warn("dropping malformed realtime message")
		return
	}
	if err := b.local.Publish(ctx, env.Topic, env.Payload); err != nil {
		b.logger.Warn("failed to relay realtime message",
			slog.String("topic", env.Topic),
			slog.String("error", err.Error()))
	}
}
