package events

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/countrysync/internal/model"
)

// RedisConfig configures the Redis connection behind RedisBus.
type RedisConfig struct {
	URL         string
	Channel     string
	PoolSize    int
	DialTimeout time.Duration
}

// NewRedisClient parses cfg.URL, applies pool overrides and verifies the
// connection with a PING.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, eris.Wrap(err, "events: parse redis url")
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, eris.Wrap(err, "events: redis ping")
	}
	return client, nil
}

// RedisBus publishes and subscribes over a Redis pub/sub channel. Events are
// JSON encoded with model.ChangeEvent.Encode.
type RedisBus struct {
	client  *redis.Client
	channel string
	owned   bool
}

// NewRedisBus wraps client. Close leaves the client open.
func NewRedisBus(client *redis.Client, channel string) *RedisBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBus{client: client, channel: channel}
}

// DialRedisBus connects to Redis and returns a bus that owns the client.
func DialRedisBus(ctx context.Context, cfg RedisConfig) (*RedisBus, error) {
	client, err := NewRedisClient(ctx, cfg)
	if err != nil {
		return nil, err
	}
	bus := NewRedisBus(client, cfg.Channel)
	bus.owned = true
	return bus, nil
}

// Channel returns the pub/sub channel name.
func (b *RedisBus) Channel() string { return b.channel }

// Publish sends ev with PUBLISH. It does not wait for any subscriber.
func (b *RedisBus) Publish(ctx context.Context, ev model.ChangeEvent) error {
	body, err := ev.Encode()
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, body).Err(); err != nil {
		return eris.Wrapf(err, "events: publish to %s", b.channel)
	}
	return nil
}

// Subscribe opens a SUBSCRIBE and waits for the server's confirmation, so
// events published after Subscribe returns are delivered.
func (b *RedisBus) Subscribe(ctx context.Context) (Subscription, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, eris.Wrapf(err, "events: subscribe to %s", b.channel)
	}

	sub := &redisSub{ps: ps, out: make(chan model.ChangeEvent)}
	go sub.pump(ctx)
	return sub, nil
}

// Ping checks the Redis connection.
func (b *RedisBus) Ping(ctx context.Context) error {
	return eris.Wrap(b.client.Ping(ctx).Err(), "events: redis ping")
}

// Close releases the client if the bus created it.
func (b *RedisBus) Close() error {
	if !b.owned {
		return nil
	}
	return b.client.Close()
}

type redisSub struct {
	ps  *redis.PubSub
	out chan model.ChangeEvent
}

func (s *redisSub) Events() <-chan model.ChangeEvent { return s.out }

func (s *redisSub) Close() error { return s.ps.Close() }

// pump decodes messages until the PubSub channel closes or ctx is done.
// Malformed payloads are logged and skipped.
func (s *redisSub) pump(ctx context.Context) {
	defer close(s.out)
	log := zap.L().With(zap.String("component", "events.redis"))

	msgs := s.ps.Channel()
	for {
		select {
		case <-ctx.Done():
			_ = s.ps.Close()
			return
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			ev, err := model.DecodeChangeEvent([]byte(msg.Payload))
			if err != nil {
				log.Warn("events: dropping malformed message", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			select {
			case s.out <- ev:
			case <-ctx.Done():
				_ = s.ps.Close()
				return
			}
		}
	}
}
