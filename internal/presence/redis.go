package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// DefaultChannel is the redis channel presence messages travel on.
const DefaultChannel = "retro:presence"

// RedisTransport replicates presence over redis pub/sub.
type RedisTransport struct {
	rc      *redis.Client
	channel string
	log     logrus.FieldLogger
}

func NewRedisTransport(rc *redis.Client, channel string, log logrus.FieldLogger) *RedisTransport {
	if channel == "" {
		channel = DefaultChannel
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisTransport{rc: rc, channel: channel, log: log}
}

func (t *RedisTransport) Broadcast(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal presence message: %w", err)
	}
	if err := t.rc.Publish(ctx, t.channel, data).Err(); err != nil {
		return fmt.Errorf("publish presence message: %w", err)
	}
	return nil
}

// Receive subscribes before returning, so no message published afterwards
// is missed. A dropped subscription is re-established until ctx ends.
func (t *RedisTransport) Receive(ctx context.Context) (<-chan Message, error) {
	sub := t.rc.Subscribe(ctx, t.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", t.channel, err)
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			t.forward(ctx, sub, out)
			_ = sub.Close()
			if ctx.Err() != nil {
				return
			}
			t.log.Error("presence channel closed, reconnecting")
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			sub = t.rc.Subscribe(ctx, t.channel)
		}
	}()
	return out, nil
}

func (t *RedisTransport) forward(ctx context.Context, sub *redis.PubSub, out chan<- Message) {
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-ch:
			if !ok {
				return
			}
			var msg Message
			if err := json.Unmarshal([]byte(raw.Payload), &msg); err != nil {
				t.log.WithError(err).Warn("unable to parse presence message")
				continue
			}
			select {
			case out <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}
