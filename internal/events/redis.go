package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/seantiz/relay/internal/model"
)

const defaultBacklogTTL = 24 * time.Hour

// RedisSink publishes each event as JSON on a pub/sub channel and appends it
// to a per-execution backlog list so late readers can catch up.
type RedisSink struct {
	client  *redis.Client
	channel string
	ttl     time.Duration
}

// RedisOption configures a RedisSink.
type RedisOption func(*RedisSink)

// WithBacklogTTL sets how long a per-execution backlog is kept after its last
// event. Zero disables the backlog.
func WithBacklogTTL(ttl time.Duration) RedisOption {
	return func(s *RedisSink) {
		s.ttl = ttl
	}
}

// NewRedisSink returns a sink publishing on channel.
func NewRedisSink(client *redis.Client, channel string, opts ...RedisOption) *RedisSink {
	s := &RedisSink{client: client, channel: channel, ttl: defaultBacklogTTL}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BacklogKey returns the list holding an execution's events.
func (s *RedisSink) BacklogKey(executionID string) string {
	return s.channel + ":" + executionID
}

// Publish encodes ev, publishes it and appends it to the backlog in one
// transaction.
func (s *RedisSink) Publish(ctx context.Context, ev model.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Publish(ctx, s.channel, data)
		if s.ttl > 0 {
			key := s.BacklogKey(ev.ExecutionID)
			pipe.RPush(ctx, key, data)
			pipe.Expire(ctx, key, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Backlog returns the events recorded for an execution in publish order.
func (s *RedisSink) Backlog(ctx context.Context, executionID string) ([]model.Event, error) {
	raw, err := s.client.LRange(ctx, s.BacklogKey(executionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read backlog: %w", err)
	}
	events := make([]model.Event, 0, len(raw))
	for _, item := range raw {
		var ev model.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ev)
	}
	return events, nil
}
