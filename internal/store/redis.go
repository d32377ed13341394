package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/sendmessage/internal/metrics"
)

const (
	propertiesKey         = "sendmessage:properties"
	propertyEventsChannel = "sendmessage:properties:events"
)

// RedisStore keeps properties in a Redis hash and announces changes on a
// pub/sub channel, so every instance sharing the server sees them.
type RedisStore struct {
	listeners

	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client returns the underlying client for components sharing the connection.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetProperty reads a property from the hash.
func (s *RedisStore) GetProperty(ctx context.Context, key string) (string, bool, error) {
	start := time.Now()
	value, err := s.client.HGet(ctx, propertiesKey, key).Result()
	metrics.RedisLatency.Observe(time.Since(start).Seconds())

	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

// SetProperty writes a property and publishes the change in one transaction.
func (s *RedisStore) SetProperty(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(propertyEvent{Op: opSet, Key: key, Value: value})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, propertiesKey, key, value)
	pipe.Publish(ctx, propertyEventsChannel, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// DeleteProperty removes a property and publishes the deletion.
func (s *RedisStore) DeleteProperty(ctx context.Context, key string) error {
	payload, err := json.Marshal(propertyEvent{Op: opDelete, Key: key})
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.HDel(ctx, propertiesKey, key)
	pipe.Publish(ctx, propertyEventsChannel, payload)
	_, err = pipe.Exec(ctx)
	return err
}

// Watch subscribes to the change channel and feeds events to listeners
// until ctx is cancelled or the connection fails.
func (s *RedisStore) Watch(ctx context.Context, subscribed func()) error {
	sub := s.client.Subscribe(ctx, propertyEventsChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return err
	}
	subscribed()

	// Receive, unlike Channel, surfaces connection loss instead of silently
	// resubscribing, so the caller can catch up on what was missed.
	for {
		msg, err := sub.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("receive property event: %w", err)
		}
		s.handleMessage(msg)
	}
}

func (s *RedisStore) handleMessage(msg interface{}) {
	if m, ok := msg.(*redis.Message); ok && m.Channel == propertyEventsChannel {
		s.firePayload(m.Payload)
	}
}
