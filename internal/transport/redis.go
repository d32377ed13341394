package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/sendmessage/internal/metrics"
	"github.com/eldtechnologies/sendmessage/internal/models"
)

const (
	componentsKey = "sendmessage:components"
	inboxTTL      = 7 * 24 * time.Hour
)

// inboxKey returns the key for a recipient's pending message inbox.
func inboxKey(to models.Address) string {
	return fmt.Sprintf("inbox:%s", to.Bare())
}

// deliverChannel returns the pub/sub channel online sessions of a recipient
// subscribe to.
func deliverChannel(to models.Address) string {
	return fmt.Sprintf("deliver:%s", to.Bare())
}

// RedisTransport stores messages in the recipient's inbox and announces them
// on the recipient's delivery channel.
type RedisTransport struct {
	client     *redis.Client
	address    string
	registered atomic.Bool
}

// NewRedisTransport creates a transport on an existing client.
func NewRedisTransport(client *redis.Client, address string) *RedisTransport {
	return &RedisTransport{client: client, address: address}
}

// Name returns "redis".
func (t *RedisTransport) Name() string { return "redis" }

// Address returns the service address the transport registers under.
func (t *RedisTransport) Address() string { return t.address }

// Register records the service address in the component registry.
func (t *RedisTransport) Register(ctx context.Context) error {
	data, err := json.Marshal(registration{Address: t.address, RegisteredAt: time.Now().UnixMilli()})
	if err != nil {
		return err
	}
	if err := t.client.HSet(ctx, componentsKey, t.address, data).Err(); err != nil {
		return fmt.Errorf("register %s: %w", t.address, err)
	}
	t.registered.Store(true)
	return nil
}

// Deregister removes the service address from the component registry.
func (t *RedisTransport) Deregister(ctx context.Context) error {
	if !t.registered.Swap(false) {
		return nil
	}
	if err := t.client.HDel(ctx, componentsKey, t.address).Err(); err != nil {
		return fmt.Errorf("deregister %s: %w", t.address, err)
	}
	return nil
}

// Dispatch appends msg to the recipient's inbox and publishes it.
func (t *RedisTransport) Dispatch(ctx context.Context, msg *models.Message) error {
	if !t.registered.Load() {
		return ErrNotRegistered
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := inboxKey(msg.To)
	pipe := t.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	})
	pipe.Expire(ctx, key, inboxTTL)
	pipe.Publish(ctx, deliverChannel(msg.To), data)
	if _, err := pipe.Exec(ctx); err != nil {
		metrics.DispatchFailures.WithLabelValues(t.Name()).Inc()
		return fmt.Errorf("deliver to %s: %w", msg.To.Bare(), err)
	}

	metrics.MessagesDispatched.WithLabelValues(t.Name()).Inc()
	return nil
}

// Ping checks the Redis connection and registration.
func (t *RedisTransport) Ping(ctx context.Context) error {
	if err := t.client.Ping(ctx).Err(); err != nil {
		return err
	}
	if !t.registered.Load() {
		return ErrNotRegistered
	}
	return nil
}
