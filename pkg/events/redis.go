package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisPublisher mirrors bus topics onto Redis Pub/Sub so out-of-process
// collaborators can observe remediation events. Failures are swallowed:
// an unreachable Redis must never stall or fail the control loop.
type RedisPublisher struct {
	rdb     *redis.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewRedisPublisher wraps an existing client.
func NewRedisPublisher(rdb *redis.Client) *RedisPublisher {
	return &RedisPublisher{
		rdb:     rdb,
		timeout: 2 * time.Second,
		logger:  slog.Default().With("component", "events.redis"),
	}
}

// DialRedisPublisher connects to addr and verifies the connection.
func DialRedisPublisher(ctx context.Context, addr string) (*RedisPublisher, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, err
	}
	return NewRedisPublisher(rdb), nil
}

// Publish implements Publisher. The payload is JSON-encoded; encode or
// network errors are logged at debug level and dropped.
func (p *RedisPublisher) Publish(topic string, payload map[string]any) {
	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Debug("payload encode failed", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	if err := p.rdb.Publish(ctx, topic, body).Err(); err != nil {
		p.logger.Debug("publish failed", "topic", topic, "error", err)
	}
}

// Close releases the underlying client.
func (p *RedisPublisher) Close() error {
	return p.rdb.Close()
}
