package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jwebster45206/infinite-story/pkg/narrative"
	pkgstorage "github.com/jwebster45206/infinite-story/pkg/storage"
	"github.com/redis/go-redis/v9"
)

const (
	snapshotKeyPrefix = "story-engine:"
	lockKeyPrefix     = "story-lock:"
)

// releaseLockScript only deletes the lock when the caller still owns it.
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// NewRedisClient accepts either host:port or a redis:// URL.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisSessionStore implements SessionStore using Redis. Engine snapshots expire
// after ttl of inactivity.
type RedisSessionStore struct {
	client *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// Ensure RedisSessionStore implements SessionStore interface
var _ pkgstorage.SessionStore = (*RedisSessionStore)(nil)

// NewRedisSessionStore wraps an existing client. A zero ttl keeps snapshots forever.
func NewRedisSessionStore(client *redis.Client, ttl time.Duration, logger *slog.Logger) *RedisSessionStore {
	return &RedisSessionStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Client exposes the underlying client for components sharing the connection.
func (r *RedisSessionStore) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisSessionStore) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisSessionStore) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

// Snapshot operations

func (r *RedisSessionStore) SaveSnapshot(ctx context.Context, sessionID string, snap *narrative.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("snapshot cannot be nil")
	}
	data, err := json.Marshal(snap)
	if err != nil {
		r.logger.Error("Failed to marshal snapshot", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := r.client.Set(ctx, snapshotKeyPrefix+sessionID, data, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to save snapshot", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *RedisSessionStore) LoadSnapshot(ctx context.Context, sessionID string) (*narrative.Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKeyPrefix+sessionID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Snapshot not found", "session_id", sessionID)
			return nil, nil
		}
		r.logger.Error("Failed to load snapshot", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var snap narrative.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		r.logger.Error("Failed to unmarshal snapshot", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (r *RedisSessionStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	if err := r.client.Del(ctx, snapshotKeyPrefix+sessionID).Err(); err != nil {
		r.logger.Error("Failed to delete snapshot", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// Lock operations

func (r *RedisSessionStore) AcquireLock(ctx context.Context, sessionID, owner string, ttl time.Duration) (bool, error) {
	ok, err := r.client.SetNX(ctx, lockKeyPrefix+sessionID, owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire session lock: %w", err)
	}
	return ok, nil
}

func (r *RedisSessionStore) ReleaseLock(ctx context.Context, sessionID, owner string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + sessionID}, owner).Err(); err != nil {
		r.logger.Error("Failed to release session lock", "session_id", sessionID, "error", err)
		return fmt.Errorf("failed to release session lock: %w", err)
	}
	return nil
}
