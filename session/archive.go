package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hupe1980/crucible/logging"
)

// Archiver persists finished session records outside the process.
type Archiver interface {
	Save(ctx context.Context, rec Record) (int64, error)
	Load(ctx context.Context, id string) (Record, int64, error)
	Delete(ctx context.Context, id string) error
}

// RedisArchiveOptions configures a RedisArchive.
type RedisArchiveOptions struct {
	// KeyPrefix namespaces the session hashes.
	KeyPrefix string
	// NotifyPrefix is the channel prefix used to announce saved records.
	NotifyPrefix string
	// TTL expires archived records; zero keeps them forever.
	TTL    time.Duration
	Logger logging.Logger
}

// RedisArchive stores session records as versioned Redis hashes
// ({value, version}) and publishes a notification on every save.
type RedisArchive struct {
	client *redis.Client
	opts   RedisArchiveOptions
}

var _ Archiver = (*RedisArchive)(nil)

// NewRedisArchive wraps an existing client.
func NewRedisArchive(client *redis.Client, optFns ...func(o *RedisArchiveOptions)) *RedisArchive {
	opts := RedisArchiveOptions{
		KeyPrefix:    "crucible:session:",
		NotifyPrefix: "crucible:session:update:",
		Logger:       logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	return &RedisArchive{client: client, opts: opts}
}

// Save writes rec and returns its new version. Concurrent saves of the
// same session are serialised by an optimistic WATCH transaction.
func (a *RedisArchive) Save(ctx context.Context, rec Record) (int64, error) {
	key := a.opts.KeyPrefix + rec.ID

	data, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode session %s: %w", rec.ID, err)
	}

	var version int64
	err = a.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.HGet(ctx, key, "version").Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		version = current + 1

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, "value", data, "version", version, "status", string(rec.Status))
			if a.opts.TTL > 0 {
				pipe.Expire(ctx, key, a.opts.TTL)
			}
			return nil
		})
		return err
	}, key)
	if err != nil {
		return 0, fmt.Errorf("archive session %s: %w", rec.ID, err)
	}

	if err := a.client.Publish(ctx, a.opts.NotifyPrefix+rec.ID, string(rec.Status)).Err(); err != nil {
		a.opts.Logger.Warn("archive notification failed", "session_id", rec.ID, "error", err)
	}

	return version, nil
}

// Load returns the archived record and its version.
func (a *RedisArchive) Load(ctx context.Context, id string) (Record, int64, error) {
	res, err := a.client.HGetAll(ctx, a.opts.KeyPrefix+id).Result()
	if err != nil {
		return Record{}, 0, err
	}

	if len(res) == 0 {
		return Record{}, 0, ErrNotFound
	}

	var rec Record
	if err := json.Unmarshal([]byte(res["value"]), &rec); err != nil {
		return Record{}, 0, fmt.Errorf("decode session %s: %w", id, err)
	}

	version, err := strconv.ParseInt(res["version"], 10, 64)
	if err != nil {
		return Record{}, 0, fmt.Errorf("decode version of %s: %w", id, err)
	}

	return rec, version, nil
}

// Delete removes the archived record.
func (a *RedisArchive) Delete(ctx context.Context, id string) error {
	return a.client.Del(ctx, a.opts.KeyPrefix+id).Err()
}

// Subscribe returns a subscription to save notifications for ids matching
// pattern (glob syntax).
func (a *RedisArchive) Subscribe(ctx context.Context, pattern string) *redis.PubSub {
	return a.client.PSubscribe(ctx, a.opts.NotifyPrefix+pattern)
}
