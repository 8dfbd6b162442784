package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSinkOptions configures a RedisSink.
type RedisSinkOptions struct {
	// StreamPrefix namespaces the per-session streams.
	StreamPrefix string
	// MaxLen caps each stream approximately; zero keeps everything.
	MaxLen int64
}

// RedisSink appends entries to the stream <prefix><session> as a single
// "entry" field holding the JSON line.
type RedisSink struct {
	client *redis.Client
	opts   RedisSinkOptions
}

var _ Sink = (*RedisSink)(nil)

// NewRedisSink wraps an existing client.
func NewRedisSink(client *redis.Client, optFns ...func(o *RedisSinkOptions)) *RedisSink {
	opts := RedisSinkOptions{StreamPrefix: "crucible:audit:"}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &RedisSink{client: client, opts: opts}
}

// Write implements Sink.
func (s *RedisSink) Write(ctx context.Context, e Entry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: s.opts.StreamPrefix + e.SessionID,
		Values: map[string]any{"entry": string(line)},
	}
	if s.opts.MaxLen > 0 {
		args.MaxLen = s.opts.MaxLen
		args.Approx = true
	}

	return s.client.XAdd(ctx, args).Err()
}

// Entries reads back the stream of one session.
func (s *RedisSink) Entries(ctx context.Context, sessionID string) ([]Entry, error) {
	msgs, err := s.client.XRange(ctx, s.opts.StreamPrefix+sessionID, "-", "+").Result()
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		raw, ok := m.Values["entry"].(string)
		if !ok {
			continue
		}
		var e Entry
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			return entries, fmt.Errorf("decode audit entry %s: %w", m.ID, err)
		}
		entries = append(entries, e)
	}

	return entries, nil
}
