package sinks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JakeFAU/tululu-archiver/internal/progress"
)

// DefaultRedisPrefix namespaces run status keys.
const DefaultRedisPrefix = "tululu:run:"

// Snapshotter exposes the current run counters; *Tally satisfies it.
type Snapshotter interface {
	Snapshot() Snapshot
}

type statusClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Close() error
}

// RedisSink mirrors the run snapshot into Redis so other processes can
// watch a run. It must be registered after the Tally it reads from.
type RedisSink struct {
	client statusClient
	source Snapshotter
	prefix string
	ttl    time.Duration
}

// NewRedisSink connects to addr. ttl <= 0 keeps keys forever.
func NewRedisSink(addr, prefix string, ttl time.Duration, source Snapshotter) (*RedisSink, error) {
	if addr == "" {
		return nil, errors.New("redis sink requires an address")
	}
	return NewRedisSinkWithClient(redis.NewClient(&redis.Options{Addr: addr}), prefix, ttl, source)
}

// NewRedisSinkWithClient builds a sink around an existing client (tests).
func NewRedisSinkWithClient(client statusClient, prefix string, ttl time.Duration, source Snapshotter) (*RedisSink, error) {
	if client == nil || source == nil {
		return nil, errors.New("redis sink requires a client and a snapshot source")
	}
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	if ttl < 0 {
		ttl = 0
	}
	return &RedisSink{client: client, source: source, prefix: prefix, ttl: ttl}, nil
}

// Key returns the Redis key holding runID's snapshot.
func (s *RedisSink) Key(runID string) string {
	return s.prefix + runID
}

// Consume writes the latest snapshot when the batch moved a counter the
// status view shows.
func (s *RedisSink) Consume(ctx context.Context, batch []progress.Event) error {
	if !changesStatus(batch) {
		return nil
	}
	snap := s.source.Snapshot()
	if snap.RunID == "" {
		return nil
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.Key(snap.RunID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.Key(snap.RunID), err)
	}
	return nil
}

// Close closes the Redis client.
func (s *RedisSink) Close(context.Context) error {
	if err := s.client.Close(); err != nil {
		return fmt.Errorf("close redis client: %w", err)
	}
	return nil
}

func changesStatus(batch []progress.Event) bool {
	for _, evt := range batch {
		if evt.Stage != progress.StageAssetSaved {
			return true
		}
	}
	return false
}
