// Package redis provides a Redis-backed implementation of taskstore.Store.
//
// Each task is stored as a JSON document under <prefix>task:<id>. Creation
// order is kept in a sorted set scored by a monotonically increasing sequence
// so that listing is newest-first without relying on clock resolution.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/syarbeats/mcp-playground/taskstore"
)

// maxTxRetries bounds optimistic-lock retries in Update.
const maxTxRetries = 5

// Config contains configuration options for the Redis store
type Config struct {
	// Client is the Redis client instance
	Client *redis.Client

	// KeyPrefix is the prefix for all Redis keys
	// Default: "mcp:tasks:"
	KeyPrefix string
}

// Store implements taskstore.Store using Redis
type Store struct {
	client    *redis.Client
	keyPrefix string
}

var _ taskstore.Store = (*Store)(nil)

// New creates a new Redis-based task store.
func New(config Config) (*Store, error) {
	if config.Client == nil {
		return nil, fmt.Errorf("redis client is required")
	}

	if config.KeyPrefix == "" {
		config.KeyPrefix = "mcp:tasks:"
	}

	return &Store{
		client:    config.Client,
		keyPrefix: config.KeyPrefix,
	}, nil
}

func (s *Store) taskKey(id string) string { return s.keyPrefix + "task:" + id }
func (s *Store) orderKey() string         { return s.keyPrefix + "order" }
func (s *Store) seqKey() string           { return s.keyPrefix + "seq" }

func (s *Store) Create(ctx context.Context, d taskstore.Draft) (*taskstore.Task, error) {
	d, err := d.Normalize()
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	t := &taskstore.Task{
		ID:          taskstore.NewID(),
		Title:       d.Title,
		Description: d.Description,
		Status:      d.Status,
		Priority:    d.Priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task: %w", err)
	}

	seq, err := s.client.Incr(ctx, s.seqKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to allocate sequence: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.taskKey(t.ID), data, 0)
		p.ZAdd(ctx, s.orderKey(), redis.Z{Score: float64(seq), Member: t.ID})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store task %s: %w", t.ID, err)
	}
	return t, nil
}

func (s *Store) Get(ctx context.Context, id string) (*taskstore.Task, error) {
	return s.load(ctx, s.client, id)
}

// load reads a task through any redis command surface (client or tx).
func (s *Store) load(ctx context.Context, c redis.Cmdable, id string) (*taskstore.Task, error) {
	raw, err := c.Get(ctx, s.taskKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, taskstore.NotFound(id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	var t taskstore.Task
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task %s: %w", id, err)
	}
	return &t, nil
}

func (s *Store) List(ctx context.Context, f taskstore.Filter) ([]*taskstore.Task, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}

	ids, err := s.client.ZRevRange(ctx, s.orderKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list task ids: %w", err)
	}
	if len(ids) == 0 {
		return []*taskstore.Task{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.taskKey(id)
	}
	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load tasks: %w", err)
	}

	out := make([]*taskstore.Task, 0, len(vals))
	for i, v := range vals {
		str, ok := v.(string)
		if !ok {
			// Deleted between ZREVRANGE and MGET.
			continue
		}
		var t taskstore.Task
		if err := json.Unmarshal([]byte(str), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal task %s: %w", ids[i], err)
		}
		if f.Matches(&t) {
			out = append(out, &t)
		}
	}
	return out, nil
}

func (s *Store) Update(ctx context.Context, id string, u taskstore.Update) (*taskstore.Task, error) {
	key := s.taskKey(id)

	var updated *taskstore.Task
	txf := func(tx *redis.Tx) error {
		t, err := s.load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := u.Apply(t, time.Now()); err != nil {
			return err
		}
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal task: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.Set(ctx, key, data, 0)
			return nil
		})
		if err == nil {
			updated = t
		}
		return err
	}

	for range maxTxRetries {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, fmt.Errorf("failed to update task %s: too much contention", id)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	var del *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		del = p.Del(ctx, s.taskKey(id))
		p.ZRem(ctx, s.orderKey(), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete task %s: %w", id, err)
	}
	if del.Val() == 0 {
		return taskstore.NotFound(id)
	}
	return nil
}

// Reset removes every key under the store's prefix.
func (s *Store) Reset(ctx context.Context) error {
	keys, err := s.scanKeys(ctx, s.keyPrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// scanKeys uses Redis SCAN to find all keys matching a pattern
func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64

	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	return keys, nil
}
