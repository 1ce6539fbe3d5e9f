// Package cache is a read-through cache-aside client over Redis hashes.
//
// It guards the backing store against penetration (short-TTL tombstones for
// confirmed-absent ids) and breakdown (a per-id mutex that serializes
// rebuilds, or logical expiry that serves stale data and rebuilds in a
// detached task). Entities are flattened to hash fields via their `redis`
// struct tags; only scalar fields are supported.
package cache

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ldhieu/seckill/internal/port"
)

// ErrRebuildTimeout is returned by the mutex strategy when the retry budget
// is exhausted while another worker holds the rebuild lock.
var ErrRebuildTimeout = errors.New("cache: rebuild lock retries exhausted")

const (
	// tombstoneField marks a confirmed-absent entity. It is a reserved
	// sentinel, never part of a regular entity encoding.
	tombstoneField = "_nil"

	// expireField holds the logical expiry as unix seconds for entries
	// that must never physically disappear.
	expireField = "_expire"
)

// Loader fetches the entity from the durable store. A nil result with a nil
// error means the entity does not exist.
type Loader[T any] func(ctx context.Context, id string) (*T, error)

type Options struct {
	TTL           time.Duration // physical TTL for populated entries
	NullTTL       time.Duration // tombstone TTL, shorter than TTL
	LockTTL       time.Duration // rebuild lock TTL
	RetryInterval time.Duration // mutex strategy sleep between attempts
	MaxRetries    int           // mutex strategy retry budget

	RebuildTimeout time.Duration // budget for one detached rebuild
}

func (o *Options) withDefaults() {
	if o.TTL <= 0 {
		o.TTL = 30 * time.Minute
	}
	if o.NullTTL <= 0 {
		o.NullTTL = 2 * time.Minute
	}
	if o.LockTTL <= 0 {
		o.LockTTL = 10 * time.Second
	}
	if o.RetryInterval <= 0 {
		o.RetryInterval = 50 * time.Millisecond
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 10
	}
	if o.RebuildTimeout <= 0 {
		o.RebuildTimeout = 5 * time.Second
	}
}

// Client caches one entity type under keyPrefix+id. Rebuild locks live
// under lockPrefix+id, a namespace that must not collide with other lock
// users.
type Client[T any] struct {
	client     redis.UniversalClient
	locks      port.Locker
	pool       *Pool
	logger     *zap.Logger
	keyPrefix  string
	lockPrefix string
	opts       Options
}

func NewClient[T any](client redis.UniversalClient, locks port.Locker, pool *Pool, logger *zap.Logger, keyPrefix, lockPrefix string, opts Options) *Client[T] {
	opts.withDefaults()
	return &Client[T]{
		client:     client,
		locks:      locks,
		pool:       pool,
		logger:     logger,
		keyPrefix:  keyPrefix,
		lockPrefix: lockPrefix,
		opts:       opts,
	}
}

type entry[T any] struct {
	value     *T
	tombstone bool
	expireAt  time.Time // zero for physical-TTL entries
}

func (c *Client[T]) read(ctx context.Context, key string) (*entry[T], error) {
	cmd := c.client.HGetAll(ctx, key)
	fields, err := cmd.Result()
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	if _, ok := fields[tombstoneField]; ok {
		return &entry[T]{tombstone: true}, nil
	}

	e := &entry[T]{value: new(T)}
	if err := cmd.Scan(e.value); err != nil {
		return nil, err
	}
	if raw, ok := fields[expireField]; ok {
		sec, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, err
		}
		e.expireAt = time.Unix(sec, 0)
	}
	return e, nil
}

// Set populates an entry with a physical TTL. The delete, write and expire
// run in one transaction so readers never observe a partial entry.
func (c *Client[T]) Set(ctx context.Context, id string, value *T) error {
	key := c.keyPrefix + id
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, value)
		pipe.Expire(ctx, key, c.opts.TTL)
		return nil
	})
	return err
}

// SetLogical populates an entry that never physically expires; staleness is
// tracked by the embedded logical-expiry field. Used to warm entries for
// the logical-expire read strategy.
func (c *Client[T]) SetLogical(ctx context.Context, id string, value *T, ttl time.Duration) error {
	key := c.keyPrefix + id
	expireAt := time.Now().Add(ttl).Unix()
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, value)
		pipe.HSet(ctx, key, expireField, expireAt)
		return nil
	})
	return err
}

// Delete evicts an entry. Callers use it on the write path: update the
// durable store first, then evict.
func (c *Client[T]) Delete(ctx context.Context, id string) error {
	return c.client.Del(ctx, c.keyPrefix+id).Err()
}

func (c *Client[T]) setTombstone(ctx context.Context, key string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, tombstoneField, 1)
		pipe.Expire(ctx, key, c.opts.NullTTL)
		return nil
	})
	return err
}

// GetPassThrough is the penetration-guard read: a miss loads from the
// store, and a confirmed-absent id is tombstoned so repeated lookups stop
// reaching the store until the tombstone expires.
func (c *Client[T]) GetPassThrough(ctx context.Context, id string, load Loader[T]) (*T, error) {
	key := c.keyPrefix + id

	e, err := c.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if e != nil {
		if e.tombstone {
			return nil, nil
		}
		return e.value, nil
	}

	value, err := load(ctx, id)
	if err != nil {
		return nil, err
	}
	if value == nil {
		if err := c.setTombstone(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := c.Set(ctx, id, value); err != nil {
		return nil, err
	}
	return value, nil
}

// GetWithMutex is the breakdown-guard read that serializes rebuild work for
// one id behind a short-TTL lock. Readers that lose the lock sleep and
// retry the whole read path a bounded number of times; on exhaustion they
// get ErrRebuildTimeout instead of recursing forever.
func (c *Client[T]) GetWithMutex(ctx context.Context, id string, load Loader[T]) (*T, error) {
	key := c.keyPrefix + id
	lockName := c.lockPrefix + id

	for attempt := 0; ; attempt++ {
		e, err := c.read(ctx, key)
		if err != nil {
			return nil, err
		}
		if e != nil {
			if e.tombstone {
				return nil, nil
			}
			return e.value, nil
		}

		mu, err := c.locks.TryLock(ctx, lockName, c.opts.LockTTL)
		if err != nil {
			return nil, err
		}
		if mu == nil {
			if attempt >= c.opts.MaxRetries {
				return nil, ErrRebuildTimeout
			}
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.opts.RetryInterval):
			}
			continue
		}

		return c.rebuild(ctx, id, key, load, mu)
	}
}

func (c *Client[T]) rebuild(ctx context.Context, id, key string, load Loader[T], mu port.Mutex) (value *T, err error) {
	defer func() {
		if uerr := mu.Unlock(context.WithoutCancel(ctx)); uerr != nil {
			c.logger.Warn("release rebuild lock", zap.String("key", key), zap.Error(uerr))
		}
	}()

	// Another holder may have populated the entry while we were acquiring.
	e, err := c.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if e != nil {
		if e.tombstone {
			return nil, nil
		}
		return e.value, nil
	}

	value, err = load(ctx, id)
	if err != nil {
		return nil, err
	}
	if value == nil {
		if err := c.setTombstone(ctx, key); err != nil {
			return nil, err
		}
		return nil, nil
	}
	if err := c.Set(ctx, id, value); err != nil {
		return nil, err
	}
	return value, nil
}

// GetLogicalExpire is the never-blocking breakdown-guard read. A logically
// expired entry is returned as-is, and the reader that wins the rebuild
// lock schedules a detached refresh; everyone else just gets the stale
// value. Entries must be warmed with SetLogical first: an absent key means
// the id is not part of the preloaded set.
func (c *Client[T]) GetLogicalExpire(ctx context.Context, id string, load Loader[T]) (*T, error) {
	key := c.keyPrefix + id
	lockName := c.lockPrefix + id

	e, err := c.read(ctx, key)
	if err != nil {
		return nil, err
	}
	if e == nil || e.tombstone {
		return nil, nil
	}
	if e.expireAt.IsZero() || time.Now().Before(e.expireAt) {
		return e.value, nil
	}

	mu, err := c.locks.TryLock(ctx, lockName, c.opts.LockTTL)
	if err != nil {
		c.logger.Warn("acquire rebuild lock", zap.String("key", key), zap.Error(err))
		return e.value, nil
	}
	if mu != nil {
		// The rebuild outlives the request: it runs on its own context.
		submitted := c.pool.Submit(func() {
			rctx, cancel := context.WithTimeout(context.Background(), c.opts.RebuildTimeout)
			defer cancel()
			// The unlock must go through even when the load consumed the
			// whole rebuild budget and rctx is already expired.
			defer func() {
				if uerr := mu.Unlock(context.WithoutCancel(rctx)); uerr != nil {
					c.logger.Warn("release rebuild lock", zap.String("key", key), zap.Error(uerr))
				}
			}()

			fresh, err := load(rctx, id)
			if err != nil {
				c.logger.Error("rebuild load", zap.String("key", key), zap.Error(err))
				return
			}
			if fresh == nil {
				if err := c.setTombstone(rctx, key); err != nil {
					c.logger.Error("rebuild tombstone", zap.String("key", key), zap.Error(err))
				}
				return
			}
			if err := c.SetLogical(rctx, id, fresh, c.opts.TTL); err != nil {
				c.logger.Error("rebuild set", zap.String("key", key), zap.Error(err))
			}
		})
		if !submitted {
			if uerr := mu.Unlock(ctx); uerr != nil {
				c.logger.Warn("release rebuild lock", zap.String("key", key), zap.Error(uerr))
			}
		}
	}

	return e.value, nil
}
