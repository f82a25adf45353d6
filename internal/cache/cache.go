// Package cache is a two-tier cache: a bounded in-process map in front of a shared store.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/logging"
)

// ErrMiss is returned when a key is absent or expired
var ErrMiss = errors.New("cache miss")

const (
	DefaultLocalCapacity = 100
	DefaultTTL           = 5 * time.Minute
)

// RemoteStore is the shared tier
type RemoteStore interface {
	// Get returns the value and its expiry; a zero expiry means the entry never expires
	Get(ctx context.Context, key string) (string, time.Time, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr bumps the fixed-window counter for key and returns the new count and window end
	Incr(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)
}

type localEntry struct {
	key       string
	value     string
	expiresAt time.Time
}

// Cache checks the local tier first, then the remote one
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	order      *list.List
	capacity   int
	defaultTTL time.Duration
	remote     RemoteStore
	failMode   FailMode
	now        func() time.Time
	log        *logrus.Entry
}

// Option configures a Cache
type Option func(*Cache)

// WithCapacity bounds the local tier
func WithCapacity(n int) Option {
	return func(c *Cache) {
		if n > 0 {
			c.capacity = n
		}
	}
}

// WithDefaultTTL sets the TTL used when callers pass zero
func WithDefaultTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithFailMode sets how rate limit checks behave when the remote store fails
func WithFailMode(mode FailMode) Option {
	return func(c *Cache) {
		c.failMode = mode
	}
}

// New creates a cache. remote may be nil for a local-only cache.
func New(remote RemoteStore, opts ...Option) *Cache {
	c := &Cache{
		entries:    make(map[string]*list.Element),
		order:      list.New(),
		capacity:   DefaultLocalCapacity,
		defaultTTL: DefaultTTL,
		remote:     remote,
		failMode:   FailOpen,
		now:        time.Now,
		log:        logging.ForComponent("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewFromConfig creates a cache from configuration
func NewFromConfig(remote RemoteStore, cfg config.CacheConfig) (*Cache, error) {
	mode, err := ParseFailMode(cfg.RateLimitFailMode)
	if err != nil {
		return nil, err
	}
	return New(remote,
		WithCapacity(cfg.LocalCapacity),
		WithDefaultTTL(cfg.GetDefaultTTL()),
		WithFailMode(mode),
	), nil
}

// Get returns the value for key. A remote hit is copied into the local tier
// until the remote entry expires, capped at the default TTL.
func (c *Cache) Get(ctx context.Context, key string) (string, error) {
	if v, ok := c.getLocal(key); ok {
		return v, nil
	}
	if c.remote == nil {
		return "", ErrMiss
	}

	v, expiresAt, err := c.remote.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			c.log.WithError(err).WithField("key", key).Warn("Remote cache get failed")
		}
		return "", ErrMiss
	}

	ttl := c.defaultTTL
	if !expiresAt.IsZero() {
		remaining := expiresAt.Sub(c.now())
		if remaining <= 0 {
			return "", ErrMiss
		}
		if remaining < ttl {
			ttl = remaining
		}
	}
	c.setLocal(key, v, ttl)
	return v, nil
}

// Set writes key to both tiers. ttl <= 0 uses the default TTL.
func (c *Cache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.setLocal(key, value, ttl)
	if c.remote == nil {
		return nil
	}
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("remote cache set: %w", err)
	}
	return nil
}

// Delete removes key from both tiers
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
	c.mu.Unlock()

	if c.remote == nil {
		return nil
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		return fmt.Errorf("remote cache delete: %w", err)
	}
	return nil
}

// GetOrFetch decodes the cached JSON value for key into dest, or runs loader on a miss
// and caches its result. Loader errors are returned and nothing is cached.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, dest interface{}, loader func(ctx context.Context) (interface{}, error)) error {
	if raw, err := c.Get(ctx, key); err == nil {
		if err := json.Unmarshal([]byte(raw), dest); err == nil {
			return nil
		}
		c.log.WithField("key", key).Warn("Discarding undecodable cache entry")
	}

	value, err := loader(ctx)
	if err != nil {
		return err
	}

	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache value: %w", err)
	}
	if err := c.Set(ctx, key, string(encoded), ttl); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("Failed to cache loaded value")
	}
	return json.Unmarshal(encoded, dest)
}

// Len returns the number of live local entries
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cache) getLocal(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return "", false
	}
	entry := el.Value.(*localEntry)
	if !c.now().Before(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return "", false
	}
	return entry.value, true
}

// setLocal keeps insertion order: overwriting a key does not move it
func (c *Cache) setLocal(key, value string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	expiresAt := c.now().Add(ttl)
	if el, ok := c.entries[key]; ok {
		entry := el.Value.(*localEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return
	}

	for c.order.Len() >= c.capacity {
		oldest := c.order.Front()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*localEntry).key)
	}
	c.entries[key] = c.order.PushBack(&localEntry{key: key, value: value, expiresAt: expiresAt})
}
