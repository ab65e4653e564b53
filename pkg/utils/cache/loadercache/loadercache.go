package loadercache

import (
	"context"
	"sync"
	"time"

	"github.com/mpapenbr/timing-service-go/log"
	"github.com/mpapenbr/timing-service-go/pkg/utils/cache"
)

// based on github.com/kittpat1413/go-common/framework/cache/localcache/localcache.go

type (
	Option[K comparable, V any] func(*config[K, V])
	item[T any]                 struct {
		data      T
		loaded    time.Time
		expires   time.Time
		permanent bool
	}
	LoaderFunc[K comparable, V any] func(ctx context.Context, key K) (*V, error)
	// LifetimeFunc returns the expiration of a loaded entry.
	// A negative value keeps the entry until it is invalidated or evicted.
	LifetimeFunc[K comparable, V any] func(key K, v *V) time.Duration
	config[K comparable, V any]       struct {
		expiration time.Duration
		lifetime   LifetimeFunc[K, V]
		maxEntries int
		loader     LoaderFunc[K, V]
		clock      func() time.Time
		l          *log.Logger
	}
	loaderCache[K comparable, V any] struct {
		mutex  sync.Mutex
		items  map[K]item[*V]
		config *config[K, V]
	}
)

func WithExpiration[K comparable, V any](expiration time.Duration) Option[K, V] {
	return func(c *config[K, V]) {
		c.expiration = expiration
	}
}

// WithLifetime overrides the expiration per entry
func WithLifetime[K comparable, V any](lf LifetimeFunc[K, V]) Option[K, V] {
	return func(c *config[K, V]) {
		c.lifetime = lf
	}
}

// WithMaxEntries evicts the least recently loaded entry once the limit is reached
func WithMaxEntries[K comparable, V any](n int) Option[K, V] {
	return func(c *config[K, V]) {
		c.maxEntries = n
	}
}

func WithLoader[K comparable, V any](lf LoaderFunc[K, V]) Option[K, V] {
	return func(c *config[K, V]) {
		c.loader = lf
	}
}

func WithClock[K comparable, V any](clock func() time.Time) Option[K, V] {
	return func(c *config[K, V]) {
		c.clock = clock
	}
}

func WithLogger[K comparable, V any](arg *log.Logger) Option[K, V] {
	return func(c *config[K, V]) {
		c.l = arg
	}
}

// New creates a cache that loads missing or expired entries with the loader.
// Failed loads are not cached.
func New[K comparable, V any](opts ...Option[K, V]) cache.Cache[K, V] {
	c := &config[K, V]{
		expiration: 30 * time.Second,
		clock:      time.Now,
		l:          log.Default().Named("cache"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return &loaderCache[K, V]{
		items:  make(map[K]item[*V]),
		config: c,
	}
}

func (c *loaderCache[K, V]) Get(ctx context.Context, key K) (*V, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	if cacheItem, ok := c.items[key]; ok {
		if !cacheItem.permanent && !cacheItem.expires.After(c.config.clock()) {
			delete(c.items, key)
			return c.load(ctx, key)
		}
		return cacheItem.data, nil
	}
	return c.load(ctx, key)
}

func (c *loaderCache[K, V]) load(ctx context.Context, key K) (*V, error) {
	if c.config.loader == nil {
		return nil, cache.ErrCacheMiss
	}
	c.config.l.Debug("loading entry", log.Any("key", key))
	v, err := c.config.loader(ctx, key)
	if err != nil {
		c.config.l.Warn("error loading entry", log.Any("key", key), log.ErrorField(err))
		return nil, err
	}
	now := c.config.clock()
	expiration := c.config.expiration
	if c.config.lifetime != nil {
		expiration = c.config.lifetime(key, v)
	}
	c.evict()
	c.items[key] = item[*V]{
		data:      v,
		loaded:    now,
		expires:   now.Add(expiration),
		permanent: expiration < 0,
	}
	return v, nil
}

// evict makes room for one more entry
func (c *loaderCache[K, V]) evict() {
	if c.config.maxEntries <= 0 {
		return
	}
	for len(c.items) >= c.config.maxEntries {
		var oldest K
		first := true
		for k, v := range c.items {
			if first || v.loaded.Before(c.items[oldest].loaded) {
				oldest, first = k, false
			}
		}
		delete(c.items, oldest)
		c.config.l.Debug("evicted", log.Any("key", oldest))
	}
}

func (c *loaderCache[K, V]) Invalidate(ctx context.Context, key K) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	delete(c.items, key)
	c.config.l.Debug("invalidated", log.Any("key", key), log.Int("remaining", len(c.items)))
}

func (c *loaderCache[K, V]) InvalidateAll(ctx context.Context) {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	clear(c.items)
}
