// Package cache implements the result cache that sits in front of every
// provider call. The KV store is authoritative; an in-process mirror keeps
// recent entries in insertion order and bounds the working set.
package cache

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/globaltime"
	"horse.fit/chatsense/internal/kvstore"
)

const (
	DefaultTTL        = 24 * time.Hour
	DefaultRetention  = 7 * 24 * time.Hour
	DefaultMaxEntries = 500

	// evictFraction of the mirror is dropped, oldest first, when it is full.
	evictFraction = 0.3
)

type Options struct {
	TTL        time.Duration
	Retention  time.Duration
	MaxEntries int
	Clock      globaltime.Clock
	Logger     zerolog.Logger
}

// Stats is a point-in-time view of cache activity.
type Stats struct {
	Entries   int   `json:"entries"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	StaleHits int64 `json:"stale_hits"`
	Writes    int64 `json:"writes"`
	Evictions int64 `json:"evictions"`
}

type Cache struct {
	store     kvstore.Store
	codec     *codec
	clock     globaltime.Clock
	log       zerolog.Logger
	ttl       time.Duration
	retention time.Duration
	max       int

	mu     sync.Mutex
	order  *list.List
	mirror map[string]*list.Element
	stats  Stats
}

func New(store kvstore.Store, opts Options) (*Cache, error) {
	if store == nil {
		return nil, fmt.Errorf("kv store is required")
	}
	c, err := newCodec()
	if err != nil {
		return nil, err
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Retention < opts.TTL {
		opts.Retention = max(DefaultRetention, opts.TTL)
	}
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	return &Cache{
		store:     store,
		codec:     c,
		clock:     globaltime.OrSystem(opts.Clock),
		log:       opts.Logger,
		ttl:       opts.TTL,
		retention: opts.Retention,
		max:       opts.MaxEntries,
		order:     list.New(),
		mirror:    make(map[string]*list.Element, opts.MaxEntries),
	}, nil
}

// TTL is the freshness window applied when Put is given no explicit TTL.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Get returns a fresh entry's result. KV failures count as misses.
func (c *Cache) Get(ctx context.Context, key string) (analysis.Result, bool) {
	now := c.clock.Now()
	entry, ok := c.lookup(ctx, key)
	if !ok || !entry.Fresh(now) {
		c.mu.Lock()
		c.stats.Misses++
		c.mu.Unlock()
		return analysis.Result{}, false
	}
	c.mu.Lock()
	c.stats.Hits++
	c.mu.Unlock()
	return entry.Result.Clone(), true
}

// GetStale returns an entry regardless of its TTL, as long as the store still
// retains it. The entry's creation time is returned alongside.
func (c *Cache) GetStale(ctx context.Context, key string) (analysis.Result, time.Time, bool) {
	entry, ok := c.lookup(ctx, key)
	if !ok {
		return analysis.Result{}, time.Time{}, false
	}
	c.mu.Lock()
	c.stats.StaleHits++
	c.mu.Unlock()
	return entry.Result.Clone(), entry.CreatedAt, true
}

// Put stores result under key. ttl <= 0 uses the default TTL.
func (c *Cache) Put(ctx context.Context, key string, result analysis.Result, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.ttl
	}
	stored := result.Clone()
	stored.FromCache = false
	stored.Attempts = nil
	entry := Entry{
		Key:       key,
		Result:    stored,
		CreatedAt: c.clock.Now(),
		TTL:       ttl,
	}
	data, err := c.codec.encode(entry)
	if err != nil {
		return err
	}

	evicted := c.remember(entry)
	for _, old := range evicted {
		if err := c.store.Delete(ctx, old); err != nil {
			c.log.Warn().Err(err).Str("key", old).Msg("Failed to delete evicted cache entry")
		}
	}
	// Rows left by earlier processes are invisible to the mirror and only
	// leave the store once their retention runs out.
	if len(evicted) > 0 {
		if _, err := c.PurgeExpired(ctx); err != nil {
			c.log.Warn().Err(err).Msg("Failed to purge expired cache entries")
		}
	}

	if err := c.store.Set(ctx, key, data, max(ttl, c.retention)); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	c.mu.Lock()
	c.stats.Writes++
	c.mu.Unlock()
	return nil
}

// Clear removes every analysis entry from the mirror and the store.
func (c *Cache) Clear(ctx context.Context) (int64, error) {
	c.mu.Lock()
	mirrored := int64(len(c.mirror))
	c.order.Init()
	c.mirror = make(map[string]*list.Element, c.max)
	c.mu.Unlock()

	removed, err := c.store.DeletePrefix(ctx, KeyPrefix)
	if err != nil {
		return mirrored, fmt.Errorf("clear cache store: %w", err)
	}
	return max(removed, mirrored), nil
}

// PurgeExpired drops store entries whose retention has passed.
func (c *Cache) PurgeExpired(ctx context.Context) (int64, error) {
	removed, err := c.store.PurgeExpired(ctx)
	if err != nil {
		return 0, fmt.Errorf("purge cache store: %w", err)
	}
	if removed > 0 {
		c.log.Debug().Int64("removed", removed).Msg("Purged expired cache entries")
	}
	return removed, nil
}

// Len is the number of entries held by the in-process mirror.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.mirror)
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := c.stats
	out.Entries = len(c.mirror)
	return out
}

func (c *Cache) Close() {
	c.codec.close()
}

func (c *Cache) lookup(ctx context.Context, key string) (Entry, bool) {
	c.mu.Lock()
	if el, ok := c.mirror[key]; ok {
		entry := el.Value.(Entry)
		c.mu.Unlock()
		return entry, true
	}
	c.mu.Unlock()

	data, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Cache store read failed")
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}
	entry, err := c.codec.decode(data)
	if err != nil {
		c.log.Warn().Err(err).Str("key", key).Msg("Dropping undecodable cache entry")
		_ = c.store.Delete(ctx, key)
		return Entry{}, false
	}

	// Warm the mirror without evicting: a read should not push out newer writes.
	c.mu.Lock()
	if _, exists := c.mirror[key]; !exists && len(c.mirror) < c.max {
		c.mirror[key] = c.order.PushBack(entry)
	}
	c.mu.Unlock()
	return entry, true
}

// remember inserts entry into the mirror and returns the keys evicted to
// make room.
func (c *Cache) remember(entry Entry) []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.mirror[entry.Key]; ok {
		c.order.Remove(el)
		delete(c.mirror, entry.Key)
	}

	var evicted []string
	if len(c.mirror) >= c.max {
		n := max(1, int(float64(c.max)*evictFraction))
		for i := 0; i < n; i++ {
			front := c.order.Front()
			if front == nil {
				break
			}
			old := c.order.Remove(front).(Entry)
			delete(c.mirror, old.Key)
			evicted = append(evicted, old.Key)
		}
		c.stats.Evictions += int64(len(evicted))
	}

	c.mirror[entry.Key] = c.order.PushBack(entry)
	return evicted
}
