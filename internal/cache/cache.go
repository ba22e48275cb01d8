package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Options tunes the adaptive TTL behavior.
type Options struct {
	// BaseTTL applies when Set is called with a zero TTL.
	BaseTTL time.Duration

	// HotThreshold is the number of hits within Window after which an
	// entry's TTL is extended.
	HotThreshold int

	// Window is the rolling period over which hits are counted.
	Window time.Duration

	// MaxTTL caps adaptive extension; MinTTL floors adaptive shrinking.
	MaxTTL time.Duration
	MinTTL time.Duration

	// Shards spreads keys over independently locked maps.
	Shards int
}

func (o *Options) applyDefaults() {
	if o.BaseTTL == 0 {
		o.BaseTTL = 5 * time.Minute
	}
	if o.HotThreshold == 0 {
		o.HotThreshold = 3
	}
	if o.Window == 0 {
		o.Window = o.BaseTTL
	}
	if o.MaxTTL == 0 {
		o.MaxTTL = 4 * o.BaseTTL
	}
	if o.MinTTL == 0 {
		o.MinTTL = o.BaseTTL / 4
	}
	if o.Shards == 0 {
		o.Shards = 16
	}
}

// Stats exposes hit-rate counters for external monitoring.
type Stats struct {
	Requests int64   `json:"requests"`
	Hits     int64   `json:"hits"`
	Misses   int64   `json:"misses"`
	HitRate  float64 `json:"hit_rate"`
}

type entry struct {
	value          any
	ttl            time.Duration
	expiresAt      time.Time
	windowStart    time.Time
	windowHits     int
	readSinceWrite bool
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Cache is a read-through cache whose per-key TTL adapts to hit frequency.
// Keys are spread over sharded maps so unrelated queries never contend on a
// single lock.
type Cache struct {
	opts   Options
	shards []*shard
	group  singleflight.Group

	requests atomic.Int64
	hits     atomic.Int64
	misses   atomic.Int64
}

// New creates a cache with the given options.
func New(opts Options) *Cache {
	opts.applyDefaults()
	shards := make([]*shard, opts.Shards)
	for i := range shards {
		shards[i] = &shard{entries: make(map[string]*entry)}
	}
	return &Cache{opts: opts, shards: shards}
}

func (c *Cache) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[int(h.Sum32())%len(c.shards)]
}

// Get returns the cached value for key, if present and fresh. Frequent hits
// within the rolling window extend the entry's TTL up to the configured cap.
func (c *Cache) Get(key string) (any, bool) {
	c.requests.Add(1)
	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	now := time.Now()
	if now.After(e.expiresAt) {
		delete(s.entries, key)
		c.misses.Add(1)
		return nil, false
	}

	c.hits.Add(1)
	e.readSinceWrite = true

	if now.Sub(e.windowStart) > c.opts.Window {
		e.windowStart = now
		e.windowHits = 0
	}
	e.windowHits++

	if e.windowHits >= c.opts.HotThreshold && e.ttl < c.opts.MaxTTL {
		e.ttl *= 2
		if e.ttl > c.opts.MaxTTL {
			e.ttl = c.opts.MaxTTL
		}
		e.expiresAt = now.Add(e.ttl)
		e.windowHits = 0
		log.Trace().Str("key", key).Dur("ttl", e.ttl).Msg("Extended cache TTL for hot key")
	}

	return e.value, true
}

// Set stores a value. A key that saw no reads since its last write has its
// TTL shrunk toward the floor; otherwise the previously adapted TTL is kept.
func (c *Cache) Set(key string, value any, baseTTL time.Duration) {
	if baseTTL == 0 {
		baseTTL = c.opts.BaseTTL
	}

	s := c.shardFor(key)
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ttl := baseTTL
	if prev, ok := s.entries[key]; ok {
		if prev.readSinceWrite {
			ttl = prev.ttl
		} else {
			ttl = prev.ttl / 2
			if ttl < c.opts.MinTTL {
				ttl = c.opts.MinTTL
			}
			log.Trace().Str("key", key).Dur("ttl", ttl).Msg("Reduced cache TTL for cold key")
		}
	}

	s.entries[key] = &entry{
		value:       value,
		ttl:         ttl,
		expiresAt:   now.Add(ttl),
		windowStart: now,
	}
}

// Invalidate removes a key.
func (c *Cache) Invalidate(key string) {
	s := c.shardFor(key)
	s.mu.Lock()
	delete(s.entries, key)
	s.mu.Unlock()
}

// Do returns the cached value for key or fills it with exactly one call,
// collapsing concurrent misses for the same key into a single fill.
func (c *Cache) Do(ctx context.Context, key string, baseTTL time.Duration, fill func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		// A concurrent filler may have completed while we queued.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fill(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, baseTTL)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// Stats returns hit-rate counters.
func (c *Cache) Stats() Stats {
	st := Stats{
		Requests: c.requests.Load(),
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
	}
	if st.Requests > 0 {
		st.HitRate = float64(st.Hits) / float64(st.Requests)
	}
	return st
}
