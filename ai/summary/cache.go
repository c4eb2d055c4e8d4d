package summary

import (
	"context"
	"math"
	"time"

	"github.com/hrygo/reviewsense/ai/core/errs"
	"github.com/hrygo/reviewsense/store"
)

// DefaultTTL is how long a generated summary stays fresh.
const DefaultTTL = 7 * 24 * time.Hour

// Cache lookup results reported to a Recorder.
const (
	LookupHit   = "hit"
	LookupMiss  = "miss"
	LookupStale = "stale"
)

// Store persists one summary record per key. Implemented by *store.Store
// and the Redis summary store.
type Store interface {
	GetReviewSummary(ctx context.Context, key string) (*store.ReviewSummary, error)
	UpsertReviewSummary(ctx context.Context, upsert *store.UpsertReviewSummary) (*store.ReviewSummary, error)
}

// CachedSummary is the latest summary stored for a key.
type CachedSummary struct {
	Key         string
	Content     string
	GeneratedAt time.Time
	ExpiresAt   time.Time
}

// IsFresh reports whether the summary may be served at now.
func (s *CachedSummary) IsFresh(now time.Time) bool {
	return now.Before(s.ExpiresAt)
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithDefaultTTL sets the TTL used when Put is given a non-positive one.
func WithDefaultTTL(ttl time.Duration) CacheOption {
	return func(c *Cache) {
		if ttl > 0 {
			c.defaultTTL = ttl
		}
	}
}

// WithCacheRecorder attaches a metrics recorder.
func WithCacheRecorder(r Recorder) CacheOption {
	return func(c *Cache) {
		c.recorder = r
	}
}

// Cache is a time-bounded summary cache over a Store.
//
// Timestamps are stored as unix nanoseconds, so the stored expiry is
// exactly generatedAt+ttl.
type Cache struct {
	store      Store
	defaultTTL time.Duration
	recorder   Recorder
}

// NewCache creates a Cache backed by s.
func NewCache(s Store, opts ...CacheOption) *Cache {
	c := &Cache{
		store:      s,
		defaultTTL: DefaultTTL,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the record for key regardless of freshness, or nil when
// absent.
func (c *Cache) Get(ctx context.Context, key string) (*CachedSummary, error) {
	if key == "" {
		return nil, errs.InvalidInput("summary.get", "key is empty")
	}

	rec, err := c.store.GetReviewSummary(ctx, key)
	if err != nil {
		c.observeStoreError("get")
		return nil, errs.StoreUnavailable("summary.get", err)
	}
	if rec == nil {
		return nil, nil
	}

	return &CachedSummary{
		Key:         rec.Key,
		Content:     rec.Content,
		GeneratedAt: time.Unix(0, rec.GeneratedNs),
		ExpiresAt:   time.Unix(0, rec.ExpiresNs),
	}, nil
}

// GetFresh returns the content for key only if it has not expired at now.
// A store failure is an error, never a miss.
func (c *Cache) GetFresh(ctx context.Context, key string, now time.Time) (string, bool, error) {
	rec, err := c.Get(ctx, key)
	if err != nil {
		return "", false, err
	}

	switch {
	case rec == nil:
		c.observeLookup(LookupMiss)
		return "", false, nil
	case !rec.IsFresh(now):
		c.observeLookup(LookupStale)
		return "", false, nil
	default:
		c.observeLookup(LookupHit)
		return rec.Content, true, nil
	}
}

// Put stores content for key, replacing any previous record. The record
// expires at generatedAt+ttl; a non-positive ttl uses the default.
func (c *Cache) Put(ctx context.Context, key, content string, generatedAt time.Time, ttl time.Duration) error {
	if key == "" {
		return errs.InvalidInput("summary.put", "key is empty")
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	expiresAt := generatedAt.Add(ttl)
	if !representable(generatedAt) || !representable(expiresAt) {
		return errs.InvalidInput("summary.put", "generatedAt+ttl is outside the storable time range")
	}

	if _, err := c.store.UpsertReviewSummary(ctx, &store.UpsertReviewSummary{
		Key:         key,
		Content:     content,
		GeneratedNs: generatedAt.UnixNano(),
		ExpiresNs:   expiresAt.UnixNano(),
	}); err != nil {
		c.observeStoreError("put")
		return errs.StoreUnavailable("summary.put", err)
	}
	return nil
}

var (
	minStorableTime = time.Unix(0, math.MinInt64)
	maxStorableTime = time.Unix(0, math.MaxInt64)
)

// representable reports whether t fits in int64 unix nanoseconds.
func representable(t time.Time) bool {
	return !t.Before(minStorableTime) && !t.After(maxStorableTime)
}

func (c *Cache) observeLookup(result string) {
	if c.recorder != nil {
		c.recorder.ObserveCacheLookup(result)
	}
}

func (c *Cache) observeStoreError(op string) {
	if c.recorder != nil {
		c.recorder.ObserveStoreError(op)
	}
}
