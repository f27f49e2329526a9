package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/chandrahoro/reading-service/internal/model"
)

// Default TTL per cache class. The ordering is load-bearing: a generated
// reading never changes, the latest pointer moves daily, and list
// composition shifts with every new reading or filter.
const (
	ReadingTTL = 24 * time.Hour
	LatestTTL  = time.Hour
	ListTTL    = 5 * time.Minute
)

// ReadingCache is the typed wrapper over the KV store for the three cache
// classes: single reading, reading list, most-recent reading. Every get
// bumps exactly one of the injected hit/miss counters; a miss is a normal
// return value, never an error.
type ReadingCache struct {
	store Store
	stats *StatsSink
	log   zerolog.Logger
}

func NewReadingCache(store Store, stats *StatsSink, log zerolog.Logger) *ReadingCache {
	return &ReadingCache{store: store, stats: stats, log: log}
}

// Store exposes the underlying KV store for cross-cutting services.
func (c *ReadingCache) Store() Store { return c.store }

func (c *ReadingCache) getJSON(ctx context.Context, key string, out interface{}) (bool, error) {
	raw, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.stats.Miss()
		return false, err
	}
	if !found {
		c.stats.Miss()
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		// A corrupt entry behaves like a miss; drop it so the next
		// write starts clean.
		c.stats.Miss()
		_, _ = c.store.Del(ctx, key)
		c.log.Warn().Str("key", key).Err(err).Msg("dropping corrupt cache entry")
		return false, nil
	}
	c.stats.Hit()
	return true, nil
}

func (c *ReadingCache) setJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return c.store.Set(ctx, key, string(raw), ttl)
}

// GetReading returns the cached daily reading for (userID, date), or found
// == false on a miss.
func (c *ReadingCache) GetReading(ctx context.Context, userID, date string) (*model.Reading, bool, error) {
	var r model.Reading
	found, err := c.getJSON(ctx, ReadingKey(model.ReadingTypeDaily, userID, date), &r)
	if err != nil || !found {
		return nil, false, err
	}
	return &r, true, nil
}

// SetReading stores a reading under its (userID, date) key, last-writer-
// wins. The class default TTL applies unless an override is supplied.
func (c *ReadingCache) SetReading(ctx context.Context, userID, date string, r *model.Reading, ttlOverride ...time.Duration) error {
	ttl := ReadingTTL
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}
	return c.setJSON(ctx, ReadingKey(model.ReadingTypeDaily, userID, date), r, ttl)
}

// DeleteReading removes the single-reading entry. Deleting an absent key
// is not an error.
func (c *ReadingCache) DeleteReading(ctx context.Context, userID, date string) error {
	_, err := c.store.Del(ctx, ReadingKey(model.ReadingTypeDaily, userID, date))
	return err
}

// GetList returns the cached reading list for a user.
func (c *ReadingCache) GetList(ctx context.Context, userID string) ([]*model.Reading, bool, error) {
	var rs []*model.Reading
	found, err := c.getJSON(ctx, ListKey(userID), &rs)
	if err != nil || !found {
		return nil, false, err
	}
	return rs, true, nil
}

func (c *ReadingCache) SetList(ctx context.Context, userID string, rs []*model.Reading, ttlOverride ...time.Duration) error {
	ttl := ListTTL
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}
	return c.setJSON(ctx, ListKey(userID), rs, ttl)
}

func (c *ReadingCache) DeleteList(ctx context.Context, userID string) error {
	_, err := c.store.Del(ctx, ListKey(userID))
	return err
}

// GetLatest returns the cached most-recent reading for a user.
func (c *ReadingCache) GetLatest(ctx context.Context, userID string) (*model.Reading, bool, error) {
	var r model.Reading
	found, err := c.getJSON(ctx, LatestKey(userID), &r)
	if err != nil || !found {
		return nil, false, err
	}
	return &r, true, nil
}

func (c *ReadingCache) SetLatest(ctx context.Context, userID string, r *model.Reading, ttlOverride ...time.Duration) error {
	ttl := LatestTTL
	if len(ttlOverride) > 0 && ttlOverride[0] > 0 {
		ttl = ttlOverride[0]
	}
	return c.setJSON(ctx, LatestKey(userID), r, ttl)
}

func (c *ReadingCache) DeleteLatest(ctx context.Context, userID string) error {
	_, err := c.store.Del(ctx, LatestKey(userID))
	return err
}

// DeleteAllForUser removes a user's single-reading, list and latest entries
// in one logical operation. A failing class does not stop the remaining
// classes; the returned error names every class that failed.
func (c *ReadingCache) DeleteAllForUser(ctx context.Context, userID string) error {
	var failed []string

	keys, err := c.store.Keys(ctx, UserReadingPattern(userID))
	if err != nil {
		failed = append(failed, "reading")
	} else if len(keys) > 0 {
		if _, err := c.store.Del(ctx, keys...); err != nil {
			failed = append(failed, "reading")
		}
	}
	if _, err := c.store.Del(ctx, ListKey(userID)); err != nil {
		failed = append(failed, "list")
	}
	if _, err := c.store.Del(ctx, LatestKey(userID)); err != nil {
		failed = append(failed, "latest")
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: delete failed for classes: %s", model.ErrCacheUnavailable, strings.Join(failed, ", "))
	}
	return nil
}

// Exists reports whether a single-reading entry is cached.
func (c *ReadingCache) Exists(ctx context.Context, userID, date string) (bool, error) {
	return c.store.Exists(ctx, ReadingKey(model.ReadingTypeDaily, userID, date))
}

// EntryTTL returns the remaining TTL in seconds for a single-reading
// entry: TTLMissing when absent, TTLNoExpiry when stored without expiry.
func (c *ReadingCache) EntryTTL(ctx context.Context, userID, date string) (int64, error) {
	return c.store.TTL(ctx, ReadingKey(model.ReadingTypeDaily, userID, date))
}

// Stats snapshots the hit/miss counters at call time.
func (c *ReadingCache) Stats() model.CacheStats { return c.stats.Snapshot() }
