package cache

import (
	"context"
	"time"
)

// TTL sentinels, following the Redis convention.
const (
	// TTLNoExpiry is returned for a key that exists without an expiry.
	TTLNoExpiry int64 = -1
	// TTLMissing is returned for a key that does not exist.
	TTLMissing int64 = -2
)

// Store is the key/value boundary of the cache layer. Implementations live
// under this package (redis, memory). All values are opaque strings; typed
// callers marshal on the way in and out.
type Store interface {
	// Get returns the value and true, or "" and false on a miss. A miss
	// is a normal return, not an error.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key with the given TTL, overwriting any
	// existing entry. ttl <= 0 stores without expiry.
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent and reports whether the
	// write happened.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Del removes the given keys and returns how many existed. Deleting
	// absent keys is not an error.
	Del(ctx context.Context, keys ...string) (int64, error)
	// Keys enumerates all keys matching a glob pattern.
	Keys(ctx context.Context, pattern string) ([]string, error)
	// TTL returns remaining seconds, TTLNoExpiry or TTLMissing.
	TTL(ctx context.Context, key string) (int64, error)
	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)
	// DBSize returns the total number of keys in the store.
	DBSize(ctx context.Context) (int64, error)
	// Info returns a driver-specific info block for the given section.
	Info(ctx context.Context, section string) (string, error)
	// HealthPing returns nil when the store is reachable.
	HealthPing(ctx context.Context) error
	Close() error
}
