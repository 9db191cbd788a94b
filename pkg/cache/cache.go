package cache

import "time"

// Cache is the interface for short-lived lookup state: venue fee schedules
// (24h TTL) and recent-order idempotency records (60s TTL).
type Cache interface {
	// Get retrieves a value from the cache.
	// Returns (value, true) if found, (nil, false) if not found.
	Get(key string) (interface{}, bool)

	// Set stores a value in the cache with a TTL.
	Set(key string, value interface{}, ttl time.Duration) bool

	// Delete removes a value from the cache.
	Delete(key string)

	// Clear removes all values from the cache.
	Clear()

	// Wait blocks until pending writes are applied. Callers that read their
	// own writes (the idempotency path) must Wait after Set.
	Wait()

	// Close closes the cache and releases resources.
	Close()
}
