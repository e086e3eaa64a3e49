// Package cache provides the process-wide TTL cache fronting usage reads.
// Sync paths delete keys before re-fetching so readers never see stale data
// for a range that was just refreshed.
package cache

import (
	"fmt"
	"sync"
	"time"

	"github.com/wattsync/wattsync/pkg/models"
)

// DefaultTTL is how long cached reads stay valid
const DefaultTTL = 15 * time.Minute

// Cache is a TTL cache keyed by operation+contract+range strings
type Cache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]entry
}

type entry struct {
	value     interface{}
	expiresAt time.Time
}

// New creates a cache with the given TTL. A zero or negative TTL falls back
// to DefaultTTL.
func New(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		ttl:     ttl,
		entries: make(map[string]entry),
	}
}

// Get returns the cached value for key, or false if absent or expired
func (c *Cache) Get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores a value under key for the cache TTL
func (c *Cache) Set(key string, value interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Opportunistically drop expired entries so the map doesn't grow forever
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}

	c.entries[key] = entry{value: value, expiresAt: now.Add(c.ttl)}
}

// Delete removes a single key
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes all entries
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry)
}

// Len returns the number of entries, expired or not
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Key builders shared by the read and sync paths. Sync must delete exactly
// the keys the read path populates.

// AccountsKey is the cache key for account discovery
const AccountsKey = "accounts"

// HourlyKey keys a contract's hourly breakdown for one date
func HourlyKey(contractID string, date time.Time) string {
	return fmt.Sprintf("hourly:%s:%s", contractID, date.Format(models.DateLayout))
}

// MonthlyKey keys a contract's monthly range query
func MonthlyKey(contractID, startMonth, endMonth string) string {
	return fmt.Sprintf("monthly:%s:%s:%s", contractID, startMonth, endMonth)
}

// SummaryKey keys a contract's summary view
func SummaryKey(contractID string) string {
	return fmt.Sprintf("summary:%s", contractID)
}
