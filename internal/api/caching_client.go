package api

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/vilaca/reciprocity-bot/internal/clock"
	"github.com/vilaca/reciprocity-bot/internal/domain"
)

// CachingClient wraps a ProfileClient with a TTL cache.
type CachingClient struct {
	client ProfileClient
	cache  *cache
	logger *slog.Logger
}

// NewCachingClient creates a new caching wrapper around client.
func NewCachingClient(client ProfileClient, ttl time.Duration, clk clock.Clock, logger *slog.Logger) *CachingClient {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingClient{
		client: client,
		cache:  newCache(ttl, clk),
		logger: logger,
	}
}

// GetUser retrieves an owner profile with caching.
func (c *CachingClient) GetUser(ctx context.Context, login string) (*domain.OwnerProfile, error) {
	key := fmt.Sprintf("GetUser:%s", login)

	if cached, found := c.cache.get(key); found {
		if profile, ok := cached.(*domain.OwnerProfile); ok {
			c.logger.Debug("cache hit", "key", key)
			return profile, nil
		}
	}

	profile, err := c.client.GetUser(ctx, login)
	if err != nil {
		return nil, err
	}

	c.cache.set(key, profile)
	return profile, nil
}

// HasReadme checks for a README with caching.
func (c *CachingClient) HasReadme(ctx context.Context, fullName string) (bool, error) {
	key := fmt.Sprintf("HasReadme:%s", fullName)

	if cached, found := c.cache.get(key); found {
		if present, ok := cached.(bool); ok {
			c.logger.Debug("cache hit", "key", key)
			return present, nil
		}
	}

	present, err := c.client.HasReadme(ctx, fullName)
	if err != nil {
		return false, err
	}

	c.cache.set(key, present)
	return present, nil
}

// Len returns the number of live cache entries.
func (c *CachingClient) Len() int {
	return c.cache.len()
}

// cache implements a thread-safe TTL cache. Expired entries are pruned
// on write rather than by a background goroutine.
type cache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	duration time.Duration
	clock    clock.Clock
}

// cacheEntry holds a cached value with expiry time.
type cacheEntry struct {
	value     interface{}
	expiresAt time.Time
}

func newCache(duration time.Duration, clk clock.Clock) *cache {
	return &cache{
		entries:  make(map[string]*cacheEntry),
		duration: duration,
		clock:    clk,
	}
}

func (c *cache) get(key string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.entries[key]
	if !exists {
		return nil, false
	}
	if !c.clock.Now().Before(entry.expiresAt) {
		return nil, false
	}
	return entry.value, true
}

func (c *cache) set(key string, value interface{}) {
	if c.duration <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	for k, entry := range c.entries {
		if !now.Before(entry.expiresAt) {
			delete(c.entries, k)
		}
	}

	c.entries[key] = &cacheEntry{
		value:     value,
		expiresAt: now.Add(c.duration),
	}
}

func (c *cache) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	now := c.clock.Now()
	count := 0
	for _, entry := range c.entries {
		if now.Before(entry.expiresAt) {
			count++
		}
	}
	return count
}
