package memory

import (
	"fmt"
	"log"
	"time"

	"github.com/dgraph-io/ristretto"
)

// messageCategory is the coarse classification a context build is
// cached under. The set is closed so invalidation can enumerate it.
type messageCategory string

const (
	categorySimple  messageCategory = "simple"
	categoryComplex messageCategory = "complex"
	categoryTopical messageCategory = "topical"
)

var allCategories = []messageCategory{categorySimple, categoryComplex, categoryTopical}

// contextCache is the time-windowed context store shared across users.
// ristretto handles concurrent access and TTL expiry; entries are
// additionally invalidated write-through on the next recorded turn.
type contextCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

func newContextCache(ttl time.Duration) (*contextCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 24,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create context cache: %w", err)
	}
	return &contextCache{cache: c, ttl: ttl}, nil
}

func cacheKey(userID string, cat messageCategory) string {
	return userID + "|" + string(cat)
}

// get returns a fresh cached context, or "" on miss or expiry.
func (c *contextCache) get(userID string, cat messageCategory) (string, bool) {
	v, ok := c.cache.Get(cacheKey(userID, cat))
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// set stores an assembled context under (user, category). Wait makes
// the entry visible to the next lookup rather than eventually.
func (c *contextCache) set(userID string, cat messageCategory, context string) {
	c.cache.SetWithTTL(cacheKey(userID, cat), context, int64(len(context)), c.ttl)
	c.cache.Wait()
}

// invalidateUser drops every category entry for the user. Called on
// each recorded turn so a hit never reflects context older than the
// most recent exchange.
func (c *contextCache) invalidateUser(userID string) {
	for _, cat := range allCategories {
		c.cache.Del(cacheKey(userID, cat))
	}
	c.cache.Wait()
	log.Printf("[CACHE] Invalidated context entries for user=%s", userID)
}

func (c *contextCache) close() {
	c.cache.Close()
}
