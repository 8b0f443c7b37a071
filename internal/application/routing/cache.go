package routing

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
)

const (
	defaultNumCounters = 1e5
	defaultMaxCost     = 1 << 20
	defaultBufferItems = 64
	defaultCacheTTL    = 10 * time.Minute

	keyPrefix = "route"
)

// ClassificationCache memoizes model classifications by normalized message text.
type ClassificationCache struct {
	cache *ristretto.Cache
	ttl   time.Duration

	hits   atomic.Int64
	misses atomic.Int64
}

// NewClassificationCache creates the cache. A non-positive ttl uses the default.
func NewClassificationCache(ttl time.Duration) (*ClassificationCache, error) {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: defaultNumCounters,
		MaxCost:     defaultMaxCost,
		BufferItems: defaultBufferItems,
	})
	if err != nil {
		return nil, err
	}
	return &ClassificationCache{cache: c, ttl: ttl}, nil
}

// Get returns a cached classification.
func (c *ClassificationCache) Get(key string) (ModelClassification, bool) {
	if c == nil {
		return ModelClassification{}, false
	}
	v, ok := c.cache.Get(key)
	if !ok {
		c.misses.Add(1)
		return ModelClassification{}, false
	}
	mc, ok := v.(ModelClassification)
	if !ok {
		c.misses.Add(1)
		return ModelClassification{}, false
	}
	c.hits.Add(1)
	return mc, true
}

// Set stores a classification. Writes are asynchronous.
func (c *ClassificationCache) Set(key string, mc ModelClassification) {
	if c == nil {
		return
	}
	c.cache.SetWithTTL(key, mc, int64(len(key)+len(mc.Topic)+64), c.ttl)
}

// Wait blocks until pending writes are applied.
func (c *ClassificationCache) Wait() {
	if c != nil {
		c.cache.Wait()
	}
}

// Stats returns hit and miss counters.
func (c *ClassificationCache) Stats() (hits, misses int64) {
	if c == nil {
		return 0, 0
	}
	return c.hits.Load(), c.misses.Load()
}

func (c *ClassificationCache) Close() {
	if c != nil {
		c.cache.Close()
	}
}

// CacheKey normalizes the message (case, whitespace) and hashes it together
// with the optional conversation context.
func CacheKey(message, context string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(message)), " ")
	h := sha256.Sum256([]byte(normalized + "\x00" + context))
	return keyPrefix + ":" + hex.EncodeToString(h[:16])
}
