package embeddings

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"math"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores query embeddings by key.
type Cache interface {
	Get(ctx context.Context, key string) ([]float32, bool, error)
	Set(ctx context.Context, key string, vector []float32) error
}

// LRUCache is an in-process Cache bounded by entry count.
type LRUCache struct {
	entries *lru.Cache[string, []float32]
}

// NewLRUCache creates an LRU cache holding up to size vectors.
func NewLRUCache(size int) (*LRUCache, error) {
	entries, err := lru.New[string, []float32](size)
	if err != nil {
		return nil, fmt.Errorf("%w: lru cache: %v", ErrInvalidConfig, err)
	}
	return &LRUCache{entries: entries}, nil
}

// Get returns the cached vector for key.
func (c *LRUCache) Get(_ context.Context, key string) ([]float32, bool, error) {
	v, ok := c.entries.Get(key)
	return v, ok, nil
}

// Set stores vector under key.
func (c *LRUCache) Set(_ context.Context, key string, vector []float32) error {
	c.entries.Add(key, vector)
	return nil
}

// Len returns the number of cached vectors.
func (c *LRUCache) Len() int {
	return c.entries.Len()
}

// RedisCache shares query embeddings between server replicas.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisCache connects to url (redis:// or rediss://) and verifies the
// connection with a ping.
func NewRedisCache(ctx context.Context, url string, ttl time.Duration) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("%w: redis url: %v", ErrInvalidConfig, err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("%w: connecting to redis: %v", ErrEmbeddingFailed, err)
	}

	return NewRedisCacheFromClient(client, ttl), nil
}

// NewRedisCacheFromClient wraps an existing client.
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl, prefix: "ragd:qemb:"}
}

// Get returns the cached vector for key.
func (c *RedisCache) Get(ctx context.Context, key string) ([]float32, bool, error) {
	raw, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	vector, err := decodeVector(raw)
	if err != nil {
		return nil, false, err
	}
	return vector, true, nil
}

// Set stores vector under key with the configured TTL.
func (c *RedisCache) Set(ctx context.Context, key string, vector []float32) error {
	return c.client.Set(ctx, c.prefix+key, encodeVector(vector), c.ttl).Err()
}

// Close closes the redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(buf []byte) ([]float32, error) {
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("corrupt cached vector of %d bytes", len(buf))
	}
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:]))
	}
	return v, nil
}

// CachedQuery memoizes EmbedQuery. Cache failures are logged and treated as
// misses; they never fail the query.
type CachedQuery struct {
	Provider
	cache   Cache
	model   string
	logger  *zap.Logger
	metrics *Metrics
}

// NewCachedQuery wraps p. model is part of the cache key so switching
// models never serves stale vectors.
func NewCachedQuery(p Provider, cache Cache, model string, logger *zap.Logger, metrics *Metrics) *CachedQuery {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedQuery{Provider: p, cache: cache, model: model, logger: logger, metrics: metrics}
}

// EmbedQuery returns the cached vector for text or embeds and caches it.
func (c *CachedQuery) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	key := CacheKey(c.model, text)

	cached, ok, err := c.cache.Get(ctx, key)
	switch {
	case err != nil:
		c.logger.Warn("query cache lookup failed", zap.Error(err))
		c.metrics.RecordCacheLookup(ctx, "error")
	case ok:
		c.metrics.RecordCacheLookup(ctx, "hit")
		return append([]float32(nil), cached...), nil
	default:
		c.metrics.RecordCacheLookup(ctx, "miss")
	}

	vector, err := c.Provider.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := c.cache.Set(ctx, key, append([]float32(nil), vector...)); err != nil {
		c.logger.Warn("query cache store failed", zap.Error(err))
	}
	return vector, nil
}

// Close closes the wrapped provider and the cache when it holds resources.
func (c *CachedQuery) Close() error {
	var cacheErr error
	if closer, ok := c.cache.(io.Closer); ok {
		cacheErr = closer.Close()
	}
	return errors.Join(c.Provider.Close(), cacheErr)
}

// CacheKey derives the cache key for a query under model.
func CacheKey(model, text string) string {
	sum := sha256.Sum256([]byte(model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
