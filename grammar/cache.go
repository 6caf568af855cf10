package grammar

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// cacheTTL bounds how long a compiled grammar's source text stays in
// Redis; stale entries simply get recompiled.
const cacheTTL = 24 * time.Hour

// Cache memoizes Compile results keyed by a hash of the input schema,
// so repeated structured-output requests against the same shape avoid
// recompiling the grammar. It prefers Redis when configured (shared
// across worker restarts and, if multiple workers point at the same
// instance, across processes) and otherwise falls back to an
// in-process map — the same optional-with-fallback shape the gateway
// this design is based on uses for its own Redis client.
type Cache struct {
	logger zerolog.Logger

	redis *redis.Client

	mu    sync.RWMutex
	local map[string]string
}

// NewCache builds a Cache. redisURL may be empty, in which case only
// the in-process map is used.
func NewCache(logger zerolog.Logger, redisURL string) *Cache {
	c := &Cache{logger: logger, local: make(map[string]string)}

	if redisURL == "" {
		return c
	}

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		logger.Warn().Err(err).Msg("invalid grammar cache REDIS_URL, falling back to in-process cache")
		return c
	}
	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn().Err(err).Msg("grammar cache Redis unreachable, falling back to in-process cache")
		return c
	}

	c.redis = client
	return c
}

// Key hashes a schema to a stable cache key. Schema doesn't implement
// a custom marshaler so this relies on JSON field order from the
// struct definition being stable, which it is.
func Key(schema Schema) string {
	b, _ := json.Marshal(schema)
	sum := sha256.Sum256(b)
	return "grammar:" + hex.EncodeToString(sum[:16])
}

// Get returns a previously compiled grammar's source text for key, if
// present.
func (c *Cache) Get(ctx context.Context, key string) (string, bool) {
	if c.redis != nil {
		val, err := c.redis.Get(ctx, key).Result()
		if err == nil {
			return val, true
		}
		if err != redis.Nil {
			c.logger.Debug().Err(err).Msg("grammar cache redis GET failed, checking local fallback")
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	src, ok := c.local[key]
	return src, ok
}

// Put stores a compiled grammar's source text under key.
func (c *Cache) Put(ctx context.Context, key, source string) {
	if c.redis != nil {
		if err := c.redis.Set(ctx, key, source, cacheTTL).Err(); err != nil {
			c.logger.Debug().Err(err).Msg("grammar cache redis SET failed, writing local fallback only")
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.local[key] = source
}

// CompileCached is Compile with cache-aside semantics: a hit skips
// recompilation entirely and returns a Grammar built from the cached
// source alone (the opaque Compiled handle is cheap to rebuild — the
// engine never inspects it).
func (c *Cache) CompileCached(ctx context.Context, schema Schema) (Grammar, error) {
	key := Key(schema)
	if src, ok := c.Get(ctx, key); ok {
		return Grammar{Source: src, Compiled: &Compiled{source: src}}, nil
	}

	g, err := Compile(schema)
	if err != nil {
		return Grammar{}, err
	}
	c.Put(ctx, key, g.Source)
	return g, nil
}
