// Package cache holds the Redis-backed embedding cache. Re-processing a
// document or re-asking a similar query then skips the round trip to the
// agent service.
package cache

import (
	"context"
	"encoding/hex"
	"strings"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/redis/go-redis/v9"
	"github.com/zeebo/blake3"
)

const keyPrefix = "medgate:embed:"

type entry struct {
	Embedding []float32 `cbor:"1,keyasint"`
	Model     string    `cbor:"2,keyasint"`
}

type EmbedCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewEmbedCache wraps rdb; a nil client degrades to a cache that always
// misses, so callers need no special casing when Redis is absent.
func NewEmbedCache(rdb *redis.Client, ttl time.Duration) *EmbedCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &EmbedCache{rdb: rdb, ttl: ttl}
}

// Key derives the cache key from the text. Whitespace is collapsed first
// so trivially reformatted text hits the same entry.
func Key(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")
	sum := blake3.Sum256([]byte(normalized))
	return keyPrefix + hex.EncodeToString(sum[:])
}

func (c *EmbedCache) Get(ctx context.Context, text string) ([]float32, bool) {
	if c == nil || c.rdb == nil {
		return nil, false
	}
	raw, err := c.rdb.Get(ctx, Key(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var e entry
	if err := cbor.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	return e.Embedding, true
}

func (c *EmbedCache) Put(ctx context.Context, text string, embedding []float32, model string) {
	if c == nil || c.rdb == nil {
		return
	}
	raw, err := cbor.Marshal(entry{Embedding: embedding, Model: model})
	if err != nil {
		return
	}
	c.rdb.Set(ctx, Key(text), raw, c.ttl)
}
