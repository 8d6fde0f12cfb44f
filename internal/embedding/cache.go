package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedEmbedder memoizes another embedder in Redis, keyed by a hash of the text.
// Cache errors never fail an embedding; the wrapped embedder is called instead.
type CachedEmbedder struct {
	next   Embedder
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewCachedEmbedder wraps next. The namespace should identify the provider and
// model so vectors of different models never mix.
func NewCachedEmbedder(next Embedder, rdb redis.UniversalClient, namespace string, ttl time.Duration) *CachedEmbedder {
	return &CachedEmbedder{
		next:   next,
		rdb:    rdb,
		prefix: "embed:" + namespace + ":",
		ttl:    ttl,
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + hex.EncodeToString(sum[:])
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	key := c.key(text)

	b, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		if v, derr := Decode(b); derr == nil && len(v) > 0 {
			return v, nil
		}
	} else if !errors.Is(err, redis.Nil) && ctx.Err() != nil {
		return nil, ctx.Err()
	}

	v, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.rdb.Set(ctx, key, Encode(v), c.ttl)
	return v, nil
}

func (c *CachedEmbedder) Dims() int { return c.next.Dims() }
