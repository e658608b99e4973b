package receipts

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

const cacheKeyPrefix = "receipts:analysis:"

// CachedAnalyzer memoises successful extractions by image fingerprint so a
// re-uploaded proof does not hit the provider twice.
type CachedAnalyzer struct {
	next   Analyzer
	rdb    redis.UniversalClient
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewCachedAnalyzer wraps next. A nil client disables caching.
func NewCachedAnalyzer(next Analyzer, rdb redis.UniversalClient, ttl time.Duration, logger *slog.Logger) Analyzer {
	if rdb == nil {
		return next
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedAnalyzer{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedAnalyzer) Provider() string { return c.next.Provider() }

func (c *CachedAnalyzer) Analyze(ctx context.Context, img Image) (Extraction, error) {
	key := cacheKey(c.next.Provider(), img)
	if cached, ok := c.lookup(ctx, key); ok {
		return cached, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		ext, err := c.next.Analyze(ctx, img)
		if err != nil {
			return Extraction{}, err
		}
		c.store(ctx, key, ext)
		return ext, nil
	})
	if err != nil {
		return Extraction{}, err
	}
	return v.(Extraction), nil
}

func (c *CachedAnalyzer) lookup(ctx context.Context, key string) (Extraction, bool) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.Warn("receipt cache read failed", slog.String("key", key), slog.Any("error", err))
		}
		return Extraction{}, false
	}
	var ext Extraction
	if err := json.Unmarshal(raw, &ext); err != nil {
		return Extraction{}, false
	}
	return ext, true
}

func (c *CachedAnalyzer) store(ctx context.Context, key string, ext Extraction) {
	raw, err := json.Marshal(ext)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.Warn("receipt cache write failed", slog.String("key", key), slog.Any("error", err))
	}
}

func cacheKey(provider string, img Image) string {
	h, _ := blake2b.New256(nil)
	h.Write([]byte(provider))
	h.Write([]byte{0})
	h.Write([]byte(img.MimeType))
	h.Write([]byte{0})
	h.Write(img.Data)
	return cacheKeyPrefix + hex.EncodeToString(h.Sum(nil))
}
