package provider

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const defaultCacheTTL = 10 * time.Minute

// CachedProvider memoises non-empty responses in Redis per position and difficulty.
// Redis errors fall through to the wrapped provider.
type CachedProvider struct {
	next   MoveProvider
	rdb    redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedProvider(next MoveProvider, rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedProvider{next: next, rdb: rdb, ttl: ttl, logger: logger}
}

func (c *CachedProvider) key(req MoveRequest) string {
	return "chess:move:" + req.Difficulty.String() + ":" + strings.TrimSpace(req.FEN)
}

func (c *CachedProvider) RequestMove(ctx context.Context, req MoveRequest) (MoveResponse, error) {
	key := c.key(req)
	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached MoveResponse
		if jerr := json.Unmarshal(raw, &cached); jerr == nil && !cached.Empty() {
			c.logger.Debug("provider cache hit", zap.String("fen", req.FEN), zap.String("move", cached.BestMove))
			return cached, nil
		}
	case errors.Is(err, redis.Nil):
	default:
		c.logger.Warn("provider cache read failed", zap.Error(err))
	}

	out, err := c.next.RequestMove(ctx, req)
	if err != nil || out.Empty() {
		return out, err
	}
	payload, err := json.Marshal(out)
	if err == nil {
		if err := c.rdb.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.Warn("provider cache write failed", zap.Error(err))
		}
	}
	return out, nil
}
