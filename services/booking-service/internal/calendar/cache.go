package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
	"github.com/redis/go-redis/v9"
)

type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// CachedSource is a Redis read-through cache in front of a busy-interval Source.
// Redis failures fall through to the inner source.
type CachedSource struct {
	inner  Source
	rdb    kv
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedSource(inner Source, rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *CachedSource {
	return newCachedSource(inner, rdb, ttl, logger)
}

func newCachedSource(inner Source, rdb kv, ttl time.Duration, logger *slog.Logger) *CachedSource {
	if logger == nil {
		logger = slog.Default()
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedSource{inner: inner, rdb: rdb, ttl: ttl, logger: logger}
}

type cachedInterval struct {
	Start int64 `json:"s"`
	End   int64 `json:"e"`
}

func (c *CachedSource) BusyIntervals(ctx context.Context, provider model.Provider, start, end time.Time) ([]availability.Interval, error) {
	key := fmt.Sprintf("busy:%s:%d:%d", provider.ID, start.Unix(), end.Unix())

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var cached []cachedInterval
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			out := make([]availability.Interval, 0, len(cached))
			for _, ci := range cached {
				out = append(out, availability.Interval{Start: time.Unix(ci.Start, 0).UTC(), End: time.Unix(ci.End, 0).UTC()})
			}
			return out, nil
		}
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("busy cache read failed", "provider_id", provider.ID, "err", err)
	}

	busy, err := c.inner.BusyIntervals(ctx, provider, start, end)
	if err != nil {
		return nil, err
	}

	cached := make([]cachedInterval, 0, len(busy))
	for _, b := range busy {
		cached = append(cached, cachedInterval{Start: b.Start.Unix(), End: b.End.Unix()})
	}
	if b, err := json.Marshal(cached); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Warn("busy cache write failed", "provider_id", provider.ID, "err", err)
		}
	}
	return busy, nil
}
