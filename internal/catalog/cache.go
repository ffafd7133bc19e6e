package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/metinatakli/booking-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

const DefaultCacheTTL = 5 * time.Minute

// CachedCatalog is a read-through Redis cache in front of another catalog.
// Redis failures fall back to the wrapped catalog and are never returned.
type CachedCatalog struct {
	next   domain.ShowtimeCatalog
	redis  redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

func NewCachedCatalog(next domain.ShowtimeCatalog, client redis.UniversalClient, ttl time.Duration, logger *slog.Logger) *CachedCatalog {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}

	return &CachedCatalog{
		next:   next,
		redis:  client,
		ttl:    ttl,
		logger: logger,
	}
}

func (c *CachedCatalog) GetShowtime(ctx context.Context, showtimeID int64) (*domain.Showtime, error) {
	key := showtimeKey(showtimeID)

	cached, err := c.redis.Get(ctx, key).Result()
	switch {
	case err == nil:
		var showtime domain.Showtime
		if err := json.Unmarshal([]byte(cached), &showtime); err == nil {
			return &showtime, nil
		}
		c.logger.Warn("discarding malformed cached showtime", "key", key)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("showtime cache read failed", "key", key, "error", err)
	}

	showtime, err := c.next.GetShowtime(ctx, showtimeID)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(showtime)
	if err != nil {
		return showtime, nil
	}

	if err := c.redis.Set(ctx, key, data, c.ttl).Err(); err != nil {
		c.logger.Warn("showtime cache write failed", "key", key, "error", err)
	}

	return showtime, nil
}

// Invalidate drops the cached copy of a showtime.
func (c *CachedCatalog) Invalidate(ctx context.Context, showtimeID int64) error {
	return c.redis.Del(ctx, showtimeKey(showtimeID)).Err()
}

func showtimeKey(showtimeID int64) string {
	return fmt.Sprintf("showtime:%d", showtimeID)
}
