package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"buzzer-service/internal/domain"
)

// OrderLister is the uncached ranking read path (the Postgres store).
type OrderLister interface {
	ListOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error)
}

// OrderCache keeps ranking snapshots in Redis so polling clients do not hit
// Postgres on every tick. Entries are stored as one JSON blob per scope:
// SET buzzer:order:{scopeID} [...] EX ttl. Writers invalidate after every
// press, award, and reset, so the TTL only matters as a safety net.
type OrderCache struct {
	client *redis.Client
	source OrderLister
	ttl    time.Duration
	log    zerolog.Logger
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewOrderCache(client *redis.Client, source OrderLister, ttl time.Duration, log zerolog.Logger) *OrderCache {
	return &OrderCache{
		client: client,
		source: source,
		ttl:    ttl,
		log:    log,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *OrderCache) ListOrder(ctx context.Context, scopeID uuid.UUID) ([]domain.OrderEntry, error) {
	key := c.key(scopeID)

	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var entries []domain.OrderEntry
		if err := json.Unmarshal(raw, &entries); err == nil {
			return entries, nil
		}
		// A corrupt blob falls through to a fresh fill.
		c.log.Warn().Str("key", key).Msg("dropping unreadable order snapshot")
		_ = c.client.Del(ctx, key).Err()
	}

	result, err, _ := c.sf.Do(key, func() (interface{}, error) {
		// Re-check in case another goroutine filled the key meanwhile.
		if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
			var entries []domain.OrderEntry
			if err := json.Unmarshal(raw, &entries); err == nil {
				return entries, nil
			}
		}

		entries, err := c.source.ListOrder(ctx, scopeID)
		if err != nil {
			return nil, err
		}

		if raw, err := json.Marshal(entries); err == nil {
			// Cache failures only cost the next read a trip to Postgres.
			if err := c.client.Set(ctx, key, raw, c.ttlWithJitter()).Err(); err != nil {
				c.log.Warn().Err(err).Str("key", key).Msg("order snapshot not cached")
			}
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.OrderEntry), nil
}

// Invalidate drops the cached snapshot after a write to the scope.
func (c *OrderCache) Invalidate(ctx context.Context, scopeID uuid.UUID) {
	if err := c.client.Del(ctx, c.key(scopeID)).Err(); err != nil {
		c.log.Warn().Err(err).Str("scope_id", scopeID.String()).Msg("order cache invalidation failed")
	}
}

func (c *OrderCache) key(scopeID uuid.UUID) string {
	return "buzzer:order:" + scopeID.String()
}

func (c *OrderCache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	// up to 10% jitter to spread expirations
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}
