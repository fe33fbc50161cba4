package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-saree-storefront/internal/orders"
)

type StatusEntry struct {
	OrderID   string        `json:"order_id"`
	Status    orders.Status `json:"status"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// StatusCache is the read-through cache in front of orders.status.
type StatusCache struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

func NewStatusCache(rdb *redis.Client) *StatusCache {
	return &StatusCache{rdb: rdb, ttl: TTLStatusCache, now: time.Now}
}

func (c *StatusCache) SetStatus(ctx context.Context, orderID string, s orders.Status) error {
	b, err := json.Marshal(StatusEntry{OrderID: orderID, Status: s, UpdatedAt: c.now().UTC()})
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statusKey(orderID), b, c.ttl).Err()
}

// GetStatus reports ok=false on a miss.
func (c *StatusCache) GetStatus(ctx context.Context, orderID string) (StatusEntry, bool, error) {
	b, err := c.rdb.Get(ctx, statusKey(orderID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return StatusEntry{}, false, nil
	}
	if err != nil {
		return StatusEntry{}, false, err
	}
	var e StatusEntry
	if err := json.Unmarshal(b, &e); err != nil {
		// unreadable entries count as a miss and get overwritten on the next fill
		return StatusEntry{}, false, nil
	}
	return e, true, nil
}

func statusKey(orderID string) string { return fmt.Sprintf(KeyOrderStatus, orderID) }
