package redisx

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CartPersister stores the encoded cart of a session under KeyCartSession.
// Every save refreshes the TTL, so a cart lives as long as its session is active.
type CartPersister struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewCartPersister(rdb *redis.Client, ttl time.Duration) *CartPersister {
	if ttl <= 0 {
		ttl = TTLCart
	}
	return &CartPersister{rdb: rdb, ttl: ttl}
}

func (p *CartPersister) Load(ctx context.Context, sessionID string) ([]byte, error) {
	b, err := p.rdb.Get(ctx, cartKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	return b, err
}

func (p *CartPersister) Save(ctx context.Context, sessionID string, data []byte) error {
	return p.rdb.Set(ctx, cartKey(sessionID), data, p.ttl).Err()
}

func (p *CartPersister) Delete(ctx context.Context, sessionID string) error {
	return p.rdb.Del(ctx, cartKey(sessionID)).Err()
}

func cartKey(sessionID string) string { return fmt.Sprintf(KeyCartSession, sessionID) }
