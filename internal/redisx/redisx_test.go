package redisx

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ariefcatur/go-saree-storefront/internal/orders"
)

func setupTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCartPersister_RoundTrip(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	p := NewCartPersister(rdb, time.Hour)
	ctx := context.Background()

	data, err := p.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, data)

	require.NoError(t, p.Save(ctx, "s1", []byte(`[{"id":"A"}]`)))
	assert.True(t, mr.Exists("cart:session:s1"))
	assert.Equal(t, time.Hour, mr.TTL("cart:session:s1"))

	data, err = p.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, `[{"id":"A"}]`, string(data))

	require.NoError(t, p.Delete(ctx, "s1"))
	assert.False(t, mr.Exists("cart:session:s1"))
}

func TestCartPersister_Expires(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	p := NewCartPersister(rdb, 0)
	ctx := context.Background()

	require.NoError(t, p.Save(ctx, "s1", []byte(`[]`)))
	assert.Equal(t, TTLCart, mr.TTL("cart:session:s1"))

	mr.FastForward(TTLCart + time.Second)
	data, err := p.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestCartPersister_ServerDown(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	p := NewCartPersister(rdb, time.Hour)
	mr.Close()

	assert.Error(t, p.Save(context.Background(), "s1", []byte(`[]`)))
}

func TestStatusCache(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	c := NewStatusCache(rdb)
	at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return at }
	ctx := context.Background()

	_, ok, err := c.GetStatus(ctx, "o1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetStatus(ctx, "o1", orders.StatusPending))
	assert.Equal(t, TTLStatusCache, mr.TTL("order_status:o1"))

	e, ok, err := c.GetStatus(ctx, "o1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orders.StatusPending, e.Status)
	assert.True(t, at.Equal(e.UpdatedAt))

	require.NoError(t, mr.Set("order_status:o2", "not json"))
	_, ok, err = c.GetStatus(ctx, "o2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClaim(t *testing.T) {
	mr, rdb := setupTestRedis(t)
	ctx := context.Background()

	first, err := Claim(ctx, rdb, "dedup:confirm:e1", time.Minute)
	require.NoError(t, err)
	second, err := Claim(ctx, rdb, "dedup:confirm:e1", time.Minute)
	require.NoError(t, err)

	assert.True(t, first)
	assert.False(t, second)

	assert.True(t, mr.Exists("dedup:confirm:e1"))
	assert.Greater(t, mr.TTL("dedup:confirm:e1"), time.Duration(0))
}
