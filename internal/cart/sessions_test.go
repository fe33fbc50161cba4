package cart

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessions_GetReturnsSameStore(t *testing.T) {
	ss := NewSessions(nil, nil)
	ctx := context.Background()

	a := ss.Get(ctx, "s1")
	b := ss.Get(ctx, "s1")
	c := ss.Get(ctx, "s2")

	assert.Same(t, a, b)
	assert.NotSame(t, a, c)
}

func TestSessions_RehydratesFromPersister(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	first := NewSessions(p, nil)
	first.Get(ctx, "s1").Add(ctx, saree("A", 15000))
	first.Get(ctx, "s1").Add(ctx, saree("A", 15000))

	// a fresh process sees the same cart
	second := NewSessions(p, nil)
	st := second.Get(ctx, "s1")

	assert.Equal(t, 2, st.TotalItems())
	assert.Equal(t, "30000", st.TotalAmount().String())
}

func TestSessions_MalformedPayloadStartsEmpty(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	p.data["s1"] = []byte("<<corrupt>>")

	st := NewSessions(p, nil).Get(ctx, "s1")

	assert.Equal(t, 0, st.TotalItems())
}

func TestSessions_LoadErrorStartsEmpty(t *testing.T) {
	p := newMemPersister()
	p.loadErr = errors.New("connection refused")

	st := NewSessions(p, nil).Get(context.Background(), "s1")

	assert.True(t, st.Snapshot().Empty())
}

func TestSessions_ConcurrentFirstLoadSharesStore(t *testing.T) {
	ss := NewSessions(newMemPersister(), nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	got := make([]*Store, 16)
	for i := range got {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			got[i] = ss.Get(ctx, "s1")
		}(i)
	}
	wg.Wait()

	for _, st := range got {
		require.Same(t, got[0], st)
	}
	assert.Equal(t, 1, ss.Len())
}

func TestSessions_DropDeletesPersistedCart(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	ss := NewSessions(p, nil)
	ss.Get(ctx, "s1").Add(ctx, saree("A", 1))

	ss.Drop(ctx, "s1")

	assert.Equal(t, 0, ss.Len())
	assert.NotContains(t, p.data, "s1")
	assert.Equal(t, 0, ss.Get(ctx, "s1").TotalItems())
}

func TestSessions_SweepEvictsIdle(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	ss := NewSessions(p, nil)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ss.now = func() time.Time { return now }

	ss.Get(ctx, "old").Add(ctx, saree("A", 1))
	now = now.Add(time.Hour)
	ss.Get(ctx, "fresh")

	n := ss.Sweep(30 * time.Minute)

	assert.Equal(t, 1, n)
	assert.Equal(t, 1, ss.Len())
	// evicted cart comes back from the persister
	assert.Equal(t, 1, ss.Get(ctx, "old").TotalItems())
}

func TestSessions_SweepKeepsUnsavedCart(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	p.saveErr = errors.New("redis: connection refused")
	ss := NewSessions(p, nil)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ss.now = func() time.Time { return now }

	ss.Get(ctx, "s1").Add(ctx, saree("A", 15000))
	now = now.Add(time.Hour)

	assert.Zero(t, ss.Sweep(30*time.Minute))
	assert.Equal(t, 1, ss.Get(ctx, "s1").TotalItems())

	// once a save lands again the store can go
	p.mu.Lock()
	p.saveErr = nil
	p.mu.Unlock()
	ss.Get(ctx, "s1").Add(ctx, saree("A", 15000))
	now = now.Add(time.Hour)
	assert.Equal(t, 1, ss.Sweep(30*time.Minute))
	assert.Equal(t, 2, ss.Get(ctx, "s1").TotalItems())
}

func TestSessions_SweepKeepsSubscribedStore(t *testing.T) {
	ctx := context.Background()
	ss := NewSessions(newMemPersister(), nil)
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	ss.now = func() time.Time { return now }

	st := ss.Get(ctx, "s1")
	var got []int
	unsub := st.Subscribe(func(snap Snapshot) { got = append(got, snap.TotalItems) })
	now = now.Add(time.Hour)

	assert.Zero(t, ss.Sweep(30*time.Minute))
	same := ss.Get(ctx, "s1")
	assert.Same(t, st, same)
	same.Add(ctx, saree("A", 100))
	assert.Equal(t, []int{1}, got)

	unsub()
	now = now.Add(time.Hour)
	assert.Equal(t, 1, ss.Sweep(30*time.Minute))
}
