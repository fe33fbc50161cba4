package cart

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memPersister struct {
	mu      sync.Mutex
	data    map[string][]byte
	saveErr error
	loadErr error
	saves   int
}

func newMemPersister() *memPersister {
	return &memPersister{data: map[string][]byte{}}
}

func (m *memPersister) Load(_ context.Context, sid string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.loadErr != nil {
		return nil, m.loadErr
	}
	return m.data[sid], nil
}

func (m *memPersister) Save(_ context.Context, sid string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	if m.saveErr != nil {
		return m.saveErr
	}
	m.data[sid] = data
	return nil
}

func (m *memPersister) Delete(_ context.Context, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, sid)
	return nil
}

func saree(id string, price int64) Item {
	return Item{ID: id, Name: "Saree " + id, Price: decimal.NewFromInt(price)}
}

func TestAdd_SameIDAccumulates(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)

	for i := 0; i < 5; i++ {
		s.Add(ctx, saree("A", 15000))
	}

	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, 5, items[0].Quantity)
	assert.Equal(t, 5, s.TotalItems())
	assert.Equal(t, "75000", s.TotalAmount().String())
}

func TestAdd_IgnoresCallerQuantity(t *testing.T) {
	s := NewStore("s1", nil, nil, nil)
	it := saree("A", 100)
	it.Quantity = 40

	s.Add(context.Background(), it)

	assert.Equal(t, 1, s.Items()[0].Quantity)
}

func TestAdd_PreservesInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	s.Add(ctx, saree("C", 1))
	s.Add(ctx, saree("A", 1))
	s.Add(ctx, saree("B", 1))
	s.Add(ctx, saree("A", 1))

	assert.Equal(t, []string{"C", "A", "B"}, s.Snapshot().IDs())
}

func TestTotals_MatchItems(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	s.Add(ctx, saree("A", 15000))
	s.Add(ctx, saree("A", 15000))
	s.Add(ctx, Item{ID: "B", Name: "Dupatta", Price: decimal.RequireFromString("999.50")})
	s.UpdateQuantity(ctx, "B", 3)

	snap := s.Snapshot()
	assert.Equal(t, 5, snap.TotalItems)
	assert.Equal(t, "32998.5", snap.TotalAmount.String())

	sum := decimal.Zero
	n := 0
	for _, it := range snap.Items {
		sum = sum.Add(it.Subtotal())
		n += it.Quantity
	}
	assert.True(t, sum.Equal(snap.TotalAmount))
	assert.Equal(t, n, snap.TotalItems)
}

func TestUpdateQuantity_NonPositiveRemoves(t *testing.T) {
	for _, q := range []int{0, -1, -20} {
		ctx := context.Background()
		s := NewStore("s1", nil, nil, nil)
		s.Add(ctx, saree("A", 100))
		s.Add(ctx, saree("B", 200))

		s.UpdateQuantity(ctx, "A", q)

		assert.Equal(t, []string{"B"}, s.Snapshot().IDs(), "q=%d", q)
		assert.Equal(t, 1, s.TotalItems())
		assert.Equal(t, "200", s.TotalAmount().String())
	}
}

func TestUpdateQuantity_UnknownIDNoop(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	s.Add(ctx, saree("A", 100))

	s.UpdateQuantity(ctx, "missing", 7)

	assert.Equal(t, 1, s.TotalItems())
}

func TestRemove_MissingIsNoop(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	s.Add(ctx, saree("A", 100))
	before := s.Snapshot()

	s.Remove(ctx, "nope")

	after := s.Snapshot()
	assert.Equal(t, before.IDs(), after.IDs())
	assert.Equal(t, before.TotalItems, after.TotalItems)
	assert.True(t, before.TotalAmount.Equal(after.TotalAmount))
}

func TestClear_ZeroesTotals(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	s.Add(ctx, saree("A", 100))
	s.Add(ctx, saree("B", 250))
	s.Add(ctx, saree("B", 250))

	s.Clear(ctx)

	assert.True(t, s.Snapshot().Empty())
	assert.Equal(t, 0, s.TotalItems())
	assert.True(t, s.TotalAmount().IsZero())
}

func TestReprice(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	s.Add(ctx, saree("A", 100))
	s.Add(ctx, saree("A", 100))

	s.Reprice(ctx, "A", decimal.NewFromInt(120))

	assert.Equal(t, "240", s.TotalAmount().String())
}

func TestMutations_ArePersisted(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	s := NewStore("s1", nil, p, nil)

	s.Add(ctx, saree("A", 15000))
	s.Add(ctx, saree("A", 15000))

	got := Decode(p.data["s1"])
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Quantity)
	assert.Equal(t, 2, p.saves)
}

func TestPersistFailure_IsSwallowed(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	p.saveErr = errors.New("quota exceeded")
	s := NewStore("s1", nil, p, nil)

	s.Add(ctx, saree("A", 100))
	s.Add(ctx, saree("B", 100))

	assert.Equal(t, 2, s.TotalItems())
	assert.Empty(t, p.data)
}

func TestSubscribe_ReceivesEverySnapshot(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)

	var got []int
	unsub := s.Subscribe(func(snap Snapshot) { got = append(got, snap.TotalItems) })

	s.Add(ctx, saree("A", 1))
	s.Add(ctx, saree("A", 1))
	s.Remove(ctx, "A")
	unsub()
	s.Add(ctx, saree("B", 1))

	assert.Equal(t, []int{1, 2, 0}, got)
}

func TestSubscriber_CanReadStore(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	var seen int
	s.Subscribe(func(Snapshot) { seen = s.TotalItems() })

	s.Add(ctx, saree("A", 1))

	assert.Equal(t, 1, seen)
}

func TestSnapshot_VersionAdvancesPerMutation(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	assert.Zero(t, s.Snapshot().Version)

	s.Add(ctx, saree("A", 1))
	s.Add(ctx, saree("A", 1))

	assert.Equal(t, uint64(2), s.Snapshot().Version)
}

func TestSubscribe_ConcurrentMutationsDeliverInOrder(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)

	var (
		mu   sync.Mutex
		seen []uint64
	)
	s.Subscribe(func(snap Snapshot) {
		mu.Lock()
		seen = append(seen, snap.Version)
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(ctx, saree("A", 1))
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	for i := 1; i < len(seen); i++ {
		assert.Less(t, seen[i-1], seen[i], "stale snapshot delivered after a newer one")
	}
	// the final state always reaches subscribers
	assert.Equal(t, uint64(50), seen[len(seen)-1])
	assert.Equal(t, 50, s.TotalItems())
}

func TestCheckoutKey_StableUntilMutation(t *testing.T) {
	ctx := context.Background()
	s := NewStore("s1", nil, nil, nil)
	s.Add(ctx, saree("A", 1))

	snap, k1 := s.CheckoutSnapshot()
	assert.Equal(t, 1, snap.TotalItems)
	_, again := s.CheckoutSnapshot()
	assert.Equal(t, k1, again)

	s.Add(ctx, saree("B", 1))
	_, k2 := s.CheckoutSnapshot()
	assert.NotEqual(t, k1, k2)

	s.Clear(ctx)
	_, k3 := s.CheckoutSnapshot()
	assert.NotEqual(t, k2, k3)
}

func TestPinned(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	s := NewStore("s1", nil, p, nil)
	assert.False(t, s.Pinned())

	p.saveErr = errors.New("redis down")
	s.Add(ctx, saree("A", 1))
	assert.True(t, s.Pinned())

	p.saveErr = nil
	s.Add(ctx, saree("A", 1))
	assert.False(t, s.Pinned())

	unsub := s.Subscribe(func(Snapshot) {})
	assert.True(t, s.Pinned())
	unsub()
	assert.False(t, s.Pinned())
}
