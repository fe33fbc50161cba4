package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Persister keeps the encoded cart of a session. Load returns (nil, nil) when
// nothing is stored for the session.
type Persister interface {
	Load(ctx context.Context, sessionID string) ([]byte, error)
	Save(ctx context.Context, sessionID string, data []byte) error
	Delete(ctx context.Context, sessionID string) error
}

const persistTimeout = 2 * time.Second

// Store is the single source of truth for one session's selection.
// Mutations cannot fail from the caller's point of view: persistence errors are
// logged and the store carries on in memory.
type Store struct {
	mu          sync.Mutex
	sessionID   string
	items       []Item
	version     uint64
	checkoutKey string
	unsaved     bool // last persist failed, memory is the only copy
	persist     Persister
	log         *slog.Logger

	subMu   sync.Mutex
	subs    map[int]func(Snapshot)
	nextSub int

	// delivery order follows Snapshot.Version
	deliverMu sync.Mutex
	delivered uint64
}

// NewStore builds a store seeded with already decoded items. A nil persister
// keeps the cart in memory only.
func NewStore(sessionID string, items []Item, p Persister, log *slog.Logger) *Store {
	if log == nil {
		log = slog.Default()
	}
	return &Store{
		sessionID: sessionID,
		items:     append([]Item(nil), items...),
		persist:   p,
		log:       log.With("session_id", sessionID),
		subs:      map[int]func(Snapshot){},
	}
}

// Add puts one unit of the product in the cart. The caller's quantity is
// ignored: a new product starts at 1, an existing one is incremented by 1.
func (s *Store) Add(ctx context.Context, it Item) {
	s.mutate(ctx, func(items []Item) []Item {
		for i := range items {
			if items[i].ID == it.ID {
				items[i].Quantity++
				return items
			}
		}
		it.Quantity = 1
		return append(items, it)
	})
}

// UpdateQuantity sets the quantity of an existing product; q <= 0 removes it.
func (s *Store) UpdateQuantity(ctx context.Context, id string, q int) {
	if q <= 0 {
		s.Remove(ctx, id)
		return
	}
	s.mutate(ctx, func(items []Item) []Item {
		for i := range items {
			if items[i].ID == id {
				items[i].Quantity = q
				break
			}
		}
		return items
	})
}

func (s *Store) Remove(ctx context.Context, id string) {
	s.mutate(ctx, func(items []Item) []Item {
		for i := range items {
			if items[i].ID == id {
				return append(items[:i], items[i+1:]...)
			}
		}
		return items
	})
}

func (s *Store) Clear(ctx context.Context) {
	s.mutate(ctx, func([]Item) []Item { return nil })
}

// Reprice replaces the stored unit price of a product, used when the catalog
// price moved since the item was added.
func (s *Store) Reprice(ctx context.Context, id string, price decimal.Decimal) {
	s.mutate(ctx, func(items []Item) []Item {
		for i := range items {
			if items[i].ID == id {
				items[i].Price = price
				break
			}
		}
		return items
	})
}

func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// CheckoutSnapshot returns the snapshot together with a key identifying its
// contents. The key stays the same until the next mutation, so a resubmitted
// checkout of an unchanged cart carries the same key.
func (s *Store) CheckoutSnapshot() (Snapshot, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.checkoutKey == "" {
		s.checkoutKey = uuid.NewString()
	}
	return s.snapshot(), s.checkoutKey
}

// Pinned reports whether evicting the store from memory would lose state:
// its last save failed or a subscriber is still attached.
func (s *Store) Pinned() bool {
	s.mu.Lock()
	unsaved := s.unsaved
	s.mu.Unlock()
	if unsaved {
		return true
	}
	s.subMu.Lock()
	defer s.subMu.Unlock()
	return len(s.subs) > 0
}

func (s *Store) Items() []Item { return s.Snapshot().Items }

func (s *Store) TotalItems() int { return s.Snapshot().TotalItems }

func (s *Store) TotalAmount() decimal.Decimal { return s.Snapshot().TotalAmount }

// Subscribe registers fn to receive the snapshot produced by every mutation.
// Snapshots arrive in mutation order; one superseded by a concurrent mutation
// may be skipped. fn must not mutate the store. The returned func removes the
// subscription.
func (s *Store) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subs, id)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) mutate(ctx context.Context, fn func([]Item) []Item) {
	s.mu.Lock()
	s.items = fn(s.items)
	s.version++
	s.checkoutKey = ""
	snap := s.snapshot()
	// persisted under the lock so saves land in mutation order
	s.unsaved = !s.save(ctx, snap.Items)
	s.mu.Unlock()

	s.notify(snap)
}

func (s *Store) snapshot() Snapshot {
	snap := snapshotOf(s.items)
	snap.Version = s.version
	return snap
}

func (s *Store) save(ctx context.Context, items []Item) bool {
	if s.persist == nil {
		return true
	}
	data, err := Encode(items)
	if err != nil {
		s.log.Warn("cart encode failed, keeping memory only", "error", err)
		return false
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.persist.Save(ctx, s.sessionID, data); err != nil {
		s.log.Warn("cart persist failed, keeping memory only", "error", err)
		return false
	}
	return true
}

func (s *Store) notify(snap Snapshot) {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()
	if snap.Version <= s.delivered {
		return
	}
	s.delivered = snap.Version

	s.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}
