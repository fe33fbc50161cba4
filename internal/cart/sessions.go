package cart

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Sessions owns one Store per browser session and rehydrates it from the
// persister the first time the session is seen by this process.
type Sessions struct {
	persist Persister
	log     *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	stores map[string]*entry
	sfg    singleflight.Group
}

type entry struct {
	store    *Store
	lastSeen time.Time
}

func NewSessions(p Persister, log *slog.Logger) *Sessions {
	if log == nil {
		log = slog.Default()
	}
	return &Sessions{
		persist: p,
		log:     log,
		now:     time.Now,
		stores:  map[string]*entry{},
	}
}

// Get returns the session's store, loading it on first use. A load failure or
// an unreadable payload starts the session with an empty cart.
func (s *Sessions) Get(ctx context.Context, sessionID string) *Store {
	if st := s.lookup(sessionID); st != nil {
		return st
	}

	v, _, _ := s.sfg.Do(sessionID, func() (interface{}, error) {
		if st := s.lookup(sessionID); st != nil {
			return st, nil
		}
		st := NewStore(sessionID, s.load(ctx, sessionID), s.persist, s.log)
		s.mu.Lock()
		s.stores[sessionID] = &entry{store: st, lastSeen: s.now()}
		s.mu.Unlock()
		return st, nil
	})
	return v.(*Store)
}

// Drop ends a session: the in-memory store goes away and the persisted cart is deleted.
func (s *Sessions) Drop(ctx context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.stores, sessionID)
	s.mu.Unlock()

	if s.persist == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, persistTimeout)
	defer cancel()
	if err := s.persist.Delete(ctx, sessionID); err != nil {
		s.log.Warn("cart delete failed", "session_id", sessionID, "error", err)
	}
}

// Sweep evicts stores idle for longer than maxIdle from memory. Their carts stay
// in the persister and are rehydrated on the next request. Pinned stores are
// kept: their only copy is in memory or a stream is still attached.
func (s *Sessions) Sweep(maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, e := range s.stores {
		if e.lastSeen.Before(cutoff) && !e.store.Pinned() {
			delete(s.stores, id)
			n++
		}
	}
	return n
}

func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.stores)
}

func (s *Sessions) lookup(sessionID string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.stores[sessionID]
	if !ok {
		return nil
	}
	e.lastSeen = s.now()
	return e.store
}

func (s *Sessions) load(ctx context.Context, sessionID string) []Item {
	if s.persist == nil {
		return nil
	}
	// shared by every caller waiting in the singleflight group
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	data, err := s.persist.Load(ctx, sessionID)
	if err != nil {
		s.log.Warn("cart load failed, starting empty", "session_id", sessionID, "error", err)
		return nil
	}
	return Decode(data)
}
