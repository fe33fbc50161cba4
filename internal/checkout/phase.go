package checkout

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

type Phase string

const (
	PhaseEditingCart     Phase = "editing_cart"
	PhaseEnteringDetails Phase = "entering_details"
	PhaseSubmitting      Phase = "submitting"
	PhaseSucceeded       Phase = "succeeded"
	PhaseFailed          Phase = "failed"
)

var validNext = map[Phase]map[Phase]bool{
	PhaseEditingCart:     {PhaseEnteringDetails: true},
	PhaseEnteringDetails: {PhaseEditingCart: true, PhaseSubmitting: true},
	PhaseSubmitting:      {PhaseSucceeded: true, PhaseFailed: true},
	PhaseSucceeded:       {PhaseEditingCart: true},
	PhaseFailed:          {PhaseEnteringDetails: true, PhaseSubmitting: true, PhaseEditingCart: true},
}

var ErrIllegalPhase = errors.New("illegal checkout phase transition")

func CanTransition(from, to Phase) bool {
	return validNext[from][to]
}

// Tracker remembers where each session is in the checkout flow. Sessions it
// has never seen are editing their cart.
type Tracker struct {
	mu     sync.Mutex
	phases map[string]phaseEntry
	now    func() time.Time
}

type phaseEntry struct {
	phase Phase
	at    time.Time
}

func NewTracker() *Tracker {
	return &Tracker{phases: map[string]phaseEntry{}, now: time.Now}
}

func (t *Tracker) Phase(sessionID string) Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.get(sessionID)
}

// Move applies a shopper driven transition. Submitting can only be entered
// through Begin.
func (t *Tracker) Move(sessionID string, to Phase) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	from := t.get(sessionID)
	if from == to {
		return nil
	}
	if to == PhaseSubmitting || !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalPhase, from, to)
	}
	t.set(sessionID, to)
	return nil
}

// Begin marks the session as submitting. Only one submission per session can
// be in flight; a second one gets ErrSubmissionInFlight. Submitting straight
// from the cart page is accepted, the form travels with the request.
func (t *Tracker) Begin(sessionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.get(sessionID) == PhaseSubmitting {
		return ErrSubmissionInFlight
	}
	t.set(sessionID, PhaseSubmitting)
	return nil
}

// Finish ends a submission as succeeded or failed.
func (t *Tracker) Finish(sessionID string, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ok {
		t.set(sessionID, PhaseSucceeded)
	} else {
		t.set(sessionID, PhaseFailed)
	}
}

// Forget drops the session, e.g. on logout.
func (t *Tracker) Forget(sessionID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.phases, sessionID)
}

// Sweep forgets sessions whose phase has not changed for maxIdle. A session
// that is submitting is kept.
func (t *Tracker) Sweep(maxIdle time.Duration) int {
	cutoff := t.now().Add(-maxIdle)
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for id, e := range t.phases {
		if e.phase != PhaseSubmitting && e.at.Before(cutoff) {
			delete(t.phases, id)
			n++
		}
	}
	return n
}

func (t *Tracker) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.phases)
}

func (t *Tracker) get(sessionID string) Phase {
	if e, ok := t.phases[sessionID]; ok {
		return e.phase
	}
	return PhaseEditingCart
}

func (t *Tracker) set(sessionID string, p Phase) {
	t.phases[sessionID] = phaseEntry{phase: p, at: t.now()}
}
