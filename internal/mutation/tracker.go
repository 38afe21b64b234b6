// Package mutation correlates optimistic client mutations with server
// acknowledgements (spec §4.5): MutationTracker tracks every outstanding
// mutation from its ephemeral (client-assigned) ID through to the
// server-assigned mutation ID, and resolves it exactly once.
//
// Grounded on the teacher's internal/executor/transaction_executor.go
// (TransactionExecutor's activeTransactions map + nextTxnID counter +
// RWMutex shape), retargeted from in-process transaction bookkeeping onto
// correlating async, server-acknowledged mutations — the tracker has no
// direct teacher analogue for resolution semantics (the teacher never
// talks to a remote peer), so that part follows spec §4.5 directly,
// structured around a per-mutation settled flag, a guarded map, and
// monotonically assigned IDs.
package mutation

import (
	"fmt"
	"sync"
)

// Outcome is a settled mutation's terminal state.
type Outcome struct {
	Ephemeral  uint64
	MutationID uint64
	Err        error // nil on success
}

// Handle is returned by TrackMutation: Wait blocks until the mutation
// settles, exactly once, matching the "serverPromise" spec §4.5 describes.
type Handle struct {
	Ephemeral uint64
	done      chan Outcome
}

// Wait blocks until this mutation settles and returns its outcome.
func (h *Handle) Wait() Outcome {
	return <-h.done
}

type pendingMutation struct {
	ephemeral  uint64
	assigned   bool
	mutationID uint64
	done       chan Outcome
	settled    bool
}

// MutationTracker is spec §4.5's MutationTracker.
type MutationTracker struct {
	mu sync.Mutex

	nextEphemeral uint64
	// order preserves insertion order so lmidAdvanced can stop at the
	// first not-yet-resolvable entry (spec §4.5 "Ordering guarantees").
	order       []uint64
	outstanding map[uint64]*pendingMutation
	byMutation  map[uint64]uint64 // mutationID -> ephemeralID

	currentMutationID            uint64
	largestOutstandingMutationID uint64

	allAppliedListeners []func()

	// OnFatal is invoked by ProcessPushResponse and RejectAllOutstanding
	// with the fatal error (spec §7 "a single onFatalError callback").
	// Nil is a valid no-op default.
	OnFatal func(error)
}

// New returns an empty MutationTracker.
func New() *MutationTracker {
	return &MutationTracker{
		outstanding: map[uint64]*pendingMutation{},
		byMutation:  map[uint64]uint64{},
	}
}

// TrackMutation registers a new outstanding mutation and returns its
// handle. The ephemeral ID is assigned here, monotonically.
func (t *MutationTracker) TrackMutation() *Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextEphemeral++
	eph := t.nextEphemeral
	pm := &pendingMutation{ephemeral: eph, done: make(chan Outcome, 1)}
	t.outstanding[eph] = pm
	t.order = append(t.order, eph)
	return &Handle{Ephemeral: eph, done: pm.done}
}

// MutationIDAssigned records the server-assigned mutation ID for an
// outstanding ephemeral mutation, advancing largestOutstandingMutationID
// monotonically.
func (t *MutationTracker) MutationIDAssigned(ephemeral, mid uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	pm, ok := t.outstanding[ephemeral]
	if !ok {
		return fmt.Errorf("mutation: no outstanding mutation with ephemeral ID %d", ephemeral)
	}
	pm.assigned = true
	pm.mutationID = mid
	t.byMutation[mid] = ephemeral
	if mid > t.largestOutstandingMutationID {
		t.largestOutstandingMutationID = mid
	}
	return nil
}

// RejectMutation settles ephemeral with an application error, used when
// the optimistic path failed before persistence.
func (t *MutationTracker) RejectMutation(ephemeral uint64, cause error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.settleLocked(ephemeral, Outcome{Ephemeral: ephemeral, Err: &AppError{Message: cause.Error()}})
}

// RejectAllOutstanding settles every pending mutation with err (spec §4.5
// "used on disconnect/close") and unblocks any all-applied listeners.
func (t *MutationTracker) RejectAllOutstanding(err error) {
	t.mu.Lock()
	for _, eph := range append([]uint64(nil), t.order...) {
		t.settleLocked(eph, Outcome{Ephemeral: eph, Err: err})
	}
	t.largestOutstandingMutationID = t.currentMutationID
	listeners := append([]func(){}, t.allAppliedListeners...)
	t.mu.Unlock()

	for _, l := range listeners {
		l()
	}
	if t.OnFatal != nil {
		t.OnFatal(err)
	}
}

// settleLocked resolves eph exactly once and removes it from bookkeeping.
// Callers must hold t.mu. Re-resolution is a no-op (spec §4.5 "settled
// entries are removed").
func (t *MutationTracker) settleLocked(ephemeral uint64, outcome Outcome) {
	pm, ok := t.outstanding[ephemeral]
	if !ok || pm.settled {
		return
	}
	pm.settled = true
	outcome.MutationID = pm.mutationID
	pm.done <- outcome
	delete(t.outstanding, ephemeral)
	if pm.assigned {
		delete(t.byMutation, pm.mutationID)
	}
	t.order = removeFromOrder(t.order, ephemeral)
}

func removeFromOrder(order []uint64, eph uint64) []uint64 {
	for i, e := range order {
		if e == eph {
			return append(order[:i], order[i+1:]...)
		}
	}
	return order
}

// OnAllApplied registers a listener invoked once every currently
// outstanding mutation (up to largestOutstandingMutationID) has been
// resolved.
func (t *MutationTracker) OnAllApplied(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allAppliedListeners = append(t.allAppliedListeners, fn)
}

// LmidAdvanced resolves every outstanding mutation whose assigned ID is
// <= lmid, in insertion order, stopping at the first entry whose assigned
// ID exceeds lmid (spec §4.5 "Ordering guarantees") or that has no
// assigned ID yet. It notifies all-applied listeners once
// lmid >= largestOutstandingMutationID.
func (t *MutationTracker) LmidAdvanced(lmid uint64) {
	t.mu.Lock()
	t.currentMutationID = lmid

	for len(t.order) > 0 {
		eph := t.order[0]
		pm := t.outstanding[eph]
		if pm == nil || !pm.assigned || pm.mutationID > lmid {
			break
		}
		t.settleLocked(eph, Outcome{Ephemeral: eph})
	}

	var listeners []func()
	if lmid >= t.largestOutstandingMutationID {
		listeners = append(listeners, t.allAppliedListeners...)
	}
	t.mu.Unlock()

	for _, l := range listeners {
		l()
	}
}
