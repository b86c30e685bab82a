package execution

import (
	"context"
	"sync"

	"github.com/stormbench/orchestrator/pkg/types"
)

// runState is the in-memory control surface for one in-flight
// execution: stop/pause flags, the live participant set, and the
// per-worker cancel functions that let a scale-down or stop abort an
// in-flight remote command immediately rather than waiting for it to
// return on its own. All fields are protected by an explicit mutex
// rather than relying on any implicit single-threaded guarantee.
type runState struct {
	mu sync.Mutex

	stopRequested  bool
	pauseRequested bool

	participants []*types.Worker
	cancels      map[string]context.CancelFunc
	phaseCancel  context.CancelFunc

	scaleUpCh chan []*types.Worker

	// participantMu guards concurrent edits to an Execution's
	// Participants slice from worker fan-out goroutines; kept here
	// rather than on Engine since it is scoped to one execution.
	participantMu sync.Mutex
}

func newRunState() *runState {
	return &runState{
		cancels:   make(map[string]context.CancelFunc),
		scaleUpCh: make(chan []*types.Worker, 16),
	}
}

func (rs *runState) setParticipants(workers []*types.Worker) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.participants = workers
}

func (rs *runState) snapshotParticipants() []*types.Worker {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	out := make([]*types.Worker, len(rs.participants))
	copy(out, rs.participants)
	return out
}

func (rs *runState) requestStop() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.stopRequested = true
}

// requestPause is a no-op once stop has been requested: stop wins over
// a concurrently issued pause.
func (rs *runState) requestPause() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.stopRequested {
		return
	}
	rs.pauseRequested = true
}

func (rs *runState) requestResume() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.pauseRequested = false
}

// checkpoint reports the stop/pause flags as observed at a fan-out
// loop's polling point.
func (rs *runState) checkpoint() (stop, pause bool) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if rs.stopRequested {
		return true, false
	}
	return false, rs.pauseRequested
}

// scaleUp appends workers not already present to the participant set,
// returning the ones actually added.
func (rs *runState) scaleUp(workers []*types.Worker) []*types.Worker {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	existing := make(map[string]bool, len(rs.participants))
	for _, w := range rs.participants {
		existing[w.ID] = true
	}
	var added []*types.Worker
	for _, w := range workers {
		if !existing[w.ID] {
			rs.participants = append(rs.participants, w)
			added = append(added, w)
		}
	}
	return added
}

// scaleDown removes the workers named by ids, or count workers from
// the tail of the participant set when ids is empty, cancelling each
// removed worker's in-flight command context.
func (rs *runState) scaleDown(count int, ids []string) []*types.Worker {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	var removed []*types.Worker
	if len(ids) > 0 {
		idSet := make(map[string]bool, len(ids))
		for _, id := range ids {
			idSet[id] = true
		}
		var kept []*types.Worker
		for _, w := range rs.participants {
			if idSet[w.ID] {
				removed = append(removed, w)
			} else {
				kept = append(kept, w)
			}
		}
		rs.participants = kept
	} else {
		if count <= 0 || count > len(rs.participants) {
			count = len(rs.participants)
		}
		cut := len(rs.participants) - count
		removed = append([]*types.Worker(nil), rs.participants[cut:]...)
		rs.participants = rs.participants[:cut]
	}

	for _, w := range removed {
		if cancel, ok := rs.cancels[w.ID]; ok {
			cancel()
			delete(rs.cancels, w.ID)
		}
	}
	return removed
}

func (rs *runState) registerCancel(id string, cancel context.CancelFunc) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.cancels[id] = cancel
}

func (rs *runState) unregisterCancel(id string) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if cancel, ok := rs.cancels[id]; ok {
		cancel()
		delete(rs.cancels, id)
	}
}

func (rs *runState) remainingCancelIDs() []string {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	ids := make([]string, 0, len(rs.cancels))
	for id := range rs.cancels {
		ids = append(ids, id)
	}
	return ids
}

func (rs *runState) setPhaseCancel(cancel context.CancelFunc) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.phaseCancel = cancel
}

func (rs *runState) cancelPhase() {
	rs.mu.Lock()
	cancel := rs.phaseCancel
	rs.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// drained reports whether a scale-down has removed every participant
// while the execution was not itself stopped — the condition under
// which the run loop must force a failed("drained") transition rather
// than let an empty fan-out read as a clean completion.
func (rs *runState) drained() bool {
	stop, _ := rs.checkpoint()
	return !stop && len(rs.snapshotParticipants()) == 0
}
