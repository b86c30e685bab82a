package execution

import (
	"context"
	"sync"

	"github.com/stormbench/orchestrator/pkg/types"
	"golang.org/x/sync/semaphore"
)

// runPreparePhase computes the active worker set — inventory minus
// precheck exclusions, narrowed by the workload's selection policy —
// then fans out ensure-tool and, for file workloads, push-credentials
// and mount, dropping any worker that fails a step, as a
// semaphore-bounded goroutine fan-out.
func (e *Engine) runPreparePhase(ctx context.Context, exec *types.Execution, cluster *types.Cluster, inventory []*types.Worker, excluded map[string]bool, cmdLog *commandLog) ([]*types.Worker, bool) {
	e.setStatus(exec, types.StatusPreparing, types.PhasePrepare)

	selected := applySelection(inventory, excluded, exec.Workload.Selection)
	if len(selected) == 0 {
		e.fail(exec, types.ErrorToolUnavailable, "no workers")
		return nil, false
	}

	rs := e.lookupOrNilRunState(exec.ID)
	for _, w := range selected {
		e.updateParticipant(rs, exec, w.ID, types.ParticipantPreparing, "")
	}

	ctx, cancel := context.WithTimeout(ctx, exec.Workload.Test.Duration+fanoutGrace)
	defer cancel()

	sem := semaphore.NewWeighted(maxFanOut)
	var mu sync.Mutex
	var survivors []*types.Worker

	var wg sync.WaitGroup
	for _, w := range selected {
		w := w
		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			entry, err := e.driver.EnsureTool(ctx, w, exec.Workload.Tool)
			cmdLog.add(entry)
			if err != nil {
				e.recordPrepareFailure(rs, exec, w, types.ErrorToolUnavailable, err.Error())
				return
			}

			if exec.Workload.StorageType == types.StorageFamilyFile {
				entries, err := e.driver.PushCredentials(ctx, w, cluster.AdminNode, cluster.AdminCredentials, cluster)
				cmdLog.add(entries...)
				if err != nil {
					e.recordPrepareFailure(rs, exec, w, types.ErrorMountFailure, err.Error())
					return
				}

				mountEntries, err := e.driver.Mount(ctx, w, exec.Workload.Mount, cluster)
				cmdLog.add(mountEntries...)
				if err != nil {
					e.recordPrepareFailure(rs, exec, w, types.ErrorMountFailure, err.Error())
					return
				}
			}

			mu.Lock()
			survivors = append(survivors, w)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(survivors) == 0 {
		e.fail(exec, types.ErrorToolUnavailable, "no workers")
		return nil, false
	}

	e.persist(exec)
	return survivors, true
}

// lookupOrNilRunState returns the run state registered at Submit time,
// or nil. Prepare always runs after Submit has stored it, so this is
// never nil in practice; callers still tolerate nil defensively.
func (e *Engine) lookupOrNilRunState(id string) *runState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.states[id]
}

// recordPrepareFailure marks a worker's participant sub-state failed
// with the given error kind's message. Prepare failures never abort
// siblings: every other worker's fan-out goroutine keeps running.
func (e *Engine) recordPrepareFailure(rs *runState, exec *types.Execution, w *types.Worker, kind types.ErrorKind, msg string) {
	if rs != nil {
		e.updateParticipant(rs, exec, w.ID, types.ParticipantFailed, msg)
	}
	engineLog.Warn().Str("execution_id", exec.ID).Str("worker_id", w.ID).Str("kind", string(kind)).Str("error", msg).Msg("worker excluded at prepare")
}

// applySelection narrows inventory by excluding precheck-excluded
// workers, then applying the workload's selection mode: all surviving
// workers, the first N, or an explicit id list.
func applySelection(inventory []*types.Worker, excluded map[string]bool, sel types.WorkerSelection) []*types.Worker {
	var candidates []*types.Worker
	for _, w := range inventory {
		if excluded[w.ID] {
			continue
		}
		candidates = append(candidates, w)
	}

	switch sel.Mode {
	case types.SelectionCount:
		if sel.Count < len(candidates) {
			return candidates[:sel.Count]
		}
		return candidates
	case types.SelectionSpecific:
		want := make(map[string]bool, len(sel.WorkerIDs))
		for _, id := range sel.WorkerIDs {
			want[id] = true
		}
		var picked []*types.Worker
		for _, w := range candidates {
			if want[w.ID] {
				picked = append(picked, w)
			}
		}
		return picked
	default: // SelectionAll
		return candidates
	}
}
