package execution

import (
	"time"

	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
)

// setStatus updates status/phase, persists the record, and keeps the
// in-flight gauge consistent with the transition.
func (e *Engine) setStatus(exec *types.Execution, status types.ExecutionStatus, phase types.ExecutionPhase) {
	if exec.Status != status {
		metrics.ExecutionsInFlight.WithLabelValues(string(exec.Status)).Dec()
		if !status.Terminal() {
			metrics.ExecutionsInFlight.WithLabelValues(string(status)).Inc()
		}
	}
	exec.Status = status
	exec.Phase = phase
	e.persist(exec)
}

func (e *Engine) persist(exec *types.Execution) {
	if err := e.store.UpdateExecution(exec); err != nil {
		engineLog.Error().Err(err).Str("execution_id", exec.ID).Msg("failed to persist execution record")
	}
}

// fail transitions exec to failed with the given error kind and
// message. A controller-internal error is never swallowed: it always
// reaches the persisted record for an operator to see.
func (e *Engine) fail(exec *types.Execution, kind types.ErrorKind, message string) {
	if exec.Status != types.StatusFailed {
		metrics.ExecutionsInFlight.WithLabelValues(string(exec.Status)).Dec()
	}
	exec.ErrorKind = kind
	exec.ErrorMessage = message
	exec.Status = types.StatusFailed
	exec.Phase = types.PhaseDone
	if exec.CompletedAt.IsZero() {
		exec.CompletedAt = time.Now()
	}
	e.persist(exec)
	metrics.ExecutionsTotal.WithLabelValues(string(types.StatusFailed)).Inc()
	engineLog.Warn().Str("execution_id", exec.ID).Str("kind", string(kind)).Str("message", message).Msg("execution failed")
}

// updateParticipant upserts a worker's role/sub-state into exec's
// Participants slice. rs's participantMu serializes this against the
// many worker fan-out goroutines that call it concurrently.
func (e *Engine) updateParticipant(rs *runState, exec *types.Execution, workerID string, sub types.ParticipantSubState, errMsg string) {
	rs.participantMu.Lock()
	found := false
	for i := range exec.Participants {
		if exec.Participants[i].WorkerID == workerID {
			exec.Participants[i].SubState = sub
			exec.Participants[i].Error = errMsg
			found = true
			break
		}
	}
	if !found {
		exec.Participants = append(exec.Participants, types.ParticipantState{WorkerID: workerID, SubState: sub, Error: errMsg})
	}
	rs.participantMu.Unlock()
	e.persist(exec)
}
