package execution

import (
	"context"
	"time"

	"github.com/stormbench/orchestrator/internal/workload"
	"github.com/stormbench/orchestrator/pkg/types"
	"golang.org/x/sync/semaphore"
)

// runFillClusterPhase drives the fill-cluster workload variant: fan
// out one write chunk per participant per round, sum the raw bytes
// written, multiply by the cluster's replication factor to get
// "effective bytes", and stop once effective/capacity reaches the
// policy's target.
func (e *Engine) runFillClusterPhase(ctx context.Context, exec *types.Execution, cluster *types.Cluster, rs *runState, cmdLog *commandLog) {
	e.setStatus(exec, types.StatusRunning, types.PhaseRampUp)
	exec.StartedAt = time.Now()
	e.persist(exec)

	policy := exec.Workload.FillCluster
	if policy == nil {
		e.fail(exec, types.ErrorInternal, "fill-cluster workload missing policy")
		return
	}

	deadline := exec.StartedAt.Add(exec.Workload.Test.Duration + fanoutGrace)
	phaseCtx, cancel := context.WithDeadline(ctx, deadline)
	rs.setPhaseCancel(cancel)
	defer cancel()

	e.setStatus(exec, types.StatusRunning, types.PhaseSteadyState)

	replication := policy.ReplicationFactor
	if replication <= 0 {
		replication = 1
	}

	var totalRaw int64
	paused := false

fillLoop:
	for chunkIndex := 0; ; chunkIndex++ {
		stop, pause := rs.checkpoint()
		if stop {
			break fillLoop
		}
		if pause != paused {
			paused = pause
			if paused {
				e.setStatus(exec, types.StatusPaused, exec.Phase)
			} else {
				e.setStatus(exec, types.StatusRunning, exec.Phase)
			}
		}
		if paused {
			e.appendZeroAggregate(exec)
			select {
			case <-time.After(controlPollInterval):
				continue fillLoop
			case <-phaseCtx.Done():
				break fillLoop
			}
		}

		select {
		case added := <-rs.scaleUpCh:
			rs.scaleUp(added)
		default:
		}

		participants := rs.snapshotParticipants()
		if rs.drained() {
			e.fail(exec, types.ErrorDrained, "drained")
			return
		}

		roundBytes, done := e.runFillChunkRound(phaseCtx, exec, cluster, rs, cmdLog, participants, chunkIndex)
		totalRaw += roundBytes

		agg := types.MetricSample{Timestamp: time.Now(), Emitter: "aggregate", WriteBytesPerSec: float64(roundBytes)}
		if err := e.metrics.Append(exec.ID, "aggregate", agg); err != nil {
			engineLog.Error().Err(err).Str("execution_id", exec.ID).Msg("failed to persist fill-cluster round sample")
		}
		exec.LastAggregate = &agg
		e.persist(exec)

		effective := float64(totalRaw) * float64(replication)
		if policy.CapacityBytes > 0 && effective/float64(policy.CapacityBytes) >= policy.TargetPercent {
			break fillLoop
		}

		if done {
			engineLog.Warn().Str("execution_id", exec.ID).Msg("fill-cluster fan-out deadline exceeded; abandoning outstanding worker tasks")
			break fillLoop
		}
	}

	e.setStatus(exec, exec.Status, types.PhaseRampDown)
}

// runFillChunkRound fans out one RunFillChunk call to every
// participant, returning the round's summed raw bytes written and
// whether the phase deadline has already elapsed.
func (e *Engine) runFillChunkRound(ctx context.Context, exec *types.Execution, cluster *types.Cluster, rs *runState, cmdLog *commandLog, participants []*types.Worker, chunkIndex int) (int64, bool) {
	type chunkResult struct {
		workerID string
		bytes    int64
		entry    workload.CommandLogEntry
		err      error
	}

	resCh := make(chan chunkResult, len(participants))
	sem := semaphore.NewWeighted(maxFanOut)
	for _, w := range participants {
		w := w
		go func() {
			if err := sem.Acquire(ctx, 1); err != nil {
				resCh <- chunkResult{workerID: w.ID, err: err}
				return
			}
			defer sem.Release(1)
			n, entry, err := e.driver.RunFillChunk(ctx, w, &exec.Workload, chunkIndex, cluster)
			resCh <- chunkResult{workerID: w.ID, bytes: n, entry: entry, err: err}
		}()
	}

	var roundBytes int64
	for range participants {
		r := <-resCh
		cmdLog.add(r.entry)
		if r.err != nil {
			e.updateParticipant(rs, exec, r.workerID, types.ParticipantFailed, r.err.Error())
			continue
		}
		roundBytes += r.bytes
	}

	select {
	case <-ctx.Done():
		return roundBytes, true
	default:
		return roundBytes, false
	}
}
