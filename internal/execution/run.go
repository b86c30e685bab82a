package execution

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/stormbench/orchestrator/internal/eventbus"
	"github.com/stormbench/orchestrator/internal/workload"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
	"golang.org/x/sync/semaphore"
)

// controlPollInterval is the fan-out loop's checkpoint cadence: how
// often stop/pause/resume/scale-up signals are observed while worker
// benchmark invocations are in flight.
const controlPollInterval = 500 * time.Millisecond

type runResult struct {
	workerID string
	sample   types.MetricSample
	entry    workload.CommandLogEntry
	err      error
}

// runExecutionPhase fans out the workload driver's Run to every
// participant under a single deadline, persisting per-worker and
// aggregate samples as results arrive, while staying responsive to
// stop/pause/resume/scale-up/scale-down control signals at each
// checkpoint.
func (e *Engine) runExecutionPhase(ctx context.Context, exec *types.Execution, rs *runState, cmdLog *commandLog) {
	e.setStatus(exec, types.StatusRunning, types.PhaseRampUp)
	exec.StartedAt = time.Now()
	e.persist(exec)

	deadline := exec.StartedAt.Add(exec.Workload.Test.Duration + fanoutGrace)
	phaseCtx, cancel := context.WithDeadline(ctx, deadline)
	rs.setPhaseCancel(cancel)
	defer cancel()

	resultsCh := make(chan runResult, maxFanOut)
	sem := semaphore.NewWeighted(maxFanOut)
	var launchMu sync.Mutex
	launched := map[string]bool{}
	pending := 0

	launch := func(w *types.Worker) {
		launchMu.Lock()
		if launched[w.ID] {
			launchMu.Unlock()
			return
		}
		launched[w.ID] = true
		pending++
		launchMu.Unlock()

		workerCtx, workerCancel := context.WithCancel(phaseCtx)
		rs.registerCancel(w.ID, workerCancel)
		e.updateParticipant(rs, exec, w.ID, types.ParticipantRunning, "")

		go func() {
			if err := sem.Acquire(workerCtx, 1); err != nil {
				rs.unregisterCancel(w.ID)
				resultsCh <- runResult{workerID: w.ID, err: err}
				return
			}
			defer sem.Release(1)
			sample, entry, err := e.driver.Run(workerCtx, w, &exec.Workload, exec.ID)
			rs.unregisterCancel(w.ID)
			resultsCh <- runResult{workerID: w.ID, sample: sample, entry: entry, err: err}
		}()
	}

	for _, w := range rs.snapshotParticipants() {
		launch(w)
	}
	e.setStatus(exec, types.StatusRunning, types.PhaseSteadyState)

	perWorkerLatest := map[string]types.MetricSample{}
	paused := false

	ticker := time.NewTicker(controlPollInterval)
	defer ticker.Stop()

loop:
	for {
		launchMu.Lock()
		remaining := pending
		launchMu.Unlock()
		if remaining <= 0 {
			break
		}

		select {
		case res := <-resultsCh:
			launchMu.Lock()
			pending--
			launchMu.Unlock()
			e.handleRunResult(exec, rs, cmdLog, perWorkerLatest, res)

		case added := <-rs.scaleUpCh:
			for _, w := range rs.scaleUp(added) {
				launch(w)
				e.publishWorker(w.ID, eventbus.EventExecutionStart, eventbus.ExecutionStartPayload{WorkloadName: exec.Workload.Name})
			}

		case <-ticker.C:
			stop, pause := rs.checkpoint()
			if stop {
				break loop
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
			}

		case <-phaseCtx.Done():
			engineLog.Warn().Str("execution_id", exec.ID).Msg("fan-out deadline exceeded; abandoning outstanding worker tasks")
			break loop
		}
	}

	if rs.drained() {
		e.fail(exec, types.ErrorDrained, "drained")
		return
	}

	e.setStatus(exec, exec.Status, types.PhaseRampDown)
}

// handleRunResult persists a returning worker's sample (or records its
// failure), recomputes the in-memory aggregate from every worker's
// latest sample, and appends it to the aggregate stream.
func (e *Engine) handleRunResult(exec *types.Execution, rs *runState, cmdLog *commandLog, latest map[string]types.MetricSample, res runResult) {
	cmdLog.add(res.entry)

	if res.err != nil {
		if errors.Is(res.err, context.Canceled) {
			e.updateParticipant(rs, exec, res.workerID, types.ParticipantStopped, "cancelled")
		} else {
			e.updateParticipant(rs, exec, res.workerID, types.ParticipantFailed, res.err.Error())
			engineLog.Warn().Str("execution_id", exec.ID).Str("worker_id", res.workerID).Err(res.err).Msg("worker run failed")
		}
		return
	}

	if err := e.metrics.Append(exec.ID, res.workerID, res.sample); err != nil {
		engineLog.Error().Err(err).Str("execution_id", exec.ID).Str("worker_id", res.workerID).Msg("failed to persist per-worker sample")
	}
	e.updateParticipant(rs, exec, res.workerID, types.ParticipantStopped, "")

	rs.participantMu.Lock()
	latest[res.workerID] = res.sample
	samples := make([]types.MetricSample, 0, len(latest))
	for _, s := range latest {
		samples = append(samples, s)
	}
	rs.participantMu.Unlock()

	agg := aggregateSamples(samples)
	agg.Timestamp = time.Now()
	if err := e.metrics.Append(exec.ID, "aggregate", agg); err != nil {
		engineLog.Error().Err(err).Str("execution_id", exec.ID).Msg("failed to persist aggregate sample")
	}
	exec.LastAggregate = &agg
	e.persist(exec)
	metrics.ParticipantsTotal.WithLabelValues(exec.ID).Set(float64(len(latest)))
}

func (e *Engine) appendZeroAggregate(exec *types.Execution) {
	zero := zeroAggregate()
	zero.Timestamp = time.Now()
	if err := e.metrics.Append(exec.ID, "aggregate", zero); err != nil {
		engineLog.Error().Err(err).Str("execution_id", exec.ID).Msg("failed to persist paused aggregate sample")
	}
	exec.LastAggregate = &zero
}
