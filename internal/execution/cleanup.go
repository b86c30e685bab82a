package execution

import (
	"context"
	"sync"
	"time"

	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
	"golang.org/x/sync/semaphore"
)

// runCleanupPhase fans out unmount/cleanup to every participant,
// persists the command log, computes the end-of-run summary from the
// MetricsStore, and transitions the execution to its terminal status:
// completed, cancelled (a stop was requested), or failed (already set
// by an earlier phase, e.g. "drained").
func (e *Engine) runCleanupPhase(ctx context.Context, exec *types.Execution, rs *runState, cmdLog *commandLog) {
	e.setStatus(exec, exec.Status, types.PhaseCleanup)

	participants := rs.snapshotParticipants()
	cleanupCtx, cancel := context.WithTimeout(context.Background(), fanoutGrace)
	defer cancel()

	sem := semaphore.NewWeighted(maxFanOut)
	var wg sync.WaitGroup
	for _, w := range participants {
		w := w
		wg.Add(1)
		if err := sem.Acquire(cleanupCtx, 1); err != nil {
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			entries := e.driver.Cleanup(cleanupCtx, w, exec.ID, exec.Workload.Mount)
			cmdLog.add(entries...)
		}()
	}
	wg.Wait()

	if path, err := e.store.SaveExecutionArtifact(exec.ID, "commands.json", cmdLog.snapshot()); err == nil {
		exec.CommandLogPath = path
	} else {
		engineLog.Warn().Err(err).Str("execution_id", exec.ID).Msg("failed to persist command log")
	}

	if exec.CompletedAt.IsZero() {
		exec.CompletedAt = time.Now()
	}

	finalStatus := types.StatusCompleted
	switch {
	case exec.Status == types.StatusFailed:
		finalStatus = types.StatusFailed
	default:
		if stopRequested, _ := rs.checkpoint(); stopRequested {
			finalStatus = types.StatusCancelled
		}
	}
	e.setStatus(exec, finalStatus, types.PhaseDone)

	summary := e.computeSummary(exec)
	if path, err := e.store.SaveExecutionArtifact(exec.ID, "summary.json", summary); err == nil {
		exec.SummaryPath = path
		e.persist(exec)
	} else {
		engineLog.Warn().Err(err).Str("execution_id", exec.ID).Msg("failed to persist execution summary")
	}

	if !exec.StartedAt.IsZero() {
		metrics.ExecutionDuration.WithLabelValues(string(finalStatus)).Observe(exec.CompletedAt.Sub(exec.StartedAt).Seconds())
	}
	metrics.ExecutionsTotal.WithLabelValues(string(finalStatus)).Inc()

	e.metrics.CloseExecutionStreams(exec.ID)
	engineLog.Info().Str("execution_id", exec.ID).Str("status", string(finalStatus)).Msg("execution reached terminal status")
}

// computeSummary derives peak IOPS, peak throughput, average latency,
// sample count, and the worker roster from the aggregate metric
// stream.
func (e *Engine) computeSummary(exec *types.Execution) types.ExecutionSummary {
	samples, err := e.metrics.Read(exec.ID, "aggregate", time.Time{}, time.Time{}, 0)
	if err != nil {
		engineLog.Warn().Err(err).Str("execution_id", exec.ID).Msg("failed to read aggregate stream for summary")
	}

	summary := types.ExecutionSummary{
		ExecutionID:     exec.ID,
		Status:          exec.Status,
		StartedAt:       exec.StartedAt,
		CompletedAt:     exec.CompletedAt,
		DurationSeconds: exec.CompletedAt.Sub(exec.StartedAt).Seconds(),
		ClientCount:     len(exec.Participants),
		SampleCount:     len(samples),
	}

	var latSum float64
	for _, s := range samples {
		iops := s.ReadOps + s.WriteOps
		if iops > summary.PeakIOPS {
			summary.PeakIOPS = iops
		}
		throughputMB := (s.ReadBytesPerSec + s.WriteBytesPerSec) / (1024 * 1024)
		if throughputMB > summary.PeakThroughputMB {
			summary.PeakThroughputMB = throughputMB
		}
		latSum += s.Latency.Avg
	}
	if len(samples) > 0 {
		summary.AvgLatencyUs = latSum / float64(len(samples))
	}

	for _, p := range exec.Participants {
		summary.WorkerRoster = append(summary.WorkerRoster, p.WorkerID)
	}

	return summary
}
