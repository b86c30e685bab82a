package execution

import (
	"context"
	"fmt"

	"github.com/stormbench/orchestrator/pkg/types"
)

// runLifecycle drives one execution through precheck, prepare, run (or
// fill-cluster), and cleanup in sequence. A panic anywhere in the
// sequence is recovered and turned into a failed execution instead of
// crashing the process — the Go analogue of the source's
// try/finally: self._cleanup_execution. cleanupRunState always runs on
// the way out so the engine never leaks a control surface for an
// execution no goroutine is driving anymore.
func (e *Engine) runLifecycle(ctx context.Context, exec *types.Execution, cluster *types.Cluster, rs *runState, runPrechecks bool) {
	cmdLog := newCommandLog()
	defer func() {
		if r := recover(); r != nil {
			engineLog.Error().Str("execution_id", exec.ID).Interface("panic", r).Msg("execution lifecycle panicked")
			e.fail(exec, types.ErrorInternal, "internal error")
			if path, err := e.store.SaveExecutionArtifact(exec.ID, "commands.json", cmdLog.snapshot()); err == nil {
				exec.CommandLogPath = path
				e.persist(exec)
			}
			e.metrics.CloseExecutionStreams(exec.ID)
		}
		e.cleanupRunState(exec.ID)
	}()

	if _, err := e.store.SaveWorkloadSnapshot(exec.ID, &exec.Workload); err != nil {
		engineLog.Warn().Err(err).Str("execution_id", exec.ID).Msg("failed to persist workload snapshot")
	}

	inventory, err := e.store.ListWorkers()
	if err != nil {
		e.fail(exec, types.ErrorInternal, fmt.Sprintf("loading worker inventory: %v", err))
		return
	}

	excluded := map[string]bool{}
	if runPrechecks {
		if !e.runPrechecksPhase(ctx, exec, cluster, inventory, excluded) {
			return
		}
	}

	active, ok := e.runPreparePhase(ctx, exec, cluster, inventory, excluded, cmdLog)
	if !ok {
		if path, err := e.store.SaveExecutionArtifact(exec.ID, "commands.json", cmdLog.snapshot()); err == nil {
			exec.CommandLogPath = path
			e.persist(exec)
		}
		return
	}
	rs.setParticipants(active)

	if exec.Workload.Tool == types.ToolFillCluster {
		e.runFillClusterPhase(ctx, exec, cluster, rs, cmdLog)
	} else {
		e.runExecutionPhase(ctx, exec, rs, cmdLog)
	}

	e.runCleanupPhase(ctx, exec, rs, cmdLog)
}
