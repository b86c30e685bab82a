package execution

import (
	"context"

	"github.com/stormbench/orchestrator/pkg/types"
)

// runPrechecksPhase runs the PrecheckEngine over the current worker
// inventory, persists the report, and records excluded workers for the
// prepare phase to skip. Returns false (halting the lifecycle before
// any benchmark remote command is ever issued) when the verdict is
// failed.
func (e *Engine) runPrechecksPhase(ctx context.Context, exec *types.Execution, cluster *types.Cluster, inventory []*types.Worker, excluded map[string]bool) bool {
	e.setStatus(exec, types.StatusPrechecks, types.PhasePrecheck)

	report := e.precheck.Run(ctx, exec.ID, cluster, inventory, exec.Workload.Prechecks)
	if path, err := e.store.SaveExecutionArtifact(exec.ID, "precheck_report.json", report); err == nil {
		exec.PrecheckReportPath = path
	} else {
		engineLog.Warn().Err(err).Str("execution_id", exec.ID).Msg("failed to persist precheck report")
	}

	for _, id := range report.ExcludedWorkers {
		excluded[id] = true
	}

	if report.Verdict == types.VerdictFailed {
		e.fail(exec, types.ErrorPrecheckBlocker, report.ProceedHint)
		return false
	}

	e.persist(exec)
	return true
}
