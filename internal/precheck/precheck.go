// Package precheck implements the PrecheckEngine: cluster-health,
// custom-command, and per-worker health checks that decide whether an
// execution is cleared to run.
//
// Phases run in order: cluster checks (cluster_health, mon_quorum,
// osd_status, pg_status, capacity, mgr_status), operator-supplied
// custom commands, then per-worker health checks. The pass/warn/fail
// rollup is computed from the Severity of each types.CheckResult; the
// health package is used only for the worker checks' storage-endpoint
// TCP probe.
package precheck

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stormbench/orchestrator/internal/agentsurface"
	"github.com/stormbench/orchestrator/internal/remote"
	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
)

// Engine is this repository's PrecheckEngine implementation.
type Engine struct {
	runner      *remote.Runner
	agentClient *agentsurface.Client
}

// New creates an Engine.
func New(runner *remote.Runner) *Engine {
	return &Engine{runner: runner, agentClient: agentsurface.New(5 * time.Second)}
}

var precheckLog = log.WithComponent("precheck")

// Run executes the cluster, custom-command, and worker-check phases in
// order and produces the overall verdict.
func (e *Engine) Run(ctx context.Context, executionID string, cluster *types.Cluster, workers []*types.Worker, opts types.PrecheckOptions) *types.PrecheckReport {
	timer := metrics.NewTimer()
	report := &types.PrecheckReport{
		ExecutionID: executionID,
		StartedAt:   time.Now(),
	}

	if opts.ClusterHealth {
		precheckLog.Info().Str("execution_id", executionID).Msg("running cluster health checks")
		report.Checks = append(report.Checks, e.clusterChecks(ctx, cluster)...)
	}

	for _, cmd := range opts.CustomCommands {
		result := e.runCustomCommand(ctx, cluster, cmd)
		report.Checks = append(report.Checks, result)
		if !result.Pass && cmd.Blocking {
			// A blocking custom command failure aborts the remaining
			// custom-command list, per spec; worker checks still run
			// so the report reflects full fleet state.
			break
		}
	}

	if opts.ClientHealth {
		precheckLog.Info().Str("execution_id", executionID).Msg("running worker health checks")
		workerChecks, excluded := e.workerChecks(ctx, cluster, workers)
		report.Checks = append(report.Checks, workerChecks...)
		report.ExcludedWorkers = excluded

		healthy := len(workers) - len(excluded)
		minRatio := opts.MinHealthyRatio
		if minRatio <= 0 {
			minRatio = 1.0
		}
		if len(workers) > 0 && float64(healthy)/float64(len(workers)) < minRatio {
			report.BlockingIssues = append(report.BlockingIssues,
				fmt.Sprintf("[Worker] only %d/%d workers healthy, below minimum ratio %.2f", healthy, len(workers), minRatio))
		}
	}

	for _, check := range report.Checks {
		label := "[" + checkGroup(check.Name) + "] " + check.Name + ": " + check.Detail
		switch {
		case !check.Pass && check.Severity == types.SeverityCritical:
			report.BlockingIssues = append(report.BlockingIssues, label)
		case !check.Pass:
			report.Warnings = append(report.Warnings, label)
		}
	}

	report.EndedAt = time.Now()
	switch {
	case len(report.BlockingIssues) > 0:
		report.Verdict = types.VerdictFailed
		report.ProceedHint = fmt.Sprintf("cannot proceed: %d blocking issue(s)", len(report.BlockingIssues))
	case len(report.Warnings) > 0:
		report.Verdict = types.VerdictPassedWithWarnings
		report.ProceedHint = fmt.Sprintf("can proceed with %d warning(s)", len(report.Warnings))
	default:
		report.Verdict = types.VerdictPassed
		report.ProceedHint = "all checks passed"
	}

	timer.ObserveDuration(metrics.PrecheckDuration)
	metrics.PrechecksTotal.WithLabelValues(string(report.Verdict)).Inc()
	precheckLog.Info().Str("execution_id", executionID).Str("verdict", string(report.Verdict)).Msg("prechecks complete")

	return report
}

func checkGroup(name string) string {
	switch name {
	case "cluster_health", "mon_quorum", "osd_status", "pg_status", "capacity", "mgr_status":
		return "Cluster"
	default:
		if strings.HasPrefix(name, "worker:") {
			return "Worker"
		}
		return "Command"
	}
}

func (e *Engine) runCustomCommand(ctx context.Context, cluster *types.Cluster, cmd types.CustomCommand) types.CheckResult {
	if cluster.AdminNode == "" {
		return types.CheckResult{Name: cmd.Name, Severity: types.SeverityCritical, Pass: false, Detail: "no admin node configured"}
	}

	res := e.runner.Run(ctx, cluster.AdminNode, cluster.AdminCredentials, cmd.Command, 30*time.Second)
	if !res.Success() {
		severity := types.SeverityWarning
		if cmd.Blocking {
			severity = types.SeverityCritical
		}
		return types.CheckResult{Name: cmd.Name, Severity: severity, Pass: false, Detail: strings.TrimSpace(res.Stderr)}
	}
	return types.CheckResult{Name: cmd.Name, Severity: types.SeverityInfo, Pass: true, Detail: "ok"}
}
