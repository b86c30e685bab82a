package precheck

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/stormbench/orchestrator/internal/agentsurface"
	"github.com/stormbench/orchestrator/pkg/health"
	"github.com/stormbench/orchestrator/pkg/types"
	"golang.org/x/sync/semaphore"
)

const maxConcurrentWorkerChecks = 64

var requiredTools = []string{"fio", "iperf3", "dd"}

// workerChecks runs reachability, agent liveness, tool-presence, and
// storage-endpoint TCP reachability checks against every worker in
// parallel and returns one CheckResult per worker plus the list of ids
// excluded for a critical failure. No host inventory (uptime, load,
// memory, disk) is collected, and mountpoint accessibility is not
// checked.
func (e *Engine) workerChecks(ctx context.Context, cluster *types.Cluster, workers []*types.Worker) ([]types.CheckResult, []string) {
	sem := semaphore.NewWeighted(maxConcurrentWorkerChecks)
	results := make([]types.CheckResult, len(workers))

	var wg sync.WaitGroup
	for i, w := range workers {
		i, w := i, w
		wg.Add(1)
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = types.CheckResult{Name: "worker:" + w.ID, Severity: types.SeverityCritical, Pass: false, Detail: err.Error()}
			wg.Done()
			continue
		}
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = e.checkWorker(ctx, cluster, w)
		}()
	}
	wg.Wait()

	var excluded []string
	for i, r := range results {
		if r.Severity == types.SeverityCritical {
			excluded = append(excluded, workers[i].ID)
		}
	}
	return results, excluded
}

func (e *Engine) checkWorker(ctx context.Context, cluster *types.Cluster, w *types.Worker) types.CheckResult {
	start := time.Now()
	res := e.runner.Run(ctx, w.Address, w.Credentials, "true", 10*time.Second)
	latency := time.Since(start)
	if !res.Success() {
		return types.CheckResult{
			Name: "worker:" + w.ID, Severity: types.SeverityCritical, Pass: false,
			Detail: fmt.Sprintf("unreachable: %v", res.Err),
		}
	}

	agentChecker := agentsurface.NewHealthChecker(e.agentClient, w.Address, w.ControlPort)
	agentResult := agentChecker.Check(ctx)
	if !agentResult.Healthy {
		return types.CheckResult{
			Name: "worker:" + w.ID, Severity: types.SeverityCritical, Pass: false,
			Detail: "agent not running or not responding: " + agentResult.Message,
		}
	}

	var missingTools []string
	for _, tool := range requiredTools {
		toolCheck := e.runner.Run(ctx, w.Address, w.Credentials, "command -v "+tool, 5*time.Second)
		if !toolCheck.Success() {
			missingTools = append(missingTools, tool)
		}
	}
	if len(missingTools) > 0 {
		return types.CheckResult{
			Name: "worker:" + w.ID, Severity: types.SeverityWarning, Pass: false,
			Detail: fmt.Sprintf("missing tools: %s (latency %s)", strings.Join(missingTools, ", "), latency),
		}
	}

	if endpoint := storageEndpoint(cluster); endpoint != "" {
		tcpResult := health.NewTCPChecker(endpoint).WithTimeout(5 * time.Second).Check(ctx)
		if !tcpResult.Healthy {
			return types.CheckResult{
				Name: "worker:" + w.ID, Severity: types.SeverityWarning, Pass: false,
				Detail: fmt.Sprintf("storage endpoint %s unreachable: %s", endpoint, tcpResult.Message),
			}
		}
	}

	return types.CheckResult{
		Name: "worker:" + w.ID, Severity: types.SeverityInfo, Pass: true,
		Detail: fmt.Sprintf("reachable, agent up, tools present (latency %s)", latency),
	}
}

// storageEndpoint picks one dialable host:port for the cluster's
// backend, used for the worker-to-storage latency check. Returns ""
// when the cluster has no variant connection configured with a port
// (e.g. CephFS/RBD mon hosts carry no port in this model).
func storageEndpoint(cluster *types.Cluster) string {
	if cluster == nil {
		return ""
	}
	switch cluster.BackendVariant {
	case types.BackendNFS:
		if cluster.NFSConnection != nil {
			return cluster.NFSConnection.Server + ":2049"
		}
	case types.BackendGlusterFS:
		if cluster.GlusterConnection != nil && len(cluster.GlusterConnection.Servers) > 0 {
			return cluster.GlusterConnection.Servers[0] + ":24007"
		}
	case types.BackendS3Compat:
		if cluster.S3Connection != nil {
			return strings.TrimPrefix(strings.TrimPrefix(cluster.S3Connection.Endpoint, "https://"), "http://")
		}
	}
	return ""
}
