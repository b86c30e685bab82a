package orchestrator

import (
	"context"

	"github.com/stormbench/orchestrator/pkg/types"
)

// deployJob is one fan-out deployment request accepted by
// EnqueueDeploy and drained by runDeployQueue.
type deployJob struct {
	workers  []*types.Worker
	onUpdate func(workerID string, status types.DeploymentStatus)
	done     chan<- []deployResultEntry
}

// deployResultEntry carries the worker id, success flag and error of
// one deploy.Result; EnqueueDeploy's done channel delivers these
// entries rather than deploy.Result values, so the queue's callers stay
// decoupled from deploy.Result's shape.
type deployResultEntry struct {
	WorkerID string
	Success  bool
	Err      error
}

// EnqueueDeploy schedules a deployment fan-out to run on the
// orchestrator's background worker: the caller (an HTTP handler, a
// CLI command) returns immediately and the queue survives the
// caller's own scope. The returned channel receives exactly one slice
// of results once the fan-out completes.
func (o *Orchestrator) EnqueueDeploy(workers []*types.Worker, onUpdate func(workerID string, status types.DeploymentStatus)) <-chan []deployResultEntry {
	done := make(chan []deployResultEntry, 1)
	o.deployQueue <- deployJob{workers: workers, onUpdate: onUpdate, done: done}
	return done
}

func (o *Orchestrator) runDeployQueue() {
	for job := range o.deployQueue {
		results := o.Deployer.DeployAll(context.Background(), job.workers, job.onUpdate)
		entries := make([]deployResultEntry, len(results))
		for i, r := range results {
			entries[i] = deployResultEntry{WorkerID: r.WorkerID, Success: r.Success, Err: r.Err}
			status := types.DeploymentSuccess
			if !r.Success {
				status = types.DeploymentFailed
			}
			if w, err := o.Store.GetWorker(r.WorkerID); err == nil {
				w.DeploymentStatus = status
				_ = o.Store.UpdateWorker(w)
			}
		}
		job.done <- entries
		close(job.done)
	}
}
