package orchestrator

import (
	"github.com/stormbench/orchestrator/internal/configstore"
	"github.com/stormbench/orchestrator/internal/execution"
	"github.com/stormbench/orchestrator/pkg/metrics"
)

// storeMetricsAdapter narrows *configstore.Store to the read-only
// shape pkg/metrics.Collector depends on, so the metrics package never
// needs to import pkg/types.
type storeMetricsAdapter struct {
	store *configstore.Store
}

func (a storeMetricsAdapter) ListWorkers() ([]metrics.Worker, error) {
	workers, err := a.store.ListWorkers()
	if err != nil {
		return nil, err
	}
	out := make([]metrics.Worker, len(workers))
	for i, w := range workers {
		out[i] = metrics.Worker{ConnectionStatus: string(w.ConnectionStatus)}
	}
	return out, nil
}

// engineMetricsAdapter narrows *execution.Engine the same way.
type engineMetricsAdapter struct {
	engine *execution.Engine
}

func (a engineMetricsAdapter) List() ([]metrics.Execution, error) {
	executions, err := a.engine.List()
	if err != nil {
		return nil, err
	}
	out := make([]metrics.Execution, len(executions))
	for i, e := range executions {
		out[i] = metrics.Execution{ID: e.ID, Status: string(e.Status)}
	}
	return out, nil
}

func (a engineMetricsAdapter) ParticipantCount(executionID string) int {
	return a.engine.ParticipantCount(executionID)
}

// NewMetricsCollector builds a pkg/metrics.Collector wired to this
// Orchestrator's store and engine.
func (o *Orchestrator) NewMetricsCollector() *metrics.Collector {
	return metrics.NewCollector(storeMetricsAdapter{o.Store}, engineMetricsAdapter{o.Engine})
}
