package metrics

import (
	"time"
)

// ConfigStore is the subset of internal/configstore.Store the
// collector needs: a worker-catalog snapshot for WorkersTotal.
type ConfigStore interface {
	ListWorkers() ([]Worker, error)
}

// Worker is the subset of a worker record the collector reads. It
// mirrors pkg/types.Worker's connection-status field without creating
// an import cycle between pkg/metrics and pkg/types.
type Worker struct {
	ConnectionStatus string
}

// ExecutionEngine is the subset of internal/execution.Engine the
// collector needs: in-flight execution counts and per-execution
// participant counts.
type ExecutionEngine interface {
	List() ([]Execution, error)
	ParticipantCount(executionID string) int
}

// Execution is the subset of an execution record the collector reads.
type Execution struct {
	ID     string
	Status string
}

// Collector periodically polls the ConfigStore's worker catalog and
// the ExecutionEngine's in-flight set and republishes them as gauges,
// so dashboards don't need direct access to either component.
type Collector struct {
	store  ConfigStore
	engine ExecutionEngine
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector.
func NewCollector(store ConfigStore, engine ExecutionEngine) *Collector {
	return &Collector{
		store:  store,
		engine: engine,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a background ticker.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	c.collectWorkerMetrics()
	c.collectExecutionMetrics()
}

func (c *Collector) collectWorkerMetrics() {
	workers, err := c.store.ListWorkers()
	if err != nil {
		return
	}

	counts := make(map[string]int)
	for _, w := range workers {
		counts[w.ConnectionStatus]++
	}
	for status, count := range counts {
		WorkersTotal.WithLabelValues(status).Set(float64(count))
	}
}

func (c *Collector) collectExecutionMetrics() {
	executions, err := c.engine.List()
	if err != nil {
		return
	}

	inFlight := make(map[string]int)
	for _, exec := range executions {
		switch exec.Status {
		case "completed", "failed", "cancelled":
			continue
		}
		inFlight[exec.Status]++
		ParticipantsTotal.WithLabelValues(exec.ID).Set(float64(c.engine.ParticipantCount(exec.ID)))
	}
	for status, count := range inFlight {
		ExecutionsInFlight.WithLabelValues(status).Set(float64(count))
	}
}
