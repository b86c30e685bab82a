package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConfigStore struct {
	workers []Worker
	err     error
}

func (f fakeConfigStore) ListWorkers() ([]Worker, error) {
	return f.workers, f.err
}

type fakeExecutionEngine struct {
	executions   []Execution
	participants map[string]int
}

func (f fakeExecutionEngine) List() ([]Execution, error) {
	return f.executions, nil
}

func (f fakeExecutionEngine) ParticipantCount(executionID string) int {
	return f.participants[executionID]
}

func TestCollector_CollectWorkerMetrics_GroupsByConnectionStatus(t *testing.T) {
	store := fakeConfigStore{workers: []Worker{
		{ConnectionStatus: "online"},
		{ConnectionStatus: "online"},
		{ConnectionStatus: "offline"},
	}}
	c := NewCollector(store, fakeExecutionEngine{})

	c.collectWorkerMetrics()

	assert.Equal(t, float64(2), testutil.ToFloat64(WorkersTotal.WithLabelValues("online")))
	assert.Equal(t, float64(1), testutil.ToFloat64(WorkersTotal.WithLabelValues("offline")))
}

func TestCollector_CollectExecutionMetrics_SkipsTerminalStatuses(t *testing.T) {
	engine := fakeExecutionEngine{
		executions: []Execution{
			{ID: "e1", Status: "running"},
			{ID: "e2", Status: "completed"},
			{ID: "e3", Status: "failed"},
		},
		participants: map[string]int{"e1": 4},
	}
	c := NewCollector(fakeConfigStore{}, engine)

	c.collectExecutionMetrics()

	assert.Equal(t, float64(1), testutil.ToFloat64(ExecutionsInFlight.WithLabelValues("running")))
	assert.Equal(t, float64(4), testutil.ToFloat64(ParticipantsTotal.WithLabelValues("e1")))
}

func TestCollector_Collect_ToleratesStoreError(t *testing.T) {
	store := fakeConfigStore{err: assertError("boom")}
	c := NewCollector(store, fakeExecutionEngine{})

	assert.NotPanics(t, func() { c.collect() })
}

func TestCollector_StartStop(t *testing.T) {
	c := NewCollector(fakeConfigStore{}, fakeExecutionEngine{})
	c.Start()
	c.Stop()
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestNewCollector_NotNil(t *testing.T) {
	c := NewCollector(fakeConfigStore{}, fakeExecutionEngine{})
	require.NotNil(t, c)
}
