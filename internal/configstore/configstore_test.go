package configstore

import (
	"testing"

	"github.com/stormbench/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_WorkerCRUD(t *testing.T) {
	s := openTestStore(t)

	w := &types.Worker{ID: "w1", Address: "10.0.0.1", ConnectionStatus: types.ConnectionOnline}
	require.NoError(t, s.CreateWorker(w))

	got, err := s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", got.Address)

	w.Address = "10.0.0.2"
	require.NoError(t, s.UpdateWorker(w))
	got, err = s.GetWorker("w1")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.2", got.Address)

	all, err := s.ListWorkers()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, s.DeleteWorker("w1"))
	_, err = s.GetWorker("w1")
	assert.Error(t, err)
}

func TestStore_CreateWorker_RejectsDuplicateID(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateWorker(&types.Worker{ID: "w1"}))
	err := s.CreateWorker(&types.Worker{ID: "w1"})
	assert.Error(t, err)
}

func TestStore_CreateExecution_AssignsSortableID(t *testing.T) {
	s := openTestStore(t)

	e1 := &types.Execution{}
	require.NoError(t, s.CreateExecution(e1))
	assert.NotEmpty(t, e1.ID)
	assert.Len(t, e1.ID, 32)

	e2 := &types.Execution{}
	require.NoError(t, s.CreateExecution(e2))

	list, err := s.ListExecutions()
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestStore_CreateExecution_KeepsExplicitID(t *testing.T) {
	s := openTestStore(t)
	e := &types.Execution{ID: "explicit-id"}
	require.NoError(t, s.CreateExecution(e))

	got, err := s.GetExecution("explicit-id")
	require.NoError(t, err)
	assert.Equal(t, "explicit-id", got.ID)
}

func TestStore_UpdateExecution_AllowsTerminalStatus(t *testing.T) {
	s := openTestStore(t)
	e := &types.Execution{ID: "e1", Status: types.StatusRunning}
	require.NoError(t, s.CreateExecution(e))

	e.Status = types.StatusCompleted
	require.NoError(t, s.UpdateExecution(e))

	got, err := s.GetExecution("e1")
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, got.Status)
}

func TestStore_ClusterCRUD(t *testing.T) {
	s := openTestStore(t)

	c := &types.Cluster{Name: "cluster-a", StorageFamily: types.StorageFamilyBlock, BackendVariant: types.BackendCephRBD}
	require.NoError(t, s.CreateCluster(c))

	got, err := s.GetCluster("cluster-a")
	require.NoError(t, err)
	assert.Equal(t, types.BackendCephRBD, got.BackendVariant)

	list, err := s.ListClusters()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteCluster("cluster-a"))
	list, err = s.ListClusters()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_DeleteCluster_MissingIsNotAnError(t *testing.T) {
	s := openTestStore(t)
	assert.NoError(t, s.DeleteCluster("never-existed"))
}

func TestStore_CreateCluster_RejectsDuplicateName(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateCluster(&types.Cluster{Name: "dup"}))
	err := s.CreateCluster(&types.Cluster{Name: "dup"})
	assert.Error(t, err)
}

func TestStore_WorkloadCRUD(t *testing.T) {
	s := openTestStore(t)

	w := &types.Workload{Name: "wl-a", ClusterName: "cluster-a"}
	require.NoError(t, s.CreateWorkload(w))

	got, err := s.GetWorkload("wl-a")
	require.NoError(t, err)
	assert.Equal(t, "cluster-a", got.ClusterName)

	list, err := s.ListWorkloads()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteWorkload("wl-a"))
	list, err = s.ListWorkloads()
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestStore_SaveExecutionArtifact_WritesUnderExecutionDir(t *testing.T) {
	s := openTestStore(t)

	type report struct {
		OK bool `json:"ok"`
	}
	path, err := s.SaveExecutionArtifact("e1", "report.json", report{OK: true})
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestStore_ListClusters_SortedByName(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateCluster(&types.Cluster{Name: "zeta"}))
	require.NoError(t, s.CreateCluster(&types.Cluster{Name: "alpha"}))

	list, err := s.ListClusters()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)
	assert.Equal(t, "zeta", list[1].Name)
}
