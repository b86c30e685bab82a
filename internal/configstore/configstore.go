// Package configstore implements the ConfigStore contract: a durable
// catalog of cluster and workload definitions, a worker inventory, and
// an execution record table with at minimum an id index and a
// created-at index.
//
// Clusters and workloads are kept as one YAML file per object under
// the data root's config/ tree; the worker catalog and execution
// records are kept in a single bbolt database, one bucket per entity
// type.
package configstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/stormbench/orchestrator/internal/idgen"
	"github.com/stormbench/orchestrator/pkg/types"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"
)

var (
	bucketWorkers    = []byte("workers")
	bucketExecutions = []byte("executions")
)

// storeVersion is bumped whenever the on-disk envelope gains a field
// that an older envelope must be migrated to carry. Store.Open runs
// migrate once at startup, re-tagging every older envelope in the
// worker and execution buckets with the current version before serving.
const storeVersion = 1

// envelope wraps a stored value with the version it was written under.
type envelope struct {
	Version int             `json:"version"`
	Data    json.RawMessage `json:"data"`
}

// Store is the ConfigStore implementation.
type Store struct {
	db      *bolt.DB
	dataDir string

	// clusters/workloads are file-backed; name-collision checks need a
	// single writer lock since two goroutines could otherwise race to
	// create the same name.
	mu sync.Mutex
}

// Open opens (creating if absent) the config store rooted at dataDir.
func Open(dataDir string) (*Store, error) {
	for _, dir := range []string{
		filepath.Join(dataDir, "config", "clusters"),
		filepath.Join(dataDir, "config", "workloads", "templates"),
		filepath.Join(dataDir, "config", "workloads", "custom"),
		filepath.Join(dataDir, "executions"),
	} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	dbPath := filepath.Join(dataDir, "catalog.db")
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("opening catalog database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketWorkers, bucketExecutions} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("creating bucket %s: %w", bucket, err)
			}
		}
		return nil
	}); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, dataDir: dataDir}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate upgrades any stored envelope with Version < storeVersion.
// There are no migrations yet at storeVersion 1; this exists so a
// future field addition has a place to run a rewrite pass before the
// store begins serving.
func (s *Store) migrate() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketWorkers, bucketExecutions} {
			b := tx.Bucket(name)
			cursor := b.Cursor()
			for k, v := cursor.First(); k != nil; k, v = cursor.Next() {
				var env envelope
				if err := json.Unmarshal(v, &env); err != nil || len(env.Data) == 0 {
					continue // pre-envelope record; left as-is, read path tolerates it
				}
				if env.Version >= storeVersion {
					continue
				}
				env.Version = storeVersion
				rewritten, err := json.Marshal(env)
				if err != nil {
					return err
				}
				if err := b.Put(k, rewritten); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func putEnvelope(b *bolt.Bucket, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	env := envelope{Version: storeVersion, Data: raw}
	encoded, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), encoded)
}

func getEnvelope(b *bolt.Bucket, key string, out any) error {
	raw := b.Get([]byte(key))
	if raw == nil {
		return fmt.Errorf("not found: %s", key)
	}
	// A pre-envelope record holds the value itself.
	return unmarshalEnvelopeOrRaw(raw, out)
}

// --- Worker catalog ---

// CreateWorker adds a worker to the catalog. Name (id) collisions are
// rejected.
func (s *Store) CreateWorker(w *types.Worker) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketWorkers)
		if b.Get([]byte(w.ID)) != nil {
			return fmt.Errorf("worker already exists: %s", w.ID)
		}
		return putEnvelope(b, w.ID, w)
	})
}

// UpdateWorker upserts a worker.
func (s *Store) UpdateWorker(w *types.Worker) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putEnvelope(tx.Bucket(bucketWorkers), w.ID, w)
	})
}

// GetWorker fetches a worker by id.
func (s *Store) GetWorker(id string) (*types.Worker, error) {
	var w types.Worker
	err := s.db.View(func(tx *bolt.Tx) error {
		return getEnvelope(tx.Bucket(bucketWorkers), id, &w)
	})
	if err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWorkers returns every worker in the catalog.
func (s *Store) ListWorkers() ([]*types.Worker, error) {
	var workers []*types.Worker
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).ForEach(func(k, v []byte) error {
			var w types.Worker
			if err := unmarshalEnvelopeOrRaw(v, &w); err != nil {
				return err
			}
			workers = append(workers, &w)
			return nil
		})
	})
	return workers, err
}

// DeleteWorker removes a worker from the catalog.
func (s *Store) DeleteWorker(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketWorkers).Delete([]byte(id))
	})
}

func unmarshalEnvelopeOrRaw(raw []byte, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		return json.Unmarshal(env.Data, out)
	}
	return json.Unmarshal(raw, out)
}

// --- Executions ---

// CreateExecution allocates a new execution record. The execution's ID
// is assigned here if not already set, using a time-ordered,
// lexically-sortable id so that ForEach iteration over the bucket (and
// therefore ListExecutions) is also a created-at index.
func (s *Store) CreateExecution(e *types.Execution) error {
	if e.ID == "" {
		e.ID = idgen.NewExecutionID()
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketExecutions)
		if b.Get([]byte(e.ID)) != nil {
			return fmt.Errorf("execution already exists: %s", e.ID)
		}
		return putEnvelope(b, e.ID, e)
	})
}

// UpdateExecution persists an execution's current state. The store
// does not reject updates to executions in a terminal status; the
// ExecutionEngine is responsible for that invariant (once status is
// terminal, no further mutation except reporting).
func (s *Store) UpdateExecution(e *types.Execution) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putEnvelope(tx.Bucket(bucketExecutions), e.ID, e)
	})
}

// GetExecution fetches an execution by id.
func (s *Store) GetExecution(id string) (*types.Execution, error) {
	var e types.Execution
	err := s.db.View(func(tx *bolt.Tx) error {
		return getEnvelope(tx.Bucket(bucketExecutions), id, &e)
	})
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// ListExecutions returns every execution record, ordered by creation
// time (oldest first).
func (s *Store) ListExecutions() ([]*types.Execution, error) {
	var executions []*types.Execution
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketExecutions).ForEach(func(k, v []byte) error {
			var e types.Execution
			if err := unmarshalEnvelopeOrRaw(v, &e); err != nil {
				return err
			}
			executions = append(executions, &e)
			return nil
		})
	})
	return executions, err
}

// --- Execution artifacts (JSON/YAML files under executions/<id>/) ---

// ExecutionDir returns the per-execution artifact directory rooted at
// dataDir, creating it if necessary. Holds config.yaml,
// precheck_report.json, commands.json, and summary.json (the metrics/
// subtree is owned by internal/metricsstore, not this store).
func (s *Store) ExecutionDir(executionID string) (string, error) {
	dir := filepath.Join(s.dataDir, "executions", executionID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating execution directory: %w", err)
	}
	return dir, nil
}

// SaveExecutionArtifact JSON-marshals v and writes it to
// executions/<id>/<filename>.
func (s *Store) SaveExecutionArtifact(executionID, filename string, v any) (string, error) {
	dir, err := s.ExecutionDir(executionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, filename)
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", err
	}
	return path, os.WriteFile(path, data, 0644)
}

// SaveWorkloadSnapshot writes the workload config.yaml snapshot taken
// at execution-allocation time (the execution's own copy, distinct
// from the live, editable workload definition).
func (s *Store) SaveWorkloadSnapshot(executionID string, w *types.Workload) (string, error) {
	dir, err := s.ExecutionDir(executionID)
	if err != nil {
		return "", err
	}
	path := filepath.Join(dir, "config.yaml")
	return path, writeYAML(path, w)
}

// --- Clusters (YAML-backed, keyed by name) ---

// CreateCluster writes a new cluster definition. Name collisions are
// rejected.
func (s *Store) CreateCluster(c *types.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.clusterPath(c.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("cluster already exists: %s", c.Name)
	}
	return writeYAML(path, c)
}

// UpdateCluster overwrites an existing cluster definition.
func (s *Store) UpdateCluster(c *types.Cluster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeYAML(s.clusterPath(c.Name), c)
}

// GetCluster reads a cluster definition by name.
func (s *Store) GetCluster(name string) (*types.Cluster, error) {
	var c types.Cluster
	if err := readYAML(s.clusterPath(name), &c); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListClusters returns every cluster definition.
func (s *Store) ListClusters() ([]*types.Cluster, error) {
	dir := filepath.Join(s.dataDir, "config", "clusters")
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var clusters []*types.Cluster
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		var c types.Cluster
		if err := readYAML(filepath.Join(dir, entry.Name()), &c); err != nil {
			return nil, err
		}
		clusters = append(clusters, &c)
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].Name < clusters[j].Name })
	return clusters, nil
}

// DeleteCluster removes a cluster definition. Deleting a cluster
// referenced by an in-flight execution is permitted: the execution
// holds its own snapshot and is unaffected.
func (s *Store) DeleteCluster(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.clusterPath(name))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

func (s *Store) clusterPath(name string) string {
	return filepath.Join(s.dataDir, "config", "clusters", name+".yaml")
}

// --- Workloads (YAML-backed, keyed by name) ---

// CreateWorkload writes a new workload definition. Name collisions are
// rejected.
func (s *Store) CreateWorkload(w *types.Workload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.workloadPath(w.Name)
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("workload already exists: %s", w.Name)
	}
	return writeYAML(path, w)
}

// UpdateWorkload overwrites an existing workload definition. Editing a
// workload never affects an execution that already entered prechecks:
// see types.Execution.Workload, a value copy taken at allocation time.
func (s *Store) UpdateWorkload(w *types.Workload) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeYAML(s.workloadPath(w.Name), w)
}

// GetWorkload reads a workload definition by name.
func (s *Store) GetWorkload(name string) (*types.Workload, error) {
	var w types.Workload
	if err := readYAML(s.workloadPath(name), &w); err != nil {
		return nil, err
	}
	return &w, nil
}

// ListWorkloads returns every workload definition (templates and custom).
func (s *Store) ListWorkloads() ([]*types.Workload, error) {
	var workloads []*types.Workload
	for _, sub := range []string{"templates", "custom"} {
		dir := filepath.Join(s.dataDir, "config", "workloads", sub)
		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		for _, entry := range entries {
			if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
				continue
			}
			var w types.Workload
			if err := readYAML(filepath.Join(dir, entry.Name()), &w); err != nil {
				return nil, err
			}
			workloads = append(workloads, &w)
		}
	}
	sort.Slice(workloads, func(i, j int) bool { return workloads[i].Name < workloads[j].Name })
	return workloads, nil
}

// DeleteWorkload removes a workload definition.
func (s *Store) DeleteWorkload(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range []string{"templates", "custom"} {
		path := filepath.Join(s.dataDir, "config", "workloads", sub, name+".yaml")
		if err := os.Remove(path); err == nil {
			return nil
		} else if !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func (s *Store) workloadPath(name string) string {
	return filepath.Join(s.dataDir, "config", "workloads", "custom", name+".yaml")
}

func writeYAML(path string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func readYAML(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, v)
}
