// Package metricsstore implements the MetricsStore: an append-only
// per-execution time-series of per-worker and aggregate metric
// samples, with bounded-range reads and JSON/CSV export.
//
// Persisted layout follows the executions/<id>/metrics/ tree under
// the orchestrator's data root: plain append-only files, no external
// database server, with truncation-tolerant reads so a crash mid-write
// never blocks recovery.
package metricsstore

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
)

// Format is an export encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Store is this repository's MetricsStore implementation.
type Store struct {
	dataDir string

	mu    sync.Mutex
	files map[string]*os.File // stream key -> open append handle
}

// New creates a Store rooted at dataDir (the same root ConfigStore
// uses, so executions/<id>/ holds both the workload snapshot and the
// metric streams).
func New(dataDir string) *Store {
	return &Store{dataDir: dataDir, files: make(map[string]*os.File)}
}

var storeLog = log.WithComponent("metricsstore")

func streamKey(executionID, emitter string) string {
	return executionID + "/" + emitter
}

func (s *Store) streamPath(executionID, emitter string) string {
	dir := filepath.Join(s.dataDir, "executions", executionID, "metrics")
	if emitter == "aggregate" {
		return filepath.Join(dir, "aggregate.jsonl")
	}
	return filepath.Join(dir, "workers", emitter+".jsonl")
}

// Append writes one sample to the (execution, emitter) stream.
// Each stream has its own handle, but every write holds the store's
// single mutex, so concurrent appends serialize while writing, whether
// they target the same stream or different ones.
func (s *Store) Append(executionID, emitter string, sample types.MetricSample) error {
	f, err := s.openForAppend(executionID, emitter)
	if err != nil {
		return fmt.Errorf("opening metric stream: %w", err)
	}

	data, err := json.Marshal(sample)
	if err != nil {
		return fmt.Errorf("marshaling sample: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	_, err = f.Write(data)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("writing sample: %w", err)
	}

	kind := "worker"
	if emitter == "aggregate" {
		kind = "aggregate"
	}
	metrics.MetricSamplesAppended.WithLabelValues(kind).Inc()
	return nil
}

func (s *Store) openForAppend(executionID, emitter string) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := streamKey(executionID, emitter)
	if f, ok := s.files[key]; ok {
		return f, nil
	}

	path := s.streamPath(executionID, emitter)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	s.files[key] = f
	return f, nil
}

// CloseExecutionStreams releases any open append handles for an
// execution once it has reached a terminal status.
func (s *Store) CloseExecutionStreams(executionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, f := range s.files {
		if len(key) >= len(executionID) && key[:len(executionID)] == executionID {
			f.Close()
			delete(s.files, key)
		}
	}
}

// Read returns the samples for (execution, emitter) within [tLo, tHi]
// (either may be zero to mean unbounded), chronologically ordered. If
// more than limit samples fall in range, an evenly-strided subsample
// is returned that always includes the first and last sample of the
// window.
func (s *Store) Read(executionID, emitter string, tLo, tHi time.Time, limit int) ([]types.MetricSample, error) {
	all, err := s.readAll(executionID, emitter)
	if err != nil {
		return nil, err
	}

	var windowed []types.MetricSample
	for _, sample := range all {
		if !tLo.IsZero() && sample.Timestamp.Before(tLo) {
			continue
		}
		if !tHi.IsZero() && sample.Timestamp.After(tHi) {
			continue
		}
		windowed = append(windowed, sample)
	}

	if limit <= 0 || len(windowed) <= limit {
		return windowed, nil
	}
	return strideSample(windowed, limit), nil
}

// strideSample returns an evenly spaced subset of n samples,
// preserving the first and last elements of the input.
func strideSample(samples []types.MetricSample, n int) []types.MetricSample {
	if n <= 1 {
		return samples[:1]
	}
	out := make([]types.MetricSample, 0, n)
	last := len(samples) - 1
	step := float64(last) / float64(n-1)
	for i := 0; i < n; i++ {
		idx := int(float64(i) * step)
		if idx > last {
			idx = last
		}
		out = append(out, samples[idx])
	}
	return out
}

// readAll reads every sample in a stream, tolerating a partial
// trailing line left by a crash mid-write.
func (s *Store) readAll(executionID, emitter string) ([]types.MetricSample, error) {
	path := s.streamPath(executionID, emitter)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var samples []types.MetricSample
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var sample types.MetricSample
		if err := json.Unmarshal(line, &sample); err != nil {
			// Partial trailing line from a crash mid-write; stop reading
			// rather than erroring the whole stream.
			storeLog.Warn().Str("execution_id", executionID).Str("emitter", emitter).Msg("truncated metric record, stopping read")
			break
		}
		samples = append(samples, sample)
	}

	sort.SliceStable(samples, func(i, j int) bool { return samples[i].Timestamp.Before(samples[j].Timestamp) })
	return samples, nil
}

// Export emits the full stream for (execution, emitter) in the given
// format.
func (s *Store) Export(executionID, emitter string, format Format) ([]byte, error) {
	samples, err := s.readAll(executionID, emitter)
	if err != nil {
		return nil, err
	}

	switch format {
	case FormatJSON:
		return json.MarshalIndent(samples, "", "  ")
	case FormatCSV:
		return exportCSV(samples)
	default:
		return nil, fmt.Errorf("unsupported export format: %s", format)
	}
}

func exportCSV(samples []types.MetricSample) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"timestamp", "emitter", "read_ops", "write_ops", "read_bytes_per_sec", "write_bytes_per_sec", "latency_avg_us", "latency_p99_us", "cpu_percent", "mem_percent", "error_count"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, sample := range samples {
		row := []string{
			sample.Timestamp.Format(time.RFC3339Nano),
			sample.Emitter,
			strconv.FormatFloat(sample.ReadOps, 'f', -1, 64),
			strconv.FormatFloat(sample.WriteOps, 'f', -1, 64),
			strconv.FormatFloat(sample.ReadBytesPerSec, 'f', -1, 64),
			strconv.FormatFloat(sample.WriteBytesPerSec, 'f', -1, 64),
			strconv.FormatFloat(sample.Latency.Avg, 'f', -1, 64),
			strconv.FormatFloat(sample.Latency.P99, 'f', -1, 64),
			strconv.FormatFloat(sample.CPUPercent, 'f', -1, 64),
			strconv.FormatFloat(sample.MemPercent, 'f', -1, 64),
			strconv.Itoa(sample.ErrorCount),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
