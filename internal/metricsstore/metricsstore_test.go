package metricsstore

import (
	"testing"
	"time"

	"github.com/stormbench/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_AppendAndRead_RoundTrip(t *testing.T) {
	s := New(t.TempDir())

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		sample := types.MetricSample{
			Emitter:   "w1",
			Timestamp: base.Add(time.Duration(i) * time.Second),
			ReadOps:   float64(i),
		}
		require.NoError(t, s.Append("e1", "w1", sample))
	}

	samples, err := s.Read("e1", "w1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, float64(0), samples[0].ReadOps)
	assert.Equal(t, float64(2), samples[2].ReadOps)
}

func TestStore_Read_UnknownStreamReturnsEmpty(t *testing.T) {
	s := New(t.TempDir())
	samples, err := s.Read("nope", "w1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, samples)
}

func TestStore_Read_FiltersByTimeWindow(t *testing.T) {
	s := New(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Append("e1", "w1", types.MetricSample{
			Timestamp: base.Add(time.Duration(i) * time.Minute),
			ReadOps:   float64(i),
		}))
	}

	samples, err := s.Read("e1", "w1", base.Add(time.Minute), base.Add(3*time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, samples, 3)
	assert.Equal(t, float64(1), samples[0].ReadOps)
	assert.Equal(t, float64(3), samples[2].ReadOps)
}

func TestStore_Read_StridesWhenOverLimit_KeepsEndpoints(t *testing.T) {
	s := New(t.TempDir())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 100; i++ {
		require.NoError(t, s.Append("e1", "w1", types.MetricSample{
			Timestamp: base.Add(time.Duration(i) * time.Second),
			ReadOps:   float64(i),
		}))
	}

	samples, err := s.Read("e1", "w1", time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, samples, 10)
	assert.Equal(t, float64(0), samples[0].ReadOps)
	assert.Equal(t, float64(99), samples[len(samples)-1].ReadOps)
}

func TestStore_AggregateStream_UsesAggregateFilename(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Append("e1", "aggregate", types.MetricSample{Emitter: "aggregate", ReadOps: 42}))

	samples, err := s.Read("e1", "aggregate", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, float64(42), samples[0].ReadOps)
}

func TestStore_Export_JSON(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Append("e1", "w1", types.MetricSample{ReadOps: 7}))

	data, err := s.Export("e1", "w1", FormatJSON)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"ReadOps": 7`)
}

func TestStore_Export_CSV_HasHeaderAndRow(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Append("e1", "w1", types.MetricSample{ReadOps: 7}))

	data, err := s.Export("e1", "w1", FormatCSV)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "timestamp,emitter,read_ops")
	assert.Contains(t, text, "7")
}

func TestStore_Export_UnsupportedFormat(t *testing.T) {
	s := New(t.TempDir())
	_, err := s.Export("e1", "w1", Format("xml"))
	assert.Error(t, err)
}

func TestStrideSample_SingleElementWhenNIsOne(t *testing.T) {
	samples := []types.MetricSample{{ReadOps: 1}, {ReadOps: 2}, {ReadOps: 3}}
	out := strideSample(samples, 1)
	assert.Len(t, out, 1)
	assert.Equal(t, float64(1), out[0].ReadOps)
}

func TestStore_CloseExecutionStreams_OnlyAffectsNamedExecution(t *testing.T) {
	s := New(t.TempDir())
	require.NoError(t, s.Append("e1", "w1", types.MetricSample{ReadOps: 1}))
	require.NoError(t, s.Append("e2", "w1", types.MetricSample{ReadOps: 2}))

	s.CloseExecutionStreams("e1")

	require.NoError(t, s.Append("e2", "w1", types.MetricSample{ReadOps: 3}))
	samples, err := s.Read("e2", "w1", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}
