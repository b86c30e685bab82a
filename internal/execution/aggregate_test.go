package execution

import (
	"testing"

	"github.com/stormbench/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
)

func TestAggregateSamples_SumsIOPSAndBandwidth(t *testing.T) {
	samples := []types.MetricSample{
		{Emitter: "w1", ReadOps: 100, WriteOps: 50, ReadBytesPerSec: 1000, WriteBytesPerSec: 500,
			Latency: types.LatencySummary{Avg: 200, Min: 50, Max: 400}},
		{Emitter: "w2", ReadOps: 200, WriteOps: 25, ReadBytesPerSec: 2000, WriteBytesPerSec: 250,
			Latency: types.LatencySummary{Avg: 100, Min: 20, Max: 600}},
	}

	agg := aggregateSamples(samples)

	assert.Equal(t, "aggregate", agg.Emitter)
	assert.Equal(t, float64(300), agg.ReadOps)
	assert.Equal(t, float64(75), agg.WriteOps)
	assert.Equal(t, float64(3000), agg.ReadBytesPerSec)
	assert.Equal(t, float64(750), agg.WriteBytesPerSec)
	assert.Equal(t, float64(20), agg.Latency.Min)
	assert.Equal(t, float64(600), agg.Latency.Max)
}

func TestAggregateSamples_WeightedAverageLatency(t *testing.T) {
	// w1 does 300 ops at 100us avg latency, w2 does 100 ops at 500us:
	// weighted average should be (300*100 + 100*500) / 400 = 200us.
	samples := []types.MetricSample{
		{Emitter: "w1", ReadOps: 300, Latency: types.LatencySummary{Avg: 100}},
		{Emitter: "w2", ReadOps: 100, Latency: types.LatencySummary{Avg: 500}},
	}

	agg := aggregateSamples(samples)

	assert.InDelta(t, 200, agg.Latency.Avg, 0.001)
}

func TestAggregateSamples_IdleSampleStillWeighsIntoLatency(t *testing.T) {
	// A sample with zero IOPS still contributes a weight of 1 so its
	// latency figure (carried over from the last active measurement)
	// isn't silently dropped from the average.
	samples := []types.MetricSample{
		{Emitter: "w1", ReadOps: 0, WriteOps: 0, Latency: types.LatencySummary{Avg: 50}},
	}

	agg := aggregateSamples(samples)

	assert.InDelta(t, 50, agg.Latency.Avg, 0.001)
}

func TestAggregateSamples_EmptyInputIsZeroValue(t *testing.T) {
	agg := aggregateSamples(nil)

	assert.Equal(t, "aggregate", agg.Emitter)
	assert.Equal(t, float64(0), agg.ReadOps)
	assert.Equal(t, types.LatencySummary{}, agg.Latency)
}

func TestAggregateSamples_Idempotent(t *testing.T) {
	samples := []types.MetricSample{
		{Emitter: "w1", ReadOps: 100, WriteOps: 10, Latency: types.LatencySummary{Avg: 120, P99: 800}},
		{Emitter: "w2", ReadOps: 90, WriteOps: 20, Latency: types.LatencySummary{Avg: 130, P99: 700}},
		{Emitter: "w3", ReadOps: 110, WriteOps: 5, Latency: types.LatencySummary{Avg: 90, P99: 900}},
	}

	first := aggregateSamples(samples)
	second := aggregateSamples(samples)

	assert.Equal(t, first, second, "replaying the same per-worker samples must yield a bit-identical aggregate")
}

func TestZeroAggregate(t *testing.T) {
	z := zeroAggregate()
	assert.Equal(t, "aggregate", z.Emitter)
	assert.Equal(t, float64(0), z.ReadOps)
	assert.Equal(t, float64(0), z.WriteOps)
}
