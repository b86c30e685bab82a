package execution

import "github.com/stormbench/orchestrator/pkg/types"

// aggregateSamples sums IOPS and bandwidth counters across
// contemporaneous per-worker samples and computes a weighted-average
// latency summary. The store only persists what it is given; the
// engine is solely responsible for deriving aggregates. An empty
// input yields a zero-valued, zero-weight sample.
func aggregateSamples(samples []types.MetricSample) types.MetricSample {
	var agg types.MetricSample
	agg.Emitter = "aggregate"

	var weight float64
	var latAvg, latP50, latP90, latP99, latP999 float64
	var latMin, latMax float64
	first := true

	for _, s := range samples {
		agg.ReadOps += s.ReadOps
		agg.WriteOps += s.WriteOps
		agg.ReadBytesPerSec += s.ReadBytesPerSec
		agg.WriteBytesPerSec += s.WriteBytesPerSec
		agg.ErrorCount += s.ErrorCount
		agg.CPUPercent += s.CPUPercent
		agg.MemPercent += s.MemPercent

		w := s.ReadOps + s.WriteOps
		if w <= 0 {
			w = 1 // still contributes to the latency average when idle
		}
		weight += w
		latAvg += s.Latency.Avg * w
		latP50 += s.Latency.P50 * w
		latP90 += s.Latency.P90 * w
		latP99 += s.Latency.P99 * w
		latP999 += s.Latency.P999 * w

		if first {
			latMin, latMax = s.Latency.Min, s.Latency.Max
			first = false
		} else {
			if s.Latency.Min < latMin {
				latMin = s.Latency.Min
			}
			if s.Latency.Max > latMax {
				latMax = s.Latency.Max
			}
		}
	}

	if len(samples) > 0 {
		agg.CPUPercent /= float64(len(samples))
		agg.MemPercent /= float64(len(samples))
	}
	if weight > 0 {
		agg.Latency = types.LatencySummary{
			Avg: latAvg / weight, P50: latP50 / weight, P90: latP90 / weight,
			P99: latP99 / weight, P999: latP999 / weight,
			Min: latMin, Max: latMax,
		}
	}

	return agg
}

// zeroAggregate is the sample the engine persists for the aggregate
// stream (and implicitly for every participant) while an execution is
// paused: metrics keep flowing but carry no I/O.
func zeroAggregate() types.MetricSample {
	return types.MetricSample{Emitter: "aggregate"}
}
