package workload

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stormbench/orchestrator/pkg/types"
)

// buildFIOCommand translates a workload's I/O and test parameters into
// the single shell invocation the fio binary expects. The flag set and
// ordering follow the literal template documented for remote benchmark
// invocation: name/directory/rw/bs/size/numjobs/iodepth/runtime,
// time-based, JSON group-reporting output, with rwmixread/direct/
// ramp_time appended only when applicable.
func buildFIOCommand(dir, execTag string, io types.IOParameters, test types.TestParameters) string {
	rw := fioRWValue(io.Pattern, io.ReadPercent)

	var b strings.Builder
	fmt.Fprintf(&b, "fio --name=%s --directory=%s --rw=%s --bs=%s --size=%s --numjobs=%d --iodepth=%d --runtime=%d --time_based --group_reporting --output-format=json",
		execTag, dir, rw, io.BlockSize, test.FileSize, io.JobCount, io.QueueDepth, int(test.Duration.Seconds()))

	if isMixedRW(rw) {
		fmt.Fprintf(&b, " --rwmixread=%d", io.ReadPercent)
	}
	if io.Direct {
		b.WriteString(" --direct=1")
	}
	if test.RampTime > 0 {
		fmt.Fprintf(&b, " --ramp_time=%d", int(test.RampTime.Seconds()))
	}
	b.WriteString(" --ioengine=libaio --end_fsync=1")

	return b.String()
}

func fioRWValue(pattern types.IOPattern, readPercent int) string {
	random := pattern == types.PatternRandom || pattern == types.PatternMixed
	switch {
	case readPercent >= 100:
		if random {
			return "randread"
		}
		return "read"
	case readPercent <= 0:
		if random {
			return "randwrite"
		}
		return "write"
	default:
		if random {
			return "randrw"
		}
		return "rw"
	}
}

func isMixedRW(rw string) bool {
	return rw == "randrw" || rw == "rw"
}

// fioJob is the subset of fio's --output-format=json job record this
// driver consumes; all other fields are ignored per the external
// interface contract.
type fioJob struct {
	Read struct {
		IOPS  float64 `json:"iops"`
		BWKiB float64 `json:"bw"`
		Lat   struct {
			MeanNs float64 `json:"mean"`
		} `json:"lat_ns"`
	} `json:"read"`
	Write struct {
		IOPS  float64 `json:"iops"`
		BWKiB float64 `json:"bw"`
		Lat   struct {
			MeanNs float64 `json:"mean"`
		} `json:"lat_ns"`
	} `json:"write"`
}

type fioReport struct {
	Jobs []fioJob `json:"jobs"`
}

// parseFIOOutput locates the first '{' in raw output (fio sometimes
// prefixes JSON output with warnings on stderr-like lines mixed into
// stdout) and parses to the end as JSON, summing per-job read/write
// iops and bandwidth and averaging per-job mean latency.
func parseFIOOutput(raw string) (types.MetricSample, error) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return types.MetricSample{}, fmt.Errorf("no JSON object found in fio output")
	}

	var report fioReport
	if err := json.Unmarshal([]byte(raw[start:]), &report); err != nil {
		return types.MetricSample{}, fmt.Errorf("parsing fio output: %w", err)
	}
	if len(report.Jobs) == 0 {
		return types.MetricSample{}, fmt.Errorf("fio output has no jobs")
	}

	var sample types.MetricSample
	var latSumNs float64
	var latCount int

	for _, job := range report.Jobs {
		sample.ReadOps += job.Read.IOPS
		sample.WriteOps += job.Write.IOPS
		sample.ReadBytesPerSec += job.Read.BWKiB * 1024
		sample.WriteBytesPerSec += job.Write.BWKiB * 1024

		if job.Read.IOPS > 0 {
			latSumNs += job.Read.Lat.MeanNs
			latCount++
		}
		if job.Write.IOPS > 0 {
			latSumNs += job.Write.Lat.MeanNs
			latCount++
		}
	}

	if latCount > 0 {
		sample.Latency.Avg = (latSumNs / float64(latCount)) / 1000 // ns -> us
	}

	return sample, nil
}
