package workload

import (
	"testing"
	"time"

	"github.com/stormbench/orchestrator/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFioRWValue(t *testing.T) {
	cases := []struct {
		pattern types.IOPattern
		percent int
		want    string
	}{
		{types.PatternRandom, 100, "randread"},
		{types.PatternRandom, 0, "randwrite"},
		{types.PatternRandom, 50, "randrw"},
		{types.PatternSequential, 100, "read"},
		{types.PatternSequential, 0, "write"},
		{types.PatternSequential, 50, "rw"},
		{types.PatternMixed, 70, "randrw"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, fioRWValue(tc.pattern, tc.percent))
	}
}

func TestBuildFIOCommand_BaseFlags(t *testing.T) {
	io := types.IOParameters{
		Pattern: types.PatternSequential, BlockSize: "4k", ReadPercent: 100,
		QueueDepth: 16, JobCount: 4,
	}
	test := types.TestParameters{Duration: 30 * time.Second, FileSize: "1G"}

	cmd := buildFIOCommand("/mnt/bench", "exec-1", io, test)

	assert.Contains(t, cmd, "fio --name=exec-1")
	assert.Contains(t, cmd, "--directory=/mnt/bench")
	assert.Contains(t, cmd, "--rw=read")
	assert.Contains(t, cmd, "--bs=4k")
	assert.Contains(t, cmd, "--size=1G")
	assert.Contains(t, cmd, "--numjobs=4")
	assert.Contains(t, cmd, "--iodepth=16")
	assert.Contains(t, cmd, "--runtime=30")
	assert.Contains(t, cmd, "--time_based")
	assert.Contains(t, cmd, "--group_reporting")
	assert.Contains(t, cmd, "--output-format=json")
	assert.NotContains(t, cmd, "--rwmixread")
	assert.NotContains(t, cmd, "--direct")
	assert.NotContains(t, cmd, "--ramp_time")
}

func TestBuildFIOCommand_MixedReadAppendsRwmixread(t *testing.T) {
	io := types.IOParameters{Pattern: types.PatternRandom, ReadPercent: 70, BlockSize: "4k", QueueDepth: 1, JobCount: 1}
	test := types.TestParameters{Duration: time.Second, FileSize: "1G"}

	cmd := buildFIOCommand("/mnt", "e", io, test)

	assert.Contains(t, cmd, "--rwmixread=70")
}

func TestBuildFIOCommand_DirectAndRampTime(t *testing.T) {
	io := types.IOParameters{Pattern: types.PatternRandom, ReadPercent: 100, BlockSize: "4k", QueueDepth: 1, JobCount: 1, Direct: true}
	test := types.TestParameters{Duration: time.Second, FileSize: "1G", RampTime: 5 * time.Second}

	cmd := buildFIOCommand("/mnt", "e", io, test)

	assert.Contains(t, cmd, "--direct=1")
	assert.Contains(t, cmd, "--ramp_time=5")
}

func TestParseFIOOutput_SumsAcrossJobsAndAveragesLatency(t *testing.T) {
	raw := `some warning line
{"jobs":[
  {"read":{"iops":100,"bw":1000,"lat_ns":{"mean":200000}},"write":{"iops":0,"bw":0,"lat_ns":{"mean":0}}},
  {"read":{"iops":50,"bw":500,"lat_ns":{"mean":400000}},"write":{"iops":10,"bw":100,"lat_ns":{"mean":600000}}}
]}`

	sample, err := parseFIOOutput(raw)
	require.NoError(t, err)

	assert.Equal(t, float64(150), sample.ReadOps)
	assert.Equal(t, float64(10), sample.WriteOps)
	assert.Equal(t, float64(1500*1024), sample.ReadBytesPerSec)
	assert.Equal(t, float64(100*1024), sample.WriteBytesPerSec)
	// mean of 200000, 400000, 600000 ns -> 400000 ns -> 400 us
	assert.InDelta(t, 400, sample.Latency.Avg, 0.001)
}

func TestParseFIOOutput_NoJSONObject(t *testing.T) {
	_, err := parseFIOOutput("no json here at all")
	assert.Error(t, err)
}

func TestParseFIOOutput_NoJobs(t *testing.T) {
	_, err := parseFIOOutput(`{"jobs":[]}`)
	assert.Error(t, err)
}

func TestParseFIOOutput_InvalidJSON(t *testing.T) {
	_, err := parseFIOOutput(`{"jobs": not valid`)
	assert.Error(t, err)
}
