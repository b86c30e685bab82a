package workload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stormbench/orchestrator/pkg/types"
)

// RunFillChunk writes one block-sized chunk of the fill-cluster
// workload on worker and reports the raw bytes written. The engine
// loops this per worker, summing returned bytes, multiplying by the
// cluster's replication factor to get "effective bytes", and stops the
// loop once effective/capacity reaches the policy's target — the
// driver itself has no notion of the target or of capacity.
func (d *Driver) RunFillChunk(ctx context.Context, worker *types.Worker, wl *types.Workload, chunkIndex int, cluster *types.Cluster) (int64, CommandLogEntry, error) {
	policy := wl.FillCluster
	if policy == nil {
		return 0, CommandLogEntry{}, fmt.Errorf("workload %s has no fill-cluster policy", wl.Name)
	}

	switch cluster.BackendVariant {
	case types.BackendCephFS, types.BackendNFS, types.BackendGlusterFS:
		return d.fillChunkFile(ctx, worker, wl, chunkIndex)
	case types.BackendCephRBD:
		return d.fillChunkBlock(ctx, worker, wl, chunkIndex)
	case types.BackendS3Compat:
		return d.fillChunkObject(ctx, worker, wl, chunkIndex, cluster)
	default:
		return 0, CommandLogEntry{}, fmt.Errorf("unsupported fill-cluster backend: %s", cluster.BackendVariant)
	}
}

func (d *Driver) fillChunkFile(ctx context.Context, worker *types.Worker, wl *types.Workload, chunkIndex int) (int64, CommandLogEntry, error) {
	path := "/tmp/bench"
	if wl.Mount != nil {
		path = wl.Mount.MountPoint
	}
	file := fmt.Sprintf("%s/fill-%s-%d.bin", path, worker.ID, chunkIndex)
	cmd := fmt.Sprintf("dd if=/dev/zero of=%s bs=%s count=1 oflag=direct,append conv=notrunc 2>&1; stat -c %%s %s",
		file, wl.FillCluster.BlockSize, file)

	res := d.runner.Run(ctx, worker.Address, worker.Credentials, cmd, 60*time.Second)
	entry := d.logEntry(worker.ID, cmd, "fill-cluster file chunk", res)
	if !res.Success() {
		return 0, entry, fmt.Errorf("fill chunk failed on %s: exit %d", worker.ID, res.ExitCode)
	}
	return parseTrailingSize(res.Stdout), entry, nil
}

func (d *Driver) fillChunkBlock(ctx context.Context, worker *types.Worker, wl *types.Workload, chunkIndex int) (int64, CommandLogEntry, error) {
	image := fmt.Sprintf("fill-%s-%d", worker.ID, chunkIndex)
	device := fmt.Sprintf("/dev/rbd/%s", image)

	create := fmt.Sprintf("rbd create %s --size %s && rbd map %s", image, wl.FillCluster.BlockSize, image)
	res := d.runner.Run(ctx, worker.Address, worker.Credentials, create, 30*time.Second)
	entry := d.logEntry(worker.ID, create, "create+map rbd image", res)
	if !res.Success() {
		return 0, entry, fmt.Errorf("rbd create/map failed on %s: exit %d", worker.ID, res.ExitCode)
	}

	write := fmt.Sprintf("dd if=/dev/zero of=%s bs=%s count=1 oflag=direct 2>&1", device, wl.FillCluster.BlockSize)
	res = d.runner.Run(ctx, worker.Address, worker.Credentials, write, 60*time.Second)
	entry = d.logEntry(worker.ID, write, "write rbd block chunk", res)

	unmap := fmt.Sprintf("rbd unmap %s", device)
	d.runner.Run(ctx, worker.Address, worker.Credentials, unmap, 15*time.Second)

	if !res.Success() {
		return 0, entry, fmt.Errorf("rbd write failed on %s: exit %d", worker.ID, res.ExitCode)
	}
	return blockSizeBytes(wl.FillCluster.BlockSize), entry, nil
}

func (d *Driver) fillChunkObject(ctx context.Context, worker *types.Worker, wl *types.Workload, chunkIndex int, cluster *types.Cluster) (int64, CommandLogEntry, error) {
	if cluster.S3Connection == nil {
		return 0, CommandLogEntry{}, fmt.Errorf("object fill-cluster requires an s3 connection")
	}
	key := fmt.Sprintf("fill/%s/%d", worker.ID, chunkIndex)
	cmd := fmt.Sprintf("head -c %s /dev/zero | aws --endpoint-url=%s s3 cp - s3://%s/%s",
		wl.FillCluster.BlockSize, cluster.S3Connection.Endpoint, cluster.S3Connection.Bucket, key)

	res := d.runner.Run(ctx, worker.Address, worker.Credentials, cmd, 60*time.Second)
	entry := d.logEntry(worker.ID, cmd, "fill-cluster multipart put", res)
	if !res.Success() {
		return 0, entry, fmt.Errorf("object put failed on %s: exit %d", worker.ID, res.ExitCode)
	}
	return blockSizeBytes(wl.FillCluster.BlockSize), entry, nil
}

func parseTrailingSize(output string) int64 {
	output = strings.TrimRight(output, "\n")

	var size int64
	var scanned string
	for i := len(output) - 1; i >= 0; i-- {
		if output[i] == '\n' {
			break
		}
		scanned = string(output[i]) + scanned
	}
	fmt.Sscanf(scanned, "%d", &size)
	return size
}

func blockSizeBytes(blockSize string) int64 {
	var n int64
	var unit string
	fmt.Sscanf(blockSize, "%d%s", &n, &unit)
	switch unit {
	case "k", "K", "kb", "KB":
		return n * 1024
	case "m", "M", "mb", "MB":
		return n * 1024 * 1024
	case "g", "G", "gb", "GB":
		return n * 1024 * 1024 * 1024
	default:
		return n
	}
}
