// Package workload implements the WorkloadDriver: translating a
// workload specification into concrete remote commands against one
// worker — tool installation, credential staging, filesystem mounts,
// the benchmark invocation itself, and teardown.
//
// Each operation (ensure-tool, push-credentials, mount, run, cleanup)
// builds one or more remote commands, runs them through RemoteCommand,
// and normalizes the result; none of them call back into the engine.
package workload

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stormbench/orchestrator/internal/remote"
	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
)

// runGrace is added to a workload's duration to compute the deadline
// for a single benchmark invocation.
const runGrace = 2 * time.Minute

// fallbackKeyringPaths is the order in which Ceph keyring filenames
// are tried on the admin node when pushing credentials.
var fallbackKeyringPaths = []string{
	"/etc/ceph/ceph.client.admin.keyring",
	"/etc/ceph/ceph.keyring",
	"/var/lib/ceph/bootstrap-client/ceph.keyring",
}

// Driver is this repository's WorkloadDriver implementation.
type Driver struct {
	runner *remote.Runner
}

// New creates a Driver.
func New(runner *remote.Runner) *Driver {
	return &Driver{runner: runner}
}

var driverLog = log.WithComponent("workload")

func (d *Driver) logEntry(workerID, command, description string, res remote.Result) CommandLogEntry {
	return CommandLogEntry{
		ID:          uuid.NewString(),
		Timestamp:   time.Now(),
		WorkerID:    workerID,
		Command:     truncateCommand(command),
		Description: description,
		ExitCode:    res.ExitCode,
		Success:     res.Success(),
	}
}

// EnsureTool detects the benchmark binary on worker and, if absent,
// attempts installation through each of several OS package managers in
// sequence, re-detecting after each install command that succeeds.
func (d *Driver) EnsureTool(ctx context.Context, worker *types.Worker, tool types.Tool) (CommandLogEntry, error) {
	binary := toolBinaryName(tool)
	detect := fmt.Sprintf("command -v %s", binary)

	res := d.runner.Run(ctx, worker.Address, worker.Credentials, detect, 15*time.Second)
	entry := d.logEntry(worker.ID, detect, "detect "+binary, res)
	if res.Success() {
		return entry, nil
	}

	installers := []string{
		fmt.Sprintf("apt-get update -qq && apt-get install -y -qq %s", binary),
		fmt.Sprintf("yum install -y -q %s", binary),
		fmt.Sprintf("dnf install -y -q %s", binary),
		fmt.Sprintf("apk add --no-cache %s", binary),
	}

	for _, installCmd := range installers {
		res = d.runner.Run(ctx, worker.Address, worker.Credentials, installCmd, 120*time.Second)
		d.logEntry(worker.ID, installCmd, "install "+binary, res)
		if !res.Success() {
			continue
		}
		res = d.runner.Run(ctx, worker.Address, worker.Credentials, detect, 15*time.Second)
		entry = d.logEntry(worker.ID, detect, "re-detect "+binary, res)
		if res.Success() {
			return entry, nil
		}
	}

	return entry, fmt.Errorf("%s unavailable on %s after install attempts", binary, worker.ID)
}

func toolBinaryName(tool types.Tool) string {
	switch tool {
	case types.ToolFIO:
		return "fio"
	case types.ToolIOZone:
		return "iozone"
	case types.ToolDD:
		return "dd"
	default:
		return "fio"
	}
}

// PushCredentials stages cluster access credentials on worker. For
// Ceph-family clusters this fetches the config file and keyring from
// the cluster's admin node and writes them atomically under
// /etc/ceph. Other storage families have nothing to stage and return
// immediately.
func (d *Driver) PushCredentials(ctx context.Context, worker *types.Worker, adminAddr string, adminCreds types.Credentials, cluster *types.Cluster) ([]CommandLogEntry, error) {
	if cluster.StorageFamily != types.StorageFamilyBlock && cluster.StorageFamily != types.StorageFamilyFile {
		return nil, nil
	}
	if cluster.CephConnection == nil {
		return nil, nil
	}

	var entries []CommandLogEntry

	confRes := d.runner.Run(ctx, adminAddr, adminCreds, "cat /etc/ceph/ceph.conf", 15*time.Second)
	entries = append(entries, d.logEntry(worker.ID, "cat /etc/ceph/ceph.conf", "fetch ceph.conf from admin node", confRes))
	if !confRes.Success() {
		return entries, fmt.Errorf("fetching ceph.conf from admin node: exit %d", confRes.ExitCode)
	}

	var keyring string
	var keyringSource string
	for _, path := range fallbackKeyringPaths {
		cmd := "cat " + path
		res := d.runner.Run(ctx, adminAddr, adminCreds, cmd, 15*time.Second)
		entries = append(entries, d.logEntry(worker.ID, cmd, "fetch keyring candidate", res))
		if res.Success() {
			keyring = res.Stdout
			keyringSource = path
			break
		}
	}
	if keyring == "" {
		return entries, fmt.Errorf("no keyring found on admin node among %v", fallbackKeyringPaths)
	}
	driverLog.Debug().Str("worker_id", worker.ID).Str("keyring_source", keyringSource).Msg("resolved ceph keyring")

	putConf := d.runner.PutFile(ctx, worker.Address, worker.Credentials, []byte(confRes.Stdout), "/etc/ceph/ceph.conf", 15*time.Second)
	entries = append(entries, d.logEntry(worker.ID, "install ceph.conf", "stage ceph.conf", putConf))
	if !putConf.Success() {
		return entries, fmt.Errorf("writing ceph.conf to %s: exit %d", worker.ID, putConf.ExitCode)
	}

	keyringPath := fmt.Sprintf("/etc/ceph/ceph.client.%s.keyring", cluster.CephConnection.UserID)
	putKeyring := d.runner.PutFile(ctx, worker.Address, worker.Credentials, []byte(keyring), keyringPath, 15*time.Second)
	entries = append(entries, d.logEntry(worker.ID, "install keyring", "stage ceph keyring", putKeyring))
	if !putKeyring.Success() {
		return entries, fmt.Errorf("writing keyring to %s: exit %d", worker.ID, putKeyring.ExitCode)
	}

	return entries, nil
}

// Mount establishes the filesystem mount a file workload needs,
// unmounting any prior mount first and verifying the result is a
// mountpoint.
func (d *Driver) Mount(ctx context.Context, worker *types.Worker, mount *types.MountParameters, cluster *types.Cluster) ([]CommandLogEntry, error) {
	var entries []CommandLogEntry

	mkdir := fmt.Sprintf("mkdir -p %s", mount.MountPoint)
	res := d.runner.Run(ctx, worker.Address, worker.Credentials, mkdir, 10*time.Second)
	entries = append(entries, d.logEntry(worker.ID, mkdir, "create mountpoint", res))
	if !res.Success() {
		return entries, fmt.Errorf("creating mountpoint on %s: exit %d", worker.ID, res.ExitCode)
	}

	umount := fmt.Sprintf("umount -f %s 2>/dev/null; true", mount.MountPoint)
	res = d.runner.Run(ctx, worker.Address, worker.Credentials, umount, 10*time.Second)
	entries = append(entries, d.logEntry(worker.ID, umount, "clear prior mount", res))

	mountCmd, err := buildMountCommand(mount, cluster)
	if err != nil {
		return entries, err
	}
	res = d.runner.Run(ctx, worker.Address, worker.Credentials, mountCmd, 30*time.Second)
	entries = append(entries, d.logEntry(worker.ID, mountCmd, "mount filesystem", res))
	if !res.Success() {
		return entries, fmt.Errorf("mounting on %s: exit %d: %s", worker.ID, res.ExitCode, res.Stderr)
	}

	verify := fmt.Sprintf("mountpoint -q %s", mount.MountPoint)
	res = d.runner.Run(ctx, worker.Address, worker.Credentials, verify, 10*time.Second)
	entries = append(entries, d.logEntry(worker.ID, verify, "verify mountpoint", res))
	if !res.Success() {
		return entries, fmt.Errorf("%s is not a mountpoint after mount on %s", mount.MountPoint, worker.ID)
	}

	return entries, nil
}

func buildMountCommand(mount *types.MountParameters, cluster *types.Cluster) (string, error) {
	opts := ""
	if len(mount.MountOptions) > 0 {
		opts = "-o " + strings.Join(mount.MountOptions, ",")
	}

	switch mount.FilesystemType {
	case "cephfs-kernel":
		if cluster.CephConnection == nil {
			return "", fmt.Errorf("cephfs-kernel mount requires a ceph connection")
		}
		src := strings.Join(cluster.CephConnection.MonHosts, ",") + ":/"
		return fmt.Sprintf("mount -t ceph %s %s %s -o name=%s,secretfile=/etc/ceph/ceph.client.%s.keyring",
			src, mount.MountPoint, opts, cluster.CephConnection.UserID, cluster.CephConnection.UserID), nil
	case "cephfs-fuse":
		return fmt.Sprintf("ceph-fuse %s %s", mount.MountPoint, opts), nil
	case "nfs":
		if cluster.NFSConnection == nil {
			return "", fmt.Errorf("nfs mount requires an nfs connection")
		}
		version := cluster.NFSConnection.NFSVersion
		if version == "" {
			version = "4"
		}
		src := fmt.Sprintf("%s:%s", cluster.NFSConnection.Server, cluster.NFSConnection.ExportPath)
		return fmt.Sprintf("mount -t nfs -o nfsvers=%s%s %s %s", version, optSuffix(opts), src, mount.MountPoint), nil
	case "glusterfs":
		if cluster.GlusterConnection == nil {
			return "", fmt.Errorf("glusterfs mount requires a gluster connection")
		}
		src := fmt.Sprintf("%s:/%s", cluster.GlusterConnection.Servers[0], cluster.GlusterConnection.Volume)
		backup := ""
		if cluster.GlusterConnection.BackupServer != "" {
			backup = fmt.Sprintf(",backup-volfile-servers=%s", cluster.GlusterConnection.BackupServer)
		}
		return fmt.Sprintf("mount -t glusterfs -o backupvolfile-server=%s%s %s %s", backup, optSuffix(opts), src, mount.MountPoint), nil
	default:
		return "", fmt.Errorf("unsupported filesystem type: %s", mount.FilesystemType)
	}
}

func optSuffix(opts string) string {
	if opts == "" {
		return ""
	}
	return "," + strings.TrimPrefix(opts, "-o ")
}

// Run builds and executes the benchmark invocation on worker,
// enforcing a deadline of workload duration plus a fixed grace period,
// and returns the normalized metric sample parsed from the tool's
// structured output.
func (d *Driver) Run(ctx context.Context, worker *types.Worker, wl *types.Workload, executionID string) (types.MetricSample, CommandLogEntry, error) {
	dir := wl.Mount
	path := "/tmp/bench"
	if dir != nil {
		path = dir.MountPoint
	}
	execTag := "exec-" + executionID

	var command string
	switch wl.Tool {
	case types.ToolFIO:
		command = buildFIOCommand(path, execTag, wl.IO, wl.Test)
	default:
		return types.MetricSample{}, CommandLogEntry{}, fmt.Errorf("unsupported benchmark tool: %s", wl.Tool)
	}

	timeout := wl.Test.Duration + runGrace
	timer := metrics.NewTimer()
	res := d.runner.Run(ctx, worker.Address, worker.Credentials, command, timeout)
	timer.ObserveDurationVec(metrics.WorkloadRunDuration, string(wl.Tool))

	entry := d.logEntry(worker.ID, command, "run benchmark", res)
	if !res.Success() {
		return types.MetricSample{}, entry, fmt.Errorf("benchmark run failed on %s: exit %d: %s", worker.ID, res.ExitCode, res.Stderr)
	}

	sample, err := parseFIOOutput(res.Stdout)
	if err != nil {
		return types.MetricSample{}, entry, fmt.Errorf("parsing benchmark output from %s: %w", worker.ID, err)
	}
	sample.Timestamp = time.Now()
	sample.Emitter = worker.ID

	return sample, entry, nil
}

// Cleanup removes per-execution test artifacts and, when mount is
// non-nil and the workload requested auto-unmount, force-unmounts and
// removes the mountpoint.
func (d *Driver) Cleanup(ctx context.Context, worker *types.Worker, executionID string, mount *types.MountParameters) []CommandLogEntry {
	var entries []CommandLogEntry

	path := "/tmp/bench"
	if mount != nil {
		path = mount.MountPoint
	}
	rm := fmt.Sprintf("rm -f %s/exec-%s*", path, executionID)
	res := d.runner.Run(ctx, worker.Address, worker.Credentials, rm, 30*time.Second)
	entries = append(entries, d.logEntry(worker.ID, rm, "remove test files", res))

	if mount != nil && mount.AutoUnmount {
		umount := fmt.Sprintf("umount -f %s", mount.MountPoint)
		res = d.runner.Run(ctx, worker.Address, worker.Credentials, umount, 15*time.Second)
		entries = append(entries, d.logEntry(worker.ID, umount, "unmount filesystem", res))

		rmdir := fmt.Sprintf("rmdir %s", mount.MountPoint)
		res = d.runner.Run(ctx, worker.Address, worker.Credentials, rmdir, 10*time.Second)
		entries = append(entries, d.logEntry(worker.ID, rmdir, "remove mountpoint", res))
	}

	return entries
}
