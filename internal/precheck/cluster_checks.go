package precheck

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/stormbench/orchestrator/pkg/types"
)

// cephStatus is the subset of `ceph -f json status` this checker reads.
type cephStatus struct {
	Health struct {
		Status string `json:"status"`
	} `json:"health"`
	Monmap struct {
		Mons []struct{} `json:"mons"`
	} `json:"monmap"`
	QuorumNames []string `json:"quorum_names"`
	Quorum      []int    `json:"quorum"`
	Osdmap      struct {
		NumOSDs   int `json:"num_osds"`
		NumUpOSDs int `json:"num_up_osds"`
		NumInOSDs int `json:"num_in_osds"`
	} `json:"osdmap"`
	Pgmap struct {
		NumPGs         int     `json:"num_pgs"`
		BytesTotal     int64   `json:"bytes_total"`
		BytesUsed      int64   `json:"bytes_used"`
		DegradedRatio  float64 `json:"degraded_ratio"`
	} `json:"pgmap"`
	Mgrmap struct {
		ActiveName string `json:"active_name"`
	} `json:"mgrmap"`
}

// clusterChecks runs the Ceph-family cluster health checks described
// in spec section 4.6: overall health, monitor quorum, OSD state,
// placement-group cleanliness, capacity, and manager daemon presence.
// Other backend variants have no cluster-side check defined yet and
// are skipped.
func (e *Engine) clusterChecks(ctx context.Context, cluster *types.Cluster) []types.CheckResult {
	if cluster.BackendVariant != types.BackendCephRBD && cluster.BackendVariant != types.BackendCephFS {
		return nil
	}
	if cluster.CephConnection == nil || cluster.AdminNode == "" {
		return []types.CheckResult{{
			Name: "cluster_health", Severity: types.SeverityCritical, Pass: false,
			Detail: "no ceph connection or admin node configured",
		}}
	}

	cmd := fmt.Sprintf("ceph --conf /etc/ceph/ceph.conf --keyring /etc/ceph/ceph.client.%s.keyring --name client.%s -f json status",
		cluster.CephConnection.UserID, cluster.CephConnection.UserID)
	res := e.runner.Run(ctx, cluster.AdminNode, cluster.AdminCredentials, cmd, 30*time.Second)
	if !res.Success() {
		return []types.CheckResult{{
			Name: "cluster_health", Severity: types.SeverityCritical, Pass: false,
			Detail: fmt.Sprintf("connection failed: exit %d: %s", res.ExitCode, res.Stderr),
		}}
	}

	var status cephStatus
	if err := json.Unmarshal([]byte(res.Stdout), &status); err != nil {
		return []types.CheckResult{{
			Name: "cluster_health", Severity: types.SeverityCritical, Pass: false,
			Detail: fmt.Sprintf("parsing ceph status: %v", err),
		}}
	}

	var checks []types.CheckResult
	checks = append(checks, healthStatusCheck(status))
	checks = append(checks, monQuorumCheck(status))
	checks = append(checks, osdStatusCheck(status))
	checks = append(checks, pgStatusCheck(status))
	checks = append(checks, capacityCheck(status))
	checks = append(checks, mgrStatusCheck(status))
	return checks
}

func healthStatusCheck(s cephStatus) types.CheckResult {
	switch s.Health.Status {
	case "HEALTH_OK":
		return types.CheckResult{Name: "cluster_health", Severity: types.SeverityInfo, Pass: true, Detail: "HEALTH_OK"}
	case "HEALTH_WARN":
		return types.CheckResult{Name: "cluster_health", Severity: types.SeverityWarning, Pass: false, Detail: "HEALTH_WARN"}
	default:
		return types.CheckResult{Name: "cluster_health", Severity: types.SeverityCritical, Pass: false, Detail: s.Health.Status}
	}
}

func monQuorumCheck(s cephStatus) types.CheckResult {
	total := len(s.Monmap.Mons)
	inQuorum := len(s.Quorum)
	if total == 0 {
		return types.CheckResult{Name: "mon_quorum", Severity: types.SeverityCritical, Pass: false, Detail: "no monitors reported"}
	}
	switch {
	case inQuorum == total:
		return types.CheckResult{Name: "mon_quorum", Severity: types.SeverityInfo, Pass: true, Detail: fmt.Sprintf("%d/%d in quorum", inQuorum, total)}
	case inQuorum*2 > total:
		return types.CheckResult{Name: "mon_quorum", Severity: types.SeverityWarning, Pass: false, Detail: fmt.Sprintf("%d/%d in quorum", inQuorum, total)}
	default:
		return types.CheckResult{Name: "mon_quorum", Severity: types.SeverityCritical, Pass: false, Detail: fmt.Sprintf("quorum lost: %d/%d", inQuorum, total)}
	}
}

func osdStatusCheck(s cephStatus) types.CheckResult {
	down := s.Osdmap.NumOSDs - s.Osdmap.NumUpOSDs
	switch {
	case down == 0:
		return types.CheckResult{Name: "osd_status", Severity: types.SeverityInfo, Pass: true, Detail: fmt.Sprintf("%d/%d OSDs up", s.Osdmap.NumUpOSDs, s.Osdmap.NumOSDs)}
	case down <= 2:
		return types.CheckResult{Name: "osd_status", Severity: types.SeverityWarning, Pass: false, Detail: fmt.Sprintf("%d OSD(s) down", down)}
	default:
		return types.CheckResult{Name: "osd_status", Severity: types.SeverityCritical, Pass: false, Detail: fmt.Sprintf("%d OSD(s) down", down)}
	}
}

func pgStatusCheck(s cephStatus) types.CheckResult {
	switch {
	case s.Pgmap.DegradedRatio == 0:
		return types.CheckResult{Name: "pg_status", Severity: types.SeverityInfo, Pass: true, Detail: "all PGs clean"}
	case s.Pgmap.DegradedRatio < 0.05:
		return types.CheckResult{Name: "pg_status", Severity: types.SeverityWarning, Pass: false, Detail: fmt.Sprintf("%.1f%% degraded", s.Pgmap.DegradedRatio*100)}
	default:
		return types.CheckResult{Name: "pg_status", Severity: types.SeverityCritical, Pass: false, Detail: fmt.Sprintf("%.1f%% degraded", s.Pgmap.DegradedRatio*100)}
	}
}

func capacityCheck(s cephStatus) types.CheckResult {
	if s.Pgmap.BytesTotal == 0 {
		return types.CheckResult{Name: "capacity", Severity: types.SeverityWarning, Pass: false, Detail: "capacity unknown"}
	}
	usedPercent := float64(s.Pgmap.BytesUsed) / float64(s.Pgmap.BytesTotal) * 100
	switch {
	case usedPercent < 70:
		return types.CheckResult{Name: "capacity", Severity: types.SeverityInfo, Pass: true, Detail: fmt.Sprintf("%.1f%% used", usedPercent)}
	case usedPercent <= 85:
		return types.CheckResult{Name: "capacity", Severity: types.SeverityWarning, Pass: false, Detail: fmt.Sprintf("%.1f%% used", usedPercent)}
	default:
		return types.CheckResult{Name: "capacity", Severity: types.SeverityCritical, Pass: false, Detail: fmt.Sprintf("%.1f%% used", usedPercent)}
	}
}

func mgrStatusCheck(s cephStatus) types.CheckResult {
	if s.Mgrmap.ActiveName == "" {
		return types.CheckResult{Name: "mgr_status", Severity: types.SeverityWarning, Pass: false, Detail: "no active manager"}
	}
	return types.CheckResult{Name: "mgr_status", Severity: types.SeverityInfo, Pass: true, Detail: "active: " + s.Mgrmap.ActiveName}
}
