package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/stormbench/orchestrator/internal/execution"
	"github.com/stormbench/orchestrator/internal/orchestrator"
	"github.com/stormbench/orchestrator/pkg/log"
	"github.com/stormbench/orchestrator/pkg/metrics"
	"github.com/stormbench/orchestrator/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "orchestrator",
	Short: "Storage benchmark orchestrator",
	Long: `orchestrator drives fio/iozone/dd benchmarks against Ceph, NFS,
GlusterFS, and S3-compatible clusters from a single-process manager,
dispatching work to remote agent workers over SSH.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"orchestrator version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("data-dir", "./data", "Directory holding the config store and metrics store")
	rootCmd.PersistentFlags().Bool("event-bus", false, "Enable the in-process event bus (direct-command mode when disabled)")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(workloadCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(execCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

func openOrchestrator(cmd *cobra.Command) (*orchestrator.Orchestrator, error) {
	dataDir, _ := cmd.Flags().GetString("data-dir")
	enableBus, _ := cmd.Flags().GetBool("event-bus")
	return orchestrator.New(orchestrator.Config{
		DataDir:        dataDir,
		EnableEventBus: enableBus,
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// serveCmd keeps the orchestrator's background deploy queue, metrics
// registry, and health endpoints running until an OS signal arrives.
// The request/response HTTP API is an external collaborator; this
// binary only exposes the ambient metrics and health endpoints.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator's background services and metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		metrics.RegisterComponent("configstore", true, "")
		if orch.Bus != nil {
			metrics.RegisterComponent("eventbus", true, "")
		}
		metrics.SetVersion(Version)

		collector := orch.NewMetricsCollector()
		collector.Start()
		defer collector.Stop()

		addr, _ := cmd.Flags().GetString("metrics-addr")
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		mux.HandleFunc("/health", metrics.HealthHandler())
		mux.HandleFunc("/ready", metrics.ReadyHandler())
		mux.HandleFunc("/live", metrics.LivenessHandler())

		srv := &http.Server{Addr: addr, Handler: mux}
		serverErr := make(chan error, 1)
		go func() {
			log.Logger.Info().Str("addr", addr).Msg("starting metrics server")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				serverErr <- err
			}
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			log.Logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		case err := <-serverErr:
			log.Logger.Error().Err(err).Msg("metrics server error")
		}

		return srv.Close()
	},
}

func init() {
	serveCmd.Flags().String("metrics-addr", ":9090", "Address for the /metrics, /health, /ready, /live endpoints")
}

// Cluster commands

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage storage cluster definitions",
}

var clusterApplyCmd = &cobra.Command{
	Use:   "apply <file.yaml>",
	Short: "Create or update a cluster definition from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		var c types.Cluster
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		if existing, err := orch.Store.GetCluster(c.Name); err == nil {
			c.CreatedAt = existing.CreatedAt
			if err := orch.Store.UpdateCluster(&c); err != nil {
				return err
			}
		} else if err := orch.Store.CreateCluster(&c); err != nil {
			return err
		}
		fmt.Printf("cluster %s applied\n", c.Name)
		return nil
	},
}

var clusterListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cluster definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		clusters, err := orch.Store.ListClusters()
		if err != nil {
			return err
		}
		return printJSON(clusters)
	},
}

func init() {
	clusterCmd.AddCommand(clusterApplyCmd, clusterListCmd)
}

// Workload commands

var workloadCmd = &cobra.Command{
	Use:   "workload",
	Short: "Manage benchmark workload definitions",
}

var workloadApplyCmd = &cobra.Command{
	Use:   "apply <file.yaml>",
	Short: "Create or update a workload definition from a YAML file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("reading %s: %w", args[0], err)
		}
		var w types.Workload
		if err := yaml.Unmarshal(raw, &w); err != nil {
			return fmt.Errorf("parsing %s: %w", args[0], err)
		}

		if existing, err := orch.Store.GetWorkload(w.Name); err == nil {
			w.CreatedAt = existing.CreatedAt
			if err := orch.Store.UpdateWorkload(&w); err != nil {
				return err
			}
		} else if err := orch.Store.CreateWorkload(&w); err != nil {
			return err
		}
		fmt.Printf("workload %s applied\n", w.Name)
		return nil
	},
}

var workloadListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workload definitions",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		workloads, err := orch.Store.ListWorkloads()
		if err != nil {
			return err
		}
		return printJSON(workloads)
	},
}

func init() {
	workloadCmd.AddCommand(workloadApplyCmd, workloadListCmd)
}

// Worker commands

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Manage remote benchmark agent workers",
}

var workerRegisterCmd = &cobra.Command{
	Use:   "register <id> <address>",
	Short: "Register a worker and deploy the agent to it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		user, _ := cmd.Flags().GetString("user")
		keyPath, _ := cmd.Flags().GetString("key")
		password, _ := cmd.Flags().GetString("password")
		skipDeploy, _ := cmd.Flags().GetBool("skip-deploy")

		var key []byte
		if keyPath != "" {
			key, err = os.ReadFile(keyPath)
			if err != nil {
				return fmt.Errorf("reading key %s: %w", keyPath, err)
			}
		}

		w := &types.Worker{
			ID:      args[0],
			Address: args[1],
			Credentials: types.Credentials{
				User:       user,
				Port:       22,
				PrivateKey: key,
				Password:   password,
			},
			ConnectionStatus: types.ConnectionUnknown,
			DeploymentStatus: types.DeploymentPending,
		}
		if err := orch.Store.CreateWorker(w); err != nil {
			return err
		}

		if skipDeploy {
			fmt.Printf("worker %s registered (deploy skipped)\n", w.ID)
			return nil
		}

		done := orch.EnqueueDeploy([]*types.Worker{w}, func(workerID string, status types.DeploymentStatus) {
			log.Logger.Info().Str("worker_id", workerID).Str("status", string(status)).Msg("deploy status")
		})
		results := <-done
		for _, r := range results {
			if r.Err != nil {
				return fmt.Errorf("deploying to %s: %w", r.WorkerID, r.Err)
			}
		}
		fmt.Printf("worker %s registered and deployed\n", w.ID)
		return nil
	},
}

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		workers, err := orch.Store.ListWorkers()
		if err != nil {
			return err
		}
		return printJSON(workers)
	},
}

func init() {
	workerRegisterCmd.Flags().String("user", "root", "SSH user for the worker")
	workerRegisterCmd.Flags().String("key", "", "Path to a PEM-encoded private key")
	workerRegisterCmd.Flags().String("password", "", "SSH password (used when --key is not set)")
	workerRegisterCmd.Flags().Bool("skip-deploy", false, "Register the worker without deploying the agent")
	workerCmd.AddCommand(workerRegisterCmd, workerListCmd)
}

// Execution commands

var execCmd = &cobra.Command{
	Use:   "exec",
	Short: "Submit and control benchmark executions",
}

var execSubmitCmd = &cobra.Command{
	Use:   "submit <workload-name>",
	Short: "Submit a workload for execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		skipPrechecks, _ := cmd.Flags().GetBool("skip-prechecks")
		exec, err := orch.Engine.Submit(execution.SubmitRequest{
			WorkloadName: args[0],
			RunPrechecks: !skipPrechecks,
		})
		if err != nil {
			return err
		}
		return printJSON(exec)
	},
}

var execListCmd = &cobra.Command{
	Use:   "list",
	Short: "List executions",
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		execs, err := orch.Engine.List()
		if err != nil {
			return err
		}
		return printJSON(execs)
	},
}

var execStatusCmd = &cobra.Command{
	Use:   "status <execution-id>",
	Short: "Show an execution's current status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		exec, err := orch.Engine.Get(args[0])
		if err != nil {
			return err
		}
		return printJSON(exec)
	},
}

func execControlCmd(use, short string, apply func(*execution.Engine, string) error) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <execution-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			orch, err := openOrchestrator(cmd)
			if err != nil {
				return err
			}
			defer orch.Close()
			return apply(orch.Engine, args[0])
		},
	}
}

var execStopCmd = execControlCmd("stop", "Stop an execution", (*execution.Engine).Stop)
var execPauseCmd = execControlCmd("pause", "Pause an execution", (*execution.Engine).Pause)
var execResumeCmd = execControlCmd("resume", "Resume a paused execution", (*execution.Engine).Resume)

var execScaleUpCmd = &cobra.Command{
	Use:   "scale-up <execution-id>",
	Short: "Add workers to a running execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		count, _ := cmd.Flags().GetInt("count")
		ids, _ := cmd.Flags().GetStringSlice("worker")
		added, err := orch.Engine.ScaleUp(args[0], count, ids)
		if err != nil {
			return err
		}
		return printJSON(added)
	},
}

var execScaleDownCmd = &cobra.Command{
	Use:   "scale-down <execution-id>",
	Short: "Remove workers from a running execution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		orch, err := openOrchestrator(cmd)
		if err != nil {
			return err
		}
		defer orch.Close()

		count, _ := cmd.Flags().GetInt("count")
		ids, _ := cmd.Flags().GetStringSlice("worker")
		removed, err := orch.Engine.ScaleDown(args[0], count, ids)
		if err != nil {
			return err
		}
		return printJSON(removed)
	},
}

func init() {
	execSubmitCmd.Flags().Bool("skip-prechecks", false, "Skip the precheck phase and go straight to preparing")
	execScaleUpCmd.Flags().Int("count", 0, "Number of additional workers to select automatically")
	execScaleUpCmd.Flags().StringSlice("worker", nil, "Explicit worker IDs to add")
	execScaleDownCmd.Flags().Int("count", 0, "Number of participants to remove automatically")
	execScaleDownCmd.Flags().StringSlice("worker", nil, "Explicit worker IDs to remove")

	execCmd.AddCommand(execSubmitCmd, execListCmd, execStatusCmd, execStopCmd, execPauseCmd, execResumeCmd, execScaleUpCmd, execScaleDownCmd)
}
