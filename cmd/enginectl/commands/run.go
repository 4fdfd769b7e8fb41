package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/driftless/driftless/internal/pipeline"
	"github.com/driftless/driftless/internal/planlang/source"
	"github.com/driftless/driftless/internal/policy"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/registry/extpoint"
	"github.com/driftless/driftless/internal/store/run"
	"github.com/driftless/driftless/internal/telemetry"
	"github.com/driftless/driftless/internal/transport/ssh"
	"github.com/driftless/driftless/internal/updatestream"
)

func newRunCommand() *cobra.Command {
	var (
		rootPath      string
		planID        string
		paramsJSON    string
		paramsFile    string
		target        string
		sshHost       string
		sshPort       int
		sshUser       string
		sshKeyPath    string
		policyMode    string
		environment   string
		operator      string
		dryRun        bool
		maxParallel   int
		statePath     string
		manifests     []string
		logLevel      string
		metricsAddr   string
		traceExporter string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Plan, probe, diff, and apply one run against a target machine",
		Long: `run drives one plan through every stage of the pipeline — loading the
plan, expanding it into its resource tree, probing the target's observed
state, diffing against the desired state, lowering drifted resources into
operations, and (unless a policy denies it) applying them — streaming every
stage record to stdout as newline-delimited JSON.`,
		Example: `  # Apply a local plan against the local machine
  enginectl run --root ./plans --plan site.plan --target local

  # Apply against a remote host over SSH, advisory policy only
  enginectl run --root ./plans --plan site.plan --target ssh \
    --ssh-host 10.0.0.5 --ssh-user deploy --ssh-key ~/.ssh/id_ed25519 \
    --policy-mode advisory`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if verbose {
				zerolog.SetGlobalLevel(zerolog.DebugLevel)
			}

			params, err := resolveParams(paramsJSON, paramsFile)
			if err != nil {
				return err
			}

			cfg := pipeline.Config{
				RootPath:   rootPath,
				PlanID:     planID,
				ParamsJSON: params,
				LogLevel:   logLevel,
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			tel, err := telemetry.NewTelemetry(telemetryConfig(logLevel, metricsAddr, traceExporter))
			if err != nil {
				return fmt.Errorf("enginectl: building telemetry: %w", err)
			}
			if err := tel.StartMetricsServer(); err != nil {
				return fmt.Errorf("enginectl: starting metrics server: %w", err)
			}
			ctx := tel.WithContext(cmd.Context())
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tel.Shutdown(shutdownCtx)
			}()

			tgt, err := resolveTarget(target, sshHost, sshPort, sshUser, sshKeyPath)
			if err != nil {
				return err
			}

			engine, err := policy.NewEngine(log.Logger)
			if err != nil {
				return fmt.Errorf("enginectl: loading policy engine: %w", err)
			}

			var runStore run.Store
			if statePath != "" {
				sqliteStore, err := run.NewSQLiteStore(run.Config{Path: statePath})
				if err != nil {
					return fmt.Errorf("enginectl: opening run store: %w", err)
				}
				if err := sqliteStore.Init(ctx); err != nil {
					return fmt.Errorf("enginectl: initializing run store: %w", err)
				}
				if err := sqliteStore.Migrate(ctx); err != nil {
					return fmt.Errorf("enginectl: migrating run store: %w", err)
				}
				defer sqliteStore.Close()
				runStore = sqliteStore
			}

			var extensions []*extpoint.Provider
			for _, manifestPath := range manifests {
				provider, err := extpoint.LoadProvider(ctx, manifestPath, os.TempDir())
				if err != nil {
					return fmt.Errorf("enginectl: loading extension %s: %w", manifestPath, err)
				}
				defer provider.Close(ctx)
				extensions = append(extensions, provider)
			}

			opts := pipeline.Options{
				Registry:     registry.NewRegistry(),
				SourceStore:  source.NewLocalFileStore(rootPath),
				Target:       tgt,
				PolicyEngine: engine,
				PolicyMode:   policy.Mode(policyMode),
				Environment:  environment,
				Operator:     operator,
				DryRun:       dryRun,
				MaxParallel:  maxParallel,
				Writer:       stdoutWriter{},
				Store:        runStore,
				Extensions:   extensions,
			}

			result := pipeline.Run(ctx, opts, pipeline.Params{
				RootPath:   rootPath,
				PlanID:     planID,
				ParamsJSON: params,
			})

			log.Info().
				Str("run_id", result.RunID).
				Str("status", result.Status).
				Msg("run finished")

			if result.Err != nil {
				return result.Err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rootPath, "root", ".", "root directory plans are resolved from")
	cmd.Flags().StringVar(&planID, "plan", "", "plan path relative to --root")
	cmd.Flags().StringVar(&paramsJSON, "params", "", "run parameters as a JSON object")
	cmd.Flags().StringVar(&paramsFile, "params-file", "", "path to a JSON file of run parameters")
	cmd.Flags().StringVar(&target, "target", "local", "execution target: local or ssh")
	cmd.Flags().StringVar(&sshHost, "ssh-host", "", "ssh target host")
	cmd.Flags().IntVar(&sshPort, "ssh-port", 22, "ssh target port")
	cmd.Flags().StringVar(&sshUser, "ssh-user", "", "ssh target user")
	cmd.Flags().StringVar(&sshKeyPath, "ssh-key", "", "path to the ssh private key")
	cmd.Flags().StringVar(&policyMode, "policy-mode", string(policy.ModeEnforcing), "policy mode: enforcing or advisory")
	cmd.Flags().StringVar(&environment, "environment", "", "environment label recorded on policy context")
	cmd.Flags().StringVar(&operator, "operator", "", "operator name recorded on policy context")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compute and report changes without applying them")
	cmd.Flags().IntVar(&maxParallel, "max-parallel", 0, "max concurrent state probes (0 = unbounded)")
	cmd.Flags().StringVar(&statePath, "state", "", "sqlite database path for run history (empty disables persistence)")
	cmd.Flags().StringSliceVar(&manifests, "extension", nil, "extension provider manifest path (repeatable)")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "engine log level: trace, debug, info, warn, error, or fatal")
	cmd.Flags().StringVar(&metricsAddr, "metrics-listen", ":9090", "address the prometheus /metrics endpoint listens on")
	cmd.Flags().StringVar(&traceExporter, "trace-exporter", "stdout", "trace exporter: stdout or none")
	cmd.MarkFlagRequired("plan")

	return cmd
}

// telemetryConfig builds a telemetry.Config from the run command's flags,
// layering them on telemetry.DefaultConfig the way ProductionConfig/
// DevelopmentConfig layer their own overrides.
func telemetryConfig(logLevel, metricsAddr, traceExporter string) *telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Level = logLevel
	cfg.Metrics.ListenAddress = metricsAddr
	if traceExporter == "none" {
		cfg.Tracing.Enabled = false
	} else {
		cfg.Tracing.Exporter = traceExporter
	}
	return cfg
}

func resolveParams(paramsJSON, paramsFile string) (string, error) {
	if paramsJSON != "" && paramsFile != "" {
		return "", fmt.Errorf("enginectl: specify either --params or --params-file, not both")
	}
	if paramsFile != "" {
		raw, err := os.ReadFile(paramsFile)
		if err != nil {
			return "", fmt.Errorf("enginectl: reading %s: %w", paramsFile, err)
		}
		return string(raw), nil
	}
	return paramsJSON, nil
}

func resolveTarget(kind, host string, port int, user, keyPath string) (pipeline.Target, error) {
	switch kind {
	case "", "local":
		return pipeline.Target{Name: "local", Transport: pipeline.TransportLocal}, nil
	case "ssh":
		if host == "" || user == "" {
			return pipeline.Target{}, fmt.Errorf("enginectl: --ssh-host and --ssh-user are required for --target ssh")
		}
		return pipeline.Target{
			Name:      host,
			Transport: pipeline.TransportSSH,
			SSH: &ssh.Config{
				Host:           host,
				Port:           port,
				User:           user,
				AuthMethod:     ssh.AuthMethodKey,
				PrivateKeyPath: keyPath,
			},
		}, nil
	default:
		return pipeline.Target{}, fmt.Errorf("enginectl: unknown target kind %q", kind)
	}
}

// stdoutWriter emits every update-stream record as one JSON line on stdout,
// the machine-readable counterpart to the human-readable console logging,
// for a UI or script to consume.
type stdoutWriter struct{}

func (stdoutWriter) Write(rec updatestream.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	raw = append(raw, '\n')
	_, err = os.Stdout.Write(raw)
	return err
}
