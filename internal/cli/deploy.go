package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roach88/ignite/internal/artifact"
	"github.com/roach88/ignite/internal/config"
	"github.com/roach88/ignite/internal/deployer"
	"github.com/roach88/ignite/internal/ignite"
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/ledger"
	"github.com/roach88/ignite/internal/ledger/simulated"
)

// DefaultAccounts are the development accounts used when --accounts is not
// given.
var DefaultAccounts = []string{
	"0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
	"0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
	"0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc",
}

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Module        string
	DeploymentDir string
	Params        string
	Artifacts     string
	Config        string
	EnvFile       string
	Accounts      []string
	DefaultSender string
	MetricsAddr   string

	// Client overrides the ledger the deployment runs against (for testing).
	// If nil, a fresh auto-mining simulated ledger is used.
	Client ledger.Client

	// RunIDs overrides the run id generator (for testing).
	RunIDs deployer.RunIDGenerator
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy <module-dir>",
		Short: "Rehearse a module deployment",
		Long: `Validate a module against its contract artifacts and execute it against
the in-process simulated ledger.

With --deployment-dir the execution journal is kept on disk: running the
command again resumes the deployment and leaves completed futures alone.
Tunables come from --config, then IGNITE_* environment variables (a .env
file is loaded first when present).

Example:
  ignite deploy ./modules/token --artifacts ./artifacts --params params.yaml
  ignite deploy ./modules/token --artifacts ./artifacts --deployment-dir ./deployments/dev`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "module to deploy when the directory declares several")
	cmd.Flags().StringVar(&opts.DeploymentDir, "deployment-dir", "", "directory holding the deployment journal (in memory when empty)")
	cmd.Flags().StringVar(&opts.Params, "params", "", "YAML file of module parameters keyed by module id")
	cmd.Flags().StringVar(&opts.Artifacts, "artifacts", "artifacts", "directory of <Contract>.json artifacts")
	cmd.Flags().StringVar(&opts.Config, "config", "", "YAML deployment configuration")
	cmd.Flags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before reading IGNITE_* variables")
	cmd.Flags().StringSliceVar(&opts.Accounts, "accounts", DefaultAccounts, "deploy accounts, in index order")
	cmd.Flags().StringVar(&opts.DefaultSender, "default-sender", "", "sender for futures without one (defaults to the first account)")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics at http://<addr>/metrics while deploying")

	return cmd
}

func runDeploy(opts *DeployOptions, dir string, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := formatter(opts.RootOptions, cmd)

	cfg, err := loadConfig(opts.Config, opts.EnvFile)
	if err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	m, err := LoadModule(dir, opts.Module)
	if err != nil {
		return loadFailed(out, err)
	}

	params, err := readParams(opts.Params)
	if err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitCommandError, "invalid parameters", err)
	}

	if opts.MetricsAddr != "" {
		metrics, err := startMetricsServer(opts.MetricsAddr, logger)
		if err != nil {
			_ = out.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitCommandError, "failed to start metrics server", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metrics.Shutdown(shutdownCtx); err != nil {
				logger.Warn("metrics server shutdown", "error", err)
			}
		}()
	}

	client := opts.Client
	if client == nil {
		client = simulated.New()
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, finishing in-flight futures", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("deploying module", "module", m.ID(), "dir", dir, "deployment_dir", opts.DeploymentDir)
	res, err := ignite.Deploy(ctx, ignite.Params{
		Module:        m,
		Parameters:    params,
		Accounts:      opts.Accounts,
		DefaultSender: opts.DefaultSender,
		Config:        cfg,
		Client:        client,
		Resolver:      artifact.Dir{Path: opts.Artifacts},
		Listener:      eventLogger(logger),
		DeploymentDir: opts.DeploymentDir,
		Logger:        logger,
		RunIDs:        opts.RunIDs,
	})
	if err != nil {
		code := ExitFailure
		if deployer.IsOperatorError(err) || deployer.IsReconciliationError(err) {
			code = ExitCommandError
		}
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(code, "deployment aborted", err)
	}

	if err := out.Success(newDeployReport(res)); err != nil {
		return err
	}
	if !res.Succeeded() {
		return NewExitError(ExitFailure, fmt.Sprintf("deployment finished with status %s", res.Status))
	}
	return nil
}

// loadConfig reads the deployment configuration: defaults, then the YAML
// file, then IGNITE_* variables from the environment and envFile.
func loadConfig(path, envFile string) (config.Deploy, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return config.Deploy{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return config.Deploy{}, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return config.Deploy{}, err
	}
	return cfg, cfg.Validate()
}

// eventLogger logs every journal event at debug level.
func eventLogger(logger *slog.Logger) deployer.Listener {
	return deployer.ListenerFunc(func(e deployer.Event) {
		logger.Debug("journal event", "run", e.RunID, "seq", e.Seq, "future", e.FutureID, "type", e.Type)
	})
}

// DeployReport is the output of the deploy command.
type DeployReport struct {
	Status      deployer.Status          `json:"status"`
	RunID       string                   `json:"runId,omitempty"`
	Values      map[string]ir.Value      `json:"values,omitempty"`
	Completed   map[string]ir.Value      `json:"completed,omitempty"`
	Failed      map[string]FailureReport `json:"failed,omitempty"`
	NotStarted  []string                 `json:"notStarted,omitempty"`
	InProgress  []string                 `json:"inProgress,omitempty"`
	Errors      []string                 `json:"errors,omitempty"`
	Interrupted bool                     `json:"interrupted,omitempty"`
}

// FailureReport describes a failed future.
type FailureReport struct {
	Class   string `json:"class"`
	Message string `json:"message"`
	Cause   string `json:"cause,omitempty"`
}

func newDeployReport(res *deployer.Result) DeployReport {
	r := DeployReport{
		Status:      res.Status,
		RunID:       res.RunID,
		Values:      res.Values,
		Completed:   res.Completed,
		NotStarted:  res.NotStarted,
		InProgress:  res.InProgress,
		Errors:      res.Errors,
		Interrupted: res.Interrupted,
	}
	if len(res.Failed) > 0 {
		r.Failed = make(map[string]FailureReport, len(res.Failed))
		for id, f := range res.Failed {
			r.Failed[id] = FailureReport{Class: string(f.Class), Message: f.Message, Cause: f.Cause}
		}
	}
	return r
}

// WriteText renders the report for a terminal.
func (r DeployReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Deployment %s", r.Status)
	if r.RunID != "" {
		fmt.Fprintf(w, " (run %s)", r.RunID)
	}
	if r.Interrupted {
		fmt.Fprint(w, ", interrupted")
	}
	fmt.Fprintln(w)

	if len(r.Completed) > 0 {
		fmt.Fprintln(w, "\nCompleted:")
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, id := range slices.Sorted(maps.Keys(r.Completed)) {
			fmt.Fprintf(tw, "  %s\t%s\n", id, renderValue(r.Completed[id]))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	if len(r.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		for _, e := range r.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}
	for _, group := range []struct {
		title string
		ids   []string
	}{
		{"In progress", r.InProgress},
		{"Not started", r.NotStarted},
	} {
		if len(group.ids) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s:\n", group.title)
		for _, id := range group.ids {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	return nil
}

func renderValue(v ir.Value) string {
	b, err := ir.MarshalValue(v)
	if err != nil {
		return fmt.Sprintf("<%v>", err)
	}
	return string(b)
}
