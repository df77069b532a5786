package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/ignite/internal/ignite"
	"github.com/roach88/ignite/internal/store"
	"github.com/roach88/ignite/internal/wiper"
)

// NewWipeCommand creates the wipe command.
func NewWipeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "wipe <future-id>",
		Short: "Reset a future and everything depending on it",
		Long: `Record a reset for a future and every future that transitively depends
on it, so the next deploy executes them again. Futures still in progress
cannot be wiped.

Example:
  ignite wipe --deployment-dir ./deployments/dev Token#Mint`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWipe(opts, args[0], cmd)
		},
	}
	addDeploymentDirFlag(cmd, &opts.DeploymentDir)
	return cmd
}

func runWipe(opts *InspectOptions, futureID string, cmd *cobra.Command) error {
	newLogger(opts.RootOptions, cmd.ErrOrStderr())
	out := formatter(opts.RootOptions, cmd)

	if !store.Exists(opts.DeploymentDir) {
		msg := fmt.Sprintf("no deployment journal in %s", opts.DeploymentDir)
		_ = out.Error(ErrCodeNotFound, msg, nil)
		return NewExitError(ExitCommandError, msg)
	}

	reset, err := ignite.Wipe(cmd.Context(), opts.DeploymentDir, futureID)
	if err != nil {
		var details any
		var inProgress *wiper.InProgressError
		if errors.As(err, &inProgress) {
			details = inProgress.InProgress
		}
		_ = out.Error(ErrCodeGeneric, err.Error(), details)
		if wiper.IsUnknownFuture(err) || wiper.IsInProgress(err) {
			return WrapExitError(ExitCommandError, "wipe rejected", err)
		}
		return WrapExitError(ExitFailure, "wipe failed", err)
	}
	return out.Success(WipeReport{Reset: reset})
}

// WipeReport is the output of the wipe command.
type WipeReport struct {
	Reset []string `json:"reset"`
}

// WriteText lists the reset futures.
func (r WipeReport) WriteText(w io.Writer) error {
	if len(r.Reset) == 0 {
		_, err := fmt.Fprintln(w, "Nothing to reset")
		return err
	}
	fmt.Fprintln(w, "Reset:")
	for _, id := range r.Reset {
		fmt.Fprintf(w, "  %s\n", id)
	}
	return nil
}
