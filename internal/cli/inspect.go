package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/store"
)

// InspectOptions holds flags for the commands reading a deployment journal.
type InspectOptions struct {
	*RootOptions
	DeploymentDir string
}

func addDeploymentDirFlag(cmd *cobra.Command, dir *string) {
	cmd.Flags().StringVar(dir, "deployment-dir", "", "deployment directory (required)")
	_ = cmd.MarkFlagRequired("deployment-dir")
}

// openDeployment opens an existing deployment directory. It does not create
// one.
func openDeployment(dir string) (*store.Durable, error) {
	if !store.Exists(dir) {
		return nil, NewExitError(ExitCommandError, fmt.Sprintf("no deployment journal in %s", dir))
	}
	loader, err := store.OpenDurable(dir)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open deployment", err)
	}
	return loader, nil
}

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every recorded future",
		Long: `Replay a deployment journal and print the status of each future it
records, in the order the futures were first started.

Example:
  ignite status --deployment-dir ./deployments/dev`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(opts, cmd)
		},
	}
	addDeploymentDirFlag(cmd, &opts.DeploymentDir)
	return cmd
}

func runStatus(opts *InspectOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	loader, err := openDeployment(opts.DeploymentDir)
	if err != nil {
		_ = out.Error(ErrCodeNotFound, err.Error(), nil)
		return err
	}
	defer loader.Close()

	state, err := journal.Load(cmd.Context(), loader)
	if err != nil {
		_ = out.Error(ErrCodeGeneric, err.Error(), nil)
		return WrapExitError(ExitFailure, "failed to replay journal", err)
	}
	return out.Success(newStatusReport(state))
}

// StatusReport is the output of the status command.
type StatusReport struct {
	ChainID       int64          `json:"chainId"`
	ModuleID      string         `json:"moduleId"`
	EngineVersion string         `json:"engineVersion"`
	Futures       []FutureStatus `json:"futures"`
}

// FutureStatus is the recorded state of one future.
type FutureStatus struct {
	ID           string          `json:"id"`
	Status       journal.Status  `json:"status"`
	Kind         string          `json:"kind,omitempty"`
	Sender       string          `json:"sender,omitempty"`
	Transactions int             `json:"transactions,omitempty"`
	Result       json.RawMessage `json:"result,omitempty"`
	Failure      *FailureReport  `json:"failure,omitempty"`
}

func newStatusReport(state journal.DeploymentState) StatusReport {
	r := StatusReport{
		ChainID:       state.ChainID,
		ModuleID:      state.ModuleID,
		EngineVersion: state.EngineVersion,
		Futures:       []FutureStatus{},
	}
	for _, id := range state.IDs() {
		fs := state.Future(id)
		s := FutureStatus{ID: id, Status: fs.Status, Kind: string(fs.Kind), Sender: fs.Sender}
		for _, req := range fs.Requests {
			if req.Sent() {
				s.Transactions++
			}
		}
		if fs.Status == journal.StatusCompleted {
			s.Result = json.RawMessage(renderValue(fs.Result))
		}
		if fs.Failure != nil {
			s.Failure = &FailureReport{Class: string(fs.Failure.Class), Message: fs.Failure.Message, Cause: fs.Failure.Cause}
		}
		r.Futures = append(r.Futures, s)
	}
	return r
}

// WriteText renders the status table.
func (r StatusReport) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Module %s on chain %d (engine %s)\n\n", r.ModuleID, r.ChainID, r.EngineVersion)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FUTURE\tSTATUS\tKIND\tDETAIL")
	for _, f := range r.Futures {
		detail := "-"
		switch {
		case f.Failure != nil:
			detail = fmt.Sprintf("%s: %s", f.Failure.Class, f.Failure.Message)
		case f.Result != nil:
			detail = string(f.Result)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.ID, f.Status, f.Kind, detail)
	}
	return tw.Flush()
}

// NewJournalCommand creates the journal command.
func NewJournalCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List the entries of a deployment journal",
		Long: `Print every journal entry of a deployment in sequence order. The
journal's hash chain is verified while reading.

Example:
  ignite journal --deployment-dir ./deployments/dev --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJournal(opts, cmd)
		},
	}
	addDeploymentDirFlag(cmd, &opts.DeploymentDir)
	return cmd
}

func runJournal(opts *InspectOptions, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	loader, err := openDeployment(opts.DeploymentDir)
	if err != nil {
		_ = out.Error(ErrCodeNotFound, err.Error(), nil)
		return err
	}
	defer loader.Close()

	listing := JournalListing{Entries: []JournalEntry{}}
	for m, err := range loader.Replay(cmd.Context()) {
		if err != nil {
			_ = out.Error(ErrCodeGeneric, err.Error(), nil)
			return WrapExitError(ExitFailure, "failed to read journal", err)
		}
		body, err := journal.Encode(m)
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode journal entry", err)
		}
		h := journal.Head(m)
		listing.Entries = append(listing.Entries, JournalEntry{
			Seq:    h.Seq,
			Type:   m.Type(),
			Future: h.Future,
			Time:   h.Time,
			Body:   body,
		})
	}
	return out.Success(listing)
}

// JournalListing is the output of the journal command.
type JournalListing struct {
	Entries []JournalEntry `json:"entries"`
}

// JournalEntry is one journal message.
type JournalEntry struct {
	Seq    int64           `json:"seq"`
	Type   journal.Type    `json:"type"`
	Future string          `json:"future,omitempty"`
	Time   time.Time       `json:"time"`
	Body   json.RawMessage `json:"body"`
}

// WriteText renders one line per entry.
func (l JournalListing) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SEQ\tTIME\tTYPE\tFUTURE")
	for _, e := range l.Entries {
		future := e.Future
		if future == "" {
			future = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", e.Seq, e.Time.Format(time.RFC3339), e.Type, future)
	}
	return tw.Flush()
}
