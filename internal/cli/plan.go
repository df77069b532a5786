package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/module"
)

// PlanOptions holds flags for the plan command.
type PlanOptions struct {
	*RootOptions
	Module string
}

// NewPlanCommand creates the plan command.
func NewPlanCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlanOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "plan <module-dir>",
		Short: "Show the execution order of a module",
		Long: `Load the CUE module in a directory and print its futures in the order
they will be executed, with their dependencies, parameters and results.

Example:
  ignite plan ./modules/token
  ignite plan ./modules --module Token --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Module, "module", "", "module to plan when the directory declares several")

	return cmd
}

func runPlan(opts *PlanOptions, dir string, cmd *cobra.Command) error {
	out := formatter(opts.RootOptions, cmd)

	m, err := LoadModule(dir, opts.Module)
	if err != nil {
		return loadFailed(out, err)
	}
	return out.Success(buildPlan(m))
}

// loadFailed reports a module load error and returns the matching exit error.
func loadFailed(out *OutputFormatter, err error) error {
	code := ErrCodeGeneric
	if le, ok := err.(*LoadError); ok {
		code = le.Code
	}
	_ = out.Error(code, err.Error(), nil)
	return WrapExitError(ExitCommandError, "failed to load module", err)
}

// Plan is the output of the plan command.
type Plan struct {
	Module     string          `json:"module"`
	Futures    []PlanFuture    `json:"futures"`
	Parameters []PlanParameter `json:"parameters,omitempty"`
	Results    []string        `json:"results,omitempty"`
}

// PlanFuture is one future in execution order.
type PlanFuture struct {
	ID           string      `json:"id"`
	Kind         module.Kind `json:"kind"`
	Dependencies []string    `json:"dependencies,omitempty"`
}

// PlanParameter is a module parameter and its default, if any.
type PlanParameter struct {
	Name    string          `json:"name"`
	Default json.RawMessage `json:"default,omitempty"`
}

func buildPlan(m *module.Module) Plan {
	p := Plan{Module: m.ID(), Results: m.ResultFutures()}
	g := m.Graph()
	for _, id := range g.Order() {
		f, _ := m.Future(id)
		p.Futures = append(p.Futures, PlanFuture{ID: id, Kind: f.Kind(), Dependencies: g.DependenciesOf(id)})
	}
	for _, param := range m.Parameters() {
		pp := PlanParameter{Name: param.Name}
		if param.Default != nil {
			if b, err := ir.MarshalValue(param.Default); err == nil {
				pp.Default = b
			}
		}
		p.Parameters = append(p.Parameters, pp)
	}
	return p
}

// WriteText renders the plan as aligned columns.
func (p Plan) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "Module %s\n\n", p.Module)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tFUTURE\tKIND\tDEPENDS ON")
	for i, f := range p.Futures {
		deps := "-"
		if len(f.Dependencies) > 0 {
			deps = strings.Join(f.Dependencies, ", ")
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, f.ID, f.Kind, deps)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(p.Parameters) > 0 {
		fmt.Fprintln(w, "\nParameters:")
		for _, param := range p.Parameters {
			if param.Default == nil {
				fmt.Fprintf(w, "  %s (required)\n", param.Name)
				continue
			}
			fmt.Fprintf(w, "  %s (default %s)\n", param.Name, param.Default)
		}
	}
	if len(p.Results) > 0 {
		fmt.Fprintln(w, "\nResults:")
		for _, id := range p.Results {
			fmt.Fprintf(w, "  %s\n", id)
		}
	}
	return nil
}
