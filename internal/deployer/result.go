package deployer

import (
	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/module"
)

// Status is the overall outcome of a run.
type Status string

const (
	StatusSuccess           Status = "success"
	StatusPartialFailure    Status = "partial-failure"
	StatusValidationFailure Status = "validation-failure"
)

// Result is what a run reports. Values holds the module's result futures
// that completed; Completed holds every completed future.
//
// A run succeeds when every result future completed. A module that names
// no result futures treats all of its futures as results. Failed futures
// are listed even when the run succeeds.
type Result struct {
	Status      Status
	RunID       string
	Values      map[string]ir.Value
	Completed   map[string]ir.Value
	Failed      map[string]journal.Failure
	NotStarted  []string
	InProgress  []string
	Errors      []string
	Interrupted bool
}

// Succeeded reports whether every result future completed.
func (r *Result) Succeeded() bool { return r.Status == StatusSuccess }

// ValidationFailure is the result of a run rejected before execution.
func ValidationFailure(runID string, errs []string) *Result {
	return &Result{
		Status:    StatusValidationFailure,
		RunID:     runID,
		Values:    map[string]ir.Value{},
		Completed: map[string]ir.Value{},
		Failed:    map[string]journal.Failure{},
		Errors:    errs,
	}
}

// buildResult summarizes state for the futures of m.
func buildResult(runID string, m *module.Module, state journal.DeploymentState, interrupted bool) *Result {
	r := &Result{
		RunID:       runID,
		Values:      map[string]ir.Value{},
		Completed:   map[string]ir.Value{},
		Failed:      map[string]journal.Failure{},
		Interrupted: interrupted,
	}
	for _, id := range m.Graph().Order() {
		fs := state.Future(id)
		switch fs.Status {
		case journal.StatusCompleted:
			r.Completed[id] = fs.Result
		case journal.StatusFailed:
			r.Failed[id] = *fs.Failure
			r.Errors = append(r.Errors, id+": "+fs.Failure.Message)
		case journal.StatusInProgress:
			r.InProgress = append(r.InProgress, id)
		default:
			r.NotStarted = append(r.NotStarted, id)
		}
	}
	results := m.ResultFutures()
	if len(results) == 0 {
		results = m.Graph().Order()
	}
	r.Status = StatusSuccess
	for _, id := range results {
		v, ok := r.Completed[id]
		if !ok {
			r.Status = StatusPartialFailure
			continue
		}
		r.Values[id] = v
	}
	return r
}
