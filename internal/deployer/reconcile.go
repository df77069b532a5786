package deployer

import (
	"strings"

	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/strategy"
)

// Reconcile compares the futures recorded in state with the module about to
// be deployed. A started future must still be declared, with the same kind
// and parameters; an in-progress future must still resolve to the sender
// that holds its nonce. Reset futures are ignored: they run afresh.
func Reconcile(m *module.Module, state journal.DeploymentState, env strategy.Env) error {
	var mismatches []Mismatch
	add := func(id, msg string) {
		mismatches = append(mismatches, Mismatch{FutureID: id, Message: msg})
	}

	for _, id := range state.IDs() {
		fs := state.Futures[id]
		if fs.Status == journal.StatusReset {
			continue
		}
		f, ok := m.Future(id)
		if !ok {
			add(id, "recorded in the journal but missing from the module")
			continue
		}
		if fs.ParamsHash == "" {
			// Failed on a dependency without starting.
			continue
		}
		if fs.Kind != f.Kind() {
			add(id, "recorded as "+string(fs.Kind)+" but declared as "+string(f.Kind()))
			continue
		}
		if fs.ParamsHash != module.ParamsHash(f) {
			add(id, "declaration changed since execution started")
			continue
		}
		if fs.Status == journal.StatusInProgress && fs.Sender != "" {
			s, err := strategy.Sender(f, env)
			if err == nil && !strings.EqualFold(s, fs.Sender) {
				add(id, "sender changed from "+fs.Sender+" to "+s)
			}
		}
	}
	if len(mismatches) > 0 {
		return &ReconciliationError{Mismatches: mismatches}
	}
	return nil
}
