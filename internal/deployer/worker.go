package deployer

import (
	"context"

	"github.com/roach88/ignite/internal/ir"
	"github.com/roach88/ignite/internal/journal"
	"github.com/roach88/ignite/internal/module"
	"github.com/roach88/ignite/internal/strategy"
	"github.com/roach88/ignite/internal/txmanager"
)

// execute runs one future to its value. prior holds the requests an earlier
// run recorded for it; they are resumed in place of freshly built ones.
func (r *run) execute(ctx context.Context, f module.Future, env strategy.Env, prior []journal.RequestState) (ir.Value, error) {
	reqs, err := strategy.BuildRequests(ctx, f, env)
	if err != nil {
		return nil, err
	}

	rec := txmanager.RecorderFunc(func(_ context.Context, m journal.Message) error {
		return r.record(m)
	})

	var out strategy.Outcome
	tx := 0
	for _, req := range reqs {
		if req.ToCreated && len(out.Receipts) > 0 {
			req.To = out.Receipts[0].ContractAddress
		}
		if !req.IsTransaction() {
			v, err := r.manager.Call(ctx, req)
			if err != nil {
				return nil, err
			}
			out.Static = v
			continue
		}

		job := txmanager.Job{FutureID: f.ID(), Index: tx, Request: req}
		if tx < len(prior) {
			p := prior[tx]
			job.Prior = &p
			job.Request = p.Request
		}
		receipt, err := r.manager.Execute(ctx, job, rec)
		if err != nil {
			return nil, err
		}
		out.Receipts = append(out.Receipts, receipt)
		tx++
	}
	return strategy.Result(f, env, out)
}
