package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/policy"
	"github.com/driftless/driftless/internal/tree"
)

// gatePolicy evaluates every non-group resource (changed or not, with its
// HasChange flag) against opts.PolicyEngine and aborts the run (under
// ModeEnforcing) when any violation is Error or Critical severity. Under
// ModeAdvisory the verdict never blocks the apply that follows; the engine
// logs only a count of the violations, and they are not reported elsewhere.
func gatePolicy(ctx context.Context, opts Options, runID string, ft *tree.FlatTree[*nodeData]) error {
	var inputs []policy.PolicyInput

	ft.DepthFirstSearch(func(i int, n *tree.FlatNode[*nodeData]) {
		nd := n.Value
		if isGroup(nd) {
			return
		}

		desired, _ := json.Marshal(nd.resource)
		var actual json.RawMessage
		if nd.state != nil {
			actual, _ = json.Marshal(nd.state)
		}

		inputs = append(inputs, policy.PolicyInput{
			ResourceID:   n.Meta.ID,
			ResourceKind: string(nd.resource.Kind),
			DesiredState: desired,
			ActualState:  actual,
			HasChange:    nd.change != nil && nd.change.HasChange,
			Context: &policy.PolicyContext{
				RunID:       runID,
				Environment: opts.Environment,
				Operator:    opts.Operator,
				DryRun:      opts.DryRun,
				Timestamp:   time.Now(),
			},
		})
	})

	if len(inputs) == 0 {
		return nil
	}

	mode := opts.PolicyMode
	if mode == "" {
		mode = policy.ModeEnforcing
	}

	verdict, err := opts.PolicyEngine.Evaluate(ctx, inputs, mode)
	if err != nil {
		return pipelineerr.NewPolicyDeniedError(nil)
	}
	if !verdict.Allowed {
		var names []string
		for _, v := range verdict.Blocking() {
			names = append(names, v.Policy)
		}
		return pipelineerr.NewPolicyDeniedError(names)
	}
	return nil
}
