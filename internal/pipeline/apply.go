package pipeline

import (
	"context"
	"fmt"

	"github.com/driftless/driftless/internal/causality"
	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/operation"
	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/registry/extpoint"
	"github.com/driftless/driftless/internal/telemetry"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"
)

// globalOp is one node of the flattened, epoch-schedulable causality graph
// built from every changed resource's lowered operation tree.
type globalOp struct {
	id     string
	before []string
	after  []string
	op     operation.Operation

	// origins lists the resource-tree indices an applied copy of op should
	// attribute update-stream events to. Exactly one entry for every
	// built-in kind except Apt/Pacman, whose Merge can fold several
	// resources' operations into one applied call — those broadcast to
	// every contributing resource.
	origins []int
}

// flattenForApply walks every resource slot (changed or not) and emits:
//   - a barrier globalOp per resource, id = the resource's own globally
//     scoped causality id, after = that resource's own "terminal" lowered
//     operations (leaves nothing else in the resource depends on), before =
//     the resource's own declared Before list. Barriers are KindGroup, so
//     operation.Merge drops them before anything is actually applied — they
//     exist purely to give every resource, changed or not, one stable id
//     other resources can name in their own before/after lists without the
//     graph erroring on an unknown dependency.
//   - one globalOp per lowered operation leaf of every *changed* resource,
//     with the leaf's local causality id (e.g. git.go's "fetch") prefixed by
//     the resource's own id so identically-named local ids from different
//     resources never collide. A leaf with no local "after" (an entry point
//     into the resource's own lowering) additionally inherits the
//     resource's own After list, so the resource's operations never start
//     before its declared cross-resource dependencies.
func flattenForApply(ft *tree.FlatTree[*nodeData]) ([]globalOp, error) {
	var out []globalOp
	var walkErr error

	ft.DepthFirstSearch(func(index int, n *tree.FlatNode[*nodeData]) {
		if walkErr != nil || isGroup(n.Value) {
			return
		}
		nd := n.Value
		resID := n.Meta.ID
		if resID == "" {
			walkErr = fmt.Errorf("pipeline: resource at index %d has no causality id", index)
			return
		}

		var terminals []string

		if nd.change != nil && nd.change.HasChange && nd.ops != nil {
			local := tree.Flatten(nd.ops, groupOpIdentity, identityOp)

			type localLeaf struct {
				idx int
				fn  *tree.FlatNode[operation.Operation]
			}
			var leaves []localLeaf
			for i := 0; i < local.Len(); i++ {
				fn, err := local.Get(i)
				if err != nil || !fn.IsLeaf {
					continue
				}
				leaves = append(leaves, localLeaf{i, fn})
			}

			referenced := make(map[string]bool, len(leaves))
			for _, l := range leaves {
				for _, a := range l.fn.Meta.After {
					referenced[a] = true
				}
			}

			gid := make(map[int]string, len(leaves))
			for _, l := range leaves {
				localID := l.fn.Meta.ID
				if localID != "" {
					gid[l.idx] = resID + "/" + localID
				} else {
					gid[l.idx] = fmt.Sprintf("%s/_op%d", resID, l.idx)
				}
			}

			for _, l := range leaves {
				var after []string
				for _, a := range l.fn.Meta.After {
					after = append(after, resID+"/"+a)
				}
				if len(l.fn.Meta.After) == 0 {
					after = append(after, n.Meta.After...)
				}
				out = append(out, globalOp{
					id:      gid[l.idx],
					after:   after,
					op:      l.fn.Value,
					origins: []int{index},
				})

				localID := l.fn.Meta.ID
				if localID == "" || !referenced[localID] {
					terminals = append(terminals, gid[l.idx])
				}
			}
		}

		out = append(out, globalOp{
			id:     resID,
			after:  terminals,
			before: n.Meta.Before,
			op:     operation.GroupOperation(),
		})
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

func groupOpIdentity(op operation.Operation) operation.Operation { return op }
func identityOp(op operation.Operation) operation.Operation      { return op }

// runApply computes the causality epochs over every resource's lowered
// operations, merges each epoch, and applies the merged operations against
// ex, streaming OpStart/Stdout/Stderr/OpComplete records per resource-tree
// index. Built-in operations run through internal/operation.Apply;
// KindExtension operations are dispatched to the owning extpoint.Provider,
// since Apply is not part of the registry.ResourceType contract extpoint
// providers otherwise satisfy uniformly.
func runApply(ctx context.Context, runID string, ops []globalOp, ex exec.Executor, extensions map[string]*extpoint.Provider, emit func(updatestream.Record) error) error {
	if err := emit(updatestream.ApplyStart()); err != nil {
		return err
	}

	annotated := make([]causality.Annotated[globalOp], len(ops))
	for i, o := range ops {
		annotated[i] = causality.Annotated[globalOp]{ID: o.id, Before: o.before, After: o.after, Value: o}
	}
	epochs, err := causality.ComputeEpochs(annotated)
	if err != nil {
		return pipelineerr.NewCausalityError("computing apply epochs", err)
	}

	for epochNum, epoch := range epochs {
		select {
		case <-ctx.Done():
			return pipelineerr.NewCancelledError()
		default:
		}

		rawOps := make([]operation.Operation, len(epoch))
		originsByKind := make(map[operation.Kind][]int)
		for i, o := range epoch {
			rawOps[i] = o.op
			if len(o.origins) > 0 {
				originsByKind[o.op.Kind] = append(originsByKind[o.op.Kind], o.origins...)
			}
		}

		merged, merr := operation.Merge(rawOps)
		if merr != nil {
			return pipelineerr.NewOperationError(merr.Error(), -1, "", nil)
		}

		cursor := make(map[operation.Kind]int)
		for _, mop := range merged {
			indices := attributeOrigins(mop.Kind, originsByKind, cursor)
			// Cancellation is checked only between epochs; operations already
			// in this epoch run to completion.
			if err := applyOne(context.WithoutCancel(ctx), runID, epochNum, indices, mop, ex, extensions, emit); err != nil {
				return err
			}
		}
	}

	return emit(updatestream.ApplyComplete())
}

// attributeOrigins maps one merged operation back to the resource-tree
// index(es) its update-stream events should be attributed to. Apt/Pacman
// genuinely fold N resources' operations into one applied call (mergeApt's
// package-list union), so every contributing resource for that kind hears
// the same stdout/stderr/completion — a documented simplification, since
// there is no finer-grained signal to attribute a single "apt-get install"
// invocation to only some of the packages it installed. Every other kind
// passes through Merge 1:1 in original order, so a simple per-kind cursor
// recovers the exact originating index.
func attributeOrigins(kind operation.Kind, originsByKind map[operation.Kind][]int, cursor map[operation.Kind]int) []int {
	switch kind {
	case operation.KindApt, operation.KindPacman:
		return originsByKind[kind]
	default:
		list := originsByKind[kind]
		i := cursor[kind]
		cursor[kind]++
		if i < len(list) {
			return []int{list[i]}
		}
		return nil
	}
}

func applyOne(ctx context.Context, runID string, epoch int, indices []int, op operation.Operation, ex exec.Executor, extensions map[string]*extpoint.Provider, emit func(updatestream.Record) error) error {
	if op.Kind == operation.KindGroup {
		return nil
	}

	for _, idx := range indices {
		if err := emit(updatestream.OpStart(idx)); err != nil {
			return err
		}
	}

	opID := fmt.Sprintf("epoch-%d-%s", epoch, op.Kind)
	resourceLabel := "multi"
	if idx := firstIndex(indices); idx != nil {
		resourceLabel = fmt.Sprintf("%d", *idx)
	}
	opCtx := telemetry.WithOperationContext(ctx, runID, epoch, opID, resourceLabel, string(op.Kind))

	var result operation.Result
	var applyErr error

	if op.Kind == operation.KindExtension {
		provider, ok := extensions[op.Extension.Module]
		if !ok {
			applyErr = fmt.Errorf("pipeline: no loaded extension provider for module %q", op.Extension.Module)
		} else {
			result, applyErr = provider.Apply(opCtx, op)
		}
	} else {
		stdout := &lineWriter{emit: func(line string) error {
			var err error
			for _, idx := range indices {
				if e := emit(updatestream.Stdout(idx, line)); e != nil {
					err = e
				}
			}
			return err
		}}
		stderr := &lineWriter{emit: func(line string) error {
			var err error
			for _, idx := range indices {
				if e := emit(updatestream.Stderr(idx, line)); e != nil {
					err = e
				}
			}
			return err
		}}
		result, applyErr = operation.Apply(opCtx, ex, op, stdout, stderr)
	}

	status := result.ExitCode
	statusStr := "succeeded"
	if applyErr != nil || !result.Succeeded() {
		statusStr = "failed"
	}
	for _, idx := range indices {
		telemetry.EndOperationContext(opCtx, runID, opID, fmt.Sprintf("%d", idx), string(op.Kind), statusStr, applyErr)
		if err := emit(updatestream.OpComplete(idx, status)); err != nil {
			return err
		}
	}

	if applyErr != nil {
		return pipelineerr.NewOperationError(applyErr.Error(), status, "", firstIndex(indices))
	}
	if !result.Succeeded() {
		return pipelineerr.NewOperationError(fmt.Sprintf("operation exited %d", status), status, "", firstIndex(indices))
	}
	return nil
}

func firstIndex(indices []int) *int {
	if len(indices) == 0 {
		return nil
	}
	return &indices[0]
}

// lineWriter adapts a callback that wants whole lines to io.Writer's
// arbitrary-chunked Write, splitting on newlines and buffering a trailing
// partial line across calls.
type lineWriter struct {
	emit func(line string) error
	buf  []byte
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	for {
		idx := indexByte(w.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(w.buf[:idx])
		w.buf = w.buf[idx+1:]
		if err := w.emit(line); err != nil {
			return len(p), err
		}
	}
	return len(p), nil
}

func indexByte(b []byte, c byte) int {
	for i, v := range b {
		if v == c {
			return i
		}
	}
	return -1
}
