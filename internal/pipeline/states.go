package pipeline

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/driftless/driftless/internal/exec"
	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/registry"
	"github.com/driftless/driftless/internal/tree"
	"github.com/driftless/driftless/internal/updatestream"
)

// moduleFor recovers the "@core/..." (or extension) module string an
// already-expanded Resource came from, since nodeData only keeps the atomic
// Resource past the Resources stage.
func moduleFor(r registry.Resource) string {
	if r.Kind == registry.KindExtension {
		return r.Extension.Module
	}
	return "@core/" + string(r.Kind)
}

func nonGroupIndices(ft *tree.FlatTree[*nodeData]) []int {
	var out []int
	ft.DepthFirstSearch(func(i int, n *tree.FlatNode[*nodeData]) {
		if !isGroup(n.Value) {
			out = append(out, i)
		}
	})
	return out
}

// runStates probes every atomic resource's observed state through a bounded
// worker pool. A probe failure is surfaced immediately rather than retried:
// a probe is a read, and a flaky read is a signal worth seeing, not masking.
func runStates(ctx context.Context, ft *tree.FlatTree[*nodeData], reg *registry.Registry, ex exec.Executor, maxParallel int, emit func(updatestream.Record) error) error {
	if err := emit(updatestream.StatesStart()); err != nil {
		return err
	}

	indices := nonGroupIndices(ft)
	if len(indices) == 0 {
		return emit(updatestream.StatesComplete())
	}

	workerCount := maxParallel
	if workerCount <= 0 || workerCount > len(indices) {
		workerCount = len(indices)
	}

	workQueue := make(chan int, len(indices))
	for _, i := range indices {
		workQueue <- i
	}
	close(workQueue)

	var wg sync.WaitGroup
	errCh := make(chan error, len(indices))
	var emitMu sync.Mutex
	safeEmit := func(rec updatestream.Record) error {
		emitMu.Lock()
		defer emitMu.Unlock()
		return emit(rec)
	}

	for w := 0; w < workerCount; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range workQueue {
				select {
				case <-ctx.Done():
					errCh <- pipelineerr.NewCancelledError()
					continue
				default:
				}

				if err := safeEmit(updatestream.StatesNodeStart(i)); err != nil {
					errCh <- err
					continue
				}

				slot, err := ft.Get(i)
				if err != nil {
					continue
				}
				rt, ok := reg.Lookup(moduleFor(slot.Value.resource))
				if !ok {
					errCh <- pipelineerr.NewUnknownCoreModuleError(moduleFor(slot.Value.resource)).WithNodeIndex(i)
					continue
				}

				state, perr := rt.Probe(ctx, ex, slot.Value.resource)
				if perr != nil {
					errCh <- pipelineerr.NewProbeError(perr.Error(), perr).WithNodeIndex(i)
					continue
				}
				slot.Value.state = &state

				raw, merr := json.Marshal(state)
				if merr != nil {
					errCh <- merr
					continue
				}
				if err := safeEmit(updatestream.StatesNodeComplete(i, raw)); err != nil {
					errCh <- err
					continue
				}
			}
		}()
	}

	wg.Wait()
	close(errCh)
	for err := range errCh {
		if err != nil {
			return err
		}
	}

	return emit(updatestream.StatesComplete())
}
