package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/driftless/driftless/internal/pipelineerr"
	"github.com/driftless/driftless/internal/planlang/source"
	"github.com/driftless/driftless/internal/registry/extpoint"
	"github.com/driftless/driftless/internal/store/run"
	"github.com/driftless/driftless/internal/telemetry"
	"github.com/driftless/driftless/internal/updatestream"
)

// Run drives one full pipeline invocation end to end: ResourceParams,
// Resources, States, Changes, Operations, an optional policy gate, and
// Apply, persisting the run's state machine through opts.Store (a nil Store
// is a valid no-op) and emitting every updatestream.Record to opts.Writer.
func Run(ctx context.Context, opts Options, params Params) Result {
	runID := uuid.NewString()
	ctx = telemetry.WithRunContext(ctx, runID, params.PlanID)

	status := string(run.StatusIdle)
	finish := func(err error) Result {
		if err != nil {
			status = string(run.StatusFailed)
			// A failed run ends the update stream with a terminal Error record
			// whose Stage is the error's kind ("cancelled" for a cancelled apply).
			if opts.Writer != nil {
				stage := ""
				var spanJSON json.RawMessage
				var perr *pipelineerr.Error
				if errors.As(err, &perr) {
					stage = string(perr.Kind)
					if perr.Span != nil {
						spanJSON, _ = json.Marshal(perr.Span)
					}
				}
				_ = opts.Writer.Write(updatestream.Error(stage, err.Error(), spanJSON))
			}
		} else {
			status = string(run.StatusDone)
		}
		telemetry.EndRunContext(ctx, runID, status, err)
		persistStatus(ctx, opts.Store, runID, run.Status(status), err)
		return Result{RunID: runID, Status: status, Err: err}
	}

	if opts.Store != nil {
		now := time.Now()
		_ = opts.Store.CreateRun(ctx, &run.Run{
			ID: runID, PlanID: params.PlanID, ParamsJSON: params.ParamsJSON,
			Status: run.StatusIdle, StartedAt: now, CreatedAt: now, UpdatedAt: now,
		})
	}

	emit := recordEmitter(ctx, opts.Store, runID, opts.Writer)

	extensions := make(map[string]*extpoint.Provider, len(opts.Extensions))
	for _, p := range opts.Extensions {
		extensions[p.Module()] = p
		opts.Registry.RegisterExtension(p)
	}

	persistStatus(ctx, opts.Store, runID, run.StatusPlanning, nil)
	planID := source.ItemID{AbsolutePath: filepath.Join(params.RootPath, params.PlanID)}
	planTree, paramsRec, perr := buildResourceParams(opts.SourceStore, opts.Registry, planID, params.ParamsJSON)
	if perr != nil {
		return finish(perr)
	}
	if err := emit(paramsRec); err != nil {
		return finish(err)
	}

	ft := buildSkeleton(planTree)

	persistStatus(ctx, opts.Store, runID, run.StatusResourcesExpanded, nil)
	if err := expandResources(ft, opts.Registry, emit); err != nil {
		return finish(err)
	}

	ex, closeEx, eerr := opts.Target.Executor()
	if eerr != nil {
		return finish(eerr)
	}
	defer closeEx()

	persistStatus(ctx, opts.Store, runID, run.StatusStatesProbed, nil)
	if err := runStates(ctx, ft, opts.Registry, ex, opts.MaxParallel, emit); err != nil {
		return finish(err)
	}

	persistStatus(ctx, opts.Store, runID, run.StatusDiffed, nil)
	if err := runChanges(ft, opts.Registry, emit); err != nil {
		return finish(err)
	}

	persistStatus(ctx, opts.Store, runID, run.StatusLowered, nil)
	if err := runLower(ft, opts.Registry, emit); err != nil {
		return finish(err)
	}

	if opts.PolicyEngine != nil {
		if err := gatePolicy(ctx, opts, runID, ft); err != nil {
			return finish(err)
		}
	}

	globalOps, ferr := flattenForApply(ft)
	if ferr != nil {
		return finish(ferr)
	}

	persistStatus(ctx, opts.Store, runID, run.StatusApplying, nil)
	if err := runApply(ctx, runID, globalOps, ex, extensions, emit); err != nil {
		return finish(err)
	}

	return finish(nil)
}

func persistStatus(ctx context.Context, store run.Store, runID string, status run.Status, err error) {
	if store == nil {
		return
	}
	var errMsg *string
	if err != nil {
		msg := err.Error()
		errMsg = &msg
	}
	_ = store.UpdateRunStatus(ctx, runID, status, 0, errMsg)
}

// recordEmitter wraps a RecordWriter (if any) and the run store's event log
// (if any) behind one emit function every stage calls uniformly.
func recordEmitter(ctx context.Context, store run.Store, runID string, w RecordWriter) func(updatestream.Record) error {
	var seq int64
	return func(rec updatestream.Record) error {
		if w != nil {
			if err := w.Write(rec); err != nil {
				return err
			}
		}
		if store != nil {
			seq++
			payload, merr := marshalRecord(rec)
			if merr != nil {
				return merr
			}
			_ = store.AppendEvent(ctx, &run.RunEvent{
				RunID: runID, Sequence: seq, Kind: string(rec.Kind),
				Payload: payload, Timestamp: time.Now(),
			})
		}
		return nil
	}
}

func marshalRecord(rec updatestream.Record) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}
