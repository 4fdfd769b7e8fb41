// Package telemetry provides observability instrumentation for the pipeline
// engine: structured logging (zerolog), distributed tracing (OpenTelemetry),
// metrics (Prometheus), and an async event bus, unified behind one Telemetry
// handle threaded through context.Context.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//	ctx = telemetry.WithRunContext(ctx, runID, planID)
//	defer telemetry.EndRunContext(ctx, runID, status, err)
//
// # Pillars
//
//  1. Logger - component-scoped zerolog logger, carried via context
//  2. Tracer - one span per run, one per epoch, one per operation apply,
//     one per extension-provider call
//  3. Metrics - counters/histograms for runs, operations, extension calls,
//     and errors by pipelineerr.Kind
//  4. Events - buffered async event publishing for audit/notification
//
// # Common metrics
//
//   - driftless_runs_started_total{plan_id}
//   - driftless_runs_completed_total{status}
//   - driftless_operations_executed_total{kind,status}
//   - driftless_extension_calls_total{module,verb}
//   - driftless_errors_by_class_total{class}
//   - driftless_changes_detected_total{resource_type,status}
package telemetry
