// Package pipelineerr defines the structured error type shared by every
// stage of the planning-and-reconciliation pipeline. Every error carries a
// typed Kind and, where the failure can be attributed to a location in a
// plan source, an optional Span — no error is ever collapsed to a bare
// string before it reaches a caller.
package pipelineerr
