// Package policy evaluates a run's resources against Rego policies before
// the orchestrator applies any operation.
//
// An Engine is constructed with the five built-in policies already
// compiled (resource-naming, required-context, protected-path,
// destructive-command, production-service-stop) and can load more from
// disk via LoadPolicies. Evaluate takes one PolicyInput per resource in
// the run's diff and folds every policy's deny results into a single
// PolicyVerdict.
//
// Mode decides what a violation does: ModeAdvisory records violations but
// never blocks, ModeEnforcing flips PolicyVerdict.Allowed to false when any
// violation is SeverityError or SeverityCritical. The orchestrator is the
// one that aborts a run on Allowed == false — this package only evaluates.
package policy
