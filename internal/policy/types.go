// Package policy gates a lowered operation tree against a set of Rego
// policies before the pipeline orchestrator applies it. A gate evaluates
// every resource in a run's diff against the loaded policy set and returns
// a single PolicyVerdict; whether a non-empty verdict stops the run is a
// property of the configured Mode, not of the policy package itself.
package policy

import (
	"encoding/json"
	"time"
)

// Severity classifies a PolicyViolation. Error and Critical are the
// severities that can flip PolicyVerdict.Allowed to false; Info and
// Warning are always advisory regardless of Mode.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Mode controls what a non-allowed PolicyVerdict does to a run. Advisory
// policies are always evaluated and always logged; Mode only decides
// whether the orchestrator aborts on them.
type Mode string

const (
	// ModeAdvisory evaluates policies and records violations but never
	// blocks the apply stage.
	ModeAdvisory Mode = "advisory"
	// ModeEnforcing aborts the run before any operation executes when
	// PolicyVerdict.Allowed is false.
	ModeEnforcing Mode = "enforcing"
)

// Policy is one compiled Rego module plus the metadata the engine needs to
// run and report on it.
type Policy struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Rego        string                 `json:"rego"`
	Severity    Severity               `json:"severity"`
	Enabled     bool                   `json:"enabled"`
	Tags        []string               `json:"tags,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// PolicyViolation is one deny result produced by one policy against one
// resource.
type PolicyViolation struct {
	Policy      string   `json:"policy"`
	ResourceID  string   `json:"resource_id,omitempty"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Remediation string   `json:"remediation,omitempty"`
}

// PolicyContext carries the run-level facts policies can key decisions on
// (environment, operator, dry-run) that no single resource input knows
// about by itself.
type PolicyContext struct {
	RunID       string    `json:"run_id,omitempty"`
	PlanID      string    `json:"plan_id,omitempty"`
	Environment string    `json:"environment,omitempty"`
	Operator    string    `json:"operator,omitempty"`
	DryRun      bool      `json:"dry_run"`
	Timestamp   time.Time `json:"timestamp"`
}

// PolicyInput is one resource's worth of evaluation input. DesiredState
// and ActualState are the JSON-marshaled registry.Resource/registry.State
// for the resource named by ResourceID; a policy gate never imports the
// registry package directly so that new resource kinds never need a
// matching change here.
type PolicyInput struct {
	ResourceID   string          `json:"resource_id"`
	ResourceKind string          `json:"resource_kind"`
	DesiredState json.RawMessage `json:"desired_state,omitempty"`
	ActualState  json.RawMessage `json:"actual_state,omitempty"`
	HasChange    bool            `json:"has_change"`
	Context      *PolicyContext  `json:"context,omitempty"`
}

// PolicyVerdict is the gate's output for one evaluation pass over a run's
// resources: Allowed reflects Mode and the violations' severities,
// Violations is the full list regardless of Mode so advisory runs can
// still surface them.
type PolicyVerdict struct {
	Allowed    bool              `json:"allowed"`
	Violations []PolicyViolation `json:"violations"`
	Mode       Mode              `json:"mode"`
	EvaluatedAt time.Time        `json:"evaluated_at"`
	Duration   time.Duration     `json:"duration"`
}

// Blocking reports the subset of Violations severe enough to flip Allowed
// to false under enforcing mode, regardless of the verdict's own Mode.
func (v *PolicyVerdict) Blocking() []PolicyViolation {
	var out []PolicyViolation
	for _, pv := range v.Violations {
		if pv.Severity == SeverityError || pv.Severity == SeverityCritical {
			out = append(out, pv)
		}
	}
	return out
}

// PolicyBundle is a named, versioned collection of policies distributed
// together, e.g. loaded from a single JSON file.
type PolicyBundle struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description"`
	Policies    []Policy  `json:"policies"`
	CreatedAt   time.Time `json:"created_at"`
}
