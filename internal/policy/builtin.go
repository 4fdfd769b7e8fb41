package policy

import "time"

// GetBuiltinPolicies returns the policies every Engine loads at
// construction time, before any caller-supplied paths are added.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		resourceNamingPolicy(),
		requiredContextPolicy(),
		protectedPathPolicy(),
		destructiveCommandPolicy(),
		productionServiceStopPolicy(),
	}
}

// resourceNamingPolicy enforces that every resource's causality ID is a
// short, stable, lowercase token, since it ends up in update-stream
// records and SQLite rows where it is used as a natural key.
func resourceNamingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Resource IDs must be lowercase alphanumeric and hyphens only",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package driftless.policies.naming

import rego.v1

deny contains violation if {
	id := input.resource_id
	id != ""
	not regex.match("^[a-z0-9-]+$", id)
	violation := {
		"message": sprintf("resource id %q must contain only lowercase letters, numbers, and hyphens", [id]),
		"severity": "error",
		"resource": id,
	}
}

deny contains violation if {
	id := input.resource_id
	id != ""
	count(id) > 128
	violation := {
		"message": sprintf("resource id %q must not exceed 128 characters", [id]),
		"severity": "error",
		"resource": id,
	}
}`,
	}
}

// requiredContextPolicy ensures every run declares who is applying it and
// to which environment, so downstream violations and audit rows are never
// attributed to an anonymous run.
func requiredContextPolicy() Policy {
	return Policy{
		Name:        "required-context",
		Description: "Every run must declare an environment and operator",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"context", "attribution"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package driftless.policies.context

import rego.v1

deny contains violation if {
	input.context
	not input.context.environment
	violation := {
		"message": "run context is missing an environment",
		"severity": "error",
		"resource": input.resource_id,
	}
}

deny contains violation if {
	input.context
	not input.context.operator
	violation := {
		"message": "run context is missing an operator",
		"severity": "error",
		"resource": input.resource_id,
	}
}`,
	}
}

// protectedPathPolicy blocks @core/file resources from removing a set of
// paths no plan should ever be allowed to delete, regardless of mode.
func protectedPathPolicy() Policy {
	return Policy{
		Name:        "protected-path",
		Description: "Denies file-absent/directory-absent changes against protected system paths",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"filesystem", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package driftless.policies.protected_path

import rego.v1

protected_paths := ["/", "/etc", "/boot", "/usr", "/var", "/root", "/bin", "/sbin", "/lib"]

deny contains violation if {
	input.resource_kind == "file"
	state := input.desired_state
	state.res_kind in ["file-absent", "directory-absent"]
	some p in protected_paths
	state.path == p
	violation := {
		"message": sprintf("refusing to remove protected path %q", [p]),
		"severity": "critical",
		"resource": input.resource_id,
	}
}`,
	}
}

// destructiveCommandPolicy denies @core/command resources whose install or
// uninstall command matches a small set of well-known destructive shell
// patterns.
func destructiveCommandPolicy() Policy {
	return Policy{
		Name:        "destructive-command",
		Description: "Denies command resources running well-known destructive shell patterns",
		Severity:    SeverityCritical,
		Enabled:     true,
		Tags:        []string{"command", "safety"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package driftless.policies.destructive_command

import rego.v1

destructive_patterns := ["rm -rf /", "mkfs", "dd if=/dev/zero", ":(){ :|:& };:"]

deny contains violation if {
	input.resource_kind == "command"
	state := input.desired_state
	some field in ["install", "uninstall"]
	cmd := state[field]
	some pattern in destructive_patterns
	contains(cmd, pattern)
	violation := {
		"message": sprintf("command %s contains destructive pattern %q", [field, pattern]),
		"severity": "critical",
		"resource": input.resource_id,
	}
}`,
	}
}

// productionServiceStopPolicy requires an explicit dry run before a service
// is stopped or disabled in a production context, mirroring how a human
// operator would want a second look before taking something down.
func productionServiceStopPolicy() Policy {
	return Policy{
		Name:        "production-service-stop",
		Description: "Warns when a service is stopped or disabled in production outside a dry run",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"service", "production"},
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
		Rego: `package driftless.policies.production_service_stop

import rego.v1

deny contains violation if {
	input.resource_kind == "service"
	input.context.environment == "production"
	not input.context.dry_run
	change := input.desired_state
	change.kind in ["stop", "disable"]
	violation := {
		"message": sprintf("service change %q in production outside a dry run", [change.kind]),
		"severity": "warning",
		"resource": input.resource_id,
	}
}`,
	}
}
