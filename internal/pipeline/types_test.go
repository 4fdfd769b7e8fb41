package pipeline

import (
	"testing"
)

func TestConfig_ValidateAcceptsWellFormedInvocation(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		RootPath:   dir,
		PlanID:     "site.plan",
		ParamsJSON: `{"hostname":"web-1"}`,
		LogLevel:   "info",
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfig_ValidateAllowsEmptyParamsJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{RootPath: dir, PlanID: "site.plan", LogLevel: "debug"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestConfig_ValidateRejectsMissingPlanID(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{RootPath: dir, LogLevel: "info"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a missing plan id")
	}
}

func TestConfig_ValidateRejectsUnknownLogLevel(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{RootPath: dir, PlanID: "site.plan", LogLevel: "verbose"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unrecognized log level")
	}
}

func TestConfig_ValidateRejectsNonexistentRoot(t *testing.T) {
	cfg := Config{RootPath: "/no/such/directory/for/enginectl/tests", PlanID: "site.plan", LogLevel: "info"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a root path that does not exist")
	}
}

func TestConfig_ValidateRejectsMalformedParamsJSON(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{RootPath: dir, PlanID: "site.plan", ParamsJSON: "{not json", LogLevel: "info"}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for malformed params JSON")
	}
}
