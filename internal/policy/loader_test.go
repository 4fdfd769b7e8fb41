package policy

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestLoadFromFile_Rego(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "no-root-writes.rego")

	regoContent := `package driftless.policies.no_root_writes

# denies file writes directly under /root

deny contains msg if {
	input.resource_kind == "file"
	msg := "no root writes"
}`

	if err := os.WriteFile(policyFile, []byte(regoContent), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	policy, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if policy.Name != "no-root-writes" {
		t.Errorf("Name = %q, want %q", policy.Name, "no-root-writes")
	}
	if policy.Rego != regoContent {
		t.Error("Rego content doesn't match source file")
	}
	if policy.Description != "denies file writes directly under /root" {
		t.Errorf("Description = %q", policy.Description)
	}
	if !policy.Enabled {
		t.Error("policy loaded from a .rego file should be enabled by default")
	}
}

func TestLoadFromFile_JSON(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "custom.json")

	policy := Policy{
		Name:        "custom-policy",
		Description: "a caller-supplied policy",
		Rego:        "package driftless.policies.custom\ndeny contains msg if { false }",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"custom"},
	}

	data, err := json.Marshal(policy)
	if err != nil {
		t.Fatalf("failed to marshal policy: %v", err)
	}
	if err := os.WriteFile(policyFile, data, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	loaded, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}
	if loaded.Name != "custom-policy" {
		t.Errorf("Name = %q, want %q", loaded.Name, "custom-policy")
	}
	if loaded.Severity != SeverityError {
		t.Errorf("Severity = %q, want %q", loaded.Severity, SeverityError)
	}
}

func TestLoadFromFile_CachesByPath(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	policyFile := filepath.Join(tmpDir, "cached.rego")
	if err := os.WriteFile(policyFile, []byte("package driftless.policies.cached\ndeny contains msg if { false }"), 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	first, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("loadFromFile: %v", err)
	}

	// Mutate the file on disk; a cache hit must still return the original.
	if err := os.WriteFile(policyFile, []byte("package driftless.policies.cached\ndeny contains msg if { true }"), 0o644); err != nil {
		t.Fatalf("failed to rewrite test file: %v", err)
	}

	second, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("loadFromFile (cached): %v", err)
	}
	if second.Rego != first.Rego {
		t.Error("expected the cached policy content, not the rewritten file")
	}

	loader.ClearCache()
	third, err := loader.loadFromFile(policyFile)
	if err != nil {
		t.Fatalf("loadFromFile (after ClearCache): %v", err)
	}
	if third.Rego == first.Rego {
		t.Error("expected ClearCache to force a re-read from disk")
	}
}

func TestLoadFromDirectory(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	for _, name := range []string{"a.rego", "b.rego", "ignored.txt"} {
		content := "package driftless.policies." + name[:1] + "\ndeny contains msg if { false }"
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}

	policies, err := loader.LoadFromPaths(context.Background(), []string{tmpDir})
	if err != nil {
		t.Fatalf("LoadFromPaths: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies (ignoring the .txt file), got %d", len(policies))
	}
}

func TestLoadBundle(t *testing.T) {
	loader := NewLoader(zerolog.Nop())

	tmpDir := t.TempDir()
	bundleFile := filepath.Join(tmpDir, "bundle.json")

	bundle := PolicyBundle{
		Name:    "baseline",
		Version: "1.0.0",
		Policies: []Policy{
			{Name: "p1", Rego: "package p1\ndeny contains msg if { false }", Severity: SeverityWarning, Enabled: true},
		},
	}
	data, err := json.Marshal(bundle)
	if err != nil {
		t.Fatalf("failed to marshal bundle: %v", err)
	}
	if err := os.WriteFile(bundleFile, data, 0o644); err != nil {
		t.Fatalf("failed to write bundle file: %v", err)
	}

	loaded, err := loader.LoadBundle(context.Background(), bundleFile)
	if err != nil {
		t.Fatalf("LoadBundle: %v", err)
	}
	if loaded.Name != "baseline" || len(loaded.Policies) != 1 {
		t.Errorf("unexpected bundle contents: %+v", loaded)
	}
}
