package extpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "manifest.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoadManifest_ResolvesRelativeEntrypoint(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
module: "@ext/example"
entrypoint: example.wasm
capabilities:
  - net:outbound
`)

	m, err := LoadManifest(path)
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if m.Module != "@ext/example" {
		t.Errorf("Module = %q, want @ext/example", m.Module)
	}
	want := filepath.Join(dir, "example.wasm")
	if got := m.WasmPath(); got != want {
		t.Errorf("WasmPath() = %q, want %q", got, want)
	}
}

func TestLoadManifest_RejectsMissingModule(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
entrypoint: example.wasm
`)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for missing module field")
	}
}

func TestLoadManifest_RejectsMissingEntrypoint(t *testing.T) {
	dir := t.TempDir()
	path := writeManifest(t, dir, `
module: "@ext/example"
`)
	if _, err := LoadManifest(path); err == nil {
		t.Fatal("expected error for missing entrypoint field")
	}
}

func TestManifest_VerifyChecksum(t *testing.T) {
	wasmModule := []byte("fake wasm bytes")
	sum := sha256.Sum256(wasmModule)

	m := &Manifest{Module: "@ext/example", Checksum: hex.EncodeToString(sum[:])}
	if !m.VerifyChecksum(wasmModule) {
		t.Error("expected checksum to verify")
	}

	tampered := append([]byte{}, wasmModule...)
	tampered[0] ^= 0xFF
	if m.VerifyChecksum(tampered) {
		t.Error("expected checksum mismatch for tampered module")
	}
}

func TestManifest_VerifyChecksum_EmptyAlwaysVerifies(t *testing.T) {
	m := &Manifest{Module: "@ext/example"}
	if !m.VerifyChecksum([]byte("anything")) {
		t.Error("expected empty checksum to always verify")
	}
}

func TestManifest_HasCapability(t *testing.T) {
	m := &Manifest{Capabilities: []string{CapabilityNetOutbound}}
	if !m.hasCapability(CapabilityNetOutbound) {
		t.Error("expected net:outbound to be granted")
	}
	if m.hasCapability(CapabilityFSTemp) {
		t.Error("expected fs:temp to not be granted")
	}
}
