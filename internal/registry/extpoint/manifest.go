// Package extpoint loads non-core resource kinds as sandboxed WASM modules:
// a manifest, a capability-checked wazero runtime, and a
// JSON-over-linear-memory bridge expose the same five-verb ResourceType
// contract (Module/Schema/Expand/Probe/Diff/Lower) this project uses for
// its built-in kinds.
package extpoint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Manifest describes one loadable extension: its module identifier, the
// path to its compiled WASM binary, a checksum to verify before
// instantiation, and the capabilities it may exercise through host
// functions (see capabilities.go).
type Manifest struct {
	Module       string   `yaml:"module"`
	Entrypoint   string   `yaml:"entrypoint"`
	Checksum     string   `yaml:"checksum"`
	Capabilities []string `yaml:"capabilities"`

	// dir is the directory the manifest file lives in, used to resolve
	// Entrypoint when it is a relative path.
	dir string
}

// LoadManifest reads and validates a manifest YAML file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("extpoint: read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("extpoint: parse manifest: %w", err)
	}
	if m.Module == "" {
		return nil, fmt.Errorf("extpoint: manifest %s missing module", path)
	}
	if m.Entrypoint == "" {
		return nil, fmt.Errorf("extpoint: manifest %s missing entrypoint", path)
	}

	m.dir = filepath.Dir(path)
	return &m, nil
}

// WasmPath resolves Entrypoint against the manifest's directory.
func (m *Manifest) WasmPath() string {
	if filepath.IsAbs(m.Entrypoint) {
		return m.Entrypoint
	}
	return filepath.Join(m.dir, m.Entrypoint)
}

// VerifyChecksum reports whether wasmModule's sha256 matches the manifest's
// declared Checksum. A manifest with no declared checksum always verifies.
func (m *Manifest) VerifyChecksum(wasmModule []byte) bool {
	if m.Checksum == "" {
		return true
	}
	sum := sha256.Sum256(wasmModule)
	return hex.EncodeToString(sum[:]) == m.Checksum
}

func (m *Manifest) hasCapability(name string) bool {
	for _, c := range m.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}
