package extpoint

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const (
	CapabilityNetOutbound = "net:outbound"
	CapabilityFSTemp      = "fs:temp"
)

// capabilityEnforcer enforces capability restrictions for the host
// functions a WASM module can call.
type capabilityEnforcer struct {
	granted    map[string]bool
	httpClient *http.Client
	tempDir    string
}

func newCapabilityEnforcer(manifest *Manifest, tempDir string) *capabilityEnforcer {
	granted := make(map[string]bool, len(manifest.Capabilities))
	for _, c := range manifest.Capabilities {
		granted[c] = true
	}
	return &capabilityEnforcer{
		granted:    granted,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		tempDir:    tempDir,
	}
}

func (e *capabilityEnforcer) has(capability string) bool {
	return e.granted[capability]
}

func (e *capabilityEnforcer) httpRequest(ctx context.Context, method, url string, body io.Reader) (*http.Response, error) {
	if !e.has(CapabilityNetOutbound) {
		return nil, fmt.Errorf("extpoint: capability %s not granted", CapabilityNetOutbound)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("extpoint: build request: %w", err)
	}
	return e.httpClient.Do(req)
}

func (e *capabilityEnforcer) writeTempFile(name string, data []byte) error {
	if !e.has(CapabilityFSTemp) {
		return fmt.Errorf("extpoint: capability %s not granted", CapabilityFSTemp)
	}
	return os.WriteFile(filepath.Join(e.tempDir, filepath.Base(name)), data, 0o600)
}

func (e *capabilityEnforcer) readTempFile(name string) ([]byte, error) {
	if !e.has(CapabilityFSTemp) {
		return nil, fmt.Errorf("extpoint: capability %s not granted", CapabilityFSTemp)
	}
	return os.ReadFile(filepath.Join(e.tempDir, filepath.Base(name)))
}
