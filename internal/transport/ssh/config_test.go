package ssh

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("example.com", "deploy")

	if cfg.Host != "example.com" {
		t.Errorf("Host = %q, want %q", cfg.Host, "example.com")
	}
	if cfg.Port != 22 {
		t.Errorf("Port = %d, want 22", cfg.Port)
	}
	if cfg.AuthMethod != AuthMethodKey {
		t.Errorf("AuthMethod = %q, want %q", cfg.AuthMethod, AuthMethodKey)
	}
	if cfg.ConnectionTimeout != 30*time.Second {
		t.Errorf("ConnectionTimeout = %v, want 30s", cfg.ConnectionTimeout)
	}
}

func TestConfigValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Host:              "example.com",
			Port:              22,
			User:              "deploy",
			AuthMethod:        AuthMethodPassword,
			Password:          "secret",
			ConnectionTimeout: time.Second,
			CommandTimeout:    time.Second,
		}
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"missing host", func(c *Config) { c.Host = "" }, true},
		{"invalid port", func(c *Config) { c.Port = 0 }, true},
		{"missing user", func(c *Config) { c.User = "" }, true},
		{"password auth without password", func(c *Config) { c.Password = "" }, true},
		{"unsupported auth method", func(c *Config) { c.AuthMethod = "totp" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected an error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestConfigValidate_KeyAuthFindsDefaultKey(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	keyPath := filepath.Join(home, ".ssh")
	if err := os.MkdirAll(keyPath, 0o700); err != nil {
		t.Fatalf("failed to create .ssh dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(keyPath, "id_ed25519"), []byte("not a real key"), 0o600); err != nil {
		t.Fatalf("failed to write fake key: %v", err)
	}

	cfg := &Config{
		Host:              "example.com",
		Port:              22,
		User:              "deploy",
		AuthMethod:        AuthMethodKey,
		ConnectionTimeout: time.Second,
		CommandTimeout:    time.Second,
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.PrivateKeyPath != filepath.Join(keyPath, "id_ed25519") {
		t.Errorf("PrivateKeyPath = %q, want the discovered default key", cfg.PrivateKeyPath)
	}
}

func TestAddress(t *testing.T) {
	cfg := &Config{Host: "10.0.0.5", Port: 2222}
	if got := cfg.Address(); got != "10.0.0.5:2222" {
		t.Errorf("Address() = %q, want %q", got, "10.0.0.5:2222")
	}
}
