// Package ssh implements internal/exec.Executor over an SSH connection, so
// internal/registry's probe/diff/lower logic runs unchanged against a
// remote Target the same way it runs against the local host.
package ssh

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// AuthMethod selects how Config authenticates to the remote host.
type AuthMethod string

const (
	AuthMethodPassword AuthMethod = "password"
	AuthMethodKey       AuthMethod = "key"
)

// Config holds everything needed to dial and authenticate an SSH
// connection to one Target.
type Config struct {
	Host string
	Port int
	User string

	AuthMethod           AuthMethod
	Password             string
	PrivateKeyPath       string
	PrivateKeyPassphrase string

	// KnownHostsPath is the path to a known_hosts file. Empty disables
	// host key verification — acceptable for a lab Target, not for a
	// production one.
	KnownHostsPath        string
	StrictHostKeyChecking bool

	ConnectionTimeout time.Duration
	CommandTimeout    time.Duration
	KeepAliveInterval time.Duration
}

// DefaultConfig returns a Config with the same defaults this module's
// local executor implies: key auth, strict host checking against the
// caller's own known_hosts, generous timeouts.
func DefaultConfig(host, user string) *Config {
	return &Config{
		Host:                  host,
		Port:                  22,
		User:                  user,
		AuthMethod:            AuthMethodKey,
		KnownHostsPath:        filepath.Join(os.Getenv("HOME"), ".ssh", "known_hosts"),
		StrictHostKeyChecking: true,
		ConnectionTimeout:     30 * time.Second,
		CommandTimeout:        5 * time.Minute,
	}
}

// Validate checks Config for the fields its AuthMethod requires, filling
// in a default private key path when one wasn't given.
func (c *Config) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("ssh: host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("ssh: invalid port %d", c.Port)
	}
	if c.User == "" {
		return fmt.Errorf("ssh: user is required")
	}

	switch c.AuthMethod {
	case AuthMethodPassword:
		if c.Password == "" {
			return fmt.Errorf("ssh: password is required for password authentication")
		}
	case AuthMethodKey:
		if c.PrivateKeyPath == "" {
			home := os.Getenv("HOME")
			for _, candidate := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
				path := filepath.Join(home, ".ssh", candidate)
				if _, err := os.Stat(path); err == nil {
					c.PrivateKeyPath = path
					break
				}
			}
			if c.PrivateKeyPath == "" {
				return fmt.Errorf("ssh: private key path is required and no default key was found")
			}
		}
		if _, err := os.Stat(c.PrivateKeyPath); os.IsNotExist(err) {
			return fmt.Errorf("ssh: private key file not found: %s", c.PrivateKeyPath)
		}
	default:
		return fmt.Errorf("ssh: unsupported auth method: %s", c.AuthMethod)
	}

	if c.ConnectionTimeout <= 0 {
		return fmt.Errorf("ssh: connection timeout must be positive")
	}
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("ssh: command timeout must be positive")
	}

	return nil
}

// clientConfig builds the golang.org/x/crypto/ssh.ClientConfig this Config
// describes.
func (c *Config) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod

	switch c.AuthMethod {
	case AuthMethodPassword:
		auth = append(auth, ssh.Password(c.Password))
	case AuthMethodKey:
		keyBytes, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("ssh: reading private key: %w", err)
		}
		var signer ssh.Signer
		if c.PrivateKeyPassphrase != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(keyBytes, []byte(c.PrivateKeyPassphrase))
		} else {
			signer, err = ssh.ParsePrivateKey(keyBytes)
		}
		if err != nil {
			return nil, fmt.Errorf("ssh: parsing private key: %w", err)
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if c.KnownHostsPath != "" && c.StrictHostKeyChecking {
		cb, err := knownhosts.New(c.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("ssh: loading known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	return &ssh.ClientConfig{
		User:            c.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         c.ConnectionTimeout,
	}, nil
}

// Address returns the "host:port" string ssh.Dial expects.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
