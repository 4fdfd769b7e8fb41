package ssh

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"
)

// client owns one dialed SSH connection plus the SFTP session layered on
// top of it, and the keep-alive goroutine that detects a dead connection
// before the next command tries to use it.
type client struct {
	config *Config

	mu          sync.RWMutex
	conn        *ssh.Client
	sftp        *sftp.Client
	isConnected bool
	connectedAt time.Time
}

// newClient validates cfg and returns an unconnected client; callers must
// call connect before issuing any command.
func newClient(cfg *Config) (*client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &client{config: cfg}, nil
}

// connect dials the remote host, opens an SFTP session over the same
// connection, and starts the keep-alive loop if configured.
func (c *client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isConnected && c.conn != nil {
		return nil
	}

	clientConfig, err := c.config.clientConfig()
	if err != nil {
		return err
	}

	log.Debug().Str("address", c.config.Address()).Msg("dialing ssh connection")

	conn, err := ssh.Dial("tcp", c.config.Address(), clientConfig)
	if err != nil {
		return fmt.Errorf("ssh: dial %s: %w", c.config.Address(), err)
	}

	sftpClient, err := sftp.NewClient(conn)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("ssh: starting sftp session: %w", err)
	}

	c.conn = conn
	c.sftp = sftpClient
	c.isConnected = true
	c.connectedAt = time.Now()

	if c.config.KeepAliveInterval > 0 {
		go c.keepAlive()
	}

	log.Info().Str("address", c.config.Address()).Msg("ssh connection established")
	return nil
}

// close tears down the SFTP session and the underlying SSH connection.
func (c *client) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected {
		return nil
	}

	var sftpErr, connErr error
	if c.sftp != nil {
		sftpErr = c.sftp.Close()
	}
	if c.conn != nil {
		connErr = c.conn.Close()
	}
	c.isConnected = false
	c.conn = nil
	c.sftp = nil

	if connErr != nil {
		return connErr
	}
	return sftpErr
}

// session returns a new SSH session on the underlying connection,
// reconnecting first if the connection had not been established yet.
func (c *client) session() (*ssh.Session, error) {
	c.mu.RLock()
	conn, connected := c.conn, c.isConnected
	c.mu.RUnlock()

	if !connected || conn == nil {
		if err := c.connect(); err != nil {
			return nil, err
		}
		c.mu.RLock()
		conn = c.conn
		c.mu.RUnlock()
	}

	return conn.NewSession()
}

// sftpClient returns the live SFTP client, reconnecting first if needed.
func (c *client) sftpClient() (*sftp.Client, error) {
	c.mu.RLock()
	sc, connected := c.sftp, c.isConnected
	c.mu.RUnlock()

	if !connected || sc == nil {
		if err := c.connect(); err != nil {
			return nil, err
		}
		c.mu.RLock()
		sc = c.sftp
		c.mu.RUnlock()
	}

	return sc, nil
}

// keepAlive sends periodic no-op requests so a silently dropped connection
// is noticed before the next command tries to use it.
func (c *client) keepAlive() {
	ticker := time.NewTicker(c.config.KeepAliveInterval)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.RLock()
		conn, connected := c.conn, c.isConnected
		c.mu.RUnlock()
		if !connected || conn == nil {
			return
		}
		if _, _, err := conn.SendRequest("keepalive@driftless", true, nil); err != nil {
			log.Warn().Err(err).Str("address", c.config.Address()).Msg("ssh keep-alive failed")
			return
		}
	}
}

// healthCheck runs a trivial command to confirm the connection still
// responds.
func (c *client) healthCheck() error {
	sess, err := c.session()
	if err != nil {
		return err
	}
	defer sess.Close()
	return sess.Run("true")
}
