package ssh

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/sftp"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/ssh"

	"github.com/driftless/driftless/internal/exec"
)

// Executor runs internal/exec.Executor's commands and file operations
// against one remote Target over a single pooled SSH+SFTP connection.
type Executor struct {
	client *client
}

var _ exec.Executor = (*Executor)(nil)

// NewExecutor validates cfg and returns an Executor. The underlying
// connection is established lazily on first use.
func NewExecutor(cfg *Config) (*Executor, error) {
	c, err := newClient(cfg)
	if err != nil {
		return nil, err
	}
	return &Executor{client: c}, nil
}

// Close tears down the underlying SSH connection.
func (e *Executor) Close() error {
	return e.client.close()
}

// HealthCheck confirms the remote connection is alive and responsive.
func (e *Executor) HealthCheck(_ context.Context) error {
	return e.client.healthCheck()
}

func (e *Executor) Run(ctx context.Context, params exec.RunParams) (exec.RunResult, error) {
	start := time.Now()

	sess, err := e.client.session()
	if err != nil {
		return exec.RunResult{}, err
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if params.Stdin != "" {
		sess.Stdin = strings.NewReader(params.Stdin)
	}

	cmd := buildCommandLine(params)

	done := make(chan error, 1)
	go func() { done <- sess.Run(cmd) }()

	var runErr error
	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGTERM)
		runErr = ctx.Err()
	case runErr = <-done:
	}

	duration := time.Since(start)
	log.Debug().Str("command", cmd).Dur("duration", duration).Msg("ssh executor ran command")

	result := exec.RunResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	if runErr == nil {
		result.ExitCode = 0
		return result, nil
	}
	if exitErr, ok := runErr.(*ssh.ExitError); ok {
		result.ExitCode = exitErr.ExitStatus()
		return result, nil
	}
	return result, fmt.Errorf("ssh: running %q: %w", params.Command, runErr)
}

// buildCommandLine shell-quotes params into a single command line, since
// an SSH session runs one string through the remote shell rather than an
// argv array.
func buildCommandLine(params exec.RunParams) string {
	var b strings.Builder
	if params.WorkDir != "" {
		b.WriteString("cd ")
		b.WriteString(shellQuote(params.WorkDir))
		b.WriteString(" && ")
	}
	for k, v := range params.Env {
		b.WriteString(k)
		b.WriteString("=")
		b.WriteString(shellQuote(v))
		b.WriteString(" ")
	}
	b.WriteString(shellQuote(params.Command))
	for _, a := range params.Args {
		b.WriteString(" ")
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func (e *Executor) Stat(_ context.Context, path string) (exec.FileInfo, error) {
	sc, err := e.client.sftpClient()
	if err != nil {
		return exec.FileInfo{}, err
	}

	info, err := sc.Lstat(path)
	if os.IsNotExist(err) {
		return exec.FileInfo{Exists: false}, nil
	}
	if err != nil {
		return exec.FileInfo{}, fmt.Errorf("ssh: stat %s: %w", path, err)
	}

	fi := exec.FileInfo{
		Exists: true,
		IsDir:  info.IsDir(),
		Mode:   uint32(info.Mode().Perm()),
		Size:   info.Size(),
	}

	if sys, ok := info.Sys().(*sftp.FileStat); ok {
		fi.Owner = fmt.Sprintf("%d", sys.UID)
		fi.Group = fmt.Sprintf("%d", sys.GID)
	}

	if !fi.IsDir {
		if sum, err := e.checksum(sc, path); err == nil {
			fi.Checksum = sum
		}
	}

	return fi, nil
}

func (e *Executor) checksum(sc *sftp.Client, path string) (string, error) {
	f, err := sc.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func (e *Executor) ReadFile(_ context.Context, path string) ([]byte, error) {
	sc, err := e.client.sftpClient()
	if err != nil {
		return nil, err
	}

	f, err := sc.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ssh: reading %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("ssh: reading %s: %w", path, err)
	}
	return data, nil
}

func (e *Executor) WriteFile(ctx context.Context, params exec.WriteParams) error {
	sc, err := e.client.sftpClient()
	if err != nil {
		return err
	}

	mode := params.Mode
	if mode == 0 {
		mode = 0o644
	}

	if params.Create {
		if err := e.mkdirAll(sc, filepath.Dir(params.Path), 0o755); err != nil {
			return fmt.Errorf("ssh: creating parent directory for %s: %w", params.Path, err)
		}
	}

	f, err := sc.Create(params.Path)
	if err != nil {
		return fmt.Errorf("ssh: writing %s: %w", params.Path, err)
	}
	if _, err := f.Write(params.Content); err != nil {
		f.Close()
		return fmt.Errorf("ssh: writing %s: %w", params.Path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("ssh: writing %s: %w", params.Path, err)
	}

	if err := sc.Chmod(params.Path, os.FileMode(mode)); err != nil {
		return fmt.Errorf("ssh: chmod %s: %w", params.Path, err)
	}

	if params.Owner != "" || params.Group != "" {
		if err := e.Chown(ctx, params.Path, params.Owner, params.Group); err != nil {
			return err
		}
	}

	return nil
}

func (e *Executor) Remove(_ context.Context, path string) error {
	sc, err := e.client.sftpClient()
	if err != nil {
		return err
	}
	if err := sc.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("ssh: removing %s: %w", path, err)
	}
	return nil
}

func (e *Executor) Mkdir(_ context.Context, path string, mode uint32) error {
	sc, err := e.client.sftpClient()
	if err != nil {
		return err
	}
	if mode == 0 {
		mode = 0o755
	}
	return e.mkdirAll(sc, path, mode)
}

func (e *Executor) mkdirAll(sc *sftp.Client, path string, mode uint32) error {
	if path == "" || path == "." || path == "/" {
		return nil
	}
	if info, err := sc.Stat(path); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("ssh: %s exists and is not a directory", path)
		}
		return nil
	}
	if err := e.mkdirAll(sc, filepath.Dir(path), mode); err != nil {
		return err
	}
	if err := sc.Mkdir(path); err != nil && !os.IsExist(err) {
		return fmt.Errorf("ssh: mkdir %s: %w", path, err)
	}
	return sc.Chmod(path, os.FileMode(mode))
}

func (e *Executor) Chmod(_ context.Context, path string, mode uint32) error {
	sc, err := e.client.sftpClient()
	if err != nil {
		return err
	}
	if err := sc.Chmod(path, os.FileMode(mode)); err != nil {
		return fmt.Errorf("ssh: chmod %s: %w", path, err)
	}
	return nil
}

// Chown resolves owner/group names to numeric ids on the remote host
// (`id -u` for the owner, `getent group` for the group), then applies them
// through SFTP — the SFTP protocol's
// chown only accepts numeric ids, unlike the local executor's
// os/user-backed lookup.
func (e *Executor) Chown(ctx context.Context, path string, owner, group string) error {
	sc, err := e.client.sftpClient()
	if err != nil {
		return err
	}

	info, err := sc.Lstat(path)
	if err != nil {
		return fmt.Errorf("ssh: chown %s: %w", path, err)
	}
	uid, gid := 0, 0
	if sys, ok := info.Sys().(*sftp.FileStat); ok {
		uid, gid = int(sys.UID), int(sys.GID)
	}

	if owner != "" {
		resolved, err := e.resolveID(ctx, "id -u", owner)
		if err != nil {
			return fmt.Errorf("ssh: resolving owner %s: %w", owner, err)
		}
		uid = resolved
	}
	if group != "" {
		resolved, err := e.resolveID(ctx, "getent group", group)
		if err != nil {
			return fmt.Errorf("ssh: resolving group %s: %w", group, err)
		}
		gid = resolved
	}

	if err := sc.Chown(path, uid, gid); err != nil {
		return fmt.Errorf("ssh: chown %s: %w", path, err)
	}
	return nil
}

func (e *Executor) resolveID(ctx context.Context, lookupCmd, name string) (int, error) {
	result, err := e.Run(ctx, exec.RunParams{Command: "sh", Args: []string{"-c", fmt.Sprintf("%s %s", lookupCmd, shellQuote(name))}})
	if err != nil {
		return 0, err
	}
	if !result.Succeeded() {
		return 0, fmt.Errorf("lookup failed: %s", strings.TrimSpace(result.Stderr))
	}

	out := strings.TrimSpace(result.Stdout)
	if strings.HasPrefix(lookupCmd, "getent") {
		fields := strings.Split(out, ":")
		if len(fields) < 3 {
			return 0, fmt.Errorf("unexpected getent output: %q", out)
		}
		out = fields[2]
	}

	var id int
	if _, err := fmt.Sscanf(out, "%d", &id); err != nil {
		return 0, fmt.Errorf("parsing id from %q: %w", out, err)
	}
	return id, nil
}
