// Copyright Antimetal, Inc. All rights reserved.
//
// Use of this source code is governed by a source available license that can be found in the
// LICENSE file or at:
// https://polyformproject.org/wp-content/uploads/2020/06/PolyForm-Shield-1.0.0.txt

package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

const defaultDialTimeout = 10 * time.Second

// SSHConfig describes how to reach the remote host.
type SSHConfig struct {
	Host    string
	Port    int
	User    string
	KeyFile string
	Timeout time.Duration
}

func (c *SSHConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 22
	}
	if c.User == "" {
		c.User = "root"
	}
	if c.Timeout == 0 {
		c.Timeout = defaultDialTimeout
	}
}

func (c *SSHConfig) Validate() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("port must be in (0, 65535], got %d", c.Port)
	}
	return nil
}

// SSHRunner is the Runner implementation over an SSH connection. Each
// Execute runs in its own session on the shared connection.
type SSHRunner struct {
	logger logr.Logger
	client *ssh.Client
}

// NewSSHRunner dials the host and verifies the connection with an echo
// round trip.
func NewSSHRunner(logger logr.Logger, config SSHConfig) (*SSHRunner, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	auth, err := authMethods(logger, config.KeyFile)
	if err != nil {
		return nil, err
	}

	addr := net.JoinHostPort(config.Host, fmt.Sprintf("%d", config.Port))
	client, err := ssh.Dial("tcp", addr, &ssh.ClientConfig{
		User:            config.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         config.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}

	r := &SSHRunner{logger: logger, client: client}
	result, err := r.Execute(context.Background(), "echo connected")
	if err != nil || strings.TrimSpace(result.Stdout) != "connected" {
		client.Close()
		return nil, fmt.Errorf("connection test to %s failed: %w", addr, err)
	}

	logger.Info("ssh connection established", "host", config.Host, "user", config.User)
	return r, nil
}

// authMethods prefers the key file when given, otherwise falls back to a
// running ssh-agent.
func authMethods(logger logr.Logger, keyFile string) ([]ssh.AuthMethod, error) {
	if keyFile != "" {
		data, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file %s: %w", keyFile, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("no key file given and no ssh-agent available")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("failed to reach ssh-agent: %w", err)
	}
	logger.V(1).Info("using ssh-agent authentication")
	return []ssh.AuthMethod{ssh.PublicKeysCallback(agent.NewClient(conn).Signers)}, nil
}

// Execute runs the command and waits for it. Cancelling the context
// closes the session, which terminates the remote command.
func (r *SSHRunner) Execute(ctx context.Context, command string) (Result, error) {
	session, err := r.client.NewSession()
	if err != nil {
		return Result{}, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		session.Close()
		<-done
		return Result{}, ctx.Err()
	case err = <-done:
	}

	result := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		var exitErr *ssh.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitStatus()
			return result, nil
		}
		return result, fmt.Errorf("remote command failed: %w", err)
	}
	return result, nil
}

// ExecuteBackground starts the command detached with nohup and returns
// the remote PID printed by the shell.
func (r *SSHRunner) ExecuteBackground(ctx context.Context, command string) (string, error) {
	wrapped := fmt.Sprintf("nohup %s > /tmp/powertrain_remote.log 2>&1 & echo $!", command)
	result, err := r.Execute(ctx, wrapped)
	if err != nil {
		return "", err
	}
	pid := strings.TrimSpace(result.Stdout)
	if pid == "" {
		return "", fmt.Errorf("background command returned no pid: %s", result.Stderr)
	}
	r.logger.Info("started background remote process", "pid", pid)
	return pid, nil
}

// TransferFile copies remotePath from the host to localPath via SFTP.
func (r *SSHRunner) TransferFile(remotePath, localPath string) error {
	client, err := sftp.NewClient(r.client)
	if err != nil {
		return fmt.Errorf("failed to open sftp session: %w", err)
	}
	defer client.Close()

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote file %s: %w", remotePath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return fmt.Errorf("failed to create local directory: %w", err)
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create local file %s: %w", localPath, err)
	}
	defer dst.Close()

	n, err := io.Copy(dst, src)
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", remotePath, err)
	}
	r.logger.Info("transferred remote file", "remote", remotePath, "local", localPath, "bytes", n)
	return nil
}

// Close shuts down the SSH connection.
func (r *SSHRunner) Close() error {
	return r.client.Close()
}
