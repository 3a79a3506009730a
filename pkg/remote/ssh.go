/*
 * Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	"github.com/NVIDIA/minidev/pkg/retry"
)

// connectRetry covers the window between an instance reporting running and
// sshd accepting connections.
var connectRetry = retry.Config{
	MaxAttempts:    20,
	InitialBackoff: 2 * time.Second,
	MaxBackoff:     15 * time.Second,
}

// Executor runs commands on the remote host. The SSH implementation is the
// only production one; tests substitute a fake.
type Executor interface {
	// Run executes cmd, streaming combined output to out.
	Run(ctx context.Context, cmd string, out io.Writer) error
	// Output executes cmd and returns its stdout.
	Output(ctx context.Context, cmd string) (string, error)
	// Upload writes content to remotePath on the host.
	Upload(ctx context.Context, content io.Reader, remotePath string) error
	// Reconnect drops and re-establishes the connection. Needed after
	// changes that only take effect on a new login, like group
	// membership.
	Reconnect() error
	Close() error
}

// SSHExecutor is the Executor over an SSH connection.
type SSHExecutor struct {
	client *ssh.Client

	host     string
	username string
	keyPath  string
}

var _ Executor = (*SSHExecutor)(nil)

// Connect dials host as username with the private key at keyPath, retrying
// until sshd answers.
func Connect(ctx context.Context, keyPath, username, host string) (*SSHExecutor, error) {
	e := &SSHExecutor{
		host:     host,
		username: username,
		keyPath:  keyPath,
	}
	if err := e.dial(ctx); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *SSHExecutor) dial(ctx context.Context) error {
	key, err := os.ReadFile(e.keyPath)
	if err != nil {
		return fmt.Errorf("failed to read key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	config := &ssh.ClientConfig{
		User:            e.username,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // nolint:gosec
		Timeout:         10 * time.Second,
	}

	client, err := retry.DoValue(ctx, connectRetry, func() (*ssh.Client, error) {
		return ssh.Dial("tcp", e.host+":22", config)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", e.host, err)
	}
	e.client = client
	return nil
}

// Run executes cmd on the host, streaming combined output to out.
func (e *SSHExecutor) Run(ctx context.Context, cmd string, out io.Writer) error {
	session, err := e.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close() // nolint:errcheck

	if out != nil {
		session.Stdout = out
		session.Stderr = out
	}

	if err := session.Start(cmd); err != nil {
		return fmt.Errorf("failed to start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return ctx.Err()
	}
}

// Output executes cmd and returns its stdout.
func (e *SSHExecutor) Output(ctx context.Context, cmd string) (string, error) {
	var buf bytes.Buffer
	session, err := e.client.NewSession()
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close() // nolint:errcheck

	session.Stdout = &buf
	if err := session.Start(cmd); err != nil {
		return "", fmt.Errorf("failed to start remote command: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- session.Wait() }()
	select {
	case err := <-done:
		return buf.String(), err
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return buf.String(), ctx.Err()
	}
}

// Upload writes content to remotePath through a cat pipe.
func (e *SSHExecutor) Upload(ctx context.Context, content io.Reader, remotePath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	session, err := e.client.NewSession()
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}
	defer session.Close() // nolint:errcheck

	remoteFile, err := session.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to open remote pipe: %w", err)
	}
	if err := session.Start("cat > " + shellQuote(remotePath)); err != nil {
		return fmt.Errorf("failed to start remote write: %w", err)
	}
	if _, err := io.Copy(remoteFile, content); err != nil {
		return fmt.Errorf("failed to copy to %s: %w", remotePath, err)
	}
	if err := remoteFile.Close(); err != nil {
		return fmt.Errorf("failed to close remote pipe: %w", err)
	}
	return session.Wait()
}

// Reconnect drops the connection and dials again.
func (e *SSHExecutor) Reconnect() error {
	if e.client != nil {
		_ = e.client.Close()
	}
	return e.dial(context.Background())
}

// Close closes the underlying connection.
func (e *SSHExecutor) Close() error {
	if e.client == nil {
		return nil
	}
	return e.client.Close()
}
