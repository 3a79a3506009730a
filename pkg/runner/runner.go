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

// Package runner executes external tools as argument vectors. Values such
// as cluster names and version strings are never interpolated into shell
// strings; they travel as discrete argv entries.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/NVIDIA/minidev/internal/logger"
)

// Command describes a single subprocess invocation. Env entries are scoped
// to this call only; the runner never mutates the process environment.
type Command struct {
	Name string
	Args []string

	// Env holds additional KEY=VALUE pairs appended to the inherited
	// environment for this call only.
	Env []string

	// Dir is the working directory, empty for the current one.
	Dir string

	// Timeout bounds the call. Zero means the context's deadline applies.
	Timeout time.Duration

	// Sudo prepends sudo when the current user is not root.
	Sudo bool

	// User runs the command as the given user via sudo -u. Used to verify
	// that the unprivileged operating user can reach the container runtime
	// socket, where plain group membership may not yet be in effect.
	User string
}

// Result carries the combined output and exit code of a finished command.
type Result struct {
	Output   string
	ExitCode int
}

// Runner runs commands. The interface exists so tests can substitute a
// scripted implementation.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner is the production Runner backed by os/exec. All combined
// subprocess output is duplicated into the logger's file sink so failed
// runs stay diagnosable after the session has closed.
type ExecRunner struct {
	log *logger.FunLogger
}

// New creates an ExecRunner writing captured output through log.
func New(log *logger.FunLogger) *ExecRunner {
	return &ExecRunner{log: log}
}

// Run executes cmd and returns its combined output. A non-zero exit status
// is returned as an error that wraps the exit code; the Result is populated
// either way.
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	name, args := resolveInvocation(cmd)
	c := exec.CommandContext(ctx, name, args...)
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.Dir = cmd.Dir

	var sink io.Writer = io.Discard
	var fileSink io.WriteCloser
	if r.log != nil {
		fileSink = r.log.LogFileWriter()
		sink = fileSink
		r.log.Debug("exec: %s", DisplayName(cmd))
	}

	var buf strings.Builder
	c.Stdout = io.MultiWriter(&buf, sink)
	c.Stderr = io.MultiWriter(&buf, sink)

	err := c.Run()
	if fileSink != nil {
		_ = fileSink.Close()
	}

	res := Result{Output: buf.String()}
	if err == nil {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
	} else {
		res.ExitCode = -1
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s timed out: %w", DisplayName(cmd), ctxErr)
	}
	return res, fmt.Errorf("%s failed with exit code %d: %w", DisplayName(cmd), res.ExitCode, err)
}

// resolveInvocation applies the Sudo/User escalation rules to the argv.
func resolveInvocation(cmd Command) (string, []string) {
	switch {
	case cmd.User != "":
		args := append([]string{"-n", "-u", cmd.User, cmd.Name}, cmd.Args...)
		return "sudo", args
	case cmd.Sudo && os.Geteuid() != 0:
		args := append([]string{"-n", cmd.Name}, cmd.Args...)
		return "sudo", args
	default:
		return cmd.Name, cmd.Args
	}
}

// DisplayName renders the command for logs.
func DisplayName(cmd Command) string {
	parts := append([]string{cmd.Name}, cmd.Args...)
	return strings.Join(parts, " ")
}

// Tail returns the last n lines of s, used to surface subprocess log tails
// on failure.
func Tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return strings.Join(lines, "\n")
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
