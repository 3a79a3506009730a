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

// Package remote drives a bootstrap run on the EC2 host over SSH. The SSH
// channel is only used to launch the run and to poll the readiness marker;
// the bring-up itself is detached so a dropped connection cannot kill it.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"

	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/marker"
)

const (
	// DefaultBinaryPath is where the bootstrap binary lands on the host.
	DefaultBinaryPath = "/usr/local/bin/minidev"
	// bootstrapLogPath collects the detached run's output for debugging.
	bootstrapLogPath = "/tmp/minidev-bootstrap.log"
)

// Orchestrator runs and supervises a bootstrap on one host.
type Orchestrator struct {
	log  *logger.FunLogger
	exec Executor

	markerPath   string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMarkerPath overrides the marker location polled for readiness.
func WithMarkerPath(path string) Option {
	return func(o *Orchestrator) { o.markerPath = path }
}

// WithPoll overrides the marker poll cadence.
func WithPoll(interval, timeout time.Duration) Option {
	return func(o *Orchestrator) {
		o.pollInterval = interval
		o.pollTimeout = timeout
	}
}

// NewOrchestrator wires an orchestrator over an established executor.
func NewOrchestrator(log *logger.FunLogger, exec Executor, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		log:          log,
		exec:         exec,
		markerPath:   marker.DefaultPath,
		pollInterval: marker.DefaultPollInterval,
		pollTimeout:  marker.DefaultPollTimeout,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// UploadBinary ships the local bootstrap binary to remotePath and makes it
// executable.
func (o *Orchestrator) UploadBinary(ctx context.Context, localPath, remotePath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close() // nolint:errcheck

	staging := remotePath + ".upload"
	o.log.Info("Uploading %s to %s", localPath, remotePath)
	if err := o.exec.Upload(ctx, f, staging); err != nil {
		return fmt.Errorf("failed to upload binary: %w", err)
	}
	cmd := fmt.Sprintf("sudo install -m 0755 %s %s && rm -f %s",
		shellQuote(staging), shellQuote(remotePath), shellQuote(staging))
	if err := o.exec.Run(ctx, cmd, nil); err != nil {
		return fmt.Errorf("failed to install binary: %w", err)
	}
	return nil
}

// StartBootstrap launches the bootstrap detached on the host. The remote
// argv is quoted argument by argument; output goes to the bootstrap log on
// the host.
func (o *Orchestrator) StartBootstrap(ctx context.Context, binaryPath string, args []string) error {
	argv := []string{"sudo", "nohup", binaryPath, "bootstrap"}
	argv = append(argv, args...)

	quoted := make([]string, 0, len(argv))
	for _, arg := range argv {
		quoted = append(quoted, shellQuote(arg))
	}
	cmd := fmt.Sprintf("%s > %s 2>&1 < /dev/null &", strings.Join(quoted, " "), bootstrapLogPath)

	o.log.Info("Starting bootstrap on the host")
	if err := o.exec.Run(ctx, cmd, nil); err != nil {
		return fmt.Errorf("failed to start bootstrap: %w", err)
	}
	return nil
}

// WaitReady polls the readiness marker over SSH until it appears and
// parses, or the timeout passes. On timeout the bootstrap log tail is
// surfaced so the operator sees why.
func (o *Orchestrator) WaitReady(ctx context.Context) (marker.Marker, error) {
	o.log.Info("Waiting for the readiness marker at %s", o.markerPath)

	var m marker.Marker
	err := wait.PollUntilContextTimeout(ctx, o.pollInterval, o.pollTimeout, true, func(ctx context.Context) (bool, error) {
		content, err := o.exec.Output(ctx, "cat "+shellQuote(o.markerPath))
		if err != nil {
			return false, nil // not there yet, keep polling
		}
		parsed, err := marker.Parse(content)
		if err != nil {
			return false, nil
		}
		m = parsed
		return true, nil
	})
	if err != nil {
		o.surfaceBootstrapLog(ctx)
		return marker.Marker{}, fmt.Errorf("readiness marker did not appear within %s: %w", o.pollTimeout, err)
	}

	o.log.Check("Cluster %s is ready", m.ClusterName)
	return m, nil
}

// FetchKubeconfig copies the host's kubeconfig to dest.
func (o *Orchestrator) FetchKubeconfig(ctx context.Context, dest io.Writer) error {
	content, err := o.exec.Output(ctx, "cat ${HOME}/.kube/config")
	if err != nil {
		return fmt.Errorf("failed to read remote kubeconfig: %w", err)
	}
	if _, err := io.WriteString(dest, content); err != nil {
		return fmt.Errorf("failed to write kubeconfig: %w", err)
	}
	return nil
}

func (o *Orchestrator) surfaceBootstrapLog(ctx context.Context) {
	content, err := o.exec.Output(ctx, "tail -n 50 "+bootstrapLogPath)
	if err != nil || strings.TrimSpace(content) == "" {
		return
	}
	o.log.Warning("Bootstrap log tail:\n%s", content)
}

// shellQuote single-quotes s for the remote shell. Arguments are quoted
// one by one rather than interpolated into a command string.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
