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

// Package installer brings the target host's tooling to the desired state:
// container runtime, cluster CLI and orchestration CLI. Every operation is
// idempotent; re-running against an already-provisioned host must treat
// "installed and at an acceptable version" as success.
package installer

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/retry"
	"github.com/NVIDIA/minidev/pkg/runner"
)

const (
	defaultBinDir        = "/usr/local/bin"
	defaultDaemonConfig  = "/etc/docker/daemon.json"
	defaultInitCommPath  = "/proc/1/comm"
	serviceActiveTimeout = 60 * time.Second
	servicePollInterval  = 2 * time.Second
)

// ToolStatus records the outcome of one ensure step.
type ToolStatus struct {
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
	// Skipped is true when the tool was already present at an acceptable
	// version and nothing was changed.
	Skipped bool `json:"skipped,omitempty"`
}

// InstallState maps tool name to its status. It is mutated incrementally as
// the installer proceeds.
type InstallState map[string]ToolStatus

// Installer installs and verifies host dependencies. It must run with root
// privileges; user is the unprivileged operating user that needs access to
// the container runtime socket.
type Installer struct {
	log  *logger.FunLogger
	run  runner.Runner
	user string

	binDir            string
	daemonConfigPath  string
	initCommPath      string
	dockerSocket      string
	dockerKeyringPath string
	dockerListPath    string

	aptRetry    retry.Config
	servicePoll time.Duration
	state       InstallState
}

// Option configures an Installer.
type Option func(*Installer)

// WithBinDir overrides the installation directory for single-binary tools.
func WithBinDir(dir string) Option {
	return func(i *Installer) { i.binDir = dir }
}

// WithDaemonConfigPath overrides the Docker daemon.json location.
func WithDaemonConfigPath(path string) Option {
	return func(i *Installer) { i.daemonConfigPath = path }
}

// WithInitCommPath overrides where the init system's name is read from.
func WithInitCommPath(path string) Option {
	return func(i *Installer) { i.initCommPath = path }
}

// WithRetryConfig overrides the package-operation retry policy, shortened
// in tests.
func WithRetryConfig(cfg retry.Config) Option {
	return func(i *Installer) { i.aptRetry = cfg }
}

// WithDockerRepoPaths overrides the apt keyring and source-list locations,
// primarily for tests.
func WithDockerRepoPaths(keyring, list string) Option {
	return func(i *Installer) {
		i.dockerKeyringPath = keyring
		i.dockerListPath = list
	}
}

// New creates an Installer executing through run, reporting through log.
func New(log *logger.FunLogger, run runner.Runner, user string, opts ...Option) *Installer {
	i := &Installer{
		log:              log,
		run:              run,
		user:             user,
		binDir:           defaultBinDir,
		daemonConfigPath: defaultDaemonConfig,
		initCommPath:     defaultInitCommPath,
		dockerSocket:     "/var/run/docker.sock",

		dockerKeyringPath: dockerKeyringPath,
		dockerListPath:    dockerListPath,

		aptRetry:    retry.DefaultConfig(),
		servicePoll: servicePollInterval,
		state:       InstallState{},
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// State returns the accumulated install state.
func (i *Installer) State() InstallState {
	return i.state
}

// EnsureAll installs every dependency the cluster needs, in order: OS
// utilities, the container runtime, then the single-binary CLIs. Any error
// is fatal to the bootstrap; partial installs never produce a success
// state.
func (i *Installer) EnsureAll(ctx context.Context, request v1alpha1.ClusterRequest) (InstallState, error) {
	if err := i.ensureOSUtilities(ctx); err != nil {
		return i.state, fmt.Errorf("failed to install OS utilities: %w", err)
	}

	if err := i.EnsureDocker(ctx, request.RuntimeVersion); err != nil {
		return i.state, fmt.Errorf("failed to install container runtime: %w", err)
	}

	for _, spec := range []BinarySpec{
		MinikubeSpec(""),
		KubectlSpec(request.KubernetesVersion),
	} {
		if err := i.EnsureBinary(ctx, spec); err != nil {
			return i.state, fmt.Errorf("failed to install %s: %w", spec.Name, err)
		}
	}

	return i.state, nil
}

// ensureOSUtilities installs the small fixed set of host utilities the
// bootstrap depends on.
func (i *Installer) ensureOSUtilities(ctx context.Context) error {
	if err := i.pkgUpdate(ctx); err != nil {
		return err
	}
	if err := i.pkgInstall(ctx, "ca-certificates", "curl", "gnupg", "conntrack"); err != nil {
		return err
	}
	i.state["os-utilities"] = ToolStatus{Installed: true}
	return nil
}

// pkgUpdate refreshes the package index, retrying transient mirror and
// repository-metadata failures with backoff before treating them as fatal.
func (i *Installer) pkgUpdate(ctx context.Context) error {
	return retry.Do(ctx, i.aptRetry, func() error {
		_, err := i.run.Run(ctx, runner.Command{
			Name: "apt-get",
			Args: []string{"update"},
			Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
			Sudo: true,
		})
		return err
	})
}

func (i *Installer) pkgInstall(ctx context.Context, packages ...string) error {
	return retry.Do(ctx, i.aptRetry, func() error {
		args := append([]string{"install", "-y"}, packages...)
		_, err := i.run.Run(ctx, runner.Command{
			Name: "apt-get",
			Args: args,
			Env:  []string{"DEBIAN_FRONTEND=noninteractive"},
			Sudo: true,
		})
		return err
	})
}

// waitServiceActive polls systemd until the unit reports active, bounded
// by serviceActiveTimeout.
func (i *Installer) waitServiceActive(ctx context.Context, unit string) error {
	deadline := time.Now().Add(serviceActiveTimeout)
	for {
		res, err := i.run.Run(ctx, runner.Command{
			Name: "systemctl",
			Args: []string{"is-active", unit},
		})
		if err == nil && strings.TrimSpace(res.Output) == "active" {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("service %s did not become active within %s", unit, serviceActiveTimeout)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(i.servicePoll):
		}
	}
}

// hostArch maps Go's architecture name onto the one used in release URLs.
func hostArch() string {
	switch runtime.GOARCH {
	case "arm64":
		return "arm64"
	default:
		return "amd64"
	}
}

// initCgroupDriver reports the cgroup driver matching the init system. A
// mismatch between the runtime's and the kubelet's cgroup driver is a
// recurring bring-up failure, so the runtime is always configured to match.
func (i *Installer) initCgroupDriver() string {
	data, err := os.ReadFile(i.initCommPath)
	if err == nil && strings.TrimSpace(string(data)) == "systemd" {
		return "systemd"
	}
	return "cgroupfs"
}
