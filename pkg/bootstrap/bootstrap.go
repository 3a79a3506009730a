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

// Package bootstrap sequences the full bring-up: probe the host, install
// tooling, negotiate resources, start the cluster, verify, report. The
// sequence is strictly ordered and single-threaded; each stage's failure
// class is carried to the process exit code so the orchestrator can
// classify failures without parsing logs.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/installer"
	"github.com/NVIDIA/minidev/pkg/marker"
	"github.com/NVIDIA/minidev/pkg/negotiate"
)

// Failure classes, matched with errors.Is and mapped to exit codes.
var (
	ErrInstall         = errors.New("installer failed")
	ErrClusterNotReady = errors.New("cluster failed to reach ready")
	ErrVerify          = errors.New("cluster verification failed")
)

// Exit codes reported to the orchestrator.
const (
	ExitSuccess         = 0
	ExitFailure         = 1
	ExitInstallFailed   = 2
	ExitClusterNotReady = 3
	ExitVerifyFailed    = 4
)

// ExitCode maps a pipeline error onto the exit-code contract.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, ErrInstall):
		return ExitInstallFailed
	case errors.Is(err, ErrClusterNotReady):
		return ExitClusterNotReady
	case errors.Is(err, ErrVerify):
		return ExitVerifyFailed
	default:
		return ExitFailure
	}
}

// HostProber measures the host once per run.
type HostProber interface {
	Probe(ctx context.Context) (v1alpha1.HostCapacity, error)
}

// ToolInstaller brings host tooling to the desired state.
type ToolInstaller interface {
	EnsureAll(ctx context.Context, request v1alpha1.ClusterRequest) (installer.InstallState, error)
}

// ClusterStarter drives the cluster to ready and proves it.
type ClusterStarter interface {
	Start(ctx context.Context, request v1alpha1.ClusterRequest, resolved v1alpha1.ResolvedConfig) error
	Verify(ctx context.Context) error
}

// Pipeline is one bootstrap run.
type Pipeline struct {
	log       *logger.FunLogger
	prober    HostProber
	installer ToolInstaller
	starter   ClusterStarter

	// markerPath is where success is reported; markerOwner is the
	// unprivileged user that must be able to read it.
	markerPath  string
	markerOwner string
}

// New assembles a Pipeline from its stages.
func New(log *logger.FunLogger, prober HostProber, inst ToolInstaller, starter ClusterStarter, markerPath, markerOwner string) *Pipeline {
	if markerPath == "" {
		markerPath = marker.DefaultPath
	}
	return &Pipeline{
		log:         log,
		prober:      prober,
		installer:   inst,
		starter:     starter,
		markerPath:  markerPath,
		markerOwner: markerOwner,
	}
}

// Run executes the bootstrap end to end. The readiness marker is written
// only after the cluster has positively answered the final verification;
// on any failure the marker is absent, which is the orchestrator's failure
// signal.
func (p *Pipeline) Run(ctx context.Context, request v1alpha1.ClusterRequest) error {
	// A stale marker from an earlier run must never satisfy this run's
	// poller.
	if err := marker.Remove(p.markerPath); err != nil {
		return fmt.Errorf("could not clear stale readiness marker: %w", err)
	}

	capacity, err := p.prober.Probe(ctx)
	if err != nil {
		return fmt.Errorf("host probe failed: %w", err)
	}
	p.log.Info("Host: %s, %d MB memory, %d CPUs", capacity.InstanceType, capacity.TotalMemoryMB, capacity.CPUs)

	if _, err := p.installer.EnsureAll(ctx, request); err != nil {
		return fmt.Errorf("%w: %v", ErrInstall, err)
	}

	resolved := negotiate.Negotiate(p.log, request, capacity)

	if err := p.starter.Start(ctx, request, resolved); err != nil {
		return fmt.Errorf("%w: %v", ErrClusterNotReady, err)
	}

	if err := p.starter.Verify(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrVerify, err)
	}

	if err := marker.Write(p.markerPath, marker.Marker{
		ClusterName: request.Name,
		Environment: request.Environment,
	}, p.markerOwner); err != nil {
		return fmt.Errorf("cluster is ready but the marker could not be written: %w", err)
	}
	p.log.Check("Bootstrap complete, readiness marker written to %s", p.markerPath)
	return nil
}
