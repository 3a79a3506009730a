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

// Package cluster drives minikube through bring-up and verifies the
// resulting cluster is actually serving before anyone is told it is ready.
package cluster

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"k8s.io/client-go/kubernetes"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/runner"
)

// Phase is the starter's externally observable state. FAILED is absorbing;
// once entered no further transitions occur.
type Phase string

const (
	PhaseNotStarted          Phase = "NOT_STARTED"
	PhaseStarting            Phase = "STARTING"
	PhaseWaitingForNodeReady Phase = "WAITING_FOR_NODE_READY"
	PhaseAddonsEnabling      Phase = "ADDONS_ENABLING"
	PhaseReady               Phase = "READY"
	PhaseFailed              Phase = "FAILED"
)

const (
	// startTimeout bounds the blocking start command itself.
	startTimeout = 20 * time.Minute

	// nodeReadyTimeout bounds the explicit node poll that follows the start
	// command's own wait. The start command's --wait flag does not fully
	// guarantee API responsiveness, so readiness is re-proven from outside.
	nodeReadyTimeout  = 300 * time.Second
	nodeReadyInterval = 10 * time.Second

	// logTailLines is how much of the tool's own log is surfaced when
	// bring-up fails.
	logTailLines = 150
)

// ClientFactory builds a typed Kubernetes client from a kubeconfig path.
type ClientFactory func(kubeconfig string) (kubernetes.Interface, error)

// Starter brings a minikube cluster to READY. The start command runs as the
// unprivileged operating user; minikube refuses to run its docker driver as
// root.
type Starter struct {
	log  *logger.FunLogger
	run  runner.Runner
	user string

	kubeconfig string
	clientFor  ClientFactory

	readyTimeout  time.Duration
	readyInterval time.Duration

	phase Phase
}

// Option configures a Starter.
type Option func(*Starter)

// WithKubeconfig sets the kubeconfig path used for readiness queries.
func WithKubeconfig(path string) Option {
	return func(s *Starter) { s.kubeconfig = path }
}

// WithClientFactory substitutes the Kubernetes client constructor, used by
// tests to inject a fake clientset.
func WithClientFactory(f ClientFactory) Option {
	return func(s *Starter) { s.clientFor = f }
}

// WithReadyPoll overrides the node-readiness poll bounds, shortened in
// tests.
func WithReadyPoll(interval, timeout time.Duration) Option {
	return func(s *Starter) {
		s.readyInterval = interval
		s.readyTimeout = timeout
	}
}

// NewStarter creates a Starter executing through run as user.
func NewStarter(log *logger.FunLogger, run runner.Runner, user string, opts ...Option) *Starter {
	s := &Starter{
		log:           log,
		run:           run,
		user:          user,
		clientFor:     BuildClient,
		readyTimeout:  nodeReadyTimeout,
		readyInterval: nodeReadyInterval,
		phase:         PhaseNotStarted,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Phase returns the current bring-up phase.
func (s *Starter) Phase() Phase {
	return s.phase
}

func (s *Starter) setPhase(p Phase) {
	if s.phase == PhaseFailed {
		return
	}
	s.phase = p
	s.log.Debug("cluster phase: %s", p)
}

func (s *Starter) fail(err error) error {
	s.phase = PhaseFailed
	return err
}

// Start drives the cluster to READY with the negotiated configuration.
//
// A re-run that finds the cluster already serving short-circuits to READY
// without touching it. Destroying existing state is reserved for requests
// that explicitly ask for a fresh cluster.
func (s *Starter) Start(ctx context.Context, request v1alpha1.ClusterRequest, resolved v1alpha1.ResolvedConfig) error {
	if request.Fresh {
		if err := s.purge(ctx, request.Name); err != nil {
			return s.fail(err)
		}
	} else if s.alreadyServing(ctx, request.Name) {
		s.log.Check("Cluster %s is already running, skipping bring-up", request.Name)
		s.setPhase(PhaseReady)
		return nil
	}

	s.setPhase(PhaseStarting)
	s.log.Info("Starting cluster %s (driver=%s memory=%dmb cpus=%d kubernetes=%s)",
		request.Name, request.Driver, resolved.MemoryMB, resolved.CPUs, request.KubernetesVersion)

	res, err := s.run.Run(ctx, runner.Command{
		Name:    "minikube",
		Args:    s.startArgs(request, resolved),
		User:    s.user,
		Timeout: startTimeout,
	})
	if err != nil {
		s.surfaceLogTail(ctx, request.Name, res.Output)
		return s.fail(fmt.Errorf("cluster start failed: %w", err))
	}

	s.setPhase(PhaseWaitingForNodeReady)
	client, err := s.clientFor(s.kubeconfig)
	if err != nil {
		return s.fail(fmt.Errorf("cluster started but no API client could be built: %w", err))
	}
	if err := s.waitNodeReady(ctx, client); err != nil {
		s.surfaceLogTail(ctx, request.Name, "")
		return s.fail(err)
	}

	s.setPhase(PhaseAddonsEnabling)
	s.enableAddons(ctx, request.Name)

	if err := EnsureCIAccess(ctx, client); err != nil {
		// The CI identity is provisioning for later deploys, not part of
		// cluster health.
		s.log.Warning("could not provision CI service identity: %v", err)
	}

	s.setPhase(PhaseReady)
	s.log.Check("Cluster %s is ready", request.Name)
	return nil
}

// startArgs renders the blocking start invocation. Every negotiated value
// travels as its own argv entry.
func (s *Starter) startArgs(request v1alpha1.ClusterRequest, resolved v1alpha1.ResolvedConfig) []string {
	return []string{
		"start",
		"-p", request.Name,
		"--driver", string(request.Driver),
		"--container-runtime", "docker",
		"--memory", strconv.Itoa(resolved.MemoryMB) + "mb",
		"--cpus", strconv.Itoa(resolved.CPUs),
		"--kubernetes-version", request.KubernetesVersion,
		"--wait", "all",
		"--interactive=false",
		"--delete-on-failure",
	}
}

// alreadyServing reports whether the profile's apiserver answers and at
// least one node is Ready. A zero exit from a status command alone is not
// trusted.
func (s *Starter) alreadyServing(ctx context.Context, name string) bool {
	res, err := s.run.Run(ctx, runner.Command{
		Name: "minikube",
		Args: []string{"status", "-p", name, "--format", "{{.APIServer}}"},
		User: s.user,
	})
	if err != nil || !containsRunning(res.Output) {
		return false
	}

	client, err := s.clientFor(s.kubeconfig)
	if err != nil {
		return false
	}
	ready, err := anyNodeReady(ctx, client)
	return err == nil && ready
}

// purge removes all state for the profile. Absence of the profile is not an
// error.
func (s *Starter) purge(ctx context.Context, name string) error {
	s.log.Info("Deleting existing cluster state for %s", name)
	_, err := s.run.Run(ctx, runner.Command{
		Name: "minikube",
		Args: []string{"delete", "-p", name},
		User: s.user,
	})
	if err != nil {
		s.log.Warning("cluster delete reported an error, continuing: %v", err)
	}
	return nil
}

// surfaceLogTail dumps the tool's own log tail so driver and resource
// failures are diagnosable without a live session.
func (s *Starter) surfaceLogTail(ctx context.Context, name, startOutput string) {
	if startOutput != "" {
		s.log.Info("start command output (last %d lines):\n%s", logTailLines, runner.Tail(startOutput, logTailLines))
	}
	res, err := s.run.Run(ctx, runner.Command{
		Name: "minikube",
		Args: []string{"logs", "-p", name, "--length", strconv.Itoa(logTailLines)},
		User: s.user,
	})
	if err != nil {
		s.log.Warning("could not collect cluster logs: %v", err)
		return
	}
	s.log.Info("cluster logs (last %d lines):\n%s", logTailLines, runner.Tail(res.Output, logTailLines))
}
