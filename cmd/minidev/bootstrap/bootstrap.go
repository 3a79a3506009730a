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

// Package bootstrap is the on-host subcommand: it takes the host from bare
// OS to a verified, ready Minikube cluster and reports through the
// readiness marker and its exit code.
package bootstrap

import (
	"fmt"
	"os"
	"strconv"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/bootstrap"
	"github.com/NVIDIA/minidev/pkg/cluster"
	"github.com/NVIDIA/minidev/pkg/hostprobe"
	"github.com/NVIDIA/minidev/pkg/installer"
	"github.com/NVIDIA/minidev/pkg/jyaml"
	"github.com/NVIDIA/minidev/pkg/marker"
	"github.com/NVIDIA/minidev/pkg/runner"
)

const defaultLogFile = "/var/log/minidev-bootstrap.log"

type options struct {
	envFile    string
	fresh      bool
	markerPath string
	logFile    string
	user       string

	request v1alpha1.ClusterRequest
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the bootstrap command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	bootstrapCmd := cli.Command{
		Name:      "bootstrap",
		Usage:     "bring this host to a ready Minikube cluster",
		ArgsUsage: "[cluster_name [environment [runtime_version [orchestration_version [driver [memory_mb [cpu_count]]]]]]]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "envFile",
				Aliases:     []string{"f"},
				Usage:       "Path to the Environment file",
				Destination: &opts.envFile,
			},
			&cli.BoolFlag{
				Name:        "fresh",
				Usage:       "Delete any existing cluster and recreate it",
				Destination: &opts.fresh,
			},
			&cli.StringFlag{
				Name:        "marker-path",
				Usage:       "Path of the readiness marker",
				Value:       marker.DefaultPath,
				Destination: &opts.markerPath,
			},
			&cli.StringFlag{
				Name:        "log-file",
				Usage:       "Append-only log file capturing all subprocess output",
				Value:       defaultLogFile,
				Destination: &opts.logFile,
			},
			&cli.StringFlag{
				Name:        "user",
				Usage:       "Unprivileged user that owns the cluster",
				Destination: &opts.user,
			},
		},
		Before: func(c *cli.Context) error {
			if opts.envFile != "" {
				env, err := jyaml.UnmarshalFromFile[v1alpha1.Environment](opts.envFile)
				if err != nil {
					return fmt.Errorf("error reading config file: %w", err)
				}
				opts.request = env.Spec.Cluster
			}
			if err := applyArgs(c, &opts.request); err != nil {
				return err
			}
			opts.request.Default()
			if err := opts.request.Validate(); err != nil {
				return err
			}
			opts.request.Fresh = opts.fresh

			if opts.user == "" {
				opts.user = os.Getenv("SUDO_USER")
			}
			if opts.user == "" {
				opts.user = "ubuntu"
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &bootstrapCmd
}

// applyArgs overlays the positional argument form onto the request. All
// seven are optional, in the fixed order the invoking scripts use.
func applyArgs(c *cli.Context, request *v1alpha1.ClusterRequest) error {
	args := c.Args()
	if args.Len() > 7 {
		return fmt.Errorf("too many arguments: expected at most 7, got %d", args.Len())
	}

	setters := []func(string) error{
		func(v string) error { request.Name = v; return nil },
		func(v string) error { request.Environment = v; return nil },
		func(v string) error { request.RuntimeVersion = v; return nil },
		func(v string) error { request.KubernetesVersion = v; return nil },
		func(v string) error { request.Driver = v1alpha1.Driver(v); return nil },
		func(v string) error {
			mb, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid memory_mb %q: %w", v, err)
			}
			request.MemoryMB = mb
			return nil
		},
		func(v string) error {
			cpus, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid cpu_count %q: %w", v, err)
			}
			request.CPUs = cpus
			return nil
		},
	}
	for i := 0; i < args.Len(); i++ {
		if err := setters[i](args.Get(i)); err != nil {
			return err
		}
	}
	return nil
}

func (m command) run(c *cli.Context, opts *options) error {
	if err := m.log.SetLogFile(opts.logFile); err != nil {
		m.log.Warning("Could not open log file %s: %v", opts.logFile, err)
	}
	defer m.log.Close()

	run := runner.New(m.log)
	pipeline := bootstrap.New(
		m.log,
		hostprobe.New(m.log),
		installer.New(m.log, run, opts.user),
		cluster.NewStarter(m.log, run, opts.user,
			cluster.WithKubeconfig(cluster.KubeconfigForUser(opts.user))),
		opts.markerPath,
		opts.user,
	)

	if err := pipeline.Run(c.Context, opts.request); err != nil {
		m.log.Error(err)
		m.log.Exit(bootstrap.ExitCode(err))
	}
	return nil
}
