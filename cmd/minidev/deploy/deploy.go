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

package deploy

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/cluster"
	"github.com/NVIDIA/minidev/pkg/deploy"
)

type options struct {
	kubeconfig string
	namespace  string
	image      string
	probeURL   string
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the deploy command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	deployCmd := cli.Command{
		Name:  "deploy",
		Usage: "deploy the ip-echo sample workload and smoke-test it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "kubeconfig",
				Aliases:     []string{"k"},
				Usage:       "Path to the kubeconfig file",
				Destination: &opts.kubeconfig,
			},
			&cli.StringFlag{
				Name:        "namespace",
				Aliases:     []string{"n"},
				Usage:       "Target namespace",
				Destination: &opts.namespace,
			},
			&cli.StringFlag{
				Name:        "image",
				Usage:       "Workload image",
				Destination: &opts.image,
			},
			&cli.StringFlag{
				Name:        "probe-url",
				Usage:       "Base URL for the health smoke probe, e.g. http://host:30080",
				Destination: &opts.probeURL,
			},
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &deployCmd
}

func (m command) run(c *cli.Context, opts *options) error {
	client, err := cluster.BuildClient(opts.kubeconfig)
	if err != nil {
		return fmt.Errorf("failed to build Kubernetes client: %w", err)
	}

	deployOpts := []deploy.Option{}
	if opts.namespace != "" {
		deployOpts = append(deployOpts, deploy.WithNamespace(opts.namespace))
	}
	if opts.image != "" {
		deployOpts = append(deployOpts, deploy.WithImage(opts.image))
	}

	d := deploy.New(m.log, client, deployOpts...)
	if err := d.Apply(c.Context); err != nil {
		return err
	}
	if err := d.WaitRollout(c.Context); err != nil {
		return err
	}

	if opts.probeURL != "" {
		if err := d.SmokeTest(c.Context, opts.probeURL); err != nil {
			return err
		}
	} else {
		m.log.Info("No --probe-url given, skipping the health smoke probe")
	}

	m.log.Check("Sample workload deployed on node port %d", d.NodePort())
	return nil
}
