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

// Package create provisions an EC2 host, launches the bootstrap on it over
// SSH and waits for the readiness marker.
package create

import (
	"fmt"
	"os"
	"strconv"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/instances"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/jyaml"
	"github.com/NVIDIA/minidev/pkg/provider/aws"
	"github.com/NVIDIA/minidev/pkg/remote"
	"github.com/NVIDIA/minidev/pkg/utils"
)

type options struct {
	envFile    string
	cachePath  string
	binary     string
	kubeconfig string
	fresh      bool
	skipWait   bool

	cfg       v1alpha1.Environment
	cacheFile string
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the create command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	create := cli.Command{
		Name:  "create",
		Usage: "create an EC2 host and bring a cluster up on it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "envFile",
				Aliases:     []string{"f"},
				Usage:       "Path to the Environment file",
				Destination: &opts.envFile,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "cachepath",
				Aliases:     []string{"c"},
				Usage:       "Path to the cache directory",
				Destination: &opts.cachePath,
			},
			&cli.StringFlag{
				Name:        "binary",
				Aliases:     []string{"b"},
				Usage:       "Local minidev binary to upload; defaults to the running executable",
				Destination: &opts.binary,
			},
			&cli.StringFlag{
				Name:        "kubeconfig",
				Aliases:     []string{"k"},
				Usage:       "Save the cluster kubeconfig to this path",
				Destination: &opts.kubeconfig,
			},
			&cli.BoolFlag{
				Name:        "fresh",
				Usage:       "Delete any existing cluster on the host and recreate it",
				Destination: &opts.fresh,
			},
			&cli.BoolFlag{
				Name:        "skip-wait",
				Usage:       "Launch the bootstrap but do not wait for readiness",
				Destination: &opts.skipWait,
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			opts.cfg, err = jyaml.UnmarshalFromFile[v1alpha1.Environment](opts.envFile)
			if err != nil {
				return fmt.Errorf("error reading config file: %w", err)
			}
			opts.cfg.Spec.Cluster.Default()
			if err := opts.cfg.Spec.Validate(); err != nil {
				return err
			}
			if opts.cfg.Spec.Auth.Username == "" {
				opts.cfg.Spec.Auth.Username = "ubuntu"
			}
			if opts.binary == "" {
				opts.binary, err = os.Executable()
				if err != nil {
					return fmt.Errorf("could not locate own binary, use --binary: %w", err)
				}
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &create
}

func (m command) run(c *cli.Context, opts *options) error {
	manager := instances.NewManager(m.log, opts.cachePath)
	instanceID, err := manager.GenerateInstanceID()
	if err != nil {
		return err
	}
	opts.cacheFile = manager.CacheFile(instanceID)

	if opts.cfg.Labels == nil {
		opts.cfg.Labels = make(map[string]string)
	}
	opts.cfg.Labels[instances.InstanceLabelKey] = instanceID

	if len(opts.cfg.Spec.Instance.IngressIPRanges) == 0 {
		if cidr, err := utils.CallerCIDR(c.Context); err == nil {
			m.log.Info("Restricting ingress to the caller's address %s", cidr)
			opts.cfg.Spec.Instance.IngressIPRanges = []string{cidr}
		} else {
			m.log.Warning("Could not detect the caller's public IP: %v", err)
		}
	}

	client, err := aws.New(m.log, opts.cfg, opts.cacheFile)
	if err != nil {
		return err
	}
	if err := client.Create(c.Context); err != nil {
		return err
	}
	host, err := client.PublicAddress()
	if err != nil {
		return err
	}
	m.log.Check("Instance %s created at %s", instanceID, host)

	exec, err := remote.Connect(c.Context, opts.cfg.Spec.Auth.PrivateKey, opts.cfg.Spec.Auth.Username, host)
	if err != nil {
		return err
	}
	defer exec.Close() // nolint:errcheck

	o := remote.NewOrchestrator(m.log, exec)
	if err := o.UploadBinary(c.Context, opts.binary, remote.DefaultBinaryPath); err != nil {
		return err
	}

	if err := o.StartBootstrap(c.Context, remote.DefaultBinaryPath, bootstrapArgs(opts)); err != nil {
		return err
	}
	if opts.skipWait {
		m.log.Info("Bootstrap launched on %s, not waiting (--skip-wait)", host)
		return nil
	}

	if _, err := o.WaitReady(c.Context); err != nil {
		return err
	}

	if opts.kubeconfig != "" {
		f, err := os.Create(opts.kubeconfig) // nolint:gosec
		if err != nil {
			return fmt.Errorf("error creating local kubeconfig: %w", err)
		}
		defer f.Close() // nolint:errcheck
		if err := o.FetchKubeconfig(c.Context, f); err != nil {
			return err
		}
		m.log.Info("Kubeconfig saved to %s", opts.kubeconfig)
	}

	m.log.Check("Environment %s is ready", instanceID)
	return nil
}

// bootstrapArgs renders the cluster request as the bootstrap's argument
// vector. Flags come first: the bootstrap's parser stops reading flags at
// the first positional.
func bootstrapArgs(opts *options) []string {
	request := opts.cfg.Spec.Cluster
	args := []string{"--user", opts.cfg.Spec.Auth.Username}
	if opts.fresh || request.Fresh {
		args = append(args, "--fresh")
	}
	return append(args,
		request.Name,
		request.Environment,
		request.RuntimeVersion,
		request.KubernetesVersion,
		string(request.Driver),
		strconv.Itoa(request.MemoryMB),
		strconv.Itoa(request.CPUs),
	)
}
