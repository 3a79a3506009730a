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

package main

import (
	"os"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/cmd/minidev/bootstrap"
	"github.com/NVIDIA/minidev/cmd/minidev/cleanup"
	"github.com/NVIDIA/minidev/cmd/minidev/create"
	"github.com/NVIDIA/minidev/cmd/minidev/delete"
	"github.com/NVIDIA/minidev/cmd/minidev/deploy"
	"github.com/NVIDIA/minidev/cmd/minidev/dryrun"
	"github.com/NVIDIA/minidev/cmd/minidev/list"
	"github.com/NVIDIA/minidev/cmd/minidev/status"
	"github.com/NVIDIA/minidev/cmd/minidev/validate"
	"github.com/NVIDIA/minidev/cmd/minidev/wait"
	"github.com/NVIDIA/minidev/internal/logger"
)

const (
	// ProgramName is the canonical name of this program
	ProgramName = "minidev"
)

type config struct {
	Debug bool
}

func main() {
	config := config{}
	log := logger.NewLogger()

	c := cli.NewApp()
	c.Name = ProgramName
	c.Usage = "Bootstrap and manage single-node Kubernetes dev clusters on EC2"
	c.Description = `
Minidev brings a Minikube cluster up on an EC2 host and manages its
lifecycle. The bootstrap subcommand runs on the host itself; the rest run
from the operator's machine.

Examples:
  # Provision an EC2 host and bring a cluster up on it
  minidev create -f env.yaml

  # On the host: run the bootstrap directly
  minidev bootstrap my-cluster ci latest v1.30.0 docker 3000 2

  # Wait for the readiness marker
  minidev wait

  # List tracked environments
  minidev list

  # Tear an environment down
  minidev delete <instance-id>`
	c.Version = "0.1.0"
	c.EnableBashCompletion = true

	c.Flags = []cli.Flag{
		&cli.BoolFlag{
			Name:        "debug",
			Aliases:     []string{"d"},
			Usage:       "Enable debug-level logging",
			Destination: &config.Debug,
			EnvVars:     []string{"DEBUG"},
		},
	}

	c.Before = func(*cli.Context) error {
		log.SetDebug(config.Debug)
		return nil
	}

	c.Commands = []*cli.Command{
		bootstrap.NewCommand(log),
		cleanup.NewCommand(log),
		create.NewCommand(log),
		delete.NewCommand(log),
		deploy.NewCommand(log),
		dryrun.NewCommand(log),
		list.NewCommand(log),
		status.NewCommand(log),
		validate.NewCommand(log),
		wait.NewCommand(log),
	}

	err := c.Run(os.Args)
	if err != nil {
		log.Error(err)
		log.Exit(1)
	}
}
