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

package validate

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/jyaml"
)

type options struct {
	envFile string
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the validate command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	validateCmd := cli.Command{
		Name:  "validate",
		Usage: "validate an environment file",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "envFile",
				Aliases:     []string{"f"},
				Usage:       "Path to the Environment file",
				Destination: &opts.envFile,
				Required:    true,
			},
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &validateCmd
}

func (m command) run(_ *cli.Context, opts *options) error {
	env, err := jyaml.UnmarshalFromFile[v1alpha1.Environment](opts.envFile)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}

	env.Spec.Cluster.Default()
	if err := env.Spec.Validate(); err != nil {
		return err
	}

	m.log.Check("%s is a valid environment file", opts.envFile)
	return nil
}
