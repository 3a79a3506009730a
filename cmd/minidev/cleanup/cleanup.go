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

package cleanup

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/cleanup"
)

type options struct {
	region string
	all    bool
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the cleanup command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	cleanupCmd := cli.Command{
		Name:      "cleanup",
		Usage:     "sweep orphaned AWS resources left behind by untracked environments",
		ArgsUsage: "[vpc-id]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "region",
				Aliases:     []string{"r"},
				Usage:       "AWS region to sweep",
				Value:       "us-west-2",
				Destination: &opts.region,
			},
			&cli.BoolFlag{
				Name:        "all",
				Usage:       "Sweep every VPC carrying the project tag",
				Destination: &opts.all,
			},
		},
		Before: func(c *cli.Context) error {
			if !opts.all && c.Args().Len() != 1 {
				return fmt.Errorf("expected a VPC ID or --all")
			}
			if opts.all && c.Args().Len() > 0 {
				return fmt.Errorf("--all does not take a VPC ID")
			}
			return nil
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &cleanupCmd
}

func (m command) run(c *cli.Context, opts *options) error {
	cleaner, err := cleanup.New(m.log, opts.region)
	if err != nil {
		return err
	}

	if opts.all {
		return cleaner.SweepAll(c.Context)
	}
	return cleaner.Sweep(c.Context, c.Args().First())
}
