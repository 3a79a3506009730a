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

package delete

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/internal/instances"
	"github.com/NVIDIA/minidev/internal/logger"
)

type options struct {
	cachePath string
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the delete command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	deleteCmd := cli.Command{
		Name:      "delete",
		Usage:     "delete an environment and its AWS resources",
		ArgsUsage: "<instance-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "cachepath",
				Aliases:     []string{"c"},
				Usage:       "Path to the cache directory",
				Destination: &opts.cachePath,
			},
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &deleteCmd
}

func (m command) run(c *cli.Context, opts *options) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one instance ID, got %d arguments", c.Args().Len())
	}
	instanceID := c.Args().First()

	manager := instances.NewManager(m.log, opts.cachePath)
	if err := manager.Delete(c.Context, instanceID); err != nil {
		return err
	}
	m.log.Check("Deleted environment %s", instanceID)
	return nil
}
