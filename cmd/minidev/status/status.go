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

package status

import (
	"fmt"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/instances"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/jyaml"
	"github.com/NVIDIA/minidev/pkg/output"
	"github.com/NVIDIA/minidev/pkg/provider/aws"
)

type options struct {
	cachePath string
	format    string
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the status command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	statusCmd := cli.Command{
		Name:      "status",
		Usage:     "show the status of one environment",
		ArgsUsage: "<instance-id>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "cachepath",
				Aliases:     []string{"c"},
				Usage:       "Path to the cache directory",
				Destination: &opts.cachePath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "Output format: table, json or yaml",
				Destination: &opts.format,
			},
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &statusCmd
}

// statusReport is what the command prints.
type statusReport struct {
	ID         string            `json:"id" yaml:"id"`
	Name       string            `json:"name" yaml:"name"`
	Status     string            `json:"status" yaml:"status"`
	Properties map[string]string `json:"properties,omitempty" yaml:"properties,omitempty"`
}

func (r statusReport) Headers() []string {
	return []string{"ID", "NAME", "STATUS", "PUBLIC DNS"}
}

func (r statusReport) Rows() [][]string {
	return [][]string{{r.ID, r.Name, r.Status, r.Properties[aws.PublicDnsName]}}
}

func (m command) run(c *cli.Context, opts *options) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("expected exactly one instance ID, got %d arguments", c.Args().Len())
	}
	instanceID := c.Args().First()

	formatter, err := output.NewFormatter(opts.format)
	if err != nil {
		return err
	}

	manager := instances.NewManager(m.log, opts.cachePath)
	instance, err := manager.Get(c.Context, instanceID)
	if err != nil {
		return err
	}

	env, err := jyaml.UnmarshalFromFile[v1alpha1.Environment](instance.CacheFile)
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}
	properties := make(map[string]string, len(env.Status.Properties))
	for _, p := range env.Status.Properties {
		if p.Value != "" {
			properties[p.Name] = p.Value
		}
	}

	return formatter.Print(statusReport{
		ID:         instance.ID,
		Name:       instance.Name,
		Status:     instance.Status,
		Properties: properties,
	})
}
