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

package list

import (
	"time"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/internal/instances"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/output"
)

type options struct {
	cachePath string
	format    string
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the list command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	listCmd := cli.Command{
		Name:  "list",
		Usage: "list tracked environments",
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

	return &listCmd
}

// instanceTable renders instances for the table format.
type instanceTable []instances.Instance

func (t instanceTable) Headers() []string {
	return []string{"ID", "NAME", "STATUS", "AGE"}
}

func (t instanceTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, instance := range t {
		rows = append(rows, []string{
			instance.ID,
			instance.Name,
			instance.Status,
			time.Since(instance.CreatedAt).Round(time.Minute).String(),
		})
	}
	return rows
}

func (m command) run(c *cli.Context, opts *options) error {
	formatter, err := output.NewFormatter(opts.format)
	if err != nil {
		return err
	}

	manager := instances.NewManager(m.log, opts.cachePath)
	list, err := manager.List(c.Context)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		m.log.Info("No environments found")
		return nil
	}

	if formatter.Format() == output.FormatTable {
		return formatter.Print(instanceTable(list))
	}
	return formatter.Print(list)
}
