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

// Package wait polls the readiness marker until it appears, locally or over
// SSH. Absence at the deadline is the failure signal.
package wait

import (
	"time"

	cli "github.com/urfave/cli/v2"

	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/marker"
	"github.com/NVIDIA/minidev/pkg/remote"
)

type options struct {
	markerPath string
	interval   time.Duration
	timeout    time.Duration

	host    string
	user    string
	keyPath string
}

type command struct {
	log *logger.FunLogger
}

// NewCommand constructs the wait command with the specified logger
func NewCommand(log *logger.FunLogger) *cli.Command {
	c := command{
		log: log,
	}
	return c.build()
}

func (m command) build() *cli.Command {
	opts := options{}

	waitCmd := cli.Command{
		Name:  "wait",
		Usage: "wait for the readiness marker to appear",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "marker-path",
				Usage:       "Path of the readiness marker",
				Value:       marker.DefaultPath,
				Destination: &opts.markerPath,
			},
			&cli.DurationFlag{
				Name:        "interval",
				Usage:       "Poll interval",
				Value:       marker.DefaultPollInterval,
				Destination: &opts.interval,
			},
			&cli.DurationFlag{
				Name:        "timeout",
				Usage:       "Give up after this long",
				Value:       marker.DefaultPollTimeout,
				Destination: &opts.timeout,
			},
			&cli.StringFlag{
				Name:        "host",
				Usage:       "Poll over SSH on this host instead of locally",
				Destination: &opts.host,
			},
			&cli.StringFlag{
				Name:        "user",
				Usage:       "SSH username",
				Value:       "ubuntu",
				Destination: &opts.user,
			},
			&cli.StringFlag{
				Name:        "key",
				Aliases:     []string{"i"},
				Usage:       "Path to the SSH private key",
				Destination: &opts.keyPath,
			},
		},
		Action: func(c *cli.Context) error {
			return m.run(c, &opts)
		},
	}

	return &waitCmd
}

func (m command) run(c *cli.Context, opts *options) error {
	if opts.host == "" {
		found, err := marker.Poll(c.Context, opts.markerPath, opts.interval, opts.timeout)
		if err != nil {
			return err
		}
		m.log.Check("Cluster %s (%s) ready since %s", found.ClusterName, found.Environment, found.Timestamp)
		return nil
	}

	exec, err := remote.Connect(c.Context, opts.keyPath, opts.user, opts.host)
	if err != nil {
		return err
	}
	defer exec.Close() // nolint:errcheck

	o := remote.NewOrchestrator(m.log, exec,
		remote.WithMarkerPath(opts.markerPath),
		remote.WithPoll(opts.interval, opts.timeout))
	found, err := o.WaitReady(c.Context)
	if err != nil {
		return err
	}
	m.log.Check("Cluster %s (%s) ready since %s", found.ClusterName, found.Environment, found.Timestamp)
	return nil
}
