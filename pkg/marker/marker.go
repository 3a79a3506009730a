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

// Package marker implements the readiness handshake between the
// bootstrapper and its orchestrator. The remote-execution channel that
// launches the bootstrap cannot be trusted to stay open for the tens of
// minutes a cluster bring-up can take, so success is signalled through a
// filesystem artifact the orchestrator polls for. Absence of the artifact
// is the failure signal; it is never written on a failed run.
package marker

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"strconv"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

const (
	// DefaultPath is the well-known marker location.
	DefaultPath = "/tmp/minidev-ready"
	// SuccessToken is the fixed prefix of a valid marker.
	SuccessToken = "SUCCESS:"

	// DefaultPollInterval matches the orchestrator's observed cadence.
	DefaultPollInterval = 30 * time.Second
	// DefaultPollTimeout is strictly longer than any observed bring-up.
	DefaultPollTimeout = 30 * time.Minute
)

// Marker is the terminal success record of a bootstrap run.
type Marker struct {
	ClusterName string
	Environment string
	Timestamp   time.Time
}

// Write atomically creates the marker at path. The file is written
// world-readable and, when owner is non-empty, chowned to that user so an
// unprivileged poller can read it even though the bootstrap ran as root.
//
// Callers must only invoke Write after the cluster has positively answered
// a liveness query; a zero exit status from the start command is not
// sufficient.
func Write(path string, m Marker, owner string) error {
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now().UTC()
	}

	content := fmt.Sprintf("%s cluster=%s environment=%s timestamp=%s\n",
		SuccessToken, m.ClusterName, m.Environment, m.Timestamp.UTC().Format(time.RFC3339))

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write marker: %w", err)
	}
	if owner != "" {
		if err := chownToUser(tmp, owner); err != nil {
			// Readability is already guaranteed by the 0644 mode.
			fmt.Fprintf(os.Stderr, "warning: could not chown marker to %s: %v\n", owner, err)
		}
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move marker into place: %w", err)
	}
	return nil
}

// Read parses the marker at path. A file that does not begin with the
// success token is treated as absent.
func Read(path string) (Marker, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Marker{}, err
	}
	m, err := Parse(string(data))
	if err != nil {
		return Marker{}, fmt.Errorf("marker %s: %w", path, err)
	}
	return m, nil
}

// Parse parses marker file content. The orchestrator uses it on content
// fetched over SSH, where there is no local file to Read.
func Parse(content string) (Marker, error) {
	line := strings.SplitN(content, "\n", 2)[0]
	if !strings.HasPrefix(line, SuccessToken) {
		return Marker{}, fmt.Errorf("content does not begin with %q", SuccessToken)
	}

	m := Marker{}
	for _, field := range strings.Fields(strings.TrimPrefix(line, SuccessToken)) {
		key, value, found := strings.Cut(field, "=")
		if !found {
			continue
		}
		switch key {
		case "cluster":
			m.ClusterName = value
		case "environment":
			m.Environment = value
		case "timestamp":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				m.Timestamp = ts
			}
		}
	}
	return m, nil
}

// Remove deletes the marker, tolerating absence. Called at the start of
// every bootstrap so a stale marker from an earlier run can never be
// mistaken for this run's success.
func Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Poll blocks until the marker appears and parses, polling at interval up
// to timeout. This is the orchestrator side of the handshake.
func Poll(ctx context.Context, path string, interval, timeout time.Duration) (Marker, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	var m Marker
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(context.Context) (bool, error) {
		found, err := Read(path)
		if err != nil {
			return false, nil // not there yet, keep polling
		}
		m = found
		return true, nil
	})
	if err != nil {
		return Marker{}, fmt.Errorf("readiness marker %s did not appear within %s: %w", path, timeout, err)
	}
	return m, nil
}

func chownToUser(path, owner string) error {
	u, err := user.Lookup(owner)
	if err != nil {
		return err
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return err
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return err
	}
	return os.Chown(path, uid, gid)
}
