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

package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/minidev/internal/logger"
)

func quietLogger() *logger.FunLogger {
	log := logger.NewLogger()
	log.Out = &bytes.Buffer{}
	return log
}

// fakeExecutor scripts Output responses per command substring and records
// everything run.
type fakeExecutor struct {
	runs    []string
	outputs []string
	uploads map[string]string

	outputFn func(cmd string, nthCall int) (string, error)
	calls    int
}

func (f *fakeExecutor) Run(_ context.Context, cmd string, _ io.Writer) error {
	f.runs = append(f.runs, cmd)
	return nil
}

func (f *fakeExecutor) Output(_ context.Context, cmd string) (string, error) {
	f.outputs = append(f.outputs, cmd)
	f.calls++
	if f.outputFn != nil {
		return f.outputFn(cmd, f.calls)
	}
	return "", nil
}

func (f *fakeExecutor) Upload(_ context.Context, content io.Reader, remotePath string) error {
	if f.uploads == nil {
		f.uploads = map[string]string{}
	}
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	f.uploads[remotePath] = string(data)
	return nil
}

func (f *fakeExecutor) Reconnect() error { return nil }
func (f *fakeExecutor) Close() error     { return nil }

func testOrchestrator(exec *fakeExecutor) *Orchestrator {
	return NewOrchestrator(quietLogger(), exec, WithPoll(time.Millisecond, 100*time.Millisecond))
}

func TestStartBootstrapQuotesArguments(t *testing.T) {
	exec := &fakeExecutor{}
	o := testOrchestrator(exec)

	err := o.StartBootstrap(context.Background(), DefaultBinaryPath, []string{
		"--cluster-name", "ci cluster", "--fresh",
	})
	require.NoError(t, err)
	require.Len(t, exec.runs, 1)

	cmd := exec.runs[0]
	assert.True(t, strings.HasPrefix(cmd, "'sudo' 'nohup' '/usr/local/bin/minidev' 'bootstrap'"), cmd)
	assert.Contains(t, cmd, "'ci cluster'")
	assert.Contains(t, cmd, "'--fresh'")
	assert.True(t, strings.HasSuffix(cmd, "&"), "bootstrap must be detached: %s", cmd)
}

func TestWaitReadyPollsUntilMarkerAppears(t *testing.T) {
	exec := &fakeExecutor{
		outputFn: func(cmd string, nthCall int) (string, error) {
			if !strings.Contains(cmd, "minidev-ready") {
				return "", nil
			}
			if nthCall < 3 {
				return "", fmt.Errorf("cat: no such file")
			}
			return "SUCCESS: cluster=minidev environment=ci timestamp=2026-08-25T10:00:00Z\n", nil
		},
	}
	o := testOrchestrator(exec)

	m, err := o.WaitReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minidev", m.ClusterName)
	assert.Equal(t, "ci", m.Environment)
	assert.GreaterOrEqual(t, exec.calls, 3)
}

func TestWaitReadyIgnoresGarbageMarker(t *testing.T) {
	exec := &fakeExecutor{
		outputFn: func(cmd string, nthCall int) (string, error) {
			if strings.Contains(cmd, "minidev-ready") && nthCall >= 3 {
				return "SUCCESS: cluster=minidev environment=ci timestamp=2026-08-25T10:00:00Z\n", nil
			}
			// Partial writes must not be mistaken for success.
			return "SUCC", nil
		},
	}
	o := testOrchestrator(exec)

	m, err := o.WaitReady(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "minidev", m.ClusterName)
}

func TestWaitReadyTimesOutAndSurfacesLog(t *testing.T) {
	exec := &fakeExecutor{
		outputFn: func(cmd string, _ int) (string, error) {
			if strings.Contains(cmd, "minidev-bootstrap.log") {
				return "minikube start failed", nil
			}
			return "", fmt.Errorf("cat: no such file")
		},
	}
	o := testOrchestrator(exec)

	_, err := o.WaitReady(context.Background())
	require.ErrorContains(t, err, "did not appear")

	var sawLogTail bool
	for _, cmd := range exec.outputs {
		if strings.Contains(cmd, "minidev-bootstrap.log") {
			sawLogTail = true
		}
	}
	assert.True(t, sawLogTail, "timeout should fetch the bootstrap log tail")
}

func TestUploadBinaryStagesAndInstalls(t *testing.T) {
	local := filepath.Join(t.TempDir(), "minidev")
	require.NoError(t, os.WriteFile(local, []byte("binary-bytes"), 0o755))

	exec := &fakeExecutor{}
	o := testOrchestrator(exec)

	require.NoError(t, o.UploadBinary(context.Background(), local, DefaultBinaryPath))
	assert.Equal(t, "binary-bytes", exec.uploads[DefaultBinaryPath+".upload"])
	require.Len(t, exec.runs, 1)
	assert.Contains(t, exec.runs[0], "sudo install -m 0755")
}

func TestFetchKubeconfig(t *testing.T) {
	exec := &fakeExecutor{
		outputFn: func(cmd string, _ int) (string, error) {
			return "apiVersion: v1\nkind: Config\n", nil
		},
	}
	o := testOrchestrator(exec)

	var buf bytes.Buffer
	require.NoError(t, o.FetchKubeconfig(context.Background(), &buf))
	assert.Contains(t, buf.String(), "kind: Config")
}

func TestShellQuote(t *testing.T) {
	tests := []struct {
		in       string
		expected string
	}{
		{"plain", "'plain'"},
		{"with space", "'with space'"},
		{"it's", `'it'\''s'`},
		{"", "''"},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.expected, shellQuote(tc.in))
	}
}
