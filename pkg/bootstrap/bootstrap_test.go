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

package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/installer"
	"github.com/NVIDIA/minidev/pkg/marker"
)

func quietLogger() *logger.FunLogger {
	log := logger.NewLogger()
	log.Out = &bytes.Buffer{}
	return log
}

type fakeProber struct {
	capacity v1alpha1.HostCapacity
	err      error
}

func (f *fakeProber) Probe(context.Context) (v1alpha1.HostCapacity, error) {
	return f.capacity, f.err
}

type fakeInstaller struct {
	err    error
	called bool
}

func (f *fakeInstaller) EnsureAll(context.Context, v1alpha1.ClusterRequest) (installer.InstallState, error) {
	f.called = true
	return installer.InstallState{}, f.err
}

type fakeStarter struct {
	startErr  error
	verifyErr error

	started  bool
	verified bool
	resolved v1alpha1.ResolvedConfig
}

func (f *fakeStarter) Start(_ context.Context, _ v1alpha1.ClusterRequest, resolved v1alpha1.ResolvedConfig) error {
	f.started = true
	f.resolved = resolved
	return f.startErr
}

func (f *fakeStarter) Verify(context.Context) error {
	f.verified = true
	return f.verifyErr
}

func testPipeline(t *testing.T, prober *fakeProber, inst *fakeInstaller, starter *fakeStarter) (*Pipeline, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "minidev-ready")
	return New(quietLogger(), prober, inst, starter, path, ""), path
}

func healthyProber() *fakeProber {
	return &fakeProber{capacity: v1alpha1.HostCapacity{TotalMemoryMB: 8192, CPUs: 4, InstanceType: "g4dn.xlarge"}}
}

func testRequest() v1alpha1.ClusterRequest {
	return v1alpha1.ClusterRequest{
		Name:              "minidev",
		Environment:       "dev",
		KubernetesVersion: "v1.30.0",
		Driver:            v1alpha1.DriverDocker,
		MemoryMB:          3000,
		CPUs:              2,
	}
}

func TestRunWritesMarkerOnlyAfterVerification(t *testing.T) {
	starter := &fakeStarter{}
	p, path := testPipeline(t, healthyProber(), &fakeInstaller{}, starter)

	require.NoError(t, p.Run(context.Background(), testRequest()))
	assert.True(t, starter.started)
	assert.True(t, starter.verified)

	m, err := marker.Read(path)
	require.NoError(t, err)
	assert.Equal(t, "minidev", m.ClusterName)
	assert.Equal(t, "dev", m.Environment)

	// The negotiated config reached the starter.
	assert.Equal(t, 3000, starter.resolved.MemoryMB)
	assert.Equal(t, 2, starter.resolved.CPUs)
}

func TestRunRemovesStaleMarkerFirst(t *testing.T) {
	inst := &fakeInstaller{err: errors.New("apt exploded")}
	p, path := testPipeline(t, healthyProber(), inst, &fakeStarter{})

	// A marker left behind by an earlier successful run.
	require.NoError(t, marker.Write(path, marker.Marker{ClusterName: "stale", Environment: "dev"}, ""))

	err := p.Run(context.Background(), testRequest())
	require.Error(t, err)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "a failed run must not leave any marker behind")
}

func TestRunExitCodeClassification(t *testing.T) {
	tests := []struct {
		name     string
		prober   *fakeProber
		inst     *fakeInstaller
		starter  *fakeStarter
		wantCode int
	}{
		{
			name:     "probe failure is generic",
			prober:   &fakeProber{err: errors.New("meminfo unreadable")},
			inst:     &fakeInstaller{},
			starter:  &fakeStarter{},
			wantCode: ExitFailure,
		},
		{
			name:     "installer failure",
			prober:   healthyProber(),
			inst:     &fakeInstaller{err: errors.New("socket denied")},
			starter:  &fakeStarter{},
			wantCode: ExitInstallFailed,
		},
		{
			name:     "cluster failure",
			prober:   healthyProber(),
			inst:     &fakeInstaller{},
			starter:  &fakeStarter{startErr: errors.New("node never ready")},
			wantCode: ExitClusterNotReady,
		},
		{
			name:     "verification failure",
			prober:   healthyProber(),
			inst:     &fakeInstaller{},
			starter:  &fakeStarter{verifyErr: errors.New("no node is Ready")},
			wantCode: ExitVerifyFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, path := testPipeline(t, tt.prober, tt.inst, tt.starter)
			err := p.Run(context.Background(), testRequest())
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, ExitCode(err))

			_, statErr := os.Stat(path)
			assert.True(t, os.IsNotExist(statErr), "no marker on failure")
		})
	}
}

func TestRunStopsAtFirstFailure(t *testing.T) {
	inst := &fakeInstaller{err: errors.New("no mirror")}
	starter := &fakeStarter{}
	p, _ := testPipeline(t, healthyProber(), inst, starter)

	err := p.Run(context.Background(), testRequest())
	require.Error(t, err)
	assert.True(t, inst.called)
	assert.False(t, starter.started, "the cluster must not start after a failed install")
}

func TestExitCodeSuccess(t *testing.T) {
	assert.Equal(t, ExitSuccess, ExitCode(nil))
}
