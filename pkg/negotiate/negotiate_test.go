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

package negotiate

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
)

func quietLogger() *logger.FunLogger {
	log := logger.NewLogger()
	log.Out = &bytes.Buffer{}
	return log
}

func TestNegotiate(t *testing.T) {
	tests := []struct {
		name     string
		request  v1alpha1.ClusterRequest
		capacity v1alpha1.HostCapacity
		want     v1alpha1.ResolvedConfig
	}{
		{
			name:     "capped due to reserve on a 4GB host",
			request:  v1alpha1.ClusterRequest{MemoryMB: 3900, CPUs: 2},
			capacity: v1alpha1.HostCapacity{TotalMemoryMB: 4096, CPUs: 2},
			want: v1alpha1.ResolvedConfig{
				MemoryMB:     3328, // 4096 - 768
				CPUs:         2,
				MemoryCapped: true,
			},
		},
		{
			name:     "no capping needed",
			request:  v1alpha1.ClusterRequest{MemoryMB: 2000, CPUs: 4},
			capacity: v1alpha1.HostCapacity{TotalMemoryMB: 8192, CPUs: 8},
			want: v1alpha1.ResolvedConfig{
				MemoryMB: 2000,
				CPUs:     4,
			},
		},
		{
			name:     "invalid request resolves to defaults, still capped",
			request:  v1alpha1.ClusterRequest{MemoryMB: 0, CPUs: -1},
			capacity: v1alpha1.HostCapacity{TotalMemoryMB: 8192, CPUs: 8},
			want: v1alpha1.ResolvedConfig{
				MemoryMB: v1alpha1.DefaultMemoryMB,
				CPUs:     v1alpha1.DefaultCPUs,
			},
		},
		{
			name:     "small host falls back to the smaller reserve",
			request:  v1alpha1.ClusterRequest{MemoryMB: 3000, CPUs: 2},
			capacity: v1alpha1.HostCapacity{TotalMemoryMB: 2900, CPUs: 2},
			want: v1alpha1.ResolvedConfig{
				MemoryMB:     2388, // 2900 - 512; 2900 - 768 would be below 2200
				CPUs:         2,
				MemoryCapped: true,
			},
		},
		{
			name:     "tiny host clamps to the absolute floor with a warning",
			request:  v1alpha1.ClusterRequest{MemoryMB: 3000, CPUs: 2},
			capacity: v1alpha1.HostCapacity{TotalMemoryMB: 1700, CPUs: 2},
			want: v1alpha1.ResolvedConfig{
				MemoryMB:     1500,
				CPUs:         2,
				MemoryCapped: true,
				LowResource:  true,
			},
		},
		{
			name:     "CPU capping",
			request:  v1alpha1.ClusterRequest{MemoryMB: 2000, CPUs: 8},
			capacity: v1alpha1.HostCapacity{TotalMemoryMB: 8192, CPUs: 4},
			want: v1alpha1.ResolvedConfig{
				MemoryMB:   2000,
				CPUs:       4,
				CPUsCapped: true,
			},
		},
		{
			name:     "unknown CPU count leaves request untouched",
			request:  v1alpha1.ClusterRequest{MemoryMB: 2000, CPUs: 4},
			capacity: v1alpha1.HostCapacity{TotalMemoryMB: 8192, CPUs: 0},
			want: v1alpha1.ResolvedConfig{
				MemoryMB: 2000,
				CPUs:     4,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Negotiate(quietLogger(), tt.request, tt.capacity)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNegotiateIsDeterministic(t *testing.T) {
	request := v1alpha1.ClusterRequest{MemoryMB: 3900, CPUs: 3}
	capacity := v1alpha1.HostCapacity{TotalMemoryMB: 4096, CPUs: 2}

	first := Negotiate(quietLogger(), request, capacity)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Negotiate(quietLogger(), request, capacity))
	}
}

func TestNegotiateCappedScenarioRange(t *testing.T) {
	// The 4GB scenario from the field: requested 3900 on a 4096 host must
	// land in the 2800-3328 band after the reserve.
	got := Negotiate(quietLogger(), v1alpha1.ClusterRequest{MemoryMB: 3900, CPUs: 2},
		v1alpha1.HostCapacity{TotalMemoryMB: 4096, CPUs: 2})
	assert.GreaterOrEqual(t, got.MemoryMB, 2800)
	assert.LessOrEqual(t, got.MemoryMB, 3328)
}
