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

package v1alpha1

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClusterRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ClusterRequest
		wantErr bool
		errMsg  string
	}{
		{
			name:    "empty request - valid, defaults apply later",
			req:     ClusterRequest{},
			wantErr: false,
		},
		{
			name: "valid name and driver",
			req: ClusterRequest{
				Name:   "dev-cluster-1",
				Driver: DriverDocker,
			},
			wantErr: false,
		},
		{
			name: "uppercase cluster name",
			req: ClusterRequest{
				Name: "DevCluster",
			},
			wantErr: true,
			errMsg:  "invalid cluster name",
		},
		{
			name: "cluster name with dots",
			req: ClusterRequest{
				Name: "dev.cluster",
			},
			wantErr: true,
			errMsg:  "invalid cluster name",
		},
		{
			name: "unknown driver",
			req: ClusterRequest{
				Name:   "dev",
				Driver: Driver("podman"),
			},
			wantErr: true,
			errMsg:  "invalid driver",
		},
		{
			name: "none driver",
			req: ClusterRequest{
				Name:   "dev",
				Driver: DriverNone,
			},
			wantErr: false,
		},
		{
			name: "kubernetes version without v prefix",
			req: ClusterRequest{
				Name:              "dev",
				KubernetesVersion: "1.30.0",
			},
			wantErr: true,
			errMsg:  "must start with 'v'",
		},
		{
			name: "negative resources are not a validation error",
			req: ClusterRequest{
				Name:     "dev",
				MemoryMB: -1,
				CPUs:     0,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClusterRequest_Default(t *testing.T) {
	t.Run("empty request gets all defaults", func(t *testing.T) {
		req := ClusterRequest{}
		req.Default()

		assert.Equal(t, DefaultClusterName, req.Name)
		assert.Equal(t, DefaultEnvironment, req.Environment)
		assert.Equal(t, DefaultKubernetesVersion, req.KubernetesVersion)
		assert.Equal(t, DefaultRuntimeVersion, req.RuntimeVersion)
		assert.Equal(t, DriverDocker, req.Driver)
		assert.Equal(t, DefaultMemoryMB, req.MemoryMB)
		assert.Equal(t, DefaultCPUs, req.CPUs)
	})

	t.Run("non-positive resources are replaced, not treated as unlimited", func(t *testing.T) {
		req := ClusterRequest{MemoryMB: 0, CPUs: -1}
		req.Default()

		assert.Equal(t, DefaultMemoryMB, req.MemoryMB)
		assert.Equal(t, DefaultCPUs, req.CPUs)
	})

	t.Run("explicit values survive defaulting", func(t *testing.T) {
		req := ClusterRequest{
			Name:     "ci",
			MemoryMB: 4096,
			CPUs:     4,
			Driver:   DriverNone,
		}
		req.Default()

		assert.Equal(t, "ci", req.Name)
		assert.Equal(t, 4096, req.MemoryMB)
		assert.Equal(t, 4, req.CPUs)
		assert.Equal(t, DriverNone, req.Driver)
	})
}

func TestEnvironmentSpec_Validate(t *testing.T) {
	t.Run("instance type without region", func(t *testing.T) {
		spec := EnvironmentSpec{
			Instance: Instance{Type: "t3.xlarge"},
			Cluster:  ClusterRequest{Name: "dev"},
		}
		err := spec.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "region is required")
	})

	t.Run("cluster error is wrapped", func(t *testing.T) {
		spec := EnvironmentSpec{
			Cluster: ClusterRequest{Name: "Bad_Name"},
		}
		err := spec.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "cluster validation failed")
	})
}
