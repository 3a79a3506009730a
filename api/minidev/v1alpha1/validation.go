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
	"fmt"
	"regexp"
	"strings"
)

const (
	// DefaultMemoryMB is substituted when the request omits memory or
	// supplies a non-positive value.
	DefaultMemoryMB = 3000
	// DefaultCPUs is substituted when the request omits CPUs or supplies a
	// non-positive value.
	DefaultCPUs = 2
	// DefaultKubernetesVersion is the orchestration version used when the
	// request leaves it empty.
	DefaultKubernetesVersion = "v1.30.0"
	// DefaultRuntimeVersion tracks the distro's current Docker package.
	DefaultRuntimeVersion = "latest"
	// DefaultClusterName is used when no name is given.
	DefaultClusterName = "minidev"
	// DefaultEnvironment is used when no environment label is given.
	DefaultEnvironment = "dev"
)

var clusterNameRegexp = regexp.MustCompile(`^[a-z0-9-]+$`)

// Validate checks the cluster request for invalid field values.
// Resource sizing is not validated here: non-positive memory/CPU values are
// replaced with defaults by Default(), never rejected.
func (c *ClusterRequest) Validate() error {
	if c.Name != "" && !clusterNameRegexp.MatchString(c.Name) {
		return fmt.Errorf("invalid cluster name %q: must match [a-z0-9-]+", c.Name)
	}

	if c.Driver != "" {
		switch c.Driver {
		case DriverDocker, DriverNone, DriverVirtualBox, DriverVMware:
		default:
			return fmt.Errorf("invalid driver %q: must be one of docker, none, virtualbox, vmware", c.Driver)
		}
	}

	if c.KubernetesVersion != "" && !strings.HasPrefix(c.KubernetesVersion, "v") {
		return fmt.Errorf("invalid kubernetes version %q: must start with 'v'", c.KubernetesVersion)
	}

	return nil
}

// Default fills omitted or non-positive fields with the documented
// defaults. A request for 0 or negative resources is treated as invalid
// input and substituted, not interpreted as "unlimited".
func (c *ClusterRequest) Default() {
	if c.Name == "" {
		c.Name = DefaultClusterName
	}
	if c.Environment == "" {
		c.Environment = DefaultEnvironment
	}
	if c.KubernetesVersion == "" {
		c.KubernetesVersion = DefaultKubernetesVersion
	}
	if c.RuntimeVersion == "" {
		c.RuntimeVersion = DefaultRuntimeVersion
	}
	if c.Driver == "" {
		c.Driver = DriverDocker
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = DefaultMemoryMB
	}
	if c.CPUs <= 0 {
		c.CPUs = DefaultCPUs
	}
}

// Validate checks the environment spec.
func (e *EnvironmentSpec) Validate() error {
	if err := e.Cluster.Validate(); err != nil {
		return fmt.Errorf("cluster validation failed: %w", err)
	}

	if e.Instance.Type != "" && e.Instance.Region == "" {
		return fmt.Errorf("instance region is required when an instance type is set")
	}

	return nil
}
