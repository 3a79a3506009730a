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
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// EnvironmentSpec defines the desired state of a minidev environment.
type EnvironmentSpec struct {
	// Auth holds the SSH credentials used by the orchestrator side.
	// +optional
	Auth Auth `json:"auth"`

	// Instance describes the AWS instance hosting the cluster.
	// Only used by the create/delete/wait orchestrator commands.
	// +optional
	Instance Instance `json:"instance"`

	// Cluster describes the requested single-node cluster.
	Cluster ClusterRequest `json:"cluster"`
}

// Auth defines the SSH access to the target host.
type Auth struct {
	// KeyName is the name of the AWS key pair.
	// +optional
	KeyName string `json:"keyName,omitempty"`
	// PrivateKey is the path to the SSH private key file.
	PrivateKey string `json:"privateKey"`
	// PublicKey is the path to the SSH public key file.
	// +optional
	PublicKey string `json:"publicKey,omitempty"`
	// Username is the SSH login user on the target host.
	Username string `json:"username"`
}

// Instance defines the AWS instance the cluster runs on.
type Instance struct {
	Type   string `json:"type"`
	Region string `json:"region"`

	// ImageID is the AMI to launch. Required for create.
	// +optional
	ImageID string `json:"imageId,omitempty"`

	// IngressIPRanges restricts inbound SSH/API access.
	// +optional
	IngressIPRanges []string `json:"ingressIpRanges,omitempty"`

	// HostURL is the public address of an already-running host.
	// +optional
	HostURL string `json:"hostUrl,omitempty"`
}

// Driver is the virtualization/containerization backend minikube uses to
// run the cluster node.
type Driver string

const (
	DriverDocker     Driver = "docker"
	DriverNone       Driver = "none"
	DriverVirtualBox Driver = "virtualbox"
	DriverVMware     Driver = "vmware"
)

// ClusterRequest is the immutable bootstrap request supplied by the
// orchestrator. Zero or negative resource values are replaced by defaults
// during validation, never interpreted as unlimited.
type ClusterRequest struct {
	// Name of the cluster profile. Must match [a-z0-9-]+.
	Name string `json:"name"`

	// Environment is a free-form label (e.g. "dev", "staging") recorded in
	// the readiness marker.
	Environment string `json:"environment"`

	// KubernetesVersion is the target orchestration version, e.g. "v1.30.0".
	// +optional
	KubernetesVersion string `json:"kubernetesVersion,omitempty"`

	// RuntimeVersion is the container runtime (Docker) version, or "latest".
	// +optional
	RuntimeVersion string `json:"runtimeVersion,omitempty"`

	// Driver selects the minikube driver.
	// +optional
	Driver Driver `json:"driver,omitempty"`

	// MemoryMB is the requested cluster memory in megabytes.
	// +optional
	MemoryMB int `json:"memoryMB,omitempty"`

	// CPUs is the requested logical CPU count.
	// +optional
	CPUs int `json:"cpus,omitempty"`

	// Fresh forces delete-and-recreate of any pre-existing cluster.
	// The default is to short-circuit when the cluster is already ready.
	// +optional
	Fresh bool `json:"fresh,omitempty"`
}

// HostCapacity is a read-only snapshot of the target machine, taken once at
// the start of a run. Network identity may be unknown when the metadata
// endpoint is unreachable.
type HostCapacity struct {
	// TotalMemoryMB is the OS-reported total memory, not "available".
	TotalMemoryMB int `json:"totalMemoryMB"`
	// CPUs is the logical CPU count.
	CPUs int `json:"cpus"`

	// InstanceType, PublicIPv4 and PrivateIPv4 come from the cloud metadata
	// endpoint and are MetadataUnknown when it could not be reached.
	InstanceType string `json:"instanceType"`
	PublicIPv4   string `json:"publicIPv4"`
	PrivateIPv4  string `json:"privateIPv4"`
}

// MetadataUnknown is the sentinel for metadata fields that could not be
// retrieved. Downstream steps must tolerate it.
const MetadataUnknown = "unknown"

// ResolvedConfig is the effective resource sizing after capping the request
// against host capacity. Derived deterministically; never persisted.
type ResolvedConfig struct {
	MemoryMB int `json:"memoryMB"`
	CPUs     int `json:"cpus"`

	// MemoryCapped and CPUsCapped record that the request was reduced, for
	// operator-facing logging.
	MemoryCapped bool `json:"memoryCapped"`
	CPUsCapped   bool `json:"cpusCapped"`

	// LowResource is set when the host is below the comfortable minimum and
	// the run proceeds with clamped values.
	LowResource bool `json:"lowResource"`
}

// EnvironmentStatus captures the orchestrator-visible state of an
// environment.
type EnvironmentStatus struct {
	Conditions []metav1.Condition `json:"conditions,omitempty"`
	Properties []Properties       `json:"properties,omitempty"`
}

// Properties is a key-value pair persisted in the environment cache file,
// used to record created AWS resource IDs.
type Properties struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Environment is the top-level configuration object, loaded from the env
// file given to the CLI.
type Environment struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec   EnvironmentSpec   `json:"spec,omitempty"`
	Status EnvironmentStatus `json:"status,omitempty"`
}
