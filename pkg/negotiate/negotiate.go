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

// Package negotiate reconciles the requested cluster sizing against what
// the host actually has. The result is deterministic: the same request and
// capacity always produce the same resolved configuration.
package negotiate

import (
	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
)

const (
	// ReserveMB is the memory headroom left for the OS and the container
	// runtime itself.
	ReserveMB = 768
	// FallbackReserveMB is the smaller reserve used on hosts where the
	// default reserve would leave less than ComfortableMinMB for the
	// cluster.
	FallbackReserveMB = 512
	// ComfortableMinMB is the threshold below which the smaller reserve
	// kicks in.
	ComfortableMinMB = 2200
	// AbsoluteFloorMB is the minimum cluster memory. Hosts that cannot
	// provide it get a clamped value and a loud low-resource warning; the
	// cluster may still start, degraded.
	AbsoluteFloorMB = 1500
)

// Negotiate caps the request against capacity, leaving the reserve
// headroom. Non-positive request values are replaced with the documented
// defaults first; they are never read as "unlimited".
func Negotiate(log logger.Logger, request v1alpha1.ClusterRequest, capacity v1alpha1.HostCapacity) v1alpha1.ResolvedConfig {
	requestedMemory := request.MemoryMB
	if requestedMemory <= 0 {
		requestedMemory = v1alpha1.DefaultMemoryMB
		log.Warning("invalid requested memory %d MB, using default %d MB", request.MemoryMB, requestedMemory)
	}
	requestedCPUs := request.CPUs
	if requestedCPUs <= 0 {
		requestedCPUs = v1alpha1.DefaultCPUs
		log.Warning("invalid requested CPU count %d, using default %d", request.CPUs, requestedCPUs)
	}

	resolved := v1alpha1.ResolvedConfig{
		MemoryMB: requestedMemory,
		CPUs:     requestedCPUs,
	}

	safeMax := capacity.TotalMemoryMB - ReserveMB
	if safeMax < ComfortableMinMB {
		safeMax = capacity.TotalMemoryMB - FallbackReserveMB
	}
	if safeMax < AbsoluteFloorMB {
		safeMax = AbsoluteFloorMB
		resolved.LowResource = true
		log.Warning("host has only %d MB total memory; clamping cluster memory to the %d MB floor, expect degraded performance",
			capacity.TotalMemoryMB, AbsoluteFloorMB)
	}

	if requestedMemory > safeMax {
		resolved.MemoryMB = safeMax
		resolved.MemoryCapped = true
		log.Warning("requested %d MB memory exceeds safe maximum, capped to %d MB (host total %d MB)",
			requestedMemory, safeMax, capacity.TotalMemoryMB)
	}

	if capacity.CPUs > 0 && requestedCPUs > capacity.CPUs {
		resolved.CPUs = capacity.CPUs
		resolved.CPUsCapped = true
		log.Warning("requested %d CPUs exceeds host count, capped to %d", requestedCPUs, capacity.CPUs)
	}

	return resolved
}
