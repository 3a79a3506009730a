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
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
)

func TestNegotiateSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Resource Negotiator Suite")
}

var _ = Describe("Negotiate", func() {
	It("never resolves above the host total minus the minimum reserve on viable hosts", func() {
		// Sweep host sizes where the fallback reserve still leaves the
		// floor available.
		for total := 2012; total <= 65536; total += 509 {
			for _, requested := range []int{1, 1024, 3000, 3900, 8192, 1 << 20} {
				resolved := Negotiate(quietLogger(),
					v1alpha1.ClusterRequest{MemoryMB: requested, CPUs: 2},
					v1alpha1.HostCapacity{TotalMemoryMB: total, CPUs: 2},
				)
				Expect(resolved.MemoryMB).To(BeNumerically("<=", total-FallbackReserveMB),
					"total=%d requested=%d", total, requested)
				Expect(resolved.MemoryMB).To(BeNumerically(">=", 1), "total=%d requested=%d", total, requested)
			}
		}
	})

	It("never resolves below the absolute floor once the floor clamp applies", func() {
		for total := 1500; total <= 2100; total += 97 {
			resolved := Negotiate(quietLogger(),
				v1alpha1.ClusterRequest{MemoryMB: 4000, CPUs: 2},
				v1alpha1.HostCapacity{TotalMemoryMB: total, CPUs: 2},
			)
			Expect(resolved.MemoryMB).To(BeNumerically(">=", AbsoluteFloorMB))
			Expect(resolved.LowResource).To(BeTrue())
		}
	})

	It("yields identical results for identical inputs across the sweep", func() {
		for total := 1500; total <= 16384; total += 1021 {
			request := v1alpha1.ClusterRequest{MemoryMB: 3900, CPUs: 4}
			capacity := v1alpha1.HostCapacity{TotalMemoryMB: total, CPUs: 2}
			first := Negotiate(quietLogger(), request, capacity)
			Expect(Negotiate(quietLogger(), request, capacity)).To(Equal(first))
		}
	})
})
