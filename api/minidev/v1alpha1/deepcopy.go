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

// DeepCopyInto copies the receiver into out.
func (e *Environment) DeepCopyInto(out *Environment) {
	*out = *e
	out.TypeMeta = e.TypeMeta
	e.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	e.Spec.DeepCopyInto(&out.Spec)
	e.Status.DeepCopyInto(&out.Status)
}

// DeepCopy returns a deep copy of the Environment.
func (e *Environment) DeepCopy() *Environment {
	if e == nil {
		return nil
	}
	out := new(Environment)
	e.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the receiver into out.
func (s *EnvironmentSpec) DeepCopyInto(out *EnvironmentSpec) {
	*out = *s
	if s.Instance.IngressIPRanges != nil {
		out.Instance.IngressIPRanges = make([]string, len(s.Instance.IngressIPRanges))
		copy(out.Instance.IngressIPRanges, s.Instance.IngressIPRanges)
	}
}

// DeepCopyInto copies the receiver into out.
func (s *EnvironmentStatus) DeepCopyInto(out *EnvironmentStatus) {
	*out = *s
	if s.Conditions != nil {
		out.Conditions = make([]metav1.Condition, len(s.Conditions))
		for i := range s.Conditions {
			s.Conditions[i].DeepCopyInto(&out.Conditions[i])
		}
	}
	if s.Properties != nil {
		out.Properties = make([]Properties, len(s.Properties))
		copy(out.Properties, s.Properties)
	}
}
