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

package aws

import (
	"os"
	"path/filepath"
	"time"

	"sigs.k8s.io/yaml"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
)

// Condition types recorded in the environment cache file.
const (
	ConditionProgressing = "Progressing"
	ConditionDegraded    = "Degraded"
	ConditionAvailable   = "Available"
	ConditionTerminated  = "Terminated"
)

// updateStatus writes the current conditions and resource IDs into the
// cache file. The cache file is the only record of what was created, so it
// is updated after every provisioning step, not just at the end.
func (c *Client) updateStatus(env v1alpha1.Environment, r *resources, conditions []metav1.Condition) error {
	envCopy := env.DeepCopy()
	if conditions != nil {
		envCopy.Status.Conditions = conditions
	}

	envCopy.Status.Properties = []v1alpha1.Properties{
		{Name: VpcID, Value: r.Vpcid},
		{Name: SubnetID, Value: r.Subnetid},
		{Name: InternetGwID, Value: r.InternetGwid},
		{Name: RouteTable, Value: r.RouteTable},
		{Name: SecurityGroupID, Value: r.SecurityGroupid},
		{Name: InstanceID, Value: r.Instanceid},
		{Name: PublicDnsName, Value: r.PublicDnsName},
	}

	data, err := yaml.Marshal(envCopy)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(c.cacheFile), 0o755); err != nil {
		return err
	}
	return os.WriteFile(c.cacheFile, data, 0o644)
}

func (c *Client) updateAvailableCondition(env v1alpha1.Environment, r *resources) error {
	return c.updateStatus(env, r, singleTrueCondition(ConditionAvailable, "", ""))
}

func (c *Client) updateTerminatedCondition(env v1alpha1.Environment, r *resources) error {
	return c.updateStatus(env, r, singleTrueCondition(ConditionTerminated, "Destroyed", "AWS resources have been terminated"))
}

func (c *Client) updateProgressingCondition(env v1alpha1.Environment, r *resources, reason, message string) error {
	return c.updateStatus(env, r, singleTrueCondition(ConditionProgressing, reason, message))
}

func (c *Client) updateDegradedCondition(env v1alpha1.Environment, r *resources, reason, message string) error {
	return c.updateStatus(env, r, singleTrueCondition(ConditionDegraded, reason, message))
}

// singleTrueCondition marks one condition true and the standard others
// false, so a reader can determine the state without ordering knowledge.
func singleTrueCondition(trueType, reason, message string) []metav1.Condition {
	now := metav1.Time{Time: time.Now()}
	conditions := []metav1.Condition{}
	for _, t := range []string{ConditionAvailable, ConditionProgressing, ConditionDegraded, ConditionTerminated} {
		cond := metav1.Condition{
			Type:               t,
			Status:             metav1.ConditionFalse,
			LastTransitionTime: now,
		}
		if t == trueType {
			cond.Status = metav1.ConditionTrue
			cond.Reason = reason
			cond.Message = message
		}
		conditions = append(conditions, cond)
	}
	return conditions
}
