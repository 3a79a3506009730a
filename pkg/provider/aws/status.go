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
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/pkg/jyaml"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// Status returns the recorded conditions, refreshed against the live
// instance state when an instance ID is recorded.
func (c *Client) Status(ctx context.Context) ([]metav1.Condition, error) {
	env, err := jyaml.UnmarshalFromFile[v1alpha1.Environment](c.cacheFile)
	if err != nil {
		return nil, fmt.Errorf("error reading cache file: %w", err)
	}

	r, err := c.cachedResources()
	if err != nil {
		return nil, err
	}
	if r.Instanceid == "" {
		return env.Status.Conditions, nil
	}

	out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{r.Instanceid},
	})
	if err != nil {
		if isNotFound(err, "InvalidInstanceID.NotFound") {
			return singleTrueCondition(ConditionTerminated, "Gone", "instance no longer exists"), nil
		}
		return nil, fmt.Errorf("error describing instance %s: %w", r.Instanceid, err)
	}

	state := "unknown"
	if len(out.Reservations) > 0 && len(out.Reservations[0].Instances) > 0 {
		if s := out.Reservations[0].Instances[0].State; s != nil {
			state = string(s.Name)
		}
	}

	switch state {
	case "running":
		return singleTrueCondition(ConditionAvailable, "Running", "instance is running"), nil
	case "terminated", "shutting-down":
		return singleTrueCondition(ConditionTerminated, "Terminated", "instance is "+state), nil
	case "pending":
		return singleTrueCondition(ConditionProgressing, "Pending", "instance is starting"), nil
	default:
		return singleTrueCondition(ConditionDegraded, "UnexpectedState", "instance is "+state), nil
	}
}

// PublicAddress returns the recorded public DNS name of the instance.
func (c *Client) PublicAddress() (string, error) {
	r, err := c.cachedResources()
	if err != nil {
		return "", err
	}
	if r.PublicDnsName == "" {
		return "", fmt.Errorf("no public address recorded for environment %s", c.Environment.Name)
	}
	return r.PublicDnsName, nil
}
