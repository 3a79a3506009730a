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
)

// DryRun checks that the environment can be created without creating
// anything: the instance type must exist in the region and an AMI must be
// resolvable.
func (c *Client) DryRun(ctx context.Context) error {
	supported, err := c.instanceTypeSupported(ctx, c.Spec.Instance.Type)
	if err != nil {
		return fmt.Errorf("failed to list instance types: %w", err)
	}
	if !supported {
		return fmt.Errorf("instance type %s is not supported in the region", c.Spec.Instance.Type)
	}

	if _, err := c.resolveImage(ctx); err != nil {
		return fmt.Errorf("failed to resolve AMI: %w", err)
	}
	return nil
}

func (c *Client) instanceTypeSupported(ctx context.Context, desired string) (bool, error) {
	var token *string
	for {
		resp, err := c.ec2.DescribeInstanceTypes(ctx, &ec2.DescribeInstanceTypesInput{NextToken: token})
		if err != nil {
			return false, err
		}
		for _, it := range resp.InstanceTypes {
			if string(it.InstanceType) == desired {
				return true, nil
			}
		}
		if resp.NextToken == nil {
			return false, nil
		}
		token = resp.NextToken
	}
}
