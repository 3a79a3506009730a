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
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ec2"

	"github.com/NVIDIA/minidev/pkg/retry"
)

const terminationTimeout = 15 * time.Minute

// deleteRetry is the retry policy for teardown calls. Dependency
// violations resolve themselves as earlier deletions propagate, so they
// are worth retrying.
var deleteRetry = retry.Config{
	MaxAttempts:    5,
	InitialBackoff: 5 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// Delete tears the environment down in reverse creation order. Resources
// already gone are treated as deleted, so Delete can be re-run after a
// partial failure.
func (c *Client) Delete(ctx context.Context) error {
	r, err := c.cachedResources()
	if err != nil {
		return fmt.Errorf("error reading cache file: %w", err)
	}

	if err := c.terminateInstance(ctx, r); err != nil {
		c.updateDegradedCondition(*c.Environment.DeepCopy(), r, "Destroying", "Error terminating EC2 instance") // nolint:errcheck,gosec
		return fmt.Errorf("failed to terminate EC2 instance: %w", err)
	}
	if err := c.deleteSecurityGroup(ctx, r); err != nil {
		return fmt.Errorf("failed to delete security group: %w", err)
	}
	if err := c.deleteNetwork(ctx, r); err != nil {
		return fmt.Errorf("failed to delete VPC resources: %w", err)
	}

	return c.updateTerminatedCondition(*c.Environment, r)
}

func (c *Client) terminateInstance(ctx context.Context, r *resources) error {
	if r.Instanceid == "" {
		c.log.Info("No EC2 instance to terminate")
		return nil
	}

	c.updateProgressingCondition(*c.Environment.DeepCopy(), r, "Destroying", "Terminating EC2 instance") // nolint:errcheck,gosec

	gone := false
	err := retry.Do(ctx, deleteRetry, func() error {
		_, err := c.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{
			InstanceIds: []string{r.Instanceid},
		})
		if isNotFound(err, "InvalidInstanceID.NotFound") {
			c.log.Info("Instance %s already terminated", r.Instanceid)
			gone = true
			return nil
		}
		return err
	})
	if err != nil {
		return err
	}
	if gone {
		return nil
	}

	waiter := ec2.NewInstanceTerminatedWaiter(c.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{r.Instanceid},
	}, terminationTimeout); err != nil {
		return fmt.Errorf("error waiting for instance %s to terminate: %w", r.Instanceid, err)
	}

	c.log.Check("Instance %s terminated", r.Instanceid)
	return nil
}

func (c *Client) deleteSecurityGroup(ctx context.Context, r *resources) error {
	if r.SecurityGroupid == "" {
		return nil
	}

	err := retry.Do(ctx, deleteRetry, func() error {
		_, err := c.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{
			GroupId: &r.SecurityGroupid,
		})
		if isNotFound(err, "InvalidGroup.NotFound") {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("error deleting security group %s: %w", r.SecurityGroupid, err)
	}
	c.log.Check("Security group %s deleted", r.SecurityGroupid)
	return nil
}

func (c *Client) deleteNetwork(ctx context.Context, r *resources) error {
	c.updateProgressingCondition(*c.Environment.DeepCopy(), r, "Destroying", "Deleting VPC resources") // nolint:errcheck,gosec

	if r.Subnetid != "" {
		err := retry.Do(ctx, deleteRetry, func() error {
			_, err := c.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: &r.Subnetid})
			if isNotFound(err, "InvalidSubnetID.NotFound") {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("error deleting subnet %s: %w", r.Subnetid, err)
		}
	}

	if r.RouteTable != "" {
		main, err := c.isMainRouteTable(ctx, r.RouteTable)
		if err != nil {
			c.log.Warning("could not determine whether %s is the main route table: %v", r.RouteTable, err)
		}
		if !main {
			err := retry.Do(ctx, deleteRetry, func() error {
				_, err := c.ec2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: &r.RouteTable})
				if isNotFound(err, "InvalidRouteTableID.NotFound") {
					return nil
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("error deleting route table %s: %w", r.RouteTable, err)
			}
		}
	}

	if r.InternetGwid != "" {
		if r.Vpcid != "" {
			err := retry.Do(ctx, deleteRetry, func() error {
				_, err := c.ec2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
					InternetGatewayId: &r.InternetGwid,
					VpcId:             &r.Vpcid,
				})
				if isNotFound(err, "Gateway.NotAttached") {
					return nil
				}
				return err
			})
			if err != nil {
				return fmt.Errorf("error detaching internet gateway %s: %w", r.InternetGwid, err)
			}
		}
		err := retry.Do(ctx, deleteRetry, func() error {
			_, err := c.ec2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
				InternetGatewayId: &r.InternetGwid,
			})
			if isNotFound(err, "InvalidInternetGatewayID.NotFound") {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("error deleting internet gateway %s: %w", r.InternetGwid, err)
		}
	}

	if r.Vpcid != "" {
		err := retry.Do(ctx, deleteRetry, func() error {
			_, err := c.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &r.Vpcid})
			if isNotFound(err, "InvalidVpcID.NotFound") {
				return nil
			}
			return err
		})
		if err != nil {
			return fmt.Errorf("error deleting VPC %s: %w", r.Vpcid, err)
		}
		c.log.Check("VPC %s deleted", r.Vpcid)
	}

	return nil
}

func (c *Client) isMainRouteTable(ctx context.Context, rtID string) (bool, error) {
	result, err := c.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		RouteTableIds: []string{rtID},
	})
	if err != nil {
		return false, err
	}
	for _, rt := range result.RouteTables {
		for _, assoc := range rt.Associations {
			if assoc.Main != nil && *assoc.Main {
				return true, nil
			}
		}
	}
	return false, nil
}

// isNotFound reports whether err is the named already-gone error code.
func isNotFound(err error, code string) bool {
	return err != nil && strings.Contains(err.Error(), code)
}
