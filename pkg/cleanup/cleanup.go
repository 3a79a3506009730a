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

// Package cleanup sweeps AWS resources that minidev created but lost track
// of, for example when a cache file was deleted or a create was killed
// half-way. Resources are found by the Project tag, never by ID from a
// cache file.
package cleanup

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/retry"
)

// projectTag marks every resource minidev creates.
const projectTag = "minidev"

var sweepRetry = retry.Config{
	MaxAttempts:    5,
	InitialBackoff: 5 * time.Second,
	MaxBackoff:     30 * time.Second,
}

// ec2API is the EC2 surface the sweeper needs; *ec2.Client satisfies it.
type ec2API interface {
	DescribeVpcs(ctx context.Context, params *ec2.DescribeVpcsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error)
	DescribeInstances(ctx context.Context, params *ec2.DescribeInstancesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error)
	DescribeSubnets(ctx context.Context, params *ec2.DescribeSubnetsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error)
	DescribeRouteTables(ctx context.Context, params *ec2.DescribeRouteTablesInput, optFns ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error)
	DescribeSecurityGroups(ctx context.Context, params *ec2.DescribeSecurityGroupsInput, optFns ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error)
	DescribeInternetGateways(ctx context.Context, params *ec2.DescribeInternetGatewaysInput, optFns ...func(*ec2.Options)) (*ec2.DescribeInternetGatewaysOutput, error)
	TerminateInstances(ctx context.Context, params *ec2.TerminateInstancesInput, optFns ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error)
	DeleteSecurityGroup(ctx context.Context, params *ec2.DeleteSecurityGroupInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error)
	DeleteSubnet(ctx context.Context, params *ec2.DeleteSubnetInput, optFns ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error)
	DeleteRouteTable(ctx context.Context, params *ec2.DeleteRouteTableInput, optFns ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error)
	DetachInternetGateway(ctx context.Context, params *ec2.DetachInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error)
	DeleteInternetGateway(ctx context.Context, params *ec2.DeleteInternetGatewayInput, optFns ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error)
	DeleteVpc(ctx context.Context, params *ec2.DeleteVpcInput, optFns ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error)
}

// Cleaner finds and deletes tagged resources.
type Cleaner struct {
	ec2 ec2API
	log *logger.FunLogger
}

// New creates a cleaner for region.
func New(log *logger.FunLogger, region string) (*Cleaner, error) {
	cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &Cleaner{
		ec2: ec2.NewFromConfig(cfg),
		log: log,
	}, nil
}

// NewWithClient creates a cleaner over an injected client, used by tests.
func NewWithClient(log *logger.FunLogger, client ec2API) *Cleaner {
	return &Cleaner{ec2: client, log: log}
}

// FindProjectVPCs returns the IDs of all VPCs carrying the project tag.
func (c *Cleaner) FindProjectVPCs(ctx context.Context) ([]string, error) {
	out, err := c.ec2.DescribeVpcs(ctx, &ec2.DescribeVpcsInput{
		Filters: []types.Filter{
			{Name: aws.String("tag:Project"), Values: []string{projectTag}},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list project VPCs: %w", err)
	}

	var ids []string
	for _, vpc := range out.Vpcs {
		if vpc.VpcId != nil {
			ids = append(ids, *vpc.VpcId)
		}
	}
	return ids, nil
}

// SweepAll sweeps every project-tagged VPC.
func (c *Cleaner) SweepAll(ctx context.Context) error {
	vpcs, err := c.FindProjectVPCs(ctx)
	if err != nil {
		return err
	}
	if len(vpcs) == 0 {
		c.log.Info("No project VPCs found, nothing to sweep")
		return nil
	}

	for _, vpcID := range vpcs {
		if err := c.Sweep(ctx, vpcID); err != nil {
			return fmt.Errorf("failed to sweep %s: %w", vpcID, err)
		}
	}
	return nil
}

// Sweep deletes everything inside vpcID and then the VPC itself, in the
// same order a tracked delete uses: instances, security groups, subnets,
// route tables, internet gateways, VPC.
func (c *Cleaner) Sweep(ctx context.Context, vpcID string) error {
	c.log.Info("Sweeping VPC %s", vpcID)

	if err := c.terminateInstances(ctx, vpcID); err != nil {
		return err
	}
	if err := c.deleteSecurityGroups(ctx, vpcID); err != nil {
		return err
	}
	if err := c.deleteSubnets(ctx, vpcID); err != nil {
		return err
	}
	if err := c.deleteRouteTables(ctx, vpcID); err != nil {
		return err
	}
	if err := c.deleteInternetGateways(ctx, vpcID); err != nil {
		return err
	}

	err := retry.Do(ctx, sweepRetry, func() error {
		_, err := c.ec2.DeleteVpc(ctx, &ec2.DeleteVpcInput{VpcId: &vpcID})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete VPC %s: %w", vpcID, err)
	}
	c.log.Check("VPC %s swept", vpcID)
	return nil
}

func vpcFilter(vpcID string) []types.Filter {
	return []types.Filter{
		{Name: aws.String("vpc-id"), Values: []string{vpcID}},
	}
}

func (c *Cleaner) terminateInstances(ctx context.Context, vpcID string) error {
	out, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		Filters: append(vpcFilter(vpcID), types.Filter{
			Name:   aws.String("instance-state-name"),
			Values: []string{"pending", "running", "stopping", "stopped"},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to list instances in %s: %w", vpcID, err)
	}

	var ids []string
	for _, reservation := range out.Reservations {
		for _, instance := range reservation.Instances {
			if instance.InstanceId != nil {
				ids = append(ids, *instance.InstanceId)
			}
		}
	}
	if len(ids) == 0 {
		return nil
	}

	c.log.Info("Terminating %d instance(s) in %s", len(ids), vpcID)
	if _, err := c.ec2.TerminateInstances(ctx, &ec2.TerminateInstancesInput{InstanceIds: ids}); err != nil {
		return fmt.Errorf("failed to terminate instances: %w", err)
	}

	waiter := ec2.NewInstanceTerminatedWaiter(c.ec2)
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{InstanceIds: ids}, 15*time.Minute); err != nil {
		return fmt.Errorf("instances in %s did not terminate: %w", vpcID, err)
	}
	return nil
}

func (c *Cleaner) deleteSecurityGroups(ctx context.Context, vpcID string) error {
	out, err := c.ec2.DescribeSecurityGroups(ctx, &ec2.DescribeSecurityGroupsInput{
		Filters: vpcFilter(vpcID),
	})
	if err != nil {
		return fmt.Errorf("failed to list security groups in %s: %w", vpcID, err)
	}

	for _, sg := range out.SecurityGroups {
		// The VPC default group cannot be deleted; it goes with the VPC.
		if sg.GroupName != nil && *sg.GroupName == "default" {
			continue
		}
		groupID := sg.GroupId
		err := retry.Do(ctx, sweepRetry, func() error {
			_, err := c.ec2.DeleteSecurityGroup(ctx, &ec2.DeleteSecurityGroupInput{GroupId: groupID})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete security group %s: %w", aws.ToString(groupID), err)
		}
	}
	return nil
}

func (c *Cleaner) deleteSubnets(ctx context.Context, vpcID string) error {
	out, err := c.ec2.DescribeSubnets(ctx, &ec2.DescribeSubnetsInput{
		Filters: vpcFilter(vpcID),
	})
	if err != nil {
		return fmt.Errorf("failed to list subnets in %s: %w", vpcID, err)
	}

	for _, subnet := range out.Subnets {
		subnetID := subnet.SubnetId
		err := retry.Do(ctx, sweepRetry, func() error {
			_, err := c.ec2.DeleteSubnet(ctx, &ec2.DeleteSubnetInput{SubnetId: subnetID})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete subnet %s: %w", aws.ToString(subnetID), err)
		}
	}
	return nil
}

func (c *Cleaner) deleteRouteTables(ctx context.Context, vpcID string) error {
	out, err := c.ec2.DescribeRouteTables(ctx, &ec2.DescribeRouteTablesInput{
		Filters: vpcFilter(vpcID),
	})
	if err != nil {
		return fmt.Errorf("failed to list route tables in %s: %w", vpcID, err)
	}

	for _, rt := range out.RouteTables {
		if isMain(rt) {
			continue
		}
		rtID := rt.RouteTableId
		err := retry.Do(ctx, sweepRetry, func() error {
			_, err := c.ec2.DeleteRouteTable(ctx, &ec2.DeleteRouteTableInput{RouteTableId: rtID})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete route table %s: %w", aws.ToString(rtID), err)
		}
	}
	return nil
}

func (c *Cleaner) deleteInternetGateways(ctx context.Context, vpcID string) error {
	out, err := c.ec2.DescribeInternetGateways(ctx, &ec2.DescribeInternetGatewaysInput{
		Filters: []types.Filter{
			{Name: aws.String("attachment.vpc-id"), Values: []string{vpcID}},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to list internet gateways for %s: %w", vpcID, err)
	}

	for _, igw := range out.InternetGateways {
		igwID := igw.InternetGatewayId
		err := retry.Do(ctx, sweepRetry, func() error {
			_, err := c.ec2.DetachInternetGateway(ctx, &ec2.DetachInternetGatewayInput{
				InternetGatewayId: igwID,
				VpcId:             &vpcID,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to detach internet gateway %s: %w", aws.ToString(igwID), err)
		}

		err = retry.Do(ctx, sweepRetry, func() error {
			_, err := c.ec2.DeleteInternetGateway(ctx, &ec2.DeleteInternetGatewayInput{
				InternetGatewayId: igwID,
			})
			return err
		})
		if err != nil {
			return fmt.Errorf("failed to delete internet gateway %s: %w", aws.ToString(igwID), err)
		}
	}
	return nil
}

func isMain(rt types.RouteTable) bool {
	for _, assoc := range rt.Associations {
		if assoc.Main != nil && *assoc.Main {
			return true
		}
	}
	return false
}
