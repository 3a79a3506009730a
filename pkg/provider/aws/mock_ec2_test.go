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

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// mockEC2 is a scripted EC2 client. Zero values answer every call with a
// plausible success; individual funcs can be overridden per test.
type mockEC2 struct {
	instanceState types.InstanceStateName

	calls []string

	describeImages        func(*ec2.DescribeImagesInput) (*ec2.DescribeImagesOutput, error)
	describeInstances     func(*ec2.DescribeInstancesInput) (*ec2.DescribeInstancesOutput, error)
	describeRouteTables   func(*ec2.DescribeRouteTablesInput) (*ec2.DescribeRouteTablesOutput, error)
	describeInstanceTypes func(*ec2.DescribeInstanceTypesInput) (*ec2.DescribeInstanceTypesOutput, error)
	terminateInstances    func(*ec2.TerminateInstancesInput) (*ec2.TerminateInstancesOutput, error)
	deleteSecurityGroup   func(*ec2.DeleteSecurityGroupInput) (*ec2.DeleteSecurityGroupOutput, error)
}

func (m *mockEC2) record(name string) {
	m.calls = append(m.calls, name)
}

func (m *mockEC2) state() types.InstanceStateName {
	if m.instanceState == "" {
		return types.InstanceStateNameRunning
	}
	return m.instanceState
}

func (m *mockEC2) CreateVpc(_ context.Context, _ *ec2.CreateVpcInput, _ ...func(*ec2.Options)) (*ec2.CreateVpcOutput, error) {
	m.record("CreateVpc")
	return &ec2.CreateVpcOutput{Vpc: &types.Vpc{VpcId: aws.String("vpc-0001")}}, nil
}

func (m *mockEC2) ModifyVpcAttribute(_ context.Context, _ *ec2.ModifyVpcAttributeInput, _ ...func(*ec2.Options)) (*ec2.ModifyVpcAttributeOutput, error) {
	m.record("ModifyVpcAttribute")
	return &ec2.ModifyVpcAttributeOutput{}, nil
}

func (m *mockEC2) DeleteVpc(_ context.Context, _ *ec2.DeleteVpcInput, _ ...func(*ec2.Options)) (*ec2.DeleteVpcOutput, error) {
	m.record("DeleteVpc")
	return &ec2.DeleteVpcOutput{}, nil
}

func (m *mockEC2) DescribeVpcs(_ context.Context, _ *ec2.DescribeVpcsInput, _ ...func(*ec2.Options)) (*ec2.DescribeVpcsOutput, error) {
	m.record("DescribeVpcs")
	return &ec2.DescribeVpcsOutput{}, nil
}

func (m *mockEC2) CreateSubnet(_ context.Context, _ *ec2.CreateSubnetInput, _ ...func(*ec2.Options)) (*ec2.CreateSubnetOutput, error) {
	m.record("CreateSubnet")
	return &ec2.CreateSubnetOutput{Subnet: &types.Subnet{SubnetId: aws.String("subnet-0001")}}, nil
}

func (m *mockEC2) DeleteSubnet(_ context.Context, _ *ec2.DeleteSubnetInput, _ ...func(*ec2.Options)) (*ec2.DeleteSubnetOutput, error) {
	m.record("DeleteSubnet")
	return &ec2.DeleteSubnetOutput{}, nil
}

func (m *mockEC2) DescribeSubnets(_ context.Context, _ *ec2.DescribeSubnetsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSubnetsOutput, error) {
	m.record("DescribeSubnets")
	return &ec2.DescribeSubnetsOutput{}, nil
}

func (m *mockEC2) CreateInternetGateway(_ context.Context, _ *ec2.CreateInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.CreateInternetGatewayOutput, error) {
	m.record("CreateInternetGateway")
	return &ec2.CreateInternetGatewayOutput{
		InternetGateway: &types.InternetGateway{InternetGatewayId: aws.String("igw-0001")},
	}, nil
}

func (m *mockEC2) AttachInternetGateway(_ context.Context, _ *ec2.AttachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.AttachInternetGatewayOutput, error) {
	m.record("AttachInternetGateway")
	return &ec2.AttachInternetGatewayOutput{}, nil
}

func (m *mockEC2) DetachInternetGateway(_ context.Context, _ *ec2.DetachInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DetachInternetGatewayOutput, error) {
	m.record("DetachInternetGateway")
	return &ec2.DetachInternetGatewayOutput{}, nil
}

func (m *mockEC2) DeleteInternetGateway(_ context.Context, _ *ec2.DeleteInternetGatewayInput, _ ...func(*ec2.Options)) (*ec2.DeleteInternetGatewayOutput, error) {
	m.record("DeleteInternetGateway")
	return &ec2.DeleteInternetGatewayOutput{}, nil
}

func (m *mockEC2) CreateRouteTable(_ context.Context, _ *ec2.CreateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteTableOutput, error) {
	m.record("CreateRouteTable")
	return &ec2.CreateRouteTableOutput{
		RouteTable: &types.RouteTable{RouteTableId: aws.String("rtb-0001")},
	}, nil
}

func (m *mockEC2) AssociateRouteTable(_ context.Context, _ *ec2.AssociateRouteTableInput, _ ...func(*ec2.Options)) (*ec2.AssociateRouteTableOutput, error) {
	m.record("AssociateRouteTable")
	return &ec2.AssociateRouteTableOutput{}, nil
}

func (m *mockEC2) CreateRoute(_ context.Context, _ *ec2.CreateRouteInput, _ ...func(*ec2.Options)) (*ec2.CreateRouteOutput, error) {
	m.record("CreateRoute")
	return &ec2.CreateRouteOutput{}, nil
}

func (m *mockEC2) DeleteRouteTable(_ context.Context, _ *ec2.DeleteRouteTableInput, _ ...func(*ec2.Options)) (*ec2.DeleteRouteTableOutput, error) {
	m.record("DeleteRouteTable")
	return &ec2.DeleteRouteTableOutput{}, nil
}

func (m *mockEC2) DescribeRouteTables(_ context.Context, params *ec2.DescribeRouteTablesInput, _ ...func(*ec2.Options)) (*ec2.DescribeRouteTablesOutput, error) {
	m.record("DescribeRouteTables")
	if m.describeRouteTables != nil {
		return m.describeRouteTables(params)
	}
	return &ec2.DescribeRouteTablesOutput{
		RouteTables: []types.RouteTable{{RouteTableId: aws.String("rtb-0001")}},
	}, nil
}

func (m *mockEC2) CreateSecurityGroup(_ context.Context, _ *ec2.CreateSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.CreateSecurityGroupOutput, error) {
	m.record("CreateSecurityGroup")
	return &ec2.CreateSecurityGroupOutput{GroupId: aws.String("sg-0001")}, nil
}

func (m *mockEC2) AuthorizeSecurityGroupIngress(_ context.Context, _ *ec2.AuthorizeSecurityGroupIngressInput, _ ...func(*ec2.Options)) (*ec2.AuthorizeSecurityGroupIngressOutput, error) {
	m.record("AuthorizeSecurityGroupIngress")
	return &ec2.AuthorizeSecurityGroupIngressOutput{}, nil
}

func (m *mockEC2) DeleteSecurityGroup(_ context.Context, params *ec2.DeleteSecurityGroupInput, _ ...func(*ec2.Options)) (*ec2.DeleteSecurityGroupOutput, error) {
	m.record("DeleteSecurityGroup")
	if m.deleteSecurityGroup != nil {
		return m.deleteSecurityGroup(params)
	}
	return &ec2.DeleteSecurityGroupOutput{}, nil
}

func (m *mockEC2) DescribeSecurityGroups(_ context.Context, _ *ec2.DescribeSecurityGroupsInput, _ ...func(*ec2.Options)) (*ec2.DescribeSecurityGroupsOutput, error) {
	m.record("DescribeSecurityGroups")
	return &ec2.DescribeSecurityGroupsOutput{}, nil
}

func (m *mockEC2) RunInstances(_ context.Context, _ *ec2.RunInstancesInput, _ ...func(*ec2.Options)) (*ec2.RunInstancesOutput, error) {
	m.record("RunInstances")
	return &ec2.RunInstancesOutput{
		Instances: []types.Instance{{InstanceId: aws.String("i-0001")}},
	}, nil
}

func (m *mockEC2) TerminateInstances(_ context.Context, params *ec2.TerminateInstancesInput, _ ...func(*ec2.Options)) (*ec2.TerminateInstancesOutput, error) {
	m.record("TerminateInstances")
	if m.terminateInstances != nil {
		return m.terminateInstances(params)
	}
	m.instanceState = types.InstanceStateNameTerminated
	return &ec2.TerminateInstancesOutput{}, nil
}

func (m *mockEC2) DescribeInstances(_ context.Context, params *ec2.DescribeInstancesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstancesOutput, error) {
	m.record("DescribeInstances")
	if m.describeInstances != nil {
		return m.describeInstances(params)
	}
	return &ec2.DescribeInstancesOutput{
		Reservations: []types.Reservation{
			{
				Instances: []types.Instance{
					{
						InstanceId:    aws.String("i-0001"),
						PublicDnsName: aws.String("ec2-198-51-100-1.compute-1.amazonaws.com"),
						State:         &types.InstanceState{Name: m.state()},
					},
				},
			},
		},
	}, nil
}

func (m *mockEC2) DescribeInstanceTypes(_ context.Context, params *ec2.DescribeInstanceTypesInput, _ ...func(*ec2.Options)) (*ec2.DescribeInstanceTypesOutput, error) {
	m.record("DescribeInstanceTypes")
	if m.describeInstanceTypes != nil {
		return m.describeInstanceTypes(params)
	}
	return &ec2.DescribeInstanceTypesOutput{
		InstanceTypes: []types.InstanceTypeInfo{
			{InstanceType: types.InstanceTypeG4dnXlarge},
			{InstanceType: types.InstanceTypeT3Large},
		},
	}, nil
}

func (m *mockEC2) DescribeImages(_ context.Context, params *ec2.DescribeImagesInput, _ ...func(*ec2.Options)) (*ec2.DescribeImagesOutput, error) {
	m.record("DescribeImages")
	if m.describeImages != nil {
		return m.describeImages(params)
	}
	return &ec2.DescribeImagesOutput{
		Images: []types.Image{
			{ImageId: aws.String("ami-old"), CreationDate: aws.String("2024-01-01T00:00:00.000Z")},
			{ImageId: aws.String("ami-new"), CreationDate: aws.String("2025-06-01T00:00:00.000Z")},
		},
	}, nil
}

func (m *mockEC2) CreateTags(_ context.Context, _ *ec2.CreateTagsInput, _ ...func(*ec2.Options)) (*ec2.CreateTagsOutput, error) {
	m.record("CreateTags")
	return &ec2.CreateTagsOutput{}, nil
}
