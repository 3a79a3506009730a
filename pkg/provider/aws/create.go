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
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"
)

// Create provisions the network path and the EC2 instance: VPC, subnet,
// internet gateway, route table, security group, instance. Progress is
// recorded in the cache file after every step so a partial create can be
// deleted.
func (c *Client) Create(ctx context.Context) error {
	r := new(resources)

	c.updateProgressingCondition(*c.Environment.DeepCopy(), r, "Creating", "Creating AWS resources") // nolint:errcheck,gosec

	steps := []struct {
		name string
		fn   func(context.Context, *resources) error
	}{
		{"VPC", c.createVPC},
		{"subnet", c.createSubnet},
		{"internet gateway", c.createInternetGateway},
		{"route table", c.createRouteTable},
		{"security group", c.createSecurityGroup},
		{"EC2 instance", c.createInstance},
	}
	for _, step := range steps {
		if err := step.fn(ctx, r); err != nil {
			c.updateDegradedCondition(*c.Environment.DeepCopy(), r, "Creating", "Error creating "+step.name) // nolint:errcheck,gosec
			return fmt.Errorf("error creating %s: %w", step.name, err)
		}
		c.updateProgressingCondition(*c.Environment.DeepCopy(), r, "Creating", step.name+" created") // nolint:errcheck,gosec
	}

	if err := c.updateAvailableCondition(*c.Environment, r); err != nil {
		return fmt.Errorf("error writing cache file: %w", err)
	}
	return nil
}

func (c *Client) createVPC(ctx context.Context, r *resources) error {
	c.log.Info("Creating VPC")

	vpcOutput, err := c.ec2.CreateVpc(ctx, &ec2.CreateVpcInput{
		CidrBlock:                   aws.String("10.0.0.0/16"),
		AmazonProvidedIpv6CidrBlock: &no,
		InstanceTenancy:             types.TenancyDefault,
		TagSpecifications: []types.TagSpecification{
			{ResourceType: types.ResourceTypeVpc, Tags: c.Tags},
		},
	})
	if err != nil {
		return err
	}
	r.Vpcid = *vpcOutput.Vpc.VpcId

	_, err = c.ec2.ModifyVpcAttribute(ctx, &ec2.ModifyVpcAttributeInput{
		VpcId:              vpcOutput.Vpc.VpcId,
		EnableDnsHostnames: &types.AttributeBooleanValue{Value: &yes},
	})
	if err != nil {
		return fmt.Errorf("error modifying VPC attributes: %w", err)
	}
	return nil
}

func (c *Client) createSubnet(ctx context.Context, r *resources) error {
	c.log.Info("Creating subnet")

	subnetOutput, err := c.ec2.CreateSubnet(ctx, &ec2.CreateSubnetInput{
		VpcId:     aws.String(r.Vpcid),
		CidrBlock: aws.String("10.0.0.0/24"),
		TagSpecifications: []types.TagSpecification{
			{ResourceType: types.ResourceTypeSubnet, Tags: c.Tags},
		},
	})
	if err != nil {
		return err
	}
	r.Subnetid = *subnetOutput.Subnet.SubnetId
	return nil
}

func (c *Client) createInternetGateway(ctx context.Context, r *resources) error {
	c.log.Info("Creating internet gateway")

	gwOutput, err := c.ec2.CreateInternetGateway(ctx, &ec2.CreateInternetGatewayInput{
		TagSpecifications: []types.TagSpecification{
			{ResourceType: types.ResourceTypeInternetGateway, Tags: c.Tags},
		},
	})
	if err != nil {
		return err
	}
	r.InternetGwid = *gwOutput.InternetGateway.InternetGatewayId

	_, err = c.ec2.AttachInternetGateway(ctx, &ec2.AttachInternetGatewayInput{
		VpcId:             aws.String(r.Vpcid),
		InternetGatewayId: gwOutput.InternetGateway.InternetGatewayId,
	})
	if err != nil {
		return fmt.Errorf("error attaching internet gateway: %w", err)
	}
	return nil
}

func (c *Client) createRouteTable(ctx context.Context, r *resources) error {
	c.log.Info("Creating route table")

	rtOutput, err := c.ec2.CreateRouteTable(ctx, &ec2.CreateRouteTableInput{
		VpcId: aws.String(r.Vpcid),
		TagSpecifications: []types.TagSpecification{
			{ResourceType: types.ResourceTypeRouteTable, Tags: c.Tags},
		},
	})
	if err != nil {
		return err
	}
	r.RouteTable = *rtOutput.RouteTable.RouteTableId

	_, err = c.ec2.AssociateRouteTable(ctx, &ec2.AssociateRouteTableInput{
		RouteTableId: rtOutput.RouteTable.RouteTableId,
		SubnetId:     aws.String(r.Subnetid),
	})
	if err != nil {
		return fmt.Errorf("error associating route table: %w", err)
	}

	_, err = c.ec2.CreateRoute(ctx, &ec2.CreateRouteInput{
		RouteTableId:         rtOutput.RouteTable.RouteTableId,
		DestinationCidrBlock: aws.String("0.0.0.0/0"),
		GatewayId:            aws.String(r.InternetGwid),
	})
	if err != nil {
		return fmt.Errorf("error creating default route: %w", err)
	}
	return nil
}

// createSecurityGroup opens SSH plus the two ports the cluster is reached
// on from the configured ingress ranges only.
func (c *Client) createSecurityGroup(ctx context.Context, r *resources) error {
	c.log.Info("Creating security group")

	sgOutput, err := c.ec2.CreateSecurityGroup(ctx, &ec2.CreateSecurityGroupInput{
		GroupName:   &c.ObjectMeta.Name,
		Description: &description,
		VpcId:       aws.String(r.Vpcid),
		TagSpecifications: []types.TagSpecification{
			{ResourceType: types.ResourceTypeSecurityGroup, Tags: c.Tags},
		},
	})
	if err != nil {
		return err
	}
	r.SecurityGroupid = *sgOutput.GroupId

	ipRanges := []types.IpRange{}
	for _, ip := range c.Spec.Instance.IngressIPRanges {
		ipRanges = append(ipRanges, types.IpRange{CidrIp: aws.String(ip)})
	}
	if len(ipRanges) == 0 {
		ipRanges = append(ipRanges, types.IpRange{CidrIp: aws.String("0.0.0.0/0")})
		c.log.Warning("no ingress ranges configured, opening to 0.0.0.0/0")
	}

	permissions := []types.IpPermission{}
	for _, port := range []int32{sshPort, httpsPort, apiPort} {
		p := port
		permissions = append(permissions, types.IpPermission{
			FromPort:   &p,
			ToPort:     &p,
			IpProtocol: &tcp,
			IpRanges:   ipRanges,
		})
	}

	_, err = c.ec2.AuthorizeSecurityGroupIngress(ctx, &ec2.AuthorizeSecurityGroupIngressInput{
		GroupId:       sgOutput.GroupId,
		IpPermissions: permissions,
	})
	if err != nil {
		return fmt.Errorf("error authorizing security group ingress: %w", err)
	}
	return nil
}

func (c *Client) createInstance(ctx context.Context, r *resources) error {
	c.log.Info("Creating EC2 instance")

	imageID, err := c.resolveImage(ctx)
	if err != nil {
		return fmt.Errorf("error resolving AMI: %w", err)
	}

	instanceOut, err := c.ec2.RunInstances(ctx, &ec2.RunInstancesInput{
		ImageId:                           aws.String(imageID),
		InstanceType:                      types.InstanceType(c.Spec.Instance.Type),
		MaxCount:                          &minMaxCount,
		MinCount:                          &minMaxCount,
		InstanceInitiatedShutdownBehavior: types.ShutdownBehaviorTerminate,
		BlockDeviceMappings: []types.BlockDeviceMapping{
			{
				DeviceName: aws.String("/dev/sda1"),
				Ebs: &types.EbsBlockDevice{
					VolumeSize: &storageSizeGB,
					VolumeType: types.VolumeTypeGp3,
				},
			},
		},
		NetworkInterfaces: []types.InstanceNetworkInterfaceSpecification{
			{
				AssociatePublicIpAddress: &yes,
				DeleteOnTermination:      &yes,
				DeviceIndex:              aws.Int32(0),
				Groups:                   []string{r.SecurityGroupid},
				SubnetId:                 aws.String(r.Subnetid),
			},
		},
		KeyName: aws.String(c.Spec.Auth.KeyName),
		TagSpecifications: []types.TagSpecification{
			{ResourceType: types.ResourceTypeInstance, Tags: c.Tags},
		},
	})
	if err != nil {
		return err
	}
	r.Instanceid = *instanceOut.Instances[0].InstanceId

	waiter := ec2.NewInstanceRunningWaiter(c.ec2, func(o *ec2.InstanceRunningWaiterOptions) {
		o.MinDelay = 5 * time.Second
		o.MaxDelay = 1 * time.Minute
	})
	if err := waiter.Wait(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{r.Instanceid},
	}, 5*time.Minute); err != nil {
		return fmt.Errorf("error waiting for instance to run: %w", err)
	}

	running, err := c.ec2.DescribeInstances(ctx, &ec2.DescribeInstancesInput{
		InstanceIds: []string{r.Instanceid},
	})
	if err != nil {
		return fmt.Errorf("error describing instance: %w", err)
	}
	r.PublicDnsName = *running.Reservations[0].Instances[0].PublicDnsName

	c.log.Check("Instance %s running at %s", r.Instanceid, r.PublicDnsName)
	return nil
}
