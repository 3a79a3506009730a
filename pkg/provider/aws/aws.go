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

// Package aws provisions the EC2 host a minidev cluster runs on: one VPC,
// one subnet, one instance, reachable over SSH. Created resource IDs are
// persisted to an environment cache file so delete and status work without
// any server-side inventory.
package aws

import (
	"context"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	"github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	internalaws "github.com/NVIDIA/minidev/internal/aws"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/jyaml"
)

// Property names under which resource IDs are recorded in the environment
// cache file.
const (
	Name = "aws"

	VpcID           = "vpc-id"
	SubnetID        = "subnet-id"
	InternetGwID    = "internet-gateway-id"
	RouteTable      = "route-table-id"
	SecurityGroupID = "security-group-id"
	InstanceID      = "instance-id"
	PublicDnsName   = "public-dns-name"
)

var description = "minidev managed AWS host"

var (
	yes = true
	no  = false
	tcp = "tcp"

	sshPort     int32 = 22
	httpsPort   int32 = 443
	apiPort     int32 = 6443
	minMaxCount int32 = 1

	storageSizeGB int32 = 64
)

// resources are the created resource IDs for one environment, kept in
// memory during an operation and mirrored into the cache file.
type resources struct {
	Vpcid           string
	Subnetid        string
	InternetGwid    string
	RouteTable      string
	SecurityGroupid string
	Instanceid      string
	PublicDnsName   string
}

// Client performs the EC2 operations for one environment.
type Client struct {
	Tags      []types.Tag
	ec2       internalaws.EC2Client
	cacheFile string

	*v1alpha1.Environment
	log *logger.FunLogger
}

// Option configures a Client.
type Option func(*Client)

// WithEC2Client injects an EC2 client, used by tests to substitute a mock.
func WithEC2Client(client internalaws.EC2Client) Option {
	return func(c *Client) { c.ec2 = client }
}

// New creates an AWS client for env, persisting state to cacheFile.
func New(log *logger.FunLogger, env v1alpha1.Environment, cacheFile string, opts ...Option) (*Client, error) {
	region := env.Spec.Instance.Region
	if envRegion := os.Getenv("AWS_REGION"); envRegion != "" {
		region = envRegion
	}

	c := &Client{
		Tags: []types.Tag{
			{Key: aws.String("Name"), Value: aws.String(env.Name)},
			{Key: aws.String("Project"), Value: aws.String("minidev")},
			{Key: aws.String("Environment"), Value: aws.String(env.Spec.Cluster.Environment)},
		},
		cacheFile:   cacheFile,
		Environment: &env,
		log:         log,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.ec2 == nil {
		cfg, err := config.LoadDefaultConfig(context.TODO(), config.WithRegion(region))
		if err != nil {
			return nil, err
		}
		c.ec2 = ec2.NewFromConfig(cfg)
	}

	return c, nil
}

// Name returns the provider name.
func (c *Client) Name() string { return Name }

// cachedResources reads the recorded resource IDs back from the cache file.
func (c *Client) cachedResources() (*resources, error) {
	env, err := jyaml.UnmarshalFromFile[v1alpha1.Environment](c.cacheFile)
	if err != nil {
		return nil, err
	}

	r := &resources{}
	for _, p := range env.Status.Properties {
		switch p.Name {
		case VpcID:
			r.Vpcid = p.Value
		case SubnetID:
			r.Subnetid = p.Value
		case InternetGwID:
			r.InternetGwid = p.Value
		case RouteTable:
			r.RouteTable = p.Value
		case SecurityGroupID:
			r.SecurityGroupid = p.Value
		case InstanceID:
			r.Instanceid = p.Value
		case PublicDnsName:
			r.PublicDnsName = p.Value
		}
	}
	return r, nil
}
