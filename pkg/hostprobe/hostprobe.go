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

// Package hostprobe takes a read-only snapshot of the machine the
// bootstrapper runs on: total memory, logical CPUs and, when the instance
// metadata service answers, the instance's network identity.
package hostprobe

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/ec2/imds"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/retry"
)

const (
	metadataAttempts = 3
	metadataBackoff  = 2 * time.Second
	metadataTimeout  = 5 * time.Second
)

// MetadataClient is the subset of the IMDS client the prober uses.
type MetadataClient interface {
	GetMetadata(ctx context.Context, params *imds.GetMetadataInput, optFns ...func(*imds.Options)) (*imds.GetMetadataOutput, error)
}

// Prober reads host capacity and cloud metadata. It performs no writes.
type Prober struct {
	log      *logger.FunLogger
	metadata MetadataClient

	// meminfoPath is overridable for tests.
	meminfoPath string
	// numCPU is overridable for tests.
	numCPU func() int
	// backoff is the metadata retry backoff, shortened in tests.
	backoff time.Duration
}

// Option configures a Prober.
type Option func(*Prober)

// WithMetadataClient injects a custom IMDS client, primarily for tests.
func WithMetadataClient(client MetadataClient) Option {
	return func(p *Prober) {
		p.metadata = client
	}
}

// WithMeminfoPath overrides the meminfo location, primarily for tests.
func WithMeminfoPath(path string) Option {
	return func(p *Prober) {
		p.meminfoPath = path
	}
}

// WithNumCPU overrides the CPU counter, primarily for tests.
func WithNumCPU(fn func() int) Option {
	return func(p *Prober) {
		p.numCPU = fn
	}
}

// WithRetryBackoff overrides the metadata retry backoff, primarily for
// tests.
func WithRetryBackoff(d time.Duration) Option {
	return func(p *Prober) {
		p.backoff = d
	}
}

// New creates a Prober. Without options it talks to the real IMDS endpoint
// and reads /proc/meminfo.
func New(log *logger.FunLogger, opts ...Option) *Prober {
	p := &Prober{
		log:         log,
		metadata:    imds.New(imds.Options{}),
		meminfoPath: "/proc/meminfo",
		numCPU:      runtime.NumCPU,
		backoff:     metadataBackoff,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe returns a fresh HostCapacity snapshot. Memory and CPU failures are
// fatal; metadata failures degrade to the "unknown" sentinel because the
// metadata service may simply not be reachable yet after boot, and the
// bootstrap can proceed without network identity.
func (p *Prober) Probe(ctx context.Context) (v1alpha1.HostCapacity, error) {
	capacity := v1alpha1.HostCapacity{
		InstanceType: v1alpha1.MetadataUnknown,
		PublicIPv4:   v1alpha1.MetadataUnknown,
		PrivateIPv4:  v1alpha1.MetadataUnknown,
	}

	memMB, err := totalMemoryMB(p.meminfoPath)
	if err != nil {
		return capacity, fmt.Errorf("failed to read total memory: %w", err)
	}
	capacity.TotalMemoryMB = memMB
	capacity.CPUs = p.numCPU()

	capacity.InstanceType = p.metadataValue(ctx, "instance-type")
	capacity.PublicIPv4 = p.metadataValue(ctx, "public-ipv4")
	capacity.PrivateIPv4 = p.metadataValue(ctx, "local-ipv4")

	p.log.Debug("host capacity: %d MB memory, %d CPUs, instance type %s",
		capacity.TotalMemoryMB, capacity.CPUs, capacity.InstanceType)

	return capacity, nil
}

// metadataValue fetches a single metadata path with bounded retries and
// returns the "unknown" sentinel on exhaustion.
func (p *Prober) metadataValue(ctx context.Context, path string) string {
	cfg := retry.Config{
		MaxAttempts:    metadataAttempts,
		InitialBackoff: p.backoff,
	}

	value, err := retry.DoValue(ctx, cfg, func() (string, error) {
		reqCtx, cancel := context.WithTimeout(ctx, metadataTimeout)
		defer cancel()

		out, err := p.metadata.GetMetadata(reqCtx, &imds.GetMetadataInput{Path: path})
		if err != nil {
			return "", err
		}
		defer out.Content.Close() // nolint: errcheck

		data, err := io.ReadAll(out.Content)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	})
	if err != nil {
		p.log.Warning("metadata %s unavailable after %d attempts: %v", path, metadataAttempts, err)
		return v1alpha1.MetadataUnknown
	}
	return value
}

// totalMemoryMB parses MemTotal from a meminfo-format file. The total is
// used rather than "available" because available fluctuates while the
// bootstrap itself allocates.
func totalMemoryMB(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemTotal:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, fmt.Errorf("malformed MemTotal line: %q", line)
		}
		kb, err := strconv.Atoi(fields[1])
		if err != nil {
			return 0, fmt.Errorf("malformed MemTotal value: %w", err)
		}
		return kb / 1024, nil
	}
	return 0, fmt.Errorf("MemTotal not found in %s", path)
}
