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

// Package instances tracks minidev environments through their cache files.
// Each environment created on this machine leaves one YAML file under the
// cache directory; the file name is the instance ID.
package instances

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/jyaml"
	"github.com/NVIDIA/minidev/pkg/provider/aws"
)

// InstanceLabelKey labels an environment with its instance ID.
const InstanceLabelKey = "minidev-instance-id"

// Instance is one tracked environment.
type Instance struct {
	ID        string
	Name      string
	CreatedAt time.Time
	Status    string
	CacheFile string
}

// providerOps is the subset of the AWS client the manager needs, injectable
// for tests.
type providerOps interface {
	Status(ctx context.Context) ([]metav1.Condition, error)
	Delete(ctx context.Context) error
}

// Manager lists, inspects and deletes tracked environments.
type Manager struct {
	log       *logger.FunLogger
	cachePath string

	newProvider func(env v1alpha1.Environment, cacheFile string) (providerOps, error)
}

// NewManager creates a manager over cachePath. An empty cachePath selects
// the default ~/.cache/minidev.
func NewManager(log *logger.FunLogger, cachePath string) *Manager {
	if cachePath == "" {
		cachePath = filepath.Join(os.Getenv("HOME"), ".cache", "minidev")
	}
	m := &Manager{
		log:       log,
		cachePath: cachePath,
	}
	m.newProvider = func(env v1alpha1.Environment, cacheFile string) (providerOps, error) {
		return aws.New(log, env, cacheFile)
	}
	return m
}

// GenerateInstanceID returns a fresh 8 character hex ID.
func (m *Manager) GenerateInstanceID() (string, error) {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate instance ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CacheFile returns the cache file path for an instance ID.
func (m *Manager) CacheFile(instanceID string) string {
	return filepath.Join(m.cachePath, instanceID+".yaml")
}

// List returns all tracked instances, live status included.
func (m *Manager) List(ctx context.Context) ([]Instance, error) {
	files, err := os.ReadDir(m.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache directory: %w", err)
	}

	var instances []Instance
	for _, file := range files {
		if filepath.Ext(file.Name()) != ".yaml" {
			continue
		}
		instanceID := strings.TrimSuffix(file.Name(), ".yaml")

		instance, err := m.Get(ctx, instanceID)
		if err != nil {
			m.log.Warning("Skipping unreadable cache file %s: %v", file.Name(), err)
			continue
		}
		instances = append(instances, *instance)
	}
	return instances, nil
}

// Get returns one tracked instance by ID.
func (m *Manager) Get(ctx context.Context, instanceID string) (*Instance, error) {
	cacheFile := m.CacheFile(instanceID)

	env, err := jyaml.UnmarshalFromFile[v1alpha1.Environment](cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}
	info, err := os.Stat(cacheFile)
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache file: %w", err)
	}

	if id := env.Labels[InstanceLabelKey]; id != "" {
		instanceID = id
	}

	return &Instance{
		ID:        instanceID,
		Name:      env.Name,
		CreatedAt: info.ModTime(),
		Status:    m.liveStatus(ctx, env, cacheFile),
		CacheFile: cacheFile,
	}, nil
}

// Delete tears down the instance's AWS resources and removes its cache
// file.
func (m *Manager) Delete(ctx context.Context, instanceID string) error {
	cacheFile := m.CacheFile(instanceID)

	env, err := jyaml.UnmarshalFromFile[v1alpha1.Environment](cacheFile)
	if err != nil {
		return fmt.Errorf("failed to read cache file: %w", err)
	}

	client, err := m.newProvider(env, cacheFile)
	if err != nil {
		return fmt.Errorf("failed to create AWS client: %w", err)
	}
	if err := client.Delete(ctx); err != nil {
		return fmt.Errorf("failed to delete AWS resources: %w", err)
	}

	if err := os.Remove(cacheFile); err != nil {
		return fmt.Errorf("failed to remove cache file: %w", err)
	}
	return nil
}

// liveStatus maps the provider conditions to a one word status.
func (m *Manager) liveStatus(ctx context.Context, env v1alpha1.Environment, cacheFile string) string {
	client, err := m.newProvider(env, cacheFile)
	if err != nil {
		m.log.Warning("Failed to create AWS client for status check: %v", err)
		return "unknown"
	}
	conditions, err := client.Status(ctx)
	if err != nil {
		m.log.Warning("Failed to get status for %s: %v", env.Name, err)
		return "unknown"
	}

	for _, condition := range conditions {
		if condition.Status != metav1.ConditionTrue {
			continue
		}
		switch condition.Type {
		case aws.ConditionTerminated:
			return "terminated"
		case aws.ConditionDegraded:
			return "degraded"
		case aws.ConditionProgressing:
			return "progressing"
		case aws.ConditionAvailable:
			return "running"
		}
	}
	return "unknown"
}
