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

package instances

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/yaml"

	"github.com/NVIDIA/minidev/api/minidev/v1alpha1"
	"github.com/NVIDIA/minidev/internal/logger"
	"github.com/NVIDIA/minidev/pkg/provider/aws"
)

func quietLogger() *logger.FunLogger {
	log := logger.NewLogger()
	log.Out = &bytes.Buffer{}
	return log
}

type fakeProvider struct {
	conditions []metav1.Condition
	statusErr  error
	deleteErr  error
	deleted    int
}

func (f *fakeProvider) Status(context.Context) ([]metav1.Condition, error) {
	return f.conditions, f.statusErr
}

func (f *fakeProvider) Delete(context.Context) error {
	f.deleted++
	return f.deleteErr
}

func trueCondition(condType string) []metav1.Condition {
	return []metav1.Condition{
		{Type: condType, Status: metav1.ConditionTrue, LastTransitionTime: metav1.Time{Time: time.Now()}},
	}
}

func testManager(t *testing.T, provider *fakeProvider) *Manager {
	t.Helper()
	m := NewManager(quietLogger(), t.TempDir())
	m.newProvider = func(v1alpha1.Environment, string) (providerOps, error) {
		return provider, nil
	}
	return m
}

func writeCacheFile(t *testing.T, m *Manager, id, name string) {
	t.Helper()
	env := v1alpha1.Environment{
		ObjectMeta: metav1.ObjectMeta{
			Name:   name,
			Labels: map[string]string{InstanceLabelKey: id},
		},
	}
	data, err := yaml.Marshal(env)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(m.CacheFile(id), data, 0o644))
}

func TestNewManagerDefaultsCachePath(t *testing.T) {
	m := NewManager(quietLogger(), "")
	assert.Equal(t, filepath.Join(os.Getenv("HOME"), ".cache", "minidev"), m.cachePath)

	m = NewManager(quietLogger(), "/tmp/minidev-test")
	assert.Equal(t, "/tmp/minidev-test", m.cachePath)
}

func TestGenerateInstanceID(t *testing.T) {
	m := NewManager(quietLogger(), t.TempDir())

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id, err := m.GenerateInstanceID()
		require.NoError(t, err)
		assert.Regexp(t, `^[0-9a-f]{8}$`, id)
		assert.False(t, seen[id], "duplicate ID %s", id)
		seen[id] = true
	}
}

func TestListReturnsTrackedInstances(t *testing.T) {
	provider := &fakeProvider{conditions: trueCondition(aws.ConditionAvailable)}
	m := testManager(t, provider)

	writeCacheFile(t, m, "aaaa0001", "env-one")
	writeCacheFile(t, m, "aaaa0002", "env-two")
	// Non-YAML files in the cache directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(m.cachePath, "notes.txt"), []byte("x"), 0o644))

	instances, err := m.List(context.Background())
	require.NoError(t, err)
	require.Len(t, instances, 2)

	names := []string{instances[0].Name, instances[1].Name}
	assert.ElementsMatch(t, []string{"env-one", "env-two"}, names)
	for _, instance := range instances {
		assert.Equal(t, "running", instance.Status)
	}
}

func TestListEmptyWhenCacheDirMissing(t *testing.T) {
	m := NewManager(quietLogger(), filepath.Join(t.TempDir(), "does-not-exist"))
	instances, err := m.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestGetMapsConditionsToStatus(t *testing.T) {
	tests := []struct {
		name       string
		conditions []metav1.Condition
		statusErr  error
		expected   string
	}{
		{"available is running", trueCondition(aws.ConditionAvailable), nil, "running"},
		{"terminated", trueCondition(aws.ConditionTerminated), nil, "terminated"},
		{"degraded", trueCondition(aws.ConditionDegraded), nil, "degraded"},
		{"progressing", trueCondition(aws.ConditionProgressing), nil, "progressing"},
		{"status error is unknown", nil, fmt.Errorf("throttled"), "unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := testManager(t, &fakeProvider{conditions: tc.conditions, statusErr: tc.statusErr})
			writeCacheFile(t, m, "aaaa0001", "env-one")

			instance, err := m.Get(context.Background(), "aaaa0001")
			require.NoError(t, err)
			assert.Equal(t, tc.expected, instance.Status)
			assert.Equal(t, "env-one", instance.Name)
			assert.Equal(t, "aaaa0001", instance.ID)
		})
	}
}

func TestDeleteRemovesResourcesAndCacheFile(t *testing.T) {
	provider := &fakeProvider{}
	m := testManager(t, provider)
	writeCacheFile(t, m, "aaaa0001", "env-one")

	require.NoError(t, m.Delete(context.Background(), "aaaa0001"))
	assert.Equal(t, 1, provider.deleted)
	assert.NoFileExists(t, m.CacheFile("aaaa0001"))
}

func TestDeleteKeepsCacheFileOnProviderFailure(t *testing.T) {
	provider := &fakeProvider{deleteErr: fmt.Errorf("DependencyViolation")}
	m := testManager(t, provider)
	writeCacheFile(t, m, "aaaa0001", "env-one")

	err := m.Delete(context.Background(), "aaaa0001")
	require.ErrorContains(t, err, "failed to delete AWS resources")
	assert.FileExists(t, m.CacheFile("aaaa0001"))
}
