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

package deploy

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sfake "k8s.io/client-go/kubernetes/fake"

	"github.com/NVIDIA/minidev/internal/logger"
)

func quietLogger() *logger.FunLogger {
	log := logger.NewLogger()
	log.Out = &bytes.Buffer{}
	return log
}

func testDeployer(client *k8sfake.Clientset) *Deployer {
	return New(quietLogger(), client, WithRolloutPoll(time.Millisecond, 100*time.Millisecond))
}

func TestApplyCreatesWorkload(t *testing.T) {
	client := k8sfake.NewSimpleClientset()
	d := testDeployer(client)

	require.NoError(t, d.Apply(context.Background()))

	deployment, err := client.AppsV1().Deployments(corev1.NamespaceDefault).Get(context.Background(), AppName, metav1.GetOptions{})
	require.NoError(t, err)
	require.Len(t, deployment.Spec.Template.Spec.Containers, 1)
	container := deployment.Spec.Template.Spec.Containers[0]
	assert.Equal(t, DefaultImage, container.Image)
	require.NotNil(t, container.ReadinessProbe)
	assert.Equal(t, "/health", container.ReadinessProbe.HTTPGet.Path)

	service, err := client.CoreV1().Services(corev1.NamespaceDefault).Get(context.Background(), AppName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, corev1.ServiceTypeNodePort, service.Spec.Type)
	require.Len(t, service.Spec.Ports, 1)
	assert.Equal(t, d.NodePort(), service.Spec.Ports[0].NodePort)
}

func TestApplyIsIdempotent(t *testing.T) {
	client := k8sfake.NewSimpleClientset()
	d := testDeployer(client)

	require.NoError(t, d.Apply(context.Background()))

	// A second apply with a new image updates in place.
	d.image = "ghcr.io/nvidia/minidev/ip-echo:v2"
	require.NoError(t, d.Apply(context.Background()))

	deployment, err := client.AppsV1().Deployments(corev1.NamespaceDefault).Get(context.Background(), AppName, metav1.GetOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ghcr.io/nvidia/minidev/ip-echo:v2", deployment.Spec.Template.Spec.Containers[0].Image)
}

func TestWaitRollout(t *testing.T) {
	t.Run("ready deployment passes", func(t *testing.T) {
		client := k8sfake.NewSimpleClientset()
		d := testDeployer(client)
		require.NoError(t, d.Apply(context.Background()))

		deployment, err := client.AppsV1().Deployments(corev1.NamespaceDefault).Get(context.Background(), AppName, metav1.GetOptions{})
		require.NoError(t, err)
		deployment.Status.ReadyReplicas = 1
		deployment.Status.ObservedGeneration = deployment.Generation
		_, err = client.AppsV1().Deployments(corev1.NamespaceDefault).UpdateStatus(context.Background(), deployment, metav1.UpdateOptions{})
		require.NoError(t, err)

		require.NoError(t, d.WaitRollout(context.Background()))
	})

	t.Run("never-ready deployment times out", func(t *testing.T) {
		client := k8sfake.NewSimpleClientset()
		d := testDeployer(client)
		require.NoError(t, d.Apply(context.Background()))

		err := d.WaitRollout(context.Background())
		require.ErrorContains(t, err, "did not become ready")
	})
}

func TestSmokeTest(t *testing.T) {
	t.Run("healthy endpoint passes", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"status": "healthy", "service": "ip-reverse-app"}`))
				return
			}
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		d := testDeployer(k8sfake.NewSimpleClientset())
		require.NoError(t, d.SmokeTest(context.Background(), server.URL))
	})

	t.Run("non-200 fails", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		d := testDeployer(k8sfake.NewSimpleClientset())
		err := d.SmokeTest(context.Background(), server.URL)
		require.ErrorContains(t, err, "returned 503")
	})

	t.Run("unreachable host fails", func(t *testing.T) {
		d := testDeployer(k8sfake.NewSimpleClientset())
		err := d.SmokeTest(context.Background(), "http://127.0.0.1:1")
		require.ErrorContains(t, err, "health probe failed")
	})
}
