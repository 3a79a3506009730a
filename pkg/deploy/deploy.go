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

// Package deploy installs the ip-echo sample workload on a ready cluster
// and smoke-tests it. The app echoes the caller's address segment-reversed
// and serves a /health endpoint; deploying it proves the cluster can
// schedule, pull and expose a real workload.
package deploy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"

	"github.com/NVIDIA/minidev/internal/logger"
)

const (
	// AppName names every object the deployer owns.
	AppName = "ip-echo"

	// DefaultImage is the published sample app image.
	DefaultImage = "ghcr.io/nvidia/minidev/ip-echo:latest"

	containerPort int32 = 8080
	nodePort      int32 = 30080

	defaultRolloutInterval = 5 * time.Second
	defaultRolloutTimeout  = 5 * time.Minute
)

// Deployer applies and verifies the sample workload.
type Deployer struct {
	log    *logger.FunLogger
	client kubernetes.Interface

	namespace       string
	image           string
	replicas        int32
	rolloutInterval time.Duration
	rolloutTimeout  time.Duration
	httpClient      *http.Client
}

// Option configures a Deployer.
type Option func(*Deployer)

// WithNamespace overrides the target namespace.
func WithNamespace(namespace string) Option {
	return func(d *Deployer) { d.namespace = namespace }
}

// WithImage overrides the workload image.
func WithImage(image string) Option {
	return func(d *Deployer) { d.image = image }
}

// WithRolloutPoll overrides the rollout wait cadence.
func WithRolloutPoll(interval, timeout time.Duration) Option {
	return func(d *Deployer) {
		d.rolloutInterval = interval
		d.rolloutTimeout = timeout
	}
}

// WithHTTPClient overrides the client used for the smoke probe.
func WithHTTPClient(client *http.Client) Option {
	return func(d *Deployer) { d.httpClient = client }
}

// New creates a deployer over client.
func New(log *logger.FunLogger, client kubernetes.Interface, opts ...Option) *Deployer {
	d := &Deployer{
		log:             log,
		client:          client,
		namespace:       corev1.NamespaceDefault,
		image:           DefaultImage,
		replicas:        1,
		rolloutInterval: defaultRolloutInterval,
		rolloutTimeout:  defaultRolloutTimeout,
		httpClient:      &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Apply creates or updates the Deployment and NodePort Service. Re-running
// against existing objects updates them in place.
func (d *Deployer) Apply(ctx context.Context) error {
	if err := d.applyDeployment(ctx); err != nil {
		return fmt.Errorf("failed to apply deployment: %w", err)
	}
	if err := d.applyService(ctx); err != nil {
		return fmt.Errorf("failed to apply service: %w", err)
	}
	d.log.Check("Workload %s applied to namespace %s", AppName, d.namespace)
	return nil
}

func (d *Deployer) applyDeployment(ctx context.Context) error {
	desired := d.deployment()
	deployments := d.client.AppsV1().Deployments(d.namespace)

	existing, err := deployments.Get(ctx, AppName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = deployments.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}

	existing.Spec = desired.Spec
	_, err = deployments.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}

func (d *Deployer) applyService(ctx context.Context) error {
	desired := d.service()
	services := d.client.CoreV1().Services(d.namespace)

	existing, err := services.Get(ctx, AppName, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		_, err = services.Create(ctx, desired, metav1.CreateOptions{})
		return err
	}
	if err != nil {
		return err
	}

	// ClusterIP is immutable, carry it over on update.
	desired.Spec.ClusterIP = existing.Spec.ClusterIP
	existing.Spec = desired.Spec
	_, err = services.Update(ctx, existing, metav1.UpdateOptions{})
	return err
}

// WaitRollout blocks until the deployment reports all replicas ready.
func (d *Deployer) WaitRollout(ctx context.Context) error {
	d.log.Info("Waiting for %s rollout", AppName)

	err := wait.PollUntilContextTimeout(ctx, d.rolloutInterval, d.rolloutTimeout, true, func(ctx context.Context) (bool, error) {
		deployment, err := d.client.AppsV1().Deployments(d.namespace).Get(ctx, AppName, metav1.GetOptions{})
		if err != nil {
			return false, nil
		}
		if deployment.Generation > deployment.Status.ObservedGeneration {
			return false, nil
		}
		return deployment.Status.ReadyReplicas >= d.replicas, nil
	})
	if err != nil {
		return fmt.Errorf("deployment %s did not become ready within %s: %w", AppName, d.rolloutTimeout, err)
	}
	d.log.Check("Deployment %s is ready", AppName)
	return nil
}

// SmokeTest probes the app's health endpoint at baseURL.
func (d *Deployer) SmokeTest(ctx context.Context, baseURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close() // nolint:errcheck

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned %d: %s", resp.StatusCode, string(body))
	}
	d.log.Check("Health probe passed: %s", string(body))
	return nil
}

// NodePort returns the fixed port the service is exposed on.
func (d *Deployer) NodePort() int32 { return nodePort }

func (d *Deployer) deployment() *appsv1.Deployment {
	labels := map[string]string{"app": AppName}
	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      AppName,
			Namespace: d.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &d.replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{
						{
							Name:  AppName,
							Image: d.image,
							Ports: []corev1.ContainerPort{
								{ContainerPort: containerPort},
							},
							ReadinessProbe: &corev1.Probe{
								ProbeHandler: corev1.ProbeHandler{
									HTTPGet: &corev1.HTTPGetAction{
										Path: "/health",
										Port: intstr.FromInt32(containerPort),
									},
								},
								InitialDelaySeconds: 2,
								PeriodSeconds:       5,
							},
						},
					},
				},
			},
		},
	}
}

func (d *Deployer) service() *corev1.Service {
	labels := map[string]string{"app": AppName}
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      AppName,
			Namespace: d.namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeNodePort,
			Selector: labels,
			Ports: []corev1.ServicePort{
				{
					Name:       "http",
					Port:       containerPort,
					TargetPort: intstr.FromInt32(containerPort),
					NodePort:   nodePort,
				},
			},
		},
	}
}
