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

package cluster

import (
	"context"
	"fmt"
	"strings"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
)

// waitNodeReady polls the API until at least one node reports Ready,
// bounded by the starter's poll configuration.
func (s *Starter) waitNodeReady(ctx context.Context, client kubernetes.Interface) error {
	err := wait.PollUntilContextTimeout(ctx, s.readyInterval, s.readyTimeout, true,
		func(ctx context.Context) (bool, error) {
			ready, err := anyNodeReady(ctx, client)
			if err != nil {
				// The apiserver can drop connections while components
				// restart during bring-up; keep polling.
				s.log.Debug("node readiness query failed, retrying: %v", err)
				return false, nil
			}
			return ready, nil
		})
	if err != nil {
		return fmt.Errorf("no node reached Ready within %s: %w", s.readyTimeout, err)
	}
	return nil
}

// anyNodeReady reports whether any node carries a Ready=True condition.
func anyNodeReady(ctx context.Context, client kubernetes.Interface) (bool, error) {
	nodes, err := client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return false, err
	}
	for _, node := range nodes.Items {
		if nodeIsReady(&node) {
			return true, nil
		}
	}
	return false, nil
}

func nodeIsReady(node *corev1.Node) bool {
	for _, cond := range node.Status.Conditions {
		if cond.Type == corev1.NodeReady && cond.Status == corev1.ConditionTrue {
			return true
		}
	}
	return false
}

// Verify is the final liveness gate before success may be reported: the
// API must answer a node list and at least one node must be Ready. A zero
// exit status from the start command is never sufficient on its own.
func (s *Starter) Verify(ctx context.Context) error {
	client, err := s.clientFor(s.kubeconfig)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}
	ready, err := anyNodeReady(ctx, client)
	if err != nil {
		return fmt.Errorf("verification failed: node query: %w", err)
	}
	if !ready {
		return fmt.Errorf("verification failed: no node is Ready")
	}
	return nil
}

func containsRunning(output string) bool {
	return strings.Contains(output, "Running")
}
