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

	corev1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
)

const (
	// CIServiceAccount is the identity handed to the external CI system for
	// deployments onto the freshly bootstrapped cluster.
	CIServiceAccount = "minidev-ci"
	ciNamespace      = "kube-system"

	// ciWorkloadNamespace is where the CI identity may manage workloads.
	ciWorkloadNamespace = corev1.NamespaceDefault
)

// EnsureCIAccess creates the CI ServiceAccount and grants it a namespaced
// Role covering only the resources the deployment step touches, both
// idempotently. The grant is deliberately not cluster-admin.
func EnsureCIAccess(ctx context.Context, client kubernetes.Interface) error {
	sa := &corev1.ServiceAccount{
		ObjectMeta: metav1.ObjectMeta{
			Name:      CIServiceAccount,
			Namespace: ciNamespace,
		},
	}
	_, err := client.CoreV1().ServiceAccounts(ciNamespace).Create(ctx, sa, metav1.CreateOptions{})
	if err := ignoreAlreadyExists(err); err != nil {
		return err
	}

	role := &rbacv1.Role{
		ObjectMeta: metav1.ObjectMeta{
			Name:      CIServiceAccount,
			Namespace: ciWorkloadNamespace,
		},
		Rules: []rbacv1.PolicyRule{
			{
				APIGroups: []string{"apps"},
				Resources: []string{"deployments"},
				Verbs:     []string{"get", "list", "watch", "create", "update", "patch"},
			},
			{
				APIGroups: []string{""},
				Resources: []string{"services"},
				Verbs:     []string{"get", "list", "watch", "create", "update", "patch"},
			},
			{
				APIGroups: []string{""},
				Resources: []string{"pods", "pods/log"},
				Verbs:     []string{"get", "list", "watch"},
			},
		},
	}
	_, err = client.RbacV1().Roles(ciWorkloadNamespace).Create(ctx, role, metav1.CreateOptions{})
	if err := ignoreAlreadyExists(err); err != nil {
		return err
	}

	binding := &rbacv1.RoleBinding{
		ObjectMeta: metav1.ObjectMeta{
			Name:      CIServiceAccount,
			Namespace: ciWorkloadNamespace,
		},
		Subjects: []rbacv1.Subject{
			{
				Kind:      "ServiceAccount",
				Name:      CIServiceAccount,
				Namespace: ciNamespace,
			},
		},
		RoleRef: rbacv1.RoleRef{
			APIGroup: "rbac.authorization.k8s.io",
			Kind:     "Role",
			Name:     CIServiceAccount,
		},
	}
	_, err = client.RbacV1().RoleBindings(ciWorkloadNamespace).Create(ctx, binding, metav1.CreateOptions{})
	return ignoreAlreadyExists(err)
}

func ignoreAlreadyExists(err error) error {
	if apierrors.IsAlreadyExists(err) {
		return nil
	}
	return err
}
