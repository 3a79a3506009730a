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

	"github.com/NVIDIA/minidev/pkg/runner"
)

// addon is one entry of the fixed, ordered add-on list enabled after node
// readiness.
type addon struct {
	name string
	// optional add-ons fail quietly; the storage pair must at least fail
	// loudly, though neither class aborts an otherwise healthy bring-up.
	optional bool
}

var addons = []addon{
	{name: "storage-provisioner"},
	{name: "default-storageclass"},
	{name: "dashboard", optional: true},
	{name: "metrics-server", optional: true},
}

// enableAddons enables the fixed add-on list in order. Failures never fail
// the bring-up.
func (s *Starter) enableAddons(ctx context.Context, name string) {
	for _, a := range addons {
		_, err := s.run.Run(ctx, runner.Command{
			Name: "minikube",
			Args: []string{"addons", "enable", a.name, "-p", name},
			User: s.user,
		})
		switch {
		case err == nil:
			s.log.Check("Addon %s enabled", a.name)
		case a.optional:
			s.log.Info("optional addon %s not enabled: %v", a.name, err)
		default:
			s.log.Warning("addon %s could not be enabled: %v", a.name, err)
		}
	}
}
