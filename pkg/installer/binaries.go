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

package installer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/minidev/pkg/retry"
	"github.com/NVIDIA/minidev/pkg/runner"
)

// BinarySpec describes a single-binary tool distributed as a direct
// download.
type BinarySpec struct {
	// Name is the installed binary's basename.
	Name string
	// Version is the release to install; "latest" resolves at download
	// time where the release channel supports it.
	Version string
	// URL is the fully resolved download location.
	URL string
	// VerifyArgs invoked against the installed binary must exit zero for
	// the tool to count as present.
	VerifyArgs []string
	// VersionArgs print a parseable version for state reporting.
	VersionArgs []string
}

// MinikubeSpec returns the download spec for minikube. An empty version
// selects the latest release.
func MinikubeSpec(version string) BinarySpec {
	channel := version
	if channel == "" {
		channel = "latest"
	}
	return BinarySpec{
		Name:        "minikube",
		Version:     channel,
		URL:         fmt.Sprintf("https://storage.googleapis.com/minikube/releases/%s/minikube-linux-%s", channel, hostArch()),
		VerifyArgs:  []string{"version"},
		VersionArgs: []string{"version", "--short"},
	}
}

// KubectlSpec returns the download spec for kubectl pinned to the cluster's
// Kubernetes version so client and server never drift more than the
// supported skew.
func KubectlSpec(version string) BinarySpec {
	return BinarySpec{
		Name:        "kubectl",
		Version:     version,
		URL:         fmt.Sprintf("https://dl.k8s.io/release/%s/bin/linux/%s/kubectl", version, hostArch()),
		VerifyArgs:  []string{"version", "--client"},
		VersionArgs: []string{"version", "--client", "--output=yaml"},
	}
}

// EnsureBinary installs spec into the binary directory unless an existing
// install already answers its verification command.
func (i *Installer) EnsureBinary(ctx context.Context, spec BinarySpec) error {
	target := filepath.Join(i.binDir, spec.Name)

	if i.binaryFunctional(ctx, target, spec) {
		i.log.Check("%s already installed", spec.Name)
		i.state[spec.Name] = ToolStatus{Installed: true, Version: i.binaryVersion(ctx, target, spec), Skipped: true}
		return nil
	}

	i.log.Info("Installing %s (%s)", spec.Name, displayVersion(spec.Version))

	tmp := filepath.Join(os.TempDir(), spec.Name+".download")
	err := retry.Do(ctx, i.aptRetry, func() error {
		_, err := i.run.Run(ctx, runner.Command{
			Name: "curl", Args: []string{"-fsSL", "-o", tmp, spec.URL},
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to download %s from %s: %w", spec.Name, spec.URL, err)
	}

	if _, err := i.run.Run(ctx, runner.Command{
		Name: "install", Args: []string{"-m", "0755", tmp, target}, Sudo: true,
	}); err != nil {
		return fmt.Errorf("failed to install %s into %s: %w", spec.Name, i.binDir, err)
	}
	_ = os.Remove(tmp)

	if !i.binaryFunctional(ctx, target, spec) {
		return fmt.Errorf("%s installed but failed verification", spec.Name)
	}

	version := i.binaryVersion(ctx, target, spec)
	i.log.Check("%s %s installed", spec.Name, version)
	i.state[spec.Name] = ToolStatus{Installed: true, Version: version}
	return nil
}

// binaryFunctional reports whether the binary at target exists and its
// verification command succeeds.
func (i *Installer) binaryFunctional(ctx context.Context, target string, spec BinarySpec) bool {
	if _, err := os.Stat(target); err != nil {
		return false
	}
	_, err := i.run.Run(ctx, runner.Command{Name: target, Args: spec.VerifyArgs})
	return err == nil
}

func (i *Installer) binaryVersion(ctx context.Context, target string, spec BinarySpec) string {
	res, err := i.run.Run(ctx, runner.Command{Name: target, Args: spec.VersionArgs})
	if err != nil {
		return ""
	}
	return strings.TrimSpace(strings.SplitN(res.Output, "\n", 2)[0])
}
