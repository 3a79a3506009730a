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
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/NVIDIA/minidev/pkg/runner"
)

const (
	dockerKeyringPath = "/etc/apt/keyrings/docker.gpg"
	dockerListPath    = "/etc/apt/sources.list.d/docker.list"
	dockerGPGURL      = "https://download.docker.com/linux/ubuntu/gpg"
)

// EnsureDocker installs and configures the Docker engine. When the daemon
// is already active at an acceptable version and the unprivileged user can
// reach the socket, nothing is changed.
func (i *Installer) EnsureDocker(ctx context.Context, desiredVersion string) error {
	if version, ok := i.dockerFunctional(ctx, desiredVersion); ok {
		i.log.Check("Docker %s already installed and functional", version)
		i.state["docker"] = ToolStatus{Installed: true, Version: version, Skipped: true}
		return nil
	}

	i.log.Info("Installing Docker (%s)", displayVersion(desiredVersion))

	if err := i.configureDockerRepo(ctx); err != nil {
		return err
	}

	packages := []string{"docker-ce", "docker-ce-cli", "containerd.io"}
	if desiredVersion != "" && desiredVersion != "latest" {
		packages = []string{
			"docker-ce=" + desiredVersion,
			"docker-ce-cli=" + desiredVersion,
			"containerd.io",
		}
	}
	if err := i.pkgInstall(ctx, packages...); err != nil {
		return err
	}

	if _, err := i.run.Run(ctx, runner.Command{
		Name: "systemctl", Args: []string{"enable", "--now", "docker"}, Sudo: true,
	}); err != nil {
		return err
	}
	if err := i.waitServiceActive(ctx, "docker"); err != nil {
		return err
	}

	if err := i.configureDaemon(ctx); err != nil {
		return err
	}

	if err := i.ensureSocketAccess(ctx); err != nil {
		return err
	}

	version, err := i.dockerServerVersion(ctx)
	if err != nil {
		return fmt.Errorf("docker installed but version query failed: %w", err)
	}
	if !versionAcceptable(version, desiredVersion) {
		return fmt.Errorf("docker %s installed but %s was requested", version, desiredVersion)
	}
	i.log.Check("Docker %s installed", version)
	i.state["docker"] = ToolStatus{Installed: true, Version: version}
	return nil
}

// dockerFunctional reports whether the daemon is active, at an acceptable
// version, and usable by the unprivileged user.
func (i *Installer) dockerFunctional(ctx context.Context, desiredVersion string) (string, bool) {
	res, err := i.run.Run(ctx, runner.Command{Name: "systemctl", Args: []string{"is-active", "docker"}})
	if err != nil || strings.TrimSpace(res.Output) != "active" {
		return "", false
	}

	version, err := i.dockerServerVersion(ctx)
	if err != nil {
		return "", false
	}
	if !versionAcceptable(version, desiredVersion) {
		i.log.Info("Docker version mismatch: installed=%s desired=%s", version, desiredVersion)
		return "", false
	}

	if err := i.verifyUnprivilegedAccess(ctx); err != nil {
		return "", false
	}
	i.state["docker"] = ToolStatus{Installed: true, Version: version, Skipped: true}
	return version, true
}

func (i *Installer) dockerServerVersion(ctx context.Context) (string, error) {
	res, err := i.run.Run(ctx, runner.Command{
		Name: "docker",
		Args: []string{"version", "--format", "{{.Server.Version}}"},
		Sudo: true,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Output), nil
}

// versionAcceptable treats "latest" and empty as wildcard and otherwise
// accepts exact or prefix matches (24.0 accepts 24.0.7).
func versionAcceptable(installed, desired string) bool {
	if desired == "" || desired == "latest" {
		return installed != ""
	}
	return installed == desired ||
		strings.HasPrefix(installed, desired+".") ||
		strings.HasPrefix(installed, desired+"-")
}

// configureDockerRepo adds Docker's package repository, idempotently.
func (i *Installer) configureDockerRepo(ctx context.Context) error {
	if err := i.pkgUpdate(ctx); err != nil {
		return err
	}

	if _, err := os.Stat(i.dockerKeyringPath); os.IsNotExist(err) {
		tmpKey := filepath.Join(os.TempDir(), "docker-archive-keyring.gpg")
		if _, err := i.run.Run(ctx, runner.Command{
			Name: "curl", Args: []string{"-fsSL", "-o", tmpKey, dockerGPGURL},
		}); err != nil {
			return fmt.Errorf("failed to download Docker GPG key: %w", err)
		}
		if _, err := i.run.Run(ctx, runner.Command{
			Name: "install", Args: []string{"-m", "0755", "-d", filepath.Dir(i.dockerKeyringPath)}, Sudo: true,
		}); err != nil {
			return err
		}
		if _, err := i.run.Run(ctx, runner.Command{
			Name: "gpg", Args: []string{"--dearmor", "--yes", "-o", i.dockerKeyringPath, tmpKey}, Sudo: true,
		}); err != nil {
			return fmt.Errorf("failed to install Docker GPG key: %w", err)
		}
	}

	if _, err := os.Stat(i.dockerListPath); os.IsNotExist(err) {
		codename, err := i.osCodename(ctx)
		if err != nil {
			return err
		}
		entry := fmt.Sprintf("deb [arch=%s signed-by=%s] https://download.docker.com/linux/ubuntu %s stable\n",
			hostArch(), i.dockerKeyringPath, codename)
		if err := os.WriteFile(i.dockerListPath, []byte(entry), 0o644); err != nil {
			return fmt.Errorf("failed to write Docker apt source: %w", err)
		}
	}

	return i.pkgUpdate(ctx)
}

func (i *Installer) osCodename(ctx context.Context) (string, error) {
	res, err := i.run.Run(ctx, runner.Command{Name: "lsb_release", Args: []string{"-cs"}})
	if err != nil {
		return "", fmt.Errorf("failed to determine OS codename: %w", err)
	}
	return strings.TrimSpace(res.Output), nil
}

// daemonConfig is Docker's daemon.json shape, limited to the fields the
// bootstrap manages.
type daemonConfig struct {
	ExecOpts      []string          `json:"exec-opts"`
	LogDriver     string            `json:"log-driver"`
	LogOpts       map[string]string `json:"log-opts"`
	StorageDriver string            `json:"storage-driver"`
}

// configureDaemon aligns the runtime's cgroup driver with the init
// system's and restarts the daemon to pick the configuration up.
func (i *Installer) configureDaemon(ctx context.Context) error {
	cfg := daemonConfig{
		ExecOpts:      []string{"native.cgroupdriver=" + i.initCgroupDriver()},
		LogDriver:     "json-file",
		LogOpts:       map[string]string{"max-size": "100m"},
		StorageDriver: "overlay2",
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if current, err := os.ReadFile(i.daemonConfigPath); err == nil && string(current) == string(data) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(i.daemonConfigPath), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(i.daemonConfigPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", i.daemonConfigPath, err)
	}

	if _, err := i.run.Run(ctx, runner.Command{
		Name: "systemctl", Args: []string{"restart", "docker"}, Sudo: true,
	}); err != nil {
		return err
	}
	return i.waitServiceActive(ctx, "docker")
}

// ensureSocketAccess makes the runtime socket usable by the unprivileged
// user and proves it by running a command as that user. Group membership
// alone is not sufficient evidence: it does not take effect in sessions
// that already existed, so the verification must actually exercise the
// socket. One repair attempt is allowed; a second verification failure is
// fatal.
func (i *Installer) ensureSocketAccess(ctx context.Context) error {
	if i.user == "" || i.user == "root" {
		return nil
	}

	if _, err := i.run.Run(ctx, runner.Command{
		Name: "usermod", Args: []string{"-aG", "docker", i.user}, Sudo: true,
	}); err != nil {
		return err
	}

	if err := i.verifyUnprivilegedAccess(ctx); err == nil {
		return nil
	}

	i.log.Warning("user %s cannot reach the Docker socket yet, repairing permissions", i.user)
	if _, err := i.run.Run(ctx, runner.Command{
		Name: "chmod", Args: []string{"666", i.dockerSocket}, Sudo: true,
	}); err != nil {
		return err
	}

	if err := i.verifyUnprivilegedAccess(ctx); err != nil {
		return fmt.Errorf("user %s still cannot use the Docker socket after repair: %w", i.user, err)
	}
	return nil
}

func (i *Installer) verifyUnprivilegedAccess(ctx context.Context) error {
	_, err := i.run.Run(ctx, runner.Command{
		Name: "docker",
		Args: []string{"info", "--format", "{{.ServerVersion}}"},
		User: i.user,
	})
	return err
}

func displayVersion(v string) string {
	if v == "" {
		return "latest"
	}
	return v
}
