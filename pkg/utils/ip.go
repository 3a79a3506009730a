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

// Package utils holds small helpers shared by the CLI commands.
package utils

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"
)

// ipServices are tried in order until one answers with a usable address.
var ipServices = []string{
	"https://api.ipify.org?format=text",
	"https://ifconfig.me/ip",
	"https://icanhazip.com",
	"https://ident.me",
}

const ipServiceTimeout = 5 * time.Second

// CallerCIDR returns the caller's public IPv4 address as a /32 CIDR,
// suitable as a security-group ingress range. It asks a list of public IP
// echo services and takes the first valid answer.
func CallerCIDR(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	for _, url := range ipServices {
		ip, err := fetchIP(ctx, url)
		if err == nil && isPublicIPv4(ip) {
			return ip + "/32", nil
		}
	}
	return "", fmt.Errorf("could not determine the caller's public IP address")
}

func fetchIP(ctx context.Context, url string) (string, error) {
	client := &http.Client{Timeout: ipServiceTimeout}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("error creating request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", "minidev")

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error fetching IP from %s: %w", url, err)
	}
	defer resp.Body.Close() // nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status from %s: %s", url, resp.Status)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 256))
	if err != nil {
		return "", fmt.Errorf("error reading response from %s: %w", url, err)
	}

	ip := strings.TrimSpace(string(body))
	if ip == "" {
		return "", fmt.Errorf("empty response from %s", url)
	}
	return ip, nil
}

// isPublicIPv4 reports whether s is a routable public IPv4 address.
func isPublicIPv4(s string) bool {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return false
	}
	return !ip.IsPrivate() && !ip.IsLoopback() && !ip.IsLinkLocalUnicast()
}
