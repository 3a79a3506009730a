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

package utils

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestUtils(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Utils Suite")
}

var _ = Describe("caller IP detection", func() {
	Describe("isPublicIPv4", func() {
		DescribeTable("classifying addresses",
			func(ip string, expected bool) {
				Expect(isPublicIPv4(ip)).To(Equal(expected))
			},
			Entry("public IPv4", "203.0.113.1", true),
			Entry("public resolver", "8.8.8.8", true),
			Entry("private 10.x", "10.0.0.1", false),
			Entry("private 172.16.x", "172.16.0.1", false),
			Entry("private 192.168.x", "192.168.1.1", false),
			Entry("loopback", "127.0.0.1", false),
			Entry("link-local", "169.254.1.1", false),
			Entry("empty string", "", false),
			Entry("not an IP", "not-an-ip", false),
			Entry("IPv6", "2001:db8::1", false),
			Entry("IP with port", "8.8.8.8:53", false),
		)
	})

	Describe("fetchIP", func() {
		var server *httptest.Server

		AfterEach(func() {
			if server != nil {
				server.Close()
			}
		})

		It("returns the trimmed body", func() {
			server = httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte("  203.0.113.1\n"))
				}))

			ip, err := fetchIP(context.Background(), server.URL)
			Expect(err).NotTo(HaveOccurred())
			Expect(ip).To(Equal("203.0.113.1"))
		})

		It("rejects non-200 responses", func() {
			server = httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
				}))

			_, err := fetchIP(context.Background(), server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("unexpected status"))
		})

		It("rejects empty responses", func() {
			server = httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(http.StatusOK)
				}))

			_, err := fetchIP(context.Background(), server.URL)
			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("empty response"))
		})

		It("identifies itself in the User-Agent", func() {
			var userAgent string
			server = httptest.NewServer(http.HandlerFunc(
				func(w http.ResponseWriter, r *http.Request) {
					userAgent = r.Header.Get("User-Agent")
					w.WriteHeader(http.StatusOK)
					_, _ = w.Write([]byte("203.0.113.1"))
				}))

			_, err := fetchIP(context.Background(), server.URL)
			Expect(err).NotTo(HaveOccurred())
			Expect(userAgent).To(Equal("minidev"))
		})

		It("fails on unreachable servers", func() {
			_, err := fetchIP(context.Background(), "http://127.0.0.1:1/ip")
			Expect(err).To(HaveOccurred())
		})
	})
})
