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

package runner

import (
	"context"
	"strings"
	"sync"
)

// FakeResponse pairs a command matcher with the scripted outcome.
type FakeResponse struct {
	Result Result
	Err    error
}

// Fake is a scripted Runner for tests. Responses are matched by substring
// against the rendered command line; the first match wins. Unmatched
// commands succeed with empty output.
type Fake struct {
	mu        sync.Mutex
	responses []fakeRule
	Calls     []Command
}

type fakeRule struct {
	match string
	resp  FakeResponse
	// remaining limits how many times the rule fires; <0 means unlimited.
	remaining int
}

// On registers a response for commands whose rendered argv contains match.
func (f *Fake) On(match string, resp FakeResponse) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeRule{match: match, resp: resp, remaining: -1})
	return f
}

// OnNth registers a response that fires only for the first n matching
// calls, allowing fail-then-succeed scripts.
func (f *Fake) OnNth(match string, n int, resp FakeResponse) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses = append(f.responses, fakeRule{match: match, resp: resp, remaining: n})
	return f
}

// Run records the call and returns the first matching scripted response.
func (f *Fake) Run(_ context.Context, cmd Command) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls = append(f.Calls, cmd)
	line := DisplayName(cmd)
	for i := range f.responses {
		rule := &f.responses[i]
		if rule.remaining == 0 {
			continue
		}
		if strings.Contains(line, rule.match) {
			if rule.remaining > 0 {
				rule.remaining--
			}
			return rule.resp.Result, rule.resp.Err
		}
	}
	return Result{}, nil
}

// CallLines returns the rendered argv of every recorded call.
func (f *Fake) CallLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.Calls))
	for _, c := range f.Calls {
		lines = append(lines, DisplayName(c))
	}
	return lines
}
