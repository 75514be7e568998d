/*
 * Copyright 2025 tomoncle.
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

package query

import (
	"sort"
	"sync"
)

// FetchStatus tags an in-flight operation of a QueryManager.
type FetchStatus string

const (
	StatusList   FetchStatus = "list"
	StatusCreate FetchStatus = "create"
	StatusUpdate FetchStatus = "update"
	StatusRemove FetchStatus = "remove"
)

// StatusSet is a counted set of in-flight operations. A tag stays active
// until every operation that raised it has finished.
type StatusSet struct {
	mu     sync.RWMutex
	counts map[FetchStatus]int
}

func (s *StatusSet) begin(status FetchStatus) func() {
	s.mu.Lock()
	if s.counts == nil {
		s.counts = make(map[FetchStatus]int)
	}
	s.counts[status]++
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.counts[status] <= 1 {
				delete(s.counts, status)
				return
			}
			s.counts[status]--
		})
	}
}

// Has reports whether status is active.
func (s *StatusSet) Has(status FetchStatus) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.counts[status] > 0
}

// Active returns the active tags in sorted order.
func (s *StatusSet) Active() []FetchStatus {
	s.mu.RLock()
	out := make([]FetchStatus, 0, len(s.counts))
	for st := range s.counts {
		out = append(out, st)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
