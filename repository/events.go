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

package repository

import (
	"sync"
	"sync/atomic"
)

// EventKind names the write that produced an Event.
type EventKind string

const (
	EventSet     EventKind = "set"
	EventAdd     EventKind = "add"
	EventRemove  EventKind = "remove"
	EventMutate  EventKind = "mutate"
	EventDispose EventKind = "dispose"
)

// Event describes one change to a category. Count is the number of items
// affected by the write.
type Event struct {
	Category Category  `json:"category"`
	Kind     EventKind `json:"kind"`
	Count    int       `json:"count"`
}

// Listener receives repository events. It runs synchronously on the goroutine
// that performed the write, after the repository lock is released.
type Listener func(Event)

type subscription struct {
	id       uint64
	category *Category
	listener Listener
}

type broadcaster struct {
	mu     sync.RWMutex
	nextID atomic.Uint64
	subs   []subscription
}

func (b *broadcaster) subscribe(category *Category, listener Listener) func() {
	if listener == nil {
		return func() {}
	}
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.subs = append(b.subs, subscription{id: id, category: category, listener: listener})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

func (b *broadcaster) publish(e Event) {
	b.mu.RLock()
	targets := make([]Listener, 0, len(b.subs))
	for _, s := range b.subs {
		if s.category == nil || *s.category == e.Category {
			targets = append(targets, s.listener)
		}
	}
	b.mu.RUnlock()

	for _, l := range targets {
		l(e)
	}
}
