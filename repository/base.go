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
	"sort"
	"sync"
)

type baseRepositoryImpl[T any] struct {
	mu          sync.RWMutex
	collections map[Category][]T
	events      broadcaster
}

// NewRepository returns an empty goroutine-safe Repository.
func NewRepository[T any]() Repository[T] {
	return &baseRepositoryImpl[T]{collections: make(map[Category][]T)}
}

func cloneItems[T any](items []T) []T {
	out := make([]T, len(items))
	copy(out, items)
	return out
}

func (r *baseRepositoryImpl[T]) Subscribe(listener Listener) func() {
	return r.events.subscribe(nil, listener)
}

func (r *baseRepositoryImpl[T]) SubscribeCategory(category Category, listener Listener) func() {
	c := category
	return r.events.subscribe(&c, listener)
}

func (r *baseRepositoryImpl[T]) All(category Category) ([]T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items, ok := r.collections[category]
	if !ok {
		return nil, false
	}
	return cloneItems(items), true
}

func (r *baseRepositoryImpl[T]) Single(category Category, pred Predicate[T]) (T, bool) {
	var zero T
	if pred == nil {
		return zero, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, item := range r.collections[category] {
		if pred(item) {
			return item, true
		}
	}
	return zero, false
}

func (r *baseRepositoryImpl[T]) Exists(category Category, pred Predicate[T]) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items, ok := r.collections[category]
	if !ok {
		return false
	}
	if pred == nil {
		return true
	}
	for _, item := range items {
		if pred(item) {
			return true
		}
	}
	return false
}

func (r *baseRepositoryImpl[T]) Categories() []Category {
	r.mu.RLock()
	out := make([]Category, 0, len(r.collections))
	for c := range r.collections {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (r *baseRepositoryImpl[T]) Set(category Category, items []T) {
	r.mu.Lock()
	r.collections[category] = cloneItems(items)
	r.mu.Unlock()
	r.events.publish(Event{Category: category, Kind: EventSet, Count: len(items)})
}

func (r *baseRepositoryImpl[T]) Add(category Category, item T) {
	r.AddRange(category, []T{item})
}

func (r *baseRepositoryImpl[T]) AddRange(category Category, items []T) {
	r.mu.Lock()
	current, ok := r.collections[category]
	if !ok {
		// writes to a category that was never set are dropped
		r.mu.Unlock()
		return
	}
	r.collections[category] = append(current, items...)
	r.mu.Unlock()
	r.events.publish(Event{Category: category, Kind: EventAdd, Count: len(items)})
}

func (r *baseRepositoryImpl[T]) Remove(category Category, pred Predicate[T]) int {
	if pred == nil {
		return 0
	}
	r.mu.Lock()
	current, ok := r.collections[category]
	if !ok {
		r.mu.Unlock()
		return 0
	}
	kept := make([]T, 0, len(current))
	for _, item := range current {
		if !pred(item) {
			kept = append(kept, item)
		}
	}
	removed := len(current) - len(kept)
	if removed > 0 {
		r.collections[category] = kept
	}
	r.mu.Unlock()

	if removed > 0 {
		r.events.publish(Event{Category: category, Kind: EventRemove, Count: removed})
	}
	return removed
}

// RemoveRange is an alias of Remove.
func (r *baseRepositoryImpl[T]) RemoveRange(category Category, pred Predicate[T]) int {
	return r.Remove(category, pred)
}

// Mutate applies mutation to the first matching item while the repository
// lock is held; mutation must not call back into the repository.
func (r *baseRepositoryImpl[T]) Mutate(category Category, pred Predicate[T], mutation Mutation[T]) bool {
	return r.mutate(category, pred, mutation, true) > 0
}

func (r *baseRepositoryImpl[T]) MutateRange(category Category, pred Predicate[T], mutation Mutation[T]) int {
	return r.mutate(category, pred, mutation, false)
}

func (r *baseRepositoryImpl[T]) mutate(category Category, pred Predicate[T], mutation Mutation[T], firstOnly bool) int {
	if pred == nil || mutation == nil {
		return 0
	}
	r.mu.Lock()
	items := r.collections[category]
	n := 0
	for i := range items {
		if !pred(items[i]) {
			continue
		}
		mutation(&items[i])
		n++
		if firstOnly {
			break
		}
	}
	r.mu.Unlock()

	if n > 0 {
		r.events.publish(Event{Category: category, Kind: EventMutate, Count: n})
	}
	return n
}

func (r *baseRepositoryImpl[T]) Dispose(category Category) {
	r.mu.Lock()
	items, ok := r.collections[category]
	delete(r.collections, category)
	r.mu.Unlock()
	if ok {
		r.events.publish(Event{Category: category, Kind: EventDispose, Count: len(items)})
	}
}
