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

// Category identifies one logical collection inside a Repository, usually one
// per list view.
type Category string

// Predicate selects items of a collection.
type Predicate[T any] func(item T) bool

// Mutation edits an item in place.
type Mutation[T any] func(item *T)

// ReadRepository exposes lookups over categorized collections.
type ReadRepository[T any] interface {
	// All returns a copy of the collection. The boolean is false when the
	// category was never populated, which is distinct from an empty collection.
	All(category Category) ([]T, bool)

	// Single returns the first item matching pred.
	Single(category Category, pred Predicate[T]) (T, bool)

	// Exists reports whether the category is populated and, when pred is not
	// nil, whether at least one item matches it.
	Exists(category Category, pred Predicate[T]) bool

	// Categories lists the populated categories in sorted order.
	Categories() []Category
}

// WriteRepository mutates categorized collections. Missing categories never
// produce errors; writes that need an existing collection are no-ops.
type WriteRepository[T any] interface {
	Set(category Category, items []T)

	Add(category Category, item T)

	AddRange(category Category, items []T)

	Remove(category Category, pred Predicate[T]) int

	RemoveRange(category Category, pred Predicate[T]) int

	Mutate(category Category, pred Predicate[T], mutation Mutation[T]) bool

	MutateRange(category Category, pred Predicate[T], mutation Mutation[T]) int

	Dispose(category Category)
}

// ObservableRepository delivers an Event after every state change.
type ObservableRepository interface {
	Subscribe(listener Listener) (unsubscribe func())

	SubscribeCategory(category Category, listener Listener) (unsubscribe func())
}

// Repository combines reads, writes and change subscriptions.
type Repository[T any] interface {
	ReadRepository[T]
	WriteRepository[T]
	ObservableRepository
}
