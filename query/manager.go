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
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/listkit/repository"
	"github.com/tomoncle/listkit/types"
	"github.com/tomoncle/listkit/utils"
	"golang.org/x/sync/singleflight"
)

// ErrNilEndpoint is returned when a manager was built without an endpoint.
var ErrNilEndpoint = errors.New("query: endpoint is nil")

// Endpoint fetches one page of records matching spec.
type Endpoint[T any] func(ctx context.Context, spec *types.QuerySpecification) (*types.PageResult[T], error)

// ApplyFunc performs a write against the remote store, typically a create,
// update or delete call.
type ApplyFunc func(ctx context.Context) error

// FetchOptions overrides the pagination and filter of FetchDefault. Nil fields
// fall back to page 1, the manager page size and an empty filter.
type FetchOptions struct {
	Pagination *types.PaginationSpecification
	Filter     *types.FilterSpecification
}

// QueryManager mediates between one list Endpoint and one repository category.
//
// A manager starts unfetched. The first successful FetchDefault or
// FetchFilters moves it to page 1; FetchNextPage then advances the page until
// all records reported by the endpoint are loaded. A failed fetch leaves the
// state untouched.
type QueryManager[T any] struct {
	repo            repository.Repository[T]
	endpoint        Endpoint[T]
	category        repository.Category
	defaultOperator types.LogicalOperator
	logger          logrus.FieldLogger

	// writeMu orders repository writes against state changes; mu guards the
	// fields below and is never held while listeners run.
	writeMu        sync.Mutex
	mu             sync.Mutex
	filter         *types.FilterSpecification
	pageSize       int
	pageNumber     int
	recordCount    int
	hasRecordCount bool
	generation     uint64
	// epoch changes only on Dispose
	epoch uint64

	status StatusSet
	next   singleflight.Group
}

// NewQueryManager creates a manager writing into repo.
func NewQueryManager[T any](repo repository.Repository[T], endpoint Endpoint[T], opts ...Option) *QueryManager[T] {
	o := managerOptions{
		logicalOperator: types.And,
		pageSize:        types.DefaultPageSize,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.category == "" {
		o.category = repository.Category(uuid.NewString())
	}
	if o.logger == nil {
		o.logger = utils.NewLogger("QUERY")
	}
	return &QueryManager[T]{
		repo:            repo,
		endpoint:        endpoint,
		category:        o.category,
		defaultOperator: o.logicalOperator,
		logger:          o.logger.WithField("category", string(o.category)),
		filter:          types.NewFilterSpecification(o.logicalOperator),
		pageSize:        o.pageSize,
	}
}

func (m *QueryManager[T]) Category() repository.Category { return m.category }

func (m *QueryManager[T]) Repository() repository.Repository[T] { return m.repo }

// Filter returns a copy of the filter used by the last successful fetch.
func (m *QueryManager[T]) Filter() *types.FilterSpecification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter.Clone()
}

// RecordCount returns the total reported by the endpoint. The boolean is false
// until a fetch succeeded.
func (m *QueryManager[T]) RecordCount() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recordCount, m.hasRecordCount
}

// PageNumber returns the last loaded page. The boolean is false until a fetch
// succeeded or after Dispose.
func (m *QueryManager[T]) PageNumber() (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageNumber, m.pageNumber > 0
}

func (m *QueryManager[T]) PageSize() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pageSize
}

// FetchStatus lists the operations currently in flight.
func (m *QueryManager[T]) FetchStatus() []FetchStatus { return m.status.Active() }

func (m *QueryManager[T]) IsFetching(status FetchStatus) bool { return m.status.Has(status) }

// Items returns the cached collection of this manager's category.
func (m *QueryManager[T]) Items() ([]T, bool) { return m.repo.All(m.category) }

func (m *QueryManager[T]) call(ctx context.Context, spec *types.QuerySpecification) (*types.PageResult[T], error) {
	if m.endpoint == nil {
		return nil, ErrNilEndpoint
	}
	res, err := m.endpoint(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("query %s page %d: %w", m.category, spec.Pagination.Number, err)
	}
	if res == nil {
		res = types.NewPageResult[T](nil, 0)
	}
	return res, nil
}

// replace fetches one page and replaces the cached collection with it.
// pageNumber is the page number recorded on success.
func (m *QueryManager[T]) replace(ctx context.Context, pagination *types.PaginationSpecification, filter *types.FilterSpecification, pageNumber, pageSize int) error {
	if err := filter.Validate(); err != nil {
		return err
	}
	done := m.status.begin(StatusList)
	defer done()

	m.mu.Lock()
	epoch := m.epoch
	m.mu.Unlock()

	spec := types.NewQuerySpecification(pagination, filter.Clone())
	m.logger.WithFields(logrus.Fields{
		"page":    pagination.Number,
		"size":    pagination.Size,
		"filters": len(filter.Entries),
	}).Debug("fetching list")

	res, err := m.call(ctx, spec)
	if err != nil {
		m.logger.WithError(err).Warn("list fetch failed")
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		m.logger.WithField("page", pagination.Number).Debug("dropping list fetched before dispose")
		return nil
	}
	m.filter = filter.Clone()
	m.pageNumber = pageNumber
	m.pageSize = pageSize
	m.recordCount = res.TotalCount
	m.hasRecordCount = true
	m.generation++
	m.mu.Unlock()
	m.repo.Set(m.category, res.Items)
	return nil
}

func (m *QueryManager[T]) normalizeFilter(filter *types.FilterSpecification) *types.FilterSpecification {
	if filter == nil {
		return types.NewFilterSpecification(m.defaultOperator)
	}
	return filter.Clone()
}

// FetchDefault loads one page, replacing the cached collection.
func (m *QueryManager[T]) FetchDefault(ctx context.Context, opts FetchOptions) error {
	pagination := opts.Pagination.Normalize(m.PageSize())
	return m.replace(ctx, pagination, m.normalizeFilter(opts.Filter), pagination.Number, pagination.Size)
}

// FetchIfNotExists calls FetchDefault only when the category holds no
// collection yet.
func (m *QueryManager[T]) FetchIfNotExists(ctx context.Context) error {
	if m.repo.Exists(m.category, nil) {
		return nil
	}
	return m.FetchDefault(ctx, FetchOptions{})
}

// FetchFilters replaces the collection with page 1 of the records matching
// entries. Without op the manager's default logical operator is used.
func (m *QueryManager[T]) FetchFilters(ctx context.Context, entries []types.FilterEntry, op ...types.LogicalOperator) error {
	logical := m.defaultOperator
	if len(op) > 0 {
		logical = op[0]
	}
	filter := types.NewFilterSpecification(logical, entries...).Clone()
	size := m.PageSize()
	return m.replace(ctx, types.NewPaginationSpecification(1, size), filter, 1, size)
}

// HasNextPage reports whether the endpoint holds records beyond the loaded pages.
func (m *QueryManager[T]) HasNextPage() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasNextPageLocked()
}

func (m *QueryManager[T]) hasNextPageLocked() bool {
	return m.pageNumber > 0 && m.hasRecordCount && m.pageNumber*m.pageSize < m.recordCount
}

// FetchNextPage appends the next page to the cached collection. It does
// nothing before the first fetch or once every record is loaded. Concurrent
// calls share a single request, which is not cancelled by any one caller;
// a caller whose ctx ends returns ctx.Err() while the request completes for
// the others.
func (m *QueryManager[T]) FetchNextPage(ctx context.Context) error {
	shared := context.WithoutCancel(ctx)
	ch := m.next.DoChan("next", func() (interface{}, error) {
		return nil, m.fetchNextPage(shared)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *QueryManager[T]) fetchNextPage(ctx context.Context) error {
	m.mu.Lock()
	if !m.hasNextPageLocked() {
		m.mu.Unlock()
		return nil
	}
	next := m.pageNumber + 1
	size := m.pageSize
	filter := m.filter.Clone()
	generation := m.generation
	m.mu.Unlock()

	done := m.status.begin(StatusList)
	defer done()

	m.logger.WithField("page", next).Debug("fetching next page")
	res, err := m.call(ctx, types.NewQuerySpecification(types.NewPaginationSpecification(next, size), filter))
	if err != nil {
		m.logger.WithError(err).Warn("next page fetch failed")
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	if m.generation != generation {
		m.mu.Unlock()
		// the list was replaced or disposed while this page was in flight
		m.logger.WithField("page", next).Debug("dropping stale page")
		return nil
	}
	m.pageNumber = next
	m.recordCount = res.TotalCount
	m.generation++
	m.mu.Unlock()
	m.repo.AddRange(m.category, res.Items)
	return nil
}

// FetchReload re-runs the current filter. By default it restarts from page 1.
// With keepPageNumber it loads every page seen so far in a single request so
// the cached list keeps its length. Before any fetch it behaves like
// FetchDefault with the current filter.
func (m *QueryManager[T]) FetchReload(ctx context.Context, keepPageNumber bool) error {
	m.mu.Lock()
	page, size, filter := m.pageNumber, m.pageSize, m.filter.Clone()
	m.mu.Unlock()

	if page == 0 {
		return m.FetchDefault(ctx, FetchOptions{Filter: filter})
	}
	if keepPageNumber {
		return m.replace(ctx, types.NewPaginationSpecification(1, page*size), filter, page, size)
	}
	return m.replace(ctx, types.NewPaginationSpecification(1, size), filter, 1, size)
}

func (m *QueryManager[T]) applyAndReload(ctx context.Context, status FetchStatus, apply ApplyFunc) error {
	done := m.status.begin(status)
	defer done()
	if apply != nil {
		if err := apply(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", status, m.category, err)
		}
	}
	return m.FetchReload(ctx, false)
}

// Add runs apply and reloads the list from page 1. A failing apply skips the
// reload.
func (m *QueryManager[T]) Add(ctx context.Context, apply ApplyFunc) error {
	return m.applyAndReload(ctx, StatusCreate, apply)
}

// Update runs apply and reloads the list from page 1. A failing apply skips
// the reload.
func (m *QueryManager[T]) Update(ctx context.Context, apply ApplyFunc) error {
	return m.applyAndReload(ctx, StatusUpdate, apply)
}

// RemoveWhere runs apply, then drops matching items from the cache and
// decrements the record count by one. The list is not refetched.
func (m *QueryManager[T]) RemoveWhere(ctx context.Context, pred repository.Predicate[T], apply ApplyFunc) error {
	done := m.status.begin(StatusRemove)
	defer done()
	if apply != nil {
		if err := apply(ctx); err != nil {
			return fmt.Errorf("%s %s: %w", StatusRemove, m.category, err)
		}
	}
	m.writeMu.Lock()
	m.mu.Lock()
	if m.hasRecordCount && m.recordCount > 0 {
		m.recordCount--
	}
	m.mu.Unlock()
	removed := m.repo.Remove(m.category, pred)
	m.writeMu.Unlock()

	m.logger.WithField("removed", removed).Debug("removed cached items")
	return nil
}

// RemoveItem is RemoveWhere matching items identical to item. Pointer items
// match by address; other comparable values by ==, and the rest by deep
// equality.
func (m *QueryManager[T]) RemoveItem(ctx context.Context, item T, apply ApplyFunc) error {
	return m.RemoveWhere(ctx, func(candidate T) bool { return sameItem(candidate, item) }, apply)
}

func sameItem[T any](a, b T) bool {
	va, vb := any(a), any(b)
	ta, tb := reflect.TypeOf(va), reflect.TypeOf(vb)
	if ta != tb {
		return false
	}
	if ta == nil {
		return true
	}
	if ta.Comparable() {
		return va == vb
	}
	return reflect.DeepEqual(va, vb)
}

// Mutate edits the first cached item matching pred without contacting the
// endpoint.
func (m *QueryManager[T]) Mutate(pred repository.Predicate[T], mutation repository.Mutation[T]) bool {
	return m.repo.Mutate(m.category, pred, mutation)
}

// Set replaces the cached collection without contacting the endpoint.
func (m *QueryManager[T]) Set(items []T) {
	m.repo.Set(m.category, items)
}

// Dispose clears the filter, the page number and the cached collection.
// Results of fetches still in flight are discarded.
func (m *QueryManager[T]) Dispose() {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	m.mu.Lock()
	m.filter = types.NewFilterSpecification(m.defaultOperator)
	m.pageNumber = 0
	m.generation++
	m.epoch++
	m.mu.Unlock()
	m.repo.Dispose(m.category)
}
