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
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/listkit/repository"
	"github.com/tomoncle/listkit/types"
)

type widget struct {
	ID   int
	Name string
}

// stubEndpoint serves a fixed record set, honouring pagination and a
// "contains" filter on Name.
type stubEndpoint struct {
	mu      sync.Mutex
	records []widget
	calls   []*types.QuerySpecification
	err     error
}

func (s *stubEndpoint) list(_ context.Context, spec *types.QuerySpecification) (*types.PageResult[widget], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, spec)
	if s.err != nil {
		return nil, s.err
	}
	matched := make([]widget, 0, len(s.records))
	for _, w := range s.records {
		if matches(w, spec.Filter) {
			matched = append(matched, w)
		}
	}
	start := spec.Pagination.Offset()
	if start > len(matched) {
		start = len(matched)
	}
	end := start + spec.Pagination.Size
	if end > len(matched) {
		end = len(matched)
	}
	return types.NewPageResult(append([]widget(nil), matched[start:end]...), len(matched)), nil
}

func (s *stubEndpoint) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func (s *stubEndpoint) lastCall() *types.QuerySpecification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[len(s.calls)-1]
}

func matches(w widget, f *types.FilterSpecification) bool {
	if f.IsEmpty() {
		return true
	}
	hit := false
	for _, e := range f.Entries {
		ok := e.Field == "name" && strings.Contains(w.Name, e.Value.(string))
		if ok {
			hit = true
		} else if f.LogicalOperator == types.And {
			return false
		}
	}
	return hit
}

func widgets(n int) []widget {
	out := make([]widget, n)
	for i := range out {
		out[i] = widget{ID: i + 1, Name: string(rune('a' + i))}
	}
	return out
}

func newManager(t *testing.T, stub *stubEndpoint, opts ...Option) (*QueryManager[widget], repository.Repository[widget]) {
	t.Helper()
	repo := repository.NewRepository[widget]()
	opts = append([]Option{WithCategory("widgets")}, opts...)
	return NewQueryManager[widget](repo, stub.list, opts...), repo
}

func TestFetchDefault(t *testing.T) {
	stub := &stubEndpoint{records: []widget{{ID: 1, Name: "a"}, {ID: 2, Name: "b"}}}
	m, repo := newManager(t, stub)

	_, paged := m.PageNumber()
	assert.False(t, paged)

	require.NoError(t, m.FetchDefault(context.Background(), FetchOptions{}))

	page, ok := m.PageNumber()
	require.True(t, ok)
	assert.Equal(t, 1, page)
	count, ok := m.RecordCount()
	require.True(t, ok)
	assert.Equal(t, 2, count)

	items, ok := repo.All("widgets")
	require.True(t, ok)
	assert.Equal(t, stub.records, items)
	assert.Equal(t, types.DefaultPageSize, stub.lastCall().Pagination.Size)
	assert.Empty(t, m.FetchStatus())
}

func TestFetchDefaultWithOptions(t *testing.T) {
	stub := &stubEndpoint{records: widgets(10)}
	m, _ := newManager(t, stub)

	filter := types.NewFilterSpecification(types.Or, types.NewFilterEntry("name", types.Contains, "c"))
	require.NoError(t, m.FetchDefault(context.Background(), FetchOptions{
		Pagination: types.NewPaginationSpecification(1, 3),
		Filter:     filter,
	}))

	assert.Equal(t, 3, m.PageSize())
	assert.Equal(t, types.Or, m.Filter().LogicalOperator)
	assert.Len(t, m.Filter().Entries, 1)
	items, _ := m.Items()
	assert.Equal(t, []widget{{ID: 3, Name: "c"}}, items)
}

func TestDefaultCategoryIsUnique(t *testing.T) {
	repo := repository.NewRepository[widget]()
	stub := &stubEndpoint{}
	a := NewQueryManager[widget](repo, stub.list)
	b := NewQueryManager[widget](repo, stub.list)
	assert.NotEmpty(t, a.Category())
	assert.NotEqual(t, a.Category(), b.Category())
}

func TestFetchIfNotExists(t *testing.T) {
	stub := &stubEndpoint{records: widgets(2)}
	m, _ := newManager(t, stub)
	ctx := context.Background()

	require.NoError(t, m.FetchIfNotExists(ctx))
	require.NoError(t, m.FetchIfNotExists(ctx))
	assert.Equal(t, 1, stub.callCount())
}

func TestFetchNextPageAppends(t *testing.T) {
	stub := &stubEndpoint{records: widgets(4)}
	m, repo := newManager(t, stub, WithPageSize(2))
	ctx := context.Background()

	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))
	items, _ := repo.All("widgets")
	assert.Equal(t, widgets(4)[:2], items)

	require.NoError(t, m.FetchNextPage(ctx))
	items, _ = repo.All("widgets")
	assert.Equal(t, widgets(4), items)
	page, _ := m.PageNumber()
	assert.Equal(t, 2, page)
	assert.Equal(t, 2, stub.lastCall().Pagination.Number)
	assert.False(t, m.HasNextPage())
}

func TestFetchNextPageNoOpWhenComplete(t *testing.T) {
	stub := &stubEndpoint{records: widgets(2)}
	m, repo := newManager(t, stub, WithPageSize(2))
	ctx := context.Background()

	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))
	before, _ := repo.All("widgets")
	calls := stub.callCount()

	require.NoError(t, m.FetchNextPage(ctx))
	after, _ := repo.All("widgets")
	assert.Equal(t, before, after)
	assert.Equal(t, calls, stub.callCount())
	page, _ := m.PageNumber()
	assert.Equal(t, 1, page)
}

func TestFetchNextPageNoOpBeforeFirstFetch(t *testing.T) {
	stub := &stubEndpoint{records: widgets(5)}
	m, repo := newManager(t, stub)

	require.NoError(t, m.FetchNextPage(context.Background()))
	assert.Zero(t, stub.callCount())
	_, ok := repo.All("widgets")
	assert.False(t, ok)
}

func TestFetchNextPageKeepsFilterAndTracksTotal(t *testing.T) {
	stub := &stubEndpoint{records: []widget{{1, "xa"}, {2, "b"}, {3, "xc"}, {4, "xd"}}}
	m, _ := newManager(t, stub, WithPageSize(2))
	ctx := context.Background()

	require.NoError(t, m.FetchFilters(ctx, []types.FilterEntry{types.NewFilterEntry("name", types.Contains, "x")}))
	count, _ := m.RecordCount()
	assert.Equal(t, 3, count)

	stub.mu.Lock()
	stub.records = append(stub.records, widget{5, "xe"})
	stub.mu.Unlock()

	require.NoError(t, m.FetchNextPage(ctx))
	last := stub.lastCall()
	assert.Equal(t, "x", last.Filter.Entries[0].Value)
	count, _ = m.RecordCount()
	assert.Equal(t, 4, count, "total follows the endpoint")
	items, _ := m.Items()
	assert.Equal(t, []widget{{1, "xa"}, {3, "xc"}, {4, "xd"}, {5, "xe"}}, items)
	assert.False(t, m.HasNextPage())
}

func TestConcurrentFetchNextPageSharesRequest(t *testing.T) {
	stub := &stubEndpoint{records: widgets(6)}
	m, repo := newManager(t, stub, WithPageSize(2))
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, m.FetchNextPage(ctx))
		}()
	}
	wg.Wait()

	items, _ := repo.All("widgets")
	seen := map[int]bool{}
	for _, w := range items {
		assert.False(t, seen[w.ID], "duplicate item %d", w.ID)
		seen[w.ID] = true
	}
}

// blockingEndpoint wraps stub so that calls for page wait until release is
// closed or their context ends.
func blockingEndpoint(stub *stubEndpoint, page int, entered, release chan struct{}) Endpoint[widget] {
	return func(ctx context.Context, spec *types.QuerySpecification) (*types.PageResult[widget], error) {
		if spec.Pagination.Number == page {
			close(entered)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return stub.list(ctx, spec)
	}
}

func TestFetchNextPageOutlivesCancelledCaller(t *testing.T) {
	stub := &stubEndpoint{records: widgets(4)}
	entered, release := make(chan struct{}), make(chan struct{})
	repo := repository.NewRepository[widget]()
	m := NewQueryManager[widget](repo, blockingEndpoint(stub, 2, entered, release), WithCategory("widgets"), WithPageSize(2))
	require.NoError(t, m.FetchDefault(context.Background(), FetchOptions{}))

	cancelled, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- m.FetchNextPage(cancelled) }()
	<-entered

	second := make(chan error, 1)
	go func() { second <- m.FetchNextPage(context.Background()) }()
	time.Sleep(20 * time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(release)
	require.NoError(t, <-second)

	items, _ := repo.All("widgets")
	assert.Equal(t, widgets(4), items)
	page, _ := m.PageNumber()
	assert.Equal(t, 2, page)
	assert.Equal(t, 2, stub.callCount(), "page 2 is requested once")
}

func TestFetchFiltersResetsToFirstPage(t *testing.T) {
	stub := &stubEndpoint{records: []widget{{1, "xa"}, {2, "b"}, {3, "xc"}, {4, "d"}, {5, "e"}}}
	m, repo := newManager(t, stub, WithPageSize(2))
	ctx := context.Background()

	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))
	require.NoError(t, m.FetchNextPage(ctx))
	page, _ := m.PageNumber()
	require.Equal(t, 2, page)

	entries := []types.FilterEntry{types.NewFilterEntry("name", types.Contains, "x")}
	require.NoError(t, m.FetchFilters(ctx, entries))

	page, _ = m.PageNumber()
	assert.Equal(t, 1, page)
	items, _ := repo.All("widgets")
	assert.Equal(t, []widget{{1, "xa"}, {3, "xc"}}, items)
	assert.Equal(t, types.And, m.Filter().LogicalOperator)
	assert.Equal(t, 1, stub.lastCall().Pagination.Number)
}

func TestFetchFiltersUsesOperator(t *testing.T) {
	stub := &stubEndpoint{records: []widget{{1, "a"}, {2, "b"}, {3, "c"}}}
	m, _ := newManager(t, stub, WithLogicalOperator(types.Or))
	ctx := context.Background()

	entries := []types.FilterEntry{
		types.NewFilterEntry("name", types.Contains, "a"),
		types.NewFilterEntry("name", types.Contains, "c"),
	}
	require.NoError(t, m.FetchFilters(ctx, entries))
	items, _ := m.Items()
	assert.Len(t, items, 2)

	require.NoError(t, m.FetchFilters(ctx, entries, types.And))
	items, _ = m.Items()
	assert.Empty(t, items)
	assert.Equal(t, types.And, m.Filter().LogicalOperator)
}

func TestFetchFiltersRejectsInvalidFilter(t *testing.T) {
	stub := &stubEndpoint{}
	m, _ := newManager(t, stub)
	err := m.FetchFilters(context.Background(), []types.FilterEntry{{Field: ""}})
	assert.ErrorIs(t, err, types.ErrInvalidFilter)
	assert.Zero(t, stub.callCount())
}

func TestFetchReload(t *testing.T) {
	stub := &stubEndpoint{records: widgets(6)}
	m, repo := newManager(t, stub, WithPageSize(2))
	ctx := context.Background()

	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))
	require.NoError(t, m.FetchNextPage(ctx))

	require.NoError(t, m.FetchReload(ctx, true))
	last := stub.lastCall()
	assert.Equal(t, 1, last.Pagination.Number)
	assert.Equal(t, 4, last.Pagination.Size)
	items, _ := repo.All("widgets")
	assert.Len(t, items, 4)
	page, _ := m.PageNumber()
	assert.Equal(t, 2, page)
	assert.Equal(t, 2, m.PageSize())

	require.NoError(t, m.FetchReload(ctx, false))
	items, _ = repo.All("widgets")
	assert.Len(t, items, 2)
	page, _ = m.PageNumber()
	assert.Equal(t, 1, page)
}

func TestFetchReloadBeforeFirstFetch(t *testing.T) {
	stub := &stubEndpoint{records: widgets(3)}
	m, repo := newManager(t, stub)

	require.NoError(t, m.FetchReload(context.Background(), true))
	assert.Equal(t, 1, stub.lastCall().Pagination.Number)
	items, ok := repo.All("widgets")
	require.True(t, ok)
	assert.Len(t, items, 3)
}

func TestFetchErrorPropagatesAndClearsStatus(t *testing.T) {
	boom := errors.New("boom")
	stub := &stubEndpoint{records: widgets(3)}
	m, repo := newManager(t, stub)
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))

	stub.err = boom
	err := m.FetchFilters(ctx, []types.FilterEntry{types.NewFilterEntry("name", types.Contains, "a")})
	assert.ErrorIs(t, err, boom)
	assert.False(t, m.IsFetching(StatusList))

	items, _ := repo.All("widgets")
	assert.Len(t, items, 3, "failed fetch leaves the cache alone")
	assert.Empty(t, m.Filter().Entries)
}

func TestStatusIsActiveDuringFetch(t *testing.T) {
	repo := repository.NewRepository[widget]()
	var m *QueryManager[widget]
	var during []FetchStatus
	endpoint := func(ctx context.Context, spec *types.QuerySpecification) (*types.PageResult[widget], error) {
		during = m.FetchStatus()
		return types.NewPageResult[widget](nil, 0), nil
	}
	m = NewQueryManager[widget](repo, endpoint)

	require.NoError(t, m.Add(context.Background(), func(context.Context) error { return nil }))
	assert.Equal(t, []FetchStatus{StatusCreate, StatusList}, during)
	assert.Empty(t, m.FetchStatus())
}

func TestAddReloads(t *testing.T) {
	stub := &stubEndpoint{records: widgets(2)}
	m, repo := newManager(t, stub)
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))

	err := m.Add(ctx, func(context.Context) error {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		stub.records = append(stub.records, widget{ID: 3, Name: "c"})
		return nil
	})
	require.NoError(t, err)
	items, _ := repo.All("widgets")
	assert.Len(t, items, 3)
	count, _ := m.RecordCount()
	assert.Equal(t, 3, count)
}

func TestAddFailureSkipsReload(t *testing.T) {
	stub := &stubEndpoint{records: widgets(2)}
	m, repo := newManager(t, stub)
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))
	calls := stub.callCount()
	before, _ := repo.All("widgets")

	boom := errors.New("insert failed")
	err := m.Add(ctx, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, calls, stub.callCount())
	after, _ := repo.All("widgets")
	assert.Equal(t, before, after)
	assert.False(t, m.IsFetching(StatusCreate))
}

func TestUpdateReloads(t *testing.T) {
	stub := &stubEndpoint{records: widgets(2)}
	m, repo := newManager(t, stub)
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))

	require.NoError(t, m.Update(ctx, func(context.Context) error {
		stub.mu.Lock()
		defer stub.mu.Unlock()
		stub.records[0].Name = "renamed"
		return nil
	}))
	w, ok := repo.Single("widgets", func(w widget) bool { return w.ID == 1 })
	require.True(t, ok)
	assert.Equal(t, "renamed", w.Name)
	assert.False(t, m.IsFetching(StatusUpdate))
}

func TestRemoveWhere(t *testing.T) {
	stub := &stubEndpoint{records: widgets(5)}
	m, repo := newManager(t, stub)
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))
	calls := stub.callCount()

	applied := 0
	err := m.RemoveWhere(ctx, func(w widget) bool { return w.ID == 3 }, func(context.Context) error {
		applied++
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, 1, applied)
	count, _ := m.RecordCount()
	assert.Equal(t, 4, count)
	assert.False(t, repo.Exists("widgets", func(w widget) bool { return w.ID == 3 }))
	assert.Equal(t, calls, stub.callCount(), "remove does not refetch")
	assert.False(t, m.IsFetching(StatusRemove))
}

func TestRemoveFailureKeepsCache(t *testing.T) {
	stub := &stubEndpoint{records: widgets(2)}
	m, repo := newManager(t, stub)
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))

	boom := errors.New("delete failed")
	err := m.RemoveWhere(ctx, func(w widget) bool { return w.ID == 1 }, func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)
	items, _ := repo.All("widgets")
	assert.Len(t, items, 2)
	count, _ := m.RecordCount()
	assert.Equal(t, 2, count)
}

func TestRemoveItemByPointer(t *testing.T) {
	a, b := &widget{ID: 1}, &widget{ID: 1}
	repo := repository.NewRepository[*widget]()
	endpoint := func(context.Context, *types.QuerySpecification) (*types.PageResult[*widget], error) {
		return types.NewPageResult([]*widget{a, b}, 2), nil
	}
	m := NewQueryManager[*widget](repo, endpoint, WithCategory("ptr"))
	ctx := context.Background()
	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))

	require.NoError(t, m.RemoveItem(ctx, b, nil))
	items, _ := repo.All("ptr")
	require.Len(t, items, 1)
	assert.Same(t, a, items[0])
	count, _ := m.RecordCount()
	assert.Equal(t, 1, count)
}

func TestRemoveCountFloorsAtZero(t *testing.T) {
	stub := &stubEndpoint{}
	m, _ := newManager(t, stub)
	ctx := context.Background()

	require.NoError(t, m.RemoveWhere(ctx, func(widget) bool { return true }, nil))
	_, known := m.RecordCount()
	assert.False(t, known)

	require.NoError(t, m.FetchDefault(ctx, FetchOptions{}))
	require.NoError(t, m.RemoveWhere(ctx, func(widget) bool { return true }, nil))
	count, _ := m.RecordCount()
	assert.Zero(t, count)
}

func TestSameItem(t *testing.T) {
	assert.True(t, sameItem(widget{1, "a"}, widget{1, "a"}))
	assert.False(t, sameItem(widget{1, "a"}, widget{2, "a"}))
	assert.True(t, sameItem([]int{1}, []int{1}))
	assert.True(t, sameItem[any](nil, nil))
	assert.False(t, sameItem[any](1, "1"))
}

func TestMutateAndSet(t *testing.T) {
	stub := &stubEndpoint{}
	m, repo := newManager(t, stub)

	m.Set([]widget{{ID: 1}, {ID: 2}})
	assert.True(t, m.Mutate(func(w widget) bool { return w.ID == 2 }, func(w *widget) { w.Name = "two" }))
	w, _ := repo.Single("widgets", func(w widget) bool { return w.ID == 2 })
	assert.Equal(t, "two", w.Name)
	assert.Zero(t, stub.callCount())
}

func TestDispose(t *testing.T) {
	stub := &stubEndpoint{records: widgets(3)}
	m, repo := newManager(t, stub)
	ctx := context.Background()
	require.NoError(t, m.FetchFilters(ctx, []types.FilterEntry{types.NewFilterEntry("name", types.Contains, "a")}))

	m.Dispose()
	_, ok := repo.All("widgets")
	assert.False(t, ok)
	_, paged := m.PageNumber()
	assert.False(t, paged)
	assert.True(t, m.Filter().IsEmpty())

	require.NoError(t, m.FetchNextPage(ctx))
	assert.Equal(t, 1, stub.callCount())
}

func TestDisposeDropsListStillInFlight(t *testing.T) {
	stub := &stubEndpoint{records: widgets(2)}
	entered, release := make(chan struct{}), make(chan struct{})
	repo := repository.NewRepository[widget]()
	m := NewQueryManager[widget](repo, blockingEndpoint(stub, 1, entered, release), WithCategory("widgets"))

	done := make(chan error, 1)
	go func() { done <- m.FetchDefault(context.Background(), FetchOptions{}) }()
	<-entered

	m.Dispose()
	close(release)
	require.NoError(t, <-done)

	_, ok := repo.All("widgets")
	assert.False(t, ok, "a disposed list is not written back")
	assert.Empty(t, repo.Categories())
	_, paged := m.PageNumber()
	assert.False(t, paged)
	_, counted := m.RecordCount()
	assert.False(t, counted)
}

func TestListenersMayReadManagerState(t *testing.T) {
	stub := &stubEndpoint{records: widgets(3)}
	m, repo := newManager(t, stub)

	var seen []int
	unsubscribe := repo.SubscribeCategory(m.Category(), func(repository.Event) {
		page, _ := m.PageNumber()
		seen = append(seen, page)
	})
	defer unsubscribe()

	require.NoError(t, m.FetchDefault(context.Background(), FetchOptions{}))
	assert.Equal(t, []int{1}, seen)
}

func TestNilEndpoint(t *testing.T) {
	m := NewQueryManager[widget](repository.NewRepository[widget](), nil)
	assert.ErrorIs(t, m.FetchDefault(context.Background(), FetchOptions{}), ErrNilEndpoint)
}
