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

package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tomoncle/listkit/query"
	"github.com/tomoncle/listkit/repository"
	"github.com/tomoncle/listkit/types"
	"github.com/tomoncle/listkit/utils"
	"golang.org/x/time/rate"
)

func TestMain(m *testing.M) {
	utils.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type user struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// userAPI serves 23 users named user-01..user-23. A "name" contains filter
// is honoured; other entries are ignored.
func userAPI(t *testing.T, hits *int32) *httptest.Server {
	t.Helper()
	all := make([]user, 0, 23)
	for i := 1; i <= 23; i++ {
		all = append(all, user{ID: i, Name: "user-" + twoDigits(i)})
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			atomic.AddInt32(hits, 1)
		}
		if r.Method != http.MethodPost || r.Header.Get("Content-Type") != "application/json" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		if r.Header.Get("Authorization") == "Bearer denied" {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		var spec types.QuerySpecification
		if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		matched := all
		if !spec.Filter.IsEmpty() {
			matched = nil
			for _, u := range all {
				for _, e := range spec.Filter.Entries {
					if e.Field == "name" && e.Operator == types.Contains && strings.Contains(u.Name, e.Value.(string)) {
						matched = append(matched, u)
						break
					}
				}
			}
		}
		page := spec.Pagination.Normalize(types.DefaultPageSize)
		start := min(page.Offset(), len(matched))
		end := min(start+page.Size, len(matched))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(types.NewPageResult(matched[start:end], len(matched)))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func twoDigits(i int) string {
	return string([]byte{byte('0' + i/10), byte('0' + i%10)})
}

func TestEndpointRoundTrip(t *testing.T) {
	srv := userAPI(t, nil)
	endpoint := NewEndpoint[user](srv.URL)

	result, err := endpoint(context.Background(), types.NewQuerySpecification(
		types.NewPaginationSpecification(3, 10), nil))
	require.NoError(t, err)
	assert.Equal(t, 23, result.TotalCount)
	require.Len(t, result.Items, 3)
	assert.Equal(t, "user-21", result.Items[0].Name)

	result, err = endpoint(context.Background(), types.NewQuerySpecification(nil,
		types.NewFilterSpecification(types.And, types.NewFilterEntry("name", types.Contains, "-1"))))
	require.NoError(t, err)
	assert.Equal(t, 10, result.TotalCount)
}

func TestEndpointSurfacesStatusErrors(t *testing.T) {
	srv := userAPI(t, nil)
	endpoint := NewEndpoint[user](srv.URL, WithHeader("Authorization", "Bearer denied"))

	_, err := endpoint(context.Background(), nil)
	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusForbidden, statusErr.Code)
	assert.Equal(t, "forbidden", statusErr.Body)
	assert.Contains(t, statusErr.Error(), "403")
}

func TestEndpointRejectsMalformedPages(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>"))
	}))
	defer srv.Close()

	_, err := NewEndpoint[user](srv.URL)(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode page")
}

func TestEndpointWaitsOnRateLimiter(t *testing.T) {
	var hits int32
	srv := userAPI(t, &hits)
	limiter := rate.NewLimiter(rate.Every(time.Hour), 1)
	endpoint := NewEndpoint[user](srv.URL, WithRateLimiter(limiter), WithHTTPClient(srv.Client()))

	_, err := endpoint(context.Background(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = endpoint(ctx, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestQueryManagerOverRestEndpoint(t *testing.T) {
	srv := userAPI(t, nil)
	m := query.NewQueryManager[user](repository.NewRepository[user](), NewEndpoint[user](srv.URL),
		query.WithPageSize(10))
	ctx := context.Background()

	require.NoError(t, m.FetchDefault(ctx, query.FetchOptions{}))
	for m.HasNextPage() {
		require.NoError(t, m.FetchNextPage(ctx))
	}
	items, ok := m.Items()
	require.True(t, ok)
	assert.Len(t, items, 23)
	page, _ := m.PageNumber()
	assert.Equal(t, 3, page)

	require.NoError(t, m.FetchFilters(ctx, []types.FilterEntry{
		types.NewFilterEntry("name", types.Contains, "-2"),
	}))
	items, _ = m.Items()
	assert.Len(t, items, 4)
	count, _ := m.RecordCount()
	assert.Equal(t, 4, count)
}
