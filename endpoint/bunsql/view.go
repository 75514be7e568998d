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

package bunsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tomoncle/listkit/database"
	"github.com/tomoncle/listkit/query"
	"github.com/tomoncle/listkit/types"
	"github.com/uptrace/bun"
)

// ErrViewNotFound is returned by ViewStore.Get for unknown names.
var ErrViewNotFound = errors.New("saved view not found")

// SavedView is a named filter and page size that can be re-applied to a
// QueryManager.
type SavedView struct {
	bun.BaseModel `bun:"table:listkit_saved_views,alias:sv"`

	ID        int64                      `bun:"id,pk,autoincrement" json:"id"`
	Name      string                     `bun:"name,notnull,unique" json:"name"`
	Category  string                     `bun:"category" json:"category"`
	Filter    *types.FilterSpecification `bun:"filter,type:text" json:"filter"`
	PageSize  int                        `bun:"page_size,notnull" json:"pageSize"`
	Meta      types.JsonObject           `bun:"meta,type:text" json:"meta,omitempty"`
	CreatedAt time.Time                  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"createdAt"`
	UpdatedAt time.Time                  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updatedAt"`
}

var savedViewUpdateFields = []string{"category", "filter", "page_size", "meta", "updated_at"}

// ViewStore persists SavedView rows.
type ViewStore struct {
	db     bun.IDB
	writer *Writer[SavedView]
	list   query.Endpoint[SavedView]
}

func NewViewStore(db bun.IDB) *ViewStore {
	return &ViewStore{
		db:     db,
		writer: NewWriter[SavedView](db),
		list:   NewEndpoint[SavedView](db, WithOrder("name ASC")),
	}
}

// CreateTable creates the saved view table if it does not exist.
func (s *ViewStore) CreateTable(ctx context.Context) error {
	return database.CreateTables(ctx, s.db, (*SavedView)(nil))
}

// Save inserts view or, if a view with the same name exists, overwrites its
// filter, category, page size and meta.
func (s *ViewStore) Save(ctx context.Context, view *SavedView) error {
	if view.Name == "" {
		return fmt.Errorf("saved view has no name")
	}
	if err := view.Filter.Validate(); err != nil {
		return err
	}
	now := time.Now().UTC()
	if view.CreatedAt.IsZero() {
		view.CreatedAt = now
	}
	view.UpdatedAt = now
	return s.writer.Upsert(ctx, savedViewUpdateFields, []string{"name"}, view)
}

func (s *ViewStore) Get(ctx context.Context, name string) (*SavedView, error) {
	view := new(SavedView)
	if err := s.db.NewSelect().Model(view).Where("? = ?", bun.Ident("name"), name).Scan(ctx); err != nil {
		if database.KindOf(err) == database.NoRowsErr {
			return nil, fmt.Errorf("%w: %q", ErrViewNotFound, name)
		}
		return nil, database.Classify("select saved view "+name, err)
	}
	return view, nil
}

// List returns one page of views, optionally restricted to category.
func (s *ViewStore) List(ctx context.Context, category string, page *types.PaginationSpecification) (*types.PageResult[SavedView], error) {
	filter := types.NewFilterSpecification(types.And)
	if category != "" {
		filter.Entries = append(filter.Entries, types.NewFilterEntry("category", types.Equal, category))
	}
	return s.list(ctx, types.NewQuerySpecification(page, filter))
}

func (s *ViewStore) Delete(ctx context.Context, name string) error {
	_, err := s.db.NewDelete().Model((*SavedView)(nil)).Where("? = ?", bun.Ident("name"), name).Exec(ctx)
	return database.Classify("delete saved view "+name, err)
}

// CaptureView snapshots the filter and page size of m under name.
func CaptureView[T any](m *query.QueryManager[T], name string) *SavedView {
	return &SavedView{
		Name:     name,
		Category: string(m.Category()),
		Filter:   m.Filter(),
		PageSize: m.PageSize(),
	}
}

// ApplyView reloads m from page 1 with the view's filter and page size.
func ApplyView[T any](ctx context.Context, m *query.QueryManager[T], view *SavedView) error {
	return m.FetchDefault(ctx, query.FetchOptions{
		Pagination: types.NewPaginationSpecification(1, view.PageSize),
		Filter:     view.Filter,
	})
}
