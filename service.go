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

// Package listkit keeps paged, filtered list views of database records in
// an observable in-memory repository. ListService ties a QueryManager to the
// global database initialized with database.InitDB.
package listkit

import (
	"context"
	"errors"
	"sync"

	"github.com/nats-io/nats.go"
	"github.com/tomoncle/listkit/database"
	"github.com/tomoncle/listkit/endpoint/bunsql"
	"github.com/tomoncle/listkit/notify/natsbridge"
	"github.com/tomoncle/listkit/query"
	"github.com/tomoncle/listkit/repository"
	"github.com/tomoncle/listkit/types"
	"github.com/uptrace/bun"
)

// ErrDatabaseNotInitialized is returned before database.InitDB succeeded.
var ErrDatabaseNotInitialized = errors.New("listkit: database not initialized")

// ListService is a QueryManager over the table of the bun model T with
// write helpers that apply changes to the table and then resynchronize the
// cached list. It follows the global database: after CloseDB it reports
// ErrDatabaseNotInitialized, and after a new InitDB it binds to the new
// connection.
type ListService[T any] struct {
	*query.QueryManager[T]

	mu    sync.Mutex
	db    *bun.DB
	bound *binding[T]
}

// binding holds the helpers built on one database handle.
type binding[T any] struct {
	writer *bunsql.Writer[T]
	views  *bunsql.ViewStore
	list   query.Endpoint[T]
}

// NewListService returns a service writing into repo. The database is
// resolved on each use.
func NewListService[T any](repo repository.Repository[T], opts ...query.Option) *ListService[T] {
	s := &ListService[T]{}
	s.QueryManager = query.NewQueryManager[T](repo, s.fetch, opts...)
	return s
}

// NewListServiceFromConfig applies the query section of cfg before opts.
func NewListServiceFromConfig[T any](cfg *Config, repo repository.Repository[T], opts ...query.Option) *ListService[T] {
	return NewListService[T](repo, append(cfg.QueryOptions(), opts...)...)
}

// ready returns the helpers for the current global database, rebuilding
// them when InitDB replaced it.
func (s *ListService[T]) ready() (*binding[T], error) {
	db := database.GetDB()
	s.mu.Lock()
	defer s.mu.Unlock()
	if db == nil {
		s.db, s.bound = nil, nil
		return nil, ErrDatabaseNotInitialized
	}
	if db != s.db {
		s.db = db
		s.bound = &binding[T]{
			writer: bunsql.NewWriter[T](db),
			views:  bunsql.NewViewStore(db),
			list:   bunsql.NewEndpoint[T](db),
		}
	}
	return s.bound, nil
}

func (s *ListService[T]) fetch(ctx context.Context, spec *types.QuerySpecification) (*types.PageResult[T], error) {
	b, err := s.ready()
	if err != nil {
		return nil, err
	}
	return b.list(ctx, spec)
}

// Create inserts entities and reloads the list from page 1.
func (s *ListService[T]) Create(ctx context.Context, entity ...*T) error {
	b, err := s.ready()
	if err != nil {
		return err
	}
	return s.Add(ctx, b.writer.CreateApply(entity...))
}

// Save updates entity by primary key and reloads the list from page 1.
func (s *ListService[T]) Save(ctx context.Context, entity *T) error {
	b, err := s.ready()
	if err != nil {
		return err
	}
	return s.Update(ctx, b.writer.UpdateApply(entity))
}

// SaveOrUpdate upserts entities and reloads the list from page 1.
func (s *ListService[T]) SaveOrUpdate(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	b, err := s.ready()
	if err != nil {
		return err
	}
	return s.Update(ctx, b.writer.UpsertApply(fields, duplicateKeys, entity...))
}

// Delete removes the row with primary key id and drops cached items
// matching pred. The list is not refetched.
func (s *ListService[T]) Delete(ctx context.Context, id any, pred repository.Predicate[T]) error {
	b, err := s.ready()
	if err != nil {
		return err
	}
	return s.RemoveWhere(ctx, pred, b.writer.DeleteApply(id))
}

// SaveView stores the current filter and page size under name.
func (s *ListService[T]) SaveView(ctx context.Context, name string) error {
	b, err := s.ready()
	if err != nil {
		return err
	}
	return b.views.Save(ctx, bunsql.CaptureView(s.QueryManager, name))
}

// ApplyView loads page 1 with the filter and page size stored under name.
func (s *ListService[T]) ApplyView(ctx context.Context, name string) error {
	b, err := s.ready()
	if err != nil {
		return err
	}
	view, err := b.views.Get(ctx, name)
	if err != nil {
		return err
	}
	return bunsql.ApplyView(ctx, s.QueryManager, view)
}

// Views returns the store backing SaveView and ApplyView on the current
// database.
func (s *ListService[T]) Views() (*bunsql.ViewStore, error) {
	b, err := s.ready()
	if err != nil {
		return nil, err
	}
	return b.views, nil
}

// Sync publishes this service's changes through bridge and reloads on
// changes published by other processes. stop detaches both and returns the
// unsubscribe error.
func (s *ListService[T]) Sync(bridge *natsbridge.Bridge) (stop func() error, err error) {
	var sub *nats.Subscription
	sub, err = bridge.Watch(s.QueryManager)
	if err != nil {
		return nil, err
	}
	detach := bridge.AttachCategory(s.Repository(), s.Category())
	return func() error {
		detach()
		return sub.Unsubscribe()
	}, nil
}
