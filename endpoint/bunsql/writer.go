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
	"fmt"
	"reflect"
	"strings"

	"github.com/tomoncle/listkit/database"
	"github.com/tomoncle/listkit/query"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/feature"
	"github.com/uptrace/bun/schema"
)

// Writer performs inserts, updates, upserts and deletes on the table of the
// bun model T. A Writer built on a bun.Tx writes inside that transaction.
type Writer[T any] struct {
	db bun.IDB
}

func NewWriter[T any](db bun.IDB) *Writer[T] {
	return &Writer[T]{db: db}
}

// WithTx returns a writer bound to tx.
func (w *Writer[T]) WithTx(tx bun.Tx) *Writer[T] {
	return &Writer[T]{db: tx}
}

func (w *Writer[T]) Create(ctx context.Context, entity ...*T) error {
	if len(entity) == 0 {
		return nil
	}
	entities := append([]*T(nil), entity...)
	_, err := w.db.NewInsert().Model(&entities).Exec(ctx)
	return database.Classify("insert "+w.table().Name, err)
}

// Update writes every column of entity, matched by primary key.
func (w *Writer[T]) Update(ctx context.Context, entity *T) error {
	_, err := w.db.NewUpdate().Model(entity).WherePK().Exec(ctx)
	return database.Classify("update "+w.table().Name, err)
}

// Delete removes the row whose single primary key equals id.
func (w *Writer[T]) Delete(ctx context.Context, id any) error {
	var entity T
	_, err := w.db.NewDelete().Model(&entity).Where("? = ?", bun.Ident(w.pk()), id).Exec(ctx)
	return database.Classify("delete "+w.table().Name, err)
}

// Upsert inserts entities and, on a conflict over duplicateKeys (default
// "id"), updates fields. Dialects without ON CONFLICT or ON DUPLICATE KEY
// fall back to insert then update by primary key.
func (w *Writer[T]) Upsert(ctx context.Context, fields []string, duplicateKeys []string, entity ...*T) error {
	if len(fields) == 0 {
		return fmt.Errorf("fields cannot be empty")
	}
	if len(entity) == 0 {
		return nil
	}
	entities := append([]*T(nil), entity...)

	var err error
	features := w.db.Dialect().Features()
	switch {
	case features.Has(feature.InsertOnConflict):
		err = w.upsertOnConflict(ctx, fields, duplicateKeys, entities)
	case features.Has(feature.InsertOnDuplicateKey):
		err = w.upsertOnDuplicateKey(ctx, fields, entities)
	default:
		err = w.upsertFallback(ctx, entities)
	}
	return database.Classify("upsert "+w.table().Name, err)
}

func (w *Writer[T]) upsertOnDuplicateKey(ctx context.Context, fields []string, entities []*T) error {
	set := make([]string, 0, len(fields))
	args := make([]interface{}, 0, len(fields)*2)
	for _, field := range fields {
		set = append(set, "? = VALUES(?)")
		args = append(args, bun.Ident(field), bun.Ident(field))
	}
	_, err := w.db.NewInsert().
		Model(&entities).
		On("DUPLICATE KEY UPDATE "+strings.Join(set, ", "), args...).
		Exec(ctx)
	return err
}

func (w *Writer[T]) upsertOnConflict(ctx context.Context, fields []string, duplicateKeys []string, entities []*T) error {
	if len(duplicateKeys) == 0 {
		duplicateKeys = []string{w.pk()}
	}
	q := w.db.NewInsert().
		Model(&entities).
		On("CONFLICT (" + strings.Join(duplicateKeys, ", ") + ") DO UPDATE")
	for _, field := range fields {
		q = q.Set("? = EXCLUDED.?", bun.Ident(field), bun.Ident(field))
	}
	_, err := q.Exec(ctx)
	return err
}

func (w *Writer[T]) upsertFallback(ctx context.Context, entities []*T) error {
	for _, entity := range entities {
		if _, err := w.db.NewInsert().Model(entity).Exec(ctx); err != nil {
			if _, updateErr := w.db.NewUpdate().Model(entity).WherePK().Exec(ctx); updateErr != nil {
				return fmt.Errorf("upsert failed for entity: insert error: %v, update error: %w", err, updateErr)
			}
		}
	}
	return nil
}

func (w *Writer[T]) table() *schema.Table {
	return w.db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem())
}

func (w *Writer[T]) pk() string {
	table := w.table()
	if len(table.PKs) == 1 {
		return table.PKs[0].Name
	}
	return "id"
}

// CreateApply returns an apply function for QueryManager.Add.
func (w *Writer[T]) CreateApply(entity ...*T) query.ApplyFunc {
	return func(ctx context.Context) error {
		return w.Create(ctx, entity...)
	}
}

// UpdateApply returns an apply function for QueryManager.Update.
func (w *Writer[T]) UpdateApply(entity *T) query.ApplyFunc {
	return func(ctx context.Context) error {
		return w.Update(ctx, entity)
	}
}

// UpsertApply returns an apply function for QueryManager.Add or Update.
func (w *Writer[T]) UpsertApply(fields []string, duplicateKeys []string, entity ...*T) query.ApplyFunc {
	return func(ctx context.Context) error {
		return w.Upsert(ctx, fields, duplicateKeys, entity...)
	}
}

// DeleteApply returns an apply function for QueryManager.RemoveWhere and
// RemoveItem.
func (w *Writer[T]) DeleteApply(id any) query.ApplyFunc {
	return func(ctx context.Context) error {
		return w.Delete(ctx, id)
	}
}
