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

package database

import (
	"context"

	"github.com/uptrace/bun"
)

// CreateTables creates a table for each model, skipping existing ones, in
// a single transaction. Models are bun struct pointers such as
// (*User)(nil).
func CreateTables(ctx context.Context, db bun.IDB, models ...interface{}) error {
	if len(models) == 0 {
		return nil
	}
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, model := range models {
			if _, err := tx.NewCreateTable().Model(model).IfNotExists().Exec(ctx); err != nil {
				return Classify("create table "+TableName(tx, model), err)
			}
		}
		return nil
	})
}

// DropTables drops the tables of the given models in reverse order.
func DropTables(ctx context.Context, db bun.IDB, models ...interface{}) error {
	for i := len(models) - 1; i >= 0; i-- {
		if _, err := db.NewDropTable().Model(models[i]).IfExists().Exec(ctx); err != nil {
			if KindOf(err) == NoTableErr {
				continue
			}
			return Classify("drop table "+TableName(db, models[i]), err)
		}
	}
	return nil
}
