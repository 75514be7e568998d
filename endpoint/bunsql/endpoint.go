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
	"reflect"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/listkit/database"
	"github.com/tomoncle/listkit/query"
	"github.com/tomoncle/listkit/types"
	"github.com/tomoncle/listkit/utils"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/schema"
)

var (
	// ErrUnknownField is returned when a filter names a field the model does
	// not map to a column.
	ErrUnknownField = errors.New("unknown filter field")
	// ErrInvalidValue is returned when a filter value does not fit its operator.
	ErrInvalidValue = errors.New("invalid filter value")
)

type Option func(*endpointOptions)

type endpointOptions struct {
	orders   []string
	pageSize int
	logger   logrus.FieldLogger
}

// WithOrder sets the ORDER BY expressions, for example "id ASC". The default
// is the primary key ascending.
func WithOrder(orders ...string) Option {
	return func(o *endpointOptions) {
		o.orders = append(o.orders, orders...)
	}
}

// WithPageSize sets the size used when a request carries no pagination.
func WithPageSize(size int) Option {
	return func(o *endpointOptions) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *endpointOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewEndpoint returns a list endpoint over the table of the bun model T.
// T must be a struct type. Filter fields may name either the column or the
// Go struct field.
func NewEndpoint[T any](db bun.IDB, opts ...Option) query.Endpoint[T] {
	o := endpointOptions{pageSize: types.DefaultPageSize}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = utils.NewLogger("BUNSQL")
	}
	table := db.Dialect().Tables().Get(reflect.TypeOf((*T)(nil)).Elem())
	columns := columnIndex(table)
	orders := o.orders
	if len(orders) == 0 {
		for _, pk := range table.PKs {
			orders = append(orders, pk.Name+" ASC")
		}
	}
	logger := o.logger.WithField("table", table.Name)

	return func(ctx context.Context, spec *types.QuerySpecification) (*types.PageResult[T], error) {
		if spec == nil {
			spec = &types.QuerySpecification{}
		}
		pagination := spec.Pagination.Normalize(o.pageSize)

		var items []T
		q := db.NewSelect().Model(&items)
		q, err := applyFilter(q, spec.Filter, columns)
		if err != nil {
			return nil, err
		}

		total, err := q.Count(ctx)
		if err != nil {
			return nil, database.Classify("count "+table.Name, err)
		}
		logger.WithFields(logrus.Fields{
			"page":  pagination.Number,
			"size":  pagination.Size,
			"total": total,
		}).Debug("select page")
		if total == 0 || pagination.Offset() >= total {
			return types.NewPageResult[T](nil, total), nil
		}

		q = q.Offset(pagination.Offset()).Limit(pagination.Size)
		if len(orders) > 0 {
			q = q.Order(orders...)
		}
		if err := q.Scan(ctx); err != nil {
			return nil, database.Classify("select "+table.Name, err)
		}
		return types.NewPageResult(items, total), nil
	}
}

func columnIndex(table *schema.Table) map[string]string {
	columns := make(map[string]string, len(table.Fields)*2)
	for _, f := range table.Fields {
		columns[f.Name] = f.Name
		columns[f.GoName] = f.Name
		columns[strings.ToLower(f.GoName)] = f.Name
	}
	return columns
}

func applyFilter(q *bun.SelectQuery, filter *types.FilterSpecification, columns map[string]string) (*bun.SelectQuery, error) {
	if filter.IsEmpty() {
		return q, nil
	}
	if err := filter.Validate(); err != nil {
		return nil, err
	}

	type clause struct {
		expr string
		args []interface{}
	}
	clauses := make([]clause, 0, len(filter.Entries))
	for _, e := range filter.Entries {
		column, ok := columns[e.Field]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownField, e.Field)
		}
		expr, args, err := condition(bun.Ident(column), e)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause{expr: expr, args: args})
	}

	or := filter.LogicalOperator == types.Or
	return q.WhereGroup(" AND ", func(q *bun.SelectQuery) *bun.SelectQuery {
		for _, c := range clauses {
			if or {
				q = q.WhereOr(c.expr, c.args...)
			} else {
				q = q.Where(c.expr, c.args...)
			}
		}
		return q
	}), nil
}

var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

const likeExpr = "? LIKE ? ESCAPE '!'"

func condition(column schema.Ident, e types.FilterEntry) (string, []interface{}, error) {
	switch e.Operator {
	case types.Equal:
		return "? = ?", []interface{}{column, e.Value}, nil
	case types.NotEqual:
		return "? <> ?", []interface{}{column, e.Value}, nil
	case types.GreaterThan:
		return "? > ?", []interface{}{column, e.Value}, nil
	case types.GreaterThanOrEqual:
		return "? >= ?", []interface{}{column, e.Value}, nil
	case types.LessThan:
		return "? < ?", []interface{}{column, e.Value}, nil
	case types.LessThanOrEqual:
		return "? <= ?", []interface{}{column, e.Value}, nil
	case types.Contains:
		return likeExpr, []interface{}{column, "%" + likeEscaper.Replace(fmt.Sprint(e.Value)) + "%"}, nil
	case types.StartsWith:
		return likeExpr, []interface{}{column, likeEscaper.Replace(fmt.Sprint(e.Value)) + "%"}, nil
	case types.EndsWith:
		return likeExpr, []interface{}{column, "%" + likeEscaper.Replace(fmt.Sprint(e.Value))}, nil
	case types.In:
		v := reflect.ValueOf(e.Value)
		if !v.IsValid() || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
			return "", nil, fmt.Errorf("%w: %s %s needs a list, got %T", ErrInvalidValue, e.Field, e.Operator, e.Value)
		}
		if v.Len() == 0 {
			return "1 = 0", nil, nil
		}
		return "? IN (?)", []interface{}{column, bun.In(e.Value)}, nil
	case types.IsNull:
		return "? IS NULL", []interface{}{column}, nil
	case types.IsNotNull:
		return "? IS NOT NULL", []interface{}{column}, nil
	}
	return "", nil, fmt.Errorf("%w: operator %d", types.ErrInvalidFilter, int(e.Operator))
}
