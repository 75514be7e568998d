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

package types

import (
	"errors"
	"fmt"
)

// DefaultPageSize is used when a pagination request carries no usable size.
const DefaultPageSize = 10

// ErrInvalidFilter is returned by FilterSpecification.Validate.
var ErrInvalidFilter = errors.New("invalid filter")

// FilterEntry binds one record field to an operator and a value.
type FilterEntry struct {
	Field    string             `json:"field" yaml:"field"`
	Operator ComparisonOperator `json:"operator" yaml:"operator"`
	Value    any                `json:"value,omitempty" yaml:"value,omitempty"`
}

// NewFilterEntry creates a filter entry.
func NewFilterEntry(field string, op ComparisonOperator, value any) FilterEntry {
	return FilterEntry{Field: field, Operator: op, Value: value}
}

// FilterSpecification is an ordered list of entries combined with a single
// logical operator.
type FilterSpecification struct {
	LogicalOperator LogicalOperator `json:"logicalOperator" yaml:"logical_operator"`
	Entries         []FilterEntry   `json:"entries" yaml:"entries"`
}

// NewFilterSpecification creates a filter over the given entries.
func NewFilterSpecification(op LogicalOperator, entries ...FilterEntry) *FilterSpecification {
	return &FilterSpecification{LogicalOperator: op, Entries: entries}
}

// IsEmpty reports whether the filter matches everything.
func (f *FilterSpecification) IsEmpty() bool {
	return f == nil || len(f.Entries) == 0
}

// Clone returns a copy that shares no entry slice with f.
func (f *FilterSpecification) Clone() *FilterSpecification {
	if f == nil {
		return nil
	}
	entries := make([]FilterEntry, len(f.Entries))
	copy(entries, f.Entries)
	return &FilterSpecification{LogicalOperator: f.LogicalOperator, Entries: entries}
}

// Validate checks operators and field names.
func (f *FilterSpecification) Validate() error {
	if f == nil {
		return nil
	}
	if !f.LogicalOperator.IsValid() {
		return fmt.Errorf("%w: logical operator %d", ErrInvalidFilter, int(f.LogicalOperator))
	}
	for i, e := range f.Entries {
		if e.Field == "" {
			return fmt.Errorf("%w: entry %d has no field", ErrInvalidFilter, i)
		}
		if !e.Operator.IsValid() {
			return fmt.Errorf("%w: entry %d (%s) has operator %d", ErrInvalidFilter, i, e.Field, int(e.Operator))
		}
	}
	return nil
}

// PaginationSpecification requests one page. Number is 1-based.
type PaginationSpecification struct {
	Number int `json:"number" yaml:"number"`
	Size   int `json:"size" yaml:"size"`
}

// NewPaginationSpecification creates a page request.
func NewPaginationSpecification(number, size int) *PaginationSpecification {
	return &PaginationSpecification{Number: number, Size: size}
}

// Normalize returns a copy with Number >= 1 and Size >= 1, using
// defaultSize for missing sizes.
func (p *PaginationSpecification) Normalize(defaultSize int) *PaginationSpecification {
	if defaultSize < 1 {
		defaultSize = DefaultPageSize
	}
	out := &PaginationSpecification{Number: 1, Size: defaultSize}
	if p == nil {
		return out
	}
	if p.Number > 0 {
		out.Number = p.Number
	}
	if p.Size > 0 {
		out.Size = p.Size
	}
	return out
}

// Offset returns the zero-based index of the first record on the page.
func (p *PaginationSpecification) Offset() int {
	if p == nil || p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Size
}

// QuerySpecification is the argument handed to a list endpoint.
type QuerySpecification struct {
	Pagination *PaginationSpecification `json:"pagination,omitempty" yaml:"pagination,omitempty"`
	Filter     *FilterSpecification     `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// NewQuerySpecification creates a query specification.
func NewQuerySpecification(pagination *PaginationSpecification, filter *FilterSpecification) *QuerySpecification {
	return &QuerySpecification{Pagination: pagination, Filter: filter}
}

// PageResult holds one page of items along with the total number of matches.
type PageResult[T any] struct {
	Items      []T `json:"items"`
	TotalCount int `json:"totalCount"`
}

// NewPageResult constructs a page result.
func NewPageResult[T any](items []T, total int) *PageResult[T] {
	if items == nil {
		items = make([]T, 0)
	}
	return &PageResult[T]{Items: items, TotalCount: total}
}
