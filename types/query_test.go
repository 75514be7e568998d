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
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaginationNormalize(t *testing.T) {
	var nilPage *PaginationSpecification
	assert.Equal(t, &PaginationSpecification{Number: 1, Size: 25}, nilPage.Normalize(25))
	assert.Equal(t, &PaginationSpecification{Number: 1, Size: DefaultPageSize}, NewPaginationSpecification(0, 0).Normalize(0))
	assert.Equal(t, &PaginationSpecification{Number: 3, Size: 5}, NewPaginationSpecification(3, 5).Normalize(20))
}

func TestPaginationOffset(t *testing.T) {
	assert.Equal(t, 0, NewPaginationSpecification(1, 10).Offset())
	assert.Equal(t, 20, NewPaginationSpecification(3, 10).Offset())
	assert.Equal(t, 0, (*PaginationSpecification)(nil).Offset())
}

func TestFilterValidate(t *testing.T) {
	ok := NewFilterSpecification(Or,
		NewFilterEntry("name", Contains, "x"),
		NewFilterEntry("deleted_at", IsNull, nil),
	)
	require.NoError(t, ok.Validate())
	require.NoError(t, (*FilterSpecification)(nil).Validate())

	noField := NewFilterSpecification(And, NewFilterEntry("", Equal, 1))
	assert.ErrorIs(t, noField.Validate(), ErrInvalidFilter)

	badOp := NewFilterSpecification(And, FilterEntry{Field: "a", Operator: ComparisonOperator(99)})
	assert.ErrorIs(t, badOp.Validate(), ErrInvalidFilter)

	badLogical := &FilterSpecification{LogicalOperator: LogicalOperator(7)}
	assert.ErrorIs(t, badLogical.Validate(), ErrInvalidFilter)
}

func TestFilterCloneIsIndependent(t *testing.T) {
	f := NewFilterSpecification(And, NewFilterEntry("a", Equal, 1))
	c := f.Clone()
	c.Entries[0].Field = "b"
	assert.Equal(t, "a", f.Entries[0].Field)
	assert.Nil(t, (*FilterSpecification)(nil).Clone())
	assert.True(t, (*FilterSpecification)(nil).IsEmpty())
}

func TestOperatorParsing(t *testing.T) {
	op, err := ParseComparisonOperator(">=")
	require.NoError(t, err)
	assert.Equal(t, GreaterThanOrEqual, op)

	op, err = ParseComparisonOperator("Contains")
	require.NoError(t, err)
	assert.Equal(t, Contains, op)

	_, err = ParseComparisonOperator("between")
	assert.Error(t, err)

	lo, err := ParseLogicalOperator("OR")
	require.NoError(t, err)
	assert.Equal(t, Or, lo)
	assert.Equal(t, " OR ", lo.SQL())

	assert.Equal(t, IllegalValue, LogicalOperator(9).Number())
	assert.Equal(t, IllegalName, ComparisonOperator(-2).Name())
	assert.False(t, IsNotNull.NeedsValue())
}

func TestQuerySpecificationJSON(t *testing.T) {
	spec := NewQuerySpecification(
		NewPaginationSpecification(2, 50),
		NewFilterSpecification(Or, NewFilterEntry("name", StartsWith, "ab")),
	)
	b, err := json.Marshal(spec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pagination":{"number":2,"size":50},"filter":{"logicalOperator":"or","entries":[{"field":"name","operator":"startswith","value":"ab"}]}}`, string(b))

	var decoded QuerySpecification
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, Or, decoded.Filter.LogicalOperator)
	assert.Equal(t, StartsWith, decoded.Filter.Entries[0].Operator)
}

func TestFilterScan(t *testing.T) {
	f := NewFilterSpecification(And, NewFilterEntry("status", In, []any{"open", "new"}))
	v, err := f.Value()
	require.NoError(t, err)

	var scanned FilterSpecification
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, "status", scanned.Entries[0].Field)
	assert.Equal(t, In, scanned.Entries[0].Operator)

	require.NoError(t, scanned.Scan(nil))
	assert.True(t, scanned.IsEmpty())
	assert.Error(t, scanned.Scan(42))
}

func TestJsonObjectScan(t *testing.T) {
	obj := JsonObject{"owner": "ops", "pinned": true}
	v, err := obj.Value()
	require.NoError(t, err)

	var scanned JsonObject
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, "ops", scanned["owner"])
	assert.Equal(t, true, scanned["pinned"])

	require.NoError(t, scanned.Scan([]byte(`{"n":1}`)))
	assert.Equal(t, float64(1), scanned["n"])

	require.NoError(t, scanned.Scan(nil))
	assert.Empty(t, scanned)

	nilValue, err := JsonObject(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, nilValue)
}
