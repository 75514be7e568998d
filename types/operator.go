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
	"fmt"
	"strings"
)

// ComparisonOperator compares a record field with a filter value.
type ComparisonOperator int

const (
	Equal ComparisonOperator = iota
	NotEqual
	GreaterThan
	GreaterThanOrEqual
	LessThan
	LessThanOrEqual
	Contains
	StartsWith
	EndsWith
	In
	IsNull
	IsNotNull
)

var _ BaseEnum = Equal

type operatorInfo struct {
	name    string
	desc    string
	aliases []string
}

var comparisonOperators = map[ComparisonOperator]operatorInfo{
	Equal:              {"eq", "field equals value", []string{"=", "==", "equal", "equals"}},
	NotEqual:           {"ne", "field differs from value", []string{"!=", "<>", "notequal"}},
	GreaterThan:        {"gt", "field is greater than value", []string{">"}},
	GreaterThanOrEqual: {"gte", "field is greater than or equal to value", []string{">="}},
	LessThan:           {"lt", "field is less than value", []string{"<"}},
	LessThanOrEqual:    {"lte", "field is less than or equal to value", []string{"<="}},
	Contains:           {"contains", "field contains value", []string{"like"}},
	StartsWith:         {"startswith", "field starts with value", []string{"prefix"}},
	EndsWith:           {"endswith", "field ends with value", []string{"suffix"}},
	In:                 {"in", "field is one of the values", nil},
	IsNull:             {"isnull", "field has no value", []string{"null"}},
	IsNotNull:          {"isnotnull", "field has a value", []string{"notnull"}},
}

func (o ComparisonOperator) IsValid() bool {
	_, ok := comparisonOperators[o]
	return ok
}

func (o ComparisonOperator) Number() int {
	if !o.IsValid() {
		return IllegalValue
	}
	return int(o)
}

func (o ComparisonOperator) Name() string {
	if v, ok := comparisonOperators[o]; ok {
		return v.name
	}
	return IllegalName
}

func (o ComparisonOperator) Desc() string {
	if v, ok := comparisonOperators[o]; ok {
		return v.desc
	}
	return IllegalDesc
}

func (o ComparisonOperator) String() string { return o.Name() }

// NeedsValue reports whether the operator reads FilterEntry.Value.
func (o ComparisonOperator) NeedsValue() bool {
	return o != IsNull && o != IsNotNull
}

// ParseComparisonOperator resolves an operator by name or alias, ignoring case.
func ParseComparisonOperator(s string) (ComparisonOperator, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for op, info := range comparisonOperators {
		if info.name == key {
			return op, nil
		}
		for _, a := range info.aliases {
			if a == key {
				return op, nil
			}
		}
	}
	return Equal, fmt.Errorf("unknown comparison operator: %q", s)
}

func (o ComparisonOperator) MarshalJSON() ([]byte, error) {
	if !o.IsValid() {
		return nil, fmt.Errorf("invalid comparison operator: %d", int(o))
	}
	return json.Marshal(o.Name())
}

func (o *ComparisonOperator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseComparisonOperator(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}
