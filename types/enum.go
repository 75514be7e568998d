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

// Common illegal/default values used by enums.
const (
	IllegalValue = -1
	IllegalName  = "unknown"
	IllegalDesc  = "unknown"
)

// BaseEnum represents a basic enum contract used by query types.
type BaseEnum interface {
	IsValid() bool
	Number() int
	String() string
	Desc() string
	Name() string
}

// LogicalOperator joins every entry of a filter. Mixed or grouped boolean
// expressions are not supported.
type LogicalOperator int

const (
	And LogicalOperator = iota
	Or
)

var _ BaseEnum = And

var logicalOperatorNames = map[LogicalOperator][2]string{
	And: {"and", "all entries must match"},
	Or:  {"or", "at least one entry must match"},
}

func (o LogicalOperator) IsValid() bool {
	_, ok := logicalOperatorNames[o]
	return ok
}

func (o LogicalOperator) Number() int {
	if !o.IsValid() {
		return IllegalValue
	}
	return int(o)
}

func (o LogicalOperator) Name() string {
	if v, ok := logicalOperatorNames[o]; ok {
		return v[0]
	}
	return IllegalName
}

func (o LogicalOperator) Desc() string {
	if v, ok := logicalOperatorNames[o]; ok {
		return v[1]
	}
	return IllegalDesc
}

func (o LogicalOperator) String() string { return strings.ToUpper(o.Name()) }

// SQL returns the keyword used to join WHERE predicates.
func (o LogicalOperator) SQL() string {
	if o == Or {
		return " OR "
	}
	return " AND "
}

// ParseLogicalOperator accepts "and"/"or" in any case. An empty string means And.
func ParseLogicalOperator(s string) (LogicalOperator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "and", "&&":
		return And, nil
	case "or", "||":
		return Or, nil
	}
	return And, fmt.Errorf("unknown logical operator: %q", s)
}

func (o LogicalOperator) MarshalJSON() ([]byte, error) {
	return json.Marshal(o.Name())
}

func (o *LogicalOperator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	v, err := ParseLogicalOperator(s)
	if err != nil {
		return err
	}
	*o = v
	return nil
}
