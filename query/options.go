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

package query

import (
	"github.com/sirupsen/logrus"
	"github.com/tomoncle/listkit/repository"
	"github.com/tomoncle/listkit/types"
)

// Option configures a QueryManager.
type Option func(*managerOptions)

type managerOptions struct {
	category        repository.Category
	logicalOperator types.LogicalOperator
	pageSize        int
	logger          logrus.FieldLogger
}

// WithCategory sets the repository category the manager writes to. Without it
// a random category is generated, so two managers never share a collection by
// accident.
func WithCategory(category repository.Category) Option {
	return func(o *managerOptions) { o.category = category }
}

// WithLogicalOperator sets the operator used when a filter is given without one.
func WithLogicalOperator(op types.LogicalOperator) Option {
	return func(o *managerOptions) {
		if op.IsValid() {
			o.logicalOperator = op
		}
	}
}

// WithPageSize sets the default page size.
func WithPageSize(size int) Option {
	return func(o *managerOptions) {
		if size > 0 {
			o.pageSize = size
		}
	}
}

func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *managerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
