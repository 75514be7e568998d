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
	"reflect"
	"sort"
	"sync"

	"github.com/uptrace/bun"
)

var models = newModelRegistry()

// modelRegistry holds the bun models whose tables InitDB creates and the
// health check probes. A model type is registered once; registering it
// again only updates its priority.
type modelRegistry struct {
	mu      sync.RWMutex
	entries []modelEntry
	index   map[reflect.Type]int
}

type modelEntry struct {
	instance interface{}
	priority int
}

func newModelRegistry() *modelRegistry {
	return &modelRegistry{index: map[reflect.Type]int{}}
}

func modelType(instance interface{}) reflect.Type {
	typ := reflect.TypeOf(instance)
	for typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	return typ
}

func (r *modelRegistry) register(instance interface{}, priority int) {
	typ := modelType(instance)
	r.mu.Lock()
	defer r.mu.Unlock()
	if i, ok := r.index[typ]; ok {
		r.entries[i].priority = priority
		return
	}
	r.index[typ] = len(r.entries)
	r.entries = append(r.entries, modelEntry{instance: instance, priority: priority})
}

// instances returns the models ordered by priority, then registration order.
func (r *modelRegistry) instances() []interface{} {
	r.mu.RLock()
	entries := append([]modelEntry(nil), r.entries...)
	r.mu.RUnlock()

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].priority < entries[j].priority
	})
	out := make([]interface{}, len(entries))
	for i, e := range entries {
		out[i] = e.instance
	}
	return out
}

// RegisterModel registers a bun model such as (*Task)(nil). Tables of lower
// priority are created first.
func RegisterModel(instance interface{}, priority int) {
	models.register(instance, priority)
}

// RegisterModels registers instances with priority 0.
func RegisterModels(instances ...interface{}) {
	for _, instance := range instances {
		models.register(instance, 0)
	}
}

func RegisteredModels() []interface{} {
	return models.instances()
}

// TableName resolves the table name of a bun model on db's dialect.
func TableName(db bun.IDB, model interface{}) string {
	return db.Dialect().Tables().Get(modelType(model)).Name
}
