// Copyright 2026 the pwsafe-matrix-go authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package diff

import (
	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// DiffEdit is the per-record piece of a Diff: fields to set (added or
// changed) and field types to delete. Set preserves insertion order so
// Apply can emit a brand-new record's fields in the order they were
// observed, matching spec.md §4.2's "set entries in insertion order".
type DiffEdit struct {
	order  []pwtypes.FieldType
	values map[pwtypes.FieldType][]byte
	Delete mapset.Set[pwtypes.FieldType]
}

// NewDiffEdit returns an empty edit.
func NewDiffEdit() *DiffEdit {
	return &DiffEdit{
		values: make(map[pwtypes.FieldType][]byte),
		Delete: mapset.NewThreadUnsafeSet[pwtypes.FieldType](),
	}
}

// SetField records that fieldType should be set to data, appending it to
// the insertion order the first time this type is set.
func (e *DiffEdit) SetField(fieldType pwtypes.FieldType, data []byte) {
	if _, exists := e.values[fieldType]; !exists {
		e.order = append(e.order, fieldType)
	}
	e.values[fieldType] = data
}

// Get returns the pending value for fieldType, if any.
func (e *DiffEdit) Get(fieldType pwtypes.FieldType) ([]byte, bool) {
	v, ok := e.values[fieldType]
	return v, ok
}

// SetTypes iterates the fields to set, in insertion order.
func (e *DiffEdit) SetTypes() []pwtypes.FieldType {
	return append([]pwtypes.FieldType(nil), e.order...)
}

// Empty reports whether this edit sets or deletes nothing, in which case
// it should not be recorded in a Diff at all.
func (e *DiffEdit) Empty() bool {
	return len(e.order) == 0 && e.Delete.Cardinality() == 0
}
