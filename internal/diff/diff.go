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
	"encoding/json"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// Diff carries the pepper of the base it was computed against, a set of
// deleted record identifiers, and a per-record DiffEdit. An empty diff
// (empty Delete and empty Edit) is the identity under Apply.
type Diff struct {
	pepper Pepper
	Delete mapset.Set[pwtypes.RecordID]
	Edit   map[pwtypes.RecordID]*DiffEdit

	// stateRecordOut is only populated by Visit, carrying the reserved
	// record's raw notes bytes out-of-band; it is never serialized and
	// never read back by Apply (Rewrite re-derives and re-attaches state).
	stateRecordOut []byte
}

// NewDiff returns an empty diff computed against a base under pepper.
func NewDiff(pepper Pepper) *Diff {
	return &Diff{
		pepper: pepper,
		Delete: mapset.NewThreadUnsafeSet[pwtypes.RecordID](),
		Edit:   make(map[pwtypes.RecordID]*DiffEdit),
	}
}

// Pepper returns the pepper this diff was fingerprinted under. Never
// serialized: see WithPepper.
func (d *Diff) Pepper() Pepper { return d.pepper }

// WithPepper returns a shallow copy of d fingerprinted under pepper instead,
// used on the receiving side of a deserialized Diff: marks are never
// compared across peers, so the pepper only needs to be locally consistent
// with whatever base Apply later runs against.
func (d *Diff) WithPepper(pepper Pepper) *Diff {
	out := *d
	out.pepper = pepper
	return &out
}

// Empty reports whether this diff has no effect under Apply.
func (d *Diff) Empty() bool {
	return d.Delete.Cardinality() == 0 && len(d.Edit) == 0
}

// wire mirrors Diff for JSON purposes, explicitly excluding the pepper per
// spec.md §4.2's serialization boundary.
type wireDiff struct {
	Delete []pwtypes.RecordID        `json:"delete"`
	Edit   map[pwtypes.RecordID]wireEdit `json:"edit"`
}

type wireEdit struct {
	Set    []wireField          `json:"set"`
	Delete []pwtypes.FieldType `json:"delete"`
}

type wireField struct {
	Type pwtypes.FieldType `json:"type"`
	Data []byte            `json:"data"`
}

// MarshalJSON implements json.Marshaler, omitting the pepper.
func (d *Diff) MarshalJSON() ([]byte, error) {
	deletes := d.Delete.ToSlice()
	sort.Slice(deletes, func(i, j int) bool { return deletes[i].String() < deletes[j].String() })

	edit := make(map[pwtypes.RecordID]wireEdit, len(d.Edit))
	for id, e := range d.Edit {
		fields := make([]wireField, 0, len(e.order))
		for _, t := range e.order {
			fields = append(fields, wireField{Type: t, Data: e.values[t]})
		}
		deletedTypes := e.Delete.ToSlice()
		sort.Slice(deletedTypes, func(i, j int) bool { return deletedTypes[i] < deletedTypes[j] })
		edit[id] = wireEdit{Set: fields, Delete: deletedTypes}
	}

	return json.Marshal(wireDiff{Delete: deletes, Edit: edit})
}

// UnmarshalJSON implements json.Unmarshaler. The resulting Diff carries a
// zero Pepper; callers must call WithPepper before using it in Apply.
func (d *Diff) UnmarshalJSON(data []byte) error {
	var w wireDiff
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("diff: decoding payload: %w", err)
	}

	d.Delete = mapset.NewThreadUnsafeSet[pwtypes.RecordID](w.Delete...)
	d.Edit = make(map[pwtypes.RecordID]*DiffEdit, len(w.Edit))
	for id, we := range w.Edit {
		edit := NewDiffEdit()
		for _, f := range we.Set {
			edit.SetField(f.Type, f.Data)
		}
		for _, t := range we.Delete {
			edit.Delete.Add(t)
		}
		d.Edit[id] = edit
	}
	return nil
}
