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

// Package diff implements the CRDT-like changeset model spec.md §4.2
// describes: fingerprinting a decrypted field stream into a DiffableBase,
// computing a Diff between two snapshots of it, and applying a Diff back
// onto a field stream. It is grounded on the shape of
// `_examples/original_source/bin/pwsafe-matrix/src/diffable.rs` (read via
// the pack's `_INDEX.md`), translated into Go value types plus
// `github.com/deckarep/golang-set/v2` sets in place of Rust's HashSet.
package diff

import (
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/field"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// ErrMissingIdentifier is returned when a record lacks the mandatory 0x01
// identifier field — a fatal parse error per spec.md §4.2 item 5.
var ErrMissingIdentifier = errors.New("diff: record missing identifier field")

// Mark is a field fingerprint: SHA-256(pepper || 0x00 || type || 0x01 || data).
type Mark [sha256.Size]byte

// Pepper is the per-database random salt mixed into every mark.
type Pepper [16]byte

type markEntry struct {
	Type pwtypes.FieldType
	Mark Mark
}

type markRange struct {
	start, end int
}

// DiffableBase is the in-memory fingerprint of a known record set: a flat
// sequence of field marks plus a map from record identifier to the
// contiguous range of that sequence holding its fields. The reserved state
// record is never represented here.
type DiffableBase struct {
	pepper  Pepper
	marks   []markEntry
	entries map[pwtypes.RecordID]markRange
}

// NewDiffableBase returns an empty base under the given pepper, used the
// first time a file is parsed and as the starting point of Visit's new base.
func NewDiffableBase(pepper Pepper) *DiffableBase {
	return &DiffableBase{
		pepper:  pepper,
		entries: make(map[pwtypes.RecordID]markRange),
	}
}

// Pepper returns the base's per-database salt.
func (b *DiffableBase) Pepper() Pepper { return b.pepper }

func computeMark(pepper Pepper, fieldType pwtypes.FieldType, data []byte) Mark {
	h := sha256.New()
	h.Write(pepper[:])
	h.Write([]byte{0x00})
	h.Write([]byte{byte(fieldType)})
	h.Write([]byte{0x01})
	h.Write(data)
	var m Mark
	copy(m[:], h.Sum(nil))
	return m
}

func (b *DiffableBase) typeMarks(id pwtypes.RecordID) map[pwtypes.FieldType]Mark {
	rng, ok := b.entries[id]
	if !ok {
		return nil
	}
	out := make(map[pwtypes.FieldType]Mark, rng.end-rng.start)
	for _, e := range b.marks[rng.start:rng.end] {
		out[e.Type] = e.Mark
	}
	return out
}

// fieldGroup is one header or record: an ordered list of fields, not
// including the terminating end-of-record/end-of-header field itself.
type fieldGroup struct {
	fields []groupField
}

type groupField struct {
	Type pwtypes.FieldType
	Data []byte
}

func (g fieldGroup) find(t pwtypes.FieldType) ([]byte, bool) {
	for _, f := range g.fields {
		if f.Type == t {
			return f.Data, true
		}
	}
	return nil, false
}

// fieldReader is the subset of field.Reader that the diff model consumes,
// so tests can supply an in-memory double without a real encrypted stream.
type fieldReader interface {
	ReadField() (fieldType byte, data []byte, ok bool)
}

var _ fieldReader = (*field.Reader)(nil)

// readGroup reads fields up to and including the next end-of-record (or
// end-of-header) marker, returning the fields seen before it. ok is false
// once the stream has no further groups.
func readGroup(r fieldReader) (fieldGroup, bool) {
	var g fieldGroup
	any := false
	for {
		ft, data, ok := r.ReadField()
		if !ok {
			return g, any
		}
		any = true
		if pwtypes.FieldType(ft) == pwtypes.FieldEndOfRecord {
			return g, true
		}
		g.fields = append(g.fields, groupField{Type: pwtypes.FieldType(ft), Data: data})
	}
}

// Update is the result of visiting a field stream against a prior base.
type Update struct {
	NewBase     *DiffableBase
	Diff        *Diff
	StateRecord []byte // raw notes-field bytes of the reserved record, nil if absent
}

// Visit fingerprints stream under base's pepper, producing the next base,
// the Diff from base to the new snapshot, and the reserved record's raw
// state bytes (if present). The header is read and discarded; callers that
// need to forward it verbatim use Apply instead.
func Visit(base *DiffableBase, r fieldReader) (*Update, error) {
	if _, ok := readGroup(r); !ok {
		// No header at all: treat as an empty file.
		return &Update{NewBase: NewDiffableBase(base.pepper), Diff: NewDiff(base.pepper)}, nil
	}

	newBase := NewDiffableBase(base.pepper)
	d := NewDiff(base.pepper)
	seen := make(map[pwtypes.RecordID]struct{})

	for {
		group, ok := readGroup(r)
		if !ok {
			break
		}

		idBytes, found := group.find(pwtypes.FieldUUID)
		if !found {
			return nil, ErrMissingIdentifier
		}
		id, err := pwtypes.ParseRecordID(idBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMissingIdentifier, err)
		}

		if id == pwtypes.ReservedStateRecordID {
			if notes, ok := group.find(pwtypes.FieldNotes); ok {
				d.stateRecordOut = append([]byte(nil), notes...)
			}
			continue
		}

		seen[id] = struct{}{}

		start := len(newBase.marks)
		newTypeMarks := make(map[pwtypes.FieldType]Mark, len(group.fields))
		for _, f := range group.fields {
			m := computeMark(base.pepper, f.Type, f.Data)
			newBase.marks = append(newBase.marks, markEntry{Type: f.Type, Mark: m})
			newTypeMarks[f.Type] = m
		}
		newBase.entries[id] = markRange{start: start, end: len(newBase.marks)}

		oldTypeMarks := base.typeMarks(id)
		edit := diffRecord(oldTypeMarks, newTypeMarks, group)
		if !edit.Empty() {
			d.Edit[id] = edit
		}
	}

	for id := range base.entries {
		if _, ok := seen[id]; !ok {
			d.Delete.Add(id)
		}
	}

	return &Update{NewBase: newBase, Diff: d, StateRecord: d.stateRecordOut}, nil
}

// diffRecord compares a record's old and new per-type marks (old is nil for
// a record absent from the prior base) and returns the DiffEdit describing
// the difference, using group to recover the actual bytes for changed
// fields (marks are one-way and can't be inverted).
func diffRecord(old, new map[pwtypes.FieldType]Mark, group fieldGroup) *DiffEdit {
	edit := NewDiffEdit()
	for _, f := range group.fields {
		if oldMark, existed := old[f.Type]; existed && oldMark == new[f.Type] {
			continue
		}
		edit.SetField(f.Type, f.Data)
	}
	for t := range old {
		if _, stillPresent := new[t]; !stillPresent {
			edit.Delete.Add(t)
		}
	}
	return edit
}
