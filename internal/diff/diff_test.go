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
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// fakeField is a minimal in-memory field stream used to exercise Visit and
// Apply without a real PWS3 container.
type fakeField struct {
	Type pwtypes.FieldType
	Data []byte
}

type fakeStream struct {
	fields []fakeField
	pos    int
}

func newFakeStream(fields ...fakeField) *fakeStream { return &fakeStream{fields: fields} }

func (s *fakeStream) ReadField() (byte, []byte, bool) {
	if s.pos >= len(s.fields) {
		return 0, nil, false
	}
	f := s.fields[s.pos]
	s.pos++
	return byte(f.Type), f.Data, true
}

type fakeWriter struct{ fields []fakeField }

func (w *fakeWriter) WriteField(fieldType byte, data []byte) {
	w.fields = append(w.fields, fakeField{Type: pwtypes.FieldType(fieldType), Data: append([]byte(nil), data...)})
}

func header() []fakeField {
	return []fakeField{
		{pwtypes.FieldVersion, []byte{0x0e, 0x0a}},
		{pwtypes.FieldEndOfHeader, nil},
	}
}

func record(id uuid.UUID, fields ...fakeField) []fakeField {
	out := []fakeField{{pwtypes.FieldUUID, id[:]}}
	out = append(out, fields...)
	out = append(out, fakeField{pwtypes.FieldEndOfRecord, nil})
	return out
}

func flatten(groups ...[]fakeField) []fakeField {
	var out []fakeField
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

func recordSet(t *testing.T, fields []fakeField) map[uuid.UUID]map[pwtypes.FieldType]string {
	t.Helper()
	out := make(map[uuid.UUID]map[pwtypes.FieldType]string)
	var cur map[pwtypes.FieldType]string
	var curID uuid.UUID
	for _, f := range fields {
		switch f.Type {
		case pwtypes.FieldUUID:
			id, err := pwtypes.ParseRecordID(f.Data)
			require.NoError(t, err)
			curID = id
			cur = map[pwtypes.FieldType]string{pwtypes.FieldUUID: string(f.Data)}
		case pwtypes.FieldEndOfRecord:
			out[curID] = cur
			cur = nil
		default:
			if cur != nil {
				cur[f.Type] = string(f.Data)
			}
		}
	}
	return out
}

func TestVisitAndApplyRoundTrip(t *testing.T) {
	id1 := uuid.New()
	id2 := uuid.New()

	stream := flatten(
		header(),
		record(id1, fakeField{pwtypes.FieldUsername, []byte("alice")}, fakeField{pwtypes.FieldPassword, []byte("a")}),
		record(id2, fakeField{pwtypes.FieldUsername, []byte("bob")}, fakeField{pwtypes.FieldPassword, []byte("b")}),
	)

	base := NewDiffableBase(Pepper{1, 2, 3})
	update, err := Visit(base, newFakeStream(stream...))
	require.NoError(t, err)
	require.True(t, update.Diff.Delete.Cardinality() == 0)
	// Every record was new relative to an empty base, so both are in Edit.
	require.Len(t, update.Diff.Edit, 2)

	var out fakeWriter
	require.NoError(t, Apply(update.Diff, newFakeStream(), &out))

	got := recordSet(t, out.fields)
	require.Equal(t, "alice", got[id1][pwtypes.FieldUsername])
	require.Equal(t, "a", got[id1][pwtypes.FieldPassword])
	require.Equal(t, "bob", got[id2][pwtypes.FieldUsername])
}

func TestEmptyDiffIsIdentity(t *testing.T) {
	id1 := uuid.New()
	stream := flatten(header(), record(id1, fakeField{pwtypes.FieldPassword, []byte("a")}))

	base := NewDiffableBase(Pepper{9})
	update, err := Visit(base, newFakeStream(stream...))
	require.NoError(t, err)

	// Visiting the same base against the same snapshot it produced yields
	// an empty diff (no field or record changed).
	again, err := Visit(update.NewBase, newFakeStream(stream...))
	require.NoError(t, err)
	require.True(t, again.Diff.Empty())

	var out fakeWriter
	require.NoError(t, Apply(again.Diff, newFakeStream(stream...), &out))
	got := recordSet(t, out.fields)
	require.Equal(t, "a", got[id1][pwtypes.FieldPassword])
}

func TestLocalThenRemoteStacking(t *testing.T) {
	id1 := uuid.New()
	original := flatten(header(), record(id1, fakeField{pwtypes.FieldPassword, []byte("a")}))

	base := NewDiffableBase(Pepper{4, 4, 4})
	first, err := Visit(base, newFakeStream(original...))
	require.NoError(t, err)

	localEdited := flatten(header(), record(id1, fakeField{pwtypes.FieldPassword, []byte("b")}))
	localUpdate, err := Visit(first.NewBase, newFakeStream(localEdited...))
	require.NoError(t, err)
	require.Equal(t, "b", string(mustGet(t, localUpdate.Diff.Edit[id1], pwtypes.FieldPassword)))

	// Apply the local diff atop the original remote base: local wins.
	var out fakeWriter
	require.NoError(t, Apply(localUpdate.Diff, newFakeStream(original...), &out))
	got := recordSet(t, out.fields)
	require.Equal(t, "b", got[id1][pwtypes.FieldPassword])
}

func TestDeletedRecordDropsFromOutput(t *testing.T) {
	id1 := uuid.New()
	id2 := uuid.New()
	before := flatten(header(), record(id1), record(id2))
	after := flatten(header(), record(id1))

	base := NewDiffableBase(Pepper{})
	firstUpdate, err := Visit(base, newFakeStream(before...))
	require.NoError(t, err)

	d, err := Visit(firstUpdate.NewBase, newFakeStream(after...))
	require.NoError(t, err)
	require.True(t, d.Diff.Delete.Contains(id2))

	var out fakeWriter
	require.NoError(t, Apply(d.Diff, newFakeStream(before...), &out))
	got := recordSet(t, out.fields)
	_, stillThere := got[id2]
	require.False(t, stillThere)
	_, id1Present := got[id1]
	require.True(t, id1Present)
}

func TestMissingIdentifierIsFatal(t *testing.T) {
	stream := flatten(header(), []fakeField{{pwtypes.FieldPassword, []byte("oops")}, {pwtypes.FieldEndOfRecord, nil}})
	base := NewDiffableBase(Pepper{})
	_, err := Visit(base, newFakeStream(stream...))
	require.ErrorIs(t, err, ErrMissingIdentifier)
}

func TestStateRecordNeverDiffed(t *testing.T) {
	stateID := uuidRecordID(t)
	stream := flatten(header(), record(stateID, fakeField{pwtypes.FieldNotes, []byte(`{"room":"!abc"}`)}))

	base := NewDiffableBase(Pepper{})
	update, err := Visit(base, newFakeStream(stream...))
	require.NoError(t, err)
	require.Empty(t, update.Diff.Edit)
	require.Equal(t, `{"room":"!abc"}`, string(update.StateRecord))
	_, tracked := update.NewBase.entries[stateID]
	require.False(t, tracked)
}

func uuidRecordID(t *testing.T) uuid.UUID {
	t.Helper()
	return pwtypes.ReservedStateRecordID
}

func mustGet(t *testing.T, e *DiffEdit, ft pwtypes.FieldType) []byte {
	t.Helper()
	v, ok := e.Get(ft)
	require.True(t, ok)
	return v
}
