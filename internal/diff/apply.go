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

import "github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"

// fieldWriter is the subset of field.Writer the diff model consumes.
type fieldWriter interface {
	WriteField(fieldType byte, data []byte)
}

// Apply renders r with d applied, writing the result to w, per spec.md
// §4.2's "Diff apply" algorithm. The header is copied verbatim. Existing
// records named in d.Delete are dropped; records with a pending edit have
// their fields substituted/removed/appended in place; edits whose
// identifier never appeared in r are emitted afterward as new records.
func Apply(d *Diff, r fieldReader, w fieldWriter) error {
	header, ok := readGroup(r)
	if ok {
		for _, f := range header.fields {
			w.WriteField(byte(f.Type), f.Data)
		}
	}
	w.WriteField(byte(pwtypes.FieldEndOfHeader), nil)

	remaining := make(map[pwtypes.RecordID]*DiffEdit, len(d.Edit))
	for id, e := range d.Edit {
		remaining[id] = e
	}

	for {
		group, ok := readGroup(r)
		if !ok {
			break
		}

		idBytes, found := group.find(pwtypes.FieldUUID)
		if !found {
			return ErrMissingIdentifier
		}
		id, err := pwtypes.ParseRecordID(idBytes)
		if err != nil {
			return err
		}

		if d.Delete.Contains(id) {
			delete(remaining, id)
			continue
		}

		edit, hasEdit := remaining[id]
		if !hasEdit {
			for _, f := range group.fields {
				w.WriteField(byte(f.Type), f.Data)
			}
			w.WriteField(byte(pwtypes.FieldEndOfRecord), nil)
			continue
		}
		delete(remaining, id)

		seen := make(map[pwtypes.FieldType]struct{}, len(group.fields))
		for _, f := range group.fields {
			seen[f.Type] = struct{}{}
			if edit.Delete.Contains(f.Type) {
				continue
			}
			if v, overridden := edit.Get(f.Type); overridden {
				w.WriteField(byte(f.Type), v)
				continue
			}
			w.WriteField(byte(f.Type), f.Data)
		}
		for _, t := range edit.SetTypes() {
			if _, already := seen[t]; already {
				continue
			}
			v, _ := edit.Get(t)
			w.WriteField(byte(t), v)
		}
		w.WriteField(byte(pwtypes.FieldEndOfRecord), nil)
	}

	for id, edit := range remaining {
		if idBytes, ok := edit.Get(pwtypes.FieldUUID); ok {
			w.WriteField(byte(pwtypes.FieldUUID), idBytes)
		} else {
			w.WriteField(byte(pwtypes.FieldUUID), id[:])
		}
		for _, t := range edit.SetTypes() {
			if t == pwtypes.FieldUUID {
				continue
			}
			v, _ := edit.Get(t)
			w.WriteField(byte(t), v)
		}
		w.WriteField(byte(pwtypes.FieldEndOfRecord), nil)
	}

	return nil
}
