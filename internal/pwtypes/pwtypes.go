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

// Package pwtypes holds the identifiers and timestamps shared across the
// field codec, the diff model, and the work loop, so that none of those
// packages needs to import the others just to name a record or compare two
// points in time.
package pwtypes

import (
	"cmp"
	"fmt"

	"github.com/google/uuid"
)

// RecordID is the 16-byte identifier carried by field type 0x01. It is
// exactly a UUID in shape; pwsafe does not mandate that the bytes follow any
// particular UUID version, so RecordID accepts whatever 16 bytes the file
// contains.
type RecordID = uuid.UUID

// FieldType is the one-byte tag in front of every field's data.
type FieldType uint8

const (
	// FieldUUID is the mandatory record identifier field.
	FieldUUID FieldType = 0x01
	// FieldUsername carries the account username.
	FieldUsername FieldType = 0x04
	// FieldNotes carries free-form notes, including the reserved state
	// record's serialized engine state.
	FieldNotes FieldType = 0x05
	// FieldPassword carries the stored secret.
	FieldPassword FieldType = 0x06
	// FieldEndOfRecord terminates a record.
	FieldEndOfRecord FieldType = 0xff
	// FieldEndOfHeader terminates the header block.
	FieldEndOfHeader FieldType = 0xff
	// FieldVersion is the header's version field.
	FieldVersion FieldType = 0x00
)

// ReservedStateNamespace and ReservedStateRecordID name the one record the
// diff model never diffs: a UUIDv5 derived once, at project inception, from
// this namespace, reserved to carry the engine's persisted metadata (see
// roomstate.State). The ID is pinned as a literal rather than recomputed at
// init time so a future change to the derivation inputs can never silently
// shift which record is reserved.
var (
	ReservedStateNamespace = uuid.MustParse("f8052080-99ed-53ef-8f44-ae5621b31f46")
	ReservedStateRecordID  = uuid.MustParse("02e4d75b-5fde-582e-b10d-409f041c3d34")
)

// ParseRecordID interprets raw as the 16 bytes of a record identifier
// field, regardless of what UUID version (if any) those bytes encode.
func ParseRecordID(raw []byte) (RecordID, error) {
	if len(raw) != 16 {
		return RecordID{}, fmt.Errorf("pwtypes: record identifier must be 16 bytes, got %d", len(raw))
	}
	var id RecordID
	copy(id[:], raw)
	return id, nil
}

// Timestamp orders remote changesets: (ts_ms, unique). Two timestamps with
// equal ts_ms but different Unique are incomparable, not equal and not
// ordered — see Compare.
type Timestamp struct {
	TsMs   uint64
	Unique string
}

// Compare reports the ordering of a relative to b, or false in ok when
// they're incomparable (same ts_ms, different unique).
func (a Timestamp) Compare(b Timestamp) (order int, ok bool) {
	if a.TsMs != b.TsMs {
		return cmp.Compare(a.TsMs, b.TsMs), true
	}
	if a.Unique == b.Unique {
		return 0, true
	}
	return 0, false
}

// LessOrEqual reports whether a <= b under the comparator used by AwaitTs,
// treating incomparable timestamps as neither.
func (a Timestamp) LessOrEqual(b Timestamp) bool {
	order, ok := a.Compare(b)
	return ok && order <= 0
}

// Equal reports whether a and b name the same event.
func (a Timestamp) Equal(b Timestamp) bool {
	order, ok := a.Compare(b)
	return ok && order == 0
}
