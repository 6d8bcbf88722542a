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

// Package roomstate defines the engine's persisted metadata: the transport
// session, the room identifier, and the high-water remote timestamp,
// serialized into the reserved record's notes field (spec.md §6).
package roomstate

import (
	"encoding/json"
	"fmt"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// State is the engine's persisted, database-resident configuration.
type State struct {
	Session     string             `json:"session,omitempty"`
	Room        string             `json:"room,omitempty"`
	RemoteUntil *pwtypes.Timestamp `json:"remote_until,omitempty"`
}

// Decode parses the reserved record's notes field. Empty input decodes to
// the zero State, covering a freshly created database with no prior sync.
func Decode(notes []byte) (State, error) {
	var s State
	if len(notes) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(notes, &s); err != nil {
		return State{}, fmt.Errorf("roomstate: decoding state record: %w", err)
	}
	return s, nil
}

// Encode serializes s for storage in the reserved record's notes field.
func (s State) Encode() ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("roomstate: encoding state record: %w", err)
	}
	return b, nil
}

// WithRemoteUntil returns a copy of s with RemoteUntil advanced to ts.
func (s State) WithRemoteUntil(ts pwtypes.Timestamp) State {
	s.RemoteUntil = &ts
	return s
}
