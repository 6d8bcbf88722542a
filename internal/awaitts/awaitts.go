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

// Package awaitts implements the partial-order progress marker spec.md
// §4.7 defines: a local counter plus an optional remote timestamp, ordered
// so that two markers with incomparable remote components never compare as
// less-than each other, even when their local counters agree.
package awaitts

import "github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"

// AwaitTs is the high-water mark producers and the work loop exchange to
// know when a message has been durably absorbed.
type AwaitTs struct {
	Local  uint64
	Remote *pwtypes.Timestamp
}

// Zero is the initial marker before any message has been absorbed.
var Zero = AwaitTs{}

// remoteLessOrEqual reports a.Remote <= b.Remote under the rule that a nil
// remote is less-or-equal to anything (it hasn't observed the transport
// yet), and two present timestamps follow pwtypes.Timestamp.Compare,
// becoming incomparable when ts_ms matches but unique differs.
func remoteLessOrEqual(a, b *pwtypes.Timestamp) bool {
	if a == nil {
		return true
	}
	if b == nil {
		return false
	}
	return a.LessOrEqual(*b)
}

func remoteEqual(a, b *pwtypes.Timestamp) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

// LessOrEqual reports whether x <= y: both components must compare <=
// (nil remote counts as bottom).
func (x AwaitTs) LessOrEqual(y AwaitTs) bool {
	return x.Local <= y.Local && remoteLessOrEqual(x.Remote, y.Remote)
}

// Less implements the strict order from spec.md §4.7: x < y iff x != y and
// x <= y. Two markers with incomparable remote timestamps are never less
// than one another — acknowledgements must not fire across them.
func (x AwaitTs) Less(y AwaitTs) bool {
	if x.Equal(y) {
		return false
	}
	return x.LessOrEqual(y)
}

// Equal reports whether x and y name the same progress point.
func (x AwaitTs) Equal(y AwaitTs) bool {
	return x.Local == y.Local && remoteEqual(x.Remote, y.Remote)
}

// WithLocal returns a copy of x with Local advanced to local.
func (x AwaitTs) WithLocal(local uint64) AwaitTs {
	x.Local = local
	return x
}

// WithRemote returns a copy of x with Remote advanced to ts.
func (x AwaitTs) WithRemote(ts pwtypes.Timestamp) AwaitTs {
	x.Remote = &ts
	return x
}
