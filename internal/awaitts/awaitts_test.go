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

package awaitts

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

func TestLessOnLocalOnly(t *testing.T) {
	a := AwaitTs{Local: 1}
	b := AwaitTs{Local: 2}
	require.True(t, a.Less(b))
	require.False(t, b.Less(a))
}

func TestIncomparableRemoteDoesNotCrossAck(t *testing.T) {
	needed := Zero.WithRemote(pwtypes.Timestamp{TsMs: 1000, Unique: "$a"})
	applied := Zero.WithRemote(pwtypes.Timestamp{TsMs: 1000, Unique: "$b"})

	require.False(t, needed.Less(applied))
	require.False(t, applied.Less(needed))
	require.False(t, needed.Equal(applied))
}

func TestComparableRemoteOrders(t *testing.T) {
	needed := Zero.WithRemote(pwtypes.Timestamp{TsMs: 1000, Unique: "$a"})
	applied := Zero.WithRemote(pwtypes.Timestamp{TsMs: 2000, Unique: "$b"})
	require.True(t, needed.Less(applied))
}

func TestNilRemoteIsBottom(t *testing.T) {
	needed := AwaitTs{Local: 0}
	applied := Zero.WithLocal(1).WithRemote(pwtypes.Timestamp{TsMs: 500, Unique: "$a"})
	require.True(t, needed.Less(applied))
}

func TestEqualIsNotLess(t *testing.T) {
	a := Zero.WithLocal(5).WithRemote(pwtypes.Timestamp{TsMs: 10, Unique: "$x"})
	b := a
	require.True(t, a.Equal(b))
	require.False(t, a.Less(b))
}
