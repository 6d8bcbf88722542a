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

package pwsafedb

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/diff"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/field"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

const testPassword = "correct horse battery staple"

func writeFixture(t *testing.T, path string, records map[uuid.UUID]map[pwtypes.FieldType][]byte) {
	t.Helper()

	var buf bytes.Buffer
	key := field.NewKey([]byte(testPassword))
	defer key.Destroy()

	w, err := field.NewWriter(&buf, field.DefaultIter, key)
	require.NoError(t, err)

	w.WriteField(byte(pwtypes.FieldVersion), []byte{0x0e, 0x0a})
	w.WriteField(byte(pwtypes.FieldEndOfHeader), nil)

	for id, fields := range records {
		w.WriteField(byte(pwtypes.FieldUUID), id[:])
		for ft, data := range fields {
			w.WriteField(byte(ft), data)
		}
		w.WriteField(byte(pwtypes.FieldEndOfRecord), nil)
	}

	require.NoError(t, w.Finish())
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))
}

func TestOpenAndRefreshSeesExternalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.psafe3")
	id := uuid.New()

	writeFixture(t, path, map[uuid.UUID]map[pwtypes.FieldType][]byte{
		id: {pwtypes.FieldUsername: []byte("alice"), pwtypes.FieldPassword: []byte("a")},
	})

	db, err := Open(path, []byte(testPassword), "alice@host:1")
	require.NoError(t, err)
	defer db.Close()

	require.False(t, db.HasPendingLocal())

	// Simulate an external editor changing the password directly on disk.
	writeFixture(t, path, map[uuid.UUID]map[pwtypes.FieldType][]byte{
		id: {pwtypes.FieldUsername: []byte("alice"), pwtypes.FieldPassword: []byte("changed-by-editor")},
	})

	require.NoError(t, db.Refresh())
	require.True(t, db.HasPendingLocal())
}

func TestRewritePersistsLocalEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.psafe3")
	id := uuid.New()

	writeFixture(t, path, map[uuid.UUID]map[pwtypes.FieldType][]byte{
		id: {pwtypes.FieldPassword: []byte("a")},
	})

	db, err := Open(path, []byte(testPassword), "alice@host:1")
	require.NoError(t, err)
	defer db.Close()

	edit := diff.NewDiffEdit()
	edit.SetField(pwtypes.FieldPassword, []byte("b"))
	d := diff.NewDiff(db.Pepper())
	d.Edit[id] = edit
	db.PushLocal(d)

	require.NoError(t, db.WithLock(func(lock *PwsafeLock) error {
		require.NoError(t, lock.Refresh())
		require.NoError(t, lock.Rewrite())
		return nil
	}))

	reopened, err := Open(path, []byte(testPassword), "alice@host:1")
	require.NoError(t, err)
	defer reopened.Close()

	var got []byte
	for {
		ft, data, ok := reopened.remoteReader.ReadField()
		if !ok {
			break
		}
		if pwtypes.FieldType(ft) == pwtypes.FieldPassword {
			got = data
		}
	}
	require.Equal(t, "b", string(got))
}

func TestRebaseAdvancesRemoteUntil(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vault.psafe3")
	id := uuid.New()

	writeFixture(t, path, map[uuid.UUID]map[pwtypes.FieldType][]byte{
		id: {pwtypes.FieldPassword: []byte("a")},
	})

	db, err := Open(path, []byte(testPassword), "alice@host:1")
	require.NoError(t, err)
	defer db.Close()

	edit := diff.NewDiffEdit()
	edit.SetField(pwtypes.FieldPassword, []byte("remote-value"))
	d := diff.NewDiff(db.Pepper())
	d.Edit[id] = edit

	ts := pwtypes.Timestamp{TsMs: 1000, Unique: "$e1"}
	require.NoError(t, db.Rebase([]*diff.Diff{d}, []pwtypes.Timestamp{ts}))

	require.NotNil(t, db.State().RemoteUntil)
	require.True(t, db.State().RemoteUntil.Equal(ts))
}
