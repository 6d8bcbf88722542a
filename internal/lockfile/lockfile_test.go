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

package lockfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPathForReplacesExtension(t *testing.T) {
	require.Equal(t, "/tmp/vault.plk", PathFor("/tmp/vault.psafe3"))
	require.Equal(t, "/tmp/vault.cfg.plk", PathFor("/tmp/vault.cfg"))
	require.Equal(t, "/tmp/novault.plk", PathFor("/tmp/novault"))
}

func TestAcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vault.psafe3")

	lock, err := Acquire(dbPath, "alice@host:123")
	require.NoError(t, err)
	require.True(t, Exists(dbPath))

	contents, err := os.ReadFile(PathFor(dbPath))
	require.NoError(t, err)
	require.Equal(t, "alice@host:123", string(contents))

	require.NoError(t, lock.Close())
	require.False(t, Exists(dbPath))
}

func TestAcquireBusy(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "vault.psafe3")

	first, err := Acquire(dbPath, "alice@host:1")
	require.NoError(t, err)
	defer first.Close()

	_, err = Acquire(dbPath, "bob@host:2")
	require.ErrorIs(t, err, ErrBusy)
}
