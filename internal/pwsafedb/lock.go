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
	"fmt"
	"os"
	"path/filepath"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/diff"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/field"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/lockfile"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
)

// ErrLockBusy is returned from WithLock when an external editor already
// holds the sibling lock file. It forwards lockfile.ErrBusy so callers can
// match on either.
var ErrLockBusy = lockfile.ErrBusy

// PwsafeLock is the scoped borrow through which Rewrite runs. Obtained via
// WithLock, released automatically when the callback returns.
type PwsafeLock struct {
	db *PwsafeDb
}

// WithLock acquires the advisory lock file, invokes fn with a borrow
// scoped to the critical section, and releases the lock before returning
// — on every exit path, including fn panicking. It returns ErrLockBusy
// without ever invoking fn if another editor holds the lock.
func (db *PwsafeDb) WithLock(fn func(*PwsafeLock) error) error {
	lock, err := lockfile.Acquire(db.path, db.identity)
	if err != nil {
		return err
	}
	defer lock.Close()

	return fn(&PwsafeLock{db: db})
}

// Refresh absorbs the external editor's on-disk changes while the lock is
// held, so the read is guaranteed not to race a concurrent rewrite by the
// same editor.
func (l *PwsafeLock) Refresh() error { return l.db.Refresh() }

// Rebase absorbs remote changesets while the lock is held.
func (l *PwsafeLock) Rebase(diffs []*diff.Diff, times []pwtypes.Timestamp) error {
	return l.db.Rebase(diffs, times)
}

// PushLocal enqueues a local diff while the lock is held.
func (l *PwsafeLock) PushLocal(d *diff.Diff) { l.db.PushLocal(d) }

// HasPendingLocal reports whether a rewrite has anything to flush.
func (l *PwsafeLock) HasPendingLocal() bool { return l.db.HasPendingLocal() }

// Rewrite renders the remote base with the local FIFO applied — augmenting
// the final step to also stamp the reserved record's notes field with the
// current persisted state — and atomically replaces the on-disk file.
// fsync happens before this returns, so the caller's lock release (the
// deferred Close in WithLock) always comes after durability.
func (l *PwsafeLock) Rewrite() error {
	db := l.db

	diffs := make([]*diff.Diff, len(db.localFIFO))
	copy(diffs, db.localFIFO)
	diffs = append(diffs, db.stateStampDiff())

	reader := db.remoteReader
	reader.Restart()
	defer reader.Restart()

	var intermediate []*field.Reader
	defer func() {
		for _, r := range intermediate {
			r.Destroy()
		}
	}()

	var finalBytes []byte
	for i, d := range diffs {
		var out bytes.Buffer
		w, err := field.NewWriter(&out, db.iter, db.key)
		if err != nil {
			return fmt.Errorf("pwsafedb: rewrite: preparing stage %d: %w", i, err)
		}
		if err := diff.Apply(d.WithPepper(db.base.Pepper()), reader, w); err != nil {
			return fmt.Errorf("pwsafedb: rewrite: applying stage %d: %w", i, err)
		}
		if err := w.Finish(); err != nil {
			return fmt.Errorf("pwsafedb: rewrite: finishing stage %d: %w", i, err)
		}

		finalBytes = out.Bytes()
		if i == len(diffs)-1 {
			break
		}
		next, err := field.NewReader(bytes.NewReader(finalBytes), db.key)
		if err != nil {
			return fmt.Errorf("pwsafedb: rewrite: re-opening stage %d: %w", i, err)
		}
		intermediate = append(intermediate, next)
		reader = next
	}

	if err := atomicReplace(db.path, finalBytes); err != nil {
		return err
	}

	db.localFIFO = nil
	return nil
}

// stateStampDiff is a one-record diff touching only the reserved record's
// notes field, so Rewrite always persists the current State even when the
// local FIFO is empty (the remote-only scenario, §8 scenario b).
func (db *PwsafeDb) stateStampDiff() *diff.Diff {
	notes, err := db.state.Encode()
	if err != nil {
		notes = nil
	}

	d := diff.NewDiff(db.base.Pepper())
	edit := diff.NewDiffEdit()
	edit.SetField(pwtypes.FieldUUID, pwtypes.ReservedStateRecordID[:])
	edit.SetField(pwtypes.FieldNotes, notes)
	d.Edit[pwtypes.ReservedStateRecordID] = edit
	return d
}

// atomicReplace writes data to a temporary file alongside path, fsyncs it,
// then renames it over path, and finally fsyncs the containing directory
// so the rename itself is durable.
func atomicReplace(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".pwsafe-matrix-*.tmp")
	if err != nil {
		return fmt.Errorf("pwsafedb: creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("pwsafedb: writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("pwsafedb: syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("pwsafedb: closing temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("pwsafedb: renaming into place: %w", err)
	}

	if dirFile, err := os.Open(dir); err == nil {
		_ = dirFile.Sync()
		dirFile.Close()
	}

	return nil
}
