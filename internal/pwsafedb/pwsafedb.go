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

// Package pwsafedb is the database façade spec.md §2 and §4.3 describe: it
// opens the encrypted file, owns the decrypted remote-base stream, the
// pending local-diff FIFO, the current fingerprint, key material, and the
// lock file path, and exposes Refresh/Rebase/Rewrite/PushLocal as the only
// ways to mutate any of it. Grounded on the teacher's resource-owning
// client types (one struct owning a connection plus derived caches,
// exposing narrow verbs) and on
// `_examples/original_source/bin/pwsafe-matrix/src/pwsafe_db.rs`.
package pwsafedb

import (
	"bytes"
	"fmt"
	"os"

	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/diff"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/field"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/lockfile"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/pwtypes"
	"github.com/pwsafe-matrix/pwsafe-matrix-go/internal/roomstate"
)

// PwsafeDb owns everything needed to keep a local encrypted database and a
// remote shared base converging: the decrypted remote-base stream, the
// FIFO of unpublished local diffs, the current fingerprint, and the key.
type PwsafeDb struct {
	path     string
	lockPath string
	identity string
	key      *field.Key
	iter     uint32

	remoteReader *field.Reader
	base         *diff.DiffableBase
	localFIFO    []*diff.Diff
	state        roomstate.State
}

// Open reads dbPath under password, fingerprints its initial contents, and
// recovers the persisted engine state from the reserved record. A wrong
// password surfaces field.ErrInvalidPassword, matching spec.md's
// "cryptographic / passphrase: fatal at open" error kind.
func Open(dbPath string, password []byte, identity string) (*PwsafeDb, error) {
	raw, err := os.ReadFile(dbPath)
	if err != nil {
		return nil, fmt.Errorf("pwsafedb: reading %s: %w", dbPath, err)
	}

	key := field.NewKey(password)
	r, err := field.NewReader(bytes.NewReader(raw), key)
	if err != nil {
		key.Destroy()
		return nil, fmt.Errorf("pwsafedb: opening %s: %w", dbPath, err)
	}

	var pepper diff.Pepper
	if err := randomPepper(&pepper); err != nil {
		return nil, err
	}

	update, err := diff.Visit(diff.NewDiffableBase(pepper), r)
	if err != nil {
		return nil, fmt.Errorf("pwsafedb: fingerprinting %s: %w", dbPath, err)
	}
	r.Restart()

	state, err := roomstate.Decode(update.StateRecord)
	if err != nil {
		return nil, err
	}

	return &PwsafeDb{
		path:         dbPath,
		lockPath:     lockfile.PathFor(dbPath),
		identity:     identity,
		key:          key,
		iter:         r.Iter(),
		remoteReader: r,
		base:         update.NewBase,
		state:        state,
	}, nil
}

// Close wipes key material and the decrypted remote-base image. The
// PwsafeDb must not be used afterward.
func (db *PwsafeDb) Close() {
	db.remoteReader.Destroy()
	db.key.Destroy()
}

// State returns the currently known persisted engine state.
func (db *PwsafeDb) State() roomstate.State { return db.state }

// SetState replaces the persisted engine state; the new value is written
// out on the next Rewrite.
func (db *PwsafeDb) SetState(s roomstate.State) { db.state = s }

// Pepper returns the current fingerprint's pepper, used to pair an inbound
// deserialized Diff (which travels without one) with this side's base.
func (db *PwsafeDb) Pepper() diff.Pepper { return db.base.Pepper() }

// PushLocal appends a locally-authored diff to the FIFO's tail.
func (db *PwsafeDb) PushLocal(d *diff.Diff) {
	db.localFIFO = append(db.localFIFO, d.WithPepper(db.base.Pepper()))
}

// HasPendingLocal reports whether any local diff is queued for the next
// rewrite.
func (db *PwsafeDb) HasPendingLocal() bool { return len(db.localFIFO) > 0 }

// Refresh re-reads dbPath from disk, diffs it against the current base to
// recover whatever an external editor changed, and — if anything did
// change — pushes the synthesized diff to the FIFO's tail and adopts the
// freshly read content as the new base.
func (db *PwsafeDb) Refresh() error {
	raw, err := os.ReadFile(db.path)
	if err != nil {
		return fmt.Errorf("pwsafedb: refreshing %s: %w", db.path, err)
	}

	r, err := field.NewReader(bytes.NewReader(raw), db.key)
	if err != nil {
		return fmt.Errorf("pwsafedb: refreshing %s: %w", db.path, err)
	}
	defer r.Destroy()

	update, err := diff.Visit(db.base, r)
	if err != nil {
		return fmt.Errorf("pwsafedb: fingerprinting refreshed %s: %w", db.path, err)
	}

	if !update.Diff.Empty() {
		db.localFIFO = append(db.localFIFO, update.Diff)
	}
	db.base = update.NewBase

	state, err := roomstate.Decode(update.StateRecord)
	if err != nil {
		return err
	}
	db.state = state

	return nil
}

// Rebase absorbs remote changesets into the remote base in order,
// prefix-committed: a failure partway through leaves remote_until at the
// last diff that applied cleanly (spec.md §9 Open Question 3).
func (db *PwsafeDb) Rebase(diffs []*diff.Diff, times []pwtypes.Timestamp) error {
	if len(diffs) != len(times) {
		return fmt.Errorf("pwsafedb: rebase: %d diffs but %d timestamps", len(diffs), len(times))
	}

	for i, d := range diffs {
		newBytes, err := db.renderOnce(db.remoteReader, d)
		if err != nil {
			return fmt.Errorf("pwsafedb: rebase: diff %d: %w", i, err)
		}

		newReader, err := field.NewReader(bytes.NewReader(newBytes), db.key)
		if err != nil {
			return fmt.Errorf("pwsafedb: rebase: re-opening absorbed base: %w", err)
		}

		update, err := diff.Visit(db.base, newReader)
		if err != nil {
			newReader.Destroy()
			return fmt.Errorf("pwsafedb: rebase: fingerprinting absorbed base: %w", err)
		}
		newReader.Restart()

		db.remoteReader.Destroy()
		db.remoteReader = newReader
		db.base = update.NewBase
		db.state = db.state.WithRemoteUntil(times[i])
	}

	return nil
}

// renderOnce applies d to a fresh image starting from r, restarting r
// afterward so it remains usable by the caller.
func (db *PwsafeDb) renderOnce(r *field.Reader, d *diff.Diff) ([]byte, error) {
	r.Restart()
	defer r.Restart()

	var out bytes.Buffer
	w, err := field.NewWriter(&out, db.iter, db.key)
	if err != nil {
		return nil, err
	}
	if err := diff.Apply(d.WithPepper(db.base.Pepper()), r, w); err != nil {
		return nil, err
	}
	if err := w.Finish(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// randomPepper is declared as a package variable so tests can make
// fingerprinting deterministic without touching crypto/rand.
var randomPepper = func(p *diff.Pepper) error {
	return fillRandom(p[:])
}
