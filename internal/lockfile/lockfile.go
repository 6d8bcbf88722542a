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

// Package lockfile implements the advisory exclusive lock file convention
// an external pwsafe editor already uses: an O_CREAT|O_EXCL sibling ".plk"
// file next to the database, containing "<user>@<host>:<pid>", removed on
// release.
// Grounded on the teacher's resource-scoping style (RAII-like Close methods
// paired with defer) and on
// `_examples/original_source/bin/pwsafe-matrix/src/lock.rs`.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrBusy is returned instead of a generic *os.PathError when another
// process already holds the lock, so callers never need to downcast a
// generic I/O error to detect contention (spec.md §9, "exception for
// control flow").
var ErrBusy = errors.New("lockfile: already held")

// Lock is a held advisory lock file. The zero value is not usable; obtain
// one via Acquire.
type Lock struct {
	path string
	file *os.File
}

// PathFor computes the sibling lock path for a database path: the same
// path with its extension replaced by ".plk", or ".cfg.plk" when dbPath
// itself ends in ".cfg".
func PathFor(dbPath string) string {
	if strings.HasSuffix(dbPath, ".cfg") {
		return dbPath[:len(dbPath)-len(".cfg")] + ".cfg.plk"
	}
	if ext := filepath.Ext(dbPath); ext != "" {
		return dbPath[:len(dbPath)-len(ext)] + ".plk"
	}
	return dbPath + ".plk"
}

// Acquire creates the lock file for dbPath with contents identity
// ("<user>@<host>:<pid>"). It returns ErrBusy if the file already exists.
func Acquire(dbPath string, identity string) (*Lock, error) {
	path := PathFor(dbPath)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, lockFileMode)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, ErrBusy
		}
		return nil, fmt.Errorf("lockfile: creating %s: %w", path, err)
	}

	if _, err := f.WriteString(identity); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("lockfile: writing %s: %w", path, err)
	}

	return &Lock{path: path, file: f}, nil
}

// Exists reports whether a lock file is currently present for dbPath,
// without attempting to acquire it.
func Exists(dbPath string) bool {
	_, err := os.Stat(PathFor(dbPath))
	return err == nil
}

// Close releases the lock, removing the file. It may be called more than
// once: a later call repeats the removal, and a lock file that is already
// gone is not an error.
func (l *Lock) Close() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("lockfile: removing %s: %w", l.path, err)
	}
	return nil
}
