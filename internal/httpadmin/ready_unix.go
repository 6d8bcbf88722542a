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

//go:build unix

package httpadmin

import (
	"fmt"
	"os"
	"syscall"
)

// signalReady writes a single status byte to stdout, flushes it, then
// dup2's /dev/null over the stdout file descriptor, matching the
// original's `write!(lock, ".")` followed by `dup2(nul, stdout)`.
func signalReady() error {
	if _, err := os.Stdout.WriteString("."); err != nil {
		return fmt.Errorf("httpadmin: writing readiness byte: %w", err)
	}
	// os.File writes are unbuffered; fsync is not supported on pipes and
	// terminals, so its error is ignored rather than skipping the redirect.
	_ = os.Stdout.Sync()

	null, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("httpadmin: opening %s: %w", os.DevNull, err)
	}
	defer null.Close()

	if err := syscall.Dup2(int(null.Fd()), int(os.Stdout.Fd())); err != nil {
		return fmt.Errorf("httpadmin: redirecting stdout: %w", err)
	}
	return nil
}
